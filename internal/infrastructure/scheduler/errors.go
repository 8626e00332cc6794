package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when a job is submitted to a stopped queue
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrQueueFull is returned when the dispatch queue has no free slot
	ErrQueueFull = errors.New("dispatch queue is full")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrDuplicateTask is returned when a periodic task name is registered twice
	ErrDuplicateTask = errors.New("periodic task already registered")
)
