package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PeriodicTask is a named function run on a fixed interval
type PeriodicTask struct {
	Name     string
	Interval time.Duration
	// Timeout bounds one run; zero means the interval
	Timeout time.Duration
	// RunOnStart runs the task immediately instead of after the first interval
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// PeriodicRunner runs registered tasks until stopped. A run that fails is
// logged and the task simply waits for its next tick; runs of the same task
// never overlap.
type PeriodicRunner struct {
	logger *zap.Logger
	tasks  []PeriodicTask

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewPeriodicRunner creates a runner
func NewPeriodicRunner(logger *zap.Logger) *PeriodicRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodicRunner{logger: logger}
}

// Register adds a task; it must be called before Start
func (r *PeriodicRunner) Register(task PeriodicTask) error {
	if task.Name == "" || task.Run == nil {
		return fmt.Errorf("%w: task needs a name and a run function", ErrInvalidConfig)
	}
	if task.Interval <= 0 {
		return fmt.Errorf("%w: task %s interval must be positive", ErrInvalidConfig, task.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.Name == task.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, task.Name)
		}
	}
	r.tasks = append(r.tasks, task)
	return nil
}

// Start launches one loop per registered task
func (r *PeriodicRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		return nil
	}
	r.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for _, task := range r.tasks {
		r.wg.Add(1)
		go r.loop(ctx, task)
		r.logger.Info("Periodic task started",
			zap.String("task", task.Name),
			zap.Duration("interval", task.Interval),
		)
	}
	return nil
}

// Stop cancels the loops and waits for in-flight runs
func (r *PeriodicRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Periodic runner stopped gracefully")
		return nil
	case <-ctx.Done():
		r.logger.Warn("Periodic runner stop timed out")
		return ctx.Err()
	}
}

func (r *PeriodicRunner) loop(ctx context.Context, task PeriodicTask) {
	defer r.wg.Done()

	if task.RunOnStart {
		r.execute(ctx, task)
	}

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("Periodic task stopping", zap.String("task", task.Name))
			return
		case <-ticker.C:
			r.execute(ctx, task)
		}
	}
}

func (r *PeriodicRunner) execute(ctx context.Context, task PeriodicTask) {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = task.Interval
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("task panicked: %v", rec)
			}
		}()
		return task.Run(runCtx)
	}()

	if err != nil {
		r.logger.Error("Periodic task failed",
			zap.String("task", task.Name),
			zap.Duration("duration", time.Since(started)),
			zap.Error(err),
		)
		return
	}
	r.logger.Debug("Periodic task completed",
		zap.String("task", task.Name),
		zap.Duration("duration", time.Since(started)),
	)
}
