package csvimport

import (
	"errors"
	"fmt"
)

// Row error codes reported back in an import result
const (
	ErrCodeImportInvalidFormat = "ERR_IMPORT_INVALID_FORMAT"
	ErrCodeImportValidation    = "ERR_IMPORT_VALIDATION"
)

// File-level failures. The whole upload is rejected.
var (
	ErrEmptyFile       = errors.New("CSV file is empty")
	ErrInvalidEncoding = errors.New("CSV file must be UTF-8 encoded")
	ErrMissingHeader   = errors.New("CSV file missing header row")
	ErrTooManyRows     = errors.New("CSV file has too many rows")
)

// RowError rejects a single recipient row. Row is the 1-based line number in
// the uploaded file, header included.
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

func (e RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	}
	return fmt.Sprintf("row %d, column '%s': %s", e.Row, e.Column, e.Message)
}

func NewRowError(row int, column, code, message string) RowError {
	return RowError{Row: row, Column: column, Code: code, Message: message}
}

// ErrorCollection keeps the first limit row errors of an import and counts
// every rejection, so a file with thousands of bad rows still produces a
// bounded response.
type ErrorCollection struct {
	kept  []RowError
	limit int
	total int
}

// NewErrorCollection defaults limit to 100 when it is not positive
func NewErrorCollection(limit int) *ErrorCollection {
	if limit <= 0 {
		limit = 100
	}
	return &ErrorCollection{limit: limit}
}

func (c *ErrorCollection) Add(err RowError) {
	c.total++
	if len(c.kept) < c.limit {
		c.kept = append(c.kept, err)
	}
}

// AddFormatError rejects a row whose column value cannot be parsed
func (c *ErrorCollection) AddFormatError(row int, column, message, value string) {
	e := NewRowError(row, column, ErrCodeImportInvalidFormat, message)
	e.Value = value
	c.Add(e)
}

func (c *ErrorCollection) Errors() []RowError { return c.kept }

// TotalCount counts every rejected row, including ones past the limit
func (c *ErrorCollection) TotalCount() int { return c.total }

func (c *ErrorCollection) IsTruncated() bool { return c.total > c.limit }
