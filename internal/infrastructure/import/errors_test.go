package csvimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowError(t *testing.T) {
	tests := []struct {
		name string
		err  RowError
		want string
	}{
		{"with column", NewRowError(3, "zip", ErrCodeImportInvalidFormat, "must be 5 digits"), "row 3, column 'zip': must be 5 digits"},
		{"without column", NewRowError(7, "", ErrCodeImportValidation, "recipient is suppressed"), "row 7: recipient is suppressed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorCollection(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		ec := NewErrorCollection(0)
		assert.Zero(t, ec.TotalCount())
		assert.Empty(t, ec.Errors())
		assert.False(t, ec.IsTruncated())
	})

	t.Run("keeps the first errors up to the limit", func(t *testing.T) {
		ec := NewErrorCollection(2)
		ec.Add(NewRowError(2, "name", ErrCodeImportValidation, "name is required"))
		ec.AddFormatError(3, "profile_id", "profile_id must be a UUID", "abc")
		ec.Add(NewRowError(4, "zip", ErrCodeImportValidation, "zip is required"))

		assert.True(t, ec.IsTruncated())
		assert.Equal(t, 3, ec.TotalCount())
		assert.Len(t, ec.Errors(), 2)
		assert.Equal(t, "abc", ec.Errors()[1].Value)
		assert.Equal(t, ErrCodeImportInvalidFormat, ec.Errors()[1].Code)
	})
}
