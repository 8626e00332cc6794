package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/postcard/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add vendor logs", "add_vendor_logs"},
		{"Add-Vendor-Logs", "add_vendor_logs"},
		{"ADD__VENDOR__LOGS", "add_vendor_logs"},
		{"Add Index 2", "add_index_2"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration_NumbersSequentially(t *testing.T) {
	dir := t.TempDir()

	first, err := CreateMigration(dir, "add campaign tags", "Tag campaigns for reporting")
	require.NoError(t, err)
	assert.Equal(t, uint(1), first.Version)
	assert.Equal(t, filepath.Join(dir, "000001_add_campaign_tags.up.sql"), first.UpPath)
	assert.Equal(t, filepath.Join(dir, "000001_add_campaign_tags.down.sql"), first.DownPath)

	up, err := os.ReadFile(first.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "Tag campaigns for reporting")
	down, err := os.ReadFile(first.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "rollback of add campaign tags")

	second, err := CreateMigration(dir, "drop tags", "")
	require.NoError(t, err)
	assert.Equal(t, uint(2), second.Version)

	versions, err := ListMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, versions)
}

func TestCreateMigration_RejectsEmptyName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	assert.Error(t, err)
}

func TestListMigrations_MissingDirectory(t *testing.T) {
	versions, err := ListMigrations(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestAvailable_EmbeddedSchema(t *testing.T) {
	versions, err := Available(migrations.FS, ".")
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2, 3}, versions)
}
