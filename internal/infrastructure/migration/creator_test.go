package migration

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/erp/utilitybilling/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add late fee column", "add_late_fee_column"},
		{"Add-Late-Fee", "add_late_fee"},
		{"ADD_LATE_FEE", "add_late_fee"},
		{"add__late__fee", "add_late_fee"},
		{"Index Bills 2026", "index_bills_2026"},
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

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	first, err := CreateMigration(dir, "add late fee column", now)
	require.NoError(t, err)
	assert.Equal(t, uint(1), first.Version)
	assert.Equal(t, filepath.Join(dir, "000001_add_late_fee_column.up.sql"), first.UpPath)
	assert.Equal(t, filepath.Join(dir, "000001_add_late_fee_column.down.sql"), first.DownPath)

	content, err := os.ReadFile(first.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "-- Migration: add_late_fee_column")
	assert.Contains(t, string(content), "2026-10-01T12:00:00Z")

	second, err := CreateMigration(dir, "index bills", now)
	require.NoError(t, err)
	assert.Equal(t, uint(2), second.Version)
	assert.FileExists(t, second.DownPath)
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "migrations")

	mf, err := CreateMigration(dir, "init", time.Now())
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.FileExists(t, mf.UpPath)
}

func TestCreateMigration_RejectsEmptyName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", time.Now())
	assert.Error(t, err)
}

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_index_bills.up.sql":   {},
		"000002_index_bills.down.sql": {},
		"000001_init.up.sql":          {},
		"000003_no_down.up.sql":       {},
		"README.md":                   {},
		"embed.go":                    {},
		"bad_name.up.sql":             {},
		"nested/000009_x.up.sql":      {},
	}

	list, err := ListMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []Migration{
		{Version: 1, Name: "init"},
		{Version: 2, Name: "index_bills", HasDown: true},
		{Version: 3, Name: "no_down"},
	}, list)
}

func TestListMigrations_NonexistentDirectory(t *testing.T) {
	list, err := ListMigrations(os.DirFS(filepath.Join(t.TempDir(), "missing")))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	list, err := ListMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, uint(1), list[0].Version)
	for _, m := range list {
		assert.True(t, m.HasDown, "migration %06d_%s has no down file", m.Version, m.Name)
	}
}
