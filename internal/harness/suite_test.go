package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"ticket.yaml",
		"entity.yml",
		"notes.md",
		filepath.Join("ledger", "reverse.yaml"),
		filepath.Join("ledger", "void.yaml"),
		filepath.Join("golden", "ticket.yaml"),
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("name: x\n"), 0644))
	}

	tests := []struct {
		filter string
		want   []string
	}{
		{"", []string{"entity.yml", "ledger/reverse.yaml", "ledger/void.yaml", "ticket.yaml"}},
		{"ledger/**", []string{"ledger/reverse.yaml", "ledger/void.yaml"}},
		{"*", []string{"entity.yml", "ticket.yaml"}},
		{"**/v*", []string{"ledger/void.yaml"}},
		{"nothing", nil},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			files, err := Discover(dir, tt.filter)
			require.NoError(t, err)

			var rel []string
			for _, f := range files {
				r, err := filepath.Rel(dir, f)
				require.NoError(t, err)
				rel = append(rel, filepath.ToSlash(r))
			}
			assert.Equal(t, tt.want, rel)
		})
	}
}

func TestDiscover_InvalidFilter(t *testing.T) {
	_, err := Discover(t.TempDir(), "[unclosed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestDiscover_MissingDir(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "absent"), "")
	assert.Error(t, err)
}
