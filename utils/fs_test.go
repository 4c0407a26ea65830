package utils

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDirectory(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	nested := filepath.Join(base, "a", "b")
	require.NoError(t, EnsureDirectory(nested, 0o700))
	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// existing directory, permissions are corrected
	require.NoError(t, EnsureDirectory(nested, 0o750))
	if runtime.GOOS != "windows" {
		info, err = os.Stat(nested)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())
	}

	// a file is replaced
	file := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	require.NoError(t, EnsureDirectory(file, 0o700))
	info, err = os.Stat(file)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
