package util

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirExists(t *testing.T) {
	dir := t.TempDir()
	file := path.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(path.Join(dir, "missing")))
	assert.False(t, DirExists(file))
	// Stat errors other than not-exist (here ENOTDIR) report false too.
	assert.False(t, DirExists(path.Join(file, "child")))
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := path.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(path.Join(dir, "missing")))
	assert.False(t, FileExists(dir))
	assert.False(t, FileExists(path.Join(file, "child")))
}
