package organize

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ingressd/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileMoverRename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0644))

	// Parent of dst does not exist yet
	dst := filepath.Join(dir, "deep", "er", "a.txt")
	require.NoError(t, NewFileMover().Move(src, dst))

	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFileMoverReplaces(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0644))

	require.NoError(t, NewFileMover().Move(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestFileMoverMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := NewFileMover().Move(filepath.Join(dir, "nope.txt"), filepath.Join(dir, "out", "nope.txt"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestCopyAcross(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst", "src.bin")
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0755))
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0640))
	stamp := time.Date(2020, time.January, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, stamp, stamp))

	require.NoError(t, copyAcross(src, dst))

	assert.NoFileExists(t, src)
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(stamp), "modification time is preserved")

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	// No temporary files are left behind
	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCopyAcrossMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := copyAcross(filepath.Join(dir, "gone"), filepath.Join(dir, "dst"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.NoFileExists(t, filepath.Join(dir, "dst"))
}
