package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()

	file, err := NewFile(t.TempDir())
	require.NoError(t, err)
	bdb, err := NewBolt(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = file.Close()
		_ = bdb.Close()
	})

	return map[string]Storage{
		BackendMemory: NewMemory(),
		BackendFile:   file,
		BackendBolt:   bdb,
	}
}

func TestStorage_SetGetRemoveClear(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get("tasks")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set("tasks", "[]"))
			require.NoError(t, s.Set("userName", "Ada"))

			v, ok, err := s.Get("userName")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "Ada", v)

			require.NoError(t, s.Remove("userName"))
			require.NoError(t, s.Remove("never-set"))
			_, ok, _ = s.Get("userName")
			assert.False(t, ok)

			require.NoError(t, s.Clear())
			_, ok, _ = s.Get("tasks")
			assert.False(t, ok)
		})
	}
}

func TestFile_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set("completedTasks", `[{"id":"a"}]`))

	reopened, err := NewFile(dir)
	require.NoError(t, err)
	v, ok, err := reopened.Get("completedTasks")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"a"}]`, v)
}

func TestFile_CorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte("{not json"), 0o644))

	s, err := NewFile(dir)
	require.NoError(t, err)
	_, ok, err := s.Get("tasks")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("tasks", "[]"))
	b, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(b), `"tasks": "[]"`)
}

func TestBolt_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewBolt(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set("userName", "Grace"))
	require.NoError(t, s.Close())

	reopened, err := NewBolt(dir)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get("userName")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Grace", v)
}

func TestOpen_SelectsBackend(t *testing.T) {
	s, err := Open("", t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)

	s, err = Open("Memory", "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open("redis", t.TempDir())
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestFile_ClosedRejectsWrites(t *testing.T) {
	s, err := NewFile(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Set("tasks", "[]"), ErrClosed)
}

func TestFile_SharedDirSeesOtherWriters(t *testing.T) {
	dir := t.TempDir()

	a, err := NewFile(dir)
	require.NoError(t, err)
	b, err := NewFile(dir)
	require.NoError(t, err)

	require.NoError(t, a.Set("tasks", `[{"id":"a"}]`))
	require.NoError(t, b.Set("userName", "Ada"))

	v, ok, err := a.Get("userName")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ada", v)

	// b's write must not have dropped a's key.
	v, ok, err = b.Get("tasks")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"a"}]`, v)

	require.NoError(t, b.Remove("tasks"))
	_, ok, _ = a.Get("tasks")
	assert.False(t, ok)
}

func TestBolt_SecondOpenReportsLocked(t *testing.T) {
	dir := t.TempDir()

	s, err := NewBolt(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = NewBolt(dir)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestBolt_ClosedReportsErrClosed(t *testing.T) {
	s, err := NewBolt(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, _, err = s.Get("tasks")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set("tasks", "[]"), ErrClosed)
	assert.ErrorIs(t, s.Remove("tasks"), ErrClosed)
	assert.ErrorIs(t, s.Clear(), ErrClosed)
}
