package lock

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NielsdaWheelz/dockstrap/internal/errors"
)

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func testLock(dir string, alive bool) DirLock {
	return DirLock{
		Dir:        dir,
		StaleAfter: 2 * time.Hour,
		Now:        func() time.Time { return testNow },
		IsPIDAlive: func(int) bool { return alive },
	}
}

func writeInfo(t *testing.T, path string, info Info) {
	t.Helper()
	data, err := json.Marshal(info)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestAcquire_WritesInfo(t *testing.T) {
	dir := t.TempDir()
	l := testLock(dir, true)

	release, err := l.Acquire("run-1", "bootstrap")
	require.NoError(t, err)
	defer release()

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)

	var info Info
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, os.Getpid(), info.PID)
	assert.Equal(t, "run-1", info.RunID)
	assert.Equal(t, "bootstrap", info.Cmd)
	assert.True(t, info.CreatedAt.Equal(testNow))

	st, err := os.Stat(l.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestAcquire_SecondRunGetsLocked(t *testing.T) {
	l := testLock(t.TempDir(), true)

	release, err := l.Acquire("run-1", "bootstrap")
	require.NoError(t, err)
	defer release()

	_, err = l.Acquire("run-2", "emit")
	require.Error(t, err)
	assert.Equal(t, errors.ELocked, errors.GetCode(err))

	var held *HeldError
	require.True(t, stderrors.As(err, &held))
	require.NotNil(t, held.Info)
	assert.Equal(t, "bootstrap", held.Info.Cmd)

	be, _ := errors.AsBootError(err)
	assert.Equal(t, l.Path(), be.Details["lock_file"])
}

func TestAcquire_ReclaimsDeadPID(t *testing.T) {
	l := testLock(t.TempDir(), false)
	writeInfo(t, l.Path(), Info{PID: 999999, Cmd: "old", CreatedAt: testNow})

	release, err := l.Acquire("run-2", "new")
	require.NoError(t, err)
	defer release()

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"cmd":"new"`)
}

func TestAcquire_ReclaimsOldLock(t *testing.T) {
	l := testLock(t.TempDir(), true)
	writeInfo(t, l.Path(), Info{PID: 12345, Cmd: "old", CreatedAt: testNow.Add(-3 * time.Hour)})

	release, err := l.Acquire("run-2", "new")
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestAcquire_UnreadableLockUsesMtime(t *testing.T) {
	l := testLock(t.TempDir(), true)
	require.NoError(t, os.WriteFile(l.Path(), []byte("not json"), 0o600))

	recent := testNow.Add(-time.Minute)
	require.NoError(t, os.Chtimes(l.Path(), recent, recent))
	_, err := l.Acquire("run-2", "cmd")
	assert.Equal(t, errors.ELocked, errors.GetCode(err))

	old := testNow.Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(l.Path(), old, old))
	release, err := l.Acquire("run-3", "cmd")
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestRelease_Idempotent(t *testing.T) {
	l := testLock(t.TempDir(), true)

	release, err := l.Acquire("run-1", "cmd")
	require.NoError(t, err)
	require.NoError(t, release())
	require.NoError(t, release())

	_, err = os.Stat(l.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestAcquire_CreatesBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not", "yet")
	release, err := testLock(dir, true).Acquire("run-1", "cmd")
	require.NoError(t, err)
	defer release()

	assert.DirExists(t, dir)
}

func TestNew_Defaults(t *testing.T) {
	l := New("/srv/site")
	assert.Equal(t, "/srv/site", l.Dir)
	assert.Equal(t, DefaultStaleAfter, l.StaleAfter)
	assert.Equal(t, "/srv/site/"+FileName, l.Path())
	assert.True(t, l.IsPIDAlive(os.Getpid()))
	assert.False(t, l.IsPIDAlive(0))
}
