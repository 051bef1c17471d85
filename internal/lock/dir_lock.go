// Package lock guards a base directory against concurrent bootstrap runs.
package lock

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/NielsdaWheelz/dockstrap/internal/errors"
)

// FileName is the lock file created inside the base directory.
const FileName = ".dockstrap.lock"

// DefaultStaleAfter is how old a lock must be before it is reclaimed even
// when its owner still appears alive.
const DefaultStaleAfter = 2 * time.Hour

// Info is the metadata stored in a lock file.
type Info struct {
	PID       int       `json:"pid"`
	RunID     string    `json:"run_id,omitempty"`
	Cmd       string    `json:"cmd,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HeldError reports a live lock held by another run.
type HeldError struct {
	Path string
	Info *Info // nil if the lock file is unreadable
}

func (e *HeldError) Error() string {
	if e.Info != nil {
		return fmt.Sprintf("base dir is locked by pid %d (%s) since %s",
			e.Info.PID, e.Info.Cmd, e.Info.CreatedAt.Format(time.RFC3339))
	}
	return "base dir is locked"
}

// DirLock acquires the lock file of one base directory.
type DirLock struct {
	Dir        string
	StaleAfter time.Duration
	Now        func() time.Time
	IsPIDAlive func(pid int) bool
}

// New returns a DirLock for dir with the default staleness policy.
func New(dir string) DirLock {
	return DirLock{
		Dir:        dir,
		StaleAfter: DefaultStaleAfter,
		Now:        time.Now,
		IsPIDAlive: pidAlive,
	}
}

// Path returns the lock file path.
func (l DirLock) Path() string {
	return filepath.Join(l.Dir, FileName)
}

// Acquire takes the lock and returns a release func (safe to call twice).
// A live lock yields E_LOCKED wrapping *HeldError. Stale locks (dead pid, too
// old, or unreadable and too old) are removed and acquisition is retried.
func (l DirLock) Acquire(runID, cmd string) (release func() error, err error) {
	path := l.Path()
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.EInternal, "failed to create base dir for lock", err)
	}

	var held *HeldError
	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return l.write(f, path, Info{PID: os.Getpid(), RunID: runID, Cmd: cmd, CreatedAt: l.Now()})
		}
		if !os.IsExist(err) {
			return nil, errors.Wrap(errors.EInternal, "failed to create lock file", err)
		}

		info, stale := l.inspect(path)
		held = &HeldError{Path: path, Info: info}
		if !stale {
			break
		}
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			break
		}
	}

	return nil, errors.WrapWithDetails(errors.ELocked, held.Error(), held,
		map[string]string{"lock_file": path, "hint": "wait for the other run to finish, or remove the lock file if it is stale"})
}

func (l DirLock) write(f *os.File, path string, info Info) (func() error, error) {
	data, _ := json.Marshal(info)
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(path)
		return nil, errors.Wrap(errors.EInternal, "failed to write lock file", stderrors.Join(werr, cerr))
	}
	return func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}, nil
}

// inspect reads the lock file and decides whether it may be reclaimed.
func (l DirLock) inspect(path string) (*Info, bool) {
	data, err := os.ReadFile(path)
	if err == nil {
		var info Info
		if json.Unmarshal(data, &info) == nil {
			stale := !l.IsPIDAlive(info.PID) || l.Now().Sub(info.CreatedAt) > l.StaleAfter
			return &info, stale
		}
	}
	st, err := os.Stat(path)
	if err != nil {
		// vanished between open and stat: retry
		return nil, os.IsNotExist(err)
	}
	return nil, l.Now().Sub(st.ModTime()) > l.StaleAfter
}

// pidAlive uses signal 0; EPERM still means the process exists.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || stderrors.Is(err, syscall.EPERM)
}
