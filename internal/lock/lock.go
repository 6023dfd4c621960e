// Package lock keeps the advisory locks that stop the publisher from
// picking up resources still being edited.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"vfs-go/internal/vfs"
)

// ErrLocked is returned when a path is already locked by another owner.
var ErrLocked = errors.New("resource is locked")

// Table is an in-memory lock table. A lock on a folder covers every
// resource below it. Folder paths carry their trailing separator.
type Table struct {
	mu    sync.RWMutex
	locks map[string]vfs.Lock
}

var _ vfs.LockOracle = (*Table)(nil)

func NewTable() *Table {
	return &Table{locks: make(map[string]vfs.Lock)}
}

// Lock records owner as the holder of path. Re-locking by the same owner is
// allowed. A conflicting lock on path or on one of its ancestors fails with
// ErrLocked.
func (t *Table) Lock(path, owner string, projectID int) error {
	if owner == "" {
		return fmt.Errorf("locking %s: owner is required", path)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if held := t.find(path); !held.IsNull() && held.Owner != owner {
		return fmt.Errorf("locking %s: held by %s on %s: %w", path, held.Owner, held.Path, ErrLocked)
	}
	t.locks[path] = vfs.Lock{Path: path, Owner: owner, ProjectID: projectID}
	return nil
}

// Unlock releases the lock owner holds on path. Releasing a path that is not
// locked is a no-op.
func (t *Table) Unlock(path, owner string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	held, ok := t.locks[path]
	if !ok {
		return nil
	}
	if held.Owner != owner {
		return fmt.Errorf("unlocking %s: held by %s: %w", path, held.Owner, ErrLocked)
	}
	delete(t.locks, path)
	return nil
}

// IsLocked returns the lock held on path or on its nearest locked ancestor.
func (t *Table) IsLocked(_ context.Context, path string) (vfs.Lock, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.find(path), nil
}

func (t *Table) find(path string) vfs.Lock {
	for p := path; p != ""; p = vfs.ParentFolder(p) {
		if l, ok := t.locks[p]; ok {
			return l
		}
	}
	return vfs.Lock{}
}
