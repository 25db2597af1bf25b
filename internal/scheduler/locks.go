package scheduler

import (
	"sort"
	"sync"
)

// ResourceLockManager provides per-path mutual exclusion. Two tasks writing
// the same destination directory never run at once; tasks writing different
// directories proceed concurrently.
type ResourceLockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewResourceLockManager creates a new ResourceLockManager.
func NewResourceLockManager() *ResourceLockManager {
	return &ResourceLockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for path, creating it on first use.
func (r *ResourceLockManager) Lock(path string) {
	r.mu.Lock()
	l, exists := r.locks[path]
	if !exists {
		l = &sync.Mutex{}
		r.locks[path] = l
	}
	r.mu.Unlock()

	l.Lock()
}

// Unlock releases the mutex for path.
func (r *ResourceLockManager) Unlock(path string) {
	r.mu.Lock()
	l, exists := r.locks[path]
	r.mu.Unlock()

	if exists {
		l.Unlock()
	}
}

// LockAll acquires locks for all paths in lexicographic order, which keeps
// two overlapping callers from deadlocking.
func (r *ResourceLockManager) LockAll(paths []string) {
	for _, p := range sortedCopy(paths) {
		r.Lock(p)
	}
}

// UnlockAll releases locks for all paths in reverse order.
func (r *ResourceLockManager) UnlockAll(paths []string) {
	sorted := sortedCopy(paths)
	for i := len(sorted) - 1; i >= 0; i-- {
		r.Unlock(sorted[i])
	}
}

func sortedCopy(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	// Duplicate keys would self-deadlock.
	out := sorted[:1]
	for _, p := range sorted[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}
