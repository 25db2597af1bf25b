// Package watch binds filesystem changes on globs to task sequences followed
// by a browser reload.
package watch

import (
	"context"
	"strings"
	"time"
)

// Op represents the type of file system operation.
type Op uint32

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	var parts []string
	for _, o := range []struct {
		op   Op
		name string
	}{
		{OpCreate, "CREATE"},
		{OpWrite, "WRITE"},
		{OpRemove, "REMOVE"},
		{OpRename, "RENAME"},
		{OpChmod, "CHMOD"},
	} {
		if op.Has(o.op) {
			parts = append(parts, o.name)
		}
	}
	if len(parts) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(parts, "|")
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is a change to a path matching a subscribed glob.
type Event struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// Source produces change events for globs. The returned channel is closed
// when ctx is done.
type Source interface {
	Subscribe(ctx context.Context, glob string) (<-chan Event, error)
}
