package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/aristath/assetpipe/internal/match"
)

// FSNotifySource implements Source with one fsnotify watcher per
// subscription. The glob's base directory is watched recursively; a base that
// does not exist yet is picked up once it is created.
type FSNotifySource struct {
	logger  zerolog.Logger
	bufSize int
}

// NewFSNotifySource creates an fsnotify-backed Source.
func NewFSNotifySource(logger zerolog.Logger) *FSNotifySource {
	return &FSNotifySource{logger: logger, bufSize: 100}
}

// Subscribe starts watching glob until ctx is done.
func (s *FSNotifySource) Subscribe(ctx context.Context, glob string) (<-chan Event, error) {
	pattern, err := match.Compile(glob)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		pattern: pattern,
		fsw:     fsw,
		events:  make(chan Event, s.bufSize),
		watched: make(map[string]bool),
		logger:  s.logger.With().Str("glob", glob).Logger(),
	}
	if err := sub.attach(); err != nil {
		fsw.Close()
		return nil, err
	}

	go sub.loop(ctx)
	return sub.events, nil
}

type subscription struct {
	pattern *match.Pattern
	fsw     *fsnotify.Watcher
	events  chan Event
	logger  zerolog.Logger

	mu      sync.Mutex
	watched map[string]bool
}

// attach watches the pattern base recursively, or its nearest existing
// ancestor when the base is missing.
func (s *subscription) attach() error {
	base := s.pattern.Base()
	dir := base
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}

	if dir == base {
		s.addRecursive(base, false)
		return nil
	}
	return s.add(dir)
}

func (s *subscription) add(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watched[dir] {
		return nil
	}
	if err := s.fsw.Add(dir); err != nil {
		return err
	}
	s.watched[dir] = true
	return nil
}

// addRecursive watches dir and its subdirectories. With announce set, files
// already present are reported as created: they may have been written before
// the watch was in place.
func (s *subscription) addRecursive(dir string, announce bool) {
	filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := s.add(p); err != nil {
				s.logger.Warn().Err(err).Str("dir", p).Msg("cannot watch directory")
			}
			return nil
		}
		if announce {
			s.emit(Event{Path: p, Op: OpCreate, Timestamp: time.Now()})
		}
		return nil
	})
}

func (s *subscription) loop(ctx context.Context) {
	defer close(s.events)
	defer s.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			s.handle(ev)

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

func (s *subscription) handle(ev fsnotify.Event) {
	op := convertOp(ev.Op)
	if op == 0 || op == OpChmod {
		return
	}

	if op.Has(OpCreate) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			s.dirCreated(ev.Name)
			return
		}
	}
	if op.Has(OpRemove) || op.Has(OpRename) {
		s.forget(ev.Name)
	}

	if s.pattern.Match(ev.Name) {
		s.emit(Event{Path: ev.Name, Op: op, Timestamp: time.Now()})
	}
}

func (s *subscription) dirCreated(dir string) {
	base := s.pattern.Base()
	switch {
	case within(dir, base):
		s.addRecursive(dir, true)
	case within(base, dir):
		// An ancestor of the base appeared; move closer.
		if err := s.attach(); err != nil {
			s.logger.Warn().Err(err).Msg("cannot watch new directory")
		}
		if s.isWatched(base) {
			s.addRecursive(base, true)
		}
	}
}

// forget drops watches at or below a removed path. The kernel has already
// released them; a recreated directory must be added again.
func (s *subscription) forget(path string) {
	s.mu.Lock()
	baseLost := false
	for dir := range s.watched {
		if within(dir, path) {
			delete(s.watched, dir)
			if dir == s.pattern.Base() {
				baseLost = true
			}
		}
	}
	s.mu.Unlock()

	if baseLost {
		// Fall back to the nearest ancestor so the base is seen when it returns.
		if err := s.attach(); err != nil {
			s.logger.Warn().Err(err).Msg("cannot rewatch after removal")
		}
	}
}

func (s *subscription) isWatched(dir string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watched[dir]
}

func (s *subscription) emit(ev Event) {
	if !s.pattern.Match(ev.Path) {
		return
	}
	select {
	case s.events <- ev:
	default:
		// A queued event already guarantees a run.
		s.logger.Debug().Str("path", ev.Path).Msg("event buffer full")
	}
}

// within reports whether path is dir or inside it.
func within(path, dir string) bool {
	if path == dir {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(dir, string(filepath.Separator))+string(filepath.Separator))
}

// convertOp converts fsnotify.Op to Op.
func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	if fsOp.Has(fsnotify.Chmod) {
		op |= OpChmod
	}
	return op
}

var _ Source = (*FSNotifySource)(nil)
