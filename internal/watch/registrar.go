package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrCleanInBinding is returned when a binding lists the clean task. Clean
// only runs once, before the first build.
var ErrCleanInBinding = errors.New("clean task cannot be bound to a watch")

// ErrInvalidBinding wraps the other binding validation failures.
var ErrInvalidBinding = errors.New("invalid watch binding")

// Binding maps a glob to the task sequence run when something matching it
// changes.
type Binding struct {
	Name   string
	Glob   string
	Tasks  []string // task IDs, run in order
	Writes []string // directories the sequence writes
	Reload bool     // reload browsers after the sequence
}

// ReloadOnly reports whether the binding runs no tasks.
func (b Binding) ReloadOnly() bool { return len(b.Tasks) == 0 }

// RunFunc runs a binding's task sequence. Its error is logged; the
// binding keeps watching.
type RunFunc func(ctx context.Context, b Binding) error

// ReloadFunc tells connected browsers to refresh.
type ReloadFunc func(reason string)

// Options configures a Registrar.
type Options struct {
	Source   Source
	Run      RunFunc
	Reload   ReloadFunc
	Debounce time.Duration // trailing-edge quiet period per binding
	Suppress time.Duration // how long writes by a sequence are ignored by reload-only bindings
	Logger   zerolog.Logger
	// CleanID is the task ID that must never appear in a binding.
	CleanID string
}

// Registrar runs one loop per binding. A burst of events yields at least one
// run; events arriving during a run cause exactly one follow-up run. Runs of
// one binding never overlap, runs of different bindings may.
type Registrar struct {
	bindings []Binding
	opts     Options

	mu     sync.Mutex
	busy   map[string]int       // directory -> running sequences writing it
	recent map[string]time.Time // directory -> when its last writer finished

	runs sync.WaitGroup
}

// NewRegistrar validates bindings and creates a Registrar.
func NewRegistrar(bindings []Binding, opts Options) (*Registrar, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("%w: no event source", ErrInvalidBinding)
	}
	for _, b := range bindings {
		if b.Glob == "" {
			return nil, fmt.Errorf("%w: binding %q has no glob", ErrInvalidBinding, b.Name)
		}
		if b.ReloadOnly() && !b.Reload {
			return nil, fmt.Errorf("%w: binding %q does nothing", ErrInvalidBinding, b.Name)
		}
		if !b.ReloadOnly() && opts.Run == nil {
			return nil, fmt.Errorf("%w: binding %q has tasks but no runner", ErrInvalidBinding, b.Name)
		}
		for _, id := range b.Tasks {
			if opts.CleanID != "" && id == opts.CleanID {
				return nil, fmt.Errorf("%w: binding %q", ErrCleanInBinding, b.Name)
			}
		}
	}

	return &Registrar{
		bindings: append([]Binding(nil), bindings...),
		opts:     opts,
		busy:     make(map[string]int),
		recent:   make(map[string]time.Time),
	}, nil
}

// Bindings returns the registered bindings.
func (r *Registrar) Bindings() []Binding {
	return append([]Binding(nil), r.bindings...)
}

// Run subscribes every binding and processes events until ctx is done. It
// waits for running sequences to finish before returning.
func (r *Registrar) Run(ctx context.Context) error {
	type sub struct {
		b      Binding
		events <-chan Event
	}

	subs := make([]sub, 0, len(r.bindings))
	for _, b := range r.bindings {
		events, err := r.opts.Source.Subscribe(ctx, b.Glob)
		if err != nil {
			return fmt.Errorf("watching %s (%s): %w", b.Name, b.Glob, err)
		}
		subs = append(subs, sub{b: b, events: events})
		r.opts.Logger.Debug().Str("binding", b.Name).Str("glob", b.Glob).Msg("watching")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range subs {
		s := s // per-iteration copy (go1.22 loop semantics on go1.21)
		g.Go(func() error {
			r.loop(gctx, s.b, s.events)
			return nil
		})
	}
	err := g.Wait()
	r.runs.Wait()
	return err
}

func (r *Registrar) loop(ctx context.Context, b Binding, events <-chan Event) {
	log := r.opts.Logger.With().Str("binding", b.Name).Logger()

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		running bool
		dirty   bool
		done    = make(chan struct{}, 1)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		if running {
			<-done
		}
	}()

	start := func() {
		running = true
		r.runs.Add(1)
		go func() {
			defer r.runs.Done()
			r.execute(ctx, b, log)
			done <- struct{}{}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if b.ReloadOnly() && r.suppressed(ev.Path) {
				log.Debug().Str("path", ev.Path).Msg("ignoring own write")
				continue
			}
			log.Debug().Str("path", ev.Path).Stringer("op", ev.Op).Msg("change")
			if timer == nil {
				timer = time.NewTimer(r.opts.Debounce)
			} else {
				timer.Reset(r.opts.Debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if running {
				dirty = true
				continue
			}
			start()

		case <-done:
			running = false
			if dirty && ctx.Err() == nil {
				dirty = false
				start()
			}
		}
	}
}

// execute runs the binding's sequence, then reloads whatever the outcome.
func (r *Registrar) execute(ctx context.Context, b Binding, log zerolog.Logger) {
	if !b.ReloadOnly() {
		done := r.TrackWrites(b.Writes)
		err := r.opts.Run(ctx, b)
		done()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("sequence failed")
		}
	}
	if ctx.Err() != nil {
		return
	}
	if b.Reload && r.opts.Reload != nil {
		r.opts.Reload(b.Name)
	}
}

// TrackWrites marks dirs as being written by work outside any binding, such
// as a manual rebuild. Reload-only bindings ignore changes there until the
// returned func is called and the suppression window has passed.
func (r *Registrar) TrackWrites(dirs []string) (done func()) {
	r.beginWrite(dirs)
	var once sync.Once
	return func() { once.Do(func() { r.endWrite(dirs) }) }
}

func (r *Registrar) beginWrite(dirs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range dirs {
		r.busy[cleanAbs(d)]++
	}
}

func (r *Registrar) endWrite(dirs []string) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range dirs {
		d = cleanAbs(d)
		if r.busy[d]--; r.busy[d] <= 0 {
			delete(r.busy, d)
		}
		r.recent[d] = now
	}
}

// suppressed reports whether path lies in a directory a sequence is writing
// or finished writing within the suppression window.
func (r *Registrar) suppressed(path string) bool {
	path = cleanAbs(path)
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for d := range r.busy {
		if within(path, d) {
			return true
		}
	}
	for d, at := range r.recent {
		if now.Sub(at) > r.opts.Suppress {
			delete(r.recent, d)
			continue
		}
		if within(path, d) {
			return true
		}
	}
	return false
}

func cleanAbs(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
