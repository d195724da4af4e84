// Package registry owns the active dictionary set. It scans the configured
// directories, parses candidates through the loader, and swaps the result in
// under a single RWMutex shared with every reader.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sagerenn/gdengine/internal/config"
	"github.com/sagerenn/gdengine/internal/dict"
	"github.com/sagerenn/gdengine/internal/dict/loader"
	"github.com/sagerenn/gdengine/internal/group"
	"github.com/sagerenn/gdengine/internal/indexstore"
)

var (
	// ErrSuperseded is returned by a scan abandoned because a newer scan
	// was requested. The active set is left as it was.
	ErrSuperseded = errors.New("scan superseded by a newer request")

	// ErrIndexDir reports an index directory that cannot be created or
	// written.
	ErrIndexDir = errors.New("index directory unusable")

	// ErrUnknownGroup is returned by Target for a name no group carries.
	ErrUnknownGroup = errors.New("unknown group")
)

// Observer receives scan notifications. Indexing may be called from several
// parser goroutines at once.
type Observer interface {
	Indexing(name string)
	Completed(Report)
}

// Outcome is the result of an asynchronous Reload.
type Outcome struct {
	Report Report
	Err    error
}

type Option func(*Registry)

func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

func WithObserver(o Observer) Option {
	return func(r *Registry) {
		r.observer = o
	}
}

// WithWorkers bounds the number of files parsed concurrently.
func WithWorkers(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithFormats replaces the probe list of loader.Formats.
func WithFormats(formats []dict.Format) Option {
	return func(r *Registry) {
		r.formats = formats
	}
}

func WithGroups(cfg []config.GroupConfig) Option {
	return func(r *Registry) {
		r.groupCfg = cloneGroups(cfg)
	}
}

type Registry struct {
	store    *indexstore.Store
	paths    []config.SourcePath
	formats  []dict.Format
	workers  int
	log      *slog.Logger
	observer Observer

	// mu guards set, groups, groupCfg, generation and the last scan fields.
	mu         sync.RWMutex
	set        *Set
	groupCfg   []config.GroupConfig
	groups     []group.Group
	generation uint64
	lastScan   time.Time
	lastErr    error

	scanMu sync.Mutex
	ticket atomic.Uint64
	state  atomic.Int32
}

func New(store *indexstore.Store, paths []config.SourcePath, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		paths:   append([]config.SourcePath(nil), paths...),
		formats: loader.Formats(),
		workers: 4,
		log:     slog.New(slog.DiscardHandler),
		set:     emptySet(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.groups = group.Rebuild(nil, r.groupCfg, 0)
	return r
}

// State reports the current scan phase.
func (r *Registry) State() State {
	return State(r.state.Load())
}

func (r *Registry) setState(s State) {
	r.state.Store(int32(s))
}

// Snapshot returns the active set. The returned value never changes.
func (r *Registry) Snapshot() *Set {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set
}

// Groups returns the resolved groups in configured order.
func (r *Registry) Groups() []group.Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]group.Group(nil), r.groups...)
}

func (r *Registry) Group(name string) (group.Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return group.Find(r.groups, name)
}

// Target returns the dictionaries a query named by name runs against. The
// empty name selects the whole active set.
func (r *Registry) Target(name string) (group.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		return group.Group{Version: r.generation, Dicts: r.set.dicts}, nil
	}
	g, ok := group.Find(r.groups, name)
	if !ok {
		return group.Group{}, fmt.Errorf("%w: %q", ErrUnknownGroup, name)
	}
	return g, nil
}

// SetGroups replaces the group configuration and rebuilds the groups
// against the current set.
func (r *Registry) SetGroups(cfg []config.GroupConfig) {
	cfg = cloneGroups(cfg)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.groupCfg = cfg
	r.groups = group.Rebuild(r.set.dicts, cfg, r.generation)
}

// Status summarizes the active set and the last scan.
func (r *Registry) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	articles, words := r.set.Totals()
	st := Status{
		State:        r.State().String(),
		Version:      r.set.Version,
		Dictionaries: r.set.Len(),
		Articles:     articles,
		Words:        words,
		Groups:       len(r.groups),
		LastScan:     r.lastScan,
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st
}

// Reload starts a scan on its own goroutine. The returned channel yields
// exactly one Outcome. A later Scan or Reload supersedes this one.
func (r *Registry) Reload(ctx context.Context) <-chan Outcome {
	ticket := r.ticket.Add(1)
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		rep, err := r.scan(ctx, ticket)
		out <- Outcome{Report: rep, Err: err}
	}()
	return out
}

// Scan rescans every configured path and swaps in the new set. It blocks
// until the scan completes, fails or is superseded.
func (r *Registry) Scan(ctx context.Context) (Report, error) {
	return r.scan(ctx, r.ticket.Add(1))
}

// Close closes every handle of the active set and empties it.
func (r *Registry) Close() error {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()
	r.mu.Lock()
	old := r.set
	r.set = emptySet()
	r.generation++
	r.groups = group.Rebuild(nil, r.groupCfg, r.generation)
	r.mu.Unlock()

	var errs []error
	for _, d := range old.dicts {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func cloneGroups(cfg []config.GroupConfig) []config.GroupConfig {
	out := make([]config.GroupConfig, len(cfg))
	for i, g := range cfg {
		out[i] = config.GroupConfig{Name: g.Name, Dictionaries: append([]string(nil), g.Dictionaries...)}
	}
	return out
}
