package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sagerenn/gdengine/internal/dict"
	"github.com/sagerenn/gdengine/internal/dict/loader"
	"github.com/sagerenn/gdengine/internal/group"
	"github.com/sagerenn/gdengine/internal/observability"
)

type parsed struct {
	path string
	d    dict.Dictionary
	err  error
}

func (r *Registry) scan(ctx context.Context, ticket uint64) (Report, error) {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()
	// Failed stays visible until the next scan starts.
	defer func() {
		if r.State() != Failed {
			r.setState(Idle)
		}
	}()

	start := time.Now()
	observability.ScansTotal.Add(1)
	if r.superseded(ticket) {
		return Report{}, r.abandon(nil)
	}

	r.setState(Scanning)
	if err := r.store.CheckWritable(); err != nil {
		return Report{}, r.fail(fmt.Errorf("%w: %s: %v", ErrIndexDir, r.store.Dir(), err))
	}
	var rep Report
	candidates := r.enumerate(&rep)
	if err := ctx.Err(); err != nil {
		return Report{}, r.fail(err)
	}
	if r.superseded(ticket) {
		return Report{}, r.abandon(nil)
	}

	r.setState(Parsing)
	var indexed atomic.Int64
	results := r.parseAll(ctx, candidates, func(name string) {
		indexed.Add(1)
		r.indexing(name)
	})
	if err := ctx.Err(); err != nil {
		closeParsed(results)
		return Report{}, r.fail(err)
	}
	if r.superseded(ticket) {
		return Report{}, r.abandon(results)
	}

	r.setState(Swapping)
	r.mu.RLock()
	current := r.set
	r.mu.RUnlock()

	var (
		dicts   []dict.Dictionary
		seen    = make(map[dict.ID]bool, len(results))
		discard []dict.Dictionary
	)
	for _, res := range results {
		switch {
		case errors.Is(res.err, dict.ErrNotRecognized):
			rep.Skipped++
			r.log.Debug("not a dictionary", "path", res.path)
		case res.err != nil:
			rep.Failures = append(rep.Failures, FileError{Path: res.path, Err: res.err})
			r.log.Warn("dictionary failed to load", "path", res.path, "error", res.err)
		case seen[res.d.ID()]:
			r.log.Info("duplicate dictionary ignored", "path", res.path, "id", res.d.ID())
			discard = append(discard, res.d)
		default:
			seen[res.d.ID()] = true
			// Unchanged dictionaries keep their existing handle.
			if old, ok := current.Get(res.d.ID()); ok {
				discard = append(discard, res.d)
				dicts = append(dicts, old)
				continue
			}
			dicts = append(dicts, res.d)
		}
	}

	r.mu.Lock()
	old := r.set
	next := newSet(old.Version+1, dicts)
	r.generation++
	r.set = next
	r.groups = group.Rebuild(next.dicts, r.groupCfg, r.generation)
	r.lastScan = time.Now()
	r.lastErr = nil
	r.mu.Unlock()

	for _, d := range old.dicts {
		if _, ok := next.Get(d.ID()); !ok {
			discard = append(discard, d)
		}
	}
	for _, d := range discard {
		if err := d.Close(); err != nil {
			r.log.Warn("close dictionary", "id", d.ID(), "error", err)
		}
	}

	live := make(map[dict.ID]struct{}, next.Len())
	for _, d := range next.dicts {
		live[d.ID()] = struct{}{}
	}
	reclaimed, err := r.store.ReclaimOrphans(live)
	if err != nil {
		r.log.Warn("reclaim orphaned indexes", "dir", r.store.Dir(), "error", err)
	}
	observability.IndexReclaimed.Add(int64(len(reclaimed)))
	observability.DictionariesLoaded.Set(int64(next.Len()))

	rep.Version = next.Version
	rep.Dictionaries = next.Len()
	rep.Articles, rep.Words = next.Totals()
	rep.Indexed = int(indexed.Load())
	rep.Reclaimed = reclaimed
	rep.Duration = time.Since(start)
	r.log.Info("scan complete",
		"version", rep.Version,
		"status", rep.Status(),
		"indexed", rep.Indexed,
		"failures", len(rep.Failures),
		"skipped", rep.Skipped,
		"reclaimed", len(rep.Reclaimed),
		"duration_ms", rep.Duration.Milliseconds(),
	)
	if r.observer != nil {
		r.observer.Completed(rep)
	}
	return rep, nil
}

func (r *Registry) superseded(ticket uint64) bool {
	return r.ticket.Load() != ticket
}

func (r *Registry) abandon(results []parsed) error {
	closeParsed(results)
	observability.ScansSuperseded.Add(1)
	r.log.Info("scan superseded")
	return ErrSuperseded
}

func (r *Registry) fail(err error) error {
	r.setState(Failed)
	observability.ScansFailed.Add(1)
	r.log.Error("scan failed", "error", err)
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	return err
}

func closeParsed(results []parsed) {
	for _, res := range results {
		if res.d != nil {
			_ = res.d.Close()
		}
	}
}

// parseAll opens every candidate, keeping results in candidate order.
func (r *Registry) parseAll(ctx context.Context, candidates []string, indexing func(string)) []parsed {
	results := make([]parsed, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, path := range candidates {
		g.Go(func() error {
			d, err := loader.Open(gctx, path, r.formats, r.store, indexing)
			results[i] = parsed{path: path, d: d, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Registry) indexing(name string) {
	observability.DictionariesIndexed.Add(1)
	r.log.Info("indexing", "name", name)
	if r.observer != nil {
		r.observer.Indexing(name)
	}
}

// enumerate lists candidate files of every configured path in order.
// Directory errors are recorded and the directory skipped.
func (r *Registry) enumerate(rep *Report) []string {
	indexDir, _ := filepath.Abs(r.store.Dir())
	seen := make(map[string]bool)
	var out []string
	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		if abs, _ := filepath.Abs(dir); abs == indexDir {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			rep.Failures = append(rep.Failures, FileError{Path: dir, Err: err})
			r.log.Warn("scan directory", "dir", dir, "error", err)
			return
		}
		var subdirs []string
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			path := filepath.Join(dir, e.Name())
			info, err := os.Stat(path)
			if err != nil {
				r.log.Debug("stat", "path", path, "error", err)
				continue
			}
			switch {
			case info.IsDir():
				subdirs = append(subdirs, path)
			case info.Mode().IsRegular():
				if !seen[path] {
					seen[path] = true
					out = append(out, path)
				}
			}
		}
		if depth <= 0 {
			return
		}
		for _, sub := range subdirs {
			walk(sub, depth-1)
		}
	}
	for _, p := range r.paths {
		walk(filepath.Clean(p.Path), p.Depth)
	}
	return out
}
