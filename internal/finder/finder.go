// Package finder answers prefix queries across a group of dictionaries.
package finder

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/sagerenn/gdengine/internal/dict"
	"github.com/sagerenn/gdengine/internal/group"
	"github.com/sagerenn/gdengine/internal/observability"
)

// DefaultMaxResults caps merged results when no limit is configured.
const DefaultMaxResults = 100

// QueryContext identifies what a result was computed against. Two contexts
// are equal only for the same trimmed query on the same target snapshot.
type QueryContext struct {
	Query   string `json:"query"`
	Target  string `json:"target"`
	Version uint64 `json:"version"`
}

// Result is the outcome of one PrefixMatch. Err is set when ctx ended
// before every dictionary was searched; Words then holds partial matches.
type Result struct {
	Words   []string     `json:"words"`
	Context QueryContext `json:"context"`
	Err     error        `json:"-"`
}

type Option func(*Finder)

func WithMaxResults(n int) Option {
	return func(f *Finder) {
		if n > 0 {
			f.maxResults = n
		}
	}
}

// WithLanguage selects the collation used to order merged results. Unknown
// tags fall back to the root collation.
func WithLanguage(tag string) Option {
	return func(f *Finder) {
		if t, err := language.Parse(tag); err == nil {
			f.lang = t
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(f *Finder) {
		if log != nil {
			f.log = log
		}
	}
}

type Finder struct {
	maxResults int
	lang       language.Tag
	log        *slog.Logger
	collators  sync.Pool
}

func New(opts ...Option) *Finder {
	f := &Finder{
		maxResults: DefaultMaxResults,
		lang:       language.Und,
		log:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(f)
	}
	lang := f.lang
	f.collators.New = func() any {
		return collate.New(lang)
	}
	return f
}

func (f *Finder) MaxResults() int {
	return f.maxResults
}

// Context returns the context a query against target is tagged with.
func (f *Finder) Context(query string, target group.Group) QueryContext {
	return QueryContext{
		Query:   strings.TrimSpace(query),
		Target:  target.Name,
		Version: target.Version,
	}
}

// PrefixMatch searches every dictionary of target for headwords starting
// with query. The channel receives exactly one Result. An empty query
// yields an empty result without touching any dictionary.
func (f *Finder) PrefixMatch(ctx context.Context, query string, target group.Group) <-chan Result {
	out := make(chan Result, 1)
	qc := f.Context(query, target)
	if qc.Query == "" {
		out <- Result{Context: qc}
		close(out)
		return out
	}
	observability.PrefixQueries.Add(1)
	go func() {
		defer close(out)
		out <- f.match(ctx, qc, target)
	}()
	return out
}

func (f *Finder) match(ctx context.Context, qc QueryContext, target group.Group) Result {
	found := make([][]ranked, len(target.Dicts))
	var g errgroup.Group
	for i, d := range target.Dicts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found[i] = f.best(d, qc.Query)
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		f.log.Debug("prefix match interrupted", "query", qc.Query, "error", err)
	}
	return Result{Words: f.merge(found), Context: qc, Err: err}
}

// ranked is a headword with its collation key.
type ranked struct {
	key  []byte
	word string
}

func compareRanked(a, b ranked) int {
	if c := bytes.Compare(a.key, b.key); c != 0 {
		return c
	}
	return strings.Compare(a.word, b.word)
}

// best returns the first maxResults headwords of d matching query in
// collation order. Index order differs from collation order, so every match
// is ranked.
func (f *Finder) best(d dict.Dictionary, query string) []ranked {
	c := f.collators.Get().(*collate.Collator)
	defer f.collators.Put(c)

	var (
		buf collate.Buffer
		top []ranked
	)
	d.MatchPrefix(query, func(w string) bool {
		cand := ranked{key: c.KeyFromString(&buf, w), word: w}
		i := sort.Search(len(top), func(i int) bool { return compareRanked(top[i], cand) >= 0 })
		switch {
		case i < len(top) && top[i].word == w:
		case i >= f.maxResults:
		default:
			cand.key = append([]byte(nil), cand.key...)
			if len(top) < f.maxResults {
				top = append(top, ranked{})
			}
			copy(top[i+1:], top[i:])
			top[i] = cand
		}
		buf.Reset()
		return true
	})
	return top
}

// merge de-duplicates exact headwords across dictionaries and orders them
// by collation, ties broken bytewise, keeping at most maxResults.
func (f *Finder) merge(found [][]ranked) []string {
	var all []ranked
	for _, list := range found {
		all = append(all, list...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return compareRanked(all[i], all[j]) < 0
	})
	words := make([]string, 0, min(len(all), f.maxResults))
	for _, r := range all {
		if len(words) == f.maxResults {
			break
		}
		if n := len(words); n > 0 && words[n-1] == r.word {
			continue
		}
		words = append(words, r.word)
	}
	if len(words) == 0 {
		return nil
	}
	return words
}
