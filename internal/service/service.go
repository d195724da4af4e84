// Package service combines the registry and the finder into the operations
// exposed by the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sagerenn/gdengine/internal/cache"
	"github.com/sagerenn/gdengine/internal/dict"
	"github.com/sagerenn/gdengine/internal/dict/registry"
	"github.com/sagerenn/gdengine/internal/dict/wordindex"
	"github.com/sagerenn/gdengine/internal/finder"
	"github.com/sagerenn/gdengine/internal/group"
	"github.com/sagerenn/gdengine/internal/observability"
)

var (
	ErrEmptyQuery        = errors.New("empty query")
	ErrUnknownDictionary = errors.New("unknown dictionary")
)

type Service struct {
	reg    *registry.Registry
	finder *finder.Finder
	cache  *cache.Cache[string, []ArticleResult]
	log    *slog.Logger
}

// ArticleResult is the raw article of one dictionary.
type ArticleResult struct {
	DictID   dict.ID `json:"dict_id"`
	DictName string  `json:"dict_name"`
	Format   string  `json:"format"`
	Body     string  `json:"body"`
}

type DictInfo struct {
	ID               dict.ID `json:"id"`
	Name             string  `json:"name"`
	Format           string  `json:"format"`
	Articles         int     `json:"articles"`
	Words            int     `json:"words"`
	IndexLanguage    string  `json:"index_language,omitempty"`
	ContentsLanguage string  `json:"contents_language,omitempty"`
}

// languageTagged is implemented by formats whose headers name the headword
// and article languages.
type languageTagged interface {
	Languages() (index, contents string)
}

type GroupInfo struct {
	Name         string     `json:"name"`
	Version      uint64     `json:"version"`
	Dictionaries []DictInfo `json:"dictionaries"`
}

type Option func(*Service)

func WithCache(capacity int, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache.New[string, []ArticleResult](capacity, ttl)
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func New(reg *registry.Registry, f *finder.Finder, opts ...Option) *Service {
	s := &Service{
		reg:    reg,
		finder: f,
		cache:  cache.New[string, []ArticleResult](1024, 5*time.Minute),
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Finder() *finder.Finder {
	return s.finder
}

// Target resolves a group name; the empty name is the whole set.
func (s *Service) Target(groupName string) (group.Group, error) {
	return s.reg.Target(strings.TrimSpace(groupName))
}

// Prefix runs a prefix match against the named group and waits for it.
func (s *Service) Prefix(ctx context.Context, query, groupName string) (finder.Result, error) {
	target, err := s.Target(groupName)
	if err != nil {
		return finder.Result{}, err
	}
	select {
	case res := <-s.finder.PrefixMatch(ctx, query, target):
		return res, res.Err
	case <-ctx.Done():
		return finder.Result{}, ctx.Err()
	}
}

// Article collects the article for word from every dictionary of the named
// group, in group order. Synonym mappings found in any member are passed to
// every member as alternate forms. It returns dict.ErrNotFound when no
// dictionary has the word.
func (s *Service) Article(ctx context.Context, word, groupName string) ([]ArticleResult, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil, ErrEmptyQuery
	}
	target, err := s.Target(groupName)
	if err != nil {
		return nil, err
	}
	observability.ArticleLookups.Add(1)
	key := fmt.Sprintf("%s|%d|%s", target.Name, target.Version, wordindex.Normalize(word))
	if res, ok := s.cache.Get(key); ok {
		observability.ArticleCacheHits.Add(1)
		return res, nil
	}

	alts := s.alternates(word, target.Dicts)
	var out []ArticleResult
	for _, d := range target.Dicts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := d.Article(word, alts)
		switch {
		case errors.Is(err, dict.ErrNotFound):
			continue
		case err != nil:
			s.log.Warn("article fetch failed", "dict", d.ID(), "word", word, "error", err)
			continue
		}
		out = append(out, ArticleResult{
			DictID:   d.ID(),
			DictName: d.Name(),
			Format:   d.Format(),
			Body:     string(body),
		})
	}
	if len(out) == 0 {
		return nil, dict.ErrNotFound
	}
	s.cache.Set(key, out)
	return out, nil
}

func (s *Service) alternates(word string, dicts []dict.Dictionary) []string {
	norm := wordindex.Normalize(word)
	seen := map[string]bool{norm: true}
	var alts []string
	for _, d := range dicts {
		for _, h := range d.HeadwordsForSynonym(word) {
			n := wordindex.Normalize(h)
			if !seen[n] {
				seen[n] = true
				alts = append(alts, h)
			}
		}
	}
	return alts
}

// Synonyms maps word to its headwords in one dictionary.
func (s *Service) Synonyms(_ context.Context, dictID, word string) ([]string, error) {
	d, ok := s.reg.Snapshot().Get(dict.ID(strings.TrimSpace(dictID)))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDictionary, dictID)
	}
	word = strings.TrimSpace(word)
	if word == "" {
		return nil, ErrEmptyQuery
	}
	return d.HeadwordsForSynonym(word), nil
}

func (s *Service) Dictionaries() []DictInfo {
	return infos(s.reg.Snapshot().Dicts())
}

func (s *Service) Groups() []GroupInfo {
	groups := s.reg.Groups()
	out := make([]GroupInfo, 0, len(groups))
	for _, g := range groups {
		out = append(out, GroupInfo{Name: g.Name, Version: g.Version, Dictionaries: infos(g.Dicts)})
	}
	return out
}

func (s *Service) Status() registry.Status {
	return s.reg.Status()
}

// Reload rescans and waits for the outcome.
func (s *Service) Reload(ctx context.Context) (registry.Report, error) {
	select {
	case out := <-s.reg.Reload(ctx):
		if out.Err == nil {
			s.cache.Purge()
		}
		return out.Report, out.Err
	case <-ctx.Done():
		return registry.Report{}, ctx.Err()
	}
}

func infos(dicts []dict.Dictionary) []DictInfo {
	out := make([]DictInfo, 0, len(dicts))
	for _, d := range dicts {
		info := DictInfo{
			ID:       d.ID(),
			Name:     d.Name(),
			Format:   d.Format(),
			Articles: d.ArticleCount(),
			Words:    d.WordCount(),
		}
		if lt, ok := d.(languageTagged); ok {
			info.IndexLanguage, info.ContentsLanguage = lt.Languages()
		}
		out = append(out, info)
	}
	return out
}
