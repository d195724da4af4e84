// Package dicttest provides an in-memory dict.Dictionary for tests.
package dicttest

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync/atomic"

	"github.com/sagerenn/gdengine/internal/dict"
	"github.com/sagerenn/gdengine/internal/dict/wordindex"
)

// Dictionary serves articles from a map. Prefix and MatchPrefix calls are
// counted.
type Dictionary struct {
	id       dict.ID
	name     string
	index    *wordindex.Index
	articles []string
	synonyms map[string][]string

	PrefixCalls atomic.Int64
	closed      atomic.Bool
}

// New builds a dictionary whose identifier is derived from name.
func New(name string, articles map[string]string) *Dictionary {
	sum := sha256.Sum256([]byte(name))
	d := &Dictionary{
		id:       dict.ID(hex.EncodeToString(sum[:dict.IDLength/2])),
		name:     name,
		synonyms: make(map[string][]string),
	}
	words := make([]string, 0, len(articles))
	for w := range articles {
		words = append(words, w)
	}
	sort.Strings(words)
	var b wordindex.Builder
	for _, w := range words {
		b.Add(w, len(d.articles))
		d.articles = append(d.articles, articles[w])
	}
	d.index = b.Build()
	return d
}

// Words builds a dictionary whose articles repeat their headword.
func Words(name string, words ...string) *Dictionary {
	m := make(map[string]string, len(words))
	for _, w := range words {
		m[w] = w
	}
	return New(name, m)
}

// WithSynonym maps a non-canonical form to headwords.
func (d *Dictionary) WithSynonym(word string, headwords ...string) *Dictionary {
	d.synonyms[wordindex.Normalize(word)] = headwords
	return d
}

func (d *Dictionary) ID() dict.ID       { return d.id }
func (d *Dictionary) Name() string      { return d.name }
func (d *Dictionary) Format() string    { return "test" }
func (d *Dictionary) ArticleCount() int { return len(d.articles) }
func (d *Dictionary) WordCount() int    { return d.index.Len() }

func (d *Dictionary) Prefix(prefix string, limit int) []string {
	d.PrefixCalls.Add(1)
	return d.index.Prefix(prefix, limit)
}

func (d *Dictionary) MatchPrefix(prefix string, yield func(word string) bool) {
	d.PrefixCalls.Add(1)
	d.index.MatchPrefix(prefix, yield)
}

func (d *Dictionary) Article(word string, alts []string) ([]byte, error) {
	refs := d.index.Resolve(word, alts)
	if len(refs) == 0 {
		return nil, dict.ErrNotFound
	}
	return []byte(d.articles[refs[0]]), nil
}

func (d *Dictionary) HeadwordsForSynonym(word string) []string {
	return d.synonyms[wordindex.Normalize(word)]
}

func (d *Dictionary) Close() error {
	d.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (d *Dictionary) Closed() bool {
	return d.closed.Load()
}
