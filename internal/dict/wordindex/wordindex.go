// Package wordindex holds the sorted headword table shared by all formats.
package wordindex

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Index maps normalized headwords to article references. Fields are exported
// for gob.
type Index struct {
	Norm  []string
	Words []string
	Refs  []int
}

// Builder collects headwords before sorting.
type Builder struct {
	items []item
}

type item struct {
	norm string
	word string
	ref  int
}

// Normalize folds case and trims surrounding space.
func Normalize(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Add records word as pointing to article ref. Empty words are ignored.
func (b *Builder) Add(word string, ref int) {
	word = strings.TrimSpace(word)
	if word == "" {
		return
	}
	b.items = append(b.items, item{norm: Normalize(word), word: word, ref: ref})
}

// Len returns the number of headwords added so far.
func (b *Builder) Len() int {
	return len(b.items)
}

// Build sorts the collected headwords by normalized form.
func (b *Builder) Build() *Index {
	sort.SliceStable(b.items, func(i, j int) bool {
		if b.items[i].norm == b.items[j].norm {
			return b.items[i].word < b.items[j].word
		}
		return b.items[i].norm < b.items[j].norm
	})
	idx := &Index{
		Norm:  make([]string, 0, len(b.items)),
		Words: make([]string, 0, len(b.items)),
		Refs:  make([]int, 0, len(b.items)),
	}
	for _, it := range b.items {
		idx.Norm = append(idx.Norm, it.norm)
		idx.Words = append(idx.Words, it.word)
		idx.Refs = append(idx.Refs, it.ref)
	}
	b.items = nil
	return idx
}

// Len returns the number of headword entries.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.Norm)
}

// Lookup returns the article references for an exact (case-folded) match.
func (x *Index) Lookup(word string) []int {
	if x == nil {
		return nil
	}
	key := Normalize(word)
	if key == "" {
		return nil
	}
	i := sort.SearchStrings(x.Norm, key)
	var out []int
	for ; i < len(x.Norm) && x.Norm[i] == key; i++ {
		out = append(out, x.Refs[i])
	}
	return out
}

// Headwords returns the original spellings stored under word.
func (x *Index) Headwords(word string) []string {
	if x == nil {
		return nil
	}
	key := Normalize(word)
	if key == "" {
		return nil
	}
	i := sort.SearchStrings(x.Norm, key)
	var out []string
	for ; i < len(x.Norm) && x.Norm[i] == key; i++ {
		if len(out) == 0 || out[len(out)-1] != x.Words[i] {
			out = append(out, x.Words[i])
		}
	}
	return out
}

// Prefix returns up to limit distinct headwords whose normalized form starts
// with the normalized prefix.
func (x *Index) Prefix(prefix string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	var out []string
	x.MatchPrefix(prefix, func(w string) bool {
		out = append(out, w)
		return len(out) < limit
	})
	return out
}

// MatchPrefix calls yield with every distinct headword whose normalized form
// starts with the normalized prefix, in index order, until yield returns
// false.
func (x *Index) MatchPrefix(prefix string, yield func(word string) bool) {
	if x == nil {
		return
	}
	pfx := Normalize(prefix)
	if pfx == "" {
		return
	}
	seen := make(map[string]struct{})
	for i := sort.SearchStrings(x.Norm, pfx); i < len(x.Norm); i++ {
		if !strings.HasPrefix(x.Norm[i], pfx) {
			return
		}
		w := x.Words[i]
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		if !yield(w) {
			return
		}
	}
}

// Resolve returns the references of the first form among word and alts that
// is present in the index.
func (x *Index) Resolve(word string, alts []string) []int {
	if refs := x.Lookup(word); len(refs) > 0 {
		return refs
	}
	for _, alt := range alts {
		if refs := x.Lookup(alt); len(refs) > 0 {
			return refs
		}
	}
	return nil
}
