package dict

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that a dictionary has no article for a headword.
	// Callers iterating a group treat it as "try the next dictionary".
	ErrNotFound = errors.New("no such word")

	// ErrNotRecognized is returned when no format accepts a candidate file.
	ErrNotRecognized = errors.New("unrecognized dictionary format")
)

// Dictionary is the uniform runtime handle of a loaded dictionary.
// Implementations must be safe for concurrent use.
type Dictionary interface {
	ID() ID
	Name() string
	Format() string
	ArticleCount() int
	WordCount() int

	// Prefix returns up to limit headwords starting with prefix, in the
	// dictionary's index order.
	Prefix(prefix string, limit int) []string

	// MatchPrefix streams every headword starting with prefix, in index
	// order, until yield returns false.
	MatchPrefix(prefix string, yield func(word string) bool)

	// Article returns the raw article body for word. alts are alternate
	// headword forms tried when word itself is missing. It returns
	// ErrNotFound when neither word nor any alternate is present.
	Article(word string, alts []string) ([]byte, error)

	// HeadwordsForSynonym maps a non-canonical form to the headwords its
	// definition is stored under.
	HeadwordsForSynonym(word string) []string

	Close() error
}

// IndexStore is the part of the index store a Format needs.
type IndexStore interface {
	Read(id ID, format string, payload any) (bool, error)
	Write(id ID, format string, payload any) error
}

// Format parses one on-disk dictionary layout.
type Format interface {
	Name() string
	// Probe checks a file signature. head holds at most the first few
	// kilobytes of the file.
	Probe(path string, head []byte) bool
	// Parse builds a handle, reusing the stored index when it is valid.
	// indexing is called with the dictionary name before a rebuild.
	Parse(ctx context.Context, path string, store IndexStore, indexing func(name string)) (Dictionary, error)
}

// ParseError is a per-file failure. It never aborts a scan.
type ParseError struct {
	Path   string
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Path, e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
