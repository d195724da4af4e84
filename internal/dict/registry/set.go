package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sagerenn/gdengine/internal/dict"
)

// Set is an immutable snapshot of the loaded dictionaries in scan order.
type Set struct {
	Version uint64
	dicts   []dict.Dictionary
	byID    map[dict.ID]dict.Dictionary
}

func emptySet() *Set {
	return &Set{byID: map[dict.ID]dict.Dictionary{}}
}

func newSet(version uint64, dicts []dict.Dictionary) *Set {
	s := &Set{
		Version: version,
		dicts:   dicts,
		byID:    make(map[dict.ID]dict.Dictionary, len(dicts)),
	}
	for _, d := range dicts {
		s.byID[d.ID()] = d
	}
	return s
}

// Dicts returns the handles in order. The slice must not be modified.
func (s *Set) Dicts() []dict.Dictionary {
	return s.dicts
}

func (s *Set) Len() int {
	return len(s.dicts)
}

func (s *Set) Get(id dict.ID) (dict.Dictionary, bool) {
	d, ok := s.byID[id]
	return d, ok
}

// Totals sums article and word counts over the set.
func (s *Set) Totals() (articles, words int) {
	for _, d := range s.dicts {
		articles += d.ArticleCount()
		words += d.WordCount()
	}
	return articles, words
}

type State int32

const (
	Idle State = iota
	Scanning
	Parsing
	Swapping
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Parsing:
		return "parsing"
	case Swapping:
		return "swapping"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// FileError is a per-file or per-directory failure recorded in a Report.
type FileError struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

func (e FileError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e FileError) Unwrap() error {
	return e.Err
}

func (e FileError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}{e.Path, e.Err.Error()})
}

// Report describes one completed scan.
type Report struct {
	Version      uint64        `json:"version"`
	Dictionaries int           `json:"dictionaries"`
	Articles     int           `json:"articles"`
	Words        int           `json:"words"`
	Indexed      int           `json:"indexed"`
	Failures     []FileError   `json:"failures,omitempty"`
	Skipped      int           `json:"skipped"`
	Reclaimed    []string      `json:"reclaimed,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Status renders the counts shown after a scan.
func (r Report) Status() string {
	return fmt.Sprintf("%d dictionaries, %d articles, %d words", r.Dictionaries, r.Articles, r.Words)
}

// Status is a point-in-time view of the registry.
type Status struct {
	State        string    `json:"state"`
	Version      uint64    `json:"version"`
	Dictionaries int       `json:"dictionaries"`
	Articles     int       `json:"articles"`
	Words        int       `json:"words"`
	Groups       int       `json:"groups"`
	LastScan     time.Time `json:"last_scan"`
	LastError    string    `json:"last_error,omitempty"`
}
