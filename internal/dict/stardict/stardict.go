// Package stardict reads StarDict dictionaries (.ifo/.idx/.dict/.syn).
package stardict

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	std "github.com/ianlewis/go-stardict"
	sddict "github.com/ianlewis/go-stardict/dict"
	"github.com/ianlewis/go-stardict/idx"
	"github.com/ianlewis/go-stardict/syn"

	"github.com/sagerenn/gdengine/internal/dict"
	"github.com/sagerenn/gdengine/internal/dict/wordindex"
)

const (
	formatName = "stardict"
	ifoMagic   = "StarDict's dict ifo file"

	maxIfoSize = 64 << 10
	maxEntries = 50_000_000
)

var errClosed = errors.New("stardict: dictionary closed")

type entry struct {
	Word   string
	Offset uint64
	Size   uint32
}

type payload struct {
	Name     string
	Entries  []entry
	Index    *wordindex.Index
	Synonyms *wordindex.Index
}

// Dictionary is a loaded StarDict dictionary. The .dict file is opened on
// the first article fetch.
type Dictionary struct {
	id      dict.ID
	ifoPath string
	p       *payload

	openOnce sync.Once
	openErr  error
	mu       sync.Mutex
	closed   bool
	sd       *std.Stardict
	dict     *sddict.Dict
}

// Format implements dict.Format for StarDict.
type Format struct{}

func (Format) Name() string {
	return formatName
}

func (Format) Probe(path string, head []byte) bool {
	if !strings.EqualFold(filepath.Ext(path), ".ifo") {
		return false
	}
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	return bytes.HasPrefix(head, []byte(ifoMagic))
}

func (Format) Parse(ctx context.Context, ifoPath string, store dict.IndexStore, indexing func(string)) (dict.Dictionary, error) {
	info, err := os.Stat(ifoPath)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxIfoSize {
		return nil, fmt.Errorf("ifo file too large: %d bytes", info.Size())
	}
	id, err := dict.MakeID(formatName, sources(ifoPath)...)
	if err != nil {
		return nil, err
	}
	var p payload
	if ok, err := store.Read(id, formatName, &p); err == nil && ok {
		return &Dictionary{id: id, ifoPath: ifoPath, p: &p}, nil
	}

	sd, err := std.Open(ifoPath, nil)
	if err != nil {
		return nil, err
	}
	name := sd.Bookname()
	if indexing != nil {
		indexing(name)
	}
	built, err := build(ctx, sd, ifoPath)
	if err != nil {
		_ = sd.Close()
		return nil, err
	}
	built.Name = name
	if err := store.Write(id, formatName, built); err != nil {
		_ = sd.Close()
		return nil, err
	}
	d := &Dictionary{id: id, ifoPath: ifoPath, p: built, sd: sd}
	return d, nil
}

func build(ctx context.Context, sd *std.Stardict, ifoPath string) (*payload, error) {
	sc, err := sd.IndexScanner()
	if err != nil {
		return nil, err
	}
	defer sc.Close()

	var (
		b       wordindex.Builder
		entries = make([]entry, 0, 1024)
	)
	for sc.Scan() {
		w := sc.Word()
		if len(entries) >= maxEntries {
			return nil, errors.New("too many index entries")
		}
		if len(entries)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		b.Add(w.Word, len(entries))
		entries = append(entries, entry{Word: w.Word, Offset: w.Offset, Size: w.Size})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("empty index")
	}

	synIdx, err := buildSynonyms(ifoPath, entries, &b)
	if err != nil {
		return nil, err
	}
	return &payload{Entries: entries, Index: b.Build(), Synonyms: synIdx}, nil
}

// buildSynonyms reads the optional .syn file. Synonyms are added to the
// headword index as well so prefix matching finds them.
func buildSynonyms(ifoPath string, entries []entry, headwords *wordindex.Builder) (*wordindex.Index, error) {
	synPath, err := findSynPath(ifoPath)
	if err != nil {
		return nil, nil
	}
	rc, err := openMaybeCompressed(synPath)
	if err != nil {
		return nil, err
	}
	sc, err := syn.NewScanner(rc)
	if err != nil {
		_ = rc.Close()
		return nil, err
	}
	defer sc.Close()

	var b wordindex.Builder
	for sc.Scan() {
		w := sc.Word()
		ref := int(w.OriginalWordIndex)
		if ref < 0 || ref >= len(entries) {
			continue
		}
		b.Add(w.Word, ref)
		headwords.Add(w.Word, ref)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

func (d *Dictionary) ID() dict.ID {
	return d.id
}

func (d *Dictionary) Name() string {
	return d.p.Name
}

func (d *Dictionary) Format() string {
	return formatName
}

func (d *Dictionary) ArticleCount() int {
	return len(d.p.Entries)
}

func (d *Dictionary) WordCount() int {
	return d.p.Index.Len()
}

func (d *Dictionary) Prefix(prefix string, limit int) []string {
	return d.p.Index.Prefix(prefix, limit)
}

func (d *Dictionary) MatchPrefix(prefix string, yield func(word string) bool) {
	d.p.Index.MatchPrefix(prefix, yield)
}

func (d *Dictionary) Article(word string, alts []string) ([]byte, error) {
	refs := d.p.Index.Resolve(word, alts)
	if len(refs) == 0 {
		return nil, dict.ErrNotFound
	}
	if err := d.open(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	dd := d.dict
	if dd == nil {
		return nil, errClosed
	}

	var out bytes.Buffer
	seen := make(map[int]bool, len(refs))
	for _, r := range refs {
		if seen[r] || r < 0 || r >= len(d.p.Entries) {
			continue
		}
		seen[r] = true
		e := d.p.Entries[r]
		w, err := dd.Word(&idx.Word{Word: e.Word, Offset: e.Offset, Size: e.Size})
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Word, err)
		}
		for _, data := range w.Data {
			// Upper-case types carry binary resources.
			if data.Type < 'a' || data.Type > 'z' || len(data.Data) == 0 {
				continue
			}
			if out.Len() > 0 {
				out.WriteByte('\n')
			}
			out.Write(bytes.TrimRight(data.Data, "\x00"))
		}
	}
	return out.Bytes(), nil
}

func (d *Dictionary) HeadwordsForSynonym(word string) []string {
	refs := d.p.Synonyms.Lookup(word)
	if len(refs) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if r < 0 || r >= len(d.p.Entries) {
			continue
		}
		w := d.p.Entries[r].Word
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

func (d *Dictionary) open() error {
	d.openOnce.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.closed {
			d.openErr = errClosed
			return
		}
		if d.sd == nil {
			sd, err := std.Open(d.ifoPath, nil)
			if err != nil {
				d.openErr = err
				return
			}
			d.sd = sd
		}
		d.dict, d.openErr = d.sd.Dict()
	})
	return d.openErr
}

// Close releases the open files. A closed handle never reopens them.
func (d *Dictionary) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.sd == nil {
		return nil
	}
	err := d.sd.Close()
	d.sd = nil
	d.dict = nil
	return err
}
