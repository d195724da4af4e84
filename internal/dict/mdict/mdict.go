// Package mdict reads MDict (.mdx) dictionaries through the ondict decoder.
package mdict

import (
	"context"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/ChaosNyaruko/ondict/decoder"

	"github.com/sagerenn/gdengine/internal/dict"
	"github.com/sagerenn/gdengine/internal/dict/wordindex"
)

const (
	formatName = "mdict"

	maxHeaderSize = 1 << 20
	maxRedirects  = 16
	redirectMark  = "@@@LINK="
	defaultTitle  = "Title (No HTML code allowed)"
)

var (
	errNoKeys = errors.New("mdict: no keys")
	errClosed = errors.New("mdict: dictionary closed")
)

type entry struct {
	Word    string
	Offsets []int
}

type payload struct {
	Name     string
	Encoding string
	Entries  []entry
	Index    *wordindex.Index
}

// recordReader is the part of the ondict decoder used after indexing.
type recordReader interface {
	ReadAtOffset(offset int) []byte
}

// Dictionary is a loaded MDict dictionary. The .mdx file is decoded again on
// the first article fetch when the index came from the store.
type Dictionary struct {
	id   dict.ID
	path string
	p    *payload

	load     func() (recordReader, error)
	openOnce sync.Once
	openErr  error
	mu       sync.Mutex
	closed   bool
	records  recordReader
}

// Format implements dict.Format for MDict.
type Format struct{}

func (Format) Name() string {
	return formatName
}

func (Format) Probe(path string, head []byte) bool {
	if !strings.EqualFold(filepath.Ext(path), ".mdx") || len(head) < 8 {
		return false
	}
	n := binary.BigEndian.Uint32(head)
	if n == 0 || n > maxHeaderSize {
		return false
	}
	body := head[4:]
	if uint32(len(body)) > n {
		body = body[:n]
	}
	tag := strings.TrimPrefix(decodeUTF16(body, false), "\ufeff")
	return strings.HasPrefix(tag, "<Dictionary") || strings.HasPrefix(tag, "<Library_Data")
}

func (Format) Parse(ctx context.Context, path string, store dict.IndexStore, indexing func(string)) (dict.Dictionary, error) {
	hdr, err := readHeader(path)
	if err != nil {
		return nil, err
	}
	id, err := dict.MakeID(formatName, dict.Source{Role: "mdx", Path: path})
	if err != nil {
		return nil, err
	}
	var p payload
	if ok, err := store.Read(id, formatName, &p); err == nil && ok {
		return newDictionary(id, path, &p, nil), nil
	}

	name := hdr.title
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if indexing != nil {
		indexing(name)
	}
	md, err := decode(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	built, err := build(md)
	if err != nil {
		return nil, err
	}
	built.Name = name
	built.Encoding = hdr.encoding
	if err := store.Write(id, formatName, built); err != nil {
		return nil, err
	}
	return newDictionary(id, path, built, md), nil
}

func newDictionary(id dict.ID, path string, p *payload, md *decoder.MDict) *Dictionary {
	d := &Dictionary{id: id, path: path, p: p}
	d.load = func() (recordReader, error) {
		md, err := decode(path)
		if err != nil {
			return nil, err
		}
		return md, nil
	}
	if md != nil {
		d.records = md
		d.openOnce.Do(func() {})
	}
	return d
}

// decode wraps the ondict decoder, which panics on some malformed files.
func decode(path string) (md *decoder.MDict, err error) {
	defer func() {
		if r := recover(); r != nil {
			md, err = nil, fmt.Errorf("mdict: decode: %v", r)
		}
	}()
	md = &decoder.MDict{}
	if err := md.Decode(path, false); err != nil {
		return nil, err
	}
	return md, nil
}

func build(md *decoder.MDict) (*payload, error) {
	_ = md.Keys() // populate keymap
	keymap := mdictKeyMap(md)
	if len(keymap) == 0 {
		return nil, errNoKeys
	}
	words := make([]string, 0, len(keymap))
	for w := range keymap {
		words = append(words, w)
	}
	sort.Strings(words)

	var b wordindex.Builder
	entries := make([]entry, 0, len(words))
	for _, w := range words {
		offs := keymap[w]
		o := make([]int, 0, len(offs))
		for _, v := range offs {
			o = append(o, int(v))
		}
		b.Add(w, len(entries))
		entries = append(entries, entry{Word: w, Offsets: o})
	}
	return &payload{Entries: entries, Index: b.Build()}, nil
}

func mdictKeyMap(m *decoder.MDict) map[string][]uint64 {
	v := reflect.ValueOf(m).Elem().FieldByName("keymap")
	if !v.IsValid() || v.Kind() != reflect.Map || v.IsNil() {
		return nil
	}
	out := make(map[string][]uint64, v.Len())
	for _, k := range v.MapKeys() {
		vals := v.MapIndex(k)
		offs := make([]uint64, 0, vals.Len())
		for i := 0; i < vals.Len(); i++ {
			offs = append(offs, vals.Index(i).Uint())
		}
		out[k.String()] = offs
	}
	return out
}

type header struct {
	title    string
	encoding string
}

// readHeader reads the UTF-16LE XML header that precedes the key blocks.
func readHeader(path string) (header, error) {
	f, err := os.Open(path)
	if err != nil {
		return header{}, err
	}
	defer f.Close()

	var size uint32
	if err := binary.Read(f, binary.BigEndian, &size); err != nil {
		return header{}, err
	}
	if size == 0 || size > maxHeaderSize {
		return header{}, fmt.Errorf("mdict: bad header size %d", size)
	}
	raw := make([]byte, size)
	if _, err := io.ReadFull(f, raw); err != nil {
		return header{}, err
	}
	return parseHeader(decodeUTF16(raw, false))
}

func parseHeader(text string) (header, error) {
	text = strings.TrimPrefix(strings.TrimRight(text, "\x00\r\n"), "\ufeff")
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err != nil {
			return header{}, fmt.Errorf("mdict: header: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		var h header
		for _, a := range start.Attr {
			switch a.Name.Local {
			case "Title":
				h.title = strings.TrimSpace(a.Value)
			case "Encoding":
				h.encoding = strings.TrimSpace(a.Value)
			}
		}
		if h.title == defaultTitle {
			h.title = ""
		}
		return h, nil
	}
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
	if d.records == nil {
		return nil, errClosed
	}

	visited := make(map[string]bool)
	for _, r := range refs {
		visited[wordindex.Normalize(d.p.Entries[r].Word)] = true
	}
	var bodies []string
	if err := d.collect(refs, visited, 0, &bodies); err != nil {
		return nil, err
	}
	if len(bodies) == 0 {
		return nil, dict.ErrNotFound
	}
	return []byte(strings.Join(bodies, "\n")), nil
}

// collect appends the bodies of refs, following redirects to words not yet
// visited. d.mu must be held.
func (d *Dictionary) collect(refs []int, visited map[string]bool, depth int, bodies *[]string) error {
	seen := make(map[string]bool)
	for _, r := range refs {
		if r < 0 || r >= len(d.p.Entries) {
			continue
		}
		for _, off := range d.p.Entries[r].Offsets {
			raw, err := d.read(off)
			if err != nil {
				return err
			}
			if target := parseRedirect(raw); target != "" {
				norm := wordindex.Normalize(target)
				if visited[norm] || depth >= maxRedirects {
					continue
				}
				visited[norm] = true
				if err := d.collect(d.p.Index.Lookup(target), visited, depth+1, bodies); err != nil {
					return err
				}
				continue
			}
			body := strings.TrimSpace(raw)
			if body == "" || seen[body] {
				continue
			}
			seen[body] = true
			*bodies = append(*bodies, body)
		}
	}
	return nil
}

func (d *Dictionary) read(off int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mdict: read record at %d: %v", off, r)
		}
	}()
	return strings.TrimRight(decodeText(d.records.ReadAtOffset(off), d.p.Encoding), "\x00"), nil
}

// HeadwordsForSynonym returns the redirect targets of word's entries.
func (d *Dictionary) HeadwordsForSynonym(word string) []string {
	refs := d.p.Index.Lookup(word)
	if len(refs) == 0 || d.open() != nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.records == nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, r := range refs {
		for _, off := range d.p.Entries[r].Offsets {
			raw, err := d.read(off)
			if err != nil {
				return out
			}
			if target := parseRedirect(raw); target != "" && !seen[target] {
				seen[target] = true
				out = append(out, target)
			}
		}
	}
	return out
}

func (d *Dictionary) open() error {
	d.openOnce.Do(func() {
		d.mu.Lock()
		closed := d.closed
		d.mu.Unlock()
		if closed {
			d.openErr = errClosed
			return
		}
		rec, err := d.load()
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.closed {
			d.openErr = errClosed
			return
		}
		d.records, d.openErr = rec, err
	})
	return d.openErr
}

// Close drops the record reader. A closed handle never decodes the file
// again.
func (d *Dictionary) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.records = nil
	return nil
}

func parseRedirect(raw string) string {
	if !strings.HasPrefix(raw, redirectMark) {
		return ""
	}
	target := strings.TrimPrefix(raw, redirectMark)
	target = strings.TrimRight(target, "\x00")
	return strings.TrimSpace(target)
}

var _ dict.Dictionary = (*Dictionary)(nil)
