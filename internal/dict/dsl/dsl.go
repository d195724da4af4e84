// Package dsl reads ABBYY Lingvo DSL source dictionaries, plain or
// dictzip-compressed (.dsl.dz).
package dsl

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sagerenn/gdengine/internal/dict"
	"github.com/sagerenn/gdengine/internal/dict/wordindex"
)

const formatName = "dsl"

// maxDecodedSize bounds the decoded text of one dictionary.
const maxDecodedSize = 512 << 20

var errTooLarge = errors.New("dsl: decoded text exceeds size limit")

type payload struct {
	Name             string
	IndexLanguage    string
	ContentsLanguage string
	Index            *wordindex.Index
	Articles         []string
}

// Dictionary is a loaded DSL dictionary. Article bodies are kept in the
// index in their DSL markup.
type Dictionary struct {
	id       dict.ID
	p        *payload
	articles []string
}

// Format implements dict.Format for DSL files.
type Format struct{}

func (Format) Name() string {
	return formatName
}

func (Format) Probe(path string, head []byte) bool {
	compressed, ok := dslExt(path)
	if !ok {
		return false
	}
	if compressed {
		zr, err := gzip.NewReader(bytes.NewReader(head))
		if err != nil {
			return false
		}
		buf := make([]byte, 256)
		n, _ := io.ReadFull(zr, buf)
		head = buf[:n]
	}
	text, _, err := transform.Bytes(decoderFor(head).NewDecoder(), head)
	if err != nil && len(text) == 0 {
		return false
	}
	return strings.HasPrefix(strings.TrimLeft(string(text), "\ufeff \t\r\n"), "#NAME")
}

func (Format) Parse(ctx context.Context, path string, store dict.IndexStore, indexing func(string)) (dict.Dictionary, error) {
	id, err := dict.MakeID(formatName, dict.Source{Role: "data", Path: path})
	if err != nil {
		return nil, err
	}
	var p payload
	if ok, err := store.Read(id, formatName, &p); err == nil && ok {
		return newDictionary(id, &p), nil
	}
	text, err := readText(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := parse(text, indexing)
	if err != nil {
		return nil, err
	}
	if parsed.Name == "" {
		parsed.Name = baseName(path)
	}
	if err := store.Write(id, formatName, parsed); err != nil {
		return nil, err
	}
	return newDictionary(id, parsed), nil
}

func dslExt(path string) (compressed, ok bool) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".dsl"):
		return false, true
	case strings.HasSuffix(lower, ".dsl.dz"):
		return true, true
	}
	return false, false
}

func baseName(path string) string {
	name := filepath.Base(path)
	lower := strings.ToLower(name)
	if i := strings.LastIndex(lower, ".dsl"); i > 0 {
		return name[:i]
	}
	return name
}

// decoderFor picks the text encoding from a byte order mark, falling back
// to a NUL heuristic for unmarked UTF-16 and to UTF-8 otherwise.
func decoderFor(head []byte) encoding.Encoding {
	switch {
	case bytes.HasPrefix(head, []byte{0xff, 0xfe}):
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	case bytes.HasPrefix(head, []byte{0xfe, 0xff}):
		return unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
	case bytes.HasPrefix(head, []byte{0xef, 0xbb, 0xbf}):
		return unicode.UTF8BOM
	case len(head) >= 2 && head[0] != 0 && head[1] == 0:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case len(head) >= 2 && head[0] == 0 && head[1] != 0:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}
	return unicode.UTF8
}

func readText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var r io.Reader = f
	if compressed, _ := dslExt(path); compressed {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return "", err
		}
		defer zr.Close()
		r = zr
	}
	return decodeText(r, maxDecodedSize)
}

// decodeText decodes r to UTF-8 and fails with errTooLarge when the decoded
// text exceeds limit bytes.
func decodeText(r io.Reader, limit int64) (string, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(4)
	dec := transform.NewReader(br, decoderFor(head).NewDecoder())
	raw, err := io.ReadAll(io.LimitReader(dec, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(raw)) > limit {
		return "", errTooLarge
	}
	return string(raw), nil
}

func parse(text string, indexing func(string)) (*payload, error) {
	p := &payload{}
	var (
		b         wordindex.Builder
		headwords []string
		body      []string
		inHeader  = true
	)
	flush := func() {
		if len(headwords) > 0 && len(body) > 0 {
			ref := len(p.Articles)
			p.Articles = append(p.Articles, strings.Join(body, "\n"))
			for _, hw := range headwords {
				for _, form := range expandHeadword(hw) {
					b.Add(form, ref)
				}
			}
		}
		headwords = nil
		body = nil
	}

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if inHeader {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strings.TrimSpace(line) == "" {
			if len(body) > 0 {
				flush()
			}
			continue
		}
		switch {
		case line[0] == ' ' || line[0] == '\t':
			if len(headwords) == 0 {
				continue
			}
			body = append(body, strings.TrimSpace(line))
		case line[0] == '#' && inHeader:
			parseHeader(p, line)
		default:
			if inHeader {
				inHeader = false
				if indexing != nil {
					name := p.Name
					if name == "" {
						name = "dsl"
					}
					indexing(name)
				}
			}
			if len(body) > 0 {
				flush()
			}
			headwords = append(headwords, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	if len(p.Articles) == 0 {
		return nil, errors.New("dsl: no articles")
	}
	p.Index = b.Build()
	return p, nil
}

func parseHeader(p *payload, line string) {
	key, value, _ := strings.Cut(strings.TrimPrefix(line, "#"), " ")
	value = strings.Trim(strings.TrimSpace(value), `"`)
	switch strings.ToUpper(key) {
	case "NAME":
		p.Name = value
	case "INDEX_LANGUAGE":
		p.IndexLanguage = value
	case "CONTENTS_LANGUAGE":
		p.ContentsLanguage = value
	}
}

// expandHeadword strips unsorted {...} parts and escapes, and expands an
// optional (...) part into the forms with and without it.
func expandHeadword(raw string) []string {
	var (
		with, without strings.Builder
		braces        int
		optional      bool
		hasOptional   bool
	)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c == '\\' && i+1 < len(raw) {
			i++
			if braces == 0 {
				with.WriteByte(raw[i])
				if !optional {
					without.WriteByte(raw[i])
				}
			}
			continue
		}
		switch {
		case c == '{':
			braces++
			continue
		case c == '}' && braces > 0:
			braces--
			continue
		case braces > 0:
			continue
		case c == '(' && !optional:
			optional = true
			hasOptional = true
			continue
		case c == ')' && optional:
			optional = false
			continue
		}
		with.WriteByte(c)
		if !optional {
			without.WriteByte(c)
		}
	}
	full := strings.Join(strings.Fields(with.String()), " ")
	if !hasOptional {
		return []string{full}
	}
	short := strings.Join(strings.Fields(without.String()), " ")
	if short == "" || short == full {
		return []string{full}
	}
	return []string{full, short}
}

func newDictionary(id dict.ID, p *payload) *Dictionary {
	return &Dictionary{id: id, p: p, articles: p.Articles}
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

// Languages returns the index and contents languages from the header.
func (d *Dictionary) Languages() (index, contents string) {
	return d.p.IndexLanguage, d.p.ContentsLanguage
}

func (d *Dictionary) ArticleCount() int {
	return len(d.articles)
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
	seen := make(map[int]bool, len(refs))
	parts := make([]string, 0, len(refs))
	for _, r := range refs {
		if seen[r] || r < 0 || r >= len(d.articles) {
			continue
		}
		seen[r] = true
		parts = append(parts, d.articles[r])
	}
	return []byte(strings.Join(parts, "\n")), nil
}

func (d *Dictionary) HeadwordsForSynonym(word string) []string {
	return d.p.Index.Headwords(word)
}

func (d *Dictionary) Close() error {
	return nil
}
