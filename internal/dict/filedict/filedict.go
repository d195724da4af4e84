// Package filedict reads plain word lists: tab-separated text or a JSON
// array of {word, definition} objects.
package filedict

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/sagerenn/gdengine/internal/dict"
	"github.com/sagerenn/gdengine/internal/dict/wordindex"
)

const formatName = "filedict"

// maxFileSize bounds the input since the whole list is held in memory.
const maxFileSize = 256 << 20

type entry struct {
	Word       string `json:"word"`
	Definition string `json:"definition"`
}

type payload struct {
	Name     string
	Index    *wordindex.Index
	Articles []string
}

// Dictionary is a loaded word list. Article bodies live in the index.
type Dictionary struct {
	id       dict.ID
	name     string
	index    *wordindex.Index
	articles []string
}

// Format implements dict.Format for word lists.
type Format struct{}

func (Format) Name() string {
	return formatName
}

func (Format) Probe(path string, head []byte) bool {
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		trimmed := bytes.TrimLeft(head, " \t\r\n")
		return len(trimmed) > 0 && trimmed[0] == '['
	case ".tsv", ".tab", ".txt":
		for _, line := range bytes.Split(head, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 || line[0] == '#' {
				continue
			}
			return bytes.IndexByte(line, '\t') > 0
		}
	}
	return false
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
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if indexing != nil {
		indexing(name)
	}
	entries, err := readEntries(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var b wordindex.Builder
	articles := make([]string, 0, len(entries))
	for _, e := range entries {
		word := strings.TrimSpace(e.Word)
		def := strings.TrimSpace(e.Definition)
		if word == "" || def == "" {
			continue
		}
		b.Add(word, len(articles))
		articles = append(articles, def)
	}
	if len(articles) == 0 {
		return nil, errors.New("no entries")
	}
	p = payload{Name: name, Index: b.Build(), Articles: articles}
	if err := store.Write(id, formatName, &p); err != nil {
		return nil, err
	}
	return newDictionary(id, &p), nil
}

func readEntries(path string) ([]entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxFileSize {
		return nil, errors.New("file too large")
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var entries []entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		word, def, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		entries = append(entries, entry{Word: word, Definition: def})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func newDictionary(id dict.ID, p *payload) *Dictionary {
	return &Dictionary{
		id:       id,
		name:     p.Name,
		index:    p.Index,
		articles: p.Articles,
	}
}

func (d *Dictionary) ID() dict.ID {
	return d.id
}

func (d *Dictionary) Name() string {
	return d.name
}

func (d *Dictionary) Format() string {
	return formatName
}

func (d *Dictionary) ArticleCount() int {
	return len(d.articles)
}

func (d *Dictionary) WordCount() int {
	return d.index.Len()
}

func (d *Dictionary) Prefix(prefix string, limit int) []string {
	return d.index.Prefix(prefix, limit)
}

func (d *Dictionary) MatchPrefix(prefix string, yield func(word string) bool) {
	d.index.MatchPrefix(prefix, yield)
}

func (d *Dictionary) Article(word string, alts []string) ([]byte, error) {
	refs := d.index.Resolve(word, alts)
	if len(refs) == 0 {
		return nil, dict.ErrNotFound
	}
	defs := make([]string, 0, len(refs))
	for _, r := range refs {
		if r >= 0 && r < len(d.articles) {
			defs = append(defs, d.articles[r])
		}
	}
	return []byte(strings.Join(defs, "\n")), nil
}

// HeadwordsForSynonym returns the stored spellings of word; word lists carry
// no synonym table.
func (d *Dictionary) HeadwordsForSynonym(word string) []string {
	return d.index.Headwords(word)
}

func (d *Dictionary) Close() error {
	return nil
}
