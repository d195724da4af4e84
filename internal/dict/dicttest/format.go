package dicttest

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/sagerenn/gdengine/internal/dict"
)

// Format reads ".words" files made of "word<TAB>article" lines and
// "=form<TAB>headword" synonym lines. Identifiers follow the file content;
// nothing is kept in the index store.
type Format struct{}

func (Format) Name() string {
	return "words"
}

func (Format) Probe(path string, _ []byte) bool {
	return filepath.Ext(path) == ".words"
}

func (Format) Parse(_ context.Context, path string, _ dict.IndexStore, indexing func(string)) (dict.Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), ".words")
	if indexing != nil {
		indexing(name)
	}
	articles := make(map[string]string)
	synonyms := make(map[string][]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		left, right, ok := strings.Cut(sc.Text(), "\t")
		if !ok {
			continue
		}
		if form, isSyn := strings.CutPrefix(left, "="); isSyn {
			synonyms[form] = append(synonyms[form], right)
			continue
		}
		articles[left] = right
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, errors.New("no articles")
	}
	id, err := dict.MakeID("words", dict.Source{Role: "data", Path: path})
	if err != nil {
		return nil, err
	}
	d := New(name, articles)
	d.id = id
	for form, heads := range synonyms {
		d.WithSynonym(form, heads...)
	}
	return d, nil
}
