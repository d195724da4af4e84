package filedict

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sagerenn/gdengine/internal/dict"
	"github.com/sagerenn/gdengine/internal/indexstore"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProbe(t *testing.T) {
	var f Format
	cases := []struct {
		path string
		head string
		want bool
	}{
		{"a.tsv", "# comment\nhello\tworld\n", true},
		{"a.txt", "\xef\xbb\xbfhello\tworld\n", true},
		{"a.txt", "just some prose\n", false},
		{"a.json", "  [{\"word\":\"a\"}]", true},
		{"a.json", "{\"word\":\"a\"}", false},
		{"a.dsl", "hello\tworld", false},
	}
	for _, c := range cases {
		if got := f.Probe(c.path, []byte(c.head)); got != c.want {
			t.Errorf("Probe(%q, %q) = %v, want %v", c.path, c.head, got, c.want)
		}
	}
}

func TestParseTSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "animals.tsv", "cat\tfeline\ncar\tvehicle\ndog\tcanine\nCat\tbig feline\nbroken line\n")
	store, err := indexstore.New(filepath.Join(dir, "index"))
	if err != nil {
		t.Fatal(err)
	}

	var indexed []string
	d, err := Format{}.Parse(context.Background(), path, store, func(name string) { indexed = append(indexed, name) })
	if err != nil {
		t.Fatal(err)
	}
	if d.Name() != "animals" || d.ArticleCount() != 4 || d.WordCount() != 4 {
		t.Fatalf("unexpected handle: name=%q articles=%d words=%d", d.Name(), d.ArticleCount(), d.WordCount())
	}
	if diff := cmp.Diff([]string{"animals"}, indexed); diff != "" {
		t.Fatalf("indexing notifications (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"car", "Cat", "cat"}, d.Prefix("ca", 10)); diff != "" {
		t.Fatalf("prefix mismatch (-want +got):\n%s", diff)
	}

	body, err := d.Article("CAT", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "big feline\nfeline" {
		t.Fatalf("unexpected article %q", body)
	}
	if _, err := d.Article("cow", []string{"bull"}); !errors.Is(err, dict.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	body, err = d.Article("doggo", []string{"dog"})
	if err != nil || string(body) != "canine" {
		t.Fatalf("alternate lookup failed: %q %v", body, err)
	}

	// Second parse reuses the index without rewriting it.
	info, err := os.Stat(store.PathFor(d.ID()))
	if err != nil {
		t.Fatal(err)
	}
	indexed = nil
	again, err := Format{}.Parse(context.Background(), path, store, func(name string) { indexed = append(indexed, name) })
	if err != nil {
		t.Fatal(err)
	}
	if again.ID() != d.ID() || len(indexed) != 0 {
		t.Fatalf("expected index reuse, id %s vs %s, indexed %v", again.ID(), d.ID(), indexed)
	}
	info2, err := os.Stat(store.PathFor(d.ID()))
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(info2.ModTime()) {
		t.Fatal("index file was rewritten")
	}
}

func TestParseJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "words.json", `[{"word":"hello","definition":"greeting"},{"word":"","definition":"x"}]`)
	store, err := indexstore.New(filepath.Join(dir, "index"))
	if err != nil {
		t.Fatal(err)
	}
	d, err := Format{}.Parse(context.Background(), path, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.WordCount() != 1 {
		t.Fatalf("expected 1 word, got %d", d.WordCount())
	}
	if got := d.HeadwordsForSynonym("HELLO"); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("unexpected headwords %v", got)
	}
}

func TestParseEmpty(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.tsv", "# nothing here\n")
	store, err := indexstore.New(filepath.Join(dir, "index"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := (Format{}).Parse(context.Background(), path, store, nil); err == nil {
		t.Fatal("expected error for empty list")
	}
}
