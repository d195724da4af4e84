package wordindex

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func build(words ...string) *Index {
	var b Builder
	for i, w := range words {
		b.Add(w, i)
	}
	return b.Build()
}

func TestPrefix(t *testing.T) {
	idx := build("dog", "cat", "Car", "care", " ", "cab")
	got := idx.Prefix("CA", 10)
	want := []string{"cab", "Car", "care", "cat"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("prefix mismatch (-want +got):\n%s", diff)
	}
	if got := idx.Prefix("ca", 2); len(got) != 2 {
		t.Fatalf("expected limit 2, got %v", got)
	}
	if got := idx.Prefix("  ", 10); got != nil {
		t.Fatalf("expected nil for blank prefix, got %v", got)
	}
	if got := idx.Prefix("zebra", 10); len(got) != 0 {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestMatchPrefixStops(t *testing.T) {
	idx := build("cat", "Cat", "cat", "car", "cab", "dog")
	var got []string
	idx.MatchPrefix("CA", func(w string) bool {
		got = append(got, w)
		return len(got) < 3
	})
	if diff := cmp.Diff([]string{"cab", "car", "Cat"}, got); diff != "" {
		t.Fatalf("match mismatch (-want +got):\n%s", diff)
	}

	got = nil
	idx.MatchPrefix("ca", func(w string) bool {
		got = append(got, w)
		return true
	})
	if diff := cmp.Diff([]string{"cab", "car", "Cat", "cat"}, got); diff != "" {
		t.Fatalf("full match mismatch (-want +got):\n%s", diff)
	}
}

func TestLookup(t *testing.T) {
	idx := build("Apple", "apple", "banana")
	refs := idx.Lookup("APPLE")
	if diff := cmp.Diff([]int{0, 1}, refs); diff != "" {
		t.Fatalf("lookup mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Apple", "apple"}, idx.Headwords("apple")); diff != "" {
		t.Fatalf("headwords mismatch (-want +got):\n%s", diff)
	}
	if refs := idx.Lookup("cherry"); refs != nil {
		t.Fatalf("expected nil, got %v", refs)
	}
}

func TestNilIndex(t *testing.T) {
	var idx *Index
	if idx.Len() != 0 || idx.Prefix("a", 1) != nil || idx.Lookup("a") != nil {
		t.Fatal("nil index should be empty")
	}
}

func TestResolve(t *testing.T) {
	idx := build("colour", "grey")
	if diff := cmp.Diff([]int{0}, idx.Resolve("color", []string{"colour"})); diff != "" {
		t.Fatalf("resolve mismatch (-want +got):\n%s", diff)
	}
	if refs := idx.Resolve("gray", []string{"silver"}); refs != nil {
		t.Fatalf("expected nil, got %v", refs)
	}
}
