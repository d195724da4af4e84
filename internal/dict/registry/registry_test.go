package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sagerenn/gdengine/internal/config"
	"github.com/sagerenn/gdengine/internal/dict"
	"github.com/sagerenn/gdengine/internal/dict/filedict"
	"github.com/sagerenn/gdengine/internal/indexstore"
)

// tracked wraps handles so tests can see which ones were closed.
type tracked struct {
	dict.Dictionary
	closed *atomic.Bool
}

func (t tracked) Close() error {
	t.closed.Store(true)
	return t.Dictionary.Close()
}

type trackingFormat struct {
	dict.Format
	mu      sync.Mutex
	handles []tracked
	gate    func()
}

func (f *trackingFormat) Parse(ctx context.Context, path string, store dict.IndexStore, indexing func(string)) (dict.Dictionary, error) {
	if f.gate != nil {
		f.gate()
	}
	d, err := f.Format.Parse(ctx, path, store, indexing)
	if err != nil {
		return nil, err
	}
	t := tracked{Dictionary: d, closed: new(atomic.Bool)}
	f.mu.Lock()
	f.handles = append(f.handles, t)
	f.mu.Unlock()
	return t, nil
}

func (f *trackingFormat) all() []tracked {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tracked(nil), f.handles...)
}

type recorder struct {
	mu        sync.Mutex
	indexing  []string
	completed []Report
}

func (r *recorder) Indexing(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexing = append(r.indexing, name)
}

func (r *recorder) Completed(rep Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, rep)
}

func (r *recorder) indexed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.indexing...)
	sort.Strings(out)
	return out
}

type fixture struct {
	dir    string
	store  *indexstore.Store
	format *trackingFormat
	obs    *recorder
	reg    *Registry
}

func newFixture(t *testing.T, groups []config.GroupConfig) *fixture {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "dicts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	store, err := indexstore.New(filepath.Join(root, "index"))
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		dir:    dir,
		store:  store,
		format: &trackingFormat{Format: filedict.Format{}},
		obs:    &recorder{},
	}
	f.reg = New(store, []config.SourcePath{{Path: dir}},
		WithFormats([]dict.Format{f.format}),
		WithObserver(f.obs),
		WithGroups(groups),
		WithWorkers(2),
	)
	t.Cleanup(func() { _ = f.reg.Close() })
	return f
}

func (f *fixture) write(t *testing.T, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) scan(t *testing.T) Report {
	t.Helper()
	rep, err := f.reg.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return rep
}

// indexFiles lists the identifier-shaped names in the index directory.
func (f *fixture) indexFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.store.Dir())
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, e := range entries {
		if dict.ValidID(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}

func setIDs(s *Set) []string {
	out := make([]string, 0, s.Len())
	for _, d := range s.Dicts() {
		out = append(out, string(d.ID()))
	}
	return out
}

func sortedIDs(s *Set) []string {
	out := setIDs(s)
	sort.Strings(out)
	return out
}

const (
	dictA = "cat\tfeline\ncar\tvehicle\ndog\tcanine\n"
	dictB = "care\tattention\ncab\ttaxi\n"
)

func TestScanReusesUnchangedIndexes(t *testing.T) {
	f := newFixture(t, nil)
	f.write(t, "a.tsv", dictA)
	f.write(t, "b.tsv", dictB)

	rep := f.scan(t)
	if rep.Version != 1 || rep.Indexed != 2 || rep.Status() != "2 dictionaries, 5 articles, 5 words" {
		t.Fatalf("unexpected report %+v (%s)", rep, rep.Status())
	}
	if diff := cmp.Diff([]string{"a", "b"}, f.obs.indexed()); diff != "" {
		t.Fatalf("indexing notifications (-want +got):\n%s", diff)
	}
	first := f.reg.Snapshot()
	stat := map[string]time.Time{}
	for _, id := range f.indexFiles(t) {
		info, err := os.Stat(filepath.Join(f.store.Dir(), id))
		if err != nil {
			t.Fatal(err)
		}
		stat[id] = info.ModTime()
	}

	rep = f.scan(t)
	second := f.reg.Snapshot()
	if rep.Version != 2 || second.Version != 2 || rep.Indexed != 0 {
		t.Fatalf("expected version 2 without indexing, got %+v", rep)
	}
	if diff := cmp.Diff(setIDs(first), setIDs(second)); diff != "" {
		t.Fatalf("identifiers changed (-want +got):\n%s", diff)
	}
	if got := len(f.obs.indexed()); got != 2 {
		t.Fatalf("unchanged dictionaries were re-indexed: %v", f.obs.indexed())
	}
	for id, mod := range stat {
		info, err := os.Stat(filepath.Join(f.store.Dir(), id))
		if err != nil || !info.ModTime().Equal(mod) {
			t.Fatalf("index %s rewritten", id)
		}
	}
	// The original handles stay in the set; the re-parsed ones are closed.
	for i, d := range second.Dicts() {
		if d != first.Dicts()[i] {
			t.Fatalf("handle %d replaced", i)
		}
		if d.(tracked).closed.Load() {
			t.Fatalf("active handle %d closed", i)
		}
	}
	if n := len(f.format.all()); n != 4 {
		t.Fatalf("expected 4 parsed handles, got %d", n)
	}
	for _, h := range f.format.all()[2:] {
		if !h.closed.Load() {
			t.Fatal("redundant handle left open")
		}
	}
}

func TestChangedDictionaryReclaimsOldIndex(t *testing.T) {
	f := newFixture(t, nil)
	f.write(t, "a.tsv", dictA)
	f.write(t, "b.tsv", dictB)
	f.scan(t)
	before := f.reg.Snapshot()
	oldB := before.Dicts()[1]

	f.write(t, "b.tsv", dictB+"cap\that\n")
	rep := f.scan(t)
	after := f.reg.Snapshot()

	if after.Dicts()[1].ID() == oldB.ID() {
		t.Fatal("changed dictionary kept its identifier")
	}
	if after.Dicts()[0] != before.Dicts()[0] {
		t.Fatal("unchanged dictionary handle replaced")
	}
	if diff := cmp.Diff([]string{string(oldB.ID())}, rep.Reclaimed); diff != "" {
		t.Fatalf("reclaimed (-want +got):\n%s", diff)
	}
	if !oldB.(tracked).closed.Load() {
		t.Fatal("old handle not closed")
	}
	if diff := cmp.Diff(sortedIDs(after), f.indexFiles(t)); diff != "" {
		t.Fatalf("index files do not match the set (-want +got):\n%s", diff)
	}
}

func TestDeletedDictionaryLeavesGroupIntact(t *testing.T) {
	f := newFixture(t, []config.GroupConfig{{Name: "Animals", Dictionaries: []string{"a"}}})
	f.write(t, "a.tsv", dictA)
	f.write(t, "b.tsv", dictB)
	f.scan(t)

	animals, ok := f.reg.Group("Animals")
	if !ok || len(animals.Dicts) != 1 || animals.Dicts[0].Name() != "a" {
		t.Fatalf("unexpected group %+v", animals)
	}
	b := f.reg.Snapshot().Dicts()[1]

	if err := os.Remove(filepath.Join(f.dir, "b.tsv")); err != nil {
		t.Fatal(err)
	}
	rep := f.scan(t)
	if rep.Dictionaries != 1 {
		t.Fatalf("expected 1 dictionary, got %d", rep.Dictionaries)
	}
	if _, ok := f.reg.Snapshot().Get(b.ID()); ok {
		t.Fatal("deleted dictionary still active")
	}
	if f.store.Exists(b.ID()) {
		t.Fatal("index of deleted dictionary not reclaimed")
	}
	after, _ := f.reg.Group("Animals")
	if diff := cmp.Diff(animals.IDs(), after.IDs()); diff != "" {
		t.Fatalf("Animals changed (-want +got):\n%s", diff)
	}
	if after.Version == animals.Version {
		t.Fatal("group version should change with the set")
	}
}

func TestMalformedFilesAreSkipped(t *testing.T) {
	f := newFixture(t, nil)
	f.reg.formats = append(f.reg.formats, failingFormat{})
	f.write(t, "a.tsv", dictA)
	f.write(t, "notes.tsv", "no tabs here\n")
	f.write(t, "broken.bad", "whatever")
	f.write(t, ".hidden.tsv", dictB)

	rep := f.scan(t)
	if rep.Dictionaries != 1 || rep.Articles != 3 || rep.Words != 3 {
		t.Fatalf("unexpected counts %s", rep.Status())
	}
	if rep.Skipped != 1 || len(rep.Failures) != 1 || rep.Failures[0].Path != filepath.Join(f.dir, "broken.bad") {
		t.Fatalf("unexpected skipped=%d failures=%v", rep.Skipped, rep.Failures)
	}
	var pe *dict.ParseError
	if !errors.As(rep.Failures[0], &pe) || pe.Format != "failing" {
		t.Fatalf("expected a ParseError, got %v", rep.Failures[0].Err)
	}
}

type failingFormat struct{}

func (failingFormat) Name() string                     { return "failing" }
func (failingFormat) Probe(path string, _ []byte) bool { return filepath.Ext(path) == ".bad" }
func (failingFormat) Parse(context.Context, string, dict.IndexStore, func(string)) (dict.Dictionary, error) {
	return nil, errors.New("corrupt header")
}

func TestScanDepthAndMissingDirectory(t *testing.T) {
	f := newFixture(t, nil)
	f.write(t, "a.tsv", dictA)
	sub := filepath.Join(f.dir, "more")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.tsv"), []byte(dictB), 0o644); err != nil {
		t.Fatal(err)
	}

	if rep := f.scan(t); rep.Dictionaries != 1 {
		t.Fatalf("depth 0 should not descend, got %d", rep.Dictionaries)
	}

	missing := filepath.Join(f.dir, "missing")
	f.reg.paths = []config.SourcePath{{Path: missing}, {Path: f.dir, Depth: 1}}
	rep := f.scan(t)
	if rep.Dictionaries != 2 {
		t.Fatalf("depth 1 should descend, got %d", rep.Dictionaries)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Path != missing {
		t.Fatalf("expected the missing directory to be reported, got %v", rep.Failures)
	}
}

func TestUnusableIndexDirKeepsSet(t *testing.T) {
	f := newFixture(t, nil)
	f.write(t, "a.tsv", dictA)
	f.scan(t)
	before := f.reg.Snapshot()

	if err := os.RemoveAll(f.store.Dir()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.store.Dir(), []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := f.reg.Scan(context.Background())
	if !errors.Is(err, ErrIndexDir) {
		t.Fatalf("expected ErrIndexDir, got %v", err)
	}
	if f.reg.Snapshot() != before {
		t.Fatal("failed scan replaced the set")
	}
	if st := f.reg.Status(); st.LastError == "" || st.State != "failed" || f.reg.State() != Failed {
		t.Fatalf("unexpected status after failure %+v", st)
	}

	if err := os.Remove(f.store.Dir()); err != nil {
		t.Fatal(err)
	}
	f.scan(t)
	if st := f.reg.Status(); st.LastError != "" || st.State != "idle" {
		t.Fatalf("unexpected status after recovery %+v", st)
	}
}

func TestNewerScanSupersedesInFlightScan(t *testing.T) {
	f := newFixture(t, nil)
	f.write(t, "a.tsv", dictA)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.format.gate = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	first := f.reg.Reload(context.Background())
	<-entered
	if st := f.reg.State(); st != Parsing {
		t.Fatalf("expected parsing state, got %s", st)
	}
	second := f.reg.Reload(context.Background())
	close(release)

	out := <-first
	if !errors.Is(out.Err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", out.Err)
	}
	out = <-second
	if out.Err != nil {
		t.Fatal(out.Err)
	}
	if out.Report.Version != 1 || f.reg.Snapshot().Version != 1 {
		t.Fatalf("superseded scan swapped: version %d", f.reg.Snapshot().Version)
	}
	handles := f.format.all()
	if len(handles) != 2 || !handles[0].closed.Load() || handles[1].closed.Load() {
		t.Fatal("superseded scan should close exactly its own handles")
	}
	if _, ok := <-first; ok {
		t.Fatal("outcome channel should be closed after one value")
	}
}

func TestReadersSeeWholeSets(t *testing.T) {
	f := newFixture(t, nil)
	f.write(t, "a.tsv", dictA)
	f.scan(t)
	oldIDs := setIDs(f.reg.Snapshot())

	f.write(t, "b.tsv", dictB)
	f.write(t, "c.tsv", "cow\tbovine\n")
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.format.gate = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	done := f.reg.Reload(context.Background())
	<-entered

	var (
		wg   sync.WaitGroup
		stop atomic.Bool
		torn atomic.Int64
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				target, err := f.reg.Target("")
				if err != nil {
					torn.Add(1)
					return
				}
				n := len(target.Dicts)
				if n != len(oldIDs) && n != 3 {
					torn.Add(1)
				}
				for _, d := range target.Dicts {
					d.Prefix("c", 10)
				}
			}
		}()
	}
	close(release)
	if out := <-done; out.Err != nil {
		t.Fatal(out.Err)
	}
	time.Sleep(10 * time.Millisecond)
	stop.Store(true)
	wg.Wait()
	if torn.Load() != 0 {
		t.Fatal("a reader observed a partial set")
	}
	if got := f.reg.Snapshot().Len(); got != 3 {
		t.Fatalf("expected 3 dictionaries, got %d", got)
	}
}

func TestSetGroupsBumpsVersion(t *testing.T) {
	f := newFixture(t, nil)
	f.write(t, "a.tsv", dictA)
	f.write(t, "b.tsv", dictB)
	f.scan(t)

	full, err := f.reg.Target("")
	if err != nil || len(full.Dicts) != 2 {
		t.Fatalf("full target: %v %d", err, len(full.Dicts))
	}
	if _, err := f.reg.Target("Animals"); !errors.Is(err, ErrUnknownGroup) {
		t.Fatalf("expected ErrUnknownGroup, got %v", err)
	}
	f.reg.SetGroups([]config.GroupConfig{{Name: "Animals", Dictionaries: []string{"a"}}})
	g, err := f.reg.Target("Animals")
	if err != nil || len(g.Dicts) != 1 || g.Version <= full.Version {
		t.Fatalf("unexpected group %+v, %v", g, err)
	}
	if len(full.Dicts) != 2 {
		t.Fatal("earlier target changed")
	}
	if st := f.reg.Status(); st.Groups != 1 || st.Dictionaries != 2 {
		t.Fatalf("unexpected status %+v", st)
	}
}
