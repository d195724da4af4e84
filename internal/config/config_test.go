package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSONFillsDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"paths": [{"path": "/dicts", "depth": 1}],
		"index_dir": "/var/idx",
		"groups": [{"name": "Animals", "dictionaries": ["abc"]}]
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":8080" || cfg.MaxResults != 100 || cfg.Workers <= 0 || cfg.Log.Level != "info" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if diff := cmp.Diff([]SourcePath{{Path: "/dicts", Depth: 1}}, cfg.Paths); diff != "" {
		t.Fatalf("paths (-want +got):\n%s", diff)
	}
	if cfg.IndexDir != "/var/idx" || cfg.Groups[0].Name != "Animals" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
listen: ":9090"
read_timeout: 3s
paths:
  - path: /usr/share/dicts
groups:
  - name: Work
    dictionaries: [one, two]
max_results: 25
watch:
  enabled: true
  debounce: 500ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9090" || cfg.ReadTimeout != 3*time.Second || cfg.MaxResults != 25 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.Watch.Enabled || cfg.Watch.Debounce != 500*time.Millisecond {
		t.Fatalf("unexpected watch config %+v", cfg.Watch)
	}
	if diff := cmp.Diff([]string{"one", "two"}, cfg.Groups[0].Dictionaries); diff != "" {
		t.Fatalf("group (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty path":      `{"paths": [{"path": " "}]}`,
		"negative depth":  `{"paths": [{"path": "/d", "depth": -1}]}`,
		"unnamed group":   `{"groups": [{"name": ""}]}`,
		"duplicate group": `{"groups": [{"name": "a"}, {"name": "a"}]}`,
		"bad json":        `{"paths": `,
	}
	for name, body := range cases {
		if _, err := Load(writeFile(t, "c.json", body)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("expected missing path error, got %v", err)
	}
}
