// Package indexstore owns the directory of persisted dictionary indices.
// Each index file is named by its dictionary ID and holds a zstd-compressed
// gob stream: a header followed by a format-specific payload.
package indexstore

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/sagerenn/gdengine/internal/dict"
)

const (
	magic          = "GDIX"
	currentVersion = 1
)

type header struct {
	Magic   string
	Version int
	Format  string
	ID      dict.ID
}

// Store manages index files under a single directory. A single writer at a
// time is assumed.
type Store struct {
	dir string
}

// New creates the index directory if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("index directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Dir returns the index directory.
func (s *Store) Dir() string {
	return s.dir
}

// PathFor returns the index file path for id.
func (s *Store) PathFor(id dict.ID) string {
	return filepath.Join(s.dir, string(id))
}

// Exists reports whether an index file for id is present.
func (s *Store) Exists(id dict.ID) bool {
	info, err := os.Stat(s.PathFor(id))
	return err == nil && info.Mode().IsRegular()
}

// CheckWritable verifies that index files can be created.
func (s *Store) CheckWritable() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(s.dir, ".probe.*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// Read decodes the index for id into payload. It returns false without error
// when the file is missing or was written for another format or version;
// a corrupt file is reported as an error and should be rebuilt.
func (s *Store) Read(id dict.ID, format string, payload any) (bool, error) {
	f, err := os.Open(s.PathFor(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return false, err
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	var h header
	if err := dec.Decode(&h); err != nil {
		return false, fmt.Errorf("decode index header: %w", err)
	}
	if h.Magic != magic || h.Version != currentVersion || h.Format != format || h.ID != id {
		return false, nil
	}
	if err := dec.Decode(payload); err != nil {
		return false, fmt.Errorf("decode index payload: %w", err)
	}
	return true, nil
}

// Write atomically replaces the index for id. On any error nothing is
// published and the temporary file is removed.
func (s *Store) Write(id dict.ID, format string, payload any) error {
	if !dict.ValidID(string(id)) {
		return fmt.Errorf("invalid dictionary id %q", id)
	}
	idxPath := s.PathFor(id)
	tmp, err := os.CreateTemp(s.dir, "."+string(id)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := encode(tmp, header{Magic: magic, Version: currentVersion, Format: format, ID: id}, payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, idxPath); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func encode(w io.Writer, h header, payload any) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	enc := gob.NewEncoder(zw)
	if err := enc.Encode(&h); err != nil {
		_ = zw.Close()
		return err
	}
	if err := enc.Encode(payload); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

// ReclaimOrphans removes index files whose id is not in live. Only regular
// files named exactly like an ID are considered; anything else in the
// directory is left alone. It returns the removed names.
func (s *Store) ReclaimOrphans(live map[dict.ID]struct{}) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var (
		removed []string
		errs    []error
	)
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !dict.ValidID(name) {
			continue
		}
		if _, ok := live[dict.ID(name)]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, name)
	}
	return removed, errors.Join(errs...)
}
