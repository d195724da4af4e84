package stardict

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/sagerenn/gdengine/internal/dict"
)

// sources lists every file of the dictionary in a fixed role order so the
// identifier changes when any of them does.
func sources(ifoPath string) []dict.Source {
	idxPath, _ := findIdxPath(ifoPath)
	dictPath, _ := findDictPath(ifoPath)
	synPath, _ := findSynPath(ifoPath)
	return []dict.Source{
		{Role: "ifo", Path: ifoPath},
		{Role: "idx", Path: idxPath},
		{Role: "dict", Path: dictPath},
		{Role: "syn", Path: synPath},
	}
}

func findIdxPath(ifoPath string) (string, error) {
	return findWithExt(ifoPath,
		".idx",
		".idx.gz",
		".idx.GZ",
		".idx.dz",
		".idx.DZ",
		".IDX",
		".IDX.gz",
		".IDX.GZ",
		".IDX.dz",
		".IDX.DZ",
	)
}

func findDictPath(ifoPath string) (string, error) {
	return findWithExt(ifoPath,
		".dict",
		".dict.dz",
		".dict.DZ",
		".DICT",
		".DICT.dz",
		".DICT.DZ",
	)
}

func findSynPath(ifoPath string) (string, error) {
	return findWithExt(ifoPath,
		".syn",
		".syn.dz",
		".syn.DZ",
		".SYN",
		".SYN.dz",
		".SYN.DZ",
	)
}

func findWithExt(ifoPath string, exts ...string) (string, error) {
	base := strings.TrimSuffix(ifoPath, filepath.Ext(ifoPath))
	for _, e := range exts {
		p := base + e
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", os.ErrNotExist
}

// openMaybeCompressed opens path, transparently inflating .gz and .dz files.
func openMaybeCompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(path)
	if !strings.HasSuffix(lower, ".gz") && !strings.HasSuffix(lower, ".dz") {
		return f, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &gzipFile{Reader: zr, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if cerr := g.f.Close(); err == nil {
		err = cerr
	}
	return err
}
