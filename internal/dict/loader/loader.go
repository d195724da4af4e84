// Package loader dispatches candidate files to the supported formats.
package loader

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/sagerenn/gdengine/internal/dict"
	"github.com/sagerenn/gdengine/internal/dict/dsl"
	"github.com/sagerenn/gdengine/internal/dict/filedict"
	"github.com/sagerenn/gdengine/internal/dict/mdict"
	"github.com/sagerenn/gdengine/internal/dict/stardict"
)

// ProbeSize is the number of leading bytes handed to Format.Probe.
const ProbeSize = 4096

// Formats returns the supported formats in probe priority order.
func Formats() []dict.Format {
	return []dict.Format{
		stardict.Format{},
		mdict.Format{},
		dsl.Format{},
		filedict.Format{},
	}
}

// Open hands path to the first format whose probe accepts it. Files no
// format accepts yield dict.ErrNotRecognized; a failed parse yields a
// *dict.ParseError naming the format.
func Open(ctx context.Context, path string, formats []dict.Format, store dict.IndexStore, indexing func(string)) (dict.Dictionary, error) {
	head, err := readHead(path)
	if err != nil {
		return nil, &dict.ParseError{Path: path, Err: err}
	}
	for _, f := range formats {
		if !f.Probe(path, head) {
			continue
		}
		d, err := f.Parse(ctx, path, store, indexing)
		if err != nil {
			return nil, &dict.ParseError{Path: path, Format: f.Name(), Err: err}
		}
		return d, nil
	}
	return nil, &dict.ParseError{Path: path, Err: dict.ErrNotRecognized}
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, ProbeSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}
