package dict

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
)

// IDLength is the length of the textual form of an ID.
const IDLength = 32

// ID identifies a dictionary by its content and format. It doubles as the
// index file name.
type ID string

// Source is one file contributing to a dictionary identifier.
type Source struct {
	Role string
	Path string
}

// MakeID hashes the format tag and the content of every source, in order.
// Sources with an empty path are recorded as absent.
func MakeID(format string, sources ...Source) (ID, error) {
	h := sha256.New()
	writeField(h, []byte(format))
	for _, src := range sources {
		writeField(h, []byte(src.Role))
		if src.Path == "" {
			_, _ = h.Write([]byte{0})
			continue
		}
		_, _ = h.Write([]byte{1})
		if err := hashFile(h, src.Path); err != nil {
			return "", err
		}
	}
	sum := h.Sum(nil)
	return ID(hex.EncodeToString(sum[:IDLength/2])), nil
}

// ValidID reports whether s has the shape of an ID: IDLength lowercase hex
// characters.
func ValidID(s string) bool {
	if len(s) != IDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	writeLen(w, uint64(info.Size()))
	_, err = io.Copy(w, f)
	return err
}

func writeField(w io.Writer, b []byte) {
	writeLen(w, uint64(len(b)))
	_, _ = w.Write(b)
}

func writeLen(w io.Writer, n uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	_, _ = w.Write(buf[:])
}
