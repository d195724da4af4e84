package mdict

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// decodeText converts a record body in the dictionary's declared encoding
// to UTF-8. A byte order mark wins over the declared encoding.
func decodeText(data []byte, encoding string) string {
	if len(data) == 0 {
		return ""
	}
	switch {
	case bytes.HasPrefix(data, []byte{0xef, 0xbb, 0xbf}):
		return string(data[3:])
	case bytes.HasPrefix(data, []byte{0xfe, 0xff}):
		return decodeUTF16(data[2:], true)
	case bytes.HasPrefix(data, []byte{0xff, 0xfe}):
		return decodeUTF16(data[2:], false)
	}
	label := strings.ToUpper(strings.TrimSpace(encoding))
	switch {
	case strings.HasPrefix(label, "UTF-16"):
		return decodeUTF16(data, strings.HasSuffix(label, "BE"))
	case label == "" || label == "UTF-8" || label == "UTF8":
		return string(data)
	case label == "GBK" || label == "GB2312":
		// GB18030 is a superset of both.
		label = "GB18030"
	}
	if utf8.Valid(data) && isASCII(data) {
		return string(data)
	}
	if decoded, ok := decodeWithEncoding(label, data); ok {
		return decoded
	}
	return string(data)
}

func decodeUTF16(data []byte, bigEndian bool) string {
	if len(data)%2 == 1 {
		data = data[:len(data)-1]
	}
	u16 := make([]uint16, len(data)/2)
	for i := range u16 {
		if bigEndian {
			u16[i] = binary.BigEndian.Uint16(data[i*2:])
		} else {
			u16[i] = binary.LittleEndian.Uint16(data[i*2:])
		}
	}
	return string(utf16.Decode(u16))
}

func decodeWithEncoding(label string, data []byte) (string, bool) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return "", false
	}
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

func isASCII(data []byte) bool {
	for _, c := range data {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
