package extract

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Encoding names reported in Result.
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText turns raw file bytes into NFC-normalized UTF-8.
// Invalid UTF-8 is assumed to be Windows-1252, the usual encoding of
// minutes exported from office suites on Windows.
func decodeText(data []byte) (string, string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	encoding := EncodingUTF8
	if !utf8.Valid(data) {
		decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		if err != nil {
			return "", "", err
		}
		data = decoded
		encoding = EncodingWindows1252
	}

	return normalize(string(data)), encoding, nil
}

// normalize composes decomposed accents (e + U+0301 -> é) so the
// parser's literal French markers match.
func normalize(s string) string {
	return norm.NFC.String(s)
}
