// Package textutil provides text manipulation and encoding utilities.
package textutil

import (
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// fallbackEncodings are tried in order when neither a declared charset nor
// detection yields valid UTF-8. Single-byte Western encodings come first
// since they are the most common mislabeled mail bodies.
var fallbackEncodings = []encoding.Encoding{
	charmap.Windows1252,
	charmap.ISO8859_1,
	charmap.ISO8859_15,
	japanese.ShiftJIS,
	japanese.EUCJP,
	korean.EUCKR,
	simplifiedchinese.GBK,
	traditionalchinese.Big5,
}

// DecodeBytes converts data declared as charset into a UTF-8 string.
// An empty, unknown or wrong charset falls back to EnsureUTF8.
func DecodeBytes(data []byte, charset string) string {
	if enc := LookupEncoding(charset); enc != nil {
		if decoded, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(decoded) {
			return string(decoded)
		}
	}
	return EnsureUTF8(string(data))
}

// EnsureUTF8 ensures a string is valid UTF-8.
// If already valid UTF-8, returns as-is.
// Otherwise attempts charset detection and conversion, and finally
// replaces invalid bytes with the replacement character.
func EnsureUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	data := []byte(s)

	// Detection is less reliable on short samples, so accept a lower score.
	minConfidence := 30
	if len(data) > 50 {
		minConfidence = 50
	}
	if result, err := chardet.NewTextDetector().DetectBest(data); err == nil && result.Confidence >= minConfidence {
		if enc := detectedEncoding(result.Charset); enc != nil {
			if decoded, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(decoded) {
				return string(decoded)
			}
		}
	}

	for _, enc := range fallbackEncodings {
		if decoded, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(decoded) {
			return string(decoded)
		}
	}

	return SanitizeUTF8(s)
}

// LookupEncoding returns the encoding for a charset label, or nil when the
// label is empty, unknown, or already UTF-8.
func LookupEncoding(name string) encoding.Encoding {
	name = strings.Trim(strings.TrimSpace(name), `"'`)
	if name == "" {
		return nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		// Labels the WHATWG index does not know.
		switch strings.ToLower(name) {
		case "latin-1", "cp1252":
			return charmap.Windows1252
		case "latin9":
			return charmap.ISO8859_15
		case "sjis", "shift-jis":
			return japanese.ShiftJIS
		case "big-5":
			return traditionalchinese.Big5
		}
		return nil
	}
	if enc == unicode.UTF8 {
		return nil
	}
	return enc
}

// detectedEncoding maps a chardet result to an encoding. Only charsets that
// detection reports reliably on mail text are trusted; anything else falls
// through to the ordered fallback list.
func detectedEncoding(name string) encoding.Encoding {
	switch strings.ToLower(name) {
	case "windows-1252", "iso-8859-1":
		return charmap.Windows1252
	case "iso-8859-15":
		return charmap.ISO8859_15
	case "iso-8859-2":
		return charmap.ISO8859_2
	case "shift_jis":
		return japanese.ShiftJIS
	case "euc-jp":
		return japanese.EUCJP
	case "iso-2022-jp":
		return japanese.ISO2022JP
	case "euc-kr":
		return korean.EUCKR
	case "gb-18030", "gb18030":
		return simplifiedchinese.GB18030
	case "big5":
		return traditionalchinese.Big5
	case "koi8-r":
		return charmap.KOI8R
	}
	return nil
}

// SanitizeUTF8 replaces invalid UTF-8 bytes with replacement character.
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}
