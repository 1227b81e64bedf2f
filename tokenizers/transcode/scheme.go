package transcode

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Scheme is the byte serialization of text that a byte-level vocabulary is built over.
//
// UTF16LE is the default. UTF8 is the classic byte-level BPE serialization, kept to measure the
// UTF-16 schemes against.
type Scheme int

const (
	UTF16LE Scheme = iota
	UTF16BE
	UTF8
)

// String returns the persisted name of the scheme.
func (s Scheme) String() string {
	switch s {
	case UTF16LE:
		return "utf-16le"
	case UTF16BE:
		return "utf-16be"
	case UTF8:
		return "utf-8"
	}
	return "Scheme(" + strconv.Itoa(int(s)) + ")"
}

// ParseScheme is the inverse of Scheme.String. It also accepts the names without dashes.
func ParseScheme(name string) (Scheme, error) {
	switch strings.ReplaceAll(strings.ToLower(name), "-", "") {
	case "utf16le", "utf16":
		return UTF16LE, nil
	case "utf16be":
		return UTF16BE, nil
	case "utf8":
		return UTF8, nil
	}
	return 0, errors.Errorf("unknown encoding scheme %q, valid values are \"utf-16le\", \"utf-16be\" or \"utf-8\"", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Scheme) MarshalText() ([]byte, error) {
	if s < UTF16LE || s > UTF8 {
		return nil, errors.Errorf("invalid scheme %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scheme) UnmarshalText(text []byte) error {
	parsed, err := ParseScheme(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SchemeFor returns the UTF-16 scheme for the given byte order.
func SchemeFor(order ByteOrder) Scheme {
	if order == BigEndian {
		return UTF16BE
	}
	return UTF16LE
}

// IsUTF16 reports whether the scheme serializes UTF-16 code units.
func (s Scheme) IsUTF16() bool { return s == UTF16LE || s == UTF16BE }

// ByteOrder of the UTF-16 schemes. It is LittleEndian for UTF8, where it is meaningless.
func (s Scheme) ByteOrder() ByteOrder {
	if s == UTF16BE {
		return BigEndian
	}
	return LittleEndian
}

// RuneLen returns the number of bytes r serializes to.
func (s Scheme) RuneLen(r rune) int {
	if s == UTF8 {
		return utf8.RuneLen(r)
	}
	return 2 * CodeUnitsLen(r)
}

// AppendRune appends the serialization of r to dst. r must be a valid, non-surrogate rune.
func (s Scheme) AppendRune(dst []byte, r rune) []byte {
	if s == UTF8 {
		return utf8.AppendRune(dst, r)
	}
	bo := s.ByteOrder().binary()
	hi, lo := EncodeRune(r)
	dst = bo.AppendUint16(dst, hi)
	if r >= surrSelf {
		dst = bo.AppendUint16(dst, lo)
	}
	return dst
}

// Encode serializes text. It fails with ErrInvalidUTF8 on malformed input.
func (s Scheme) Encode(text string) ([]byte, error) {
	if s == UTF8 {
		if !utf8.ValidString(text) {
			return nil, errors.Wrapf(ErrInvalidUTF8, "in %q", text)
		}
		return []byte(text), nil
	}
	return TextToBytes(text, s.ByteOrder())
}

// Decode is the inverse of Encode. For the UTF-16 schemes it fails with ErrTruncatedCodeUnit or
// ErrUnpairedSurrogate, for UTF8 with ErrInvalidUTF8.
func (s Scheme) Decode(data []byte) (string, error) {
	if s == UTF8 {
		if !utf8.Valid(data) {
			return "", errors.Wrapf(ErrInvalidUTF8, "decoded %d bytes", len(data))
		}
		return string(data), nil
	}
	return BytesToText(data, s.ByteOrder())
}
