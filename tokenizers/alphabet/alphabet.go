// Package alphabet implements the fixed bijection between raw byte values and printable Unicode
// characters used by byte-level BPE vocabularies.
//
// The mapping is the one popularized by GPT-2: bytes that are already printable, non-whitespace
// Latin-1 characters map to themselves, and the remaining 68 bytes (controls, space, DEL, NBSP and
// the soft hyphen) are shifted into U+0100 and above, in increasing byte order.
//
// The tables are built once at package initialization and are read-only afterwards, so every
// function here is safe for concurrent use.
package alphabet

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Size is the number of symbols in the alphabet: one per byte value.
const Size = 256

// ErrUnknownSymbol is returned when a character is not one of the 256 alphabet symbols.
var ErrUnknownSymbol = errors.New("unknown alphabet symbol")

var (
	byteToSymbol [Size]rune
	symbolToByte map[rune]byte
)

func init() {
	symbolToByte = make(map[rune]byte, Size)
	n := 0
	for b := 0; b < Size; b++ {
		if (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF) {
			byteToSymbol[b] = rune(b)
		} else {
			byteToSymbol[b] = rune(Size + n)
			n++
		}
		symbolToByte[byteToSymbol[b]] = byte(b)
	}
}

// ByteToSymbol returns the alphabet symbol for b.
func ByteToSymbol(b byte) rune {
	return byteToSymbol[b]
}

// SymbolToByte returns the byte represented by the symbol r, and false if r is not in the alphabet.
func SymbolToByte(r rune) (byte, bool) {
	b, ok := symbolToByte[r]
	return b, ok
}

// MustSymbolToByte is like SymbolToByte, but panics if r is not in the alphabet.
// Use it only where r is known to come from ByteToSymbol.
func MustSymbolToByte(r rune) byte {
	b, ok := symbolToByte[r]
	if !ok {
		panic(errors.Wrapf(ErrUnknownSymbol, "rune %U", r))
	}
	return b
}

// Symbols returns a copy of the full table, indexed by byte value.
func Symbols() [Size]rune {
	return byteToSymbol
}

// IsSymbol reports whether r is one of the alphabet symbols.
func IsSymbol(r rune) bool {
	_, ok := symbolToByte[r]
	return ok
}

// Encode maps every byte of data to its symbol and returns the resulting string.
func Encode(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data) * 2)
	for _, b := range data {
		sb.WriteRune(byteToSymbol[b])
	}
	return sb.String()
}

// Decode maps every symbol of s back to its byte.
// It fails with ErrUnknownSymbol on the first character that is not in the alphabet.
func Decode(s string) ([]byte, error) {
	return AppendDecode(make([]byte, 0, utf8.RuneCountInString(s)), s)
}

// AppendDecode is like Decode, but appends the bytes to dst.
func AppendDecode(dst []byte, s string) ([]byte, error) {
	for pos, r := range s {
		b, ok := symbolToByte[r]
		if !ok {
			return dst, errors.Wrapf(ErrUnknownSymbol, "character %q (%U) at byte %d of %q", r, r, pos, s)
		}
		dst = append(dst, b)
	}
	return dst, nil
}
