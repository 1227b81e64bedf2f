// Package transcode converts text between UTF-8 and UTF-16 code units, and serializes code units to
// and from bytes in a fixed byte order.
//
// Unlike the standard library's unicode/utf16 and golang.org/x/text/encoding/unicode, it never
// substitutes U+FFFD for malformed input: every malformation is reported with one of the sentinel
// errors below, so that a lossless round trip can be guaranteed (or its violation detected).
package transcode

import (
	"encoding/binary"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidUTF8 is returned when the input text is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid UTF-8")

	// ErrUnpairedSurrogate is returned when a UTF-16 high surrogate is not immediately followed by
	// a low surrogate, or a low surrogate is not preceded by a high surrogate.
	ErrUnpairedSurrogate = errors.New("unpaired UTF-16 surrogate")

	// ErrTruncatedCodeUnit is returned when a byte stream has an odd length and hence can't be
	// split into 2-byte code units.
	ErrTruncatedCodeUnit = errors.New("truncated UTF-16 code unit")
)

const (
	surrHighStart = 0xD800
	surrHighEnd   = 0xDBFF
	surrLowStart  = 0xDC00
	surrLowEnd    = 0xDFFF
	surrSelf      = 0x10000
)

// IsHighSurrogate reports whether u is in the high (leading) surrogate range.
func IsHighSurrogate(u uint16) bool { return u >= surrHighStart && u <= surrHighEnd }

// IsLowSurrogate reports whether u is in the low (trailing) surrogate range.
func IsLowSurrogate(u uint16) bool { return u >= surrLowStart && u <= surrLowEnd }

// EncodeRune returns the UTF-16 code units of r: one for r < 0x10000, a surrogate pair otherwise.
// The second value is 0 when a single unit suffices.
func EncodeRune(r rune) (hi, lo uint16) {
	if r < surrSelf {
		return uint16(r), 0
	}
	r -= surrSelf
	return uint16(surrHighStart + (r >> 10)), uint16(surrLowStart + (r & 0x3FF))
}

// CodeUnitsLen returns how many code units r takes: 1 or 2.
func CodeUnitsLen(r rune) int {
	if r < surrSelf {
		return 1
	}
	return 2
}

// TextToCodeUnits decodes the UTF-8 text and re-encodes it as UTF-16 code units.
func TextToCodeUnits(text string) ([]uint16, error) {
	units := make([]uint16, 0, len(text))
	for pos := 0; pos < len(text); {
		r, size := utf8.DecodeRuneInString(text[pos:])
		if r == utf8.RuneError && size <= 1 {
			return nil, errors.Wrapf(ErrInvalidUTF8, "byte 0x%02X at offset %d", text[pos], pos)
		}
		hi, lo := EncodeRune(r)
		units = append(units, hi)
		if lo != 0 {
			units = append(units, lo)
		}
		pos += size
	}
	return units, nil
}

// CodeUnitsToText decodes UTF-16 code units into a UTF-8 string.
func CodeUnitsToText(units []uint16) (string, error) {
	var sb strings.Builder
	sb.Grow(len(units) * 2)
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case IsHighSurrogate(u):
			if i+1 >= len(units) || !IsLowSurrogate(units[i+1]) {
				return "", errors.Wrapf(ErrUnpairedSurrogate, "high surrogate 0x%04X at code unit %d", u, i)
			}
			r := (rune(u)-surrHighStart)<<10 | (rune(units[i+1]) - surrLowStart)
			sb.WriteRune(r + surrSelf)
			i++
		case IsLowSurrogate(u):
			return "", errors.Wrapf(ErrUnpairedSurrogate, "low surrogate 0x%04X at code unit %d", u, i)
		default:
			sb.WriteRune(rune(u))
		}
	}
	return sb.String(), nil
}

// ByteOrder of the 2-byte serialization of code units. It is fixed for the lifetime of a
// vocabulary: training and inference must use the same one.
type ByteOrder int

const (
	// LittleEndian serializes the low byte of each code unit first (UTF-16LE, no BOM).
	LittleEndian ByteOrder = iota
	// BigEndian serializes the high byte of each code unit first (UTF-16BE, no BOM).
	BigEndian
)

// String implements fmt.Stringer; the values are the ones persisted with a vocabulary.
func (o ByteOrder) String() string {
	switch o {
	case LittleEndian:
		return "little"
	case BigEndian:
		return "big"
	default:
		return "ByteOrder(" + strconv.Itoa(int(o)) + ")"
	}
}

// ParseByteOrder is the inverse of ByteOrder.String.
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(s) {
	case "little", "le", "little-endian":
		return LittleEndian, nil
	case "big", "be", "big-endian":
		return BigEndian, nil
	}
	return 0, errors.Errorf("unknown byte order %q, valid values are \"little\" or \"big\"", s)
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func (o ByteOrder) binary() byteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// CodeUnitsToBytes serializes units, 2 bytes per unit, in the given byte order.
func CodeUnitsToBytes(units []uint16, order ByteOrder) []byte {
	return AppendCodeUnits(make([]byte, 0, 2*len(units)), units, order)
}

// AppendCodeUnits is like CodeUnitsToBytes but appends to dst.
func AppendCodeUnits(dst []byte, units []uint16, order ByteOrder) []byte {
	bo := order.binary()
	for _, u := range units {
		dst = bo.AppendUint16(dst, u)
	}
	return dst
}

// BytesToCodeUnits is the inverse of CodeUnitsToBytes.
// It fails with ErrTruncatedCodeUnit if len(data) is odd.
func BytesToCodeUnits(data []byte, order ByteOrder) ([]uint16, error) {
	if len(data)%2 != 0 {
		return nil, errors.Wrapf(ErrTruncatedCodeUnit, "%d bytes, last byte 0x%02X has no pair", len(data), data[len(data)-1])
	}
	bo := order.binary()
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = bo.Uint16(data[2*i:])
	}
	return units, nil
}

// TextToBytes is a shortcut for TextToCodeUnits followed by CodeUnitsToBytes.
func TextToBytes(text string, order ByteOrder) ([]byte, error) {
	units, err := TextToCodeUnits(text)
	if err != nil {
		return nil, err
	}
	return CodeUnitsToBytes(units, order), nil
}

// BytesToText is a shortcut for BytesToCodeUnits followed by CodeUnitsToText.
func BytesToText(data []byte, order ByteOrder) (string, error) {
	units, err := BytesToCodeUnits(data, order)
	if err != nil {
		return "", err
	}
	return CodeUnitsToText(units)
}
