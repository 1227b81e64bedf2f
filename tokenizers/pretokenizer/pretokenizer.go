// Package pretokenizer splits text into word-like spans and converts each span into the sequence of
// byte-level alphabet symbols that BPE training and encoding operate on.
//
// Splitting follows the classic byte-level BPE (GPT-2) segmentation: contractions, runs of letters,
// runs of digits, runs of other non-space characters, and whitespace. A single space directly
// before a letter, digit or punctuation run is folded into that run (" world"), so the whitespace
// policy is "attach to the following span". Other whitespace is kept in runs of its own, except
// for the last space of a run when a word follows it.
//
// Each span is then serialized with a transcode.Scheme (UTF-16LE by default) and every byte is
// mapped to its alphabet symbol.
package pretokenizer

import (
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"github.com/gomlx/go-utf16bpe/tokenizers/alphabet"
	"github.com/gomlx/go-utf16bpe/tokenizers/api"
	"github.com/gomlx/go-utf16bpe/tokenizers/transcode"
	"github.com/pkg/errors"
)

// DefaultPattern is the GPT-2 byte-level split pattern. The `\s+(?!\S)` alternative needs a
// lookahead, hence regexp2 instead of the standard library's RE2 engine.
const DefaultPattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

// Options configure a PreTokenizer. The zero value is valid and selects the defaults.
type Options struct {
	// Pattern used to split the text. Defaults to DefaultPattern.
	Pattern string

	// AddPrefixSpace adds a space in front of the text if it doesn't start with one, so the first
	// word is tokenized like any other word. The added space has an empty span at offset 0.
	AddPrefixSpace bool

	// Scheme used to serialize spans into bytes. Defaults to transcode.UTF16LE.
	Scheme transcode.Scheme

	// NoSplit disables the split pattern: the whole text is a single span.
	NoSplit bool
}

// PreTokenizer splits text and converts the spans into alphabet symbols.
// It holds no mutable state and is safe for concurrent use.
type PreTokenizer struct {
	re             *regexp2.Regexp
	pattern        string
	addPrefixSpace bool
	noSplit        bool
	scheme         transcode.Scheme
}

// New creates a PreTokenizer.
func New(opts Options) (*PreTokenizer, error) {
	pattern := opts.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile pre-tokenizer pattern %q", pattern)
	}
	return &PreTokenizer{
		re:             re,
		pattern:        pattern,
		addPrefixSpace: opts.AddPrefixSpace,
		noSplit:        opts.NoSplit,
		scheme:         opts.Scheme,
	}, nil
}

// MustNew is like New but panics on error. Meant for package-level defaults and tests.
func MustNew(opts Options) *PreTokenizer {
	p, err := New(opts)
	if err != nil {
		panic(err)
	}
	return p
}

// Pattern returns the split pattern in use.
func (p *PreTokenizer) Pattern() string { return p.pattern }

// AddPrefixSpace returns whether a space is prepended to texts that don't start with one.
func (p *PreTokenizer) AddPrefixSpace() bool { return p.addPrefixSpace }

// NoSplit returns whether the text is kept as a single span.
func (p *PreTokenizer) NoSplit() bool { return p.noSplit }

// Scheme returns the byte serialization used for the symbols.
func (p *PreTokenizer) Scheme() transcode.Scheme { return p.scheme }

// Span is a piece of the (possibly space-prefixed) text, with its byte offsets in the original
// text.
type Span struct {
	Text       string
	Start, End int

	// prefixed is set on the span holding the synthetic prefix space.
	prefixed bool
}

// Split splits text into spans that together cover it, in order.
// It fails with transcode.ErrInvalidUTF8 if text is not valid UTF-8.
func (p *PreTokenizer) Split(text string) ([]Span, error) {
	if err := validateUTF8(text); err != nil {
		return nil, err
	}
	work, shift := text, 0
	if p.addPrefixSpace && len(text) > 0 && text[0] != ' ' {
		work, shift = " "+text, 1
	}
	if work == "" {
		return nil, nil
	}

	runes := []rune(work)
	offsets := make([]int, len(runes)+1)
	pos := 0
	for i, r := range runes {
		offsets[i] = pos
		pos += utf8.RuneLen(r)
	}
	offsets[len(runes)] = pos

	toOriginal := func(off int) int {
		off -= shift
		if off < 0 {
			return 0
		}
		return off
	}
	var spans []Span
	emit := func(from, to int) {
		if from >= to {
			return
		}
		s, e := offsets[from], offsets[to]
		spans = append(spans, Span{
			Text:     work[s:e],
			Start:    toOriginal(s),
			End:      toOriginal(e),
			prefixed: shift > 0 && s == 0,
		})
	}

	if p.noSplit {
		emit(0, len(runes))
		return spans, nil
	}
	last := 0
	m, err := p.re.FindRunesMatch(runes)
	for ; m != nil && err == nil; m, err = p.re.FindNextMatch(m) {
		emit(last, m.Index)
		emit(m.Index, m.Index+m.Length)
		last = m.Index + m.Length
	}
	if err != nil {
		return nil, errors.Wrapf(err, "pre-tokenizer pattern failed on %q", text)
	}
	emit(last, len(runes))
	return spans, nil
}

// Word is a span converted to byte-level alphabet symbols.
type Word struct {
	// Start and End are the byte offsets of the span in the original text.
	Start, End int

	// Symbols holds one alphabet symbol per serialized byte.
	Symbols []rune

	// Offsets holds, for each symbol, the span of the original text it accounts for: the first
	// byte of a character carries the character's full span, the other bytes of it carry an empty
	// span at the character's end. Offsets tile [Start, End).
	Offsets []api.TokenSpan
}

// String returns the symbols as a string, the form they take in a vocabulary.
func (w Word) String() string { return string(w.Symbols) }

// PreTokenize splits text and converts every span into a Word.
func (p *PreTokenizer) PreTokenize(text string) ([]Word, error) {
	spans, err := p.Split(text)
	if err != nil {
		return nil, err
	}
	words := make([]Word, 0, len(spans))
	for _, span := range spans {
		words = append(words, p.convert(span))
	}
	return words, nil
}

// Symbols returns only the symbol sequences of text's spans, as strings. It's what training needs:
// offsets are not computed.
func (p *PreTokenizer) Symbols(text string) ([]string, error) {
	spans, err := p.Split(text)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(spans))
	var buf []byte
	for _, span := range spans {
		buf = buf[:0]
		for _, r := range span.Text {
			buf = p.scheme.AppendRune(buf, r)
		}
		out = append(out, alphabet.Encode(buf))
	}
	return out, nil
}

func (p *PreTokenizer) convert(span Span) Word {
	w := Word{Start: span.Start, End: span.End}
	var buf []byte
	pos := span.Start
	for i, r := range span.Text {
		charStart, charEnd := pos, pos+utf8.RuneLen(r)
		if span.prefixed && i == 0 {
			// Synthetic prefix space: no bytes in the original text.
			charEnd = charStart
		}
		buf = p.scheme.AppendRune(buf[:0], r)
		for j, b := range buf {
			w.Symbols = append(w.Symbols, alphabet.ByteToSymbol(b))
			if j == 0 {
				w.Offsets = append(w.Offsets, api.TokenSpan{Start: charStart, End: charEnd})
			} else {
				w.Offsets = append(w.Offsets, api.TokenSpan{Start: charEnd, End: charEnd})
			}
		}
		pos = charEnd
	}
	return w
}

func validateUTF8(text string) error {
	if utf8.ValidString(text) {
		return nil
	}
	for pos := 0; pos < len(text); {
		r, size := utf8.DecodeRuneInString(text[pos:])
		if r == utf8.RuneError && size <= 1 {
			return errors.Wrapf(transcode.ErrInvalidUTF8, "byte 0x%02X at offset %d", text[pos], pos)
		}
		pos += size
	}
	return transcode.ErrInvalidUTF8
}
