// Package api defines the Tokenizer API.
// It's kept separate from the implementations to break cyclic dependencies: the byte-level
// packages, the tokenizer.json codec and the CLI all depend on it, and nothing it depends on.
package api

// TokenSpan represents the byte span of a token in the original text.
// Start and End are byte offsets (not rune offsets), suitable for slicing
// Go strings directly: originalText[span.Start:span.End].
//
// For byte-level tokenizers a token may hold only part of a character's bytes. The character is
// then attributed to the token holding its first byte, and the other tokens get an empty span
// positioned at the end of the character. This keeps the spans of an encoding tiling the text.
type TokenSpan struct {
	Start int // start byte position (inclusive)
	End   int // end byte position (exclusive)
}

// Len returns the number of bytes in the span.
func (s TokenSpan) Len() int { return s.End - s.Start }

// Token is one element of an encoding: the vocabulary id, the vocabulary string and the span of the
// original text it decodes to.
type Token struct {
	ID    int
	Value string
	Span  TokenSpan
}

// EncodingResult contains tokens with their spans in the original text.
type EncodingResult struct {
	IDs   []int       // token IDs
	Spans []TokenSpan // byte spans for each token (use originalText[span.Start:span.End] to extract)
}

// Tokenizer interface allows one convert text to "tokens" (integer ids) and back.
//
// Both directions may fail: encoding on malformed UTF-8 input, decoding on ids that don't
// reassemble into valid text. Failures are never papered over with replacement characters.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)

	// VocabSize returns the number of distinct ids.
	VocabSize() int
}

// TokenizerWithSpans extends Tokenizer with span tracking capability.
// This is useful for token classification tasks (NER, chunking) where you need
// to map token predictions back to byte positions in the original text.
type TokenizerWithSpans interface {
	Tokenizer
	// EncodeWithSpans returns tokens along with their byte spans in the original text.
	EncodeWithSpans(text string) (EncodingResult, error)
}
