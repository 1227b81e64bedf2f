// Package bpe implements byte-level Byte-Pair-Encoding over the 256-symbol alphabet of package
// alphabet: the vocabulary and merge-rule model, the merge trainer, and the encoder and decoder.
//
// The 256 base symbols always occupy ids 0 to 255, in byte-value order: id b is the symbol of
// byte b. Merged tokens follow, in the order training created them.
package bpe

import (
	"github.com/gomlx/go-utf16bpe/tokenizers/alphabet"
	"github.com/pkg/errors"
)

// NumBaseTokens is the number of base (single byte) tokens at the start of every vocabulary.
const NumBaseTokens = alphabet.Size

var (
	// ErrUnknownSymbol is returned when a token contains a character outside the byte alphabet, or
	// a base symbol is missing from the vocabulary. It's the same error value as
	// alphabet.ErrUnknownSymbol.
	ErrUnknownSymbol = alphabet.ErrUnknownSymbol

	// ErrUnknownID is returned when decoding an id that is not in the vocabulary.
	ErrUnknownID = errors.New("unknown token id")

	// ErrVocabSizeTooSmall is returned when training is asked for fewer tokens than the base alphabet.
	ErrVocabSizeTooSmall = errors.New("vocabulary size smaller than the base alphabet")
)

// Vocabulary maps token strings to ids and back. Ids are dense, starting at 0, in insertion order.
//
// A Vocabulary is only mutated while being built (training or loading); afterwards it's read-only
// and safe for concurrent use.
type Vocabulary struct {
	tokens []string
	ids    map[string]int
}

// NewVocabulary returns a vocabulary holding only the 256 base symbols.
func NewVocabulary() *Vocabulary {
	v := &Vocabulary{
		tokens: make([]string, 0, NumBaseTokens),
		ids:    make(map[string]int, NumBaseTokens),
	}
	for b := 0; b < NumBaseTokens; b++ {
		v.add(string(alphabet.ByteToSymbol(byte(b))))
	}
	return v
}

// NewVocabularyFromTokens creates a vocabulary where tokens[i] has id i.
// It fails if a token is empty, repeated or holds characters outside the alphabet, or if the base
// symbols are not at ids 0 to 255.
func NewVocabularyFromTokens(tokens []string) (*Vocabulary, error) {
	v := &Vocabulary{
		tokens: make([]string, 0, len(tokens)),
		ids:    make(map[string]int, len(tokens)),
	}
	for i, tok := range tokens {
		if tok == "" {
			return nil, errors.Wrapf(ErrUnknownSymbol, "empty token at id %d", i)
		}
		for _, r := range tok {
			if !alphabet.IsSymbol(r) {
				return nil, errors.Wrapf(ErrUnknownSymbol, "token %q at id %d holds %q, not an alphabet symbol", tok, i, r)
			}
		}
		if _, added := v.add(tok); !added {
			return nil, errors.Errorf("token %q repeated at id %d (first seen at id %d)", tok, i, v.ids[tok])
		}
	}
	if err := v.checkBase(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vocabulary) checkBase() error {
	if len(v.tokens) < NumBaseTokens {
		return errors.Wrapf(ErrUnknownSymbol, "vocabulary has %d tokens, the %d base symbols are required", len(v.tokens), NumBaseTokens)
	}
	for b := 0; b < NumBaseTokens; b++ {
		want := string(alphabet.ByteToSymbol(byte(b)))
		if v.tokens[b] != want {
			return errors.Wrapf(ErrUnknownSymbol, "id %d holds %q, expected base symbol %q of byte 0x%02X", b, v.tokens[b], want, b)
		}
	}
	return nil
}

// add appends token if it's not yet present. It returns the token's id and whether it was added.
func (v *Vocabulary) add(token string) (int, bool) {
	if id, ok := v.ids[token]; ok {
		return id, false
	}
	id := len(v.tokens)
	v.tokens = append(v.tokens, token)
	v.ids[token] = id
	return id, true
}

// Len returns the number of tokens.
func (v *Vocabulary) Len() int { return len(v.tokens) }

// ID returns the id of token.
func (v *Vocabulary) ID(token string) (int, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// Token returns the string of id.
func (v *Vocabulary) Token(id int) (string, bool) {
	if id < 0 || id >= len(v.tokens) {
		return "", false
	}
	return v.tokens[id], true
}

// Tokens returns a copy of all tokens, indexed by id.
func (v *Vocabulary) Tokens() []string {
	return append([]string(nil), v.tokens...)
}

// Map returns a copy of the token to id mapping.
func (v *Vocabulary) Map() map[string]int {
	m := make(map[string]int, len(v.ids))
	for k, id := range v.ids {
		m[k] = id
	}
	return m
}

// MergeRule is one learned merge: the adjacent pair (Left, Right) becomes Merged = Left + Right.
// Rules are ordered by Rank; lower ranks were learned first and are applied first.
type MergeRule struct {
	Left, Right, Merged string
	Rank                int
}
