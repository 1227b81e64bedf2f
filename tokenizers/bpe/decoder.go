package bpe

import (
	"github.com/gomlx/go-utf16bpe/tokenizers/alphabet"
	"github.com/pkg/errors"
)

// Decode converts ids back to text.
//
// The tokens' symbols are mapped back to bytes, and the bytes are decoded with the model's scheme.
// Malformed results are reported, never patched: transcode.ErrTruncatedCodeUnit if the bytes don't
// pair into code units, transcode.ErrUnpairedSurrogate for broken surrogate pairs
// (transcode.ErrInvalidUTF8 for the UTF-8 scheme), and ErrUnknownID for ids outside the
// vocabulary.
func (m *Model) Decode(ids []int) (string, error) {
	data, err := m.DecodeBytes(ids)
	if err != nil {
		return "", err
	}
	return m.scheme.Decode(data)
}

// DecodeBytes returns the raw byte stream ids map to, before it's decoded to text.
func (m *Model) DecodeBytes(ids []int) ([]byte, error) {
	var data []byte
	for i, id := range ids {
		tok, ok := m.vocab.Token(id)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownID, "id %d at position %d (vocabulary size %d)", id, i, m.vocab.Len())
		}
		var err error
		data, err = alphabet.AppendDecode(data, tok)
		if err != nil {
			return nil, errors.WithMessagef(err, "token id %d", id)
		}
	}
	return data, nil
}

// DecodeTokens is like Decode, but takes token strings. The strings need not be in the vocabulary,
// only made of alphabet symbols; ErrUnknownSymbol is returned otherwise.
func (m *Model) DecodeTokens(tokens []string) (string, error) {
	var data []byte
	for i, tok := range tokens {
		var err error
		data, err = alphabet.AppendDecode(data, tok)
		if err != nil {
			return "", errors.WithMessagef(err, "token #%d", i)
		}
	}
	return m.scheme.Decode(data)
}
