// Package hftokenizer converts UTF-16 byte-level BPE tokenizers to and from HuggingFace's
// tokenizer.json format, the single-file format of the HuggingFace Tokenizers library.
//
// The model is stored as a regular "BPE" model (vocab and merges). The pre-tokenizer and decoder
// use the "UTF16ByteLevel" type, carrying the serialization (encoding and byte order) the
// vocabulary was built over.
package hftokenizer

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/gomlx/go-utf16bpe/internal/files"
	"github.com/gomlx/go-utf16bpe/tokenizers/bpe"
	"github.com/gomlx/go-utf16bpe/tokenizers/pretokenizer"
	"github.com/gomlx/go-utf16bpe/tokenizers/transcode"
	"github.com/gomlx/go-utf16bpe/tokenizers/utf16bpe"
	"github.com/pkg/errors"
)

// Version written in the "version" field.
const Version = "1.0"

// ByteLevelType is the type of the pre-tokenizer and decoder entries.
const ByteLevelType = "UTF16ByteLevel"

// TokenizerJSON represents the structure of HuggingFace's tokenizer.json file.
type TokenizerJSON struct {
	Version       string          `json:"version"`
	Truncation    json.RawMessage `json:"truncation"`
	Padding       json.RawMessage `json:"padding"`
	AddedTokens   []AddedToken    `json:"added_tokens"`
	Normalizer    json.RawMessage `json:"normalizer"`
	PreTokenizer  *PreTokenizer   `json:"pre_tokenizer"`
	PostProcessor json.RawMessage `json:"post_processor"`
	Decoder       *Decoder        `json:"decoder"`
	Model         Model           `json:"model"`
}

// AddedToken represents a token added on top of the model's vocabulary.
// They are not supported, but parsed so they can be reported.
type AddedToken struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Special bool   `json:"special"`
}

// Pattern for regex-based operations.
type Pattern struct {
	Regex  string `json:"Regex,omitempty"`
	String string `json:"String,omitempty"`
}

// PreTokenizer represents the pre-tokenizer configuration.
type PreTokenizer struct {
	Type           string           `json:"type"`
	AddPrefixSpace bool             `json:"add_prefix_space"`
	Encoding       transcode.Scheme `json:"encoding"`
	ByteOrder      string           `json:"byte_order,omitempty"`
	UseRegex       *bool            `json:"use_regex,omitempty"`
	Pattern        *Pattern         `json:"pattern,omitempty"`
}

// Decoder represents the decoder configuration.
type Decoder struct {
	Type      string           `json:"type"`
	Encoding  transcode.Scheme `json:"encoding"`
	ByteOrder string           `json:"byte_order,omitempty"`
}

// Model represents the BPE model.
//
// Merges are written as "left right" strings. When reading, the newer [["left", "right"], ...]
// form is accepted too.
type Model struct {
	Type     string          `json:"type"`
	Dropout  *float64        `json:"dropout"`
	UnkToken *string         `json:"unk_token"`
	Vocab    map[string]int  `json:"vocab"`
	Merges   json.RawMessage `json:"merges"`
}

// FromTokenizer builds the tokenizer.json structure of tok.
func FromTokenizer(tok *utf16bpe.Tokenizer) (*TokenizerJSON, error) {
	config := tok.Config()
	byteOrder := ""
	if config.Scheme.IsUTF16() {
		byteOrder = config.Scheme.ByteOrder().String()
	}
	useRegex := !config.NoSplit
	var pattern *Pattern
	if useRegex {
		pattern = &Pattern{Regex: pretokenizer.DefaultPattern}
	}
	merges := tok.Model().Merges()
	lines := make([]string, len(merges))
	for i, rule := range merges {
		lines[i] = rule.Left + " " + rule.Right
	}
	mergesJSON, err := marshalNoEscape(lines)
	if err != nil {
		return nil, errors.Wrap(err, "encoding merges")
	}
	return &TokenizerJSON{
		Version:       Version,
		Truncation:    json.RawMessage("null"),
		Padding:       json.RawMessage("null"),
		AddedTokens:   []AddedToken{},
		Normalizer:    json.RawMessage("null"),
		PostProcessor: json.RawMessage("null"),
		PreTokenizer: &PreTokenizer{
			Type:           ByteLevelType,
			AddPrefixSpace: config.AddPrefixSpace,
			Encoding:       config.Scheme,
			ByteOrder:      byteOrder,
			UseRegex:       &useRegex,
			Pattern:        pattern,
		},
		Decoder: &Decoder{Type: ByteLevelType, Encoding: config.Scheme, ByteOrder: byteOrder},
		Model: Model{
			Type:   "BPE",
			Vocab:  tok.Model().Vocabulary().Map(),
			Merges: mergesJSON,
		},
	}, nil
}

// Marshal returns the tokenizer.json content for tok.
func Marshal(tok *utf16bpe.Tokenizer) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, tok); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write writes the tokenizer.json content for tok to w.
func Write(w io.Writer, tok *utf16bpe.Tokenizer) error {
	tj, err := FromTokenizer(tok)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(tj), "encoding tokenizer.json")
}

// WriteFile writes the tokenizer.json for tok to filePath, atomically.
func WriteFile(filePath string, tok *utf16bpe.Tokenizer) error {
	return files.WriteFileAtomic(filePath, func(w io.Writer) error {
		return Write(w, tok)
	})
}

// NewFromFile creates a tokenizer from a local tokenizer.json file path.
func NewFromFile(filePath string) (*utf16bpe.Tokenizer, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer.json file %q", filePath)
	}
	return NewFromContent(content)
}

// NewFromContent creates a tokenizer from tokenizer.json content.
//
// Only what this module can reproduce exactly is accepted: a BPE model with UTF16ByteLevel
// pre-tokenizer (default split pattern, or no split with "use_regex": false) and decoder, no normalizer, no added tokens. Anything else
// fails with bpe.ErrInvalidArtifact.
func NewFromContent(content []byte) (*utf16bpe.Tokenizer, error) {
	var tj TokenizerJSON
	if err := json.Unmarshal(content, &tj); err != nil {
		return nil, errors.Wrapf(bpe.ErrInvalidArtifact, "failed to parse tokenizer.json: %v", err)
	}
	config, err := parseConfig(&tj)
	if err != nil {
		return nil, err
	}

	vocab, err := bpe.NewVocabularyFromMap(tj.Model.Vocab)
	if err != nil {
		return nil, errors.WithMessage(err, "tokenizer.json model vocab")
	}
	merges, err := parseMerges(tj.Model.Merges)
	if err != nil {
		return nil, err
	}
	model, err := bpe.NewModel(vocab, merges, config.Scheme)
	if err != nil {
		return nil, errors.WithMessage(err, "tokenizer.json model")
	}
	return utf16bpe.New(model, config)
}

func parseConfig(tj *TokenizerJSON) (utf16bpe.Config, error) {
	invalid := func(format string, args ...any) (utf16bpe.Config, error) {
		return utf16bpe.Config{}, errors.Wrapf(bpe.ErrInvalidArtifact, "tokenizer.json: "+format, args...)
	}
	if tj.Model.Type != "BPE" {
		return invalid("model type %q not supported, only \"BPE\"", tj.Model.Type)
	}
	if tj.Model.Dropout != nil && *tj.Model.Dropout != 0 {
		return invalid("BPE dropout not supported")
	}
	if isSet(tj.Normalizer) {
		return invalid("normalizers are not supported")
	}
	if len(tj.AddedTokens) > 0 {
		return invalid("%d added tokens (e.g. %q) not supported", len(tj.AddedTokens), tj.AddedTokens[0].Content)
	}
	pt := tj.PreTokenizer
	if pt == nil || pt.Type != ByteLevelType {
		return invalid("pre_tokenizer must be of type %q", ByteLevelType)
	}
	if pt.Pattern != nil && pt.Pattern.Regex != "" && pt.Pattern.Regex != pretokenizer.DefaultPattern {
		return invalid("custom split pattern %q not supported", pt.Pattern.Regex)
	}
	if err := checkByteOrder(pt.Encoding, pt.ByteOrder); err != nil {
		return utf16bpe.Config{}, err
	}
	if d := tj.Decoder; d != nil {
		if d.Type != ByteLevelType {
			return invalid("decoder must be of type %q, got %q", ByteLevelType, d.Type)
		}
		if d.Encoding != pt.Encoding {
			return invalid("decoder encoding %s differs from pre_tokenizer encoding %s", d.Encoding, pt.Encoding)
		}
		if err := checkByteOrder(d.Encoding, d.ByteOrder); err != nil {
			return utf16bpe.Config{}, err
		}
	}
	return utf16bpe.Config{
		Scheme:         pt.Encoding,
		AddPrefixSpace: pt.AddPrefixSpace,
		NoSplit:        pt.UseRegex != nil && !*pt.UseRegex,
	}, nil
}

func checkByteOrder(scheme transcode.Scheme, byteOrder string) error {
	if byteOrder == "" || !scheme.IsUTF16() {
		return nil
	}
	order, err := transcode.ParseByteOrder(byteOrder)
	if err != nil {
		return errors.Wrapf(bpe.ErrInvalidArtifact, "tokenizer.json: %v", err)
	}
	if transcode.SchemeFor(order) != scheme {
		return errors.Wrapf(bpe.ErrInvalidArtifact, "tokenizer.json: byte order %q contradicts encoding %s", byteOrder, scheme)
	}
	return nil
}

// marshalNoEscape is json.Marshal without HTML escaping. A json.RawMessage is copied as is by the
// outer encoder, so it must already be unescaped.
func marshalNoEscape(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// isSet returns whether a raw JSON field is present and not null.
func isSet(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null"
}

func parseMerges(raw json.RawMessage) ([]bpe.MergeRule, error) {
	if !isSet(raw) {
		return nil, nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		merges := make([]bpe.MergeRule, 0, len(lines))
		for i, line := range lines {
			left, right, ok := strings.Cut(line, " ")
			if !ok || left == "" || right == "" || strings.Contains(right, " ") {
				return nil, errors.Wrapf(bpe.ErrInvalidArtifact, "tokenizer.json: merge #%d %q is not \"left right\"", i, line)
			}
			merges = append(merges, bpe.MergeRule{Left: left, Right: right, Rank: i})
		}
		return merges, nil
	}
	var pairs [][]string
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, errors.Wrapf(bpe.ErrInvalidArtifact, "tokenizer.json: merges are neither strings nor pairs: %v", err)
	}
	merges := make([]bpe.MergeRule, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, errors.Wrapf(bpe.ErrInvalidArtifact, "tokenizer.json: merge #%d has %d elements, expected 2", i, len(pair))
		}
		merges = append(merges, bpe.MergeRule{Left: pair[0], Right: pair[1], Rank: i})
	}
	return merges, nil
}
