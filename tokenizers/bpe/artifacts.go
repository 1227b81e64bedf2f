package bpe

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MergesHeader is the first line of a merges file.
const MergesHeader = "#version: 0.2"

// ErrInvalidArtifact is returned when a vocabulary or merges file can't be parsed.
var ErrInvalidArtifact = errors.New("invalid tokenizer artifact")

// WriteVocab writes the vocabulary as a JSON object, one `"token": id` entry per line, in id order.
// The output only depends on the vocabulary, so reading it back and writing it again yields the same
// bytes.
func WriteVocab(w io.Writer, v *Vocabulary) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("{\n"); err != nil {
		return errors.Wrap(err, "writing vocabulary")
	}
	for id, tok := range v.tokens {
		key, err := marshalString(tok)
		if err != nil {
			return errors.WithMessagef(err, "token id %d", id)
		}
		bw.WriteString("  ")
		bw.Write(key)
		bw.WriteString(": ")
		bw.WriteString(strconv.Itoa(id))
		if id < len(v.tokens)-1 {
			bw.WriteByte(',')
		}
		bw.WriteByte('\n')
	}
	bw.WriteString("}\n")
	return errors.Wrap(bw.Flush(), "writing vocabulary")
}

// marshalString quotes s as a JSON string without HTML escaping, so symbols stay readable.
func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, errors.Wrapf(err, "encoding %q", s)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// ReadVocab reads a vocabulary written by WriteVocab, or any JSON object mapping tokens to ids
// that are dense from 0 and start with the 256 base symbols.
func ReadVocab(r io.Reader) (*Vocabulary, error) {
	var entries map[string]int
	dec := json.NewDecoder(r)
	if err := dec.Decode(&entries); err != nil {
		return nil, errors.Wrapf(ErrInvalidArtifact, "parsing vocabulary JSON: %v", err)
	}
	v, err := NewVocabularyFromMap(entries)
	if err != nil {
		return nil, errors.WithMessage(err, "loading vocabulary")
	}
	return v, nil
}

// NewVocabularyFromMap creates a vocabulary from a token to id mapping. The ids must be dense from
// 0 and start with the 256 base symbols.
func NewVocabularyFromMap(entries map[string]int) (*Vocabulary, error) {
	tokens := make([]string, len(entries))
	seen := make([]bool, len(entries))
	for tok, id := range entries {
		if id < 0 || id >= len(entries) {
			return nil, errors.Wrapf(ErrInvalidArtifact, "token %q has id %d, ids must be in [0, %d)", tok, id, len(entries))
		}
		if seen[id] {
			return nil, errors.Wrapf(ErrInvalidArtifact, "id %d assigned to more than one token (%q, %q)", id, tokens[id], tok)
		}
		tokens[id], seen[id] = tok, true
	}
	return NewVocabularyFromTokens(tokens)
}

// WriteMerges writes the merge rules in rank order: the MergesHeader line, then one
// "left right" line per rule. Tokens never contain a space: the space byte is an alphabet symbol
// of its own.
func WriteMerges(w io.Writer, merges []MergeRule) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(MergesHeader)
	bw.WriteByte('\n')
	for _, rule := range merges {
		bw.WriteString(rule.Left)
		bw.WriteByte(' ')
		bw.WriteString(rule.Right)
		bw.WriteByte('\n')
	}
	return errors.Wrap(bw.Flush(), "writing merges")
}

// ReadMerges reads merge rules written by WriteMerges. The header line is optional; empty lines
// are skipped. Ranks are assigned in line order.
func ReadMerges(r io.Reader) ([]MergeRule, error) {
	var merges []MergeRule
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" || (lineNum == 1 && strings.HasPrefix(line, "#version")) {
			continue
		}
		left, right, ok := strings.Cut(line, " ")
		if !ok || left == "" || right == "" || strings.Contains(right, " ") {
			return nil, errors.Wrapf(ErrInvalidArtifact, "merges line %d: expected \"left right\", got %q", lineNum, line)
		}
		merges = append(merges, MergeRule{Left: left, Right: right, Merged: left + right, Rank: len(merges)})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading merges")
	}
	return merges, nil
}
