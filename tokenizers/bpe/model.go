package bpe

import (
	"github.com/gomlx/go-utf16bpe/tokenizers/transcode"
	"github.com/pkg/errors"
)

// pairKey identifies an adjacent pair of tokens by their ids.
type pairKey struct {
	left, right int
}

// mergeEntry is what the encoder needs to know about a learned pair.
type mergeEntry struct {
	rank   int
	merged int
}

// Model is a trained (or loaded) BPE model: vocabulary, ordered merge rules and the byte
// serialization scheme they were learned over.
//
// A Model is immutable and safe for concurrent use: any number of encodes and decodes may run in
// parallel.
type Model struct {
	vocab  *Vocabulary
	merges []MergeRule
	ranks  map[pairKey]mergeEntry
	scheme transcode.Scheme
}

// NewModel creates a model from a vocabulary and merge rules in rank order.
// The rules' Rank fields are reset to their position in merges.
//
// Every rule's Left, Right and Left+Right must be in the vocabulary. A pair listed twice keeps its
// first (lowest) rank.
func NewModel(vocab *Vocabulary, merges []MergeRule, scheme transcode.Scheme) (*Model, error) {
	if err := vocab.checkBase(); err != nil {
		return nil, err
	}
	m := &Model{
		vocab:  vocab,
		merges: make([]MergeRule, len(merges)),
		ranks:  make(map[pairKey]mergeEntry, len(merges)),
		scheme: scheme,
	}
	for rank, rule := range merges {
		left, ok := vocab.ID(rule.Left)
		if !ok {
			return nil, errors.Errorf("merge #%d (%q, %q): left token not in vocabulary", rank, rule.Left, rule.Right)
		}
		right, ok := vocab.ID(rule.Right)
		if !ok {
			return nil, errors.Errorf("merge #%d (%q, %q): right token not in vocabulary", rank, rule.Left, rule.Right)
		}
		merged := rule.Left + rule.Right
		if rule.Merged != "" && rule.Merged != merged {
			return nil, errors.Errorf("merge #%d (%q, %q): merged token %q is not the concatenation", rank, rule.Left, rule.Right, rule.Merged)
		}
		mergedID, ok := vocab.ID(merged)
		if !ok {
			return nil, errors.Errorf("merge #%d (%q, %q): merged token %q not in vocabulary", rank, rule.Left, rule.Right, merged)
		}
		m.merges[rank] = MergeRule{Left: rule.Left, Right: rule.Right, Merged: merged, Rank: rank}
		key := pairKey{left, right}
		if _, found := m.ranks[key]; !found {
			m.ranks[key] = mergeEntry{rank: rank, merged: mergedID}
		}
	}
	return m, nil
}

// Vocabulary returns the model's vocabulary. It must not be modified.
func (m *Model) Vocabulary() *Vocabulary { return m.vocab }

// Merges returns a copy of the merge rules in rank order.
func (m *Model) Merges() []MergeRule {
	return append([]MergeRule(nil), m.merges...)
}

// Scheme returns the byte serialization the model was trained over.
func (m *Model) Scheme() transcode.Scheme { return m.scheme }

// VocabSize returns the number of tokens in the vocabulary.
func (m *Model) VocabSize() int { return m.vocab.Len() }

// Rank returns the rank of the merge rule for (left, right), or -1 if there is none.
func (m *Model) Rank(left, right string) int {
	l, ok := m.vocab.ID(left)
	if !ok {
		return -1
	}
	r, ok := m.vocab.ID(right)
	if !ok {
		return -1
	}
	if e, ok := m.ranks[pairKey{l, r}]; ok {
		return e.rank
	}
	return -1
}
