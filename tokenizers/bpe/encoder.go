package bpe

import (
	"cmp"

	heap "github.com/emirpasic/gods/v2/trees/binaryheap"
	"github.com/gomlx/go-utf16bpe/tokenizers/api"
	"github.com/gomlx/go-utf16bpe/tokenizers/pretokenizer"
	"github.com/pkg/errors"
)

// symbol is a node of the doubly linked list of symbols of the word being encoded.
type symbol struct {
	id         int
	prev, next int
	span       api.TokenSpan
	merged     bool // absorbed into its left neighbor
}

// candidate is an adjacent pair with a merge rule.
type candidate struct {
	left, right     int // positions in the symbols list
	leftID, rightID int
	rank, mergedID  int
}

// EncodeWord applies the merge rules to one pre-tokenized word and returns its tokens.
//
// The pair with the lowest rank is merged first, ties going to the leftmost occurrence, until no
// adjacent pair has a rule. This reproduces the decisions made in training. Each token's span is
// carried through the merges: a merged token spans from its left part's start to its right
// part's end.
func (m *Model) EncodeWord(word pretokenizer.Word) ([]api.Token, error) {
	if len(word.Symbols) == 0 {
		return nil, nil
	}
	symbols := make([]symbol, len(word.Symbols))
	for i, r := range word.Symbols {
		id, ok := m.vocab.ID(string(r))
		if !ok {
			return nil, errors.Wrapf(ErrUnknownSymbol, "symbol %q (%U) at position %d", r, r, i)
		}
		symbols[i] = symbol{id: id, prev: i - 1, next: i + 1}
		if i < len(word.Offsets) {
			symbols[i].span = word.Offsets[i]
		}
	}

	queue := heap.NewWith(func(a, b *candidate) int {
		if c := cmp.Compare(a.rank, b.rank); c != 0 {
			return c
		}
		return cmp.Compare(a.left, b.left)
	})
	pairAt := func(left, right int) *candidate {
		if left < 0 || right >= len(symbols) {
			return nil
		}
		l, r := symbols[left].id, symbols[right].id
		entry, ok := m.ranks[pairKey{l, r}]
		if !ok {
			return nil
		}
		return &candidate{left: left, right: right, leftID: l, rightID: r, rank: entry.rank, mergedID: entry.merged}
	}

	for i := 0; i < len(symbols)-1; i++ {
		if c := pairAt(i, i+1); c != nil {
			queue.Push(c)
		}
	}

	for !queue.Empty() {
		c, _ := queue.Pop()
		left, right := &symbols[c.left], &symbols[c.right]
		if left.merged || right.merged || left.next != c.right || left.id != c.leftID || right.id != c.rightID {
			// Stale: one side changed since the candidate was queued.
			continue
		}

		left.id = c.mergedID
		left.span.End = right.span.End
		left.next = right.next
		right.merged = true
		if right.next < len(symbols) {
			symbols[right.next].prev = c.left
		}

		if p := pairAt(left.prev, c.left); p != nil {
			queue.Push(p)
		}
		if p := pairAt(c.left, left.next); p != nil {
			queue.Push(p)
		}
	}

	var tokens []api.Token
	for i := 0; i < len(symbols); i = symbols[i].next {
		s := symbols[i]
		value, _ := m.vocab.Token(s.id)
		tokens = append(tokens, api.Token{ID: s.id, Value: value, Span: s.span})
	}
	return tokens, nil
}

// EncodeSymbols is like EncodeWord for a bare symbol string (as produced by
// pretokenizer.PreTokenizer.Symbols), returning only the ids.
func (m *Model) EncodeSymbols(symbols string) ([]int, error) {
	tokens, err := m.EncodeWord(pretokenizer.Word{Symbols: []rune(symbols)})
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		ids[i] = tok.ID
	}
	return ids, nil
}
