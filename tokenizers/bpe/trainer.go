package bpe

import (
	"context"
	"iter"
	"runtime"
	"slices"

	heap "github.com/emirpasic/gods/v2/trees/binaryheap"
	"github.com/gomlx/go-utf16bpe/tokenizers/alphabet"
	"github.com/gomlx/go-utf16bpe/tokenizers/pretokenizer"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Default values used by Trainer when the corresponding field is left as zero.
const (
	DefaultMinFrequency = 1
	DefaultBatchSize    = 4096
	DefaultLogEvery     = 1000
)

// Trainer learns merge rules from a corpus.
//
// Training is greedy: at every step the most frequent adjacent pair of tokens (ties broken by the
// lexicographically smallest (left, right) token strings) becomes a new merge rule and token. It
// stops when the vocabulary reaches VocabSize or the most frequent pair occurs fewer than
// MinFrequency times. The result depends only on the corpus contents and the parameters, so
// re-training yields identical vocabularies and merges.
type Trainer struct {
	// VocabSize is the target vocabulary size, base symbols included. It must be at least 256.
	VocabSize int

	// MinFrequency is the minimum number of occurrences of a pair for it to be merged.
	// Defaults to DefaultMinFrequency.
	MinFrequency int64

	// Workers is the number of goroutines pre-tokenizing and counting the corpus.
	// Defaults to runtime.NumCPU().
	Workers int

	// BatchSize is the number of corpus segments handed out to the workers at a time.
	// Defaults to DefaultBatchSize.
	BatchSize int

	// LogEvery sets how often (in merges) progress is logged at verbosity 1.
	// Defaults to DefaultLogEvery.
	LogEvery int

	// PreTokenizer splits and converts the corpus segments. Its scheme becomes the model's scheme.
	PreTokenizer *pretokenizer.PreTokenizer
}

// word is one distinct pre-tokenized span of the corpus, as token ids, with its frequency.
type word struct {
	ids   []int
	count int64
}

type pairDelta struct {
	pair  pairKey
	delta int64
}

// merge rewrites all non-overlapping occurrences of pair, left to right, into newID.
// It returns the pair count changes for this word, not yet multiplied by the word's frequency.
func (w *word) merge(pair pairKey, newID int) []pairDelta {
	n := len(w.ids)
	if n < 2 {
		return nil
	}
	var deltas []pairDelta
	out := w.ids[:0:0]
	for i := 0; i < n; {
		if i+1 < n && w.ids[i] == pair.left && w.ids[i+1] == pair.right {
			if len(out) > 0 {
				prev := out[len(out)-1]
				deltas = append(deltas,
					pairDelta{pairKey{prev, pair.left}, -1},
					pairDelta{pairKey{prev, newID}, 1})
			}
			deltas = append(deltas, pairDelta{pair, -1})
			if i+2 < n {
				next := w.ids[i+2]
				deltas = append(deltas,
					pairDelta{pairKey{pair.right, next}, -1},
					pairDelta{pairKey{newID, next}, 1})
			}
			out = append(out, newID)
			i += 2
		} else {
			out = append(out, w.ids[i])
			i++
		}
	}
	w.ids = out
	return deltas
}

// mergeJob is a heap entry. Its count may be stale; it's checked against the live count when popped.
type mergeJob struct {
	pair  pairKey
	count int64
}

// trainingState is the single evolving structure of a training run: the words, the live pair
// counts, where each pair occurs, and the vocabulary and rules built so far.
type trainingState struct {
	words      []word
	pairCounts map[pairKey]int64
	where      map[pairKey]map[int]struct{}
	vocab      *Vocabulary
	merges     []MergeRule
	learned    map[pairKey]bool
	queue      *heap.Heap[*mergeJob]
}

// Train learns a model from corpus. The corpus is consumed once, lazily.
//
// If ctx is cancelled, training stops between two merge steps and returns the model learned so far
// (every committed step is complete) together with an error wrapping ctx.Err().
func (t *Trainer) Train(ctx context.Context, corpus iter.Seq2[string, error]) (*Model, error) {
	if t.VocabSize < NumBaseTokens {
		return nil, errors.Wrapf(ErrVocabSizeTooSmall, "requested %d, minimum is %d", t.VocabSize, NumBaseTokens)
	}
	pre := t.PreTokenizer
	if pre == nil {
		pre = pretokenizer.MustNew(pretokenizer.Options{})
	}

	counts, err := t.countWords(ctx, corpus, pre)
	if err != nil {
		return nil, err
	}
	state := newTrainingState(counts)
	klog.V(1).Infof("BPE training: %d distinct words, %d distinct pairs, target vocabulary size %d",
		len(state.words), len(state.pairCounts), t.VocabSize)

	trainErr := t.mergeLoop(ctx, state)
	model, err := NewModel(state.vocab, state.merges, pre.Scheme())
	if err != nil {
		return nil, errors.WithMessage(err, "building model from training results")
	}
	return model, trainErr
}

// countWords pre-tokenizes the corpus and counts the distinct symbol sequences.
// Batches of segments are counted in parallel (the map step); the per-batch counts are then merged
// sequentially.
func (t *Trainer) countWords(ctx context.Context, corpus iter.Seq2[string, error], pre *pretokenizer.PreTokenizer) (map[string]int64, error) {
	workers := t.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := t.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	counts := make(map[string]int64)
	var numSegments int
	countBatch := func(batch []string) error {
		chunkSize := (len(batch) + workers - 1) / workers
		locals := make([]map[string]int64, 0, workers)
		g, gCtx := errgroup.WithContext(ctx)
		for chunk := range slices.Chunk(batch, max(chunkSize, 1)) {
			local := make(map[string]int64)
			locals = append(locals, local)
			g.Go(func() error {
				for _, segment := range chunk {
					if err := gCtx.Err(); err != nil {
						return err
					}
					symbols, err := pre.Symbols(segment)
					if err != nil {
						return err
					}
					for _, s := range symbols {
						local[s]++
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, local := range locals {
			for s, c := range local {
				counts[s] += c
			}
		}
		numSegments += len(batch)
		return nil
	}

	batch := make([]string, 0, batchSize)
	for segment, err := range corpus {
		if err != nil {
			return nil, errors.WithMessage(err, "reading training corpus")
		}
		batch = append(batch, segment)
		if len(batch) == batchSize {
			if err := countBatch(batch); err != nil {
				return nil, errors.WithMessage(err, "counting training corpus")
			}
			batch = make([]string, 0, batchSize)
		}
	}
	if len(batch) > 0 {
		if err := countBatch(batch); err != nil {
			return nil, errors.WithMessage(err, "counting training corpus")
		}
	}
	klog.V(1).Infof("BPE training: pre-tokenized %d corpus segments", numSegments)
	return counts, nil
}

func newTrainingState(counts map[string]int64) *trainingState {
	s := &trainingState{
		pairCounts: make(map[pairKey]int64),
		where:      make(map[pairKey]map[int]struct{}),
		vocab:      NewVocabulary(),
		learned:    make(map[pairKey]bool),
	}

	// Sorted, so word indices (and hence logs) are reproducible.
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	s.words = make([]word, 0, len(keys))
	for _, k := range keys {
		ids := make([]int, 0, len(k))
		for _, r := range k {
			ids = append(ids, int(alphabet.MustSymbolToByte(r)))
		}
		s.words = append(s.words, word{ids: ids, count: counts[k]})
	}

	for idx, w := range s.words {
		for i := 0; i+1 < len(w.ids); i++ {
			p := pairKey{w.ids[i], w.ids[i+1]}
			s.pairCounts[p] += w.count
			s.addWhere(p, idx)
		}
	}

	s.queue = heap.NewWith(s.compareJobs)
	for p, c := range s.pairCounts {
		s.queue.Push(&mergeJob{pair: p, count: c})
	}
	return s
}

func (s *trainingState) addWhere(p pairKey, idx int) {
	set := s.where[p]
	if set == nil {
		set = make(map[int]struct{})
		s.where[p] = set
	}
	set[idx] = struct{}{}
}

// compareJobs orders the heap: highest count first, then smallest left token string, then smallest
// right token string.
func (s *trainingState) compareJobs(a, b *mergeJob) int {
	if a.count != b.count {
		if a.count > b.count {
			return -1
		}
		return 1
	}
	if a.pair == b.pair {
		return 0
	}
	al, bl := s.vocab.tokens[a.pair.left], s.vocab.tokens[b.pair.left]
	if al != bl {
		if al < bl {
			return -1
		}
		return 1
	}
	ar, br := s.vocab.tokens[a.pair.right], s.vocab.tokens[b.pair.right]
	if ar < br {
		return -1
	}
	if ar > br {
		return 1
	}
	return 0
}

// mergeLoop runs merge steps until a stop condition. Each step is committed completely before
// ctx is checked again.
func (t *Trainer) mergeLoop(ctx context.Context, s *trainingState) error {
	minFrequency := t.MinFrequency
	if minFrequency <= 0 {
		minFrequency = DefaultMinFrequency
	}
	logEvery := t.LogEvery
	if logEvery <= 0 {
		logEvery = DefaultLogEvery
	}

	for s.vocab.Len() < t.VocabSize {
		if err := ctx.Err(); err != nil {
			klog.Warningf("BPE training interrupted after %d merges (vocabulary size %d)", len(s.merges), s.vocab.Len())
			return errors.Wrapf(err, "training interrupted after %d merges", len(s.merges))
		}
		job, ok := s.queue.Pop()
		if !ok {
			klog.V(1).Infof("BPE training: no pairs left to merge")
			break
		}
		if live := s.pairCounts[job.pair]; live != job.count {
			if live > 0 {
				job.count = live
				s.queue.Push(job)
			}
			continue
		}
		if job.count < minFrequency {
			klog.V(1).Infof("BPE training: most frequent pair occurs %d times, below minimum frequency %d", job.count, minFrequency)
			break
		}

		mergedID, recorded := s.apply(job.pair)
		if !recorded {
			continue
		}
		n := len(s.merges)
		if n%logEvery == 0 || klog.V(2).Enabled() {
			last := s.merges[n-1]
			klog.V(1).Infof("BPE training: merge %d %q + %q -> %q (id %d, frequency %d)",
				n, last.Left, last.Right, last.Merged, mergedID, job.count)
		}
	}
	klog.Infof("BPE training finished: %d merges, vocabulary size %d", len(s.merges), s.vocab.Len())
	return nil
}

// apply commits one merge step for pair: it records the rule (unless the pair was already
// learned), adds the merged token to the vocabulary (unless it's already there), and rewrites
// every occurrence, updating only the counts of pairs touching rewritten positions.
func (s *trainingState) apply(pair pairKey) (mergedID int, recorded bool) {
	left, right := s.vocab.tokens[pair.left], s.vocab.tokens[pair.right]
	merged := left + right
	mergedID, _ = s.vocab.add(merged)
	if !s.learned[pair] {
		s.learned[pair] = true
		s.merges = append(s.merges, MergeRule{Left: left, Right: right, Merged: merged, Rank: len(s.merges)})
		recorded = true
	}

	touched := make(map[pairKey]struct{})
	for idx := range s.where[pair] {
		w := &s.words[idx]
		for _, d := range w.merge(pair, mergedID) {
			c := s.pairCounts[d.pair] + d.delta*w.count
			if c == 0 {
				delete(s.pairCounts, d.pair)
			} else {
				s.pairCounts[d.pair] = c
			}
			if d.delta > 0 {
				s.addWhere(d.pair, idx)
				touched[d.pair] = struct{}{}
			}
		}
	}
	delete(s.where, pair)
	delete(s.pairCounts, pair)

	for p := range touched {
		if c := s.pairCounts[p]; c > 0 {
			s.queue.Push(&mergeJob{pair: p, count: c})
		}
	}
	return mergedID, recorded
}
