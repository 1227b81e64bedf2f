// Package utf16bpe is a byte-level BPE tokenizer that runs over the UTF-16 serialization of the text.
//
// Text is split into words (pretokenizer), each word is serialized to UTF-16 (little-endian by
// default) and every byte is mapped to one of 256 printable alphabet symbols. Merge rules learned
// by Train then combine adjacent symbols. Since the alphabet covers every byte, any valid text
// can be encoded, and decoding always gives back the exact input.
//
// UTF-16 packs most non-Latin scripts (Korean, Chinese, Japanese, ...) into 2 bytes per character,
// against 3 in UTF-8, so the same vocabulary budget goes further for them.
//
// Example:
//
//	tok, err := utf16bpe.Train(ctx, corpus.Lines("corpus.txt"), utf16bpe.TrainOptions{VocabSize: 32000})
//	if err != nil { ... }
//	ids, err := tok.Encode("안녕하세요 world")
//	text, err := tok.Decode(ids)
//	err = tok.Save(ctx, "my_tokenizer")
package utf16bpe

import (
	"context"
	"iter"

	"github.com/gomlx/go-utf16bpe/tokenizers/api"
	"github.com/gomlx/go-utf16bpe/tokenizers/bpe"
	"github.com/gomlx/go-utf16bpe/tokenizers/pretokenizer"
	"github.com/gomlx/go-utf16bpe/tokenizers/transcode"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ModelName identifies the tokenizer type in the persisted config.json.
const ModelName = "UTF16ByteLevelBPE"

// Config holds the tokenizer settings that must be the same for training and inference.
// They are persisted in config.json alongside the vocabulary.
type Config struct {
	// Scheme is the byte serialization of the text. Defaults to transcode.UTF16LE.
	Scheme transcode.Scheme

	// AddPrefixSpace prepends a space to texts that don't start with one, so the first word is
	// tokenized like the following ones. The added space is encoded like any other character, so
	// when it's set Decode(Encode(text)) returns " "+text for such texts, not text.
	AddPrefixSpace bool

	// NoSplit encodes every text as a single word instead of splitting it on the GPT-2 pattern
	// first. Merges can then cross word boundaries.
	NoSplit bool
}

func (c Config) preTokenizerOptions() pretokenizer.Options {
	return pretokenizer.Options{AddPrefixSpace: c.AddPrefixSpace, Scheme: c.Scheme, NoSplit: c.NoSplit}
}

// DefaultConfig returns the default configuration: UTF-16LE, no prefix space.
func DefaultConfig() Config {
	return Config{Scheme: transcode.UTF16LE}
}

// Tokenizer encodes text into token ids and back. It implements api.TokenizerWithSpans.
//
// It's immutable and safe for concurrent use.
type Tokenizer struct {
	config  Config
	modelID uuid.UUID
	pre     *pretokenizer.PreTokenizer
	model   *bpe.Model
}

// Compile-time check that Tokenizer implements the api.
var _ api.TokenizerWithSpans = (*Tokenizer)(nil)

// New creates a Tokenizer from a trained (or loaded) model.
// The model must have been trained with the same scheme as config.Scheme.
func New(model *bpe.Model, config Config) (*Tokenizer, error) {
	if model.Scheme() != config.Scheme {
		return nil, errors.Errorf("model was trained over %s, configuration asks for %s", model.Scheme(), config.Scheme)
	}
	pre, err := pretokenizer.New(config.preTokenizerOptions())
	if err != nil {
		return nil, err
	}
	return &Tokenizer{config: config, modelID: uuid.New(), pre: pre, model: model}, nil
}

// TrainOptions configure Train.
type TrainOptions struct {
	// VocabSize is the target number of tokens, at least 256.
	VocabSize int

	// MinFrequency is the minimum number of occurrences for a pair to be merged. Defaults to 1.
	MinFrequency int64

	// Workers counting the corpus in parallel. Defaults to the number of CPUs.
	Workers int

	// Config of the trained tokenizer. The zero value is DefaultConfig().
	Config Config
}

// Train learns a tokenizer from corpus.
//
// If ctx is cancelled during the merge phase, the tokenizer learned so far is returned along with
// an error wrapping ctx.Err().
func Train(ctx context.Context, corpus iter.Seq2[string, error], opts TrainOptions) (*Tokenizer, error) {
	pre, err := pretokenizer.New(opts.Config.preTokenizerOptions())
	if err != nil {
		return nil, err
	}
	trainer := &bpe.Trainer{
		VocabSize:    opts.VocabSize,
		MinFrequency: opts.MinFrequency,
		Workers:      opts.Workers,
		PreTokenizer: pre,
	}
	model, trainErr := trainer.Train(ctx, corpus)
	if model == nil {
		return nil, trainErr
	}
	tok, err := New(model, opts.Config)
	if err != nil {
		return nil, err
	}
	return tok, trainErr
}

// Config returns the tokenizer configuration.
func (t *Tokenizer) Config() Config { return t.config }

// ModelID is a random identifier assigned when the tokenizer is created, and persisted by Save.
func (t *Tokenizer) ModelID() uuid.UUID { return t.modelID }

// Model returns the underlying vocabulary and merges.
func (t *Tokenizer) Model() *bpe.Model { return t.model }

// VocabSize implements api.Tokenizer.
func (t *Tokenizer) VocabSize() int { return t.model.VocabSize() }

// EncodeTokens encodes text into tokens: ids, token strings and the byte span of text each one
// decodes to. The spans tile text: they are in order, with no gaps or overlaps.
func (t *Tokenizer) EncodeTokens(text string) ([]api.Token, error) {
	words, err := t.pre.PreTokenize(text)
	if err != nil {
		return nil, err
	}
	tokens := make([]api.Token, 0, len(text))
	for _, word := range words {
		wordTokens, err := t.model.EncodeWord(word)
		if err != nil {
			return nil, errors.WithMessagef(err, "encoding word %q at offset %d", text[word.Start:word.End], word.Start)
		}
		tokens = append(tokens, wordTokens...)
	}
	return tokens, nil
}

// Encode implements api.Tokenizer.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	tokens, err := t.EncodeTokens(text)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		ids[i] = tok.ID
	}
	return ids, nil
}

// EncodeWithSpans implements api.TokenizerWithSpans.
func (t *Tokenizer) EncodeWithSpans(text string) (api.EncodingResult, error) {
	tokens, err := t.EncodeTokens(text)
	if err != nil {
		return api.EncodingResult{}, err
	}
	res := api.EncodingResult{
		IDs:   make([]int, len(tokens)),
		Spans: make([]api.TokenSpan, len(tokens)),
	}
	for i, tok := range tokens {
		res.IDs[i] = tok.ID
		res.Spans[i] = tok.Span
	}
	return res, nil
}

// EncodeBatch encodes texts in parallel, using up to workers goroutines (one per text if
// workers <= 0). It stops at the first error.
func (t *Tokenizer) EncodeBatch(ctx context.Context, texts []string, workers int) ([][]int, error) {
	results := make([][]int, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, text := range texts {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			ids, err := t.Encode(text)
			if err != nil {
				return errors.WithMessagef(err, "text #%d", i)
			}
			results[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Decode implements api.Tokenizer.
//
// Errors are reported, never replaced: bpe.ErrUnknownID, transcode.ErrTruncatedCodeUnit and
// transcode.ErrUnpairedSurrogate (or transcode.ErrInvalidUTF8 for the UTF-8 scheme).
func (t *Tokenizer) Decode(ids []int) (string, error) {
	return t.model.Decode(ids)
}

// DecodeTokens decodes token strings, see Decode.
func (t *Tokenizer) DecodeTokens(tokens []string) (string, error) {
	return t.model.DecodeTokens(tokens)
}

// TokenToID returns the id of token, if it's in the vocabulary.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	return t.model.Vocabulary().ID(token)
}

// IDToToken returns the token string of id, if it's in the vocabulary.
func (t *Tokenizer) IDToToken(id int) (string, bool) {
	return t.model.Vocabulary().Token(id)
}
