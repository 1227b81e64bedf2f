package main

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/gomlx/go-utf16bpe/corpus"
	"github.com/gomlx/go-utf16bpe/tokenizers/api"
	"github.com/gomlx/go-utf16bpe/tokenizers/sentencepiece"
	"github.com/gomlx/go-utf16bpe/tokenizers/transcode"
	"github.com/gomlx/go-utf16bpe/tokenizers/utf16bpe"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// namedTokenizer is one contender of the comparison.
type namedTokenizer struct {
	name string
	tok  api.Tokenizer
}

// tokenStats accumulates the evaluation of one tokenizer.
type tokenStats struct {
	tokens, bytes, chars, segments int
}

func newCompareCmd() *cobra.Command {
	var (
		corpusOpts        corpusFlags
		vocabSize         int
		workers           int
		addPrefixSpace    bool
		evalFiles         []string
		sentencePiecePath string
	)
	cmd := &cobra.Command{
		Use:   "compare [flags] FILE...",
		Short: "Compare UTF-16 and UTF-8 byte-level BPE trained with the same vocabulary budget",
		Long: "Trains one tokenizer per byte serialization (UTF-16LE, UTF-16BE and UTF-8) on the corpus files, with the\n" +
			"same vocabulary size, and reports how many tokens each needs to encode the evaluation files (the corpus\n" +
			"itself by default). Optionally a SentencePiece model is evaluated too.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			trainSource, err := corpusOpts.source(args)
			if err != nil {
				return err
			}
			evalSource := trainSource
			if len(evalFiles) > 0 {
				if evalSource, err = corpusOpts.source(evalFiles); err != nil {
					return err
				}
			}

			var contenders []namedTokenizer
			for _, scheme := range []transcode.Scheme{transcode.UTF16LE, transcode.UTF16BE, transcode.UTF8} {
				klog.V(1).Infof("Training %s tokenizer with %d tokens", scheme, vocabSize)
				tok, err := utf16bpe.Train(ctx, trainSource, utf16bpe.TrainOptions{
					VocabSize: vocabSize,
					Workers:   workers,
					Config:    utf16bpe.Config{Scheme: scheme, AddPrefixSpace: addPrefixSpace},
				})
				if err != nil {
					return err
				}
				contenders = append(contenders, namedTokenizer{name: "bpe " + scheme.String(), tok: tok})
			}
			if sentencePiecePath != "" {
				sp, err := sentencepiece.NewFromPath(sentencePiecePath)
				if err != nil {
					return err
				}
				contenders = append(contenders, namedTokenizer{name: "sentencepiece", tok: sp})
			}

			stats, err := evaluate(ctx, evalSource, contenders)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Vocabulary budget %d", vocabSize)))
			t := newTable("tokenizer", "vocabulary", "tokens", "bytes/token", "chars/token", "tokens/segment")
			for i, c := range contenders {
				s := stats[i]
				t.Row(c.name, fmt.Sprint(c.tok.VocabSize()), fmt.Sprint(s.tokens),
					ratio(s.bytes, s.tokens), ratio(s.chars, s.tokens), ratio(s.tokens, s.segments))
			}
			fmt.Fprintln(out, t.Render())
			return nil
		},
	}
	corpusOpts.register(cmd)
	cmd.Flags().IntVar(&vocabSize, "vocab-size", 8000, "vocabulary size of every trained tokenizer")
	cmd.Flags().IntVar(&workers, "workers", 0, "goroutines counting the corpus (0 for the number of CPUs)")
	cmd.Flags().BoolVar(&addPrefixSpace, "add-prefix-space", false, "prepend a space to texts not starting with one")
	cmd.Flags().StringSliceVar(&evalFiles, "eval", nil, "evaluation files, in the same --format (defaults to the training files)")
	cmd.Flags().StringVar(&sentencePiecePath, "sentencepiece", "", "optional SentencePiece tokenizer.model to include in the comparison")
	return cmd
}

func evaluate(ctx context.Context, source corpus.Seq, contenders []namedTokenizer) ([]tokenStats, error) {
	stats := make([]tokenStats, len(contenders))
	for text, err := range source {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, c := range contenders {
			ids, err := c.tok.Encode(text)
			if err != nil {
				return nil, err
			}
			stats[i].tokens += len(ids)
			stats[i].bytes += len(text)
			stats[i].chars += utf8.RuneCountInString(text)
			stats[i].segments++
		}
	}
	return stats, nil
}

func ratio(num, den int) string {
	if den == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", float64(num)/float64(den))
}
