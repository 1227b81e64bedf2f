package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gomlx/go-utf16bpe/tokenizers/utf16bpe"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newTrainCmd() *cobra.Command {
	var (
		corpusOpts   corpusFlags
		configOpts   configFlags
		outDir       string
		vocabSize    int
		minFrequency int64
		workers      int
	)
	cmd := &cobra.Command{
		Use:   "train --out=DIR [flags] FILE...",
		Short: "Train a tokenizer on the given corpus files",
		Long: "Train a tokenizer on the given corpus files and save vocab.json, merges.txt and config.json to --out.\n" +
			"Interrupting training (Ctrl+C) saves the merges learned so far.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := configOpts.config()
			if err != nil {
				return err
			}
			source, err := corpusOpts.source(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			start := time.Now()
			tok, trainErr := utf16bpe.Train(cmd.Context(), source, utf16bpe.TrainOptions{
				VocabSize:    vocabSize,
				MinFrequency: minFrequency,
				Workers:      workers,
				Config:       config,
			})
			if tok == nil {
				return trainErr
			}
			if trainErr != nil {
				if !errors.Is(trainErr, context.Canceled) {
					return trainErr
				}
				fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("Training interrupted: saving the %d merges learned so far.", len(tok.Model().Merges()))))
			}
			klog.V(1).Infof("Training took %s", time.Since(start))

			// The command context may be cancelled already: save regardless.
			if err := tok.Save(context.Background(), outDir); err != nil {
				return err
			}
			fmt.Fprintln(out, titleStyle.Render("Tokenizer saved to "+outDir))
			fmt.Fprintln(out, newTable("model id", "encoding", "vocabulary", "merges", "time").
				Row(tok.ModelID().String(), tok.Config().Scheme.String(),
					fmt.Sprint(tok.VocabSize()), fmt.Sprint(len(tok.Model().Merges())),
					time.Since(start).Round(time.Millisecond).String()).
				Render())
			return nil
		},
	}
	corpusOpts.register(cmd)
	configOpts.register(cmd)
	cmd.Flags().StringVar(&outDir, "out", "", "directory where to save the tokenizer")
	cmd.Flags().IntVar(&vocabSize, "vocab-size", 32000, "target vocabulary size, including the 256 base symbols")
	cmd.Flags().Int64Var(&minFrequency, "min-frequency", 1, "minimum number of occurrences of a pair to merge it")
	cmd.Flags().IntVar(&workers, "workers", 0, "goroutines counting the corpus (0 for the number of CPUs)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
