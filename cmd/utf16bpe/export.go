package main

import (
	"fmt"

	"github.com/gomlx/go-utf16bpe/internal/files"
	"github.com/gomlx/go-utf16bpe/tokenizers/hftokenizer"
	"github.com/gomlx/go-utf16bpe/tokenizers/utf16bpe"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var (
		modelDir, outPath string
		force             bool
	)
	cmd := &cobra.Command{
		Use:   "export --model=DIR --out=tokenizer.json",
		Short: "Export a saved tokenizer as a single HuggingFace-style tokenizer.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force && files.Exists(outPath) {
				return errors.Errorf("%q already exists, use --force to overwrite it", outPath)
			}
			tok, err := utf16bpe.Load(cmd.Context(), modelDir)
			if err != nil {
				return err
			}
			if err := hftokenizer.WriteFile(outPath, tok); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render(fmt.Sprintf("Exported %d tokens to %s", tok.VocabSize(), outPath)))
			return nil
		},
	}
	cmd.Flags().StringVar(&modelDir, "model", "", "directory of a saved tokenizer")
	cmd.Flags().StringVar(&outPath, "out", "tokenizer.json", "path of the tokenizer.json to write")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite --out if it already exists")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}
