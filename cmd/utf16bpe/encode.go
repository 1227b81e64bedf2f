package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gomlx/go-utf16bpe/tokenizers/utf16bpe"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newEncodeCmd() *cobra.Command {
	var (
		modelDir string
		idsOnly  bool
	)
	cmd := &cobra.Command{
		Use:   "encode --model=DIR [TEXT...]",
		Short: "Encode texts (or the lines of stdin) and show their tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := utf16bpe.Load(cmd.Context(), modelDir)
			if err != nil {
				return err
			}
			texts := args
			if len(texts) == 0 {
				texts, err = readLines(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			for _, text := range texts {
				tokens, err := tok.EncodeTokens(text)
				if err != nil {
					return err
				}
				if idsOnly {
					ids := make([]string, len(tokens))
					for i, t := range tokens {
						ids[i] = strconv.Itoa(t.ID)
					}
					fmt.Fprintln(out, strings.Join(ids, " "))
					continue
				}
				fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%q: %d bytes, %d tokens", text, len(text), len(tokens))))
				t := newTable("#", "id", "token", "span", "text")
				for i, token := range tokens {
					t.Row(strconv.Itoa(i), strconv.Itoa(token.ID), token.Value,
						fmt.Sprintf("[%d, %d)", token.Span.Start, token.Span.End),
						strconv.Quote(text[token.Span.Start:token.Span.End]))
				}
				fmt.Fprintln(out, t.Render())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modelDir, "model", "", "directory of a saved tokenizer")
	cmd.Flags().BoolVar(&idsOnly, "ids", false, "print only the token ids, one line per text")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	var modelDir string
	cmd := &cobra.Command{
		Use:   "decode --model=DIR ID...",
		Short: "Decode token ids back to text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := utf16bpe.Load(cmd.Context(), modelDir)
			if err != nil {
				return err
			}
			var ids []int
			for _, arg := range args {
				for _, field := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }) {
					id, err := strconv.Atoi(field)
					if err != nil {
						return errors.Wrapf(err, "invalid token id %q", field)
					}
					ids = append(ids, id)
				}
			}
			text, err := tok.Decode(ids)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&modelDir, "model", "", "directory of a saved tokenizer")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

// readLines returns the non-empty lines of r.
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSuffix(scanner.Text(), "\r"); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading stdin")
	}
	return lines, nil
}
