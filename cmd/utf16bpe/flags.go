package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/go-utf16bpe/corpus"
	"github.com/gomlx/go-utf16bpe/tokenizers/transcode"
	"github.com/gomlx/go-utf16bpe/tokenizers/utf16bpe"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/text/encoding/unicode"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("147")).Padding(0, 1)
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)
)

// newTable returns a table with the styles shared by all commands.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			return cellStyle
		})
}

// corpusFlags select and read the training files.
type corpusFlags struct {
	format string
	column string
}

func (f *corpusFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.format, "format", "text", `corpus file format: "text" (UTF-8 lines), "utf16le", "utf16be" or "parquet"`)
	cmd.Flags().StringVar(&f.column, "column", "text", "column holding the text, for --format=parquet (use dots for nested columns)")
}

// source returns the corpus made of all files, read in order.
func (f *corpusFlags) source(paths []string) (corpus.Seq, error) {
	sources := make([]corpus.Seq, 0, len(paths))
	for _, path := range paths {
		switch strings.ToLower(f.format) {
		case "text", "txt":
			sources = append(sources, corpus.Lines(path))
		case "utf16le":
			sources = append(sources, corpus.UTF16File(path, unicode.LittleEndian))
		case "utf16be":
			sources = append(sources, corpus.UTF16File(path, unicode.BigEndian))
		case "parquet":
			sources = append(sources, corpus.Parquet(path, strings.Split(f.column, ".")...))
		default:
			return nil, errors.Errorf("unknown --format %q", f.format)
		}
	}
	return corpus.Concat(sources...), nil
}

// configFlags hold the tokenizer configuration.
type configFlags struct {
	encoding       string
	addPrefixSpace bool
	noSplit        bool
}

func (f *configFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.encoding, "encoding", "utf-16le", `byte serialization: "utf-16le", "utf-16be" or "utf-8"`)
	cmd.Flags().BoolVar(&f.addPrefixSpace, "add-prefix-space", false, "prepend a space to texts not starting with one")
	cmd.Flags().BoolVar(&f.noSplit, "no-split", false, "don't split texts into words before merging")
}

func (f *configFlags) config() (utf16bpe.Config, error) {
	scheme, err := transcode.ParseScheme(f.encoding)
	if err != nil {
		return utf16bpe.Config{}, err
	}
	return utf16bpe.Config{Scheme: scheme, AddPrefixSpace: f.addPrefixSpace, NoSplit: f.noSplit}, nil
}
