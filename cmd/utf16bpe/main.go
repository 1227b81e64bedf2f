// utf16bpe trains, inspects and compares UTF-16 byte-level BPE tokenizers.
//
// Usage:
//
//	utf16bpe train --out=./tok --vocab-size=32000 corpus/*.txt
//	utf16bpe encode --model=./tok "안녕하세요 world"
//	utf16bpe decode --model=./tok 1234 567
//	utf16bpe compare --vocab-size=8000 --sentencepiece=tokenizer.model corpus/*.txt
//	utf16bpe export --model=./tok --out=tokenizer.json
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "utf16bpe",
		Short:         "UTF-16 byte-level BPE tokenizer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// klog flags (-v, -logtostderr, ...) are registered on the root command.
	goFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(goFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(goFlags)

	rootCmd.AddCommand(
		newTrainCmd(),
		newEncodeCmd(),
		newDecodeCmd(),
		newCompareCmd(),
		newExportCmd(),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := newRootCmd().ExecuteContext(ctx)
	klog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}
