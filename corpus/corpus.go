// Package corpus provides training text sources for tokenizers.
//
// A source is an iter.Seq2[string, error]: it yields text segments, or an error that ends the
// iteration. Sources are lazy (nothing is read before iteration starts) and restartable (every
// iteration reads from the start again), so the same corpus can be used to train several
// tokenizers.
package corpus

import (
	"bufio"
	"bytes"
	"io"
	"iter"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Seq is a corpus source.
type Seq = iter.Seq2[string, error]

// MaxLineSize is the largest line Lines and UTF16File can read.
const MaxLineSize = 64 * 1024 * 1024

// Strings yields the given texts.
func Strings(texts ...string) Seq {
	return func(yield func(string, error) bool) {
		for _, text := range texts {
			if !yield(text, nil) {
				return
			}
		}
	}
}

// Concat yields the segments of each source in turn.
func Concat(sources ...Seq) Seq {
	return func(yield func(string, error) bool) {
		for _, source := range sources {
			for text, err := range source {
				if !yield(text, err) {
					return
				}
				if err != nil {
					return
				}
			}
		}
	}
}

// Lines yields the non-empty lines of a UTF-8 text file, without the line terminator ("\n" or
// "\r\n"). The file is memory-mapped.
func Lines(path string) Seq {
	return func(yield func(string, error) bool) {
		reader, err := mmap.Open(path)
		if err != nil {
			yield("", errors.Wrapf(err, "failed to open corpus file %q", path))
			return
		}
		defer func() { _ = reader.Close() }()

		scanner := bufio.NewScanner(io.NewSectionReader(reader, 0, int64(reader.Len())))
		scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
		if !yieldLines(scanner, yield) {
			return
		}
		if err := scanner.Err(); err != nil {
			yield("", errors.Wrapf(err, "failed to read corpus file %q", path))
		}
	}
}

// yieldLines yields the non-empty lines of scanner, with a trailing "\r" removed.
// It returns false if yield asked to stop.
func yieldLines(scanner *bufio.Scanner, yield func(string, error) bool) bool {
	for scanner.Scan() {
		line := bytes.TrimSuffix(scanner.Bytes(), []byte{'\r'})
		if len(line) == 0 {
			continue
		}
		if !yield(string(line), nil) {
			return false
		}
	}
	return true
}

// UTF16File yields the non-empty lines of a UTF-16 encoded text file. A byte order mark selects
// the byte order; without one, order is used.
//
// Malformed UTF-16 in the file is replaced by U+FFFD: this is for ingesting corpora, not for
// round trips.
func UTF16File(path string, order unicode.Endianness) Seq {
	return func(yield func(string, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield("", errors.Wrapf(err, "failed to open corpus file %q", path))
			return
		}
		defer func() { _ = f.Close() }()

		decoder := unicode.UTF16(order, unicode.UseBOM).NewDecoder()
		scanner := bufio.NewScanner(transform.NewReader(f, decoder))
		scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
		if !yieldLines(scanner, yield) {
			return
		}
		if err := scanner.Err(); err != nil {
			yield("", errors.Wrapf(err, "failed to read UTF-16 corpus file %q", path))
		}
	}
}

// Parquet yields the non-null, non-empty values of a string column of a Parquet file, in row
// order. column is the path to the column: a single name, or one name per level for nested
// schemas.
func Parquet(path string, column ...string) Seq {
	return func(yield func(string, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield("", errors.Wrapf(err, "failed to open parquet file %q", path))
			return
		}
		defer func() { _ = f.Close() }()
		stat, err := f.Stat()
		if err != nil {
			yield("", errors.Wrapf(err, "failed to stat parquet file %q", path))
			return
		}
		pf, err := parquet.OpenFile(f, stat.Size())
		if err != nil {
			yield("", errors.Wrapf(err, "failed to read parquet file %q", path))
			return
		}
		leaf, found := pf.Schema().Lookup(column...)
		if !found {
			yield("", errors.Errorf("parquet file %q has no column %q", path, column))
			return
		}

		values := make([]parquet.Value, 1024)
		for _, rowGroup := range pf.RowGroups() {
			pages := rowGroup.ColumnChunks()[leaf.ColumnIndex].Pages()
			keepGoing, err := readPages(pages, values, yield)
			_ = pages.Close()
			if err != nil {
				yield("", errors.WithMessagef(err, "reading column %q of parquet file %q", column, path))
				return
			}
			if !keepGoing {
				return
			}
		}
	}
}

// readPages yields the string values of all pages. It returns false if yield asked to stop.
func readPages(pages parquet.Pages, values []parquet.Value, yield func(string, error) bool) (bool, error) {
	for {
		page, err := pages.ReadPage()
		if err == io.EOF {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		reader := page.Values()
		for {
			n, err := reader.ReadValues(values)
			for _, v := range values[:n] {
				if v.IsNull() {
					continue
				}
				text := string(v.ByteArray())
				if text == "" {
					continue
				}
				if !yield(text, nil) {
					return false, nil
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				return false, err
			}
		}
	}
}
