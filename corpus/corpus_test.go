package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

func collect(t *testing.T, seq Seq) []string {
	t.Helper()
	var out []string
	for text, err := range seq {
		require.NoError(t, err)
		out = append(out, text)
	}
	return out
}

func TestStringsAndConcat(t *testing.T) {
	seq := Concat(Strings("a", "b"), Strings(), Strings("c"))
	assert.Equal(t, []string{"a", "b", "c"}, collect(t, seq))
	// Restartable.
	assert.Equal(t, []string{"a", "b", "c"}, collect(t, seq))

	// Early stop.
	var first []string
	for text := range seq {
		first = append(first, text)
		break
	}
	assert.Equal(t, []string{"a"}, first)
}

func TestLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.txt")
	require.NoError(t, os.WriteFile(path, []byte("first line\r\n\n안녕하세요\nlast without newline"), 0644))
	want := []string{"first line", "안녕하세요", "last without newline"}
	assert.Equal(t, want, collect(t, Lines(path)))
	assert.Equal(t, want, collect(t, Lines(path)))

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	assert.Empty(t, collect(t, Lines(empty)))

	var gotErr error
	for _, err := range Lines(filepath.Join(t.TempDir(), "missing.txt")) {
		gotErr = err
	}
	assert.Error(t, gotErr)
}

func TestUTF16File(t *testing.T) {
	dir := t.TempDir()

	// "가\n😀\r\n" in UTF-16LE, with no BOM.
	le := []byte{0x00, 0xAC, '\n', 0x00, 0x3D, 0xD8, 0x00, 0xDE, '\r', 0x00, '\n', 0x00}
	lePath := filepath.Join(dir, "le.txt")
	require.NoError(t, os.WriteFile(lePath, le, 0644))
	assert.Equal(t, []string{"가", "😀"}, collect(t, UTF16File(lePath, unicode.LittleEndian)))

	// Same text in UTF-16BE with a BOM: the BOM wins over the given order.
	be := []byte{0xFE, 0xFF, 0xAC, 0x00, 0x00, '\n', 0xD8, 0x3D, 0xDE, 0x00}
	bePath := filepath.Join(dir, "be.txt")
	require.NoError(t, os.WriteFile(bePath, be, 0644))
	assert.Equal(t, []string{"가", "😀"}, collect(t, UTF16File(bePath, unicode.LittleEndian)))
}

type row struct {
	ID   int64   `parquet:"id"`
	Text *string `parquet:"text,optional"`
}

func TestParquet(t *testing.T) {
	ptr := func(s string) *string { return &s }
	rows := []row{
		{ID: 1, Text: ptr("hello world")},
		{ID: 2, Text: nil},
		{ID: 3, Text: ptr("")},
		{ID: 4, Text: ptr("안녕하세요")},
	}
	path := filepath.Join(t.TempDir(), "data.parquet")
	require.NoError(t, parquet.WriteFile(path, rows))

	assert.Equal(t, []string{"hello world", "안녕하세요"}, collect(t, Parquet(path, "text")))

	var gotErr error
	for _, err := range Parquet(path, "no_such_column") {
		gotErr = err
	}
	assert.Error(t, gotErr)
}
