package hftokenizer

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/go-utf16bpe/corpus"
	"github.com/gomlx/go-utf16bpe/tokenizers/bpe"
	"github.com/gomlx/go-utf16bpe/tokenizers/transcode"
	"github.com/gomlx/go-utf16bpe/tokenizers/utf16bpe"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var texts = []string{
	"Hello world, hello tokenizers!",
	"안녕하세요 여러분, 반갑습니다.",
	"<tags> & \"quotes\" stay readable",
}

func trained(t *testing.T, config utf16bpe.Config) *utf16bpe.Tokenizer {
	t.Helper()
	tok, err := utf16bpe.Train(context.Background(), corpus.Strings(texts...), utf16bpe.TrainOptions{VocabSize: 320, Config: config})
	require.NoError(t, err)
	return tok
}

func TestRoundTrip(t *testing.T) {
	for _, config := range []utf16bpe.Config{
		utf16bpe.DefaultConfig(),
		{Scheme: transcode.UTF16BE, AddPrefixSpace: true},
		{Scheme: transcode.UTF8},
		{NoSplit: true},
	} {
		t.Run(config.Scheme.String(), func(t *testing.T) {
			tok := trained(t, config)
			path := filepath.Join(t.TempDir(), "tokenizer.json")
			require.NoError(t, WriteFile(path, tok))

			loaded, err := NewFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, tok.Config(), loaded.Config())
			assert.Equal(t, tok.VocabSize(), loaded.VocabSize())
			assert.Equal(t, tok.Model().Merges(), loaded.Model().Merges())
			for _, text := range texts {
				want, err := tok.Encode(text)
				require.NoError(t, err)
				got, err := loaded.Encode(text)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestMarshalFields(t *testing.T) {
	tok := trained(t, utf16bpe.DefaultConfig())
	content, err := Marshal(tok)
	require.NoError(t, err)
	for _, escaped := range []string{`\u003c`, `\u003e`, `\u0026`} {
		assert.NotContains(t, string(content), escaped, "HTML escaping must be off")
	}
	assert.Contains(t, string(content), `"<": 60`)
	// UTF-16LE: '<' is followed by a zero byte, whose symbol is U+0100.
	assert.Contains(t, string(content), `"< Ā"`)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(content, &generic))
	pre := generic["pre_tokenizer"].(map[string]any)
	assert.Equal(t, ByteLevelType, pre["type"])
	assert.Equal(t, "utf-16le", pre["encoding"])
	assert.Equal(t, "little", pre["byte_order"])
	model := generic["model"].(map[string]any)
	assert.Equal(t, "BPE", model["type"])
	assert.Len(t, model["vocab"], tok.VocabSize())
	assert.Len(t, model["merges"], len(tok.Model().Merges()))
}

func TestUseRegex(t *testing.T) {
	for _, noSplit := range []bool{false, true} {
		tok := trained(t, utf16bpe.Config{NoSplit: noSplit})
		tj, err := FromTokenizer(tok)
		require.NoError(t, err)
		require.NotNil(t, tj.PreTokenizer.UseRegex)
		assert.Equal(t, !noSplit, *tj.PreTokenizer.UseRegex)
		assert.Equal(t, noSplit, tj.PreTokenizer.Pattern == nil)
	}

	// Without "use_regex" the text is split.
	tok := trained(t, utf16bpe.DefaultConfig())
	tj, err := FromTokenizer(tok)
	require.NoError(t, err)
	tj.PreTokenizer.UseRegex = nil
	content, err := json.Marshal(tj)
	require.NoError(t, err)
	loaded, err := NewFromContent(content)
	require.NoError(t, err)
	assert.False(t, loaded.Config().NoSplit)
}

func TestPairMerges(t *testing.T) {
	tok := trained(t, utf16bpe.DefaultConfig())
	tj, err := FromTokenizer(tok)
	require.NoError(t, err)

	var pairs [][]string
	for _, rule := range tok.Model().Merges() {
		pairs = append(pairs, []string{rule.Left, rule.Right})
	}
	tj.Model.Merges, err = json.Marshal(pairs)
	require.NoError(t, err)
	content, err := json.Marshal(tj)
	require.NoError(t, err)

	loaded, err := NewFromContent(content)
	require.NoError(t, err)
	assert.Equal(t, tok.Model().Merges(), loaded.Model().Merges())
}

func TestRejectUnsupported(t *testing.T) {
	tok := trained(t, utf16bpe.DefaultConfig())
	content, err := Marshal(tok)
	require.NoError(t, err)

	for name, edit := range map[string]func(tj *TokenizerJSON){
		"wordpiece":      func(tj *TokenizerJSON) { tj.Model.Type = "WordPiece" },
		"normalizer":     func(tj *TokenizerJSON) { tj.Normalizer = json.RawMessage(`{"type": "NFC"}`) },
		"added tokens":   func(tj *TokenizerJSON) { tj.AddedTokens = []AddedToken{{ID: 999, Content: "<pad>", Special: true}} },
		"gpt2 bytelevel": func(tj *TokenizerJSON) { tj.PreTokenizer.Type = "ByteLevel" },
		"pattern":        func(tj *TokenizerJSON) { tj.PreTokenizer.Pattern = &Pattern{Regex: `\w+`} },
		"byte order":     func(tj *TokenizerJSON) { tj.PreTokenizer.ByteOrder = "big" },
		"decoder":        func(tj *TokenizerJSON) { tj.Decoder.Encoding = transcode.UTF8 },
		"bad merge":      func(tj *TokenizerJSON) { tj.Model.Merges = json.RawMessage(`["abc"]`) },
		"dropout": func(tj *TokenizerJSON) {
			p := 0.1
			tj.Model.Dropout = &p
		},
	} {
		t.Run(name, func(t *testing.T) {
			var tj TokenizerJSON
			require.NoError(t, json.Unmarshal(content, &tj))
			edit(&tj)
			modified, err := json.Marshal(&tj)
			require.NoError(t, err)
			_, err = NewFromContent(modified)
			assert.True(t, errors.Is(err, bpe.ErrInvalidArtifact), "got %v", err)
		})
	}

	_, err = NewFromContent([]byte(strings.Repeat("{", 3)))
	assert.True(t, errors.Is(err, bpe.ErrInvalidArtifact), "got %v", err)
}
