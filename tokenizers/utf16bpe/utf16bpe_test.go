package utf16bpe

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gomlx/go-utf16bpe/corpus"
	"github.com/gomlx/go-utf16bpe/tokenizers/bpe"
	"github.com/gomlx/go-utf16bpe/tokenizers/transcode"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var texts = []string{
	"Hello world! Hello tokenizer.",
	"안녕하세요 세계. 한국어 텍스트를 토큰화합니다.",
	"你好，世界。这是一个测试。",
	"Emoji 🎉🎉 and symbols ∑∫√ and numbers 2024.",
	"tabs\tand\nnewlines   and   spaces",
}

func trainTokenizer(t *testing.T, config Config, vocabSize int) *Tokenizer {
	t.Helper()
	tok, err := Train(context.Background(), corpus.Strings(texts...), TrainOptions{VocabSize: vocabSize, Workers: 2, Config: config})
	require.NoError(t, err)
	return tok
}

func TestEncodeDecode(t *testing.T) {
	for _, config := range []Config{
		DefaultConfig(),
		{Scheme: transcode.UTF16BE},
		{Scheme: transcode.UTF8},
		{AddPrefixSpace: true},
		{NoSplit: true},
	} {
		t.Run(config.Scheme.String(), func(t *testing.T) {
			tok := trainTokenizer(t, config, 400)
			assert.Equal(t, config, tok.Config())
			for _, text := range append(texts, "", " ", "completely unseen ÆØÅ 𐍈") {
				want := text
				if config.AddPrefixSpace && text != "" && text[0] != ' ' {
					// The synthetic prefix space is part of the token stream.
					want = " " + text
				}
				ids, err := tok.Encode(text)
				require.NoError(t, err)
				got, err := tok.Decode(ids)
				require.NoError(t, err)
				assert.Equal(t, want, got)

				tokens, err := tok.EncodeTokens(text)
				require.NoError(t, err)
				values := make([]string, len(tokens))
				for i, tk := range tokens {
					values[i] = tk.Value
					id, ok := tok.TokenToID(tk.Value)
					require.True(t, ok)
					assert.Equal(t, tk.ID, id)
					value, ok := tok.IDToToken(tk.ID)
					require.True(t, ok)
					assert.Equal(t, tk.Value, value)
				}
				got, err = tok.DecodeTokens(values)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestEncodeWithSpans(t *testing.T) {
	tok := trainTokenizer(t, DefaultConfig(), 350)
	for _, text := range texts {
		res, err := tok.EncodeWithSpans(text)
		require.NoError(t, err)
		ids, err := tok.Encode(text)
		require.NoError(t, err)
		assert.Equal(t, ids, res.IDs)
		require.Len(t, res.Spans, len(res.IDs))

		var rebuilt strings.Builder
		pos := 0
		for _, span := range res.Spans {
			require.Equal(t, pos, span.Start)
			rebuilt.WriteString(text[span.Start:span.End])
			pos = span.End
		}
		assert.Equal(t, text, rebuilt.String())
	}
}

func TestPrefixSpaceSpans(t *testing.T) {
	tok := trainTokenizer(t, Config{AddPrefixSpace: true}, 300)
	res, err := tok.EncodeWithSpans("Hello")
	require.NoError(t, err)
	require.NotEmpty(t, res.Spans)
	assert.Equal(t, 0, res.Spans[0].Start)
	assert.Equal(t, 5, res.Spans[len(res.Spans)-1].End)

	// The synthetic space decodes too: it's part of the token stream.
	got, err := tok.Decode(res.IDs)
	require.NoError(t, err)
	assert.Equal(t, " Hello", got)
}

func TestInvalidInput(t *testing.T) {
	tok := trainTokenizer(t, DefaultConfig(), 260)
	_, err := tok.Encode("bad \xff utf8")
	assert.True(t, errors.Is(err, transcode.ErrInvalidUTF8), "got %v", err)

	_, err = tok.Decode([]int{tok.VocabSize() + 10})
	assert.True(t, errors.Is(err, bpe.ErrUnknownID), "got %v", err)
	_, err = tok.Decode([]int{0x3D, 0xD8})
	assert.True(t, errors.Is(err, transcode.ErrUnpairedSurrogate), "got %v", err)
	_, err = tok.Decode([]int{0x41})
	assert.True(t, errors.Is(err, transcode.ErrTruncatedCodeUnit), "got %v", err)
}

func TestTrainErrors(t *testing.T) {
	_, err := Train(context.Background(), corpus.Strings("abc"), TrainOptions{VocabSize: 10})
	assert.True(t, errors.Is(err, bpe.ErrVocabSizeTooSmall), "got %v", err)

	model, err := bpe.NewModel(bpe.NewVocabulary(), nil, transcode.UTF8)
	require.NoError(t, err)
	_, err = New(model, DefaultConfig())
	assert.Error(t, err, "scheme mismatch")
}

func TestEncodeBatchConcurrent(t *testing.T) {
	tok := trainTokenizer(t, DefaultConfig(), 350)
	batch, err := tok.EncodeBatch(context.Background(), texts, 2)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))

	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := tok.Encode(text)
			assert.NoError(t, err)
			assert.Equal(t, batch[i], ids)
		}()
	}
	wg.Wait()

	_, err = tok.EncodeBatch(context.Background(), []string{"ok", "\xfe"}, 0)
	assert.True(t, errors.Is(err, transcode.ErrInvalidUTF8), "got %v", err)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	for _, config := range []Config{
		DefaultConfig(),
		{Scheme: transcode.UTF16BE, AddPrefixSpace: true},
		{Scheme: transcode.UTF8},
		{Scheme: transcode.UTF8, NoSplit: true},
	} {
		t.Run(config.Scheme.String(), func(t *testing.T) {
			tok := trainTokenizer(t, config, 330)
			dir := filepath.Join(t.TempDir(), "tokenizer")
			require.NoError(t, tok.Save(ctx, dir))

			loaded, err := Load(ctx, dir)
			require.NoError(t, err)
			assert.Equal(t, tok.Config(), loaded.Config())
			assert.Equal(t, tok.ModelID(), loaded.ModelID())
			assert.Equal(t, tok.VocabSize(), loaded.VocabSize())
			assert.Equal(t, tok.Model().Merges(), loaded.Model().Merges())
			for _, text := range texts {
				want, err := tok.Encode(text)
				require.NoError(t, err)
				got, err := loaded.Encode(text)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}

			// Saving the loaded tokenizer rewrites identical files.
			dir2 := filepath.Join(t.TempDir(), "again")
			require.NoError(t, loaded.Save(ctx, dir2))
			for _, name := range []string{VocabFile, MergesFile, ConfigFile} {
				want, err := os.ReadFile(filepath.Join(dir, name))
				require.NoError(t, err)
				got, err := os.ReadFile(filepath.Join(dir2, name))
				require.NoError(t, err)
				assert.Equal(t, string(want), string(got), name)
			}
		})
	}
}

func TestConfigFile(t *testing.T) {
	tok := trainTokenizer(t, DefaultConfig(), 270)
	dir := t.TempDir()
	require.NoError(t, tok.Save(context.Background(), dir))
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	require.NoError(t, err)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal(data, &cfg))
	assert.Equal(t, ModelName, cfg["model"])
	assert.Equal(t, "utf-16le", cfg["encoding"])
	assert.Equal(t, "little", cfg["byte_order"])
	assert.Equal(t, false, cfg["add_prefix_space"])
	assert.Equal(t, true, cfg["use_regex"])
	assert.Equal(t, tok.ModelID().String(), cfg["model_id"])
}

func TestNoSplit(t *testing.T) {
	ctx := context.Background()
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = "ab ab ab ab"
	}
	train := func(config Config) *Tokenizer {
		tok, err := Train(ctx, corpus.Strings(lines...), TrainOptions{VocabSize: 300, Config: config})
		require.NoError(t, err)
		return tok
	}
	mergedTokens := func(tok *Tokenizer) []string {
		var out []string
		for _, rule := range tok.Model().Merges() {
			out = append(out, rule.Merged)
		}
		return out
	}

	// "Ġ" is the symbol of the space byte.
	split := train(Config{Scheme: transcode.UTF8})
	assert.Equal(t, []string{"ab", "Ġab"}, mergedTokens(split))
	whole := train(Config{Scheme: transcode.UTF8, NoSplit: true})
	assert.Equal(t, []string{"ab", "abĠ"}, mergedTokens(whole)[:2], "merges cross word boundaries")
	ids, err := whole.Encode("ab ab ab ab")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	text, err := whole.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "ab ab ab ab", text)

	dir := t.TempDir()
	require.NoError(t, whole.Save(ctx, dir))
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	require.NoError(t, err)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(data, &cfg))
	assert.Equal(t, false, cfg["use_regex"])
	loaded, err := Load(ctx, dir)
	require.NoError(t, err)
	assert.True(t, loaded.Config().NoSplit)

	// Files written before use_regex existed load with splitting on.
	dir = t.TempDir()
	require.NoError(t, split.Save(ctx, dir))
	legacy := `{"model": "UTF16ByteLevelBPE", "encoding": "utf-8", "add_prefix_space": false}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(legacy), 0644))
	loaded, err = Load(ctx, dir)
	require.NoError(t, err)
	assert.False(t, loaded.Config().NoSplit)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	tok := trainTokenizer(t, DefaultConfig(), 260)
	for name, config := range map[string]string{
		"unknown model":    `{"model": "WordPiece", "encoding": "utf-16le"}`,
		"unknown encoding": `{"model": "UTF16ByteLevelBPE", "encoding": "utf-32"}`,
		"bad byte order":   `{"model": "UTF16ByteLevelBPE", "encoding": "utf-16le", "byte_order": "middle"}`,
		"contradiction":    `{"model": "UTF16ByteLevelBPE", "encoding": "utf-16le", "byte_order": "big"}`,
		"bad model id":     `{"model": "UTF16ByteLevelBPE", "encoding": "utf-16le", "model_id": "xyz"}`,
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, tok.Save(context.Background(), dir))
			require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(config), 0644))
			_, err := Load(context.Background(), dir)
			assert.True(t, errors.Is(err, bpe.ErrInvalidArtifact), "got %v", err)
		})
	}

	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
