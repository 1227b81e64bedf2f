package utf16bpe

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/gomlx/go-utf16bpe/internal/files"
	"github.com/gomlx/go-utf16bpe/tokenizers/bpe"
	"github.com/gomlx/go-utf16bpe/tokenizers/transcode"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Names of the files written by Save.
const (
	VocabFile  = "vocab.json"
	MergesFile = "merges.txt"
	ConfigFile = "config.json"

	lockFile = ".utf16bpe.lock"
)

// configJSON is the persisted form of Config.
type configJSON struct {
	Model          string           `json:"model"`
	Encoding       transcode.Scheme `json:"encoding"`
	ByteOrder      string           `json:"byte_order,omitempty"`
	AddPrefixSpace bool             `json:"add_prefix_space"`
	UseRegex       *bool            `json:"use_regex,omitempty"`
	ModelID        string           `json:"model_id"`
}

// Save writes vocab.json, merges.txt and config.json to dir, creating it if needed.
//
// Each file is written to a temporary file first and renamed in place, and the whole save happens
// under a file lock in dir, so concurrent Save and Load calls (from this or other processes) never
// see a mix of two saved tokenizers.
func (t *Tokenizer) Save(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, files.DefaultDirCreationPerm); err != nil {
		return errors.Wrapf(err, "failed to create directory %q", dir)
	}
	useRegex := !t.config.NoSplit
	cfg := configJSON{
		Model:          ModelName,
		Encoding:       t.config.Scheme,
		AddPrefixSpace: t.config.AddPrefixSpace,
		UseRegex:       &useRegex,
		ModelID:        t.modelID.String(),
	}
	if t.config.Scheme.IsUTF16() {
		cfg.ByteOrder = t.config.Scheme.ByteOrder().String()
	}
	err := files.ExecOnFileLock(ctx, filepath.Join(dir, lockFile), func() error {
		if err := files.WriteFileAtomic(filepath.Join(dir, VocabFile), func(w io.Writer) error {
			return bpe.WriteVocab(w, t.model.Vocabulary())
		}); err != nil {
			return err
		}
		if err := files.WriteFileAtomic(filepath.Join(dir, MergesFile), func(w io.Writer) error {
			return bpe.WriteMerges(w, t.model.Merges())
		}); err != nil {
			return err
		}
		return files.WriteFileAtomic(filepath.Join(dir, ConfigFile), func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return errors.Wrap(enc.Encode(cfg), "encoding config")
		})
	})
	if err != nil {
		return errors.WithMessagef(err, "saving tokenizer to %q", dir)
	}
	klog.V(1).Infof("Saved tokenizer %s (%d tokens, %s) to %q", t.modelID, t.VocabSize(), t.config.Scheme, dir)
	return nil
}

// Load reads a tokenizer saved with Save.
func Load(ctx context.Context, dir string) (*Tokenizer, error) {
	var tok *Tokenizer
	err := files.ExecOnFileLock(ctx, filepath.Join(dir, lockFile), func() error {
		var err error
		tok, err = load(dir)
		return err
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "loading tokenizer from %q", dir)
	}
	return tok, nil
}

func load(dir string) (*Tokenizer, error) {
	cfgData, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", ConfigFile)
	}
	config, modelID, err := parseConfig(cfgData)
	if err != nil {
		return nil, err
	}

	vocabFile, err := os.Open(filepath.Join(dir, VocabFile))
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", VocabFile)
	}
	defer func() { _ = vocabFile.Close() }()
	vocab, err := bpe.ReadVocab(vocabFile)
	if err != nil {
		return nil, errors.WithMessagef(err, "reading %s", VocabFile)
	}

	mergesFile, err := os.Open(filepath.Join(dir, MergesFile))
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", MergesFile)
	}
	defer func() { _ = mergesFile.Close() }()
	merges, err := bpe.ReadMerges(mergesFile)
	if err != nil {
		return nil, errors.WithMessagef(err, "reading %s", MergesFile)
	}

	model, err := bpe.NewModel(vocab, merges, config.Scheme)
	if err != nil {
		return nil, err
	}
	tok, err := New(model, config)
	if err != nil {
		return nil, err
	}
	tok.modelID = modelID
	return tok, nil
}

func parseConfig(data []byte) (Config, uuid.UUID, error) {
	var cfg configJSON
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, uuid.UUID{}, errors.Wrapf(bpe.ErrInvalidArtifact, "parsing %s: %v", ConfigFile, err)
	}
	if cfg.Model != ModelName {
		return Config{}, uuid.UUID{}, errors.Wrapf(bpe.ErrInvalidArtifact, "%s: model %q is not a %s", ConfigFile, cfg.Model, ModelName)
	}
	if cfg.ByteOrder != "" && cfg.Encoding.IsUTF16() {
		order, err := transcode.ParseByteOrder(cfg.ByteOrder)
		if err != nil {
			return Config{}, uuid.UUID{}, errors.Wrapf(bpe.ErrInvalidArtifact, "%s: %v", ConfigFile, err)
		}
		if transcode.SchemeFor(order) != cfg.Encoding {
			return Config{}, uuid.UUID{}, errors.Wrapf(bpe.ErrInvalidArtifact, "%s: byte order %q contradicts encoding %s", ConfigFile, cfg.ByteOrder, cfg.Encoding)
		}
	}
	var modelID uuid.UUID
	if cfg.ModelID != "" {
		var err error
		modelID, err = uuid.Parse(cfg.ModelID)
		if err != nil {
			return Config{}, uuid.UUID{}, errors.Wrapf(bpe.ErrInvalidArtifact, "%s: invalid model_id %q: %v", ConfigFile, cfg.ModelID, err)
		}
	} else {
		modelID = uuid.New()
	}
	// Absent use_regex means splitting, the default.
	noSplit := cfg.UseRegex != nil && !*cfg.UseRegex
	return Config{Scheme: cfg.Encoding, AddPrefixSpace: cfg.AddPrefixSpace, NoSplit: noSplit}, modelID, nil
}
