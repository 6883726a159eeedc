// Package model reads the pretrained checkpoint directory that the model
// runtime serves. The weights themselves are never touched here; only the
// metadata needed to validate the directory and post-process decoded output.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/localrivet/dialoguesum/internal/errortypes"
)

const (
	// DefaultDir is the checkpoint directory used when none is configured.
	DefaultDir = "./saved_summary_model"

	configFile        = "config.json"
	specialTokensFile = "special_tokens_map.json"
	generationFile    = "generation_config.json"
)

// tokenizerFiles lists the files of which at least one must be present.
var tokenizerFiles = []string{"spiece.model", "tokenizer.json"}

// weightFiles are stat'ed for the fingerprint so that a checkpoint retrained
// in place is told apart from the previous one.
var weightFiles = []string{"model.safetensors", "pytorch_model.bin", "tf_model.h5", "flax_model.msgpack"}

// ErrNoTokenizer is returned when the directory has no tokenizer files.
var ErrNoTokenizer = errors.New("no tokenizer file found")

// Config mirrors the subset of config.json this service cares about.
type Config struct {
	ModelType           string   `json:"model_type"`
	Architectures       []string `json:"architectures"`
	IsEncoderDecoder    bool     `json:"is_encoder_decoder"`
	DecoderStartTokenID int      `json:"decoder_start_token_id"`
	PadTokenID          int      `json:"pad_token_id"`
	EOSTokenID          int      `json:"eos_token_id"`
	VocabSize           int      `json:"vocab_size"`
}

// GenerationConfig mirrors generation_config.json. The service does not use
// these values for decoding; they are reported for diagnostics.
type GenerationConfig struct {
	MaxLength     int  `json:"max_length"`
	NumBeams      int  `json:"num_beams"`
	EarlyStopping bool `json:"early_stopping"`
}

// Artifacts describes a loaded checkpoint directory. It is immutable after
// LoadArtifacts returns and safe to share between goroutines.
type Artifacts struct {
	Dir           string
	Config        Config
	Generation    *GenerationConfig
	TokenizerFile string

	specialTokens []string
	fingerprint   string
}

// LoadArtifacts reads and validates the checkpoint metadata in dir.
func LoadArtifacts(dir string) (*Artifacts, error) {
	if dir == "" {
		dir = DefaultDir
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, errortypes.ConfigError(err, "model directory is not readable").
			WithField("model_dir", dir)
	}
	if !info.IsDir() {
		return nil, errortypes.ConfigError(fmt.Errorf("%s is not a directory", dir), "invalid model directory").
			WithField("model_dir", dir)
	}

	a := &Artifacts{Dir: dir}

	if err := readJSON(filepath.Join(dir, configFile), &a.Config); err != nil {
		return nil, errortypes.ConfigError(err, "failed to read model config").
			WithField("model_dir", dir)
	}

	for _, name := range tokenizerFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			a.TokenizerFile = name
			break
		}
	}
	if a.TokenizerFile == "" {
		return nil, errortypes.ConfigError(ErrNoTokenizer, "failed to load tokenizer").
			WithField("model_dir", dir)
	}

	tokens, err := readSpecialTokens(filepath.Join(dir, specialTokensFile))
	if err != nil {
		return nil, errortypes.ConfigError(err, "failed to read special tokens map").
			WithField("model_dir", dir)
	}
	a.specialTokens = tokens

	var gen GenerationConfig
	if err := readJSON(filepath.Join(dir, generationFile), &gen); err == nil {
		a.Generation = &gen
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, errortypes.ConfigError(err, "failed to read generation config").
			WithField("model_dir", dir)
	}

	a.fingerprint = fingerprint(dir)
	return a, nil
}

// SpecialTokens returns the control tokens that must not appear in decoded
// output, longest first so that overlapping tokens are stripped correctly.
func (a *Artifacts) SpecialTokens() []string {
	if a == nil {
		return defaultSpecialTokens()
	}
	out := make([]string, len(a.specialTokens))
	copy(out, a.specialTokens)
	return out
}

// Name returns a short human readable description of the checkpoint.
func (a *Artifacts) Name() string {
	if a == nil {
		return "unknown"
	}
	if len(a.Config.Architectures) > 0 {
		return a.Config.Architectures[0]
	}
	if a.Config.ModelType != "" {
		return a.Config.ModelType
	}
	return filepath.Base(a.Dir)
}

// Fingerprint identifies this checkpoint: its absolute directory, the
// contents of its metadata files and the size and modification time of its
// weights. Two loads of an unchanged directory yield the same value.
func (a *Artifacts) Fingerprint() string {
	if a == nil {
		return ""
	}
	return a.fingerprint
}

func fingerprint(dir string) string {
	h := sha256.New()
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	fmt.Fprintf(h, "dir=%s\n", dir)

	for _, name := range []string{configFile, specialTokensFile, generationFile} {
		if data, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			fmt.Fprintf(h, "%s=%d\n", name, len(data))
			h.Write(data)
		}
	}
	for _, name := range append(append([]string{}, tokenizerFiles...), weightFiles...) {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil {
			fmt.Fprintf(h, "%s=%d@%d\n", name, info.Size(), info.ModTime().UnixNano())
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// specialToken accepts both the plain string and the AddedToken object forms.
type specialToken struct {
	Content string
}

func (t *specialToken) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Content = s
		return nil
	}

	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Content = obj.Content
	return nil
}

func readSpecialTokens(path string) ([]string, error) {
	var raw struct {
		PadToken   *specialToken  `json:"pad_token"`
		EOSToken   *specialToken  `json:"eos_token"`
		UnkToken   *specialToken  `json:"unk_token"`
		BOSToken   *specialToken  `json:"bos_token"`
		Additional []specialToken `json:"additional_special_tokens"`
	}

	if err := readJSON(path, &raw); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultSpecialTokens(), nil
		}
		return nil, err
	}

	seen := make(map[string]struct{})
	var tokens []string
	add := func(tok *specialToken) {
		if tok == nil || tok.Content == "" {
			return
		}
		if _, ok := seen[tok.Content]; ok {
			return
		}
		seen[tok.Content] = struct{}{}
		tokens = append(tokens, tok.Content)
	}

	add(raw.PadToken)
	add(raw.EOSToken)
	add(raw.UnkToken)
	add(raw.BOSToken)
	for i := range raw.Additional {
		add(&raw.Additional[i])
	}

	sortLongestFirst(tokens)
	return tokens, nil
}

// defaultSpecialTokens are the T5 control tokens.
func defaultSpecialTokens() []string {
	return []string{"<pad>", "</s>", "<unk>"}
}

func sortLongestFirst(tokens []string) {
	sort.SliceStable(tokens, func(i, j int) bool {
		return len(tokens[i]) > len(tokens[j])
	})
}
