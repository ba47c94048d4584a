package models

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/openflow/dictation/internal/errors"
)

// ct2RequiredFiles must live at the root of a CTranslate2 model directory.
// Vocabulary accepts any of the four spellings.
var ct2RequiredFiles = []string{"model.bin", "config.json", "tokenizer.json"}

var ct2VocabularyNames = []string{
	"vocabulary.txt", "vocabulary.json", "vocab.txt", "vocab.json",
}

// preprocessorConfig is the document synthesized when a CT2 model ships
// without one.
type preprocessorConfig struct {
	ChunkLength         int    `json:"chunk_length"`
	FeatureExtractor    string `json:"feature_extractor_type"`
	FeatureSize         int    `json:"feature_size"`
	HopLength           int    `json:"hop_length"`
	NFFT                int    `json:"n_fft"`
	NSamples            int    `json:"n_samples"`
	NbMaxFrames         int    `json:"nb_max_frames"`
	PaddingSide         string `json:"padding_side"`
	PaddingValue        int    `json:"padding_value"`
	ProcessorClass      string `json:"processor_class"`
	ReturnAttentionMask bool   `json:"return_attention_mask"`
	SamplingRate        int    `json:"sampling_rate"`
}

// PrepareCT2Dir flattens and augments an extracted Whisper-CT2 directory:
// required files found only in subdirectories are moved to the root, and a
// preprocessor_config.json is synthesized if missing.
func PrepareCT2Dir(dir string) error {
	for _, name := range ct2RequiredFiles {
		if err := hoistToRoot(dir, name); err != nil {
			return err
		}
	}

	foundVocab := false
	for _, name := range ct2VocabularyNames {
		if err := hoistToRoot(dir, name); err == nil {
			foundVocab = true
			break
		}
	}
	if !foundVocab {
		return apperrors.Newf(apperrors.NotFound, "no vocabulary file in CT2 directory %s", dir)
	}

	ppPath := filepath.Join(dir, "preprocessor_config.json")
	if _, err := os.Stat(ppPath); err == nil {
		return nil
	}

	featureSize := 80
	if strings.Contains(strings.ToLower(filepath.Base(dir)), "large") {
		featureSize = 128
	}
	cfg := preprocessorConfig{
		ChunkLength:      30,
		FeatureExtractor: "WhisperFeatureExtractor",
		FeatureSize:      featureSize,
		HopLength:        160,
		NFFT:             400,
		NSamples:         480000,
		NbMaxFrames:      3000,
		PaddingSide:      "right",
		PaddingValue:     0,
		ProcessorClass:   "WhisperProcessor",
		SamplingRate:     16000,
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "marshaling preprocessor config")
	}
	return os.WriteFile(ppPath, data, 0o644)
}

// hoistToRoot ensures name exists at the root of dir, moving it up from the
// shallowest subdirectory that has it.
func hoistToRoot(dir, name string) error {
	rootPath := filepath.Join(dir, name)
	if _, err := os.Stat(rootPath); err == nil {
		return nil
	}
	found, err := findFirst(dir, name)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.NotFound, "required CT2 file %s missing", name)
	}
	return os.Rename(found, rootPath)
}

// ValidateInstalled re-runs the CT2 directory validation for every
// previously Installed WhisperCt2 asset; failures flip the status to Error
// and emit a status event so the UI prompts re-download.
// It also re-exports the VAD model path for installed Vad assets.
func (m *Manager) ValidateInstalled() {
	m.mu.Lock()
	type check struct {
		name string
		kind Kind
		dir  string
	}
	var checks []check
	for _, a := range m.manifest.Assets {
		if a.Status.Kind != StatusInstalled {
			continue
		}
		if a.Kind == KindWhisperCt2 || a.Kind == KindVad {
			checks = append(checks, check{a.Name, a.Kind, m.assetDirLocked(a)})
		}
	}
	m.mu.Unlock()

	for _, c := range checks {
		switch c.kind {
		case KindWhisperCt2:
			if err := PrepareCT2Dir(c.dir); err != nil {
				slog.Warn("installed CT2 model failed validation", "asset", c.name, "error", err)
				m.setStatus(c.name, Status{Kind: StatusError, Message: err.Error()})
			}
		case KindVad:
			if path, err := findFirst(c.dir, "*.onnx"); err == nil {
				m.vadExport(path)
			}
		}
	}
}
