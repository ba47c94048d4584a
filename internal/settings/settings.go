// Package settings implements the typed, JSON-backed configuration file
// the daemon shares with its front-end: the user-facing preferences, a
// debug-transcripts TTL, and the last-known-good ASR selection used by the
// orchestrator's warmup fallback.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/openflow/dictation/internal/errors"
)

// HotkeyMode selects hold (push-to-talk) vs toggle dictation.
type HotkeyMode string

const (
	HotkeyModeHold   HotkeyMode = "hold"
	HotkeyModeToggle HotkeyMode = "toggle"
)

// HudTheme selects the HUD color scheme.
type HudTheme string

const (
	HudThemeSystem HudTheme = "system"
	HudThemeLight  HudTheme = "light"
	HudThemeDark   HudTheme = "dark"
)

// AsrFamily and related enums make up the persisted AsrSelection.
type AsrFamily string

const (
	FamilyParakeet AsrFamily = "parakeet"
	FamilyWhisper  AsrFamily = "whisper"
)

type WhisperBackend string

const (
	BackendCT2  WhisperBackend = "ct2"
	BackendONNX WhisperBackend = "onnx"
)

type WhisperModel string

const (
	ModelTiny           WhisperModel = "tiny"
	ModelBase           WhisperModel = "base"
	ModelSmall          WhisperModel = "small"
	ModelMedium         WhisperModel = "medium"
	ModelLargeV3        WhisperModel = "large-v3"
	ModelLargeV3Turbo   WhisperModel = "large-v3-turbo"
)

type WhisperLanguage string

const (
	LanguageEN    WhisperLanguage = "en"
	LanguageMulti WhisperLanguage = "multi"
)

type WhisperPrecision string

const (
	PrecisionInt8  WhisperPrecision = "int8"
	PrecisionFloat WhisperPrecision = "float"
)

type PasteShortcut string

const (
	PasteCtrlV      PasteShortcut = "ctrl-v"
	PasteCtrlShiftV PasteShortcut = "ctrl-shift-v"
)

type AutocleanMode string

const (
	AutocleanOff  AutocleanMode = "off"
	AutocleanFast AutocleanMode = "fast"
)

type VadSensitivity string

const (
	SensitivityLow    VadSensitivity = "low"
	SensitivityMedium VadSensitivity = "medium"
	SensitivityHigh   VadSensitivity = "high"
)

// Frontend is the nested "frontend" object of the config file.
type Frontend struct {
	HotkeyMode            HotkeyMode       `json:"hotkeyMode"`
	PushToTalkHotkey       string           `json:"pushToTalkHotkey"`
	ToggleToTalkHotkey     string           `json:"toggleToTalkHotkey"`
	HudTheme               HudTheme         `json:"hudTheme"`
	ShowHudOverlay         bool             `json:"showHudOverlay"`
	AsrFamily              AsrFamily        `json:"asrFamily"`
	WhisperBackend         WhisperBackend   `json:"whisperBackend"`
	WhisperModel           WhisperModel     `json:"whisperModel"`
	WhisperModelLanguage   WhisperLanguage  `json:"whisperModelLanguage"`
	WhisperPrecision       WhisperPrecision `json:"whisperPrecision"`
	PasteShortcut          PasteShortcut    `json:"pasteShortcut"`
	Language               string           `json:"language"`
	AutoDetectLanguage     bool             `json:"autoDetectLanguage"`
	AutocleanMode          AutocleanMode    `json:"autocleanMode"`
	DebugTranscripts       bool             `json:"debugTranscripts"`
	AudioDeviceID          *string          `json:"audioDeviceId"`
	VadSensitivity         VadSensitivity   `json:"vadSensitivity"`
}

// AsrSelection is the persisted "last known good" ASR configuration.
type AsrSelection struct {
	Family           AsrFamily        `json:"family"`
	WhisperBackend   WhisperBackend   `json:"whisperBackend"`
	WhisperModel     WhisperModel     `json:"whisperModel"`
	WhisperLang      WhisperLanguage  `json:"whisperLang"`
	WhisperPrecision WhisperPrecision `json:"whisperPrecision"`
}

// Settings is the full on-disk config document.
type Settings struct {
	Frontend            Frontend      `json:"frontend"`
	DebugTranscriptsUntil *time.Time  `json:"debugTranscriptsUntil"`
	LastKnownGoodAsr    *AsrSelection `json:"lastKnownGoodAsr"`
}

// Defaults returns the Linux-first defaults for a fresh install.
func Defaults() Settings {
	return Settings{
		Frontend: Frontend{
			HotkeyMode:           HotkeyModeHold,
			PushToTalkHotkey:     "RightAlt",
			ToggleToTalkHotkey:   "Ctrl+Space",
			HudTheme:             HudThemeSystem,
			ShowHudOverlay:       true,
			AsrFamily:            FamilyParakeet,
			WhisperBackend:       BackendCT2,
			WhisperModel:         ModelBase,
			WhisperModelLanguage: LanguageEN,
			WhisperPrecision:     PrecisionInt8,
			PasteShortcut:        PasteCtrlShiftV,
			Language:             "auto",
			AutoDetectLanguage:   true,
			AutocleanMode:        AutocleanFast,
			DebugTranscripts:     false,
			VadSensitivity:       SensitivityMedium,
		},
	}
}

// legacyHotkeyDefaults are the hotkeys a pre-Linux-port install shipped;
// migrate replaces them with the new defaults only when the user never
// customized them.
var legacyHotkeyDefaults = map[string]string{
	"pushToTalk": "Fn",
	"toggleTalk": "Cmd+Shift+Space",
}

// largeModels force language=multi on load.
var largeModels = map[WhisperModel]bool{
	ModelLargeV3:      true,
	ModelLargeV3Turbo: true,
}

// Path returns the settings file path under the given config directory.
func Path(configDir string) string {
	return filepath.Join(configDir, "config.json")
}

// Load reads, migrates, and returns the settings file. A missing file
// yields Defaults() with no error; an unreadable or malformed file yields
// Defaults() together with the error.
func Load(configDir string) (Settings, error) {
	path := Path(configDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return Defaults(), apperrors.Wrap(err, apperrors.ConfigInvalid, "read settings file")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Defaults(), apperrors.Wrap(err, apperrors.ConfigInvalid, "parse settings file")
	}

	s := Defaults()
	if err := json.Unmarshal(data, &s); err != nil {
		return Defaults(), apperrors.Wrap(err, apperrors.ConfigInvalid, "parse settings file")
	}

	migrate(&s, raw)
	return s, nil
}

// Save persists settings atomically: write to a temp file in the same
// directory, then rename, so a crash mid-write never corrupts config.json.
func Save(configDir string, s Settings) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "create config dir")
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "marshal settings")
	}
	path := Path(configDir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "write settings temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "rename settings file")
	}
	return nil
}

// migrate applies the forward-compatibility rules for legacy config files.
func migrate(s *Settings, raw map[string]json.RawMessage) {
	migrateLegacyFrontend(s, raw)

	if s.Frontend.Language == "" {
		s.Frontend.Language = "auto"
	}
	if s.Frontend.HotkeyMode == "" {
		s.Frontend.HotkeyMode = HotkeyModeHold
	}

	if s.Frontend.PushToTalkHotkey == legacyHotkeyDefaults["pushToTalk"] || s.Frontend.PushToTalkHotkey == "" {
		s.Frontend.PushToTalkHotkey = Defaults().Frontend.PushToTalkHotkey
	}
	if s.Frontend.ToggleToTalkHotkey == legacyHotkeyDefaults["toggleTalk"] || s.Frontend.ToggleToTalkHotkey == "" {
		s.Frontend.ToggleToTalkHotkey = Defaults().Frontend.ToggleToTalkHotkey
	}

	if largeModels[s.Frontend.WhisperModel] {
		s.Frontend.WhisperModelLanguage = LanguageMulti
	}

	applyDebugTTL(s)
}

// legacyFrontendView captures the pre-rewrite field shapes this version
// still accepts on read.
type legacyFrontendView struct {
	AsrBackend string `json:"asrBackend"`
}

func migrateLegacyFrontend(s *Settings, raw map[string]json.RawMessage) {
	frontendRaw, ok := raw["frontend"]
	if !ok {
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frontendRaw, &fields); err != nil {
		return
	}
	_, hasFamily := fields["asrFamily"]
	var legacy legacyFrontendView
	if err := json.Unmarshal(frontendRaw, &legacy); err != nil {
		return
	}
	if legacy.AsrBackend == "whisper" && (!hasFamily || s.Frontend.AsrFamily == "") {
		s.Frontend.AsrFamily = FamilyWhisper
		s.Frontend.WhisperBackend = BackendONNX
	}
}

// applyDebugTTL silently clears an expired debug-transcripts flag.
func applyDebugTTL(s *Settings) {
	if !s.Frontend.DebugTranscripts {
		return
	}
	if s.DebugTranscriptsUntil == nil {
		return
	}
	if time.Now().After(*s.DebugTranscriptsUntil) {
		s.Frontend.DebugTranscripts = false
		s.DebugTranscriptsUntil = nil
	}
}

// EnableDebugTranscripts turns on debug transcripts with a TTL.
func EnableDebugTranscripts(s *Settings, ttl time.Duration) {
	s.Frontend.DebugTranscripts = true
	until := time.Now().Add(ttl)
	s.DebugTranscriptsUntil = &until
}

// ParseLanguage resolves the effective recognizer language tag from the
// frontend's language + auto-detect flag.
func ParseLanguage(f Frontend) (tag string, autoDetect bool) {
	lang := strings.TrimSpace(f.Language)
	if lang == "" || strings.EqualFold(lang, "auto") || f.AutoDetectLanguage {
		return "", true
	}
	return lang, false
}

// IsEnglishOnly reports whether the selection names an English-only model
// variant: the whisper family with whisperModelLanguage "en". Such models
// force the recognizer language to "en" with detection off, overriding the
// user's language/auto-detect preferences.
func IsEnglishOnly(f Frontend) bool {
	return f.AsrFamily == FamilyWhisper && f.WhisperModelLanguage == LanguageEN
}

// ApplySelection writes an AsrSelection back onto the frontend fields,
// used when warmup falls back to the last-known-good configuration.
func ApplySelection(f *Frontend, sel AsrSelection) {
	f.AsrFamily = sel.Family
	f.WhisperBackend = sel.WhisperBackend
	f.WhisperModel = sel.WhisperModel
	f.WhisperModelLanguage = sel.WhisperLang
	f.WhisperPrecision = sel.WhisperPrecision
}

// ToAsrSelection projects the frontend's ASR fields into an AsrSelection.
func ToAsrSelection(f Frontend) AsrSelection {
	return AsrSelection{
		Family:           f.AsrFamily,
		WhisperBackend:   f.WhisperBackend,
		WhisperModel:     f.WhisperModel,
		WhisperLang:      f.WhisperModelLanguage,
		WhisperPrecision: f.WhisperPrecision,
	}
}
