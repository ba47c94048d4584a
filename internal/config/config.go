// Package config handles process-wide runtime configuration: data/config
// directory resolution and the operator-facing environment variables, read
// once at startup.
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config holds environment-derived runtime settings. It is distinct from
// internal/settings.Settings, which is the user-editable JSON config file;
// this struct is how the daemon finds that file and tunes low-level runtime
// knobs that operators set via the environment, not the settings UI.
type Config struct {
	ConfigDir string
	DataDir   string

	LogLevel                  string // OPENFLOW_LOG
	TestMode                  bool   // OPENFLOW_TEST_MODE
	DisableASRWarmup          bool   // OPENFLOW_DISABLE_ASR_WARMUP
	DisableModelAutodownload  bool   // OPENFLOW_DISABLE_MODEL_AUTODOWNLOAD
	SherpaProvider            string // SHERPA_PROVIDER
	SherpaThreads             int    // SHERPA_THREADS
	CT2Device                 string // CT2_DEVICE
	SileroVADModel            string // SILERO_VAD_MODEL
	XDGSessionType            string // XDG_SESSION_TYPE
	WaylandDisplay            string // WAYLAND_DISPLAY
	Display                   string // DISPLAY
	XDGRuntimeDir             string // XDG_RUNTIME_DIR
}

// Load reads environment-derived configuration, applying the documented
// defaults for anything unset. It never fails: malformed env values fall
// back to defaults rather than aborting startup.
func Load() *Config {
	cfg := &Config{
		ConfigDir:                resolveConfigDir(),
		DataDir:                  resolveDataDir(),
		LogLevel:                 getEnv("OPENFLOW_LOG", "info"),
		TestMode:                 getEnvBool("OPENFLOW_TEST_MODE", false),
		DisableASRWarmup:         getEnvBool("OPENFLOW_DISABLE_ASR_WARMUP", false),
		DisableModelAutodownload: getEnvBool("OPENFLOW_DISABLE_MODEL_AUTODOWNLOAD", false),
		SherpaProvider:           getEnv("SHERPA_PROVIDER", "cpu"),
		SherpaThreads:            getEnvInt("SHERPA_THREADS", 2),
		CT2Device:                getEnv("CT2_DEVICE", "cpu"),
		SileroVADModel:           getEnv("SILERO_VAD_MODEL", ""),
		XDGSessionType:           getEnv("XDG_SESSION_TYPE", ""),
		WaylandDisplay:           getEnv("WAYLAND_DISPLAY", ""),
		Display:                  getEnv("DISPLAY", ""),
		XDGRuntimeDir:            getEnv("XDG_RUNTIME_DIR", ""),
	}
	return cfg
}

// IsWayland reports whether the session type favors the Wayland backends
// for hotkey capture and output injection.
func (c *Config) IsWayland() bool {
	return c.XDGSessionType == "wayland" || c.WaylandDisplay != ""
}

func resolveConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "openflow-dictation")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/openflow-dictation"
	}
	return filepath.Join(home, ".config", "openflow-dictation")
}

func resolveDataDir() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, "openflow-dictation")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/openflow-dictation"
	}
	return filepath.Join(home, ".local", "share", "openflow-dictation")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}
