// Dictation daemon - wires hotkey capture, the audio pipeline, model
// management, and the output injector behind a local WebSocket event bus.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/openflow/dictation/internal/asr"
	"github.com/openflow/dictation/internal/audio"
	"github.com/openflow/dictation/internal/capabilities"
	"github.com/openflow/dictation/internal/config"
	"github.com/openflow/dictation/internal/events"
	"github.com/openflow/dictation/internal/hotkey"
	"github.com/openflow/dictation/internal/models"
	"github.com/openflow/dictation/internal/output"
	"github.com/openflow/dictation/internal/registry"
	"github.com/openflow/dictation/internal/session"
	"github.com/openflow/dictation/internal/settings"
	"github.com/openflow/dictation/internal/vad"
)

// listenAddr is the local-only event bus endpoint the front-end connects to.
const listenAddr = "127.0.0.1:8849"

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	sets, err := settings.Load(cfg.ConfigDir)
	if err != nil {
		slog.Warn("settings load failed, using defaults", "error", err)
		sets = settings.Defaults()
	}

	reg := registry.New()
	if cfg.SileroVADModel != "" {
		reg.SetVADModelPath(cfg.SileroVADModel)
	}

	// The model manager reloads the pipeline after installs; the
	// orchestrator doesn't exist yet, so route through a late-bound cell.
	var orch *session.Orchestrator
	mgr, err := models.New(cfg.DataDir, models.Options{
		ReloadPipeline: func() {
			if orch != nil {
				orch.ReloadPipeline()
			}
		},
		VADModelInstalled: reg.SetVADModelPath,
	})
	if err != nil {
		slog.Error("model manifest load failed", "error", err)
		os.Exit(1)
	}

	deviceID := ""
	if sets.Frontend.AudioDeviceID != nil {
		deviceID = *sets.Frontend.AudioDeviceID
	}
	var capture *audio.Capture
	if cfg.TestMode {
		capture, err = audio.SpawnSynthetic()
	} else {
		capture, err = audio.Spawn(audio.Config{DeviceID: deviceID})
	}
	if err != nil {
		slog.Error("audio capture unavailable", "error", err)
		os.Exit(1)
	}
	defer capture.Stop()

	// The neural VAD binding is an external collaborator that reads its
	// model path from the registry; without one the engine runs on the
	// energy backend.
	if path := reg.VADModelPath(); path != "" {
		slog.Info("VAD model available", "path", path)
	} else {
		slog.Info("no VAD model on disk, using energy backend")
	}
	v := vad.New(vad.Config{
		SampleRate:  capture.SampleRate(),
		Sensitivity: vad.Sensitivity(sets.Frontend.VadSensitivity),
	})

	lang, auto := settings.ParseLanguage(sets.Frontend)
	englishOnly := settings.IsEnglishOnly(sets.Frontend)
	if englishOnly {
		lang, auto = "en", false
	}
	sel := settings.ToAsrSelection(sets.Frontend)
	engine := asr.New(asr.Config{
		Family:      asr.Family(sel.Family),
		Backend:     asr.Backend(sel.WhisperBackend),
		Model:       string(sel.WhisperModel),
		Language:    lang,
		AutoLang:    auto,
		EnglishOnly: englishOnly,
		Precision:   asr.Precision(sel.WhisperPrecision),
	}, capture.SampleRate(), nil)

	injector := output.New(cfg.IsWayland())
	injector.SetPasteShortcut(output.PasteShortcut(sets.Frontend.PasteShortcut))
	if err := injector.Prewarm(); err != nil {
		slog.Warn("injector prewarm failed", "error", err)
	}
	defer injector.Close()

	bus := events.NewBus()
	defer bus.Close()

	hotkeys := hotkey.New(cfg.IsWayland(), reg)
	shortcut := sets.Frontend.PushToTalkHotkey
	if sets.Frontend.HotkeyMode == settings.HotkeyModeToggle {
		shortcut = sets.Frontend.ToggleToTalkHotkey
	}
	if err := hotkeys.Register(shortcut); err != nil {
		slog.Error("hotkey registration failed", "shortcut", shortcut, "error", err)
		bus.Publish(events.HotkeyError, err.Error())
	} else {
		bus.Publish(events.HotkeyRegistered, shortcut)
		bus.Publish(events.HotkeyBackend, reg.CurrentHotkey().Backend)
	}
	defer hotkeys.Unregister()

	orch = session.New(session.Deps{
		Cfg:      cfg,
		Bus:      bus,
		Capture:  capture,
		Vad:      v,
		Engine:   engine,
		Injector: injector,
		Models:   mgr,
		Hotkeys:  hotkeys,
		Settings: sets,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch.Start(ctx)
	mgr.Start()
	mgr.ValidateInstalled()

	probe := capabilities.Detect(cfg.IsWayland())
	for _, d := range probe.Details {
		slog.Warn("capability check", "detail", d)
	}

	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      bus.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("event bus listening", "addr", listenAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	mgr.Stop()
	orch.Stop()
	slog.Info("shutdown complete")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(logger)
}
