package session

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/openflow/dictation/internal/errors"
	"github.com/openflow/dictation/internal/models"
	"github.com/openflow/dictation/internal/settings"
)

// WarmupPhase is the warmup state machine's externally visible phase.
type WarmupPhase string

const (
	WarmupWarming WarmupPhase = "warming"
	WarmupReady   WarmupPhase = "ready"
	WarmupError   WarmupPhase = "error"
)

const (
	// installWait bounds how long warmup waits for a queued model
	// download before bailing.
	installWait     = 10 * time.Second
	installPollStep = 250 * time.Millisecond
)

// warmupRunner governs recognizer warmup under a monotonic generation
// counter so stale completions never overwrite newer warmup state.
type warmupRunner struct {
	o   *Orchestrator
	gen atomic.Int64

	mu    sync.Mutex
	state WarmupPhase
}

func newWarmupRunner(o *Orchestrator) *warmupRunner {
	return &warmupRunner{o: o, state: WarmupWarming}
}

func (w *warmupRunner) phase() WarmupPhase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *warmupRunner) markReady() {
	w.mu.Lock()
	w.state = WarmupReady
	w.mu.Unlock()
}

// kick starts a new warmup generation in the background.
func (w *warmupRunner) kick() {
	gen := w.gen.Add(1)
	w.mu.Lock()
	w.state = WarmupWarming
	w.mu.Unlock()

	w.o.wg.Add(1)
	go func() {
		defer w.o.wg.Done()
		w.run(gen)
	}()
}

func (w *warmupRunner) stale(gen int64) bool {
	return w.gen.Load() != gen
}

func (w *warmupRunner) finish(gen int64, phase WarmupPhase) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen.Load() != gen {
		return
	}
	w.state = phase
}

func (w *warmupRunner) run(gen int64) {
	err := w.warmCurrent(gen)
	if w.stale(gen) {
		return
	}
	if err == nil {
		w.recordLastKnownGood()
		w.finish(gen, WarmupReady)
		return
	}
	slog.Warn("warmup failed, trying last known good", "error", err)

	if w.applyLastKnownGood() {
		if err := w.warmCurrent(gen); err == nil {
			w.finish(gen, WarmupReady)
			return
		} else if w.stale(gen) {
			return
		} else {
			slog.Error("last-known-good warmup failed", "error", err)
		}
	}
	w.finish(gen, WarmupError)
}

// warmCurrent ensures the selected model is installed, reconfigures the
// engine for it, and constructs the recognizer.
func (w *warmupRunner) warmCurrent(gen int64) error {
	if err := w.ensureModelInstalled(gen); err != nil {
		return err
	}
	cfg, err := w.o.resolveAsrConfig()
	if err != nil {
		return err
	}
	if w.stale(gen) {
		return nil
	}
	w.o.engine.Reconfigure(cfg)
	return w.o.engine.Warmup()
}

// ensureModelInstalled queues a download for the selected kind when it is
// not installed and waits up to installWait for it to land.
func (w *warmupRunner) ensureModelInstalled(gen int64) error {
	kind := w.selectedKind()
	if _, ok := w.o.models.PrimaryAsset(kind); ok {
		return nil
	}
	if w.o.cfg.DisableModelAutodownload {
		return apperrors.New(apperrors.ModelNotInstalled, "pipeline ASR config not ready")
	}

	asset, ok := w.o.models.CatalogAsset(kind)
	if !ok {
		return errModelNotInstalled(kind)
	}
	if asset.Status.Kind != models.StatusDownloading {
		if err := w.o.models.QueueDownload(asset.Name); err != nil {
			return err
		}
	}

	deadline := time.Now().Add(installWait)
	for time.Now().Before(deadline) {
		if w.stale(gen) {
			return nil
		}
		current, ok := w.o.models.AssetByName(asset.Name)
		if ok {
			switch current.Status.Kind {
			case models.StatusInstalled:
				return nil
			case models.StatusError:
				return apperrors.Newf(apperrors.ModelNotInstalled,
					"model %q install failed: %s", asset.Name, current.Status.Message)
			}
		}
		time.Sleep(installPollStep)
	}
	return apperrors.New(apperrors.ModelNotInstalled, "pipeline ASR config not ready")
}

func (w *warmupRunner) selectedKind() models.Kind {
	w.o.mu.Lock()
	front := w.o.front
	w.o.mu.Unlock()
	sel := settings.ToAsrSelection(front)
	if sel.Family == settings.FamilyWhisper {
		if sel.WhisperBackend == settings.BackendCT2 {
			return models.KindWhisperCt2
		}
		return models.KindWhisperOnnx
	}
	return models.KindParakeet
}

// recordLastKnownGood persists the now-proven selection.
func (w *warmupRunner) recordLastKnownGood() {
	w.o.mu.Lock()
	sel := settings.ToAsrSelection(w.o.front)
	w.o.mu.Unlock()

	s, err := settings.Load(w.o.cfg.ConfigDir)
	if err != nil {
		slog.Warn("cannot record last-known-good ASR selection", "error", err)
		return
	}
	s.LastKnownGoodAsr = &sel
	if err := settings.Save(w.o.cfg.ConfigDir, s); err != nil {
		slog.Warn("cannot persist last-known-good ASR selection", "error", err)
	}
}

// applyLastKnownGood swaps the frontend ASR fields back to the stored
// selection, returning false when none is stored or it matches the
// current (already failed) selection.
func (w *warmupRunner) applyLastKnownGood() bool {
	s, err := settings.Load(w.o.cfg.ConfigDir)
	if err != nil || s.LastKnownGoodAsr == nil {
		return false
	}
	lkg := *s.LastKnownGoodAsr

	w.o.mu.Lock()
	current := settings.ToAsrSelection(w.o.front)
	if lkg == current {
		w.o.mu.Unlock()
		return false
	}
	settings.ApplySelection(&w.o.front, lkg)
	front := w.o.front
	w.o.mu.Unlock()

	s.Frontend = front
	if err := settings.Save(w.o.cfg.ConfigDir, s); err != nil {
		slog.Warn("cannot persist last-known-good fallback", "error", err)
	}
	return true
}

func errModelNotInstalled(kind models.Kind) error {
	return apperrors.Newf(apperrors.ModelNotInstalled, "no installed %s model", kind)
}
