package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/openflow/dictation/internal/errors"
	"github.com/openflow/dictation/internal/resilience"
)

// StatusEvent is what the manager publishes on every asset transition.
type StatusEvent struct {
	Asset Asset
}

// Manager owns the manifest file exclusively; every mutation goes through
// it and is persisted before the lock releases.
type Manager struct {
	mu       sync.Mutex
	dataDir  string
	manifest Manifest

	queue      chan string
	events     chan StatusEvent
	breaker    *resilience.Breaker
	client     downloadClient
	reload     func()
	vadExport  func(path string)
	hfEndpoint string

	stop chan struct{}
	done chan struct{}
}

// Options configures a Manager beyond its data directory.
type Options struct {
	// ReloadPipeline is invoked after a successful install so the
	// orchestrator's next dictation session picks up the new model.
	ReloadPipeline func()
	// VADModelInstalled receives the on-disk model path after a Vad-kind
	// install, so the registry's VAD model cell can be updated.
	VADModelInstalled func(path string)
	// Client overrides the HTTP client used for downloads (tests).
	Client downloadClient
	// HfEndpoint overrides the Hugging Face API host (tests).
	HfEndpoint string
}

// New loads (or initializes) the manifest at dataDir/models/manifest.json,
// purges legacy entries, and merges the built-in catalog in.
func New(dataDir string, opts Options) (*Manager, error) {
	m := &Manager{
		dataDir:    dataDir,
		queue:      make(chan string, 64),
		events:     make(chan StatusEvent, 64),
		breaker:    resilience.New(resilience.DownloadConfig()),
		client:     opts.Client,
		reload:     opts.ReloadPipeline,
		vadExport:  opts.VADModelInstalled,
		hfEndpoint: opts.HfEndpoint,
	}
	if m.client == nil {
		m.client = newRetryableDownloadClient()
	}
	if m.reload == nil {
		m.reload = func() {}
	}
	if m.vadExport == nil {
		m.vadExport = func(string) {}
	}
	if m.hfEndpoint == "" {
		m.hfEndpoint = defaultHfEndpoint
	}

	if err := m.load(); err != nil {
		return nil, err
	}
	m.mergeBuiltins()
	if err := m.persist(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) manifestPath() string {
	return filepath.Join(m.dataDir, "models", "manifest.json")
}

// Root returns the models root directory.
func (m *Manager) Root() string {
	return filepath.Join(m.dataDir, "models")
}

func (m *Manager) load() error {
	path := m.manifestPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		m.manifest = Manifest{}
		return nil
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ManifestCorrupt, "reading manifest")
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return apperrors.Wrap(err, apperrors.ManifestCorrupt, "parsing manifest")
	}

	// Purge legacy entries: unknown kinds, and the legacy Zipformer
	// directory this format never had a representation for.
	kept := manifest.Assets[:0]
	for _, a := range manifest.Assets {
		if !knownKind(a.Kind) {
			continue
		}
		if a.Name == "zipformer" {
			continue
		}
		kept = append(kept, a)
	}
	manifest.Assets = kept
	m.manifest = manifest
	return nil
}

// mergeBuiltins merges the default catalog into the manifest: built-in source config
// always self-repairs; non-status fields update only when the existing
// status is NotInstalled/Error; Error demotes to NotInstalled to allow
// retry; unknown (user) entries are preserved untouched.
func (m *Manager) mergeBuiltins() {
	for _, builtin := range builtinCatalog() {
		existing, ok := m.manifest.findByName(builtin.Name)
		if !ok {
			m.manifest.Assets = append(m.manifest.Assets, builtin)
			continue
		}

		existing.Source = builtin.Source // self-repair stale URIs always

		switch existing.Status.Kind {
		case StatusNotInstalled, StatusError:
			existing.Kind = builtin.Kind
			existing.Version = builtin.Version
			existing.Checksum = builtin.Checksum
			existing.ExpectedChecksum = builtin.ExpectedChecksum
			if existing.Status.Kind == StatusError {
				existing.Status = Status{Kind: StatusNotInstalled}
			}
		default:
			// Installed / Downloading: leave user-visible state alone.
		}
	}
}

func (m *Manager) persist() error {
	if err := os.MkdirAll(filepath.Dir(m.manifestPath()), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "creating models directory")
	}
	data, err := json.MarshalIndent(m.manifest, "", "  ")
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "marshaling manifest")
	}
	tmp := m.manifestPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "writing manifest")
	}
	return os.Rename(tmp, m.manifestPath())
}

// Assets returns a snapshot of every manifest entry.
func (m *Manager) Assets() []Asset {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Asset, len(m.manifest.Assets))
	copy(out, m.manifest.Assets)
	return out
}

// AssetByName returns the asset with the given name, if any.
func (m *Manager) AssetByName(name string) (Asset, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.manifest.findByName(name)
	if !ok {
		return Asset{}, false
	}
	return *a, true
}

// PrimaryAsset returns the best installed asset of a kind: the largest
// installed model wins when more than one is present.
func (m *Manager) PrimaryAsset(kind Kind) (Asset, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Asset
	for i := range m.manifest.Assets {
		a := &m.manifest.Assets[i]
		if a.Kind != kind || a.Status.Kind != StatusInstalled {
			continue
		}
		if best == nil || a.SizeBytes > best.SizeBytes {
			best = a
		}
	}
	if best == nil {
		return Asset{}, false
	}
	return *best, true
}

// Events returns the channel status transitions are published on.
func (m *Manager) Events() <-chan StatusEvent {
	return m.events
}

func (m *Manager) publish(a Asset) {
	select {
	case m.events <- StatusEvent{Asset: a}:
	default:
	}
}

// QueueDownload enqueues a job for the named asset, flipping it to
// Downloading immediately so repeated clicks are idempotent.
func (m *Manager) QueueDownload(name string) error {
	m.mu.Lock()
	asset, ok := m.manifest.findByName(name)
	if !ok {
		m.mu.Unlock()
		return apperrors.Newf(apperrors.NotFound, "no asset named %q", name)
	}
	asset.Status = Status{Kind: StatusDownloading, Progress: 0}
	m.publish(*asset)
	if err := m.persist(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	select {
	case m.queue <- name:
	default:
		return apperrors.New(apperrors.Unavailable, "download queue is full")
	}
	return nil
}

// Uninstall removes an asset's on-disk directory and resets it to
// NotInstalled.
func (m *Manager) Uninstall(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.manifest.findByName(name)
	if !ok {
		return apperrors.Newf(apperrors.NotFound, "no asset named %q", name)
	}
	dir := m.assetDirLocked(*asset)
	if err := os.RemoveAll(dir); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "removing asset directory")
	}
	asset.Status = Status{Kind: StatusNotInstalled}
	m.publish(*asset)
	return m.persist()
}

// CatalogAsset returns the first manifest entry of a kind regardless of
// install status; warmup uses it to queue a download when nothing of the
// kind is installed yet.
func (m *Manager) CatalogAsset(kind Kind) (Asset, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.manifest.Assets {
		if m.manifest.Assets[i].Kind == kind {
			return m.manifest.Assets[i], true
		}
	}
	return Asset{}, false
}

// AssetDir returns the stable on-disk directory for an asset's
// (kind, name, version) triple.
func (m *Manager) AssetDir(a Asset) string {
	return m.assetDirLocked(a)
}

func (m *Manager) assetDirLocked(a Asset) string {
	kindDir := map[Kind]string{
		KindWhisperOnnx: "asr/whisper-onnx",
		KindWhisperCt2:  "asr/whisper-ct2",
		KindParakeet:    "asr/parakeet",
		KindVad:         "vad",
	}[a.Kind]
	return filepath.Join(m.Root(), kindDir, fmt.Sprintf("%s-%s", a.Name, a.Version))
}

// Start launches the single download-worker goroutine.
func (m *Manager) Start() {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.worker()
}

// Stop signals the worker to exit.
func (m *Manager) Stop() {
	if m.stop != nil {
		close(m.stop)
		<-m.done
	}
}
