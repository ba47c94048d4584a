package models

import (
	"encoding/json"
	"os"
	"testing"
)

func TestNewSeedsBuiltinCatalog(t *testing.T) {
	m := newTestManager(t, &fakeClient{}, Options{})
	assets := m.Assets()
	if len(assets) != len(builtinCatalog()) {
		t.Fatalf("assets = %d, want %d builtins", len(assets), len(builtinCatalog()))
	}
	for _, a := range assets {
		if a.Status.Kind != StatusNotInstalled {
			t.Errorf("asset %s status = %s, want NotInstalled", a.Name, a.Status.Kind)
		}
	}
}

func TestManifestRoundTrip(t *testing.T) {
	m := newTestManager(t, &fakeClient{}, Options{})
	m.setStatus("silero-vad", Status{Kind: StatusInstalled, Progress: 100})

	data, err := os.ReadFile(m.manifestPath())
	if err != nil {
		t.Fatal(err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("manifest does not parse back: %v", err)
	}
	found, ok := manifest.findByName("silero-vad")
	if !ok || found.Status.Kind != StatusInstalled {
		t.Fatalf("round-tripped manifest lost state: %+v", found)
	}
}

func TestMergePreservesInstalledState(t *testing.T) {
	dataDir := t.TempDir()
	m, err := New(dataDir, Options{Client: &fakeClient{}, HfEndpoint: "https://hf.test"})
	if err != nil {
		t.Fatal(err)
	}
	m.setStatus("whisper-small-ct2", Status{Kind: StatusInstalled})

	// A second startup must not reset the installed status, but must
	// still self-repair the source URI.
	m2, err := New(dataDir, Options{Client: &fakeClient{}, HfEndpoint: "https://hf.test"})
	if err != nil {
		t.Fatal(err)
	}
	a, ok := m2.AssetByName("whisper-small-ct2")
	if !ok || a.Status.Kind != StatusInstalled {
		t.Fatalf("installed status lost across restart: %+v", a)
	}
	if a.Source.Archive == nil || a.Source.Archive.URI == "" {
		t.Error("source not self-repaired from catalog")
	}
}

func TestMergeDemotesErrorToNotInstalled(t *testing.T) {
	dataDir := t.TempDir()
	m, err := New(dataDir, Options{Client: &fakeClient{}, HfEndpoint: "https://hf.test"})
	if err != nil {
		t.Fatal(err)
	}
	m.setStatus("whisper-small-ct2", Status{Kind: StatusError, Message: "boom"})

	m2, err := New(dataDir, Options{Client: &fakeClient{}, HfEndpoint: "https://hf.test"})
	if err != nil {
		t.Fatal(err)
	}
	a, _ := m2.AssetByName("whisper-small-ct2")
	if a.Status.Kind != StatusNotInstalled {
		t.Fatalf("status = %s, want Error demoted to NotInstalled", a.Status.Kind)
	}
}

func TestLoadPurgesUnknownKindsAndZipformer(t *testing.T) {
	dataDir := t.TempDir()
	m, err := New(dataDir, Options{Client: &fakeClient{}, HfEndpoint: "https://hf.test"})
	if err != nil {
		t.Fatal(err)
	}
	m.mu.Lock()
	m.manifest.Assets = append(m.manifest.Assets,
		Asset{Kind: Kind("Moonshine"), Name: "moonshine", Version: "1"},
		Asset{Kind: KindParakeet, Name: "zipformer", Version: "1"},
	)
	if err := m.persist(); err != nil {
		m.mu.Unlock()
		t.Fatal(err)
	}
	m.mu.Unlock()

	m2, err := New(dataDir, Options{Client: &fakeClient{}, HfEndpoint: "https://hf.test"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m2.AssetByName("moonshine"); ok {
		t.Error("unknown-kind asset survived the purge")
	}
	if _, ok := m2.AssetByName("zipformer"); ok {
		t.Error("legacy zipformer asset survived the purge")
	}
}

func TestPrimaryAssetPrefersLargestInstalled(t *testing.T) {
	m := newTestManager(t, &fakeClient{}, Options{})
	m.mu.Lock()
	m.manifest.Assets = append(m.manifest.Assets,
		Asset{Kind: KindParakeet, Name: "parakeet-small", Version: "1",
			SizeBytes: 100, Status: Status{Kind: StatusInstalled}},
		Asset{Kind: KindParakeet, Name: "parakeet-big", Version: "1",
			SizeBytes: 900, Status: Status{Kind: StatusInstalled}},
		Asset{Kind: KindParakeet, Name: "parakeet-huge", Version: "1",
			SizeBytes: 9000, Status: Status{Kind: StatusNotInstalled}},
	)
	m.mu.Unlock()

	a, ok := m.PrimaryAsset(KindParakeet)
	if !ok || a.Name != "parakeet-big" {
		t.Fatalf("primary = %+v, want largest installed parakeet-big", a)
	}
}

func TestQueueDownloadUnknownName(t *testing.T) {
	m := newTestManager(t, &fakeClient{}, Options{})
	if err := m.QueueDownload("nope"); err == nil {
		t.Fatal("queueing an unknown asset succeeded")
	}
}

func TestUninstallResetsStatusAndRemovesDir(t *testing.T) {
	m := newTestManager(t, &fakeClient{}, Options{})
	a, _ := m.AssetByName("silero-vad")
	dir := m.AssetDir(a)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	m.setStatus("silero-vad", Status{Kind: StatusInstalled})

	if err := m.Uninstall("silero-vad"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("asset directory still exists after uninstall")
	}
	got, _ := m.AssetByName("silero-vad")
	if got.Status.Kind != StatusNotInstalled {
		t.Errorf("status = %s, want NotInstalled", got.Status.Kind)
	}
}
