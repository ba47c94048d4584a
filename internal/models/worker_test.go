package models

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

// fakeClient serves canned bodies by URL.
type fakeClient struct {
	responses map[string][]byte
}

func (f *fakeClient) Get(_ context.Context, url string) (io.ReadCloser, int64, error) {
	body, ok := f.responses[url]
	if !ok {
		return nil, 0, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(body)), int64(len(body)), nil
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		if err := tw.WriteHeader(&tar.Header{
			Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg,
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestManager(t *testing.T, client downloadClient, opts Options) *Manager {
	t.Helper()
	opts.Client = client
	if opts.HfEndpoint == "" {
		opts.HfEndpoint = "https://hf.test"
	}
	m, err := New(t.TempDir(), opts)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestArchivePlanExtractsWithStripPrefix(t *testing.T) {
	archive := tarGz(t, map[string]string{
		"release/model.onnx": "weights",
		"release/tokens.txt": "a b c",
	})
	client := &fakeClient{responses: map[string][]byte{"https://mirror.test/m.tar.gz": archive}}
	m := newTestManager(t, client, Options{})

	job := Asset{
		Kind: KindParakeet, Name: "parakeet-test", Version: "1",
		Source: Source{Archive: &ArchiveSource{
			URI: "https://mirror.test/m.tar.gz", Format: FormatTarGz, StripPrefixComponents: 1,
		}},
	}
	m.mu.Lock()
	m.manifest.Assets = append(m.manifest.Assets, job)
	dest := m.assetDirLocked(job)
	m.mu.Unlock()

	if err := m.execute(job, dest); err != nil {
		t.Fatalf("execute: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "model.onnx"))
	if err != nil || string(data) != "weights" {
		t.Fatalf("model.onnx = %q, %v; want stripped to root", data, err)
	}
}

func TestArchivePlanChecksumMismatch(t *testing.T) {
	archive := tarGz(t, map[string]string{"tokens.txt": "x"})
	client := &fakeClient{responses: map[string][]byte{"https://mirror.test/m.tar.gz": archive}}
	m := newTestManager(t, client, Options{})

	job := Asset{
		Kind: KindParakeet, Name: "parakeet-test", Version: "1",
		ExpectedChecksum: strings.Repeat("0", 64),
		Source: Source{Archive: &ArchiveSource{
			URI: "https://mirror.test/m.tar.gz", Format: FormatTarGz,
		}},
	}
	if err := m.execute(job, filepath.Join(t.TempDir(), "dest")); err == nil {
		t.Fatal("execute succeeded despite checksum mismatch")
	}
}

func TestRawFileVadInstallExportsModelPath(t *testing.T) {
	var exported string
	client := &fakeClient{responses: map[string][]byte{"https://mirror.test/vad.onnx": []byte("onnx-bytes")}}
	m := newTestManager(t, client, Options{VADModelInstalled: func(p string) { exported = p }})

	job := Asset{
		Kind: KindVad, Name: "silero-test", Version: "5",
		Source: Source{Archive: &ArchiveSource{URI: "https://mirror.test/vad.onnx", Format: FormatRawFile}},
	}
	m.mu.Lock()
	dest := m.assetDirLocked(job)
	m.mu.Unlock()

	if err := m.execute(job, dest); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if exported == "" || !strings.HasSuffix(exported, ".onnx") {
		t.Fatalf("exported VAD path = %q, want an .onnx under %s", exported, dest)
	}
}

func TestHfPlanFiltersGlobsAndPreservesPaths(t *testing.T) {
	tree, _ := json.Marshal([]hfTreeEntry{
		{Type: "file", Path: "encoder/model.onnx", Size: 4},
		{Type: "file", Path: "tokens.txt", Size: 5},
		{Type: "file", Path: "README.md", Size: 2},
		{Type: "directory", Path: "encoder"},
	})
	client := &fakeClient{responses: map[string][]byte{
		"https://hf.test/api/models/acme/parakeet/tree/main?recursive=true": tree,
		"https://hf.test/acme/parakeet/resolve/main/encoder/model.onnx":     []byte("onnx"),
		"https://hf.test/acme/parakeet/resolve/main/tokens.txt":             []byte("a b c"),
	}}
	m := newTestManager(t, client, Options{})

	job := Asset{
		Kind: KindParakeet, Name: "parakeet-hf", Version: "1",
		Source: Source{HfRepo: &HfRepoSource{
			Repo: "acme/parakeet", Revision: "main",
			IncludeGlobs: []string{"**/*.onnx", "*token*.txt"},
		}},
	}
	m.mu.Lock()
	m.manifest.Assets = append(m.manifest.Assets, job)
	dest := m.assetDirLocked(job)
	m.mu.Unlock()

	if err := m.execute(job, dest); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "encoder", "model.onnx")); err != nil {
		t.Errorf("relative path not preserved: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "README.md")); !os.IsNotExist(err) {
		t.Error("README.md downloaded despite not matching include globs")
	}
	if _, err := os.Stat(dest + ".staging"); !os.IsNotExist(err) {
		t.Error("staging directory left behind after rename")
	}
}

func TestZipExtraction(t *testing.T) {
	archive := zipArchive(t, map[string]string{"a/b.txt": "hi"})
	dir := t.TempDir()
	src := filepath.Join(dir, "a.zip")
	if err := os.WriteFile(src, archive, 0o644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(dir, "out")
	if err := extractArchive(src, dest, FormatZip, 0); err != nil {
		t.Fatalf("extract: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "a", "b.txt"))
	if err != nil || string(data) != "hi" {
		t.Fatalf("b.txt = %q, %v", data, err)
	}
}

func TestExtractionRejectsPathTraversal(t *testing.T) {
	archive := tarGz(t, map[string]string{"../escape.txt": "bad"})
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.tar.gz")
	if err := os.WriteFile(src, archive, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := extractArchive(src, filepath.Join(dir, "out"), FormatTarGz, 0); err == nil {
		t.Fatal("extraction accepted a path-traversal entry")
	}
}

func TestStripComponents(t *testing.T) {
	tests := []struct {
		name  string
		strip int
		want  string
		ok    bool
	}{
		{"a/b/c.txt", 1, "b/c.txt", true},
		{"a/b/c.txt", 2, "c.txt", true},
		{"a/b/c.txt", 3, "", false},
		{"top.txt", 0, "top.txt", true},
		{"top.txt", 1, "", false},
	}
	for _, tt := range tests {
		got, ok := stripComponents(tt.name, tt.strip)
		if got != tt.want || ok != tt.ok {
			t.Errorf("stripComponents(%q, %d) = (%q, %v), want (%q, %v)",
				tt.name, tt.strip, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFileSHA256DeterministicAndSensitive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := FileSHA256(path)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := FileSHA256(path)
	if a != b {
		t.Errorf("hash not deterministic: %s vs %s", a, b)
	}
	if err := os.WriteFile(path, []byte("contenu"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, _ := FileSHA256(path)
	if a == c {
		t.Error("single-byte mutation produced the same hash")
	}
}

func TestQueueDownloadEndToEnd(t *testing.T) {
	archive := tarGz(t, map[string]string{"tokens.txt": "a b"})
	client := &fakeClient{responses: map[string][]byte{"https://mirror.test/m.tar.gz": archive}}
	m := newTestManager(t, client, Options{})

	m.mu.Lock()
	m.manifest.Assets = append(m.manifest.Assets, Asset{
		Kind: KindParakeet, Name: "parakeet-e2e", Version: "1",
		Status: Status{Kind: StatusNotInstalled},
		Source: Source{Archive: &ArchiveSource{URI: "https://mirror.test/m.tar.gz", Format: FormatTarGz}},
	})
	m.mu.Unlock()

	m.Start()
	defer m.Stop()

	if err := m.QueueDownload("parakeet-e2e"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		a, _ := m.AssetByName("parakeet-e2e")
		if a.Status.Kind == StatusInstalled {
			if a.Checksum == "" || a.SizeBytes == 0 {
				t.Errorf("tokens checksum of record not set: %+v", a)
			}
			return
		}
		if a.Status.Kind == StatusError {
			t.Fatalf("install errored: %s", a.Status.Message)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("install did not complete")
}
