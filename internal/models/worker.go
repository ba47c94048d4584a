package models

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/gzip"

	apperrors "github.com/openflow/dictation/internal/errors"
	"github.com/openflow/dictation/internal/trace"
)

const defaultHfEndpoint = "https://huggingface.co"

// worker is the single background download thread. Jobs are serialized so
// disk and network pressure stay bounded.
func (m *Manager) worker() {
	defer close(m.done)
	for {
		select {
		case <-m.stop:
			return
		case name := <-m.queue:
			m.runJob(name)
		}
	}
}

func (m *Manager) runJob(name string) {
	m.mu.Lock()
	asset, ok := m.manifest.findByName(name)
	if !ok {
		m.mu.Unlock()
		return
	}
	job := *asset
	dest := m.assetDirLocked(job)
	m.mu.Unlock()

	_, span := trace.StartSpan(context.Background(), "model_install")
	defer span.End()
	span.SetAttr("asset", name)

	err := m.breaker.Execute(func() error {
		return m.execute(job, dest)
	})
	if err != nil {
		span.SetAttr("error", err.Error())
		slog.Error("model install failed", "asset", name, "error", err)
		m.setStatus(name, Status{Kind: StatusError, Message: err.Error()})
		return
	}

	m.setStatus(name, Status{Kind: StatusInstalled, Progress: 100})
	m.reload()
}

// setStatus flips the named asset's status, persists the manifest, and
// publishes a status event, all under the manifest lock.
func (m *Manager) setStatus(name string, s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.manifest.findByName(name)
	if !ok {
		return
	}
	asset.Status = s
	m.publish(*asset)
	if err := m.persist(); err != nil {
		slog.Error("manifest persist failed", "asset", name, "error", err)
	}
}

func (m *Manager) reportProgress(name string) *progressReporter {
	return &progressReporter{emit: func(downloaded int64, total *int64, progress float64) {
		m.setStatus(name, Status{
			Kind:       StatusDownloading,
			Progress:   progress,
			Downloaded: downloaded,
			Total:      total,
		})
	}}
}

func (m *Manager) execute(job Asset, dest string) error {
	ctx := context.Background()
	switch {
	case job.Source.Archive != nil:
		if err := m.archivePlan(ctx, job, dest); err != nil {
			return err
		}
	case job.Source.HfRepo != nil:
		if err := m.hfPlan(ctx, job, dest); err != nil {
			return err
		}
	default:
		return apperrors.Newf(apperrors.InvalidArgument, "asset %q has no source", job.Name)
	}
	return m.postInstall(job, dest)
}

// archivePlan streams the URI into a staging file beside the destination,
// verifies size and checksum, then extracts into a freshly-emptied
// destination directory.
func (m *Manager) archivePlan(ctx context.Context, job Asset, dest string) error {
	src := job.Source.Archive
	logDownloadStart(job.Name, src.URI)

	body, contentLen, err := m.client.Get(ctx, src.URI)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Unavailable, "downloading archive")
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "creating destination parent")
	}
	staging := dest + ".download"
	f, err := os.Create(staging)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "creating staging file")
	}
	defer os.Remove(staging)

	total := totalFor(contentLen, job.SizeBytes)
	reporter := m.reportProgress(job.Name)
	counted := &countingReader{r: body, onRead: func(n int64) { reporter.report(n, total) }}
	written, err := io.Copy(f, counted)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.Unavailable, "streaming archive")
	}

	if job.SizeBytes > 0 && written != job.SizeBytes {
		return apperrors.Newf(apperrors.ChecksumMismatch,
			"size mismatch: got %d bytes, expected %d", written, job.SizeBytes)
	}
	if job.ExpectedChecksum != "" {
		sum, err := FileSHA256(staging)
		if err != nil {
			return err
		}
		if !strings.EqualFold(sum, job.ExpectedChecksum) {
			return apperrors.Newf(apperrors.ChecksumMismatch,
				"checksum mismatch: got %s, expected %s", sum, job.ExpectedChecksum)
		}
	}

	if err := emptyDir(dest); err != nil {
		return err
	}
	return extractArchive(staging, dest, src.Format, src.StripPrefixComponents)
}

// hfPlan lists the repository tree, filters it through the include/exclude
// globs, downloads each file into a staging directory preserving relative
// paths, and atomically renames staging into place.
func (m *Manager) hfPlan(ctx context.Context, job Asset, dest string) error {
	src := job.Source.HfRepo
	entries, err := m.listHfTree(ctx, src)
	if err != nil {
		return err
	}

	var files []hfTreeEntry
	var total int64
	allSized := true
	for _, e := range entries {
		if e.Type != "file" || !matchGlobs(e.Path, src.IncludeGlobs, src.ExcludeGlobs) {
			continue
		}
		files = append(files, e)
		if e.Size > 0 {
			total += e.Size
		} else {
			allSized = false
		}
	}
	if len(files) == 0 {
		return apperrors.Newf(apperrors.NotFound, "no repository files match include globs for %q", job.Name)
	}

	var grandTotal *int64
	if allSized {
		grandTotal = &total
	}

	staging := dest + ".staging"
	if err := emptyDir(staging); err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	reporter := m.reportProgress(job.Name)
	var downloaded int64
	for _, file := range files {
		url := fmt.Sprintf("%s/%s/resolve/%s/%s", m.hfEndpoint, src.Repo, src.Revision, file.Path)
		logDownloadStart(job.Name, url)
		base := downloaded
		if err := m.fetchFile(ctx, url, filepath.Join(staging, filepath.FromSlash(file.Path)), func(n int64) {
			downloaded = base + n
			reporter.report(downloaded, grandTotal)
		}); err != nil {
			return err
		}
	}

	if err := os.RemoveAll(dest); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "clearing destination")
	}
	if err := os.Rename(staging, dest); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "renaming staging into place")
	}
	return nil
}

// hfTreeEntry is one row of the HF tree listing API.
type hfTreeEntry struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

func (m *Manager) listHfTree(ctx context.Context, src *HfRepoSource) ([]hfTreeEntry, error) {
	url := fmt.Sprintf("%s/api/models/%s/tree/%s?recursive=true", m.hfEndpoint, src.Repo, src.Revision)
	body, _, err := m.client.Get(ctx, url)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "listing repository tree")
	}
	defer body.Close()

	var entries []hfTreeEntry
	if err := json.NewDecoder(body).Decode(&entries); err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "decoding repository tree")
	}
	return entries, nil
}

func (m *Manager) fetchFile(ctx context.Context, url, dest string, onRead func(int64)) error {
	body, _, err := m.client.Get(ctx, url)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Unavailable, "downloading repository file")
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "creating file parent")
	}
	f, err := os.Create(dest)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "creating destination file")
	}
	counted := &countingReader{r: body, onRead: onRead}
	_, err = io.Copy(f, counted)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.Unavailable, "streaming repository file")
	}
	return nil
}

func matchGlobs(path string, include, exclude []string) bool {
	for _, g := range exclude {
		if ok, _ := doublestar.Match(g, path); ok {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, g := range include {
		if ok, _ := doublestar.Match(g, path); ok {
			return true
		}
	}
	return false
}

// postInstall dispatches the per-kind fixup.
func (m *Manager) postInstall(job Asset, dest string) error {
	switch job.Kind {
	case KindWhisperCt2:
		return PrepareCT2Dir(dest)
	case KindWhisperOnnx, KindParakeet:
		return m.recordTokensFile(job.Name, dest)
	case KindVad:
		path, err := findFirst(dest, "*.onnx")
		if err != nil {
			return apperrors.Wrap(err, apperrors.NotFound, "locating VAD model file")
		}
		m.vadExport(path)
		return nil
	}
	return nil
}

// recordTokensFile locates the tokens file and stores its checksum and
// size as the asset's checksum of record.
func (m *Manager) recordTokensFile(name, dest string) error {
	path, err := findFirst(dest, "tokens.txt")
	if err != nil {
		path, err = findFirst(dest, "*token*.txt")
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.NotFound, "locating tokens file")
	}
	sum, err := FileSHA256(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "stat tokens file")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if asset, ok := m.manifest.findByName(name); ok {
		asset.Checksum = sum
		asset.SizeBytes = info.Size()
	}
	return nil
}

// findFirst walks dir and returns the first file whose base name matches
// pattern, preferring shallower paths.
func findFirst(dir, pattern string) (string, error) {
	var match string
	var matchDepth int
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ok, _ := filepath.Match(pattern, strings.ToLower(d.Name()))
		if !ok {
			return nil
		}
		depth := strings.Count(path, string(filepath.Separator))
		if match == "" || depth < matchDepth {
			match, matchDepth = path, depth
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if match == "" {
		return "", fmt.Errorf("no file matching %q under %s", pattern, dir)
	}
	return match, nil
}

// FileSHA256 computes the hex-encoded SHA-256 digest of a file.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.Internal, "opening file for hashing")
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", apperrors.Wrap(err, apperrors.Internal, "hashing file")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func totalFor(contentLen, expected int64) *int64 {
	if expected > 0 {
		return &expected
	}
	if contentLen > 0 {
		return &contentLen
	}
	return nil
}

func emptyDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "clearing directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "creating directory")
	}
	return nil
}

// extractArchive unpacks an archive into dest, stripping strip leading
// path components from every entry.
func extractArchive(src, dest string, format Format, strip int) error {
	switch format {
	case FormatZip:
		return extractZip(src, dest, strip)
	case FormatTarGz, FormatTarBz2:
		return extractTar(src, dest, format, strip)
	case FormatRawFile:
		return copyRawFile(src, dest)
	default:
		return apperrors.Newf(apperrors.ArchiveFormatUnsupported, "unsupported archive format %q", format)
	}
}

func extractZip(src, dest string, strip int) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "opening zip")
	}
	defer r.Close()

	for _, f := range r.File {
		rel, ok := stripComponents(f.Name, strip)
		if !ok {
			continue
		}
		target, err := securePath(dest, rel)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return apperrors.Wrap(err, apperrors.Internal, "creating directory")
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return apperrors.Wrap(err, apperrors.Internal, "opening zip entry")
		}
		err = writeEntry(target, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTar(src, dest string, format Format, strip int) error {
	f, err := os.Open(src)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "opening archive")
	}
	defer f.Close()

	var decompressed io.Reader
	switch format {
	case FormatTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return apperrors.Wrap(err, apperrors.Internal, "opening gzip stream")
		}
		defer gz.Close()
		decompressed = gz
	case FormatTarBz2:
		decompressed = bzip2.NewReader(f)
	}

	tr := tar.NewReader(decompressed)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return apperrors.Wrap(err, apperrors.Internal, "reading tar entry")
		}
		rel, ok := stripComponents(hdr.Name, strip)
		if !ok {
			continue
		}
		target, err := securePath(dest, rel)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return apperrors.Wrap(err, apperrors.Internal, "creating directory")
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr); err != nil {
				return err
			}
		}
	}
}

func copyRawFile(src, dest string) error {
	// RawFile destinations still get a directory; the single file is
	// named after the asset directory.
	name := filepath.Base(dest)
	in, err := os.Open(src)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "opening raw file")
	}
	defer in.Close()
	return writeEntry(filepath.Join(dest, name+".onnx"), in)
}

func writeEntry(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "creating entry parent")
	}
	out, err := os.Create(target)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "creating entry file")
	}
	_, err = io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "writing entry file")
	}
	return nil
}

// stripComponents drops the first strip path segments. Entries with fewer
// segments than strip are skipped entirely.
func stripComponents(name string, strip int) (string, bool) {
	clean := filepath.ToSlash(filepath.Clean(name))
	parts := strings.Split(clean, "/")
	if len(parts) <= strip {
		return "", false
	}
	rel := strings.Join(parts[strip:], "/")
	if rel == "" || rel == "." {
		return "", false
	}
	return rel, true
}

// securePath rejects entries that would escape the destination directory.
func securePath(dest, rel string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(rel))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(filepath.Separator)) {
		return "", apperrors.Newf(apperrors.InvalidArgument, "archive entry escapes destination: %s", rel)
	}
	return target, nil
}
