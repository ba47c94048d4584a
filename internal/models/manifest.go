package models

// Status carries the per-kind progress/error payload alongside StatusKind.
type Status struct {
	Kind      StatusKind `json:"kind"`
	Progress  float64    `json:"progress,omitempty"`
	Downloaded int64     `json:"downloaded,omitempty"`
	Total     *int64     `json:"total,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// ArchiveSource downloads and extracts a single archive.
type ArchiveSource struct {
	URI                   string `json:"uri"`
	Format                Format `json:"format"`
	StripPrefixComponents int    `json:"stripPrefixComponents"`
}

// HfRepoSource downloads a filtered set of files from a Hugging Face-style
// repository.
type HfRepoSource struct {
	Repo         string   `json:"repo"`
	Revision     string   `json:"revision"`
	IncludeGlobs []string `json:"includeGlobs"`
	ExcludeGlobs []string `json:"excludeGlobs"`
}

// Source is a sum type over the two download plans. Exactly one of Archive
// or HfRepo is set.
type Source struct {
	Archive *ArchiveSource `json:"archive,omitempty"`
	HfRepo  *HfRepoSource  `json:"hfRepo,omitempty"`
}

// Asset is one manifest entry.
type Asset struct {
	Kind             Kind   `json:"kind"`
	Name             string `json:"name"`
	Version          string `json:"version"`
	Checksum         string `json:"checksum,omitempty"`
	SizeBytes        int64  `json:"sizeBytes,omitempty"`
	Status           Status `json:"status"`
	Source           Source `json:"source"`
	ExpectedChecksum string `json:"expectedChecksum,omitempty"`
}

// key identifies the unique (kind, name, version) triple a manifest entry
// maps to a stable on-disk directory under.
func (a Asset) key() string {
	return string(a.Kind) + "/" + a.Name + "/" + a.Version
}

// Manifest is the JSON document persisted at <data-dir>/models/manifest.json.
type Manifest struct {
	Assets []Asset `json:"assets"`
}

func (m *Manifest) find(kind Kind, name, version string) (*Asset, bool) {
	for i := range m.Assets {
		a := &m.Assets[i]
		if a.Kind == kind && a.Name == name && a.Version == version {
			return a, true
		}
	}
	return nil, false
}

func (m *Manifest) findByName(name string) (*Asset, bool) {
	for i := range m.Assets {
		if m.Assets[i].Name == name {
			return &m.Assets[i], true
		}
	}
	return nil, false
}
