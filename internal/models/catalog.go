package models

// builtinCatalog is the default asset set merged into the manifest on every
// startup. Source URIs are illustrative placeholders for a real asset
// mirror; what matters for this repo is the merge/self-repair semantics
// around them.
func builtinCatalog() []Asset {
	return []Asset{
		{
			Kind: KindWhisperCt2, Name: "whisper-small-ct2", Version: "1",
			Status: Status{Kind: StatusNotInstalled},
			Source: Source{Archive: &ArchiveSource{
				URI:                   "https://models.openflow.dev/whisper/small-ct2-int8.tar.gz",
				Format:                FormatTarGz,
				StripPrefixComponents: 1,
			}},
		},
		{
			Kind: KindWhisperOnnx, Name: "whisper-base-onnx", Version: "1",
			Status: Status{Kind: StatusNotInstalled},
			Source: Source{Archive: &ArchiveSource{
				URI:                   "https://models.openflow.dev/whisper/base-onnx.zip",
				Format:                FormatZip,
				StripPrefixComponents: 0,
			}},
		},
		{
			Kind: KindParakeet, Name: "parakeet-tdt", Version: "1",
			Status: Status{Kind: StatusNotInstalled},
			Source: Source{HfRepo: &HfRepoSource{
				Repo:         "nvidia/parakeet-tdt-1.1b-onnx",
				Revision:     "main",
				IncludeGlobs: []string{"**/*.onnx", "**/*token*.txt", "**/tokens.txt"},
			}},
		},
		{
			Kind: KindVad, Name: "silero-vad", Version: "5",
			Status: Status{Kind: StatusNotInstalled},
			Source: Source{Archive: &ArchiveSource{
				URI:                   "https://models.openflow.dev/vad/silero-vad-v5.onnx",
				Format:                FormatRawFile,
				StripPrefixComponents: 0,
			}},
		},
	}
}

func knownKind(k Kind) bool {
	switch k {
	case KindWhisperOnnx, KindWhisperCt2, KindParakeet, KindVad:
		return true
	default:
		return false
	}
}
