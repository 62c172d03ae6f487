package models

import (
	"strings"

	"subtitle-assistant/internal/domain"
)

const (
	// DefaultOrg is the publisher of the converted faster-whisper models.
	DefaultOrg = "Systran"
	// DefaultSize is the model used when settings do not name one.
	DefaultSize = "small"
)

var standardFiles = []string{"config.json", "model.bin", "tokenizer.json", "vocabulary.txt"}

var largeV3Files = []string{"config.json", "model.bin", "preprocessor_config.json", "tokenizer.json", "vocabulary.json"}

type catalogEntry struct {
	option domain.ModelOption
	files  []string
}

var catalog = []catalogEntry{
	{
		option: domain.ModelOption{Size: "tiny", SizeLabel: "~75 MB", Description: "Fastest, lowest accuracy."},
		files:  standardFiles,
	},
	{
		option: domain.ModelOption{Size: "base", SizeLabel: "~145 MB", Description: "Fast with acceptable accuracy."},
		files:  standardFiles,
	},
	{
		option: domain.ModelOption{Size: "small", SizeLabel: "~484 MB", Description: "Default. Good balance on CPU with int8."},
		files:  standardFiles,
	},
	{
		option: domain.ModelOption{Size: "medium", SizeLabel: "~1.5 GB", Description: "Higher accuracy, slower on CPU."},
		files:  standardFiles,
	},
	{
		option: domain.ModelOption{Size: "large-v2", SizeLabel: "~3.1 GB", Description: "Very high accuracy."},
		files:  standardFiles,
	},
	{
		option: domain.ModelOption{Size: "large-v3", SizeLabel: "~3.1 GB", Description: "Latest large model."},
		files:  largeV3Files,
	},
}

// Repo identifies a model repository on the hub.
type Repo struct {
	Org  string
	Name string
}

// RepoForSize returns the faster-whisper repository for a model size.
func RepoForSize(org, size string) Repo {
	if strings.TrimSpace(org) == "" {
		org = DefaultOrg
	}
	return Repo{Org: org, Name: "faster-whisper-" + strings.TrimSpace(size)}
}

// ID returns "<org>/<name>".
func (r Repo) ID() string {
	return r.Org + "/" + r.Name
}

// CacheDirName returns the cache directory name "models--<org>--<name>".
func (r Repo) CacheDirName() string {
	return "models--" + r.Org + "--" + r.Name
}

// IsKnownSize reports whether size is in the built-in catalog.
func IsKnownSize(size string) bool {
	_, ok := lookup(size)
	return ok
}

func lookup(size string) (catalogEntry, bool) {
	size = strings.TrimSpace(size)
	for _, entry := range catalog {
		if entry.option.Size == size {
			return entry, true
		}
	}
	return catalogEntry{}, false
}

// List returns the catalog, marking sizes that already have a local snapshot under root.
func List(root, org string) []domain.ModelOption {
	out := make([]domain.ModelOption, 0, len(catalog))
	for _, entry := range catalog {
		option := entry.option
		repo := RepoForSize(org, option.Size)
		option.Repo = repo.ID()
		if path, ok := FindSnapshot(root, repo); ok {
			option.Downloaded = true
			option.LocalPath = path
		}
		out = append(out, option)
	}
	return out
}
