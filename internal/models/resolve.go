package models

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Resolve returns the path of a local snapshot for size, or size itself when
// none exists under root. It never fails.
func Resolve(root, org, size string) string {
	if strings.TrimSpace(size) == "" {
		size = DefaultSize
	}
	if path, ok := FindSnapshot(root, RepoForSize(org, size)); ok {
		return path
	}
	return size
}

// FindSnapshot looks for <root>/models--<org>--<name>/snapshots/* directories.
// The cache directory name is matched case-insensitively. With several
// snapshots the most recently modified wins; equal times fall back to the
// lexicographically greatest name.
func FindSnapshot(root string, repo Repo) (string, bool) {
	if strings.TrimSpace(root) == "" {
		return "", false
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", false
	}

	var (
		best     string
		bestName string
		bestTime time.Time
	)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.EqualFold(entry.Name(), repo.CacheDirName()) {
			continue
		}
		snapshotsDir := filepath.Join(root, entry.Name(), "snapshots")
		snapshots, err := os.ReadDir(snapshotsDir)
		if err != nil {
			continue
		}
		for _, snap := range snapshots {
			name := snap.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			path := filepath.Join(snapshotsDir, name)
			info, err := os.Stat(path)
			if err != nil || !info.IsDir() {
				continue
			}
			mod := info.ModTime()
			if best == "" || mod.After(bestTime) || (mod.Equal(bestTime) && name > bestName) {
				best, bestName, bestTime = path, name, mod
			}
		}
	}
	return best, best != ""
}

// IsLocalPath reports whether a resolved identifier points at the filesystem
// rather than being a bare size.
func IsLocalPath(identifier string) bool {
	return filepath.IsAbs(identifier) || strings.ContainsRune(identifier, filepath.Separator) || strings.ContainsRune(identifier, '/')
}
