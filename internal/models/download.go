package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultHubURL = "https://huggingface.co"
	probeTimeout  = 10 * time.Second

	// DownloadTimeout bounds one full snapshot download.
	DownloadTimeout = 45 * time.Minute
)

// Hub downloads snapshots and probes reachability of the model hub.
type Hub struct {
	BaseURL   string
	Client    *http.Client
	UserAgent string
}

// NewHub returns a hub client honouring HF_ENDPOINT when set.
func NewHub() *Hub {
	base := strings.TrimSpace(os.Getenv("HF_ENDPOINT"))
	if base == "" {
		base = defaultHubURL
	}
	return &Hub{
		BaseURL:   strings.TrimRight(base, "/"),
		Client:    http.DefaultClient,
		UserAgent: "subtitle-assistant",
	}
}

// fileURL returns the resolve URL of one repository file on the main revision.
func (h *Hub) fileURL(repo Repo, file string) string {
	return fmt.Sprintf("%s/%s/resolve/main/%s", h.BaseURL, repo.ID(), file)
}

// Probe checks that the repository is reachable so a bare size can be resolved remotely.
func (h *Hub) Probe(ctx context.Context, repo Repo) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.fileURL(repo, "config.json"), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", h.UserAgent)

	resp, err := h.Client.Do(req)
	if err != nil {
		return fmt.Errorf("reach model hub: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("model %s unavailable: %s", repo.ID(), resp.Status)
	}
	return nil
}

// Download fetches every file of size into <root>/models--<org>--<name>/snapshots/main.
// Files land in a hidden staging directory first so Resolve never sees a partial snapshot.
func (h *Hub) Download(ctx context.Context, root, org, size string) (string, error) {
	entry, ok := lookup(size)
	if !ok {
		return "", fmt.Errorf("unknown model size: %s", size)
	}
	if strings.TrimSpace(root) == "" {
		return "", fmt.Errorf("models directory is required")
	}

	repo := RepoForSize(org, entry.option.Size)
	snapshotsDir := filepath.Join(root, repo.CacheDirName(), "snapshots")
	staging := filepath.Join(snapshotsDir, ".main.partial")
	target := filepath.Join(snapshotsDir, "main")

	ctx, cancel := context.WithTimeout(ctx, DownloadTimeout)
	defer cancel()

	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", fmt.Errorf("prepare staging directory: %w", err)
	}
	for _, file := range entry.files {
		if err := h.downloadFile(ctx, filepath.Join(staging, file), h.fileURL(repo, file)); err != nil {
			return "", fmt.Errorf("download %s: %w", file, err)
		}
	}

	if err := os.RemoveAll(target); err != nil {
		return "", fmt.Errorf("remove previous snapshot: %w", err)
	}
	if err := os.Rename(staging, target); err != nil {
		return "", fmt.Errorf("move snapshot into place: %w", err)
	}
	return target, nil
}

// downloadFile streams sourceURL into destinationPath via a temporary file.
func (h *Hub) downloadFile(ctx context.Context, destinationPath, sourceURL string) error {
	tmpPath := destinationPath + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", h.UserAgent)

	resp, err := h.Client.Do(req)
	if err != nil {
		return fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write destination file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close destination file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destinationPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move downloaded file into place: %w", err)
	}
	return nil
}
