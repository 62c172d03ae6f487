package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"subtitle-assistant/internal/domain"
	"subtitle-assistant/internal/models"
)

// GetModels returns the faster-whisper catalog, marking sizes already present in the models directory.
func (a *App) GetModels() []domain.ModelOption {
	settings := a.GetSettings()
	options := models.List(settings.ModelsDir, settings.ModelOrg)
	for i := range options {
		options[i].Selected = options[i].Size == settings.ModelSize
	}
	return options
}

// DownloadModel fetches size into the models directory and makes it the configured model.
func (a *App) DownloadModel(size string) (domain.Settings, error) {
	size = strings.TrimSpace(size)
	if size == "" {
		return domain.Settings{}, fmt.Errorf("model size is required")
	}
	if !models.IsKnownSize(size) {
		return domain.Settings{}, fmt.Errorf("unknown model size: %s", size)
	}
	if a.downloader == nil {
		return domain.Settings{}, fmt.Errorf("model downloader is not configured")
	}

	settings := a.reloadSettings()
	ctx := context.Background()
	if runtimeCtx, err := a.runtimeContext(); err == nil {
		ctx = runtimeCtx
	}

	a.log().Info("downloading model", slog.String("size", size), slog.String("dir", settings.ModelsDir))
	path, err := a.downloader.Download(ctx, settings.ModelsDir, settings.ModelOrg, size)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("download model %s: %w", size, err)
	}
	a.log().Info("model ready", slog.String("path", path))

	return a.selectModelSize(size)
}

// selectModelSize persists size as the model to use and refreshes diagnostics.
func (a *App) selectModelSize(size string) (domain.Settings, error) {
	a.mu.Lock()
	a.stored.ModelSize = size
	a.stored.ModelPath = ""
	stored := a.stored
	a.mu.Unlock()

	if err := a.Store.Save(stored); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	settings := a.reloadSettings()
	a.refreshDiagnosticsFromSettings(settings)
	return settings, nil
}
