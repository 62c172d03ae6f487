package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"subtitle-assistant/internal/config"
	"subtitle-assistant/internal/domain"
	"subtitle-assistant/internal/history"
	"subtitle-assistant/internal/logging"
	"subtitle-assistant/internal/transcribe"
)

// executor runs one subtitle job.
type executor interface {
	Execute(ctx context.Context, req transcribe.Request) transcribe.Outcome
}

type commandContext struct {
	configFlag string
	logLevel   string
	logFormat  string

	resourceDir string
	newPipeline func(domain.Settings) executor

	store    *config.FileStore
	stored   domain.Settings
	settings domain.Settings
	logger   *slog.Logger
	closeLog func() error
}

func newCommandContext() *commandContext {
	return &commandContext{
		resourceDir: config.ResourceDir(),
		newPipeline: func(settings domain.Settings) executor {
			return transcribe.NewPipeline(settings)
		},
	}
}

// prepare builds the logger and loads settings. A malformed settings file is
// reported and replaced by defaults.
func (c *commandContext) prepare(stderr io.Writer) error {
	logger, closeLog, err := logging.New(logging.Options{
		Level:  c.logLevel,
		Format: c.logFormat,
		Output: stderr,
	})
	if err != nil {
		return err
	}
	c.logger = logger
	c.closeLog = closeLog

	path := strings.TrimSpace(c.configFlag)
	if path == "" {
		path = config.DefaultPath()
	}
	c.store = config.NewFileStore(path)
	stored, err := config.LoadOrDefault(c.store)
	if err != nil {
		logger.Warn("settings unreadable, using defaults", slog.String("path", path), slog.Any("error", err))
	}
	c.stored = stored
	c.settings = config.Normalize(stored, c.resourceDir)
	logger.Debug("settings loaded", slog.String("path", path), slog.String("backend", c.settings.Backend))
	return nil
}

func (c *commandContext) close() error {
	if c.closeLog == nil {
		return nil
	}
	err := c.closeLog()
	c.closeLog = nil
	return err
}

// saveStored persists stored settings and refreshes the effective copy.
func (c *commandContext) saveStored(stored domain.Settings) error {
	if c.store == nil {
		return errors.New("settings are not loaded")
	}
	if err := c.store.Save(stored); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	c.stored = stored
	c.settings = config.Normalize(stored, c.resourceDir)
	return nil
}

// openHistory opens the job database beside the settings file.
func (c *commandContext) openHistory(ctx context.Context) (*history.Store, error) {
	if c.store == nil {
		return nil, errors.New("settings are not loaded")
	}
	return history.Open(ctx, filepath.Join(filepath.Dir(c.store.Path()), history.FileName))
}

func (c *commandContext) log() *slog.Logger {
	if c.logger == nil {
		return logging.NewNop()
	}
	return c.logger
}
