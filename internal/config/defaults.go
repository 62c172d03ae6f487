package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/text/language"

	"subtitle-assistant/internal/domain"
	"subtitle-assistant/internal/models"
)

// FileName is the settings file kept beside the executable.
const FileName = "config.json"

// DefaultLanguage is the recognition language used when none is configured.
const DefaultLanguage = "zh"

// ResourceDir returns the directory holding the executable and bundled tools.
// When only the working directory has models/ or ffmpeg/ (go run, wails dev)
// the working directory is used instead.
func ResourceDir() string {
	exeDir := "."
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		exeDir = filepath.Dir(exe)
	}
	if hasResources(exeDir) {
		return exeDir
	}
	if wd, err := os.Getwd(); err == nil && hasResources(wd) {
		return wd
	}
	return exeDir
}

func hasResources(dir string) bool {
	for _, name := range []string{"models", "ffmpeg"} {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

// DefaultPath returns the settings file location beside the executable.
func DefaultPath() string {
	return filepath.Join(ResourceDir(), FileName)
}

// DefaultSettings returns the effective configuration for first launch.
func DefaultSettings() domain.Settings {
	return Normalize(Stored(), ResourceDir())
}

// BundledFFmpeg returns the ffmpeg path shipped under resourceDir.
func BundledFFmpeg(resourceDir string) string {
	name := "ffmpeg"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(resourceDir, "ffmpeg", name)
}

// Normalize trims stored values and fills every empty field with its default.
// An unparseable language falls back to DefaultLanguage.
func Normalize(cfg domain.Settings, resourceDir string) domain.Settings {
	cfg.OutputDir = strings.TrimSpace(cfg.OutputDir)
	cfg.ModelPath = strings.TrimSpace(cfg.ModelPath)
	cfg.RecognizerPath = strings.TrimSpace(cfg.RecognizerPath)

	if lang, err := CanonicalLanguage(cfg.Language); err == nil {
		cfg.Language = lang
	} else {
		cfg.Language = DefaultLanguage
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case domain.BackendWhisperCpp:
		cfg.Backend = domain.BackendWhisperCpp
	default:
		cfg.Backend = domain.BackendCTranslate2
	}

	cfg.ModelSize = strings.TrimSpace(cfg.ModelSize)
	if cfg.ModelSize == "" {
		cfg.ModelSize = models.DefaultSize
	}
	cfg.ModelOrg = strings.TrimSpace(cfg.ModelOrg)
	if cfg.ModelOrg == "" {
		cfg.ModelOrg = models.DefaultOrg
	}
	cfg.ModelsDir = strings.TrimSpace(cfg.ModelsDir)
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = filepath.Join(resourceDir, "models")
	}

	cfg.FFmpegPath = strings.TrimSpace(cfg.FFmpegPath)
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
		bundled := BundledFFmpeg(resourceDir)
		if info, err := os.Stat(bundled); err == nil && !info.IsDir() {
			cfg.FFmpegPath = bundled
		}
	}
	return cfg
}

// CanonicalLanguage validates a recognition language. Empty means
// DefaultLanguage; "auto" is rejected because the language is always forced.
func CanonicalLanguage(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultLanguage, nil
	}
	if strings.EqualFold(raw, "auto") {
		return "", fmt.Errorf("invalid language %q: a fixed language code is required", raw)
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", raw, err)
	}
	base, _ := tag.Base()
	return base.String(), nil
}
