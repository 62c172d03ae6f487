package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"subtitle-assistant/internal/domain"
	"subtitle-assistant/internal/models"
	"subtitle-assistant/internal/recognizer"
)

// Checker validates external tools, the model and the output location.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	readDir    func(string) ([]os.DirEntry, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	resolve    func(root, org, size string) string
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		readDir:    os.ReadDir,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		resolve:    models.Resolve,
	}
}

// Run executes all checks against normalized settings and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	recognizerBinary := settings.RecognizerPath
	if strings.TrimSpace(recognizerBinary) == "" {
		recognizerBinary = recognizer.DefaultCTranslate2Binary
		if settings.Backend == domain.BackendWhisperCpp {
			recognizerBinary = recognizer.DefaultWhisperCppBinary
		}
	}

	modelItem := c.checkModel(settings)
	if settings.Backend == domain.BackendWhisperCpp {
		modelItem = c.checkGGMLModel(settings.ModelPath)
	}

	items := []domain.DiagnosticItem{
		c.checkTool("ffmpeg", settings.FFmpegPath, "Install ffmpeg or place it under ffmpeg/ next to the application."),
		c.checkTool("recognizer", recognizerBinary, "Install the speech recognizer or set recognizer_path in config.json."),
		modelItem,
		c.checkOutputDir(settings.OutputDir),
	}

	report := domain.DiagnosticReport{GeneratedAt: time.Now().UTC(), Items: items}
	for _, item := range items {
		report.HasFailures = report.HasFailures || item.Status == domain.DiagnosticStatusFail
	}
	return report
}

// checkTool verifies an executable is reachable as configured or on PATH.
func (c *Checker) checkTool(id, binary, hint string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "tool_" + id, Name: filepath.Base(binary)}
	if strings.TrimSpace(binary) == "" {
		return failed(item, "Tool path is empty.", hint)
	}
	path, err := c.lookPath(binary)
	if err != nil {
		return failed(item, fmt.Sprintf("Tool not found: %s", binary), hint)
	}
	return passed(item, fmt.Sprintf("Found at %s", path))
}

// checkModel reports whether a faster-whisper model is available locally.
// Falling back to a hub download is a warning, not a failure.
func (c *Checker) checkModel(settings domain.Settings) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "model", Name: "Model"}

	if path := strings.TrimSpace(settings.ModelPath); path != "" {
		if info, err := c.stat(filepath.Join(path, "model.bin")); err != nil || info.IsDir() {
			return failed(item,
				fmt.Sprintf("No model.bin in configured model directory: %s", path),
				"Point model_path at a faster-whisper snapshot directory or clear it to use the models folder.")
		}
		return passed(item, fmt.Sprintf("Configured model: %s", path))
	}

	id := c.resolve(settings.ModelsDir, settings.ModelOrg, settings.ModelSize)
	if models.IsLocalPath(id) {
		return passed(item, fmt.Sprintf("Local model: %s", id))
	}
	item.Status = domain.DiagnosticStatusWarn
	item.Message = fmt.Sprintf("No local snapshot for %q; it will be fetched from the network on first use.", id)
	item.Hint = fmt.Sprintf("Download %s into %s to work offline.", models.RepoForSize(settings.ModelOrg, id).ID(), settings.ModelsDir)
	return item
}

// checkGGMLModel validates a whisper.cpp model file, or a directory holding a .bin or .gguf file.
func (c *Checker) checkGGMLModel(modelPath string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "model", Name: "Model"}
	const downloadHint = "Download a whisper.cpp ggml model and set model_path to it."

	if strings.TrimSpace(modelPath) == "" {
		return failed(item, "Model path is empty.", "whisper.cpp needs model_path set to a ggml model file or a directory containing one.")
	}

	info, err := c.stat(modelPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return failed(item, fmt.Sprintf("Model path does not exist: %s", modelPath), downloadHint)
	case err != nil:
		return failed(item, fmt.Sprintf("Cannot access model path: %s", modelPath), downloadHint)
	case !info.IsDir():
		return passed(item, fmt.Sprintf("Model file found: %s", modelPath))
	}

	entries, err := c.readDir(modelPath)
	if err != nil {
		return failed(item, fmt.Sprintf("Cannot read model directory: %s", modelPath), "Check permissions for the model directory.")
	}
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !entry.IsDir() && (ext == ".bin" || ext == ".gguf") {
			return passed(item, fmt.Sprintf("Model directory is valid: %s", modelPath))
		}
	}
	return failed(item,
		fmt.Sprintf("No model files found in directory: %s", modelPath),
		"Place a .bin or .gguf model file in this directory or point to a model file directly.")
}

// checkOutputDir validates output directory existence and write access.
// An empty directory means subtitles go next to each video.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "output_dir", Name: "Output directory"}

	if strings.TrimSpace(outputDir) == "" {
		return passed(item, "Subtitles are written next to each video.")
	}
	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		return failed(item, fmt.Sprintf("Cannot create output directory: %s", outputDir), "Choose a writable location or adjust filesystem permissions.")
	}

	probe, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		return failed(item, fmt.Sprintf("Output directory is not writable: %s", outputDir), "Choose a writable directory for subtitle files.")
	}
	name := probe.Name()
	_ = probe.Close()
	_ = c.remove(name)

	return passed(item, fmt.Sprintf("Writable directory: %s", outputDir))
}

func passed(item domain.DiagnosticItem, message string) domain.DiagnosticItem {
	item.Status = domain.DiagnosticStatusPass
	item.Message = message
	return item
}

func failed(item domain.DiagnosticItem, message, hint string) domain.DiagnosticItem {
	item.Status = domain.DiagnosticStatusFail
	item.Message = message
	item.Hint = hint
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	readDir func(string) ([]os.DirEntry, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	resolve func(root, org, size string) string,
) *Checker {
	if resolve == nil {
		resolve = models.Resolve
	}
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		readDir:    readDir,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		resolve:    resolve,
	}
}
