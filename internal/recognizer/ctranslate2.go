package recognizer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"subtitle-assistant/internal/models"
	"subtitle-assistant/internal/procexec"
)

// DefaultCTranslate2Binary is the faster-whisper command line front end.
const DefaultCTranslate2Binary = "whisper-ctranslate2"

// CTranslate2Loader loads faster-whisper models run through whisper-ctranslate2.
type CTranslate2Loader struct {
	binary   string
	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)
	probe    func(ctx context.Context, repo models.Repo) error
	starter  procexec.Starter
}

// NewCTranslate2Loader builds a loader; hub is used to confirm a bare size is reachable.
func NewCTranslate2Loader(binary string, hub *models.Hub) *CTranslate2Loader {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultCTranslate2Binary
	}
	if hub == nil {
		hub = models.NewHub()
	}
	return &CTranslate2Loader{
		binary:   binary,
		lookPath: exec.LookPath,
		stat:     os.Stat,
		probe:    hub.Probe,
		starter:  procexec.ExecStarter{},
	}
}

// Load validates a local snapshot, or confirms the hub can serve a bare size.
func (l *CTranslate2Loader) Load(ctx context.Context, ref ModelRef) (Model, error) {
	bin, err := l.lookPath(l.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRecognizerNotFound, l.binary)
	}

	model := &ct2Model{
		binary:      bin,
		device:      valueOr(ref.Device, DeviceCPU),
		computeType: valueOr(ref.ComputeType, ComputeInt8),
		starter:     l.starter,
	}

	if ref.Path != "" {
		info, err := l.stat(ref.Path)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: invalid model directory %s", ErrModelUnavailable, ref.Path)
		}
		if _, err := l.stat(filepath.Join(ref.Path, "model.bin")); err != nil {
			return nil, fmt.Errorf("%w: model.bin missing in %s", ErrModelUnavailable, ref.Path)
		}
		model.modelArgs = []string{"--model_directory", ref.Path}
		return model, nil
	}

	size := strings.TrimSpace(ref.Size)
	if !models.IsKnownSize(size) {
		return nil, fmt.Errorf("%w: unknown model size %q", ErrModelUnavailable, size)
	}
	if err := l.probe(ctx, models.RepoForSize(ref.Org, size)); err != nil {
		return nil, fmt.Errorf("%w: no local model and remote lookup failed: %v", ErrModelUnavailable, err)
	}
	model.modelArgs = []string{"--model", size}
	return model, nil
}

type ct2Model struct {
	binary      string
	modelArgs   []string
	device      string
	computeType string
	starter     procexec.Starter
}

// Transcribe starts the recognizer and streams its segments. Side files are
// written next to the waveform so they share its temporary directory.
func (m *ct2Model) Transcribe(ctx context.Context, audioPath string, opts Options) (Stream, error) {
	args := buildCTranslate2Args(audioPath, m.modelArgs, m.device, m.computeType, opts.Language)
	proc, err := m.starter.Start(ctx, m.binary, args...)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", m.binary, err)
	}
	return newProcessStream(proc), nil
}

// buildCTranslate2Args builds whisper-ctranslate2 arguments with verbose segment output.
func buildCTranslate2Args(audioPath string, modelArgs []string, device, computeType, language string) []string {
	args := []string{audioPath}
	args = append(args, modelArgs...)
	args = append(args,
		"--device", device,
		"--compute_type", computeType,
		"--output_dir", filepath.Dir(audioPath),
		"--output_format", "srt",
		"--verbose", "True",
	)
	args = append(args, "--language", normalizeLanguage(language))
	return args
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// normalizeLanguage maps empty and "auto" to DefaultLanguage so a language is always forced.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return DefaultLanguage
	}
	return lang
}
