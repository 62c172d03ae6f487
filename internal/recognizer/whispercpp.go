package recognizer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"subtitle-assistant/internal/procexec"
)

// DefaultWhisperCppBinary is the whisper.cpp command line tool.
const DefaultWhisperCppBinary = "whisper-cli"

// WhisperCppLoader loads ggml models run through whisper.cpp.
type WhisperCppLoader struct {
	binary   string
	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)
	readDir  func(string) ([]os.DirEntry, error)
	starter  procexec.Starter
}

// NewWhisperCppLoader builds a whisper.cpp loader.
func NewWhisperCppLoader(binary string) *WhisperCppLoader {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultWhisperCppBinary
	}
	return &WhisperCppLoader{
		binary:   binary,
		lookPath: exec.LookPath,
		stat:     os.Stat,
		readDir:  os.ReadDir,
		starter:  procexec.ExecStarter{},
	}
}

// Load resolves a ggml model file. whisper.cpp cannot fetch models itself, so a bare size is rejected.
func (l *WhisperCppLoader) Load(ctx context.Context, ref ModelRef) (Model, error) {
	bin, err := l.lookPath(l.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRecognizerNotFound, l.binary)
	}
	if strings.TrimSpace(ref.Path) == "" {
		return nil, fmt.Errorf("%w: whisper.cpp needs a local model file (size %q given)", ErrModelUnavailable, ref.Size)
	}

	modelPath, err := l.resolveModelPath(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return &whisperCppModel{
		binary:    bin,
		modelPath: modelPath,
		cpuOnly:   valueOr(ref.Device, DeviceCPU) == DeviceCPU,
		starter:   l.starter,
	}, nil
}

// resolveModelPath returns model file path from file or directory input.
func (l *WhisperCppLoader) resolveModelPath(rawPath string) (string, error) {
	modelPath := strings.TrimSpace(rawPath)
	info, err := l.stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := l.readDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}

	modelNames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			modelNames = append(modelNames, entry.Name())
		}
	}
	if len(modelNames) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}

	sort.Strings(modelNames)
	return filepath.Join(modelPath, modelNames[0]), nil
}

type whisperCppModel struct {
	binary    string
	modelPath string
	cpuOnly   bool
	starter   procexec.Starter
}

func (m *whisperCppModel) Transcribe(ctx context.Context, audioPath string, opts Options) (Stream, error) {
	args := buildWhisperArgs(m.modelPath, audioPath, opts.Language, m.cpuOnly)
	proc, err := m.starter.Start(ctx, m.binary, args...)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", m.binary, err)
	}
	return newProcessStream(proc), nil
}

// buildWhisperArgs builds whisper.cpp args; segments are printed to stdout as they decode.
func buildWhisperArgs(modelPath, audioPath, language string, cpuOnly bool) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
	}
	args = append(args, "-l", normalizeLanguage(language))
	if cpuOnly {
		args = append(args, "-ng")
	}
	return args
}
