package transcribe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"subtitle-assistant/internal/domain"
	"subtitle-assistant/internal/media"
	"subtitle-assistant/internal/models"
	"subtitle-assistant/internal/procexec"
	"subtitle-assistant/internal/recognizer"
	"subtitle-assistant/internal/srt"
)

// Phase names one pipeline step. Phases run in declaration order.
type Phase string

const (
	PhaseExtract   Phase = "extracting"
	PhaseLoad      Phase = "loading"
	PhaseRecognize Phase = "recognizing"
	PhaseWrite     Phase = "writing"
)

// ModelSpec selects the model for one run.
type ModelSpec struct {
	// Path overrides snapshot lookup when set.
	Path      string
	ModelsDir string
	Org       string
	Size      string
}

// Request contains the source video, output location and progress callbacks for one run.
type Request struct {
	SourcePath string
	OutputDir  string
	Language   string
	Model      ModelSpec
	OnPhase    func(phase Phase, status string)
	OnLog      func(log procexec.CommandLog)
	OnSegment  func(written int, seg domain.Segment)
}

// Result describes what a run produced. Segments counts blocks on disk.
type Result struct {
	OutputPath string
	Segments   int
	Cancelled  bool
	Logs       []procexec.CommandLog
}

// Extractor produces the recognizer waveform from a media file.
type Extractor interface {
	Extract(ctx context.Context, inputPath, outPath string) (procexec.CommandLog, error)
}

// commandLogger is implemented by streams backed by an external process.
type commandLogger interface {
	CommandLog() procexec.CommandLog
}

// Pipeline orchestrates extraction, model loading, recognition and subtitle writing.
type Pipeline struct {
	extractor  Extractor
	loader     recognizer.Loader
	resolve    func(root, org, size string) string
	mkdirTemp  func(dir, pattern string) (string, error)
	removeAll  func(path string) error
	stat       func(name string) (os.FileInfo, error)
	mkdirAll   func(path string, perm os.FileMode) error
	create     func(name string) (io.WriteCloser, error)
	lockOutput func(path string) (func(), error)
}

// NewPipeline constructs the production pipeline for the configured backend.
func NewPipeline(settings domain.Settings) *Pipeline {
	p := &Pipeline{
		extractor:  media.NewExtractor(settings.FFmpegPath),
		resolve:    models.Resolve,
		mkdirTemp:  os.MkdirTemp,
		removeAll:  os.RemoveAll,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		create:     createFile,
		lockOutput: lockOutputFile,
	}

	switch settings.Backend {
	case domain.BackendWhisperCpp:
		p.loader = recognizer.NewWhisperCppLoader(settings.RecognizerPath)
		// ggml models are never laid out as hub snapshots.
		p.resolve = func(_, _, size string) string { return size }
	default:
		p.loader = recognizer.NewCTranslate2Loader(settings.RecognizerPath, models.NewHub())
	}
	return p
}

// NewPipelineForTests constructs a pipeline with injectable collaborators.
func NewPipelineForTests(
	extractor Extractor,
	loader recognizer.Loader,
	resolve func(root, org, size string) string,
) *Pipeline {
	if resolve == nil {
		resolve = models.Resolve
	}
	return &Pipeline{
		extractor:  extractor,
		loader:     loader,
		resolve:    resolve,
		mkdirTemp:  os.MkdirTemp,
		removeAll:  os.RemoveAll,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		create:     createFile,
		lockOutput: lockOutputFile,
	}
}

// RequestFromSettings builds a request for source using persisted settings.
// An empty outputDir falls back to settings, then to the video's directory.
func RequestFromSettings(settings domain.Settings, sourcePath, outputDir string) Request {
	if strings.TrimSpace(outputDir) == "" {
		outputDir = settings.OutputDir
	}
	return Request{
		SourcePath: sourcePath,
		OutputDir:  outputDir,
		Language:   settings.Language,
		Model: ModelSpec{
			Path:      settings.ModelPath,
			ModelsDir: settings.ModelsDir,
			Org:       settings.ModelOrg,
			Size:      settings.ModelSize,
		},
	}
}

// Run executes Extract, Load, Recognize and Write in order. Cancellation of
// ctx is observed between phases and before each subtitle block; extraction
// and model loading are never interrupted once started. The temporary
// waveform is removed on every exit path.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	source := strings.TrimSpace(req.SourcePath)
	if source == "" {
		return Result{}, newError(ErrExtraction, PhaseExtract, nil, "source video path is required")
	}
	if _, err := p.stat(source); err != nil {
		return Result{}, newError(ErrExtraction, PhaseExtract, err, "cannot access source video: %s", source)
	}

	outputDir := strings.TrimSpace(req.OutputDir)
	if outputDir == "" {
		outputDir = filepath.Dir(source)
	}
	result := Result{OutputPath: srt.OutputPath(source, outputDir)}
	if ctx.Err() != nil {
		result.Cancelled = true
		return result, nil
	}

	tempDir, err := p.mkdirTemp("", "subtitle-assistant-*")
	if err != nil {
		return result, newError(ErrExtraction, PhaseExtract, err, "failed to create temporary workspace")
	}
	defer func() { _ = p.removeAll(tempDir) }()

	audioPath := filepath.Join(tempDir, "audio.wav")
	emitPhase(req.OnPhase, PhaseExtract, StatusExtracting)
	extractLog, err := p.extractor.Extract(context.WithoutCancel(ctx), source, audioPath)
	result.Logs = append(result.Logs, extractLog)
	emitLog(req.OnLog, extractLog)
	if err != nil {
		pErr := newError(ErrExtraction, PhaseExtract, err, "%v", err)
		pErr.CommandLog = extractLog
		return result, pErr
	}

	if ctx.Err() != nil {
		result.Cancelled = true
		return result, nil
	}

	ref := p.modelRef(req.Model)
	loadStatus := StatusLoadingRemote
	if ref.Path != "" {
		loadStatus = StatusLoadingLocal
	}
	emitPhase(req.OnPhase, PhaseLoad, loadStatus)
	model, err := p.loader.Load(context.WithoutCancel(ctx), ref)
	if err != nil {
		return result, newError(ErrModelLoad, PhaseLoad, err, "%s: %v", ref.Identifier(), err)
	}

	if ctx.Err() != nil {
		result.Cancelled = true
		return result, nil
	}

	emitPhase(req.OnPhase, PhaseRecognize, StatusRecognizing)
	stream, err := model.Transcribe(context.WithoutCancel(ctx), audioPath, recognizer.Options{Language: req.Language})
	if err != nil {
		return result, newError(ErrRecognition, PhaseRecognize, err, "%v", err)
	}
	defer func() {
		_ = stream.Close()
		if logged, ok := stream.(commandLogger); ok {
			if log := logged.CommandLog(); log.Command != "" {
				emitLog(req.OnLog, log)
			}
		}
	}()

	emitPhase(req.OnPhase, PhaseWrite, StatusWriting)
	written, cancelled, err := p.writeSubtitles(ctx, stream, outputDir, result.OutputPath, req.OnSegment)
	result.Segments = written
	result.Cancelled = cancelled
	return result, err
}

// writeSubtitles pulls segments one at a time and appends a block for each.
// Stopping leaves the blocks already written in place.
func (p *Pipeline) writeSubtitles(
	ctx context.Context,
	stream recognizer.Stream,
	outputDir string,
	outPath string,
	onSegment func(int, domain.Segment),
) (int, bool, error) {
	if err := p.mkdirAll(outputDir, 0o755); err != nil {
		return 0, false, newError(ErrIO, PhaseWrite, err, "cannot create output directory: %s", outputDir)
	}
	unlock, err := p.lockOutput(outPath)
	if err != nil {
		return 0, false, newError(ErrIO, PhaseWrite, err, "cannot lock output file: %v", err)
	}
	defer unlock()

	file, err := p.create(outPath)
	if err != nil {
		return 0, false, newError(ErrIO, PhaseWrite, err, "cannot create subtitle file: %s", outPath)
	}

	writer := srt.NewWriter(file)
	cancelled := false
	for {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		seg, ok := stream.Next()
		if !ok {
			break
		}
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if err := writer.WriteSegment(seg); err != nil {
			_ = file.Close()
			return writer.Count(), false, newError(ErrIO, PhaseWrite, err, "cannot write subtitle file: %s", outPath)
		}
		if onSegment != nil {
			onSegment(writer.Count(), seg)
		}
	}

	if err := file.Close(); err != nil {
		return writer.Count(), cancelled, newError(ErrIO, PhaseWrite, err, "cannot close subtitle file: %s", outPath)
	}
	if cancelled {
		return writer.Count(), true, nil
	}
	if err := stream.Err(); err != nil {
		pErr := newError(ErrRecognition, PhaseRecognize, err, "%v", err)
		var exitErr *recognizer.ExitError
		if errors.As(err, &exitErr) {
			pErr.CommandLog = exitErr.Log
		}
		return writer.Count(), false, pErr
	}
	return writer.Count(), false, nil
}

// modelRef resolves the model location: an explicit path, a local snapshot, or a bare size.
func (p *Pipeline) modelRef(m ModelSpec) recognizer.ModelRef {
	size := strings.TrimSpace(m.Size)
	if size == "" {
		size = models.DefaultSize
	}
	ref := recognizer.ModelRef{
		Size:        size,
		Org:         m.Org,
		Device:      recognizer.DeviceCPU,
		ComputeType: recognizer.ComputeInt8,
	}
	if path := strings.TrimSpace(m.Path); path != "" {
		ref.Path = path
		return ref
	}
	if id := p.resolve(m.ModelsDir, m.Org, size); models.IsLocalPath(id) {
		ref.Path = id
	}
	return ref
}

// emitPhase forwards phase updates when callback is configured.
func emitPhase(cb func(Phase, string), phase Phase, status string) {
	if cb != nil {
		cb(phase, status)
	}
}

// emitLog forwards command logs when callback is configured.
func emitLog(cb func(log procexec.CommandLog), log procexec.CommandLog) {
	if cb != nil {
		cb(log)
	}
}

func createFile(name string) (io.WriteCloser, error) {
	return os.Create(name)
}

// lockOutputFile takes an exclusive lock for path so two jobs never write the same file.
// The lock file is never unlinked so every writer locks the same inode.
func lockOutputFile(path string) (func(), error) {
	lockPath := outputLockPath(path)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, err
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, fmt.Errorf("%s is being written by another job", path)
	}
	return func() { _ = lock.Unlock() }, nil
}

// outputLockPath maps an output file to a lock file in the per-user cache.
func outputLockPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	root, err := os.UserCacheDir()
	if err != nil {
		root = os.TempDir()
	}
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return filepath.Join(root, "subtitle-assistant", "locks", hex.EncodeToString(sum[:16])+".lock")
}
