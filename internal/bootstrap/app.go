package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/windows"

	"subtitle-assistant/internal/config"
	"subtitle-assistant/internal/diagnostics"
	"subtitle-assistant/internal/domain"
	"subtitle-assistant/internal/history"
	"subtitle-assistant/internal/jobs"
	"subtitle-assistant/internal/logging"
	"subtitle-assistant/internal/models"
	"subtitle-assistant/internal/procexec"
	"subtitle-assistant/internal/srt"
	"subtitle-assistant/internal/transcribe"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// Status texts owned by the shell rather than the pipeline.
const (
	StatusWaiting     = "Waiting for a video..."
	StatusReady       = "Ready"
	StatusUnsupported = "Error: unsupported file format"
)

// ErrNoVideoSelected is returned when generation starts before a video is chosen.
var ErrNoVideoSelected = errors.New("no video selected")

// ErrUnsupportedFormat is returned for files without a supported video extension.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// videoExtensions lists the containers accepted by drop and SelectVideo.
var videoExtensions = []string{".mp4", ".mkv", ".mov", ".avi", ".flv"}

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Video",
		Pattern:     "*.mp4;*.mkv;*.mov;*.avi;*.flv",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App wires configuration, jobs, pipeline, history and UI runtime callbacks.
type App struct {
	Store       config.Store
	Jobs        *jobs.Manager
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	history     historyStore
	downloader  modelDownloader
	installer   *installer
	newPipeline func(domain.Settings) pipelineExecutor
	logger      *slog.Logger
	resourceDir string

	mu          sync.Mutex
	stored      domain.Settings
	settings    domain.Settings
	selection   domain.Selection
	activeJobID string
	cancel      context.CancelFunc
	events      *jobs.EventBus
	runtimeCtx  context.Context
}

// pipelineExecutor isolates the subtitle pipeline behind an interface.
type pipelineExecutor interface {
	Execute(ctx context.Context, req transcribe.Request) transcribe.Outcome
}

// historyStore records finished jobs.
type historyStore interface {
	Record(ctx context.Context, entry domain.HistoryEntry) error
	Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
	Close() error
}

// modelDownloader fetches model snapshots into the models directory.
type modelDownloader interface {
	Download(ctx context.Context, root, org, size string) (string, error)
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
// Unreadable settings and an unavailable history database are logged, not fatal.
func NewWithAssets(assets fs.FS) (*App, error) {
	logger, _, err := logging.New(logging.Options{Level: os.Getenv("SUBTITLE_ASSISTANT_LOG_LEVEL")})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	resourceDir := config.ResourceDir()
	store := config.NewFileStore(config.DefaultPath())
	stored, err := config.LoadOrDefault(store)
	if err != nil {
		logger.Warn("settings unreadable, using defaults", slog.String("path", store.Path()), slog.Any("error", err))
	}
	settings := config.Normalize(stored, resourceDir)

	var historyDB historyStore
	db, err := history.Open(context.Background(), filepath.Join(filepath.Dir(store.Path()), history.FileName))
	if err != nil {
		logger.Warn("job history disabled", slog.Any("error", err))
	} else {
		historyDB = db
	}

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)

	return &App{
		Store:       store,
		Jobs:        jobs.NewManager(),
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		history:     historyDB,
		downloader:  models.NewHub(),
		newPipeline: defaultPipeline,
		logger:      logger,
		resourceDir: resourceDir,
		stored:      stored,
		settings:    settings,
		selection:   domain.Selection{StatusText: StatusWaiting},
		events:      jobs.NewEventBus(1000),
	}, nil
}

func defaultPipeline(settings domain.Settings) pipelineExecutor {
	return transcribe.NewPipeline(settings)
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	theme := windows.Light
	if a.GetSettings().IsDark {
		theme = windows.Dark
	}

	return wails.Run(&options.App{
		Title:         "Subtitle Assistant",
		Width:         420,
		Height:        350,
		DisableResize: true,
		Frameless:     true,
		AssetServer:   assetOptions,
		DragAndDrop: &options.DragAndDrop{
			EnableFileDrop:     true,
			DisableWebViewDrop: true,
		},
		Windows: &windows.Options{
			Theme: theme,
		},
		OnStartup:  a.Startup,
		OnShutdown: a.Shutdown,
		Bind:       []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events and registers file drop.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.mu.Unlock()

	wailsruntime.OnFileDrop(ctx, func(_, _ int, paths []string) {
		a.HandleFileDrop(paths)
	})
}

// Shutdown requests a stop of any running job and releases the history database.
func (a *App) Shutdown(context.Context) {
	a.mu.Lock()
	cancel := a.cancel
	a.runtimeCtx = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log().Warn("close history", slog.Any("error", err))
		}
	}
}

// GetSettings returns the effective settings.
func (a *App) GetSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// ToggleTheme flips the dark theme flag and persists it. Save errors are
// logged and otherwise ignored.
func (a *App) ToggleTheme() domain.Settings {
	a.mu.Lock()
	a.stored.IsDark = !a.stored.IsDark
	a.settings.IsDark = a.stored.IsDark
	stored := a.stored
	settings := a.settings
	ctx := a.runtimeCtx
	a.mu.Unlock()

	if err := a.Store.Save(stored); err != nil {
		a.log().Warn("save settings", slog.Any("error", err))
	}
	if ctx != nil {
		if settings.IsDark {
			wailsruntime.WindowSetDarkTheme(ctx)
		} else {
			wailsruntime.WindowSetLightTheme(ctx)
		}
		wailsruntime.EventsEmit(ctx, "theme:changed", settings.IsDark)
	}
	return settings
}

// GetSelection returns the chosen video, output directory and idle status text.
func (a *App) GetSelection() domain.Selection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selection
}

// PickVideo opens a native file dialog. Cancelling the dialog keeps the current selection.
func (a *App) PickVideo() (domain.Selection, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return domain.Selection{}, err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select video",
		Filters: videoDialogFilter,
	})
	if err != nil {
		return domain.Selection{}, err
	}
	if strings.TrimSpace(path) == "" {
		return a.GetSelection(), nil
	}
	return a.SelectVideo(path)
}

// SelectVideo validates path and makes it the current video. The output
// directory resets to the video's directory.
func (a *App) SelectVideo(path string) (domain.Selection, error) {
	path = strings.TrimSpace(path)
	if !isSupportedVideo(path) {
		a.setSelectionStatus(StatusUnsupported)
		return a.GetSelection(), fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		a.setSelectionStatus("Error: cannot open " + filepath.Base(path))
		return a.GetSelection(), fmt.Errorf("select video: cannot access %s", path)
	}

	a.mu.Lock()
	a.selection = domain.Selection{
		VideoPath:  path,
		OutputDir:  filepath.Dir(path),
		StatusText: StatusReady,
	}
	selection := a.selection
	a.mu.Unlock()

	a.emitSelection(selection)
	return selection, nil
}

// HandleFileDrop selects the first dropped path.
func (a *App) HandleFileDrop(paths []string) {
	if len(paths) == 0 {
		return
	}
	if _, err := a.SelectVideo(paths[0]); err != nil {
		a.log().Info("dropped file rejected", slog.String("path", paths[0]), slog.Any("error", err))
	}
}

// PickOutputDirectory opens a native directory picker for subtitle output.
// Cancelling the dialog keeps the current directory.
func (a *App) PickOutputDirectory() (domain.Selection, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return domain.Selection{}, err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return domain.Selection{}, err
	}
	return a.SetOutputDirectory(path), nil
}

// SetOutputDirectory changes where the next job writes; empty keeps the current value.
func (a *App) SetOutputDirectory(path string) domain.Selection {
	path = strings.TrimSpace(path)
	a.mu.Lock()
	if path != "" {
		a.selection.OutputDir = path
	}
	selection := a.selection
	a.mu.Unlock()

	a.emitSelection(selection)
	return selection
}

// OpenOutputFolder opens the given path (or the selected output dir) in the file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.GetSelection().OutputDir
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() domain.DiagnosticReport {
	a.reloadSettings()
	return a.refreshDiagnosticsFromSettings(a.GetSettings())
}

// StartGeneration creates a job for the selected video and runs it asynchronously.
func (a *App) StartGeneration() (domain.Job, error) {
	selection := a.GetSelection()
	if selection.VideoPath == "" {
		return domain.Job{}, ErrNoVideoSelected
	}

	settings := a.reloadSettings()
	outputDir := selection.OutputDir
	if outputDir == "" {
		outputDir = filepath.Dir(selection.VideoPath)
	}
	jobID := uuid.NewString()
	job := domain.Job{
		ID:         jobID,
		SourcePath: selection.VideoPath,
		OutputDir:  outputDir,
		OutputPath: srt.OutputPath(selection.VideoPath, outputDir),
	}
	if err := a.Jobs.Start(job); err != nil {
		return domain.Job{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.activeJobID = jobID
	a.cancel = cancel
	a.mu.Unlock()

	a.publishStatus(jobID, domain.JobStatusExtracting, transcribe.StatusExtracting)
	a.log().Info("job started",
		slog.String("job_id", jobID),
		slog.String("source", job.SourcePath),
		slog.String("backend", settings.Backend),
	)

	go a.runGeneration(ctx, a.Jobs.Current(), settings)
	return a.Jobs.Current(), nil
}

// StopGeneration asks the running job to stop at its next checkpoint.
func (a *App) StopGeneration() error {
	a.mu.Lock()
	cancel := a.cancel
	activeJobID := a.activeJobID
	a.mu.Unlock()

	if cancel == nil {
		return jobs.ErrNoRunningJob
	}

	if err := a.Jobs.Cancel(); err != nil {
		return err
	}
	cancel()

	a.publishStatus(activeJobID, domain.JobStatusStopping, transcribe.StatusStopping)
	a.log().Info("stop requested", slog.String("job_id", activeJobID))
	return nil
}

// ToggleGeneration starts a job when idle and requests a stop otherwise.
// A second toggle while stopping is ignored.
func (a *App) ToggleGeneration() (domain.Job, error) {
	if !a.Jobs.IsRunning() {
		return a.StartGeneration()
	}
	if err := a.StopGeneration(); err != nil && !errors.Is(err, jobs.ErrNoRunningJob) {
		return a.Jobs.Current(), err
	}
	return a.Jobs.Current(), nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// RecentJobs returns up to limit finished jobs, newest first.
func (a *App) RecentJobs(limit int) ([]domain.HistoryEntry, error) {
	if a.history == nil {
		return []domain.HistoryEntry{}, nil
	}
	return a.history.Recent(context.Background(), limit)
}

// runGeneration executes the pipeline and maps its outcome to job events.
func (a *App) runGeneration(ctx context.Context, job domain.Job, settings domain.Settings) {
	defer a.clearActiveJob(job.ID)
	logger := logging.WithJob(a.log(), job.ID)
	startedAt := time.Now().UTC()

	req := transcribe.RequestFromSettings(settings, job.SourcePath, job.OutputDir)
	req.OnPhase = func(phase transcribe.Phase, status string) {
		if ctx.Err() != nil {
			return
		}
		jobStatus := mapPhaseToStatus(phase)
		if err := a.Jobs.Transition(jobStatus); err != nil {
			logger.Warn("job transition rejected", slog.Any("error", err))
			return
		}
		if a.Jobs.Current().Status != jobStatus {
			return
		}
		logger.Info("phase", slog.String("phase", string(phase)))
		a.publishStatus(job.ID, jobStatus, status)
	}
	req.OnLog = func(log procexec.CommandLog) {
		logger.Debug("command finished", slog.String("command", log.String()), slog.Int("exit_code", log.ExitCode))
		a.publishEvent(commandLogEvent(job.ID, "Command completed", log))
	}
	req.OnSegment = func(written int, seg domain.Segment) {
		a.Jobs.SetProgress("", written)
		a.publishEvent(jobs.Event{
			JobID:    job.ID,
			Type:     jobs.EventTypeProgress,
			Message:  seg.Text,
			Segments: written,
		})
	}

	outcome := a.newPipeline(settings).Execute(ctx, req)
	a.Jobs.SetProgress(outcome.OutputPath, outcome.Segments)

	entry := domain.HistoryEntry{
		JobID:      job.ID,
		SourcePath: job.SourcePath,
		OutputPath: outcome.OutputPath,
		Segments:   outcome.Segments,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}

	switch outcome.Kind {
	case transcribe.OutcomeDone:
		entry.Status = domain.JobStatusDone
		_ = a.Jobs.Transition(domain.JobStatusDone)
		a.publishStatus(job.ID, domain.JobStatusDone, outcome.StatusText())
		a.publishEvent(jobs.Event{
			JobID:      job.ID,
			Type:       jobs.EventTypeResult,
			Status:     domain.JobStatusDone,
			Message:    "Subtitles written",
			OutputPath: outcome.OutputPath,
			Segments:   outcome.Segments,
		})
		logger.Info("job done", slog.String("output", outcome.OutputPath), slog.Int("segments", outcome.Segments))
	case transcribe.OutcomeCancelled:
		entry.Status = domain.JobStatusCancelled
		_ = a.Jobs.Transition(domain.JobStatusCancelled)
		a.publishStatus(job.ID, domain.JobStatusCancelled, outcome.StatusText())
		logger.Info("job stopped", slog.Int("segments", outcome.Segments))
	default:
		entry.Status = domain.JobStatusFailed
		entry.Error = outcome.Err.Error()
		_ = a.Jobs.Transition(domain.JobStatusFailed)
		a.publishStatus(job.ID, domain.JobStatusFailed, outcome.StatusText())
		a.publishEvent(jobs.Event{
			JobID:   job.ID,
			Type:    jobs.EventTypeError,
			Status:  domain.JobStatusFailed,
			Message: outcome.Err.Error(),
		})

		var pipelineErr *transcribe.PipelineError
		if errors.As(outcome.Err, &pipelineErr) && pipelineErr.CommandLog.Command != "" {
			a.publishEvent(commandLogEvent(job.ID, "Failed command", pipelineErr.CommandLog))
		}
		logger.Error("job failed", slog.Any("error", outcome.Err))
	}

	if a.history != nil {
		if err := a.history.Record(context.Background(), entry); err != nil {
			logger.Warn("record history", slog.Any("error", err))
		}
	}
}

// publishStatus records the status line on the job and emits a status event.
func (a *App) publishStatus(jobID string, status domain.JobStatus, text string) {
	a.Jobs.SetStatusText(text)
	a.publishEvent(jobs.Event{
		JobID:      jobID,
		Type:       jobs.EventTypeStatus,
		Status:     status,
		StatusText: text,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", published)
	}
}

func (a *App) setSelectionStatus(text string) {
	a.mu.Lock()
	a.selection.StatusText = text
	selection := a.selection
	a.mu.Unlock()
	a.emitSelection(selection)
}

func (a *App) emitSelection(selection domain.Selection) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "selection:changed", selection)
	}
}

// clearActiveJob clears cancellation handles for completed job IDs.
func (a *App) clearActiveJob(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeJobID == jobID {
		if a.cancel != nil {
			a.cancel()
		}
		a.activeJobID = ""
		a.cancel = nil
	}
}

// reloadSettings re-reads the settings file so edits made while the app runs take effect.
func (a *App) reloadSettings() domain.Settings {
	if a.Store == nil {
		return a.GetSettings()
	}
	stored, err := config.LoadOrDefault(a.Store)
	if err != nil {
		a.log().Warn("settings unreadable, using defaults", slog.Any("error", err))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.stored = stored
	a.settings = config.Normalize(stored, a.resourceDir)
	return a.settings
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	if a.checker == nil {
		return a.GetDiagnostics()
	}
	report := a.checker.Run(settings)
	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()
	return report
}

func (a *App) log() *slog.Logger {
	if a.logger == nil {
		return logging.NewNop()
	}
	return a.logger
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// mapPhaseToStatus maps pipeline phases to job statuses.
func mapPhaseToStatus(phase transcribe.Phase) domain.JobStatus {
	switch phase {
	case transcribe.PhaseExtract:
		return domain.JobStatusExtracting
	case transcribe.PhaseLoad:
		return domain.JobStatusLoading
	case transcribe.PhaseRecognize:
		return domain.JobStatusRecognizing
	default:
		return domain.JobStatusWriting
	}
}

func commandLogEvent(jobID, message string, log procexec.CommandLog) jobs.Event {
	return jobs.Event{
		JobID:    jobID,
		Type:     jobs.EventTypeLog,
		Message:  message,
		Command:  log.Command,
		Args:     log.Args,
		ExitCode: log.ExitCode,
		Stdout:   log.Stdout,
		Stderr:   log.Stderr,
	}
}

// isSupportedVideo checks the extension case-insensitively.
func isSupportedVideo(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range videoExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

func currentGOOS() string {
	return goruntime.GOOS
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
