package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"subtitle-assistant/internal/config"
	"subtitle-assistant/internal/domain"
	"subtitle-assistant/internal/logging"
	"subtitle-assistant/internal/procexec"
	"subtitle-assistant/internal/srt"
	"subtitle-assistant/internal/transcribe"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var languageFlag string
	var backendFlag string
	var modelSize string
	var modelPath string

	cmd := &cobra.Command{
		Use:   "generate <video>",
		Short: "Transcribe a video into <name>_字幕.srt",
		Long: "Extracts the audio track with ffmpeg, runs speech recognition and writes one SRT block per segment.\n" +
			"Press Ctrl-C to stop; blocks already written are kept.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stored := ctx.stored
			if languageFlag != "" {
				lang, err := config.CanonicalLanguage(languageFlag)
				if err != nil {
					return err
				}
				stored.Language = lang
			}
			if backendFlag != "" {
				switch backendFlag {
				case domain.BackendCTranslate2, domain.BackendWhisperCpp:
					stored.Backend = backendFlag
				default:
					return fmt.Errorf("unknown backend %q (want %s or %s)", backendFlag, domain.BackendCTranslate2, domain.BackendWhisperCpp)
				}
			}
			if modelSize != "" {
				stored.ModelSize = modelSize
				stored.ModelPath = ""
			}
			if modelPath != "" {
				stored.ModelPath = modelPath
			}
			settings := config.Normalize(stored, ctx.resourceDir)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGenerate(runCtx, ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), settings, args[0], outputDir)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "out", "o", "", "Output directory (default: settings output_dir, then the video's directory)")
	cmd.Flags().StringVarP(&languageFlag, "language", "l", "", "Recognition language code, e.g. zh or en")
	cmd.Flags().StringVar(&backendFlag, "backend", "", "Recognizer backend: ctranslate2 or whispercpp")
	cmd.Flags().StringVar(&modelSize, "model", "", "Model size, e.g. small")
	cmd.Flags().StringVar(&modelPath, "model-path", "", "Explicit model directory or ggml file")
	return cmd
}

// runGenerate executes one job and records it in history. A stopped job
// returns context.Canceled after printing its summary.
func runGenerate(
	ctx context.Context,
	cmdCtx *commandContext,
	out io.Writer,
	errOut io.Writer,
	settings domain.Settings,
	video string,
	outputDir string,
) error {
	jobID := uuid.NewString()
	logger := logging.WithJob(cmdCtx.log(), jobID)
	progress := newProgressPrinter(errOut)
	startedAt := time.Now().UTC()

	req := transcribe.RequestFromSettings(settings, video, outputDir)
	req.OnPhase = func(phase transcribe.Phase, status string) {
		logger.Info("phase", slog.String("phase", string(phase)))
		progress.status(status)
	}
	req.OnLog = func(log procexec.CommandLog) {
		logger.Debug("command finished", slog.String("command", log.String()), slog.Int("exit_code", log.ExitCode))
	}
	req.OnSegment = func(written int, seg domain.Segment) {
		progress.segment(written, seg)
	}

	outcome := cmdCtx.newPipeline(settings).Execute(ctx, req)
	progress.finish()

	entry := domain.HistoryEntry{
		JobID:      jobID,
		SourcePath: video,
		OutputPath: outcome.OutputPath,
		Segments:   outcome.Segments,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}

	var result error
	switch outcome.Kind {
	case transcribe.OutcomeDone:
		entry.Status = domain.JobStatusDone
		blocks, err := srt.CountBlocks(outcome.OutputPath)
		if err != nil {
			logger.Warn("count subtitle blocks", slog.Any("error", err))
			blocks = outcome.Segments
		}
		fmt.Fprintf(out, "%s (%d blocks)\n", outcome.StatusText(), blocks)
	case transcribe.OutcomeCancelled:
		entry.Status = domain.JobStatusCancelled
		fmt.Fprintf(out, "%s after %d blocks\n", outcome.StatusText(), outcome.Segments)
		result = context.Canceled
	default:
		result = outcome.Err
		if result == nil {
			result = errors.New(outcome.StatusText())
		}
		entry.Status = domain.JobStatusFailed
		entry.Error = result.Error()
		logger.Error("job failed", slog.Any("error", result))
	}

	recordHistory(cmdCtx, logger, entry)
	return result
}

func recordHistory(cmdCtx *commandContext, logger *slog.Logger, entry domain.HistoryEntry) {
	store, err := cmdCtx.openHistory(context.Background())
	if err != nil {
		logger.Warn("job history disabled", slog.Any("error", err))
		return
	}
	defer store.Close()
	if err := store.Record(context.Background(), entry); err != nil {
		logger.Warn("record history", slog.Any("error", err))
	}
}

// progressPrinter rewrites one status line on terminals and prints phase
// changes line by line otherwise.
type progressPrinter struct {
	w        io.Writer
	terminal bool
	dirty    bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, terminal: isTerminal(w)}
}

func (p *progressPrinter) status(text string) {
	p.clear()
	fmt.Fprintln(p.w, text)
}

func (p *progressPrinter) segment(written int, seg domain.Segment) {
	if !p.terminal {
		return
	}
	line := fmt.Sprintf("[%d] %s --> %s %s", written, srt.FormatTime(seg.Start), srt.FormatTime(seg.End), seg.Text)
	fmt.Fprintf(p.w, "\r\033[K%s", truncate(line, 100))
	p.dirty = true
}

func (p *progressPrinter) finish() {
	p.clear()
}

func (p *progressPrinter) clear() {
	if p.dirty {
		fmt.Fprint(p.w, "\r\033[K")
		p.dirty = false
	}
}

func truncate(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
