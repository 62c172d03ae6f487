package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"subtitle-assistant/internal/domain"
	"subtitle-assistant/internal/srt"
	"subtitle-assistant/internal/transcribe"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	modelsDir  string
	ctx        *commandContext
}

// fakeExecutor delegates to execute.
type fakeExecutor struct {
	execute func(ctx context.Context, req transcribe.Request) transcribe.Outcome
}

func (f fakeExecutor) Execute(ctx context.Context, req transcribe.Request) transcribe.Outcome {
	return f.execute(ctx, req)
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.json"),
		modelsDir:  filepath.Join(base, "models"),
	}
	settings := `{"is_dark": false, "models_dir": "` + filepath.ToSlash(env.modelsDir) + `"}`
	if err := os.WriteFile(env.configPath, []byte(settings), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	env.ctx = newCommandContext()
	env.ctx.resourceDir = base
	return env
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()

	cmd := buildRootCommand(env.ctx)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("output %q does not contain %q", haystack, needle)
	}
}

func TestConfigShowAppliesDefaults(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, `"is_dark": false`)
	requireContains(t, out, `"language": "zh"`)
	requireContains(t, out, `"backend": "ctranslate2"`)
	requireContains(t, out, `"model_size": "small"`)

	out, _, err = runCLI(t, env, "config", "show", "--stored", "--format", "yaml")
	if err != nil {
		t.Fatalf("config show --stored: %v", err)
	}
	requireContains(t, out, "is_dark: false")
	if strings.Contains(out, "language") {
		t.Fatalf("stored settings should not contain defaults: %q", out)
	}

	if _, _, err := runCLI(t, env, "config", "show", "--format", "ini"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestModelResolveAndList(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "model", "resolve", "base")
	if err != nil {
		t.Fatalf("model resolve: %v", err)
	}
	if strings.TrimSpace(out) != "base" {
		t.Fatalf("resolve = %q, want base", out)
	}

	snapshot := filepath.Join(env.modelsDir, "models--Systran--faster-whisper-base", "snapshots", "abc")
	if err := os.MkdirAll(snapshot, 0o755); err != nil {
		t.Fatalf("mkdir snapshot: %v", err)
	}
	out, _, err = runCLI(t, env, "model", "resolve", "base")
	if err != nil {
		t.Fatalf("model resolve: %v", err)
	}
	if strings.TrimSpace(out) != snapshot {
		t.Fatalf("resolve = %q, want %q", out, snapshot)
	}

	out, _, err = runCLI(t, env, "model", "list")
	if err != nil {
		t.Fatalf("model list: %v", err)
	}
	requireContains(t, out, "Systran/faster-whisper-base")
	requireContains(t, out, "small *")
	requireContains(t, out, snapshot)
}

func TestModelDownloadRejectsUnknownSize(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "model", "download", "huge"); err == nil {
		t.Fatal("expected error for unknown size")
	}
}

func TestHistoryEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No jobs recorded")
}

func TestDoctorReportsMissingTools(t *testing.T) {
	env := setupCLITestEnv(t)
	settings := `{"is_dark": true, "ffmpeg_path": "` + filepath.ToSlash(filepath.Join(env.baseDir, "missing-ffmpeg")) + `"}`
	if err := os.WriteFile(env.configPath, []byte(settings), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, _, err := runCLI(t, env, "doctor")
	if err == nil {
		t.Fatal("expected doctor to fail")
	}
	requireContains(t, out, "tool_ffmpeg")
	requireContains(t, out, "FAIL")
}

func TestGenerateWritesSubtitlesAndHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	video := filepath.Join(env.baseDir, "clip.mp4")
	if err := os.WriteFile(video, []byte("video"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	outDir := filepath.Join(env.baseDir, "subs")

	var got transcribe.Request
	env.ctx.newPipeline = func(settings domain.Settings) executor {
		return fakeExecutor{execute: func(ctx context.Context, req transcribe.Request) transcribe.Outcome {
			got = req
			req.OnPhase(transcribe.PhaseExtract, transcribe.StatusExtracting)
			path := srt.OutputPath(req.SourcePath, req.OutputDir)
			if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
				return transcribe.Outcome{Kind: transcribe.OutcomeFailed, Err: err}
			}
			file, err := os.Create(path)
			if err != nil {
				return transcribe.Outcome{Kind: transcribe.OutcomeFailed, Err: err}
			}
			defer file.Close()
			writer := srt.NewWriter(file)
			for _, seg := range []domain.Segment{{Start: 0, End: 1, Text: "你好"}, {Start: 1, End: 2.5, Text: "世界"}} {
				if err := writer.WriteSegment(seg); err != nil {
					return transcribe.Outcome{Kind: transcribe.OutcomeFailed, Err: err}
				}
				req.OnSegment(writer.Count(), seg)
			}
			return transcribe.Outcome{Kind: transcribe.OutcomeDone, OutputPath: path, Segments: writer.Count()}
		}}
	}

	out, errOut, err := runCLI(t, env, "generate", video, "--out", outDir, "--language", "en-US")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got.Language != "en" || got.OutputDir != outDir {
		t.Fatalf("request = %+v", got)
	}
	requireContains(t, errOut, transcribe.StatusExtracting)
	requireContains(t, out, filepath.Join(outDir, "clip_字幕.srt"))
	requireContains(t, out, "(2 blocks)")

	out, _, err = runCLI(t, env, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "done")
	requireContains(t, out, video)
}

func TestGenerateReportsStopAndFailure(t *testing.T) {
	env := setupCLITestEnv(t)
	video := filepath.Join(env.baseDir, "clip.mp4")

	env.ctx.newPipeline = func(domain.Settings) executor {
		return fakeExecutor{execute: func(ctx context.Context, req transcribe.Request) transcribe.Outcome {
			return transcribe.Outcome{Kind: transcribe.OutcomeCancelled, Segments: 3}
		}}
	}
	out, _, err := runCLI(t, env, "generate", video)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	requireContains(t, out, "Stopped after 3 blocks")

	failure := &transcribe.PipelineError{Kind: transcribe.ErrModelLoad, Stage: transcribe.PhaseLoad, Message: "small: offline"}
	env.ctx.newPipeline = func(domain.Settings) executor {
		return fakeExecutor{execute: func(ctx context.Context, req transcribe.Request) transcribe.Outcome {
			return transcribe.Outcome{Kind: transcribe.OutcomeFailed, Err: failure}
		}}
	}
	if _, _, err := runCLI(t, env, "generate", video); !errors.Is(err, transcribe.ErrModelLoad) {
		t.Fatalf("error = %v, want ErrModelLoad", err)
	}

	out, _, err = runCLI(t, env, "history", "--limit", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "cancelled")
	requireContains(t, out, "failed")
}

func TestGenerateRejectsBadFlags(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "generate", "clip.mp4", "--backend", "vosk"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if _, _, err := runCLI(t, env, "generate", "clip.mp4", "--language", "!!"); err == nil {
		t.Fatal("expected error for invalid language")
	}
	if _, _, err := runCLI(t, env, "generate"); err == nil {
		t.Fatal("expected error without a video argument")
	}
}
