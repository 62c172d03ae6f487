package recognizer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"subtitle-assistant/internal/domain"
	"subtitle-assistant/internal/models"
	"subtitle-assistant/internal/procexec"
)

// fakeProcess replays stdout and reports a configured exit.
type fakeProcess struct {
	stdout  io.Reader
	waitErr error
	killed  bool
	waited  int
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdout }

func (p *fakeProcess) Wait() (procexec.CommandLog, error) {
	p.waited++
	code := 0
	if p.waitErr != nil {
		code = 2
	}
	return procexec.CommandLog{Command: "recognizer", ExitCode: code}, p.waitErr
}

func (p *fakeProcess) Kill() error {
	p.killed = true
	return nil
}

// fakeStarter hands out a prepared process and records arguments.
type fakeStarter struct {
	proc *fakeProcess
	name string
	args []string
}

func (s *fakeStarter) Start(ctx context.Context, name string, args ...string) (procexec.Process, error) {
	s.name = name
	s.args = append([]string(nil), args...)
	return s.proc, nil
}

// TestParseSegmentLine covers both recognizer output layouts.
func TestParseSegmentLine(t *testing.T) {
	cases := []struct {
		line string
		want domain.Segment
		ok   bool
	}{
		{"[00:01.000 --> 00:03.500] 你好", domain.Segment{Start: 1, End: 3.5, Text: "你好"}, true},
		{"[01:02:05.450 --> 01:02:07.000]   hello world  ", domain.Segment{Start: 3725.45, End: 3727, Text: "hello world"}, true},
		{"[00:00:00,000 --> 00:00:01,250]", domain.Segment{Start: 0, End: 1.25, Text: ""}, true},
		{"Detected language: zh", domain.Segment{}, false},
		{"whisper_init_from_file: loading model", domain.Segment{}, false},
		{"[aa:bb --> cc:dd] nope", domain.Segment{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseSegmentLine(tc.line)
		if ok != tc.ok {
			t.Fatalf("ParseSegmentLine(%q) ok = %v, want %v", tc.line, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if got.Text != tc.want.Text || !near(got.Start, tc.want.Start) || !near(got.End, tc.want.End) {
			t.Fatalf("ParseSegmentLine(%q) = %+v, want %+v", tc.line, got, tc.want)
		}
	}
}

// TestParseSegmentLineNormalizesText composes decomposed characters.
func TestParseSegmentLineNormalizesText(t *testing.T) {
	got, ok := ParseSegmentLine("[00:00.000 --> 00:01.000] Cafe\u0301")
	if !ok {
		t.Fatal("expected segment")
	}
	if got.Text != "Caf\u00e9" {
		t.Fatalf("text = %q, want NFC form", got.Text)
	}
}

// TestProcessStreamYieldsLazily reads segments and skips noise lines.
func TestProcessStreamYieldsLazily(t *testing.T) {
	proc := &fakeProcess{stdout: strings.NewReader(strings.Join([]string{
		"Detecting language...",
		"[00:00.000 --> 00:01.000] one",
		"[00:01.000 --> 00:02.000] two",
		"",
	}, "\n"))}
	stream := newProcessStream(proc)

	var texts []string
	for {
		seg, ok := stream.Next()
		if !ok {
			break
		}
		texts = append(texts, seg.Text)
	}
	if strings.Join(texts, ",") != "one,two" {
		t.Fatalf("texts = %v", texts)
	}
	if stream.Err() != nil {
		t.Fatalf("Err() = %v", stream.Err())
	}
	if proc.waited != 1 {
		t.Fatalf("waited = %d, want 1", proc.waited)
	}
	if _, ok := stream.Next(); ok {
		t.Fatal("exhausted stream should stay exhausted")
	}
	if err := stream.Close(); err != nil || proc.killed {
		t.Fatalf("close after exhaustion: err=%v killed=%v", err, proc.killed)
	}
}

// TestProcessStreamReportsExitFailure wraps non-zero exits in ExitError.
func TestProcessStreamReportsExitFailure(t *testing.T) {
	proc := &fakeProcess{
		stdout:  strings.NewReader("[00:00.000 --> 00:01.000] partial\n"),
		waitErr: errors.New("exit status 2"),
	}
	stream := newProcessStream(proc)
	if _, ok := stream.Next(); !ok {
		t.Fatal("expected first segment")
	}
	if _, ok := stream.Next(); ok {
		t.Fatal("expected end of stream")
	}

	var exitErr *ExitError
	if !errors.As(stream.Err(), &exitErr) {
		t.Fatalf("Err() = %v, want *ExitError", stream.Err())
	}
	if exitErr.Log.ExitCode != 2 {
		t.Fatalf("exit code = %d, want 2", exitErr.Log.ExitCode)
	}
}

// TestProcessStreamCloseKillsRunningProcess stops the producer early.
func TestProcessStreamCloseKillsRunningProcess(t *testing.T) {
	proc := &fakeProcess{stdout: strings.NewReader("[00:00.000 --> 00:01.000] a\n[00:01.000 --> 00:02.000] b\n")}
	stream := newProcessStream(proc)
	if _, ok := stream.Next(); !ok {
		t.Fatal("expected segment")
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !proc.killed || proc.waited != 1 {
		t.Fatalf("killed=%v waited=%d", proc.killed, proc.waited)
	}
	if _, ok := stream.Next(); ok {
		t.Fatal("closed stream should yield nothing")
	}
	if stream.Err() != nil {
		t.Fatalf("kill should not surface as error: %v", stream.Err())
	}
}

// TestCTranslate2LoadLocalSnapshot uses --model_directory for local snapshots.
func TestCTranslate2LoadLocalSnapshot(t *testing.T) {
	snap := t.TempDir()
	if err := os.WriteFile(filepath.Join(snap, "model.bin"), []byte("m"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	starter := &fakeStarter{proc: &fakeProcess{stdout: strings.NewReader("")}}
	loader := &CTranslate2Loader{
		binary:   "whisper-ctranslate2",
		lookPath: func(name string) (string, error) { return "/usr/bin/" + name, nil },
		stat:     os.Stat,
		probe: func(context.Context, models.Repo) error {
			t.Fatal("probe should not run for local snapshots")
			return nil
		},
		starter: starter,
	}

	model, err := loader.Load(context.Background(), ModelRef{Path: snap})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	stream, err := model.Transcribe(context.Background(), "/tmp/job/audio.wav", Options{Language: "zh"})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	defer stream.Close()

	if starter.name != "/usr/bin/whisper-ctranslate2" {
		t.Fatalf("binary = %q", starter.name)
	}
	for key, want := range map[string]string{
		"--model_directory": snap,
		"--device":          "cpu",
		"--compute_type":    "int8",
		"--language":        "zh",
		"--output_dir":      filepath.Dir("/tmp/job/audio.wav"),
	} {
		if got := argValue(starter.args, key); got != want {
			t.Fatalf("%s = %q, want %q (args=%v)", key, got, want, starter.args)
		}
	}
}

// TestCTranslate2LoadFailures covers missing binary, bad paths and unreachable hub.
func TestCTranslate2LoadFailures(t *testing.T) {
	found := func(name string) (string, error) { return name, nil }
	reachable := func(context.Context, models.Repo) error { return nil }
	unreachable := func(context.Context, models.Repo) error { return errors.New("dial tcp: no route") }

	cases := []struct {
		name   string
		loader *CTranslate2Loader
		ref    ModelRef
		want   error
	}{
		{
			name:   "binary missing",
			loader: &CTranslate2Loader{binary: "x", lookPath: func(string) (string, error) { return "", errors.New("nope") }, stat: os.Stat, probe: reachable},
			ref:    ModelRef{Size: "small"},
			want:   ErrRecognizerNotFound,
		},
		{
			name:   "path missing",
			loader: &CTranslate2Loader{binary: "x", lookPath: found, stat: os.Stat, probe: reachable},
			ref:    ModelRef{Path: filepath.Join(t.TempDir(), "gone")},
			want:   ErrModelUnavailable,
		},
		{
			name:   "snapshot without model.bin",
			loader: &CTranslate2Loader{binary: "x", lookPath: found, stat: os.Stat, probe: reachable},
			ref:    ModelRef{Path: t.TempDir()},
			want:   ErrModelUnavailable,
		},
		{
			name:   "unknown size",
			loader: &CTranslate2Loader{binary: "x", lookPath: found, stat: os.Stat, probe: reachable},
			ref:    ModelRef{Size: "enormous"},
			want:   ErrModelUnavailable,
		},
		{
			name:   "hub unreachable",
			loader: &CTranslate2Loader{binary: "x", lookPath: found, stat: os.Stat, probe: unreachable},
			ref:    ModelRef{Size: "small"},
			want:   ErrModelUnavailable,
		},
	}
	for _, tc := range cases {
		if _, err := tc.loader.Load(context.Background(), tc.ref); !errors.Is(err, tc.want) {
			t.Fatalf("%s: error = %v, want %v", tc.name, err, tc.want)
		}
	}

	loader := &CTranslate2Loader{binary: "x", lookPath: found, stat: os.Stat, probe: reachable, starter: &fakeStarter{proc: &fakeProcess{stdout: strings.NewReader("")}}}
	if _, err := loader.Load(context.Background(), ModelRef{Size: "small"}); err != nil {
		t.Fatalf("reachable size: %v", err)
	}
}

// TestWhisperCppResolvesModelDirectory picks the lexically first model file.
func TestWhisperCppResolvesModelDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"z-large.bin", "a-small.gguf", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("m"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	starter := &fakeStarter{proc: &fakeProcess{stdout: strings.NewReader("")}}
	loader := &WhisperCppLoader{
		binary:   "whisper-cli",
		lookPath: func(name string) (string, error) { return name, nil },
		stat:     os.Stat,
		readDir:  os.ReadDir,
		starter:  starter,
	}

	model, err := loader.Load(context.Background(), ModelRef{Path: dir, Device: DeviceCPU})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := model.Transcribe(context.Background(), "/tmp/a.wav", Options{Language: "zh"}); err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got := argValue(starter.args, "-m"); got != filepath.Join(dir, "a-small.gguf") {
		t.Fatalf("model = %q", got)
	}
	if got := argValue(starter.args, "-l"); got != "zh" {
		t.Fatalf("language = %q, want zh", got)
	}
	if !hasArg(starter.args, "-ng") {
		t.Fatalf("expected -ng for cpu device: %v", starter.args)
	}

	if _, err := loader.Load(context.Background(), ModelRef{Size: "small"}); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("bare size error = %v, want ErrModelUnavailable", err)
	}
	empty := t.TempDir()
	if _, err := loader.Load(context.Background(), ModelRef{Path: empty}); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("empty dir error = %v, want ErrModelUnavailable", err)
	}
}

// TestBuildArgsAlwaysForceLanguage never leaves the language to detection.
func TestBuildArgsAlwaysForceLanguage(t *testing.T) {
	for _, lang := range []string{"", "auto", " AUTO "} {
		args := buildWhisperArgs("/m.bin", "/audio.wav", lang, false)
		if got := argValue(args, "-l"); got != DefaultLanguage {
			t.Fatalf("whisper-cli language for %q = %q, want %s", lang, got, DefaultLanguage)
		}
		if hasArg(args, "-ng") {
			t.Fatalf("unexpected -ng in args: %v", args)
		}
		args = buildCTranslate2Args("/a.wav", []string{"--model", "small"}, DeviceCPU, ComputeInt8, lang)
		if got := argValue(args, "--language"); got != DefaultLanguage {
			t.Fatalf("ctranslate2 language for %q = %q, want %s", lang, got, DefaultLanguage)
		}
	}
	if got := argValue(buildWhisperArgs("/m.bin", "/audio.wav", "en", false), "-l"); got != "en" {
		t.Fatalf("language = %q, want en", got)
	}
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

// argValue returns value for key-style CLI args.
func argValue(args []string, key string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == key {
			return args[i+1]
		}
	}
	return ""
}

// hasArg reports whether args include the target flag.
func hasArg(args []string, key string) bool {
	for _, arg := range args {
		if arg == key {
			return true
		}
	}
	return false
}
