package srt

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"subtitle-assistant/internal/domain"
)

var timestampPattern = regexp.MustCompile(`^\d{2,}:\d{2}:\d{2},\d{3}$`)

// TestFormatTimeKnownValues checks zero padding and truncation.
func TestFormatTimeKnownValues(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "00:00:00,000"},
		{3725.4501, "01:02:05,450"},
		{59.9999, "00:00:59,999"},
		{60, "00:01:00,000"},
		{1.001, "00:00:01,000"},
		{0.9999999995, "00:00:00,999"},
		{59.9999999999, "00:00:59,999"},
		{86399.5, "23:59:59,500"},
		{-3, "00:00:00,000"},
	}
	for _, tc := range cases {
		if got := FormatTime(tc.in); got != tc.want {
			t.Fatalf("FormatTime(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// TestFormatTimeRoundTrip verifies ParseTime(FormatTime(t)) is t cut to milliseconds.
func TestFormatTimeRoundTrip(t *testing.T) {
	for _, sec := range []float64{0, 0.0004, 0.999, 12.3456, 599.9, 3599.999, 3725.4501, 45296.789} {
		formatted := FormatTime(sec)
		if !timestampPattern.MatchString(formatted) {
			t.Fatalf("FormatTime(%v) = %q, does not match HH:MM:SS,mmm", sec, formatted)
		}
		parsed, err := ParseTime(formatted)
		if err != nil {
			t.Fatalf("ParseTime(%q) error = %v", formatted, err)
		}
		want := math.Floor(sec*1000) / 1000
		if math.Abs(parsed-want) > 1e-9 {
			t.Fatalf("round trip of %v = %v, want %v", sec, parsed, want)
		}
		if parsed > sec+1e-9 {
			t.Fatalf("round trip of %v = %v rounded up", sec, parsed)
		}
	}
}

// TestParseTimeRejectsMalformed checks parser validation.
func TestParseTimeRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "00:00:01", "1:2", "00:61:00,000", "aa:bb:cc,ddd"} {
		if _, err := ParseTime(in); err == nil {
			t.Fatalf("ParseTime(%q) expected error", in)
		}
	}
	got, err := ParseTime("00:00:02.500")
	if err != nil {
		t.Fatalf("ParseTime with period: %v", err)
	}
	if got != 2.5 {
		t.Fatalf("ParseTime = %v, want 2.5", got)
	}
}

// TestOutputPath verifies subtitle file naming.
func TestOutputPath(t *testing.T) {
	got := OutputPath("/videos/movie.mp4", "/out")
	want := filepath.Join("/out", "movie_字幕.srt")
	if got != want {
		t.Fatalf("OutputPath = %q, want %q", got, want)
	}
	if got := OutputPath("/videos/.mkv", "/out"); got != filepath.Join("/out", "subtitle_字幕.srt") {
		t.Fatalf("OutputPath for empty stem = %q", got)
	}
}

// TestFormatBlock verifies block layout and trimming.
func TestFormatBlock(t *testing.T) {
	got := FormatBlock(3, domain.Segment{Start: 1.5, End: 2.25, Text: "  你好 世界 \n"})
	want := "3\n00:00:01,500 --> 00:00:02,250\n你好 世界\n\n"
	if got != want {
		t.Fatalf("FormatBlock = %q, want %q", got, want)
	}

	clamped := FormatBlock(1, domain.Segment{Start: 5, End: 4, Text: "x"})
	if !strings.Contains(clamped, "00:00:05,000 --> 00:00:05,000") {
		t.Fatalf("end before start should clamp, got %q", clamped)
	}
}

// TestWriterNumbersBlocksSequentially checks 1..N indices survive a parse.
func TestWriterNumbersBlocksSequentially(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	segments := []domain.Segment{
		{Start: 0, End: 1, Text: "one"},
		{Start: 1, End: 2, Text: "two"},
		{Start: 1, End: 2, Text: "two"},
		{Start: 3, End: 4.5, Text: ""},
	}
	for _, seg := range segments {
		if err := w.WriteSegment(seg); err != nil {
			t.Fatalf("WriteSegment: %v", err)
		}
	}
	if w.Count() != len(segments) {
		t.Fatalf("Count = %d, want %d", w.Count(), len(segments))
	}

	blocks, err := ReadBlocks(&buf)
	if err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if len(blocks) != len(segments) {
		t.Fatalf("blocks = %d, want %d", len(blocks), len(segments))
	}
	for i, block := range blocks {
		if block.Index != i+1 {
			t.Fatalf("block %d index = %d", i, block.Index)
		}
		if block.Text != segments[i].Text {
			t.Fatalf("block %d text = %q, want %q", i, block.Text, segments[i].Text)
		}
		if block.Start > block.End {
			t.Fatalf("block %d start %v > end %v", i, block.Start, block.End)
		}
	}
}

// failingWriter errors after n successful writes.
type failingWriter struct {
	n int
}

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.n == 0 {
		return 0, errors.New("disk full")
	}
	f.n--
	return len(p), nil
}

// TestWriterDoesNotAdvanceOnError keeps numbering gap free.
func TestWriterDoesNotAdvanceOnError(t *testing.T) {
	w := NewWriter(&failingWriter{n: 1})
	if err := w.WriteSegment(domain.Segment{Text: "a"}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := w.WriteSegment(domain.Segment{Text: "b"}); err == nil {
		t.Fatal("expected write error")
	}
	if w.Count() != 1 {
		t.Fatalf("Count = %d, want 1", w.Count())
	}
}

// TestCountBlocks reads back a written file.
func TestCountBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movie_字幕.srt")
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, text := range []string{"one", "two"} {
		if err := w.WriteSegment(domain.Segment{Start: 1, End: 2, Text: text}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	n, err := CountBlocks(path)
	if err != nil {
		t.Fatalf("CountBlocks: %v", err)
	}
	if n != 2 {
		t.Fatalf("CountBlocks = %d, want 2", n)
	}
	if _, err := CountBlocks(filepath.Join(t.TempDir(), "missing.srt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
