// Package media drives the external transcoder that turns a video's audio
// track into the mono 16 kHz waveform expected by the recognizer.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"subtitle-assistant/internal/procexec"
)

const (
	// SampleRate is the waveform rate handed to the recognizer.
	SampleRate = 16000
	// Channels is the waveform channel count handed to the recognizer.
	Channels = 1
)

// ErrToolNotFound is returned when the transcoder binary cannot be located.
var ErrToolNotFound = errors.New("ffmpeg not found")

// Extractor converts a media file to a mono 16 kHz WAV using ffmpeg.
type Extractor struct {
	ffmpegPath string
	runner     procexec.Runner
	stat       func(name string) (os.FileInfo, error)
}

// NewExtractor builds an extractor for the given ffmpeg binary.
func NewExtractor(ffmpegPath string) *Extractor {
	return NewExtractorWithRunner(ffmpegPath, procexec.ExecRunner{})
}

// NewExtractorWithRunner builds an extractor with an injected process runner.
func NewExtractorWithRunner(ffmpegPath string, runner procexec.Runner) *Extractor {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Extractor{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		stat:       os.Stat,
	}
}

// Binary returns the configured ffmpeg path.
func (e *Extractor) Binary() string {
	return e.ffmpegPath
}

// Extract writes the waveform for inputPath to outPath and waits for ffmpeg to exit.
func (e *Extractor) Extract(ctx context.Context, inputPath, outPath string) (procexec.CommandLog, error) {
	args := BuildArgs(inputPath, outPath)
	log, err := e.runner.Run(ctx, e.ffmpegPath, args...)
	log.Command = e.ffmpegPath
	log.Args = args
	if err != nil {
		if procexec.IsNotFound(err) {
			return log, fmt.Errorf("%w: %s", ErrToolNotFound, e.ffmpegPath)
		}
		return log, fmt.Errorf("ffmpeg exited with code %d: %w", log.ExitCode, err)
	}

	if _, err := e.stat(outPath); err != nil {
		return log, fmt.Errorf("ffmpeg completed but waveform is missing: %w", err)
	}
	return log, nil
}

// BuildArgs returns ffmpeg arguments: overwrite, input, 16 kHz, mono, output.
func BuildArgs(inputPath, outPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-ar", fmt.Sprint(SampleRate),
		"-ac", fmt.Sprint(Channels),
		outPath,
	}
}
