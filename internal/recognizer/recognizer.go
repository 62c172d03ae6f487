// Package recognizer runs a speech-to-text model over a waveform and exposes
// its output as a lazy, forward-only stream of timed segments.
package recognizer

import (
	"context"
	"errors"
	"fmt"

	"subtitle-assistant/internal/domain"
	"subtitle-assistant/internal/procexec"
)

const (
	// DeviceCPU selects CPU execution.
	DeviceCPU = "cpu"
	// ComputeInt8 selects int8 quantized inference.
	ComputeInt8 = "int8"
)

var (
	// ErrRecognizerNotFound is returned when the recognizer binary cannot be located.
	ErrRecognizerNotFound = errors.New("recognizer not found")
	// ErrModelUnavailable is returned when neither a local nor a remote model can be used.
	ErrModelUnavailable = errors.New("model unavailable")
)

// ModelRef names the model to load: a local Path, or a bare Size resolved over the network.
type ModelRef struct {
	Path        string
	Size        string
	Org         string
	Device      string
	ComputeType string
}

// Identifier returns the local path when set, otherwise the size.
func (r ModelRef) Identifier() string {
	if r.Path != "" {
		return r.Path
	}
	return r.Size
}

// DefaultLanguage is forced when Options.Language is empty.
const DefaultLanguage = "zh"

// Options configures one transcription call.
type Options struct {
	// Language is a fixed language code. Empty means DefaultLanguage; detection is never used.
	Language string
}

// Stream yields segments on demand. It is not restartable.
type Stream interface {
	// Next returns the next segment, or false once the stream is exhausted or failed.
	Next() (domain.Segment, bool)
	// Err reports the failure that ended the stream, if any.
	Err() error
	// Close releases the stream, stopping the producer if it is still running.
	Close() error
}

// Model transcribes waveforms.
type Model interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (Stream, error)
}

// Loader constructs a Model from a reference.
type Loader interface {
	Load(ctx context.Context, ref ModelRef) (Model, error)
}

// ExitError reports a recognizer process that failed while producing segments.
type ExitError struct {
	Log procexec.CommandLog
	Err error
}

// Error formats the failing command and exit code.
func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %v", e.Log.Command, e.Log.ExitCode, e.Err)
}

// Unwrap exposes the process error.
func (e *ExitError) Unwrap() error {
	return e.Err
}
