package transcribe

import (
	"errors"
	"fmt"

	"subtitle-assistant/internal/procexec"
)

// Error kinds. A *PipelineError matches its kind with errors.Is.
var (
	ErrExtraction  = errors.New("audio extraction failed")
	ErrModelLoad   = errors.New("model load failed")
	ErrRecognition = errors.New("speech recognition failed")
	ErrIO          = errors.New("subtitle output failed")
)

// PipelineError is a phase-aware error with optional command context.
type PipelineError struct {
	Kind       error               `json:"-"`
	Stage      Phase               `json:"stage"`
	Message    string              `json:"message"`
	CommandLog procexec.CommandLog `json:"commandLog"`
	Err        error               `json:"-"`
}

// Error formats pipeline failures for logs and UI.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Kind != nil {
		msg = e.Kind.Error() + ": " + e.Message
	}
	if e.CommandLog.Command == "" {
		return msg
	}
	return fmt.Sprintf("%s (cmd=%s exit=%d)", msg, e.CommandLog.Command, e.CommandLog.ExitCode)
}

// Is matches the error kind sentinel.
func (e *PipelineError) Is(target error) bool {
	return e != nil && e.Kind != nil && target == e.Kind
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind error, stage Phase, err error, format string, args ...any) *PipelineError {
	return &PipelineError{
		Kind:    kind,
		Stage:   stage,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}
