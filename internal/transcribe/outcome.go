package transcribe

import (
	"context"
	"fmt"

	"subtitle-assistant/internal/procexec"
)

// OutcomeKind tags how a job ended.
type OutcomeKind string

const (
	OutcomeDone      OutcomeKind = "done"
	OutcomeCancelled OutcomeKind = "cancelled"
	OutcomeFailed    OutcomeKind = "failed"
)

// Status texts shown while a job runs and when it ends.
const (
	StatusExtracting    = "Extracting audio..."
	StatusLoadingLocal  = "Loading model (local)..."
	StatusLoadingRemote = "Loading model (network)..."
	StatusRecognizing   = "Recognizing speech..."
	StatusWriting       = "Writing subtitles..."
	StatusDone          = "Subtitles generated"
	StatusStopping      = "Stopping..."
	StatusStopped       = "Stopped"
)

// Outcome is the tagged result of one job: done, cancelled, or failed with Err.
type Outcome struct {
	Kind       OutcomeKind
	OutputPath string
	Segments   int
	Logs       []procexec.CommandLog
	Err        error
}

// StatusText maps the outcome to the message shown to the user.
func (o Outcome) StatusText() string {
	switch o.Kind {
	case OutcomeDone:
		return StatusDone + ": " + o.OutputPath
	case OutcomeCancelled:
		return StatusStopped
	default:
		if o.Err == nil {
			return "Error: unknown failure"
		}
		return "Error: " + o.Err.Error()
	}
}

// Execute runs the pipeline and converts every result, error, or panic into an Outcome.
func (p *Pipeline) Execute(ctx context.Context, req Request) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{
				Kind: OutcomeFailed,
				Err:  &PipelineError{Message: fmt.Sprintf("internal error: %v", r)},
			}
		}
	}()

	result, err := p.Run(ctx, req)
	out = Outcome{
		OutputPath: result.OutputPath,
		Segments:   result.Segments,
		Logs:       result.Logs,
	}
	switch {
	case err != nil:
		out.Kind = OutcomeFailed
		out.Err = err
	case result.Cancelled:
		out.Kind = OutcomeCancelled
	default:
		out.Kind = OutcomeDone
	}
	return out
}
