package jobs

import (
	"errors"
	"testing"

	"subtitle-assistant/internal/domain"
)

// TestManagerLifecycle verifies normal progression to done state.
func TestManagerLifecycle(t *testing.T) {
	m := NewManager()
	if m.IsRunning() {
		t.Fatal("new manager should be idle")
	}

	if err := m.Start(domain.Job{ID: "job-1", SourcePath: "/v/movie.mp4"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !m.IsRunning() {
		t.Fatal("expected running after start")
	}
	if m.Current().Status != domain.JobStatusExtracting {
		t.Fatalf("status = %s, want extracting", m.Current().Status)
	}

	for _, status := range []domain.JobStatus{
		domain.JobStatusLoading,
		domain.JobStatusRecognizing,
		domain.JobStatusWriting,
		domain.JobStatusDone,
	} {
		if err := m.Transition(status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	current := m.Current()
	if current.Status != domain.JobStatusDone {
		t.Fatalf("current status = %s, want done", current.Status)
	}
	if current.SourcePath != "/v/movie.mp4" {
		t.Fatalf("source path = %q", current.SourcePath)
	}
	if m.IsRunning() {
		t.Fatal("done job should not be running")
	}
}

// TestManagerRejectsSecondStart keeps a single job in flight.
func TestManagerRejectsSecondStart(t *testing.T) {
	m := NewManager()
	if err := m.Start(domain.Job{ID: "job-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(domain.Job{ID: "job-2"}); !errors.Is(err, ErrJobAlreadyRunning) {
		t.Fatalf("second start error = %v, want %v", err, ErrJobAlreadyRunning)
	}

	if err := m.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := m.Start(domain.Job{ID: "job-2"}); !errors.Is(err, ErrJobAlreadyRunning) {
		t.Fatalf("start while stopping error = %v, want %v", err, ErrJobAlreadyRunning)
	}
}

// TestManagerRejectsInvalidTransition checks state machine constraints.
func TestManagerRejectsInvalidTransition(t *testing.T) {
	m := NewManager()
	if err := m.Start(domain.Job{ID: "job-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := m.Transition(domain.JobStatusWriting); err == nil {
		t.Fatal("expected invalid transition error")
	}
	if err := NewManager().Transition(domain.JobStatusExtracting); err == nil {
		t.Fatal("expected error without active job")
	}
}

// TestManagerCancel verifies stop behavior and repeated stop handling.
func TestManagerCancel(t *testing.T) {
	m := NewManager()
	if err := m.Start(domain.Job{ID: "job-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := m.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if m.Current().Status != domain.JobStatusStopping {
		t.Fatalf("status = %s, want stopping", m.Current().Status)
	}
	if !m.IsRunning() {
		t.Fatal("stopping job is still in flight")
	}

	if err := m.Cancel(); err != ErrNoRunningJob {
		t.Fatalf("second cancel error = %v, want %v", err, ErrNoRunningJob)
	}

	// Late phase updates keep the job stopping.
	if err := m.Transition(domain.JobStatusLoading); err != nil {
		t.Fatalf("late transition: %v", err)
	}
	if m.Current().Status != domain.JobStatusStopping {
		t.Fatalf("status = %s, want stopping", m.Current().Status)
	}

	if err := m.Transition(domain.JobStatusCancelled); err != nil {
		t.Fatalf("transition to cancelled: %v", err)
	}
	if err := m.Start(domain.Job{ID: "job-2"}); err != nil {
		t.Fatalf("restart after cancel: %v", err)
	}
}

// TestManagerStatusTextAndProgress checks last-writer-wins status updates.
func TestManagerStatusTextAndProgress(t *testing.T) {
	m := NewManager()
	if err := m.Start(domain.Job{ID: "job-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.SetStatusText("Extracting audio...")
	m.SetStatusText("Loading model (local)...")
	m.SetProgress("/out/movie_字幕.srt", 3)
	m.SetProgress("", 4)

	current := m.Current()
	if current.StatusText != "Loading model (local)..." {
		t.Fatalf("status text = %q", current.StatusText)
	}
	if current.OutputPath != "/out/movie_字幕.srt" || current.Segments != 4 {
		t.Fatalf("progress = %q/%d", current.OutputPath, current.Segments)
	}

	m.Reset()
	if m.Current().Status != domain.JobStatusIdle || m.Current().ID != "" {
		t.Fatalf("reset job = %+v", m.Current())
	}
}
