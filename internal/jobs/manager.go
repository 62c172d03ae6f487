package jobs

import (
	"errors"
	"fmt"
	"sync"

	"subtitle-assistant/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active job.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrNoRunningJob is returned when stop is requested while nothing is stoppable.
var ErrNoRunningJob = errors.New("no running job")

// Manager tracks the single allowed in-flight job and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Job{
			Status: domain.JobStatusIdle,
		},
	}
}

// Start registers job as the in-flight job and moves it to extracting.
func (m *Manager) Start(job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isActive(m.current.Status) {
		return ErrJobAlreadyRunning
	}
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}

	job.Status = domain.JobStatusExtracting
	job.Segments = 0
	m.current = job
	return nil
}

// Transition validates and applies state transitions for current job.
// Phase updates that arrive after a stop request leave the job stopping.
func (m *Manager) Transition(status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" && status != domain.JobStatusIdle {
		return fmt.Errorf("cannot transition without an active job")
	}
	if status == m.current.Status {
		return nil
	}
	if m.current.Status == domain.JobStatusStopping && isRunning(status) {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	return nil
}

// SetStatusText replaces the user-visible status line; last writer wins.
func (m *Manager) SetStatusText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.StatusText = text
}

// SetProgress records the subtitle file path and blocks written so far.
func (m *Manager) SetProgress(outputPath string, segments int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if outputPath != "" {
		m.current.OutputPath = outputPath
	}
	m.current.Segments = segments
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears job metadata and returns manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Job{Status: domain.JobStatusIdle}
}

// IsRunning reports whether a job is in flight, including one that is stopping.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isActive(m.current.Status)
}

// Cancel moves a running job to stopping. The job reaches cancelled once
// the pipeline observes the request.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isRunning(m.current.Status) {
		return ErrNoRunningJob
	}
	m.current.Status = domain.JobStatusStopping
	return nil
}

// isRunning checks if a status is an executing pipeline phase.
func isRunning(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusExtracting, domain.JobStatusLoading, domain.JobStatusRecognizing, domain.JobStatusWriting:
		return true
	default:
		return false
	}
}

func isActive(status domain.JobStatus) bool {
	return isRunning(status) || status == domain.JobStatusStopping
}

func isTerminal(status domain.JobStatus) bool {
	return status == domain.JobStatusDone || status == domain.JobStatusFailed || status == domain.JobStatusCancelled
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusIdle:
		return to == domain.JobStatusExtracting
	case domain.JobStatusExtracting:
		return to == domain.JobStatusLoading || to == domain.JobStatusStopping || isTerminal(to)
	case domain.JobStatusLoading:
		return to == domain.JobStatusRecognizing || to == domain.JobStatusStopping || isTerminal(to)
	case domain.JobStatusRecognizing:
		return to == domain.JobStatusWriting || to == domain.JobStatusStopping || isTerminal(to)
	case domain.JobStatusWriting:
		return to == domain.JobStatusStopping || isTerminal(to)
	case domain.JobStatusStopping:
		return isTerminal(to)
	case domain.JobStatusDone, domain.JobStatusFailed, domain.JobStatusCancelled:
		return to == domain.JobStatusExtracting || to == domain.JobStatusIdle
	default:
		return false
	}
}
