package domain

import "time"

// HistoryEntry is one finished job as recorded in the history store.
type HistoryEntry struct {
	JobID      string    `json:"jobId"`
	SourcePath string    `json:"sourcePath"`
	OutputPath string    `json:"outputPath,omitempty"`
	Status     JobStatus `json:"status"`
	Segments   int       `json:"segments"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}
