package domain

// JobStatus tracks each pipeline phase for a single subtitle job.
type JobStatus string

const (
	JobStatusIdle        JobStatus = "idle"
	JobStatusExtracting  JobStatus = "extracting"
	JobStatusLoading     JobStatus = "loading"
	JobStatusRecognizing JobStatus = "recognizing"
	JobStatusWriting     JobStatus = "writing"
	JobStatusStopping    JobStatus = "stopping"
	JobStatusDone        JobStatus = "done"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
)

// Backend names a speech recognizer implementation.
const (
	BackendCTranslate2 = "ctranslate2"
	BackendWhisperCpp  = "whispercpp"
)

// Settings contains persisted user preferences and tool locations.
// Only is_dark is always written; the rest fall back to defaults when empty.
type Settings struct {
	IsDark         bool   `json:"is_dark" toml:"is_dark" yaml:"is_dark"`
	OutputDir      string `json:"output_dir,omitempty" toml:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	Language       string `json:"language,omitempty" toml:"language,omitempty" yaml:"language,omitempty"`
	Backend        string `json:"backend,omitempty" toml:"backend,omitempty" yaml:"backend,omitempty"`
	ModelSize      string `json:"model_size,omitempty" toml:"model_size,omitempty" yaml:"model_size,omitempty"`
	ModelOrg       string `json:"model_org,omitempty" toml:"model_org,omitempty" yaml:"model_org,omitempty"`
	ModelsDir      string `json:"models_dir,omitempty" toml:"models_dir,omitempty" yaml:"models_dir,omitempty"`
	ModelPath      string `json:"model_path,omitempty" toml:"model_path,omitempty" yaml:"model_path,omitempty"`
	FFmpegPath     string `json:"ffmpeg_path,omitempty" toml:"ffmpeg_path,omitempty" yaml:"ffmpeg_path,omitempty"`
	RecognizerPath string `json:"recognizer_path,omitempty" toml:"recognizer_path,omitempty" yaml:"recognizer_path,omitempty"`
}

// Job stores the current job identity, inputs and observable status.
type Job struct {
	ID         string    `json:"id"`
	SourcePath string    `json:"sourcePath,omitempty"`
	OutputDir  string    `json:"outputDir,omitempty"`
	OutputPath string    `json:"outputPath,omitempty"`
	Status     JobStatus `json:"status"`
	StatusText string    `json:"statusText,omitempty"`
	Segments   int       `json:"segments,omitempty"`
}

// Segment is one recognized utterance with times in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Selection describes the video chosen in the shell and where output goes.
type Selection struct {
	VideoPath  string `json:"videoPath"`
	OutputDir  string `json:"outputDir"`
	StatusText string `json:"statusText"`
}
