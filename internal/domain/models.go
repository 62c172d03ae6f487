package domain

// ModelOption describes one faster-whisper model size and its local state.
type ModelOption struct {
	Size        string `json:"size"`
	Repo        string `json:"repo"`
	SizeLabel   string `json:"sizeLabel,omitempty"`
	Description string `json:"description,omitempty"`
	Downloaded  bool   `json:"downloaded"`
	LocalPath   string `json:"localPath,omitempty"`
	Selected    bool   `json:"selected"`
}
