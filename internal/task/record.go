package task

type Status string

const (
	StatusStarting    Status = "starting"
	StatusDownloading Status = "downloading"
	StatusConverting  Status = "converting"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusUnknown     Status = "unknown"
)

func (s Status) String() string {
	return string(s)
}

// IsFinished reports whether no further progress updates are expected.
func (s Status) IsFinished() bool {
	return s == StatusCompleted || s == StatusError
}

// Artifact is the converted audio attached to a completed task.
type Artifact struct {
	Data     []byte `json:"data"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Record is the full state of one task. Stores replace records whole; they
// never merge fields.
type Record struct {
	Status   Status    `json:"status"`
	Progress float64   `json:"progress"`
	Message  string    `json:"message"`
	Speed    string    `json:"speed,omitempty"`
	ETA      string    `json:"eta,omitempty"`
	Artifact *Artifact `json:"artifact,omitempty"`
}

// Snapshot is what pollers see. It has no artifact field at all.
type Snapshot struct {
	Status   Status  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
	Speed    string  `json:"speed,omitempty"`
	ETA      string  `json:"eta,omitempty"`
}

func (r Record) Snapshot() Snapshot {
	return Snapshot{
		Status:   r.Status,
		Progress: r.Progress,
		Message:  r.Message,
		Speed:    r.Speed,
		ETA:      r.ETA,
	}
}

// UnknownSnapshot is returned for ids that were never created or were
// already consumed.
func UnknownSnapshot() Snapshot {
	return Snapshot{Status: StatusUnknown, Progress: 0, Message: "Task not found"}
}
