package store

import "time"

// Job kinds.
const (
	KindDump  = "dump"
	KindPatch = "patch"
	KindTools = "tools"
)

// Job statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Job records one dump, patch, or tool-acquisition execution.
type Job struct {
	ID           int64
	Kind         string // "dump", "patch", "tools"
	URL          string // OTA archive URL, empty for tool jobs
	Partitions   string // comma-separated requested partitions
	Status       string // "running", "success", "failed"
	ErrorMessage string
	BytesWritten int64
	Artifact     string // patched image path for patch jobs
	StartTime    time.Time
	EndTime      time.Time
}
