package schemas

import (
	"time"

	"github.com/google/uuid"
)

// TaskType defines the type of task to be performed.
type TaskType string

const (
	// TaskAnalyzeScript runs the static JavaScript analyzer over one script.
	TaskAnalyzeScript TaskType = "ANALYZE_SCRIPT"
)

// ScanTask is a single unit of work handed to the worker pool. Each task
// carries the full script content so analyses stay independent of each other.
type ScanTask struct {
	ID        string    `json:"id"`
	ScanID    string    `json:"scan_id"`
	Type      TaskType  `json:"type"`
	SourceURL string    `json:"source_url"`
	Content   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// NewScanTask builds an analysis task for one script.
func NewScanTask(scanID, sourceURL, content string) ScanTask {
	return ScanTask{
		ID:        uuid.New().String(),
		ScanID:    scanID,
		Type:      TaskAnalyzeScript,
		SourceURL: sourceURL,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// ScanReport is the top-level document emitted at the end of a scan. It
// aggregates the per-script analyses in a stable order.
type ScanReport struct {
	ScanID      string           `json:"scanId"`
	Targets     []string         `json:"targets"`
	StartedAt   time.Time        `json:"startedAt"`
	CompletedAt time.Time        `json:"completedAt"`
	Analyses    []ScriptAnalysis `json:"analyses"`
}

// TotalFindings counts security findings across every analyzed script.
func (r *ScanReport) TotalFindings() int {
	n := 0
	for i := range r.Analyses {
		n += len(r.Analyses[i].Findings)
	}
	return n
}
