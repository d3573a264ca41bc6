package schemas

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScanTask(t *testing.T) {
	task := NewScanTask("scan-1", "https://example.com/app.js", "var x = 1;")

	_, err := uuid.Parse(task.ID)
	require.NoError(t, err, "task ID should be a valid UUID")
	assert.Equal(t, "scan-1", task.ScanID)
	assert.Equal(t, TaskAnalyzeScript, task.Type)
	assert.Equal(t, "https://example.com/app.js", task.SourceURL)
	assert.Equal(t, "var x = 1;", task.Content)
	assert.WithinDuration(t, time.Now().UTC(), task.CreatedAt, 5*time.Second)
}

func TestScanTaskContentNotSerialized(t *testing.T) {
	task := NewScanTask("scan-1", "https://example.com/app.js", "secret();")

	raw, err := json.Marshal(task)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret()", "script content must not leak into serialized tasks")
}

func TestScanReportTotalFindings(t *testing.T) {
	report := ScanReport{
		Analyses: []ScriptAnalysis{
			{Findings: []Finding{{ID: "a"}, {ID: "b"}}},
			{Findings: nil},
			{Findings: []Finding{{ID: "c"}}},
		},
	}
	assert.Equal(t, 3, report.TotalFindings())
}

func TestFindingSerialization(t *testing.T) {
	f := Finding{
		ID:                "f-1",
		ScanID:            "scan-1",
		TaskID:            "task-1",
		Target:            "https://example.com/app.js",
		Module:            "js_analyzer",
		VulnerabilityName: "DOM XSS",
		Severity:          SeverityHigh,
		Evidence:          json.RawMessage(`{"line":12}`),
		CWE:               []string{"CWE-79"},
	}

	raw, err := json.Marshal(f)
	require.NoError(t, err)

	var back Finding
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, f.VulnerabilityName, back.VulnerabilityName)
	assert.Equal(t, SeverityHigh, back.Severity)
	assert.JSONEq(t, `{"line":12}`, string(back.Evidence))
}
