package schemas

import (
	"encoding/json"
	"time"
)

// Severity represents the severity level of a security finding. The values
// are lowercase to align with database ENUMs.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Finding encapsulates a single security issue surfaced by the analyzer. It
// maps directly to the `findings` table in the database.
type Finding struct {
	ID     string `json:"id"`
	ScanID string `json:"scan_id"`
	TaskID string `json:"task_id"`

	ObservedAt time.Time `json:"observed_at"`

	// Target is the script URL the finding was located in.
	Target string `json:"target"`
	// Module is the name of the analysis module that reported the finding.
	Module string `json:"module"`

	VulnerabilityName string `json:"vulnerability_name"`

	Severity    Severity `json:"severity"`
	Description string   `json:"description"`

	// Evidence is structured, machine-readable proof of the finding, stored
	// as JSONB in the database.
	Evidence json.RawMessage `json:"evidence,omitempty"`

	Recommendation string   `json:"recommendation"`
	CWE            []string `json:"cwe,omitempty"`
}

// CallSiteRecord is the flattened, persistable view of one discovered
// outbound network call. Header and body detail stays in the raw report.
type CallSiteRecord struct {
	ScanID     string `json:"scan_id"`
	TaskID     string `json:"task_id"`
	SourceURL  string `json:"source_url"`
	Method     string `json:"method"`
	URL        string `json:"url"`
	SinkType   string `json:"sink_type"`
	Enclosing  string `json:"enclosing_function,omitempty"`
	ParamCount int    `json:"param_count"`
}

// ScriptAnalysis bundles everything one task produced: the full analyzer
// report (as emitted JSON), the findings mapped into the canonical schema,
// and the call sites extracted for persistence.
type ScriptAnalysis struct {
	TaskID    string           `json:"taskId"`
	SourceURL string           `json:"sourceUrl"`
	Report    json.RawMessage  `json:"report"`
	Findings  []Finding        `json:"findings"`
	CallSites []CallSiteRecord `json:"callSites"`
	Error     string           `json:"error,omitempty"`
}

// ResultEnvelope is the unit handed to persistence. A nil Analysis means the
// task failed before producing a report.
type ResultEnvelope struct {
	ScanID   string          `json:"scan_id"`
	TaskID   string          `json:"task_id"`
	Analysis *ScriptAnalysis `json:"analysis,omitempty"`
}
