package core

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/scripthound/api/schemas"
)

// AnalysisContext carries everything one task needs: the task itself and a
// place to put results. Each task gets its own context, so analyzers never
// share mutable state between scripts.
type AnalysisContext struct {
	Task   schemas.ScanTask
	Logger *zap.Logger

	// Analysis is populated by the analyzer during execution.
	Analysis *schemas.ScriptAnalysis
}

// NewAnalysisContext builds a context for one task with a task-scoped logger.
func NewAnalysisContext(task schemas.ScanTask, logger *zap.Logger) *AnalysisContext {
	return &AnalysisContext{
		Task:   task,
		Logger: logger.With(zap.String("task_id", task.ID), zap.String("source_url", task.SourceURL)),
	}
}

// Publish records the produced analysis, stamping task identity onto any
// findings that are missing it.
func (ac *AnalysisContext) Publish(analysis *schemas.ScriptAnalysis) {
	if analysis == nil {
		return
	}
	analysis.TaskID = ac.Task.ID
	if analysis.SourceURL == "" {
		analysis.SourceURL = ac.Task.SourceURL
	}
	for i := range analysis.Findings {
		if analysis.Findings[i].ScanID == "" {
			analysis.Findings[i].ScanID = ac.Task.ScanID
		}
		if analysis.Findings[i].TaskID == "" {
			analysis.Findings[i].TaskID = ac.Task.ID
		}
	}
	for i := range analysis.CallSites {
		if analysis.CallSites[i].ScanID == "" {
			analysis.CallSites[i].ScanID = ac.Task.ScanID
		}
		if analysis.CallSites[i].TaskID == "" {
			analysis.CallSites[i].TaskID = ac.Task.ID
		}
	}
	ac.Analysis = analysis
}
