package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scripthound/api/schemas"
)

func TestPublishStampsTaskIdentity(t *testing.T) {
	task := schemas.NewScanTask("scan-7", "https://example.com/app.js", "var a;")
	actx := NewAnalysisContext(task, zaptest.NewLogger(t))

	actx.Publish(&schemas.ScriptAnalysis{
		Findings:  []schemas.Finding{{VulnerabilityName: "DOM XSS"}},
		CallSites: []schemas.CallSiteRecord{{Method: "POST", URL: "/api"}},
	})

	require.NotNil(t, actx.Analysis)
	assert.Equal(t, task.ID, actx.Analysis.TaskID)
	assert.Equal(t, task.SourceURL, actx.Analysis.SourceURL)
	assert.Equal(t, "scan-7", actx.Analysis.Findings[0].ScanID)
	assert.Equal(t, task.ID, actx.Analysis.Findings[0].TaskID)
	assert.Equal(t, "scan-7", actx.Analysis.CallSites[0].ScanID)
	assert.Equal(t, task.ID, actx.Analysis.CallSites[0].TaskID)
}

func TestPublishKeepsExistingIdentity(t *testing.T) {
	task := schemas.NewScanTask("scan-7", "https://example.com/app.js", "var a;")
	actx := NewAnalysisContext(task, zaptest.NewLogger(t))

	actx.Publish(&schemas.ScriptAnalysis{
		SourceURL: "https://cdn.example.com/app.min.js",
		Findings:  []schemas.Finding{{ScanID: "other", TaskID: "other-task"}},
	})

	assert.Equal(t, "https://cdn.example.com/app.min.js", actx.Analysis.SourceURL)
	assert.Equal(t, "other", actx.Analysis.Findings[0].ScanID)
	assert.Equal(t, "other-task", actx.Analysis.Findings[0].TaskID)
}

func TestPublishNilIsNoOp(t *testing.T) {
	task := schemas.NewScanTask("scan-7", "https://example.com/app.js", "")
	actx := NewAnalysisContext(task, zaptest.NewLogger(t))
	actx.Publish(nil)
	assert.Nil(t, actx.Analysis)
}

func TestBaseAnalyzerAccessors(t *testing.T) {
	base := NewBaseAnalyzer("js_static", "Static JavaScript analysis", TypeStatic, zaptest.NewLogger(t))
	assert.Equal(t, "js_static", base.Name())
	assert.Equal(t, "Static JavaScript analysis", base.Description())
	assert.Equal(t, TypeStatic, base.Type())
	require.NotNil(t, base.Logger)
}
