// Package adapters bridges analysis modules into the worker's Analyzer
// registry, translating module-specific reports into the canonical schemas.
package adapters

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scripthound/api/schemas"
	"github.com/xkilldash9x/scripthound/internal/analysis/core"
	"github.com/xkilldash9x/scripthound/internal/analysis/static/javascript"
	"github.com/xkilldash9x/scripthound/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ScriptAnalyzer adapts the static JavaScript analyzer to the core.Analyzer
// contract used by the worker pool.
type ScriptAnalyzer struct {
	*core.BaseAnalyzer
	engine *javascript.Analyzer
	cfg    config.AnalysisConfig
}

// NewScriptAnalyzer wires the JavaScript engine into the worker registry.
func NewScriptAnalyzer(cfg config.AnalysisConfig, logger *zap.Logger) *ScriptAnalyzer {
	return &ScriptAnalyzer{
		BaseAnalyzer: core.NewBaseAnalyzer(
			"js_static",
			"Static analysis of JavaScript for network call sites and taint flows",
			core.TypeStatic,
			logger,
		),
		engine: javascript.NewAnalyzer(logger),
		cfg:    cfg,
	}
}

// Analyze runs the static analyzer over the task's script and publishes the
// translated result on the analysis context.
func (a *ScriptAnalyzer) Analyze(ctx context.Context, actx *core.AnalysisContext) error {
	task := actx.Task
	if a.cfg.MaxScriptBytes > 0 && int64(len(task.Content)) > a.cfg.MaxScriptBytes {
		actx.Logger.Warn("Skipping oversized script",
			zap.Int("bytes", len(task.Content)),
			zap.Int64("limit", a.cfg.MaxScriptBytes))
		actx.Publish(&schemas.ScriptAnalysis{
			Error: fmt.Sprintf("script exceeds size limit (%d bytes)", len(task.Content)),
		})
		return nil
	}

	report, err := a.engine.Analyze(ctx, task.SourceURL, task.Content)
	if err != nil {
		return fmt.Errorf("analyzing %s: %w", task.SourceURL, err)
	}

	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("serializing report for %s: %w", task.SourceURL, err)
	}

	actx.Publish(&schemas.ScriptAnalysis{
		SourceURL: report.SourceURL,
		Report:    raw,
		Findings:  translateFindings(report),
		CallSites: translateCallSites(report),
	})
	return nil
}

func translateFindings(report *javascript.FileReport) []schemas.Finding {
	findings := make([]schemas.Finding, 0, len(report.SecuritySinks)+len(report.DangerousPatterns))

	for _, sink := range report.SecuritySinks {
		evidence, _ := json.Marshal(sink)
		findings = append(findings, schemas.Finding{
			ID:                uuid.New().String(),
			Target:            report.SourceURL,
			Module:            "js_static",
			VulnerabilityName: sink.Type,
			Severity:          schemas.Severity(sink.Severity),
			Description: fmt.Sprintf("Tainted data from %s reaches %s at line %d",
				sink.TaintSource, sink.Sink, sink.Location.Line),
			Evidence:       evidence,
			Recommendation: "Sanitize or encode attacker-controlled data before it reaches this sink.",
			CWE:            cweFor(sink.Type),
		})
	}

	for _, pattern := range report.DangerousPatterns {
		evidence, _ := json.Marshal(pattern)
		findings = append(findings, schemas.Finding{
			ID:                uuid.New().String(),
			Target:            report.SourceURL,
			Module:            "js_static",
			VulnerabilityName: pattern.Pattern,
			Severity:          schemas.Severity(pattern.Severity),
			Description:       pattern.Detail,
			Evidence:          evidence,
			Recommendation:    "Review the flagged handler and enforce strict validation.",
		})
	}
	return findings
}

func translateCallSites(report *javascript.FileReport) []schemas.CallSiteRecord {
	records := make([]schemas.CallSiteRecord, 0, len(report.FetchCallSites))
	for _, site := range report.FetchCallSites {
		records = append(records, schemas.CallSiteRecord{
			SourceURL:  report.SourceURL,
			Method:     site.Method,
			URL:        site.URL,
			SinkType:   string(site.Type),
			Enclosing:  site.EnclosingFunction,
			ParamCount: len(site.BodyParams),
		})
	}
	return records
}

// cweFor maps a sink category to its closest CWE identifiers.
func cweFor(sinkType string) []string {
	switch javascript.SinkType(sinkType) {
	case javascript.SinkTypeExecution:
		return []string{"CWE-94", "CWE-95"}
	case javascript.SinkTypeHTMLInjection, javascript.SinkTypeAttributeInjection:
		return []string{"CWE-79"}
	case javascript.SinkTypeURLRedirection:
		return []string{"CWE-601"}
	case javascript.SinkTypePrototypePollution:
		return []string{"CWE-1321"}
	case javascript.SinkTypeRegexInjection:
		return []string{"CWE-1333"}
	case javascript.SinkTypeCookieManipulation:
		return []string{"CWE-565"}
	default:
		return nil
	}
}
