// Filename: javascript/analyzer.go
// This module implements static discovery of outbound network calls and
// taint flows in client side JavaScript, resolving concrete values through
// wrappers, callbacks, and prototype indirection.
package javascript

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Analyzer analyzes JavaScript source code. It is stateless; all per-file
// state lives in the AnalysisContext built inside Analyze, so one Analyzer
// may serve many files concurrently.
type Analyzer struct {
	logger *zap.Logger
}

// NewAnalyzer creates a new static analyzer.
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	return &Analyzer{
		logger: logger.Named("js_analyzer"),
	}
}

// Analyze parses one JavaScript file and runs the full multi-pass analysis:
// scope model, global index, type tracking, constraint mining, network sink
// extraction, and the security scan.
func (a *Analyzer) Analyze(ctx context.Context, sourceURL, content string) (*FileReport, error) {
	report := &FileReport{
		SourceURL:      sourceURL,
		ProtoEnums:     []ProtoEnum{},
		ProtoFieldMaps: []ProtoFieldMap{},
		FetchCallSites: []FetchCallSite{},
	}
	if content == "" {
		return report, nil
	}

	a.logger.Debug("Starting analysis of JavaScript file",
		zap.String("sourceUrl", sourceURL),
		zap.Int("size_bytes", len(content)),
	)

	source := []byte(content)
	report.SourceMapURL = findSourceMapURL(source)

	tree, err := ParseSource(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter failed to parse %s: %w", sourceURL, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return report, nil
	}
	if root.HasError() {
		// The grammar is error-tolerant; partial results are still worth
		// emitting.
		a.logger.Warn("Syntax errors detected; analysis may be incomplete", zap.String("sourceUrl", sourceURL))
	}

	run := NewAnalysisContext(a.logger, source)
	run.Root = root
	run.Scopes = BuildScopeModel(root, source)
	run.Globals = BuildGlobalIndex(root, source, run.Scopes)

	trackTypes(run)
	mineConstraints(run)

	res := newResolver(run)
	tracer := res.tracer

	extractor := newNetworkExtractor(run, res, tracer)
	report.FetchCallSites = mergeCallSites(extractor.extract())

	taint := newTaintAnalyzer(run, res, tracer)
	report.SecuritySinks, report.DangerousPatterns = taint.scanSecurity(sourceURL)

	report.ValueConstraints = constraintList(run)
	report.ResolverErrors = run.Errors()

	a.logger.Debug("Analysis complete",
		zap.String("sourceUrl", sourceURL),
		zap.Int("fetch_call_sites", len(report.FetchCallSites)),
		zap.Int("security_sinks", len(report.SecuritySinks)),
		zap.Int("resolver_errors", len(report.ResolverErrors)),
	)
	return report, nil
}
