package core

import (
	"context"

	"go.uber.org/zap"
)

// AnalyzerType distinguishes analysis modules by how they interact with the
// artifact under inspection.
type AnalyzerType string

const (
	// TypeStatic analyzers operate on collected source without executing it.
	TypeStatic AnalyzerType = "STATIC"
	// TypePassive analyzers only inspect captured artifacts (headers, HTML).
	TypePassive AnalyzerType = "PASSIVE"
)

// Analyzer is the core interface that all analysis modules implement. It
// defines the standard contract between the worker pool and a specific
// analysis module.
type Analyzer interface {
	Name() string
	Description() string
	Type() AnalyzerType
	Analyze(ctx context.Context, actx *AnalysisContext) error
}

// BaseAnalyzer provides a foundational implementation of the Analyzer
// interface, handling the common name, description, and type fields. Embed it
// in specific analyzer implementations to avoid boilerplate.
type BaseAnalyzer struct {
	name         string
	description  string
	analyzerType AnalyzerType
	Logger       *zap.Logger
}

// NewBaseAnalyzer creates a BaseAnalyzer with a named sub-logger.
func NewBaseAnalyzer(name, description string, analyzerType AnalyzerType, logger *zap.Logger) *BaseAnalyzer {
	return &BaseAnalyzer{
		name:         name,
		description:  description,
		analyzerType: analyzerType,
		Logger:       logger.Named(name),
	}
}

func (b *BaseAnalyzer) Name() string        { return b.name }
func (b *BaseAnalyzer) Description() string { return b.description }
func (b *BaseAnalyzer) Type() AnalyzerType  { return b.analyzerType }
