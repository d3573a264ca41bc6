// Package worker runs analysis tasks through a registry of analyzers with
// bounded concurrency. Each task gets an isolated analysis context, so
// per-script state never leaks between concurrent analyses.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scripthound/api/schemas"
	"github.com/xkilldash9x/scripthound/internal/analysis/core"
	"github.com/xkilldash9x/scripthound/internal/config"
	"github.com/xkilldash9x/scripthound/internal/worker/adapters"
)

// Worker dispatches tasks to registered analyzers by task type.
type Worker struct {
	cfg      *config.Config
	log      *zap.Logger
	registry map[schemas.TaskType]core.Analyzer
}

// Option customizes worker construction.
type Option func(*Worker)

// WithAnalyzer overrides or adds the analyzer for a task type. Primarily
// used by tests to inject fakes.
func WithAnalyzer(taskType schemas.TaskType, analyzer core.Analyzer) Option {
	return func(w *Worker) {
		w.registry[taskType] = analyzer
	}
}

// New builds a worker with the default analyzer registry.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Worker {
	w := &Worker{
		cfg:      cfg,
		log:      logger.Named("worker"),
		registry: map[schemas.TaskType]core.Analyzer{},
	}
	w.registry[schemas.TaskAnalyzeScript] = adapters.NewScriptAnalyzer(cfg.Analysis, w.log)

	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ProcessTask runs a single task to completion under the configured task
// timeout and returns its analysis.
func (w *Worker) ProcessTask(ctx context.Context, task schemas.ScanTask) (*schemas.ScriptAnalysis, error) {
	analyzer, ok := w.registry[task.Type]
	if !ok {
		return nil, fmt.Errorf("no analyzer registered for task type %q", task.Type)
	}

	taskCtx := ctx
	if w.cfg.Engine.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, w.cfg.Engine.TaskTimeout)
		defer cancel()
	}

	actx := core.NewAnalysisContext(task, w.log)
	if err := analyzer.Analyze(taskCtx, actx); err != nil {
		return nil, err
	}
	if actx.Analysis == nil {
		return nil, fmt.Errorf("analyzer %q produced no result for task %s", analyzer.Name(), task.ID)
	}
	return actx.Analysis, nil
}

// RunAll processes every task with bounded concurrency and returns the
// analyses in task order. A failed task is recorded in its slot instead of
// aborting its siblings.
func (w *Worker) RunAll(ctx context.Context, tasks []schemas.ScanTask) ([]schemas.ScriptAnalysis, error) {
	results := make([]schemas.ScriptAnalysis, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Engine.WorkerConcurrency)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			analysis, err := w.ProcessTask(gctx, task)
			if err != nil {
				w.log.Warn("Task failed",
					zap.String("task_id", task.ID),
					zap.String("source_url", task.SourceURL),
					zap.Error(err))
				results[i] = schemas.ScriptAnalysis{
					TaskID:    task.ID,
					SourceURL: task.SourceURL,
					Error:     err.Error(),
				}
				return nil
			}
			results[i] = *analysis
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
