package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scripthound/api/schemas"
	"github.com/xkilldash9x/scripthound/internal/config"
	"github.com/xkilldash9x/scripthound/internal/fetch"
	"github.com/xkilldash9x/scripthound/internal/observability"
	"github.com/xkilldash9x/scripthound/internal/reporting"
	"github.com/xkilldash9x/scripthound/internal/store"
	"github.com/xkilldash9x/scripthound/internal/worker"
)

// newAnalyzeCmd creates and configures the `analyze` command.
func newAnalyzeCmd() *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze [targets...]",
		Short: "Analyzes JavaScript from URLs or local files",
		Long: `Analyze fetches each target (a page URL, script URL, or local .js file),
statically maps every outbound network call it makes, and flags taint flows
from attacker-controlled sources into dangerous sinks.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so CLI values override config file and env entries.
			if err := viper.BindPFlag("engine.worker_concurrency", cmd.Flags().Lookup("concurrency")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to finalize config: %w", err)
			}
			cfg.Scan = config.ScanConfig{
				Targets:     args,
				Output:      viper.GetString("out"),
				Format:      viper.GetString("format"),
				Concurrency: cfg.Engine.WorkerConcurrency,
			}

			scanID := uuid.New().String()
			logger.Info("Starting analysis",
				zap.String("scanID", scanID),
				zap.Strings("targets", cfg.Scan.Targets),
				zap.Int("concurrency", cfg.Scan.Concurrency))

			report, err := runScan(ctx, cfg, scanID, logger)
			if err != nil {
				return err
			}

			reporter, err := reporting.New(cfg.Scan.Format, cfg.Scan.Output)
			if err != nil {
				return err
			}
			defer reporter.Close()
			if err := reporter.Write(report); err != nil {
				return err
			}

			if cfg.Database.Enabled {
				if err := persistReport(ctx, cfg, report, logger); err != nil {
					return err
				}
			}

			logger.Info("Analysis complete",
				zap.Int("scripts", len(report.Analyses)),
				zap.Int("findings", report.TotalFindings()))
			return nil
		},
	}

	analyzeCmd.Flags().StringP("format", "f", "json", "output format (json, text)")
	analyzeCmd.Flags().StringP("out", "o", "", "output path (defaults to stdout)")
	analyzeCmd.Flags().Int("concurrency", 8, "number of scripts analyzed in parallel")

	return analyzeCmd
}

// runScan collects every script behind the targets, fans the analysis out
// over the worker pool, and assembles the scan report.
func runScan(ctx context.Context, cfg *config.Config, scanID string, logger *zap.Logger) (*schemas.ScanReport, error) {
	startedAt := time.Now().UTC()

	scripts, err := collectScripts(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if len(scripts) == 0 {
		return nil, fmt.Errorf("no scripts found for targets %v", cfg.Scan.Targets)
	}

	tasks := make([]schemas.ScanTask, len(scripts))
	for i, script := range scripts {
		tasks[i] = schemas.NewScanTask(scanID, script.SourceURL, script.Content)
	}

	pool := worker.New(cfg, logger)
	analyses, err := pool.RunAll(ctx, tasks)
	if err != nil {
		return nil, fmt.Errorf("analysis run aborted: %w", err)
	}

	return &schemas.ScanReport{
		ScanID:      scanID,
		Targets:     cfg.Scan.Targets,
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
		Analyses:    analyses,
	}, nil
}

// collectScripts resolves each target into script content. Local files are
// read directly; anything else goes through the fetch client.
func collectScripts(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]fetch.Script, error) {
	var client *fetch.Client
	var scripts []fetch.Script

	for _, target := range cfg.Scan.Targets {
		if info, err := os.Stat(target); err == nil && !info.IsDir() {
			content, err := os.ReadFile(target)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", target, err)
			}
			scripts = append(scripts, fetch.Script{SourceURL: target, Content: string(content)})
			continue
		}

		url := target
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			url = "https://" + url
		}
		if client == nil {
			client = fetch.NewClient(cfg.Fetch, logger)
		}
		fetched, err := client.CollectScripts(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("collecting scripts from %s: %w", url, err)
		}
		scripts = append(scripts, fetched...)
	}
	return scripts, nil
}

func persistReport(ctx context.Context, cfg *config.Config, report *schemas.ScanReport, logger *zap.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	db, err := store.New(ctx, pool, logger)
	if err != nil {
		return err
	}
	if err := db.PersistResults(ctx, report); err != nil {
		return fmt.Errorf("persisting results: %w", err)
	}
	logger.Info("Results persisted", zap.String("scanID", report.ScanID))
	return nil
}
