package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/batch-eval/internal/config"
	"github.com/stellarlinkco/batch-eval/internal/dataset"
	"github.com/stellarlinkco/batch-eval/internal/evaluate"
	"github.com/stellarlinkco/batch-eval/internal/llm"
	"github.com/stellarlinkco/batch-eval/internal/remote"
	"github.com/stellarlinkco/batch-eval/internal/result"
	"github.com/stellarlinkco/batch-eval/internal/store"
)

var errRowsFailed = errors.New("batch-eval: rows failed")

type runOptions struct {
	suitePath   string
	dataPath    string
	output      string
	concurrency int
	failOnError bool
	taskTimeout time.Duration
	noSave      bool
}

func newRunCmd(st *cliState) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scorer suite over a dataset",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(st.configPath)
			if err != nil {
				return err
			}
			st.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.suitePath, "suite", "", "path to scorer suite file (required)")
	cmd.Flags().StringVar(&opts.dataPath, "data", "", "path to JSONL dataset (overrides suite)")
	cmd.Flags().StringVar(&opts.output, "output", "", "output format: table|json (overrides config)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", -1, "max in-flight rows (overrides config)")
	cmd.Flags().BoolVar(&opts.failOnError, "fail-on-error", false, "abort on the first row failure")
	cmd.Flags().DurationVar(&opts.taskTimeout, "task-timeout", -1, "timeout per scorer invocation (overrides config)")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "do not persist the report")

	return cmd
}

func runEvaluation(cmd *cobra.Command, st *cliState, opts *runOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("run: missing config (internal error)")
	}
	if opts == nil {
		return fmt.Errorf("run: nil options")
	}

	suitePath := strings.TrimSpace(opts.suitePath)
	if suitePath == "" {
		return fmt.Errorf("run: --suite is required")
	}

	output, err := resolveOutputFormat(opts.output, st.cfg.Evaluation.OutputFormat)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	sf, err := loadSuite(suitePath)
	if err != nil {
		return err
	}

	dataPath := strings.TrimSpace(opts.dataPath)
	if dataPath == "" {
		dataPath = strings.TrimSpace(sf.Dataset)
	}
	if dataPath == "" {
		return fmt.Errorf("run: no dataset (pass --data or set dataset: in the suite)")
	}

	ds, err := dataset.LoadJSONL(dataPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	reg, err := llm.NewRegistryFromConfig(ctx, st.cfg)
	if err != nil {
		return err
	}

	locals, remotes, specs, err := buildScorers(sf, reg, st.cfg.LLM.DefaultProvider)
	if err != nil {
		return err
	}

	var client remote.Client
	if len(remotes) > 0 {
		baseURL := strings.TrimSpace(st.cfg.Remote.BaseURL)
		if baseURL == "" {
			return fmt.Errorf("run: suite uses remote scorers but remote.base_url is not configured")
		}
		hc, err := remote.NewHTTPClient(baseURL, st.cfg.Remote.APIKey)
		if err != nil {
			return err
		}
		client = hc
	}

	evalOpts := evaluate.Options{
		Concurrency:  st.cfg.Evaluation.Concurrency,
		TaskTimeout:  st.cfg.Evaluation.TaskTimeout,
		BatchTimeout: st.cfg.Evaluation.BatchTimeout,
		FailOnError:  st.cfg.Evaluation.FailOnError || opts.failOnError,
		PollInterval: st.cfg.Remote.PollInterval,
	}
	if opts.concurrency >= 0 {
		evalOpts.Concurrency = opts.concurrency
	}
	if opts.taskTimeout >= 0 {
		evalOpts.TaskTimeout = opts.taskTimeout
	}

	report, err := evaluate.Evaluate(ctx, evaluate.Request{
		Dataset:  ds,
		Local:    locals,
		Remote:   remotes,
		Mappings: specs,
		Client:   client,
		Options:  evalOpts,
	})
	if err != nil {
		return err
	}

	switch output {
	case FormatTable:
		_, _ = fmt.Fprint(cmd.OutOrStdout(), FormatReport(report, FormatTable))
	case FormatJSON:
		_, _ = fmt.Fprint(cmd.OutOrStdout(), FormatReport(report, FormatJSON))
	default:
		return fmt.Errorf("run: internal error: unknown output format %q", output)
	}

	if !opts.noSave {
		id, err := saveReport(ctx, st.cfg, filepath.Base(dataPath), report)
		if err != nil {
			return err
		}
		if output == FormatTable {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved: %s\n", id)
		}
	}

	if reportFailed(report) {
		return errRowsFailed
	}
	return nil
}

func saveReport(ctx context.Context, cfg *config.Config, datasetLabel string, report *result.Report) (string, error) {
	stor, err := store.Open(cfg)
	if err != nil {
		return "", fmt.Errorf("run: open store: %w", err)
	}
	defer stor.Close()

	id, err := store.NewRunID()
	if err != nil {
		return "", fmt.Errorf("run: generate run id: %w", err)
	}

	rec := &store.RunRecord{
		ID:        id,
		Dataset:   datasetLabel,
		CreatedAt: time.Now().UTC(),
		Report:    report,
	}
	if err := stor.SaveReport(ctx, rec); err != nil {
		return "", err
	}
	return id, nil
}

// reportFailed reports whether any row carries a scorer failure or any
// path failed outright.
func reportFailed(report *result.Report) bool {
	if report == nil {
		return true
	}
	if len(report.Failures) > 0 {
		return true
	}
	for _, row := range report.Rows {
		if len(row.Errors) > 0 {
			return true
		}
	}
	return false
}
