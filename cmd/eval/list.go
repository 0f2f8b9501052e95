package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/batch-eval/internal/config"
	"github.com/stellarlinkco/batch-eval/internal/store"
)

func newListCmd(st *cliState) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored evaluation runs",
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
			stor, err := store.Open(st.cfg)
			if err != nil {
				return fmt.Errorf("list: open store: %w", err)
			}
			defer stor.Close()

			runs, err := stor.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if asJSON {
				out := cmd.OutOrStdout()
				for _, r := range runs {
					b, err := json.Marshal(summaryToJSON(r))
					if err != nil {
						return fmt.Errorf("list: marshal json: %w", err)
					}
					_, _ = fmt.Fprintln(out, string(b))
				}
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tDATASET\tCREATED\tROWS\tFAILED\tMETRICS")
			for _, r := range runs {
				if r == nil {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					r.ID, r.Dataset, r.CreatedAt.Format(time.RFC3339),
					r.RowCount, r.FailureCount, formatMetrics(r.Metrics))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON lines")

	return cmd
}

type jsonRunSummary struct {
	ID           string             `json:"id"`
	Dataset      string             `json:"dataset"`
	CreatedAt    string             `json:"created_at"`
	RowCount     int                `json:"row_count"`
	ColumnCount  int                `json:"column_count"`
	FailureCount int                `json:"failure_count"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

func summaryToJSON(r *store.RunSummary) jsonRunSummary {
	if r == nil {
		return jsonRunSummary{}
	}
	return jsonRunSummary{
		ID:           r.ID,
		Dataset:      r.Dataset,
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
		RowCount:     r.RowCount,
		ColumnCount:  r.ColumnCount,
		FailureCount: r.FailureCount,
		Metrics:      r.Metrics,
	}
}

func formatMetrics(metrics map[string]float64) string {
	if len(metrics) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(metrics))
	for _, k := range sortedKeys(metrics) {
		parts = append(parts, fmt.Sprintf("%s=%.2f", k, metrics[k]))
	}
	return strings.Join(parts, " ")
}
