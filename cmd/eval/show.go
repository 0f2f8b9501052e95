package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/batch-eval/internal/config"
	"github.com/stellarlinkco/batch-eval/internal/store"
)

func newShowCmd(st *cliState) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a stored evaluation run",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(st.configPath)
			if err != nil {
				return err
			}
			st.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return fmt.Errorf("show: empty run id")
			}

			format, err := resolveOutputFormat(output, st.cfg.Evaluation.OutputFormat)
			if err != nil {
				return fmt.Errorf("show: %w", err)
			}

			stor, err := store.Open(st.cfg)
			if err != nil {
				return fmt.Errorf("show: open store: %w", err)
			}
			defer stor.Close()

			rec, err := stor.GetReport(cmd.Context(), id)
			if err != nil {
				return err
			}

			if format == FormatTable {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Run: %s dataset=%s created=%s\n\n",
					rec.ID, rec.Dataset, rec.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), FormatReport(rec.Report, format))
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "output format: table|json (overrides config)")

	return cmd
}
