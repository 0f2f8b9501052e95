package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/stellarlinkco/batch-eval/internal/result"
)

type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
)

func parseOutputFormat(s string) OutputFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table":
		return FormatTable
	case "json", "jsonl":
		return FormatJSON
	default:
		return ""
	}
}

func resolveOutputFormat(flagValue string, configValue string) (OutputFormat, error) {
	if strings.TrimSpace(flagValue) != "" {
		out := parseOutputFormat(flagValue)
		if out == "" {
			return "", fmt.Errorf("invalid --output %q (expected table|json)", flagValue)
		}
		return out, nil
	}
	if out := parseOutputFormat(configValue); out != "" {
		return out, nil
	}
	return FormatTable, nil
}

func coloredStatus(passed bool) string {
	if passed {
		return colorGreen + "PASS" + colorReset
	}
	return colorRed + "FAIL" + colorReset
}

func FormatReport(report *result.Report, format OutputFormat) string {
	switch format {
	case FormatTable:
		return formatReportTable(report)
	case FormatJSON:
		return formatReportJSON(report)
	default:
		return fmt.Sprintf("error: unknown output format %q\n", format)
	}
}

func formatReportTable(report *result.Report) string {
	if report == nil {
		return "Report: <nil> " + coloredStatus(false) + "\n"
	}

	var buf bytes.Buffer

	failed := 0
	for _, row := range report.Rows {
		if len(row.Errors) > 0 {
			failed++
		}
	}

	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	header := append([]string{"ROW"}, report.Columns...)
	header = append(header, "ERRORS")
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range report.Rows {
		cells := make([]string, 0, len(header))
		cells = append(cells, fmt.Sprintf("%d", row.Index))
		for _, col := range report.Columns {
			cells = append(cells, formatCell(row.Values[col]))
		}
		cells = append(cells, formatRowErrors(row.Errors))
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()

	buf.WriteString("\n")
	for _, col := range sortedKeys(report.Metrics) {
		fmt.Fprintf(&buf, "Metric: %s = %.4f\n", col, report.Metrics[col])
	}

	for _, f := range report.Failures {
		fmt.Fprintf(&buf, "Failure: path=%s kind=%s %s\n", f.Path, f.Kind, f.Message)
	}

	fmt.Fprintf(&buf, "Summary: rows=%d failed=%d tokens_in=%d tokens_out=%d elapsed=%s\n",
		len(report.Rows), failed, report.Usage.InputTokens, report.Usage.OutputTokens,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&buf, "Overall: %s\n", coloredStatus(failed == 0 && len(report.Failures) == 0))

	return buf.String()
}

func formatReportJSON(report *result.Report) string {
	b, err := json.Marshal(report)
	if err != nil {
		return fmt.Sprintf("error: marshal report: %v\n", err)
	}
	return string(b) + "\n"
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		return fmt.Sprintf("%.2f", x)
	case string:
		if len(x) > 40 {
			return x[:37] + "..."
		}
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}

func formatRowErrors(errs map[string]string) string {
	if len(errs) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(errs))
	for _, name := range sortedKeys(errs) {
		parts = append(parts, name+": "+errs[name])
	}
	return strings.Join(parts, "; ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
