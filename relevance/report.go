package relevance

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// RenderMarkdown writes report as a Markdown document: summary table,
// gate verdict, then one section per golden query.
func RenderMarkdown(w io.Writer, report *Report) error {
	var b strings.Builder
	s := report.Summary

	b.WriteString("# Search Relevance Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", report.GeneratedAt.Format(time.RFC3339))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|---|---|\n")
	fmt.Fprintf(&b, "| Total queries | %d |\n", s.Total)
	fmt.Fprintf(&b, "| Passed | %d |\n", s.Passed)
	fmt.Fprintf(&b, "| Failed | %d |\n", s.Failed)
	fmt.Fprintf(&b, "| Pass rate | %.1f%% |\n", s.PassRate)
	fmt.Fprintf(&b, "| Hit rate @1 | %.1f%% |\n", s.HitRate1)
	fmt.Fprintf(&b, "| Hit rate @3 | %.1f%% |\n", s.HitRate3)
	fmt.Fprintf(&b, "| Hit rate @5 | %.1f%% |\n", s.HitRate5)
	fmt.Fprintf(&b, "| Avg search time | %s |\n", s.AverageDuration.Round(time.Microsecond))
	b.WriteString("\n")

	b.WriteString("## Quality Gate\n\n")
	if report.Gate.Passed() {
		fmt.Fprintf(&b, "**PASSED**: hit rate @3 %.1f%% >= %.1f%%\n\n", report.Gate.HitRate3, report.Gate.Threshold)
	} else {
		fmt.Fprintf(&b, "**FAILED**: hit rate @3 %.1f%% < %.1f%%\n\n", report.Gate.HitRate3, report.Gate.Threshold)
	}

	b.WriteString("## Queries\n")
	for i, r := range report.Results {
		verdict := "PASS"
		if !r.Passed {
			verdict = "FAIL"
		}
		fmt.Fprintf(&b, "\n### %d. %s (%s)\n\n", i+1, r.Query.Query, verdict)
		if r.Error != "" {
			fmt.Fprintf(&b, "- Error: %s\n", r.Error)
		}
		fmt.Fprintf(&b, "- Top-1 / Top-3 / Top-5 hit: %s / %s / %s\n", mark(r.Top1Hit), mark(r.Top3Hit), mark(r.Top5Hit))
		fmt.Fprintf(&b, "- Average similarity: %.3f (min %.2f)\n", r.AverageSimilarity, r.Query.MinSimilarity)
		fmt.Fprintf(&b, "- Keyword matches: %d (min %d)\n", r.KeywordMatches, MinKeywordMatches)
		fmt.Fprintf(&b, "- Results: %d in %s\n", r.ResultCount, r.Duration.Round(time.Microsecond))
		fmt.Fprintf(&b, "- Expected files: %s\n", strings.Join(r.Query.ExpectedFiles, ", "))
		if len(r.Files) > 0 {
			b.WriteString("- Ranked files:\n")
			for rank, f := range r.Files {
				fmt.Fprintf(&b, "  %d. %s\n", rank+1, f)
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func mark(hit bool) string {
	if hit {
		return "yes"
	}
	return "no"
}

// RenderJSON writes report as indented JSON.
func RenderJSON(w io.Writer, report *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
