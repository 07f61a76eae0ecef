package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	succeededStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failedStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	skippedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

func statusIcon(s Status) string {
	switch s {
	case StatusSucceeded:
		return succeededStyle.Render("✓")
	case StatusFailed:
		return failedStyle.Render("✗")
	case StatusSkipped:
		return skippedStyle.Render("⊘")
	default:
		return dimStyle.Render("•")
	}
}

// RenderReport formats the final per-stage report: one line per stage with
// its terminal status and, for failed or skipped stages, the reason chain.
func RenderReport(result *PipelineResult) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Pipeline %s", result.Pipeline)))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  (run %s)", result.RunID)))
	b.WriteString("\n\n")

	nameWidth := 0
	for _, res := range result.Stages {
		if len(res.Name) > nameWidth {
			nameWidth = len(res.Name)
		}
	}

	for _, res := range result.Stages {
		b.WriteString(fmt.Sprintf("  %s %-*s  %-10s", statusIcon(res.Status), nameWidth, res.Name, res.Status))
		if res.Status == StatusSucceeded || res.Status == StatusFailed {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  %s", res.Duration.Round(time.Millisecond))))
		}
		b.WriteString("\n")

		switch {
		case res.Status == StatusFailed && res.Err != nil:
			b.WriteString(dimStyle.Render(indent(res.Err.Error(), 6)))
			b.WriteString("\n")
		case res.Status == StatusSkipped && res.Reason != "":
			b.WriteString(dimStyle.Render(fmt.Sprintf("      %s", res.Reason)))
			b.WriteString("\n")
		}

		for _, artifact := range res.Artifacts {
			b.WriteString(dimStyle.Render(fmt.Sprintf("      → %s", artifact)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if result.Failed() {
		b.WriteString(failedStyle.Render(fmt.Sprintf("Pipeline %s: failed", result.Pipeline)))
	} else {
		b.WriteString(succeededStyle.Render(fmt.Sprintf("Pipeline %s: succeeded", result.Pipeline)))
	}
	b.WriteString("\n")

	return b.String()
}

func indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = pad + line
	}
	return strings.Join(lines, "\n")
}
