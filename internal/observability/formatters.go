// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/purchase-tracker/internal/events"
	"github.com/jonathan/purchase-tracker/internal/pricing"
	"github.com/jonathan/purchase-tracker/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxLogLines is how many trailing log lines a job summary shows
	maxLogLines = 10
)

// Printer handles formatted output for CLI commands
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if len([]rune(line)) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// WriteEvent prints one streamed job event as a single line. It satisfies
// jobs.EventWriter so a CLI can follow a job the way a push client does.
func (p *Printer) WriteEvent(ev events.Event) error {
	var line string
	switch ev.Type {
	case events.TypeStatus:
		line = fmt.Sprintf("[status]   %v", ev.Payload)
	case events.TypeProgress:
		line = "[progress] " + formatProgress(ev.Payload)
	case events.TypeLog:
		line = fmt.Sprintf("[log]      %v", ev.Payload)
	case events.TypeError:
		line = fmt.Sprintf("[error]    %v", ev.Payload)
	case events.TypeDone:
		line = "[done]"
	default:
		line = fmt.Sprintf("[%s] %v", ev.Type, ev.Payload)
	}
	_, err := fmt.Fprintln(p.out, line)
	return err
}

// formatProgress renders in-process payloads and ones decoded from the relay.
func formatProgress(payload any) string {
	switch v := payload.(type) {
	case types.Progress:
		return fmt.Sprintf("%d/%d", v.Current, v.Total)
	case map[string]any:
		return fmt.Sprintf("%v/%v", v["value"], v["max"])
	default:
		return fmt.Sprint(payload)
	}
}

// PrintJobSummary outputs the final state of a job with its per-target results.
func (p *Printer) PrintJobSummary(job *types.Job) {
	if job == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ID:       %s\n", job.ID))
	sb.WriteString(fmt.Sprintf("Kind:     %s\n", job.Kind))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("Progress: %d/%d\n", job.Progress.Current, job.Progress.Total))
	sb.WriteString(fmt.Sprintf("Duration: %s", job.UpdatedAt.Sub(job.CreatedAt).Round(time.Second)))
	if job.Error != nil {
		sb.WriteString(fmt.Sprintf("\nError:    %s", *job.Error))
	}

	if len(job.Targets) > 0 {
		sb.WriteString("\n\nTargets:")
		for _, t := range job.Targets {
			sb.WriteString(fmt.Sprintf("\n  • %s: %s", t.Label, t.Status))
			if t.Error != "" {
				sb.WriteString(fmt.Sprintf(" (%s)", t.Error))
			}
		}
	}

	if len(job.Log) > 0 {
		sb.WriteString("\n\nLog:")
		start := 0
		if len(job.Log) > maxLogLines {
			start = len(job.Log) - maxLogLines
			sb.WriteString(fmt.Sprintf("\n  ... %d earlier lines", start))
		}
		for _, line := range job.Log[start:] {
			sb.WriteString("\n  " + line)
		}
	}

	p.printBox("INGESTION JOB", sb.String())
}

// PrintSweepResult outputs the totals of a price sweep.
func (p *Printer) PrintSweepResult(res pricing.SweepResult) {
	content := fmt.Sprintf("Checked: %d\nUpdated: %d\nFailed:  %d\nAlerts:  %d",
		res.Checked, res.Updated, res.Failed, res.Alerts)
	p.printBox("PRICE SWEEP", content)
}
