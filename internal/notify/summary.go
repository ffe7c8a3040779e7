package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/purchase-tracker/internal/types"
)

const (
	ColorFailure = 15158332
	ColorSuccess = 3066993

	// maxLogChars keeps the embed description under Discord's 4096 limit.
	maxLogChars = 3800
)

// Embed is a Discord webhook embed.
type Embed struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Color       int         `json:"color"`
	Footer      EmbedFooter `json:"footer"`
}

// EmbedFooter is the footer of an Embed.
type EmbedFooter struct {
	Text string `json:"text"`
}

// EmbedPayload is the body Discord expects.
type EmbedPayload struct {
	Embeds []Embed `json:"embeds"`
}

// ShouldSend applies a user's job notification preference.
func ShouldSend(pref types.NotificationPreference, hasError bool) bool {
	switch pref {
	case types.NotifyAlways:
		return true
	case types.NotifyErrorsOnly:
		return hasError
	default:
		return false
	}
}

// JobSummary builds the completion embed for a finished job. automated marks
// scheduled runs started by the cron trigger rather than by a person.
func JobSummary(job *types.Job, automated bool, now time.Time) EmbedPayload {
	var title, description string
	var lines []string
	failed := job.Status == types.JobStatusFailed

	switch job.Kind {
	case types.JobKindScheduled:
		failed = failed || job.FailedTargets() > 0
		base := "Scheduled Ingestion Run Finished"
		if automated {
			base = "Automated Daily Ingestion Finished"
		}
		if failed {
			title = base + " with Errors"
			description = "The scheduled data ingestion process ran, but one or more users failed."
		} else {
			title = base + " Successfully"
			description = "The scheduled data ingestion process completed for all users."
		}
		if job.Error != nil {
			lines = append(lines, "CRITICAL JOB ERROR: "+*job.Error, "")
		}
		for _, t := range job.Targets {
			lines = append(lines, fmt.Sprintf("--- User: %s | Status: %s ---", t.Label, strings.ToUpper(string(t.Status))))
			if t.Status == types.TargetFailed {
				lines = append(lines, "ERROR: "+t.Error)
			}
			lines = append(lines, "")
		}
		lines = append(lines, job.Log...)
	default:
		if failed {
			title = fmt.Sprintf("Manual Ingestion Job Failed (ID: %s)", job.ID)
			description = "Your manually triggered ingestion job has failed."
		} else {
			title = fmt.Sprintf("Manual Ingestion Job Completed (ID: %s)", job.ID)
			description = "Your manually triggered ingestion job has finished successfully."
		}
		lines = job.Log
	}

	color := ColorSuccess
	if failed {
		color = ColorFailure
	}

	return EmbedPayload{Embeds: []Embed{{
		Title:       title,
		Description: description + "\n\n**Verbose Log:**\n```\n" + truncateLog(lines) + "\n```",
		Color:       color,
		Footer:      EmbedFooter{Text: "Report generated at " + now.UTC().Format("2006-01-02 15:04:05") + " UTC"},
	}}}
}

// SummaryFailed reports whether a finished job counts as an error for preferences.
func SummaryFailed(job *types.Job) bool {
	return job.Status == types.JobStatusFailed || job.FailedTargets() > 0
}

// SendJobSummary posts the job's summary embed to url, logging failures.
func (d *Dispatcher) SendJobSummary(ctx context.Context, url string, job *types.Job, automated bool) {
	d.Dispatch(ctx, url, JobSummary(job, automated, time.Now()))
}

func truncateLog(lines []string) string {
	content := strings.Join(lines, "\n")
	if len(content) > maxLogChars {
		content = content[:maxLogChars] + "\n... (log truncated)"
	}
	return content
}
