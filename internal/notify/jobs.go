package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathan/purchase-tracker/internal/logging"
	"github.com/jonathan/purchase-tracker/internal/types"
)

// SettingsLookup resolves whose webhook receives a job summary.
type SettingsLookup interface {
	NotificationSettings(ctx context.Context, userID uuid.UUID) (*types.NotificationSettings, error)
	AdminSettings(ctx context.Context) (*types.NotificationSettings, error)
}

// JobNotifier posts job summaries when ingestion jobs finish.
//
// Manual jobs report to the admin's webhook under the admin's preference.
// Cron-started scheduled runs always report to the admin when a webhook is
// set. Scheduled runs started by hand report to whoever started them, under
// their preference.
type JobNotifier struct {
	settings   SettingsLookup
	dispatcher *Dispatcher
	log        *logging.Logger
}

// NewJobNotifier creates a JobNotifier.
func NewJobNotifier(settings SettingsLookup, dispatcher *Dispatcher, log *logging.Logger) *JobNotifier {
	return &JobNotifier{
		settings:   settings,
		dispatcher: dispatcher,
		log:        logging.OrNop(log).With("component", "job_notifier"),
	}
}

// JobFinished sends the summary for job if the recipient wants it.
func (n *JobNotifier) JobFinished(ctx context.Context, job *types.Job, automated bool) {
	settings, err := n.recipient(ctx, job, automated)
	if err != nil {
		n.log.Warn("failed to resolve summary recipient", "job_id", job.ID, "error", err)
		return
	}
	if settings == nil || settings.JobWebhookURL == "" {
		return
	}

	forced := job.Kind == types.JobKindScheduled && automated
	if !forced && !ShouldSend(settings.JobPreference, SummaryFailed(job)) {
		n.log.Debug("job summary suppressed by preference", "job_id", job.ID, "preference", settings.JobPreference)
		return
	}
	n.dispatcher.SendJobSummary(ctx, settings.JobWebhookURL, job, automated)
}

func (n *JobNotifier) recipient(ctx context.Context, job *types.Job, automated bool) (*types.NotificationSettings, error) {
	if job.Kind == types.JobKindScheduled && !automated && job.TriggeredBy != nil {
		return n.settings.NotificationSettings(ctx, *job.TriggeredBy)
	}
	return n.settings.AdminSettings(ctx)
}
