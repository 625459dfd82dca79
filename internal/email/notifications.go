package email

import (
	"log/slog"

	"bulkpress/internal/config"
	"bulkpress/internal/models"
	"bulkpress/internal/pipeline"
)

// Sender delivers rendered mail.
type Sender interface {
	IsEnabled() bool
	SendAsync(to []string, subject, htmlBody, textBody string)
	Wait()
}

// Notifier mails a summary of every job that had failures. It plugs into
// the orchestrator as a metrics sink that only observes finished jobs.
type Notifier struct {
	pipeline.NopSink

	sender     Sender
	templates  *Templates
	recipients []string
	logger     *slog.Logger
}

// NewNotifier creates a new email notifier.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	return newNotifier(cfg, NewService(cfg, logger), logger)
}

func newNotifier(cfg *config.Config, sender Sender, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		sender:     sender,
		templates:  NewTemplates(cfg),
		recipients: cfg.NotifyRecipients(),
		logger:     logger,
	}
}

// IsEnabled returns true if the notifier can send and has recipients.
func (n *Notifier) IsEnabled() bool {
	return n.sender.IsEnabled() && len(n.recipients) > 0
}

// JobFinished notifies recipients when the report contains failures.
func (n *Notifier) JobFinished(report *models.AggregateReport) {
	if !n.IsEnabled() || report == nil || report.Failed == 0 {
		return
	}

	subject, htmlBody, textBody := n.templates.JobReport(report)
	n.logger.Debug("sending job report", "job_id", report.JobID, "recipients", len(n.recipients))
	n.sender.SendAsync(n.recipients, subject, htmlBody, textBody)
}

// Wait blocks until pending report mails have been handed to the SMTP
// server or have failed.
func (n *Notifier) Wait() {
	n.sender.Wait()
}
