package publish

import (
	"context"
	"log/slog"

	"bulkpress/internal/models"
)

// Outcome is the publishing result for one keyword.
type Outcome struct {
	Keyword  string `json:"keyword"`
	Position int    `json:"position"`
	Location string `json:"location,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Dispatcher publishes every successful result of a report exactly once.
// Failed publishes are reported, not retried.
type Dispatcher struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(publisher Publisher, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{publisher: publisher, logger: logger}
}

// Dispatch publishes the report's successful results in order. Results
// without a payload are skipped. Once ctx ends, the remaining results are
// reported with the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, report *models.AggregateReport) []Outcome {
	outcomes := []Outcome{}
	for _, r := range report.Results {
		if !r.IsSuccess() || r.Payload == nil {
			continue
		}
		out := Outcome{Keyword: r.Keyword, Position: r.Position}
		if err := ctx.Err(); err != nil {
			out.Error = err.Error()
			outcomes = append(outcomes, out)
			continue
		}

		location, err := d.publisher.Publish(ctx, PostFromArticle(r.Payload))
		if err != nil {
			out.Error = err.Error()
			d.logger.Warn("publish failed", "job_id", report.JobID, "keyword", r.Keyword, "error", err)
		} else {
			out.Location = location
			d.logger.Info("published", "job_id", report.JobID, "keyword", r.Keyword, "location", location)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}
