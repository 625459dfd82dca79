package models

import (
	"time"

	"github.com/google/uuid"
)

// AggregateReport is the ordered, read-only outcome of a job.
type AggregateReport struct {
	JobID      uuid.UUID    `json:"job_id"`
	Total      int          `json:"total"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Results    []TaskResult `json:"results"`
}

// NewAggregateReport derives the counts from results, which must already be
// in input order.
func NewAggregateReport(jobID uuid.UUID, startedAt, finishedAt time.Time, results []TaskResult) *AggregateReport {
	report := &AggregateReport{
		JobID:      jobID,
		Total:      len(results),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Results:    results,
	}
	for i := range results {
		if results[i].IsSuccess() {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	return report
}

// Summary returns the report without per-task results.
func (r *AggregateReport) Summary() JobSummary {
	return JobSummary{
		JobID:      r.JobID,
		Total:      r.Total,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// FailuresByKind counts failed results per error kind.
func (r *AggregateReport) FailuresByKind() map[ErrorKind]int {
	counts := make(map[ErrorKind]int)
	for _, res := range r.Results {
		if !res.IsSuccess() {
			counts[res.ErrorKind]++
		}
	}
	return counts
}

// JobSummary is a compact listing entry for a finished job.
type JobSummary struct {
	JobID      uuid.UUID `json:"job_id"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
