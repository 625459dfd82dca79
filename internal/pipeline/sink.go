package pipeline

import "bulkpress/internal/models"

// MetricsSink receives task and job events from the orchestrator. Calls
// come from many goroutines at once.
type MetricsSink interface {
	TaskStarted()
	TaskFinished(result models.TaskResult)
	JobFinished(report *models.AggregateReport)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) TaskStarted()                        {}
func (NopSink) TaskFinished(models.TaskResult)      {}
func (NopSink) JobFinished(*models.AggregateReport) {}

// Sinks fans every event out to each non-nil sink in order.
func Sinks(sinks ...MetricsSink) MetricsSink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multiSink []MetricsSink

func (m multiSink) TaskStarted() {
	for _, s := range m {
		s.TaskStarted()
	}
}

func (m multiSink) TaskFinished(r models.TaskResult) {
	for _, s := range m {
		s.TaskFinished(r)
	}
}

func (m multiSink) JobFinished(r *models.AggregateReport) {
	for _, s := range m {
		s.JobFinished(r)
	}
}
