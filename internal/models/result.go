package models

import "time"

// Task status constants
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Stage identifies one step of the per-keyword pipeline.
type Stage string

// Pipeline stages, in execution order.
const (
	StageResearch Stage = "research"
	StageOutline  Stage = "outline"
	StageContent  Stage = "content"
	StageImage    Stage = "image"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageResearch, StageOutline, StageContent, StageImage}

// Attempt outcome constants
const (
	OutcomeHitCache    = "hit_cache"
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// ErrorKind classifies why a task (or a job) failed.
type ErrorKind string

const (
	KindValidation        ErrorKind = "ValidationError"
	KindRateLimitExceeded ErrorKind = "RateLimitExceeded"
	KindTransient         ErrorKind = "ProviderTransientError"
	KindPermanent         ErrorKind = "ProviderPermanentError"
	KindExhausted         ErrorKind = "AllProvidersExhausted"
	KindTimeout           ErrorKind = "TimeoutError"
	KindConfiguration     ErrorKind = "ConfigurationError"
	KindCanceled          ErrorKind = "Canceled"
	KindInternal          ErrorKind = "InternalError"
)

// ProviderAttempt is one entry of a task's audit trail.
type ProviderAttempt struct {
	Provider string        `json:"provider"`
	Stage    Stage         `json:"stage"`
	Outcome  string        `json:"outcome"`
	Latency  time.Duration `json:"latency_ns"`
	Error    string        `json:"error,omitempty"`
}

// TaskResult is the outcome of running one keyword through the pipeline.
type TaskResult struct {
	Keyword   string            `json:"keyword"`
	Position  int               `json:"position"`
	Status    string            `json:"status"`
	Payload   *Article          `json:"payload,omitempty"`
	ErrorKind ErrorKind         `json:"error_kind,omitempty"`
	Error     string            `json:"error,omitempty"`
	Degraded  []Stage           `json:"degraded_stages,omitempty"`
	Attempts  []ProviderAttempt `json:"attempts"`
	Duration  time.Duration     `json:"duration_ns"`
}

// IsSuccess returns true if the task produced a payload.
func (r *TaskResult) IsSuccess() bool {
	return r.Status == StatusSuccess
}

// ProviderInvocations counts attempts that reached a provider, excluding
// cache hits and rate-limit rejections.
func (r *TaskResult) ProviderInvocations() int {
	n := 0
	for _, a := range r.Attempts {
		if a.Outcome == OutcomeSuccess || a.Outcome == OutcomeError {
			n++
		}
	}
	return n
}

// FailedResult builds a Failed result that carries no payload.
func FailedResult(keyword string, position int, kind ErrorKind, err error, attempts []ProviderAttempt) TaskResult {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if attempts == nil {
		attempts = []ProviderAttempt{}
	}
	return TaskResult{
		Keyword:   keyword,
		Position:  position,
		Status:    StatusFailed,
		ErrorKind: kind,
		Error:     msg,
		Attempts:  attempts,
	}
}
