package db

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"bulkpress/internal/models"
)

// MemoryReports is a process-local ReportStore used when no database is
// configured. It keeps at most capacity reports, evicting the oldest.
type MemoryReports struct {
	mu       sync.RWMutex
	capacity int
	order    []uuid.UUID
	reports  map[uuid.UUID]*models.AggregateReport
}

var _ ReportStore = (*MemoryReports)(nil)

// NewMemoryReports creates an in-memory store. A capacity below 1 keeps
// DefaultListLimit reports.
func NewMemoryReports(capacity int) *MemoryReports {
	if capacity < 1 {
		capacity = DefaultListLimit
	}
	return &MemoryReports{
		capacity: capacity,
		reports:  make(map[uuid.UUID]*models.AggregateReport),
	}
}

func (m *MemoryReports) SaveReport(_ context.Context, report *models.AggregateReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reports[report.JobID]; ok {
		return ErrDuplicateJob
	}
	if len(m.order) >= m.capacity {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.reports, oldest)
	}
	m.order = append(m.order, report.JobID)
	m.reports[report.JobID] = report
	return nil
}

func (m *MemoryReports) GetReport(_ context.Context, jobID uuid.UUID) (*models.AggregateReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report, ok := m.reports[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return report, nil
}

func (m *MemoryReports) ListReports(_ context.Context, limit int) ([]models.JobSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	m.mu.RLock()
	summaries := make([]models.JobSummary, 0, len(m.reports))
	for _, r := range m.reports {
		summaries = append(summaries, r.Summary())
	}
	m.mu.RUnlock()

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].FinishedAt.After(summaries[j].FinishedAt)
	})
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (m *MemoryReports) GetResultCounts(_ context.Context) ([]models.ResultCount, error) {
	type key struct {
		status string
		kind   models.ErrorKind
	}

	m.mu.RLock()
	counts := make(map[key]int64)
	for _, r := range m.reports {
		for _, res := range r.Results {
			counts[key{res.Status, res.ErrorKind}]++
		}
	}
	m.mu.RUnlock()

	out := make([]models.ResultCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, models.ResultCount{Status: k.status, ErrorKind: k.kind, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status < out[j].Status
		}
		return out[i].ErrorKind < out[j].ErrorKind
	})
	return out, nil
}
