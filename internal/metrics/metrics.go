package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bulkpress/internal/cache"
	"bulkpress/internal/db"
	"bulkpress/internal/jobs"
	"bulkpress/internal/models"
	"bulkpress/internal/pipeline"
)

const namespace = "bulkpress"

var (
	persistedResultsDesc = prometheus.NewDesc(
		namespace+"_persisted_task_results",
		"Persisted task results by status and error kind",
		[]string{"status", "error_kind"},
		nil,
	)

	cacheHitsDesc = prometheus.NewDesc(
		namespace+"_cache_hits_total",
		"Cache hits by level",
		[]string{"level"},
		nil,
	)
	cacheMissesDesc  = prometheus.NewDesc(namespace+"_cache_misses_total", "Cache misses", nil, nil)
	cacheWritesDesc  = prometheus.NewDesc(namespace+"_cache_writes_total", "Cache writes", nil, nil)
	cacheErrorsDesc  = prometheus.NewDesc(namespace+"_cache_errors_total", "Shared cache level errors", nil, nil)
	cacheEntriesDesc = prometheus.NewDesc(namespace+"_cache_local_entries", "Entries in the local cache level", nil, nil)
)

// ResultCollector is a custom Prometheus collector that reads persisted
// task result counts from the report store on each scrape.
type ResultCollector struct {
	store   db.ReportStore
	timeout time.Duration
}

// NewResultCollector creates a collector over store.
func NewResultCollector(store db.ReportStore) *ResultCollector {
	return &ResultCollector{store: store, timeout: 5 * time.Second}
}

// Describe sends the metric descriptor to the channel.
func (c *ResultCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- persistedResultsDesc
}

// Collect queries the store and emits one sample per status and kind.
func (c *ResultCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	counts, err := c.store.GetResultCounts(ctx)
	if err != nil {
		slog.Error("failed to collect task result metrics", "error", err)
		return
	}
	for _, rc := range counts {
		ch <- prometheus.MustNewConstMetric(
			persistedResultsDesc,
			prometheus.GaugeValue,
			float64(rc.Count),
			rc.Status,
			string(rc.ErrorKind),
		)
	}
}

// CacheCollector exports cache manager statistics on each scrape.
type CacheCollector struct {
	stats func() cache.Stats
}

// NewCacheCollector creates a collector reading stats from fn.
func NewCacheCollector(fn func() cache.Stats) *CacheCollector {
	return &CacheCollector{stats: fn}
}

func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cacheHitsDesc
	ch <- cacheMissesDesc
	ch <- cacheWritesDesc
	ch <- cacheErrorsDesc
	ch <- cacheEntriesDesc
}

func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(cacheHitsDesc, prometheus.CounterValue, float64(s.LocalHits), "local")
	ch <- prometheus.MustNewConstMetric(cacheHitsDesc, prometheus.CounterValue, float64(s.SharedHits), "shared")
	ch <- prometheus.MustNewConstMetric(cacheMissesDesc, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(cacheWritesDesc, prometheus.CounterValue, float64(s.Writes))
	ch <- prometheus.MustNewConstMetric(cacheErrorsDesc, prometheus.CounterValue, float64(s.Errors))
	ch <- prometheus.MustNewConstMetric(cacheEntriesDesc, prometheus.GaugeValue, float64(s.LocalSize))
}

// Recorder turns orchestrator events and resource samples into Prometheus
// metrics.
type Recorder struct {
	activeTasks  prometheus.Gauge
	tasks        *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	attempts     *prometheus.CounterVec
	degraded     *prometheus.CounterVec
	jobs         prometheus.Counter
	jobKeywords  prometheus.Histogram

	goroutines   prometheus.Gauge
	heapBytes    prometheus.Gauge
	cacheEntries prometheus.Gauge
}

var (
	_ pipeline.MetricsSink = (*Recorder)(nil)
	_ jobs.ResourceSink    = (*Recorder)(nil)
)

// NewRecorder creates a recorder and registers its metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_active",
			Help:      "Tasks currently running",
		}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Finished tasks by status and error kind",
		}, []string{"status", "error_kind"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task wall time by status",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Provider attempts by provider, stage and outcome",
		}, []string{"provider", "stage", "outcome"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_stages_total",
			Help:      "Stages that fell back to default data",
		}, []string{"stage"}),
		jobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished jobs",
		}),
		jobKeywords: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_keywords",
			Help:      "Keywords per finished job",
			Buckets:   []float64{1, 5, 10, 25, 50, 100},
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_goroutines",
			Help:      "Goroutines at the last resource sample",
		}),
		heapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_heap_alloc_bytes",
			Help:      "Heap bytes allocated at the last resource sample",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_cache_entries",
			Help:      "Local cache entries at the last resource sample",
		}),
	}

	reg.MustRegister(
		r.activeTasks, r.tasks, r.taskDuration, r.attempts, r.degraded,
		r.jobs, r.jobKeywords, r.goroutines, r.heapBytes, r.cacheEntries,
	)
	return r
}

// TaskStarted implements pipeline.MetricsSink.
func (r *Recorder) TaskStarted() {
	r.activeTasks.Inc()
}

// TaskFinished implements pipeline.MetricsSink.
func (r *Recorder) TaskFinished(result models.TaskResult) {
	r.activeTasks.Dec()
	r.tasks.WithLabelValues(result.Status, string(result.ErrorKind)).Inc()
	r.taskDuration.WithLabelValues(result.Status).Observe(result.Duration.Seconds())
	for _, a := range result.Attempts {
		r.attempts.WithLabelValues(a.Provider, string(a.Stage), a.Outcome).Inc()
	}
	for _, s := range result.Degraded {
		r.degraded.WithLabelValues(string(s)).Inc()
	}
}

// JobFinished implements pipeline.MetricsSink.
func (r *Recorder) JobFinished(report *models.AggregateReport) {
	r.jobs.Inc()
	r.jobKeywords.Observe(float64(report.Total))
}

// RecordResources implements jobs.ResourceSink.
func (r *Recorder) RecordResources(s jobs.Sample) {
	r.goroutines.Set(float64(s.Goroutines))
	r.heapBytes.Set(float64(s.HeapAlloc))
	r.cacheEntries.Set(float64(s.CacheEntries))
}
