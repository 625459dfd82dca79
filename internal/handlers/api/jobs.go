package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"bulkpress/internal/db"
	"bulkpress/internal/models"
	"bulkpress/internal/pipeline"
	"bulkpress/internal/publish"
	"bulkpress/internal/validation"
)

// JobRunner runs a job to completion.
type JobRunner interface {
	Run(ctx context.Context, job *models.Job) (*models.AggregateReport, error)
}

// JobHandler runs keyword batches and serves their reports via JSON API.
type JobHandler struct {
	runner      JobRunner
	store       db.ReportStore
	dispatcher  *publish.Dispatcher
	defaults    models.JobConfig
	maxKeywords int
	logger      *slog.Logger
}

// NewJobHandler creates a new API job handler. dispatcher may be nil when
// publishing is not configured.
func NewJobHandler(runner JobRunner, store db.ReportStore, dispatcher *publish.Dispatcher, defaults models.JobConfig, maxKeywords int, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{
		runner:      runner,
		store:       store,
		dispatcher:  dispatcher,
		defaults:    defaults,
		maxKeywords: maxKeywords,
		logger:      logger,
	}
}

// CreateJobRequest is the body of POST /api/v1/jobs. Keywords may be given
// as a list, as text with one keyword per line, or both.
type CreateJobRequest struct {
	Keywords       []string `json:"keywords"`
	Text           string   `json:"text"`
	Concurrency    *int     `json:"concurrency"`
	GenerateImages *bool    `json:"generate_images"`
	MaxImages      *int     `json:"max_images"`
	Language       string   `json:"language"`
	ContentLength  *int     `json:"content_length"`
	Publish        bool     `json:"publish"`
}

// JobResponse is the result of a synchronous job run.
type JobResponse struct {
	Report    *models.AggregateReport `json:"report"`
	Published []publish.Outcome       `json:"published,omitempty"`
}

// config applies the request overrides to the server defaults.
func (r *CreateJobRequest) config(defaults models.JobConfig) models.JobConfig {
	cfg := defaults
	if r.Concurrency != nil {
		cfg.Concurrency = *r.Concurrency
	}
	if r.GenerateImages != nil {
		cfg.GenerateImages = *r.GenerateImages
	}
	if r.MaxImages != nil {
		cfg.MaxImages = *r.MaxImages
	}
	if r.Language != "" {
		cfg.Language = r.Language
	}
	if r.ContentLength != nil {
		cfg.ContentLength = *r.ContentLength
	}
	return cfg
}

func (r *CreateJobRequest) keywords() []string {
	out := append([]string(nil), r.Keywords...)
	if strings.TrimSpace(r.Text) != "" {
		out = append(out, validation.ParseKeywordLines(r.Text)...)
	}
	return out
}

// Create runs a batch synchronously, stores its report and optionally
// publishes the successful articles.
func (h *JobHandler) Create(c fiber.Ctx) error {
	var body CreateJobRequest
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if body.Publish && h.dispatcher == nil {
		return jsonError(c, fiber.StatusBadRequest, "publishing is not configured")
	}

	job, err := pipeline.NewJob(body.keywords(), body.config(h.defaults), h.maxKeywords)
	if err != nil {
		if errors.Is(err, pipeline.ErrValidation) || errors.Is(err, pipeline.ErrConfiguration) {
			return jsonError(c, fiber.StatusBadRequest, err.Error())
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to create job")
	}

	ctx := c.Context()
	report, runErr := h.runner.Run(ctx, job)
	if report == nil {
		if errors.Is(runErr, pipeline.ErrValidation) {
			return jsonError(c, fiber.StatusBadRequest, runErr.Error())
		}
		h.logger.Error("job run failed", "job_id", job.ID(), "error", runErr)
		return jsonError(c, fiber.StatusInternalServerError, "failed to run job")
	}

	if err := h.store.SaveReport(ctx, report); err != nil {
		h.logger.Error("failed to save report", "job_id", report.JobID, "error", err)
	}

	resp := JobResponse{Report: report}
	if runErr != nil {
		return jsonErrorData(c, fiber.StatusInternalServerError, runErr.Error(), resp)
	}

	if body.Publish {
		resp.Published = h.dispatcher.Dispatch(ctx, report)
	}
	return jsonSuccess(c, resp)
}

// List returns the most recent job summaries.
func (h *JobHandler) List(c fiber.Ctx) error {
	limit := db.DefaultListLimit
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			return jsonError(c, fiber.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	summaries, err := h.store.ListReports(c.Context(), limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch jobs")
	}
	if summaries == nil {
		summaries = []models.JobSummary{}
	}
	return jsonSuccess(c, summaries)
}

// Get returns the full report of one job.
func (h *JobHandler) Get(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid job id")
	}

	report, err := h.store.GetReport(c.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrJobNotFound) {
			return jsonError(c, fiber.StatusNotFound, "job not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch job")
	}

	return jsonSuccess(c, report)
}
