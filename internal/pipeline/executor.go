package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bulkpress/internal/models"
	"bulkpress/internal/provider"
)

// Invoker is a fallback chain for one capability.
type Invoker interface {
	Invoke(ctx context.Context, call provider.Call) ([]byte, []models.ProviderAttempt, error)
}

// Executor runs one keyword through research, outline, content and image
// stages. It is safe for concurrent use; all per-task state lives in
// Execute.
type Executor struct {
	chains map[models.Capability]Invoker
	cfg    models.JobConfig
	logger *slog.Logger
}

// NewExecutor creates an executor. A capability without a chain behaves
// like a chain with no providers.
func NewExecutor(chains map[models.Capability]Invoker, cfg models.JobConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{chains: chains, cfg: cfg, logger: logger}
}

// task is the mutable state of one Execute call.
type task struct {
	keyword  string
	attempts []models.ProviderAttempt
	degraded []models.Stage
}

// stageError ends a task with the given kind.
type stageError struct {
	kind models.ErrorKind
	err  error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// Execute runs the pipeline for keyword and always returns a well-formed
// result: a Success with the article payload or a Failed record without one.
func (e *Executor) Execute(ctx context.Context, keyword string, position int) models.TaskResult {
	start := time.Now()
	taskCtx := ctx
	if e.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, e.cfg.TaskTimeout)
		defer cancel()
	}

	t := &task{keyword: keyword}
	article, err := e.run(taskCtx, t)

	// A deadline that passed after the last stage still fails the task.
	if err == nil && taskCtx.Err() != nil {
		err = e.contextFailure(taskCtx.Err())
	}

	var result models.TaskResult
	if err != nil {
		kind := models.KindInternal
		var se *stageError
		if errors.As(err, &se) {
			kind = se.kind
		}
		result = models.FailedResult(keyword, position, kind, err, t.attempts)
		e.logger.Warn("task failed", "keyword", keyword, "kind", kind, "error", err)
	} else {
		result = models.TaskResult{
			Keyword:  keyword,
			Position: position,
			Status:   models.StatusSuccess,
			Payload:  article,
			Attempts: t.attempts,
		}
		if result.Attempts == nil {
			result.Attempts = []models.ProviderAttempt{}
		}
	}
	result.Degraded = t.degraded
	result.Duration = time.Since(start)
	return result
}

func (e *Executor) run(ctx context.Context, t *task) (*models.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, e.contextFailure(err)
	}

	research, err := invokeStage(ctx, e, t, models.StageResearch,
		ResearchRequest{Keyword: t.keyword, Language: e.cfg.Language}, decodeResearch)
	if err != nil {
		if !errors.Is(err, provider.ErrAllProvidersExhausted) {
			return nil, err
		}
		research = models.EmptyResearch(t.keyword)
		t.degraded = append(t.degraded, models.StageResearch)
	}

	outline, err := invokeStage(ctx, e, t, models.StageOutline,
		OutlineRequest{Task: TaskOutline, Keyword: t.keyword, Language: e.cfg.Language, Research: research}, decodeOutline)
	if err != nil {
		if !errors.Is(err, provider.ErrAllProvidersExhausted) {
			return nil, err
		}
		outline = models.DefaultOutline(t.keyword)
		t.degraded = append(t.degraded, models.StageOutline)
	}

	content, err := invokeStage(ctx, e, t, models.StageContent,
		ContentRequest{
			Task:     TaskContent,
			Keyword:  t.keyword,
			Language: e.cfg.Language,
			Length:   e.cfg.ContentLength,
			Outline:  outline,
			Research: research,
		}, decodeContent)
	if err != nil {
		if errors.Is(err, provider.ErrAllProvidersExhausted) {
			return nil, &stageError{kind: models.KindExhausted, err: err}
		}
		return nil, err
	}

	var images []string
	if e.cfg.GenerateImages && e.cfg.MaxImages > 0 {
		title := content.Title
		if title == "" {
			title = outline.Title
		}
		set, err := invokeStage(ctx, e, t, models.StageImage,
			ImageRequest{Keyword: t.keyword, Title: title, Count: e.cfg.MaxImages}, decodeImages)
		switch {
		case err == nil:
			images = set.URLs
			if len(images) > e.cfg.MaxImages {
				images = images[:e.cfg.MaxImages]
			}
		case errors.Is(err, provider.ErrAllProvidersExhausted):
			t.degraded = append(t.degraded, models.StageImage)
		default:
			return nil, err
		}
	}

	return models.NewArticle(t.keyword, research, outline, content, images), nil
}

// invokeStage encodes req, sends it through the stage's chain and decodes
// the accepted response. Errors are either an exhaustion error (the caller
// decides whether to degrade) or a *stageError ending the task.
func invokeStage[Req any, Resp any](ctx context.Context, e *Executor, t *task, stage models.Stage, req Req, decode func([]byte) (Resp, error)) (Resp, error) {
	var zero Resp

	input, err := json.Marshal(req)
	if err != nil {
		return zero, &stageError{kind: models.KindInternal, err: fmt.Errorf("encoding %s request: %w", stage, err)}
	}

	chain := e.chains[models.CapabilityFor(stage)]
	if chain == nil {
		return zero, &provider.ExhaustedError{Capability: models.CapabilityFor(stage), Stage: stage}
	}

	out, attempts, err := chain.Invoke(ctx, provider.Call{
		Stage:   stage,
		Keyword: t.keyword,
		Input:   input,
		TTL:     e.cfg.TTLFor(stage),
		Accept: func(b []byte) error {
			_, err := decode(b)
			return err
		},
	})
	t.attempts = append(t.attempts, attempts...)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, e.contextFailure(ctxErr)
		}
		if errors.Is(err, provider.ErrAllProvidersExhausted) {
			e.logger.Info("stage exhausted", "keyword", t.keyword, "stage", stage, "error", err)
			return zero, err
		}
		return zero, &stageError{kind: models.KindInternal, err: err}
	}

	resp, err := decode(out)
	if err != nil {
		return zero, &stageError{kind: models.KindInternal, err: fmt.Errorf("decoding %s response: %w", stage, err)}
	}
	return resp, nil
}

// contextFailure maps an ended context to Canceled or TimeoutError.
func (e *Executor) contextFailure(err error) error {
	if errors.Is(err, context.Canceled) {
		return &stageError{kind: models.KindCanceled, err: fmt.Errorf("task canceled: %w", err)}
	}
	limit := e.cfg.TaskTimeout
	if limit > 0 {
		return &stageError{kind: models.KindTimeout, err: fmt.Errorf("task exceeded %s: %w", limit, err)}
	}
	return &stageError{kind: models.KindTimeout, err: fmt.Errorf("task deadline exceeded: %w", err)}
}
