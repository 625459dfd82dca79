package pipeline

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"bulkpress/internal/cache"
	"bulkpress/internal/models"
	"bulkpress/internal/provider"
)

func newTestCache(t *testing.T) *cache.Manager {
	t.Helper()
	mgr, err := cache.NewManager(cache.Options{LocalSize: 256})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return mgr
}

func newTestExecutor(cfg models.JobConfig, providers ...provider.Provider) *Executor {
	byCap := make(map[models.Capability][]provider.Provider)
	for _, p := range providers {
		byCap[p.Capability()] = append(byCap[p.Capability()], p)
	}
	chains := make(map[models.Capability]Invoker)
	for c, ps := range byCap {
		chains[c] = provider.NewChain(c, ps, provider.ChainOptions{Retry: cfg.Retry, CallTimeout: cfg.StageTimeout})
	}
	return NewExecutor(chains, cfg, nil)
}

func stagesOf(attempts []models.ProviderAttempt) []models.Stage {
	var out []models.Stage
	for _, a := range attempts {
		if len(out) == 0 || out[len(out)-1] != a.Stage {
			out = append(out, a.Stage)
		}
	}
	return out
}

func TestExecutor_AllStagesSucceed(t *testing.T) {
	e := newTestExecutor(testConfig(),
		newFake("serp", models.CapabilityResearch, researchOK),
		newFake("writer", models.CapabilityContent, writerOK),
		newFake("stock", models.CapabilityImage, imagesOK),
	)

	res := e.Execute(context.Background(), "cold brew", 0)
	if !res.IsSuccess() {
		t.Fatalf("Execute() failed: %s %s", res.ErrorKind, res.Error)
	}
	want := []models.Stage{models.StageResearch, models.StageOutline, models.StageContent, models.StageImage}
	if got := stagesOf(res.Attempts); !slices.Equal(got, want) {
		t.Errorf("stage order = %v, want %v", got, want)
	}
	if len(res.Degraded) != 0 {
		t.Errorf("Degraded = %v, want none", res.Degraded)
	}

	a := res.Payload
	if a.Title != "All about cold brew" {
		t.Errorf("Title = %q", a.Title)
	}
	if a.Outline.Title != "Guide to cold brew" {
		t.Errorf("Outline.Title = %q", a.Outline.Title)
	}
	if len(a.Research.RelatedKeywords) != 1 {
		t.Errorf("Research = %+v", a.Research)
	}
	if len(a.Images) != 3 {
		t.Errorf("Images = %v, want MaxImages=3 entries", a.Images)
	}
	if res.Duration <= 0 {
		t.Error("Duration not recorded")
	}
}

func TestExecutor_Degradation(t *testing.T) {
	down := fail(provider.Permanent(errors.New("down")))

	tests := []struct {
		name         string
		research     handler
		writer       handler
		images       handler
		wantDegraded []models.Stage
		check        func(t *testing.T, a *models.Article)
	}{
		{
			name:         "research exhausted uses empty context",
			research:     down,
			writer:       writerOK,
			images:       imagesOK,
			wantDegraded: []models.Stage{models.StageResearch},
			check: func(t *testing.T, a *models.Article) {
				if a.Research.Competition != "unknown" || len(a.Research.RelatedKeywords) != 0 {
					t.Errorf("Research = %+v, want empty research", a.Research)
				}
			},
		},
		{
			name:     "outline exhausted uses default outline",
			research: researchOK,
			writer: func(ctx context.Context, req stageReq) ([]byte, error) {
				if req.Task == TaskOutline {
					return nil, provider.Permanent(errors.New("outline refused"))
				}
				return writerOK(ctx, req)
			},
			images:       imagesOK,
			wantDegraded: []models.Stage{models.StageOutline},
			check: func(t *testing.T, a *models.Article) {
				if a.Outline.Title != "The Complete Guide to Cold Brew" {
					t.Errorf("Outline.Title = %q", a.Outline.Title)
				}
			},
		},
		{
			name:     "unusable outline counts as a failure",
			research: researchOK,
			writer: func(ctx context.Context, req stageReq) ([]byte, error) {
				if req.Task == TaskOutline {
					return []byte(`{"title":"","h2_sections":[]}`), nil
				}
				return writerOK(ctx, req)
			},
			images:       imagesOK,
			wantDegraded: []models.Stage{models.StageOutline},
		},
		{
			name:         "images exhausted still succeeds",
			research:     researchOK,
			writer:       writerOK,
			images:       down,
			wantDegraded: []models.Stage{models.StageImage},
			check: func(t *testing.T, a *models.Article) {
				if len(a.Images) != 0 {
					t.Errorf("Images = %v, want none", a.Images)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExecutor(testConfig(),
				newFake("serp", models.CapabilityResearch, tt.research),
				newFake("writer", models.CapabilityContent, tt.writer),
				newFake("stock", models.CapabilityImage, tt.images),
			)
			res := e.Execute(context.Background(), "cold brew", 0)
			if !res.IsSuccess() {
				t.Fatalf("Execute() failed: %s %s", res.ErrorKind, res.Error)
			}
			if !slices.Equal(res.Degraded, tt.wantDegraded) {
				t.Errorf("Degraded = %v, want %v", res.Degraded, tt.wantDegraded)
			}
			if tt.check != nil {
				tt.check(t, res.Payload)
			}
		})
	}
}

func TestExecutor_ContentExhaustedFailsTask(t *testing.T) {
	e := newTestExecutor(testConfig(),
		newFake("serp", models.CapabilityResearch, researchOK),
		newFake("writer", models.CapabilityContent, func(ctx context.Context, req stageReq) ([]byte, error) {
			if req.Task == TaskContent {
				return []byte(`{"content":"   "}`), nil
			}
			return writerOK(ctx, req)
		}),
		newFake("stock", models.CapabilityImage, imagesOK),
	)

	res := e.Execute(context.Background(), "cold brew", 4)
	if res.IsSuccess() || res.Payload != nil {
		t.Fatalf("Execute() = %+v, want failure", res)
	}
	if res.ErrorKind != models.KindExhausted {
		t.Errorf("ErrorKind = %s, want %s", res.ErrorKind, models.KindExhausted)
	}
	if res.Position != 4 {
		t.Errorf("Position = %d, want 4", res.Position)
	}
	for _, a := range res.Attempts {
		if a.Stage == models.StageImage {
			t.Error("image stage ran after content failed")
		}
	}
}

func TestExecutor_ImagesDisabled(t *testing.T) {
	stock := newFake("stock", models.CapabilityImage, imagesOK)
	cfg := testConfig()
	cfg.GenerateImages = false
	e := newTestExecutor(cfg, newFake("writer", models.CapabilityContent, writerOK), stock)

	res := e.Execute(context.Background(), "cold brew", 0)
	if !res.IsSuccess() {
		t.Fatalf("Execute() failed: %s", res.Error)
	}
	if stock.calls.Load() != 0 {
		t.Error("image provider called with images disabled")
	}
	// No research provider registered at all.
	if !slices.Equal(res.Degraded, []models.Stage{models.StageResearch}) {
		t.Errorf("Degraded = %v", res.Degraded)
	}
}

func TestExecutor_TaskTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.TaskTimeout = 40 * time.Millisecond

	e := newTestExecutor(cfg,
		newFake("serp", models.CapabilityResearch, researchOK),
		newFake("writer", models.CapabilityContent, func(ctx context.Context, req stageReq) ([]byte, error) {
			if req.Task == TaskContent {
				time.Sleep(200 * time.Millisecond)
			}
			return writerOK(ctx, req)
		}),
	)

	start := time.Now()
	res := e.Execute(context.Background(), "cold brew", 0)
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("Execute() took %v, timeout not enforced", elapsed)
	}
	if res.ErrorKind != models.KindTimeout {
		t.Errorf("ErrorKind = %s, want %s (%s)", res.ErrorKind, models.KindTimeout, res.Error)
	}
	if res.Payload != nil {
		t.Error("timed out task must not carry a payload")
	}
	if len(res.Attempts) == 0 {
		t.Error("attempts before the timeout should be kept")
	}
}

func TestExecutor_StageTimeoutFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.StageTimeout = 20 * time.Millisecond
	cfg.Retry.MaxRetries = 0

	slow := newFake("slow", models.CapabilityContent, func(ctx context.Context, req stageReq) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := newTestExecutor(cfg, slow, newFake("backup", models.CapabilityContent, writerOK))

	res := e.Execute(context.Background(), "cold brew", 0)
	if !res.IsSuccess() {
		t.Fatalf("Execute() failed: %s %s", res.ErrorKind, res.Error)
	}
	if res.Payload.Title != "All about cold brew" {
		t.Errorf("Title = %q", res.Payload.Title)
	}
}

func TestExecutor_CanceledBeforeStart(t *testing.T) {
	writer := newFake("writer", models.CapabilityContent, writerOK)
	e := newTestExecutor(testConfig(), writer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := e.Execute(ctx, "cold brew", 0)
	if res.ErrorKind != models.KindCanceled {
		t.Errorf("ErrorKind = %s, want Canceled", res.ErrorKind)
	}
	if writer.calls.Load() != 0 {
		t.Error("provider called on a canceled context")
	}
}

func TestDecoders(t *testing.T) {
	if _, err := decodeOutline([]byte(`not json`)); err == nil {
		t.Error("decodeOutline accepted invalid JSON")
	}
	if _, err := decodeImages([]byte(`{"urls":[" ",""]}`)); !errors.Is(err, errNoImages) {
		t.Errorf("decodeImages(blank) error = %v", err)
	}
	c, err := decodeContent([]byte(`{"content":"one two three"}`))
	if err != nil || c.WordCount != 3 {
		t.Errorf("decodeContent() = %+v, %v", c, err)
	}
	r, err := decodeResearch([]byte(`{"keyword":"x"}`))
	if err != nil || r.Questions == nil {
		t.Errorf("decodeResearch() = %+v, %v", r, err)
	}
}
