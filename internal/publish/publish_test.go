package publish

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"bulkpress/internal/models"
)

func TestRenderBody(t *testing.T) {
	tests := []struct {
		name    string
		post    Post
		want    []string
		notWant []string
	}{
		{
			name:    "strips styles and adds heading classes",
			post:    Post{Title: "T", Body: "<style>p{color:red}</style><h1>A</h1><h2>B</h2><h3>C</h3>"},
			want:    []string{`<h1 class="entry-title">A</h1>`, `<h2 class="section-title">`, `<h3 class="subsection-title">`},
			notWant: []string{"<style>", "color:red"},
		},
		{
			name: "responsive inline images",
			post: Post{Title: "T", Body: `<p><img src="a.jpg"></p><p><img src="b.jpg" /></p>`},
			want: []string{
				`<img src="a.jpg" class="wp-image-responsive" />`,
				`<img src="b.jpg" class="wp-image-responsive" />`,
			},
		},
		{
			name: "media refs appended as escaped figures",
			post: Post{Title: `Tips & "Tricks"`, Body: "<p>x</p>", MediaRefs: []string{"https://img.test/1.jpg?a=1&b=2"}},
			want: []string{
				`<figure class="wp-block-image"><img src="https://img.test/1.jpg?a=1&amp;b=2" alt="Tips &amp; &#34;Tricks&#34;" /></figure>`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderBody(tt.post)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("RenderBody() = %q, missing %q", got, w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("RenderBody() = %q, should not contain %q", got, w)
				}
			}
		})
	}
}

func TestWordPress_Publish(t *testing.T) {
	var got wpPost
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wp/v2/posts" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		user, pass, _ = r.BasicAuth()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":42,"link":"https://blog.test/?p=42"}`))
	}))
	defer srv.Close()

	wp, err := NewWordPress(WordPressConfig{BaseURL: srv.URL + "/", Username: "editor", Password: "app pass"}, srv.Client())
	if err != nil {
		t.Fatalf("NewWordPress() error = %v", err)
	}

	location, err := wp.Publish(context.Background(), Post{
		Title:     "Cold Brew Guide",
		Body:      "<p>body</p>",
		Excerpt:   "All about cold brew",
		MediaRefs: []string{"https://img.test/1.jpg"},
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if location != "https://blog.test/?p=42" {
		t.Errorf("Publish() = %q", location)
	}
	if user != "editor" || pass != "app pass" {
		t.Errorf("basic auth = %q/%q", user, pass)
	}
	if got.Status != "draft" || got.Title != "Cold Brew Guide" || got.Excerpt != "All about cold brew" {
		t.Errorf("posted = %+v", got)
	}
	if !strings.Contains(got.Content, "wp-block-image") {
		t.Errorf("content = %q, want appended figure", got.Content)
	}
}

func TestWordPress_PublishErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr string
	}{
		{name: "id without link", status: http.StatusCreated, body: `{"id":7}`, want: "7"},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"code":"rest_cannot_create"}`, wantErr: "status 401"},
		{name: "bad json", status: http.StatusCreated, body: `not json`, wantErr: "decoding"},
		{name: "no id", status: http.StatusCreated, body: `{}`, wantErr: "no post id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			wp, err := NewWordPress(WordPressConfig{BaseURL: srv.URL, Username: "u", Password: "p", Status: "publish"}, nil)
			if err != nil {
				t.Fatalf("NewWordPress() error = %v", err)
			}
			got, err := wp.Publish(context.Background(), Post{Title: "T", Body: "b"})
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("Publish() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Publish() = %q, %v, want %q", got, err, tt.want)
			}
		})
	}
}

func TestWordPress_PublishTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	wp, err := NewWordPress(WordPressConfig{BaseURL: srv.URL, Username: "u", Password: "p", Timeout: 50 * time.Millisecond}, srv.Client())
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if _, err := wp.Publish(context.Background(), Post{Title: "T", Body: "b"}); err == nil {
		t.Error("Publish() error = nil against a hung server")
	}
	if elapsed := time.Since(start); elapsed >= 500*time.Millisecond {
		t.Errorf("Publish() took %v, want it bounded by the 50ms timeout", elapsed)
	}

	def, err := NewWordPress(WordPressConfig{BaseURL: srv.URL, Username: "u", Password: "p"}, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	if def.client.Timeout != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", def.client.Timeout)
	}
}

func TestNewWordPress_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  WordPressConfig
	}{
		{"missing url", WordPressConfig{Username: "u", Password: "p"}},
		{"bad scheme", WordPressConfig{BaseURL: "ftp://blog.test", Username: "u", Password: "p"}},
		{"missing password", WordPressConfig{BaseURL: "https://blog.test", Username: "u"}},
		{"bad status", WordPressConfig{BaseURL: "https://blog.test", Username: "u", Password: "p", Status: "live"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewWordPress(tt.cfg, nil); err == nil {
				t.Error("NewWordPress() error = nil")
			}
		})
	}

	wp, err := NewWordPress(WordPressConfig{BaseURL: "https://blog.test", Username: "u", Password: "p"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wp.Publish(context.Background(), Post{Title: "  "}); err == nil {
		t.Error("Publish() accepted an empty title")
	}
}

type recordingPublisher struct {
	mu    sync.Mutex
	posts []Post
	fail  map[string]bool
}

func (p *recordingPublisher) Publish(_ context.Context, post Post) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, post)
	if p.fail[post.Title] {
		return "", errors.New("cms unavailable")
	}
	return "https://blog.test/" + strings.ToLower(strings.ReplaceAll(post.Title, " ", "-")), nil
}

func dispatchReport() *models.AggregateReport {
	ok := func(kw string, pos int) models.TaskResult {
		return models.TaskResult{
			Keyword:  kw,
			Position: pos,
			Status:   models.StatusSuccess,
			Payload:  &models.Article{Keyword: kw, Title: "About " + kw, Body: "<p>" + kw + "</p>", Images: []string{"https://img.test/" + kw}},
		}
	}
	results := []models.TaskResult{
		ok("tea", 0),
		models.FailedResult("coffee", 1, models.KindTimeout, errors.New("deadline"), nil),
		ok("matcha", 2),
	}
	now := time.Now()
	return models.NewAggregateReport(uuid.New(), now, now, results)
}

func TestDispatcher_PublishesSuccessesOnce(t *testing.T) {
	pub := &recordingPublisher{fail: map[string]bool{"About matcha": true}}
	d := NewDispatcher(pub, nil)

	outcomes := d.Dispatch(context.Background(), dispatchReport())

	if len(pub.posts) != 2 {
		t.Fatalf("published %d posts, want 2 (failed task skipped)", len(pub.posts))
	}
	if len(pub.posts[0].MediaRefs) != 1 {
		t.Errorf("MediaRefs = %v", pub.posts[0].MediaRefs)
	}
	if len(outcomes) != 2 {
		t.Fatalf("len(outcomes) = %d", len(outcomes))
	}
	if outcomes[0].Keyword != "tea" || outcomes[0].Location != "https://blog.test/about-tea" || outcomes[0].Error != "" {
		t.Errorf("outcomes[0] = %+v", outcomes[0])
	}
	if outcomes[1].Keyword != "matcha" || outcomes[1].Position != 2 || outcomes[1].Error != "cms unavailable" {
		t.Errorf("outcomes[1] = %+v", outcomes[1])
	}
}

func TestDispatcher_StopsOnCanceledContext(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcomes := d.Dispatch(ctx, dispatchReport())

	if len(pub.posts) != 0 {
		t.Errorf("published %d posts on a canceled context", len(pub.posts))
	}
	if len(outcomes) != 2 {
		t.Fatalf("len(outcomes) = %d, want 2", len(outcomes))
	}
	for _, o := range outcomes {
		if o.Error != context.Canceled.Error() || o.Location != "" {
			t.Errorf("outcome = %+v, want canceled", o)
		}
	}
}
