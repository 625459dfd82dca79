package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bulkpress/internal/validation"
)

// WordPressConfig configures the WordPress REST client. Password is an
// application password, sent with basic auth.
type WordPressConfig struct {
	BaseURL  string
	Username string
	Password string
	Status   string // "draft" or "publish"
	Timeout  time.Duration
}

// WordPress publishes posts through /wp-json/wp/v2/posts.
type WordPress struct {
	cfg    WordPressConfig
	client *http.Client
}

var _ Publisher = (*WordPress)(nil)

// NewWordPress validates cfg and creates a client. Every request is bounded
// by cfg.Timeout (30s if unset), including on a given client.
func NewWordPress(cfg WordPressConfig, client *http.Client) (*WordPress, error) {
	if valid, msg := validation.ValidateURL(cfg.BaseURL); !valid {
		return nil, fmt.Errorf("wordpress: %s", msg)
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("wordpress: username and application password are required")
	}
	switch cfg.Status {
	case "":
		cfg.Status = "draft"
	case "draft", "publish", "pending", "private":
	default:
		return nil, fmt.Errorf("wordpress: unsupported post status %q", cfg.Status)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	} else if client.Timeout != cfg.Timeout {
		c := *client
		c.Timeout = cfg.Timeout
		client = &c
	}
	return &WordPress{cfg: cfg, client: client}, nil
}

type wpPost struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Excerpt string `json:"excerpt,omitempty"`
	Status  string `json:"status"`
}

type wpCreated struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}

// Publish creates the post and returns its link, or its id when the
// response carries no link.
func (w *WordPress) Publish(ctx context.Context, post Post) (string, error) {
	if strings.TrimSpace(post.Title) == "" {
		return "", errors.New("wordpress: post title is required")
	}

	body, err := json.Marshal(wpPost{
		Title:   post.Title,
		Content: RenderBody(post),
		Excerpt: post.Excerpt,
		Status:  w.cfg.Status,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL+"/wp-json/wp/v2/posts", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(w.cfg.Username, w.cfg.Password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("wordpress: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("wordpress: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return "", fmt.Errorf("wordpress: unexpected status %d: %s", resp.StatusCode, msg)
	}

	var created wpCreated
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", fmt.Errorf("wordpress: decoding response: %w", err)
	}
	if created.Link != "" {
		return created.Link, nil
	}
	if created.ID != 0 {
		return strconv.FormatInt(created.ID, 10), nil
	}
	return "", errors.New("wordpress: response has no post id")
}
