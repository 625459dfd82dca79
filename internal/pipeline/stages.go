package pipeline

import (
	"encoding/json"
	"errors"
	"strings"

	"bulkpress/internal/models"
)

// Stage requests sent to providers. Field order is fixed so equal requests
// encode to equal bytes and share a cache fingerprint.

// ResearchRequest asks a research provider for keyword context.
type ResearchRequest struct {
	Keyword  string `json:"keyword"`
	Language string `json:"language,omitempty"`
}

// OutlineRequest asks a content provider for an article outline.
type OutlineRequest struct {
	Task     string          `json:"task"`
	Keyword  string          `json:"keyword"`
	Language string          `json:"language,omitempty"`
	Research models.Research `json:"research"`
}

// ContentRequest asks a content provider for the article body.
type ContentRequest struct {
	Task     string          `json:"task"`
	Keyword  string          `json:"keyword"`
	Language string          `json:"language,omitempty"`
	Length   int             `json:"length,omitempty"`
	Outline  models.Outline  `json:"outline"`
	Research models.Research `json:"research"`
}

// ImageRequest asks an image provider for up to Count image references.
type ImageRequest struct {
	Keyword string `json:"keyword"`
	Title   string `json:"title"`
	Count   int    `json:"count"`
}

// Task values distinguish the two requests content providers receive.
const (
	TaskOutline = "outline"
	TaskContent = "content"
)

var (
	errEmptyOutline = errors.New("outline has no title or sections")
	errEmptyBody    = errors.New("content has no body")
	errNoImages     = errors.New("no image references")
)

func decodeResearch(b []byte) (models.Research, error) {
	var r models.Research
	if err := json.Unmarshal(b, &r); err != nil {
		return r, err
	}
	if r.RelatedKeywords == nil {
		r.RelatedKeywords = []string{}
	}
	if r.Questions == nil {
		r.Questions = []string{}
	}
	if r.TopResults == nil {
		r.TopResults = []models.SearchResult{}
	}
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}
	return r, nil
}

func decodeOutline(b []byte) (models.Outline, error) {
	var o models.Outline
	if err := json.Unmarshal(b, &o); err != nil {
		return o, err
	}
	if strings.TrimSpace(o.Title) == "" && len(o.Sections) == 0 {
		return o, errEmptyOutline
	}
	return o, nil
}

func decodeContent(b []byte) (models.Content, error) {
	var c models.Content
	if err := json.Unmarshal(b, &c); err != nil {
		return c, err
	}
	if strings.TrimSpace(c.Body) == "" {
		return c, errEmptyBody
	}
	if c.WordCount == 0 {
		c.WordCount = len(strings.Fields(c.Body))
	}
	return c, nil
}

func decodeImages(b []byte) (models.ImageSet, error) {
	var s models.ImageSet
	if err := json.Unmarshal(b, &s); err != nil {
		return s, err
	}
	urls := s.URLs[:0]
	for _, u := range s.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	s.URLs = urls
	if len(s.URLs) == 0 {
		return s, errNoImages
	}
	return s, nil
}
