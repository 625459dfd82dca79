package models

import (
	"fmt"
	"strings"
	"unicode"
)

// Research is the context gathered for a keyword before writing.
type Research struct {
	Keyword         string         `json:"keyword"`
	RelatedKeywords []string       `json:"related_keywords"`
	Questions       []string       `json:"questions"`
	TopResults      []SearchResult `json:"top_results"`
	Suggestions     []string       `json:"suggestions"`
	Competition     string         `json:"competition"`
}

// SearchResult is one organic result seen during research.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Outline is the article structure produced before the body is written.
type Outline struct {
	Title      string           `json:"title"`
	H1         string           `json:"h1"`
	Sections   []OutlineSection `json:"h2_sections"`
	FAQ        []string         `json:"faq"`
	Conclusion string           `json:"conclusion"`
}

// OutlineSection is an H2 heading with its H3 subsections.
type OutlineSection struct {
	Title       string   `json:"title"`
	Subsections []string `json:"h3_subsections"`
}

// Content is the written article body.
type Content struct {
	Title           string   `json:"title"`
	MetaDescription string   `json:"meta_description"`
	Body            string   `json:"content"`
	Summary         string   `json:"summary"`
	Keywords        []string `json:"keywords"`
	WordCount       int      `json:"word_count"`
}

// ImageSet is the list of image references found or generated for an article.
type ImageSet struct {
	URLs []string `json:"urls"`
}

// Article is the Success payload handed to publishing.
type Article struct {
	Keyword         string   `json:"keyword"`
	Title           string   `json:"title"`
	MetaDescription string   `json:"meta_description"`
	Body            string   `json:"body"`
	Summary         string   `json:"summary"`
	Tags            []string `json:"tags"`
	Images          []string `json:"images"`
	Research        Research `json:"research"`
	Outline         Outline  `json:"outline"`
}

// EmptyResearch is the degraded research context used when every research
// provider fails.
func EmptyResearch(keyword string) Research {
	return Research{
		Keyword:         keyword,
		RelatedKeywords: []string{},
		Questions:       []string{},
		TopResults:      []SearchResult{},
		Suggestions:     []string{},
		Competition:     "unknown",
	}
}

// DefaultOutline is the generic outline used when every outline provider fails.
func DefaultOutline(keyword string) Outline {
	title := "The Complete Guide to " + titleCase(keyword)
	return Outline{
		Title: title,
		H1:    title,
		Sections: []OutlineSection{
			{
				Title:       fmt.Sprintf("What is %s?", keyword),
				Subsections: []string{"Definition", "Benefits", "Use cases"},
			},
			{
				Title:       fmt.Sprintf("How to get started with %s", keyword),
				Subsections: []string{"Step by step", "Tips", "Things to watch out for"},
			},
			{
				Title:       fmt.Sprintf("%s tips and tricks", titleCase(keyword)),
				Subsections: []string{"Best practices", "Common mistakes", "Recommendations"},
			},
		},
		FAQ: []string{
			fmt.Sprintf("What is %s?", keyword),
			fmt.Sprintf("How does %s work?", keyword),
			fmt.Sprintf("What are the benefits of %s?", keyword),
			fmt.Sprintf("How much does %s cost?", keyword),
			fmt.Sprintf("Where can I learn more about %s?", keyword),
		},
		Conclusion: fmt.Sprintf("Final thoughts on %s", keyword),
	}
}

// NewArticle assembles the payload from the outputs of every stage.
func NewArticle(keyword string, research Research, outline Outline, content Content, images []string) *Article {
	title := content.Title
	if title == "" {
		title = outline.Title
	}
	if title == "" {
		title = titleCase(keyword)
	}
	tags := content.Keywords
	if tags == nil {
		tags = []string{}
	}
	if images == nil {
		images = []string{}
	}
	return &Article{
		Keyword:         keyword,
		Title:           title,
		MetaDescription: content.MetaDescription,
		Body:            content.Body,
		Summary:         content.Summary,
		Tags:            tags,
		Images:          images,
		Research:        research,
		Outline:         outline,
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
