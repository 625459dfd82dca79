// Package publish hands finished articles to a publishing backend.
package publish

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"bulkpress/internal/models"
)

// Post is what a publisher receives for one article.
type Post struct {
	Title     string
	Body      string
	Excerpt   string
	MediaRefs []string
}

// Publisher creates a post and returns where it can be found.
type Publisher interface {
	Publish(ctx context.Context, post Post) (string, error)
}

// PostFromArticle builds a post from a successful task payload.
func PostFromArticle(a *models.Article) Post {
	return Post{
		Title:     a.Title,
		Body:      a.Body,
		Excerpt:   a.MetaDescription,
		MediaRefs: append([]string(nil), a.Images...),
	}
}

var (
	styleBlock = regexp.MustCompile(`(?s)<style[^>]*>.*?</style>`)
	imgTag     = regexp.MustCompile(`<img([^>]*?)\s*/?>`)
)

// RenderBody prepares the article HTML for a CMS theme: inline styles are
// dropped, headings and images get theme classes, and media references are
// appended as figures.
func RenderBody(post Post) string {
	body := styleBlock.ReplaceAllString(post.Body, "")
	body = strings.NewReplacer(
		"<h1>", `<h1 class="entry-title">`,
		"<h2>", `<h2 class="section-title">`,
		"<h3>", `<h3 class="subsection-title">`,
	).Replace(body)
	body = imgTag.ReplaceAllString(body, `<img$1 class="wp-image-responsive" />`)

	var b strings.Builder
	b.WriteString(strings.TrimSpace(body))
	alt := html.EscapeString(post.Title)
	for _, ref := range post.MediaRefs {
		fmt.Fprintf(&b, "\n<figure class=\"wp-block-image\"><img src=\"%s\" alt=\"%s\" /></figure>",
			html.EscapeString(ref), alt)
	}
	return b.String()
}
