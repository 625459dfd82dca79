package email

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"bulkpress/internal/config"
	"bulkpress/internal/models"
)

// maxListedFailures caps the failed keywords listed in one report mail.
const maxListedFailures = 20

// Templates provides email template generation.
type Templates struct {
	cfg *config.Config
}

// NewTemplates creates a new templates instance.
func NewTemplates(cfg *config.Config) *Templates {
	return &Templates{cfg: cfg}
}

// baseHTML wraps content in a consistent HTML email template.
func (t *Templates) baseHTML(title, content string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #0f766e; color: white; padding: 20px; text-align: center; border-radius: 8px 8px 0 0; }
        .header h1 { margin: 0; font-size: 24px; }
        .content { background: #f9fafb; padding: 20px; border: 1px solid #e5e7eb; }
        .footer { background: #f3f4f6; padding: 15px; text-align: center; font-size: 12px; color: #6b7280; border-radius: 0 0 8px 8px; border: 1px solid #e5e7eb; border-top: none; }
        .button { display: inline-block; background: #0f766e; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; margin: 10px 0; }
        .info-box { background: white; border: 1px solid #e5e7eb; border-radius: 6px; padding: 15px; margin: 15px 0; }
        .label { font-weight: 600; color: #374151; }
        .success { color: #059669; }
        .error { color: #dc2626; }
        code { background: #e5e7eb; padding: 2px 6px; border-radius: 4px; font-family: monospace; }
    </style>
</head>
<body>
    <div class="header">
        <h1>%s</h1>
    </div>
    <div class="content">
        %s
    </div>
    <div class="footer">
        <p>This email was sent by %s</p>
        <p><a href="%s">%s</a></p>
    </div>
</body>
</html>`, html.EscapeString(title), html.EscapeString(t.cfg.SiteTitle), content, html.EscapeString(t.cfg.SiteTitle), t.cfg.BaseURL, t.cfg.BaseURL)
}

// JobReport generates the summary mail for a finished job.
func (t *Templates) JobReport(report *models.AggregateReport) (subject, htmlBody, textBody string) {
	subject = fmt.Sprintf("[%s] Job %s: %d of %d keywords failed",
		t.cfg.SiteTitle, shortID(report), report.Failed, report.Total)

	byKind := report.FailuresByKind()
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	var kindsHTML, kindsText strings.Builder
	for _, k := range kinds {
		n := byKind[models.ErrorKind(k)]
		fmt.Fprintf(&kindsHTML, `<p><span class="label">%s:</span> %d</p>`, html.EscapeString(k), n)
		fmt.Fprintf(&kindsText, "  %s: %d\n", k, n)
	}

	var failedHTML, failedText strings.Builder
	listed := 0
	for _, r := range report.Results {
		if r.IsSuccess() {
			continue
		}
		if listed == maxListedFailures {
			fmt.Fprintf(&failedHTML, `<p>and %d more</p>`, report.Failed-listed)
			fmt.Fprintf(&failedText, "  ...and %d more\n", report.Failed-listed)
			break
		}
		fmt.Fprintf(&failedHTML, `
            <div class="info-box">
                <p><span class="label">Keyword:</span> <code>%s</code></p>
                <p><span class="label">Error:</span> <span class="error">%s</span></p>
            </div>`,
			html.EscapeString(r.Keyword),
			html.EscapeString(string(r.ErrorKind)+": "+r.Error),
		)
		fmt.Fprintf(&failedText, "\n- %s\n  %s: %s\n", r.Keyword, r.ErrorKind, r.Error)
		listed++
	}

	duration := report.FinishedAt.Sub(report.StartedAt).Round(time.Second)
	reportURL := fmt.Sprintf("%s/api/v1/jobs/%s", t.cfg.BaseURL, report.JobID)

	content := fmt.Sprintf(`
        <p>A bulk job finished with failures.</p>

        <div class="info-box">
            <p><span class="label">Job:</span> <code>%s</code></p>
            <p><span class="label">Keywords:</span> %d</p>
            <p><span class="label">Succeeded:</span> <span class="success">%d</span></p>
            <p><span class="label">Failed:</span> <span class="error">%d</span></p>
            <p><span class="label">Duration:</span> %s</p>
        </div>

        <div class="info-box">
            %s
        </div>
        %s
        <p style="text-align: center;">
            <a href="%s" class="button">View Report</a>
        </p>
    `,
		report.JobID,
		report.Total,
		report.Succeeded,
		report.Failed,
		duration,
		kindsHTML.String(),
		failedHTML.String(),
		reportURL,
	)

	htmlBody = t.baseHTML(subject, content)

	textBody = fmt.Sprintf(`Bulk job finished with failures

Job: %s
Keywords: %d
Succeeded: %d
Failed: %d
Duration: %s

Failures by kind:
%s
Failed keywords:
%s
Report: %s

--
%s
%s`,
		report.JobID,
		report.Total,
		report.Succeeded,
		report.Failed,
		duration,
		kindsText.String(),
		failedText.String(),
		reportURL,
		t.cfg.SiteTitle,
		t.cfg.BaseURL,
	)

	return
}

func shortID(report *models.AggregateReport) string {
	return report.JobID.String()[:8]
}
