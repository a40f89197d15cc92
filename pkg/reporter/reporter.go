package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/xuri/excelize/v2"

	"github.com/amosWeiskopf/auditsmith/internal/models"
)

// Reporter handles report generation in various formats
type Reporter struct{}

// New creates a new Reporter instance
func New() *Reporter {
	return &Reporter{}
}

// Render creates a report in the specified format
func (r *Reporter) Render(summary *models.SiteAuditSummary, format string) (string, error) {
	switch format {
	case "json":
		return r.renderJSON(summary)
	case "html":
		return r.renderHTML(summary)
	case "markdown":
		return r.renderMarkdown(summary)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// renderJSON creates a JSON formatted report
func (r *Reporter) renderJSON(summary *models.SiteAuditSummary) (string, error) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	return string(data), nil
}

// renderHTML creates an HTML formatted report
func (r *Reporter) renderHTML(summary *models.SiteAuditSummary) (string, error) {
	tmpl := `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Site Audit - {{.TargetURL}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 1100px;
            margin: 0 auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 2rem;
            border-radius: 10px;
            margin-bottom: 2rem;
        }
        .card {
            background: white;
            border-radius: 10px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
            box-shadow: 0 2px 10px rgba(0,0,0,0.1);
        }
        .metric-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(180px, 1fr));
            gap: 1rem;
            margin: 1rem 0;
        }
        .metric {
            text-align: center;
            padding: 1rem;
            background: #f8f9fa;
            border-radius: 8px;
        }
        .metric-value {
            font-size: 2rem;
            font-weight: bold;
            color: #667eea;
        }
        .metric-label {
            color: #666;
            font-size: 0.9rem;
            margin-top: 0.5rem;
        }
        .issue {
            background: white;
            border-left: 4px solid #ffc107;
            padding: 1rem;
            margin: 1rem 0;
            border-radius: 4px;
        }
        .issue.high { border-left-color: #dc3545; }
        .issue.medium { border-left-color: #ffc107; }
        .issue.low { border-left-color: #28a745; }
        .notice {
            background: #fff3cd;
            border-radius: 4px;
            padding: 0.75rem 1rem;
            margin: 0.5rem 0;
        }
        .status-success { color: #28a745; font-weight: bold; }
        .status-partial { color: #fd7e14; font-weight: bold; }
        .status-failed { color: #dc3545; font-weight: bold; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 0.5rem; border-bottom: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Site Audit for {{.TargetURL}}</h1>
        <p>Generated on {{.GeneratedAt.Format "January 2, 2006 15:04 MST"}}</p>
    </div>

    <div class="card">
        <h2>Overview</h2>
        <div class="metric-grid">
            <div class="metric">
                <div class="metric-value">{{.TotalPagesAudited}}/{{.TotalPagesPlanned}}</div>
                <div class="metric-label">Pages Audited</div>
            </div>
            <div class="metric">
                <div class="metric-value">{{if .Metrics.AveragePerformanceScore}}{{printf "%.0f" (deref .Metrics.AveragePerformanceScore)}}{{else}}&mdash;{{end}}</div>
                <div class="metric-label">Avg Performance Score</div>
            </div>
            <div class="metric">
                <div class="metric-value">{{.Metrics.TotalIssues}}</div>
                <div class="metric-label">Issues Found</div>
            </div>
            <div class="metric">
                <div class="metric-value">{{.Metrics.BotsAllowed}}/{{.Metrics.BotsChecked}}</div>
                <div class="metric-label">AI Crawlers Allowed</div>
            </div>
        </div>

        {{range .Notices}}
        <div class="notice">{{.}}</div>
        {{end}}
    </div>

    {{if .TopIssues}}
    <div class="card">
        <h2>Most Common Issues</h2>
        {{range .TopIssues}}
        <div class="issue {{.Severity}}">
            <h4>{{.Type}} ({{.Count}} pages)</h4>
            <p>{{.Recommendation}}</p>
            <p><small>Example: {{.ExampleURL}}</small></p>
        </div>
        {{end}}
    </div>
    {{end}}

    <div class="card">
        <h2>Pages</h2>
        <table>
            <tr><th>URL</th><th>Status</th></tr>
            {{range .Pages}}
            <tr><td>{{.URL}}</td><td class="status-{{.Status}}">{{.Status}}</td></tr>
            {{end}}
        </table>
    </div>
</body>
</html>
`

	t, err := template.New("report").Funcs(template.FuncMap{
		"deref": func(f *float64) float64 { return *f },
	}).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, summary); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// renderMarkdown creates a Markdown formatted report
func (r *Reporter) renderMarkdown(summary *models.SiteAuditSummary) (string, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Site Audit for %s\n\n", summary.TargetURL)
	fmt.Fprintf(&buf, "*Generated on %s*\n\n", summary.GeneratedAt.Format("January 2, 2006 15:04 MST"))

	fmt.Fprintf(&buf, "## Overview\n\n")
	fmt.Fprintf(&buf, "| Metric | Value |\n")
	fmt.Fprintf(&buf, "|--------|-------|\n")
	fmt.Fprintf(&buf, "| Pages audited | %d of %d planned |\n", summary.TotalPagesAudited, summary.TotalPagesPlanned)
	if summary.Metrics.AveragePerformanceScore != nil {
		fmt.Fprintf(&buf, "| Average performance score | %.1f (over %d pages) |\n",
			*summary.Metrics.AveragePerformanceScore, summary.Metrics.ScoredPages)
	} else {
		fmt.Fprintf(&buf, "| Average performance score | n/a |\n")
	}
	fmt.Fprintf(&buf, "| Issues found | %d (%d high, %d medium, %d low) |\n",
		summary.Metrics.TotalIssues, summary.Metrics.HighIssues,
		summary.Metrics.MediumIssues, summary.Metrics.LowIssues)
	fmt.Fprintf(&buf, "| AI crawlers allowed | %d of %d checked |\n\n",
		summary.Metrics.BotsAllowed, summary.Metrics.BotsChecked)

	if len(summary.Notices) > 0 {
		fmt.Fprintf(&buf, "### Notices\n\n")
		for _, notice := range summary.Notices {
			fmt.Fprintf(&buf, "- %s\n", notice)
		}
		fmt.Fprintf(&buf, "\n")
	}

	if len(summary.TopIssues) > 0 {
		fmt.Fprintf(&buf, "## Most Common Issues\n\n")
		for i, issue := range summary.TopIssues {
			fmt.Fprintf(&buf, "### %d. %s\n", i+1, issue.Type)
			fmt.Fprintf(&buf, "- **Pages affected:** %d\n", issue.Count)
			fmt.Fprintf(&buf, "- **Severity:** %s\n", issue.Severity)
			fmt.Fprintf(&buf, "- **Example:** %s\n", issue.ExampleURL)
			if issue.Recommendation != "" {
				fmt.Fprintf(&buf, "- **Recommendation:** %s\n", issue.Recommendation)
			}
			fmt.Fprintf(&buf, "\n")
		}
	}

	fmt.Fprintf(&buf, "## Pages\n\n")
	fmt.Fprintf(&buf, "| URL | Status |\n")
	fmt.Fprintf(&buf, "|-----|--------|\n")
	for _, page := range summary.Pages {
		fmt.Fprintf(&buf, "| %s | %s |\n", page.URL, page.Status)
	}

	return buf.String(), nil
}

// WriteXLSX writes the summary as an Excel workbook with Summary, Pages and
// Top Issues sheets.
func (r *Reporter) WriteXLSX(summary *models.SiteAuditSummary, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Summary"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}

	rows := [][]interface{}{
		{"Target", summary.TargetURL},
		{"Generated", summary.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
		{"Pages planned", summary.TotalPagesPlanned},
		{"Pages audited", summary.TotalPagesAudited},
		{"Total issues", summary.Metrics.TotalIssues},
		{"High issues", summary.Metrics.HighIssues},
		{"Medium issues", summary.Metrics.MediumIssues},
		{"Low issues", summary.Metrics.LowIssues},
		{"AI crawlers checked", summary.Metrics.BotsChecked},
		{"AI crawlers allowed", summary.Metrics.BotsAllowed},
	}
	if summary.Metrics.AveragePerformanceScore != nil {
		rows = append(rows, []interface{}{"Average performance score", *summary.Metrics.AveragePerformanceScore})
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}

	pagesSheet := "Pages"
	if _, err := f.NewSheet(pagesSheet); err != nil {
		return fmt.Errorf("create pages sheet: %w", err)
	}
	header := []interface{}{"URL", "Status", "Structural", "Performance", "Bot Access"}
	_ = f.SetSheetRow(pagesSheet, "A1", &header)
	for i, page := range summary.Pages {
		row := []interface{}{page.URL, string(page.Status)}
		for _, kind := range models.AllCheckKinds {
			if outcome := page.Outcome(kind); outcome != nil {
				row = append(row, string(outcome.Status))
			} else {
				row = append(row, "")
			}
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(pagesSheet, cell, &row); err != nil {
			return fmt.Errorf("write page row: %w", err)
		}
	}

	issuesSheet := "Top Issues"
	if _, err := f.NewSheet(issuesSheet); err != nil {
		return fmt.Errorf("create issues sheet: %w", err)
	}
	issueHeader := []interface{}{"Issue", "Pages", "Severity", "Example", "Recommendation"}
	_ = f.SetSheetRow(issuesSheet, "A1", &issueHeader)
	for i, issue := range summary.TopIssues {
		row := []interface{}{issue.Type, issue.Count, issue.Severity, issue.ExampleURL, issue.Recommendation}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(issuesSheet, cell, &row); err != nil {
			return fmt.Errorf("write issue row: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
