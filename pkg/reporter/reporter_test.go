package reporter

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/amosWeiskopf/auditsmith/internal/models"
)

func sampleSummary() *models.SiteAuditSummary {
	avg := 78.5
	return &models.SiteAuditSummary{
		RequestID:         "req-1",
		TargetURL:         "https://example.com",
		GeneratedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		TotalPagesPlanned: 3,
		TotalPagesAudited: 2,
		Pages: []models.PageAuditResult{
			{URL: "https://example.com/", Status: models.PageSuccess, Outcomes: []models.CheckOutcome{
				{Kind: models.CheckStructural, Status: models.StatusSuccess, Structural: &models.StructuralReport{}},
				{Kind: models.CheckPerformance, Status: models.StatusSuccess, Performance: &models.PerformanceReport{Score: 78.5}},
				{Kind: models.CheckBotAccess, Status: models.StatusSuccess, BotAccess: &models.BotAccessReport{}},
			}},
			{URL: "https://example.com/pricing", Status: models.PagePartial, Outcomes: []models.CheckOutcome{
				{Kind: models.CheckStructural, Status: models.StatusSuccess, Structural: &models.StructuralReport{}},
				{Kind: models.CheckPerformance, Status: models.StatusTimeout},
				{Kind: models.CheckBotAccess, Status: models.StatusSuccess, BotAccess: &models.BotAccessReport{}},
			}},
		},
		Metrics: models.AggregateMetrics{
			AveragePerformanceScore: &avg,
			ScoredPages:             1,
			TotalIssues:             4,
			HighIssues:              1,
			MediumIssues:            2,
			LowIssues:               1,
			BotsChecked:             10,
			BotsAllowed:             8,
			BotsBlocked:             2,
		},
		TopIssues: []models.CommonIssue{
			{Type: "Missing Meta Description", Count: 2, Severity: "medium",
				ExampleURL: "https://example.com/", Recommendation: "Write one"},
		},
		Notices: []string{"performance check timed out on 1 of 2 audited pages"},
	}
}

func TestRenderJSONRoundTrips(t *testing.T) {
	out, err := New().Render(sampleSummary(), "json")
	require.NoError(t, err)

	var decoded models.SiteAuditSummary
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "https://example.com", decoded.TargetURL)
	assert.Equal(t, 2, decoded.TotalPagesAudited)
	require.NotNil(t, decoded.Metrics.AveragePerformanceScore)
	assert.Equal(t, 78.5, *decoded.Metrics.AveragePerformanceScore)
}

func TestRenderMarkdown(t *testing.T) {
	out, err := New().Render(sampleSummary(), "markdown")
	require.NoError(t, err)

	assert.Contains(t, out, "# Site Audit for https://example.com")
	assert.Contains(t, out, "2 of 3 planned")
	assert.Contains(t, out, "78.5")
	assert.Contains(t, out, "Missing Meta Description")
	assert.Contains(t, out, "performance check timed out")
}

func TestRenderMarkdownWithoutAverage(t *testing.T) {
	summary := sampleSummary()
	summary.Metrics.AveragePerformanceScore = nil

	out, err := New().Render(summary, "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "| Average performance score | n/a |")
}

func TestRenderHTML(t *testing.T) {
	out, err := New().Render(sampleSummary(), "html")
	require.NoError(t, err)

	assert.Contains(t, out, "<title>Site Audit - https://example.com</title>")
	assert.Contains(t, out, "Most Common Issues")
	assert.Contains(t, out, "https://example.com/pricing")
}

func TestRenderUnknownFormat(t *testing.T) {
	_, err := New().Render(sampleSummary(), "pdf")
	assert.Error(t, err)
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.xlsx")
	require.NoError(t, New().WriteXLSX(sampleSummary(), path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Summary", "Pages", "Top Issues"}, f.GetSheetList())

	url, err := f.GetCellValue("Pages", "A2")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", url)

	issue, err := f.GetCellValue("Top Issues", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Missing Meta Description", issue)
}
