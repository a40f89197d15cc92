package checker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/amosWeiskopf/auditsmith/internal/models"
)

// aiCrawlers are the AI crawler user agents tested by the bot-access check.
var aiCrawlers = []string{
	"GPTBot",
	"ClaudeBot",
	"Claude-Web",
	"CCBot",
	"Google-Extended",
	"PerplexityBot",
	"Bytespider",
	"Amazonbot",
	"Applebot-Extended",
	"cohere-ai",
}

// Local is an in-process PageChecker: it fetches the page itself and
// derives the three reports without an upstream audit API.
type Local struct {
	client    *http.Client
	userAgent string
	logger    *zap.SugaredLogger
}

// NewLocal creates the in-process checker.
func NewLocal(userAgent string, logger *zap.SugaredLogger) *Local {
	if userAgent == "" {
		userAgent = "AuditSmith/1.0"
	}
	return &Local{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: userAgent,
		logger:    logger,
	}
}

// CheckStructural audits meta tags, headings, images and content depth.
func (l *Local) CheckStructural(ctx context.Context, pageURL string) (*models.StructuralReport, error) {
	body, _, err := l.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	var issues []models.Issue
	add := func(issueType, severity, description, recommendation string) {
		issues = append(issues, models.Issue{
			Type:           issueType,
			Severity:       severity,
			Description:    description,
			Recommendation: recommendation,
		})
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	switch {
	case title == "":
		add("Missing Title", "high",
			"The page has no <title> tag",
			"Add a unique, descriptive title tag of at most 60 characters")
	case len(title) > 60:
		add("Title Too Long", "medium",
			fmt.Sprintf("Title is %d characters, search engines truncate around 60", len(title)),
			"Shorten the title to 60 characters or fewer")
	}

	desc, _ := doc.Find(`meta[name="description"]`).Attr("content")
	desc = strings.TrimSpace(desc)
	switch {
	case desc == "":
		add("Missing Meta Description", "medium",
			"The page has no meta description",
			"Write a unique, compelling meta description of 120-160 characters")
	case len(desc) < 120 || len(desc) > 160:
		add("Meta Description Length", "low",
			fmt.Sprintf("Meta description is %d characters, outside the 120-160 range", len(desc)),
			"Adjust the meta description to 120-160 characters")
	}

	h1s := doc.Find("h1").Length()
	switch {
	case h1s == 0:
		add("Missing H1", "medium",
			"The page has no <h1> heading",
			"Add exactly one <h1> describing the page's main topic")
	case h1s > 1:
		add("Multiple H1 Tags", "medium",
			fmt.Sprintf("The page has %d <h1> headings", h1s),
			"Keep a single <h1> and demote the rest to <h2>")
	}

	missingAlt := 0
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if alt, ok := s.Attr("alt"); !ok || strings.TrimSpace(alt) == "" {
			missingAlt++
		}
	})
	if missingAlt > 0 {
		add("Images Missing Alt Text", "low",
			fmt.Sprintf("%d images lack alt attributes", missingAlt),
			"Add descriptive alt text to every content image")
	}

	if doc.Find(`link[rel="canonical"]`).Length() == 0 {
		add("Missing Canonical Tag", "low",
			"The page declares no canonical URL",
			"Add a <link rel=\"canonical\"> pointing at the preferred URL")
	}

	if words := wordCount(body, doc); words < 300 {
		add("Thin Content", "medium",
			fmt.Sprintf("The page has roughly %d words of content", words),
			"Expand the page to at least 300 words of valuable, relevant content")
	}

	report := &models.StructuralReport{Issues: issues}
	for _, issue := range issues {
		report.Counts.Total++
		switch issue.Severity {
		case "high":
			report.Counts.High++
		case "medium":
			report.Counts.Medium++
		case "low":
			report.Counts.Low++
		}
	}
	return report, nil
}

// CheckPerformance measures fetch timing and page weight and maps them to
// vitals-style metrics with a heuristic score.
func (l *Local) CheckPerformance(ctx context.Context, pageURL string) (*models.PerformanceReport, error) {
	body, timing, err := l.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	ttfbMs := float64(timing.firstByte.Milliseconds())
	loadMs := float64(timing.total.Milliseconds())
	sizeKB := float64(len(body)) / 1024

	score := 100.0
	switch {
	case ttfbMs > 1800:
		score -= 30
	case ttfbMs > 800:
		score -= 15
	}
	switch {
	case loadMs > 4000:
		score -= 30
	case loadMs > 2500:
		score -= 15
	}
	switch {
	case sizeKB > 3072:
		score -= 25
	case sizeKB > 1536:
		score -= 10
	}
	if score < 0 {
		score = 0
	}

	return &models.PerformanceReport{
		Score: score,
		Vitals: []models.WebVital{
			{Name: "ttfb", Value: ttfbMs, Unit: "ms", Rating: rating(ttfbMs, 800, 1800)},
			{Name: "fullyLoaded", Value: loadMs, Unit: "ms", Rating: rating(loadMs, 2500, 4000)},
			{Name: "transferSize", Value: sizeKB, Unit: "KB", Rating: rating(sizeKB, 1536, 3072)},
		},
	}, nil
}

// CheckBotAccess fetches the site's robots.txt and tests each AI crawler
// agent against the page path. A missing robots.txt allows everyone.
func (l *Local) CheckBotAccess(ctx context.Context, pageURL string) (*models.BotAccessReport, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", pageURL, err)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	var robots *robotstxt.RobotsData
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	body, _, err := l.fetch(ctx, robotsURL)
	if err == nil {
		robots, err = robotstxt.FromBytes(body)
		if err != nil {
			l.logger.Debugw("unparsable robots.txt, treating as allow-all", "url", robotsURL, "error", err)
			robots = nil
		}
	} else if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	report := &models.BotAccessReport{}
	for _, agent := range aiCrawlers {
		allowed := true
		if robots != nil {
			allowed = robots.TestAgent(path, agent)
		}
		report.Bots = append(report.Bots, models.BotResult{Name: agent, Allowed: allowed})
		if allowed {
			report.AllowedCount++
		} else {
			report.BlockedCount++
		}
	}
	return report, nil
}

type fetchTiming struct {
	firstByte time.Duration
	total     time.Duration
}

func (l *Local) fetch(ctx context.Context, rawURL string) ([]byte, fetchTiming, error) {
	var timing fetchTiming
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, timing, err
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, timing, err
	}
	defer resp.Body.Close()
	timing.firstByte = time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return nil, timing, fmt.Errorf("status %d for %s", resp.StatusCode, rawURL)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	timing.total = time.Since(start)
	return body, timing, err
}

// wordCount extracts the main content text, falling back to the raw body
// text when extraction finds nothing.
func wordCount(body []byte, doc *goquery.Document) int {
	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{})
	if err == nil && result != nil && result.ContentText != "" {
		return len(strings.Fields(result.ContentText))
	}
	return len(strings.Fields(doc.Find("body").Text()))
}

func rating(value, good, poor float64) string {
	switch {
	case value <= good:
		return "good"
	case value <= poor:
		return "needs-improvement"
	default:
		return "poor"
	}
}
