package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/amosWeiskopf/auditsmith/internal/models"
)

// CrawlPlanner resolves an audit target into a crawl plan.
type CrawlPlanner interface {
	Plan(ctx context.Context, targetURL string, mode models.Mode) (*models.CrawlPlan, error)
}

// PageAuditor audits a single page into a result. Implementations never
// return an error: per-check failures are folded into the outcomes.
type PageAuditor interface {
	AuditPage(ctx context.Context, pageURL string) models.PageAuditResult
}

// topIssueCap bounds the ranked site-wide issue list.
const topIssueCap = 10

// Aggregator fans page audits out across a crawl plan under a bounded
// concurrency limit and merges the per-page results into one site-wide
// summary. The page-level bound protects local resources and is independent
// of the upstream rate budget enforced per check call.
type Aggregator struct {
	planner     CrawlPlanner
	auditor     PageAuditor
	concurrency int64
	logger      *zap.SugaredLogger
}

// New creates an Aggregator with the given page-level concurrency bound
// (default 5 when non-positive).
func New(planner CrawlPlanner, auditor PageAuditor, concurrency int, logger *zap.SugaredLogger) *Aggregator {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Aggregator{
		planner:     planner,
		auditor:     auditor,
		concurrency: int64(concurrency),
		logger:      logger,
	}
}

// Run executes the full audit: plan, fan out page audits, aggregate.
// It waits for every dispatched page to resolve before summarizing; no
// partial summaries are emitted mid-flight. When zero pages produce any
// result it returns models.ErrNoPagesAudited instead of an empty summary.
func (a *Aggregator) Run(ctx context.Context, req models.AuditRequest) (*models.SiteAuditSummary, error) {
	plan, err := a.planner.Plan(ctx, req.TargetURL, req.Mode)
	if err != nil {
		return nil, fmt.Errorf("planning crawl for %s: %w", req.TargetURL, err)
	}
	a.logger.Infow("crawl plan ready",
		"request", req.ID, "pages", len(plan.URLs), "degraded", plan.DegradedToSingle)

	results := a.auditPages(ctx, plan.URLs)

	return a.summarize(req, plan, results)
}

// auditPages runs the page pipeline across the plan under the semaphore.
// A page whose pipeline panics is dropped entirely: its slot stays nil.
func (a *Aggregator) auditPages(ctx context.Context, urls []string) []*models.PageAuditResult {
	results := make([]*models.PageAuditResult, len(urls))
	sem := semaphore.NewWeighted(a.concurrency)
	var wg sync.WaitGroup

	for i, pageURL := range urls {
		if err := sem.Acquire(ctx, 1); err != nil {
			a.logger.Warnw("audit dispatch stopped", "error", err, "remaining", len(urls)-i)
			break
		}
		wg.Add(1)
		go func(i int, pageURL string) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					a.logger.Errorw("page pipeline crashed, dropping page",
						"url", pageURL, "panic", r)
					results[i] = nil
				}
			}()
			result := a.auditor.AuditPage(ctx, pageURL)
			results[i] = &result
		}(i, pageURL)
	}

	wg.Wait()
	return results
}

// summarize merges per-page results into the site-wide summary.
func (a *Aggregator) summarize(req models.AuditRequest, plan *models.CrawlPlan, results []*models.PageAuditResult) (*models.SiteAuditSummary, error) {
	summary := &models.SiteAuditSummary{
		RequestID:         req.ID,
		TargetURL:         req.TargetURL,
		GeneratedAt:       time.Now().UTC(),
		TotalPagesPlanned: len(plan.URLs),
	}
	if plan.DegradedToSingle {
		summary.Notices = append(summary.Notices,
			"sitemap discovery failed; audit degraded to the target page only")
	}

	issueStats := make(map[string]*issueStat)

	var scoreSum float64
	var timedOutPerf int
	botsRecorded := false

	for _, result := range results {
		if result == nil {
			continue
		}
		summary.TotalPagesAudited++
		summary.Pages = append(summary.Pages, *result)

		// Issue counts are summed regardless of the page's other checks.
		if structural := result.Outcome(models.CheckStructural); structural != nil && structural.Status == models.StatusSuccess {
			summary.Metrics.TotalIssues += structural.Structural.Counts.Total
			summary.Metrics.HighIssues += structural.Structural.Counts.High
			summary.Metrics.MediumIssues += structural.Structural.Counts.Medium
			summary.Metrics.LowIssues += structural.Structural.Counts.Low

			for _, issue := range structural.Structural.Issues {
				stat, ok := issueStats[issue.Type]
				if !ok {
					stat = &issueStat{
						severity:       issue.Severity,
						exampleURL:     result.URL,
						recommendation: issue.Recommendation,
					}
					issueStats[issue.Type] = stat
				}
				stat.count++
			}
		}

		// Only successful performance checks enter the average; a failed
		// check contributes neither a zero nor an imputed score.
		if perf := result.Outcome(models.CheckPerformance); perf != nil {
			switch perf.Status {
			case models.StatusSuccess:
				scoreSum += perf.Performance.Score
				summary.Metrics.ScoredPages++
			case models.StatusTimeout:
				timedOutPerf++
			}
		}

		// Bot accessibility is site-wide: take the first page in plan
		// order that produced a successful bot-access outcome.
		if bots := result.Outcome(models.CheckBotAccess); !botsRecorded && bots != nil && bots.Status == models.StatusSuccess {
			summary.Metrics.BotsChecked = len(bots.BotAccess.Bots)
			summary.Metrics.BotsAllowed = bots.BotAccess.AllowedCount
			summary.Metrics.BotsBlocked = bots.BotAccess.BlockedCount
			botsRecorded = true
		}
	}

	if summary.TotalPagesAudited == 0 {
		a.logger.Errorw("no pages could be audited", "request", req.ID, "planned", len(plan.URLs))
		return nil, models.ErrNoPagesAudited
	}

	if summary.Metrics.ScoredPages > 0 {
		avg := scoreSum / float64(summary.Metrics.ScoredPages)
		summary.Metrics.AveragePerformanceScore = &avg
	} else {
		summary.Notices = append(summary.Notices,
			"no page produced a performance score; average omitted")
	}
	if timedOutPerf > 0 {
		summary.Notices = append(summary.Notices,
			fmt.Sprintf("performance check timed out on %d of %d audited pages", timedOutPerf, summary.TotalPagesAudited))
	}
	if dropped := len(plan.URLs) - summary.TotalPagesAudited; dropped > 0 {
		summary.Notices = append(summary.Notices,
			fmt.Sprintf("%d of %d planned pages could not be audited", dropped, len(plan.URLs)))
	}

	summary.TopIssues = rankIssues(issueStats)
	return summary, nil
}

type issueStat struct {
	count          int
	severity       string
	exampleURL     string
	recommendation string
}

func rankIssues(stats map[string]*issueStat) []models.CommonIssue {
	ranked := make([]models.CommonIssue, 0, len(stats))
	for issueType, stat := range stats {
		ranked = append(ranked, models.CommonIssue{
			Type:           issueType,
			Count:          stat.count,
			Severity:       stat.severity,
			ExampleURL:     stat.exampleURL,
			Recommendation: stat.recommendation,
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count == ranked[j].Count {
			return ranked[i].Type < ranked[j].Type
		}
		return ranked[i].Count > ranked[j].Count
	})
	if len(ranked) > topIssueCap {
		ranked = ranked[:topIssueCap]
	}
	return ranked
}
