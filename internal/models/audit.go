package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Mode selects how many pages an audit covers.
type Mode string

const (
	// ModeSingle audits only the requested URL.
	ModeSingle Mode = "single"
	// ModeFull audits up to the configured page cap, discovered via sitemap.
	ModeFull Mode = "full"
)

// AuditRequest describes one incoming audit. Immutable after creation.
type AuditRequest struct {
	ID        string    `json:"id"`
	TargetURL string    `json:"target_url"`
	Mode      Mode      `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAuditRequest builds a request with a fresh ID.
func NewAuditRequest(targetURL string, mode Mode) AuditRequest {
	return AuditRequest{
		ID:        uuid.NewString(),
		TargetURL: targetURL,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
	}
}

// CheckKind identifies one of the three independent audit dimensions.
type CheckKind string

const (
	CheckStructural  CheckKind = "structural"
	CheckPerformance CheckKind = "performance"
	CheckBotAccess   CheckKind = "bot_access"
)

// AllCheckKinds lists every check performed per page, in report order.
var AllCheckKinds = []CheckKind{CheckStructural, CheckPerformance, CheckBotAccess}

// CheckStatus is the terminal state of a single check call.
type CheckStatus string

const (
	StatusSuccess CheckStatus = "success"
	StatusError   CheckStatus = "error"
	StatusTimeout CheckStatus = "timeout"
)

// PageStatus is the derived state of a whole page audit.
type PageStatus string

const (
	PageSuccess PageStatus = "success"
	PagePartial PageStatus = "partial"
	PageFailed  PageStatus = "failed"
)

// Issue is one structural SEO problem found on a page.
type Issue struct {
	Type           string `json:"type"`
	Severity       string `json:"severity"` // high, medium, low
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

// IssueCounts summarizes issues on a page by severity.
type IssueCounts struct {
	Total  int `json:"total"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// StructuralReport is the payload of a successful structural check.
type StructuralReport struct {
	Issues []Issue     `json:"issues"`
	Counts IssueCounts `json:"counts"`
}

// WebVital is one Core Web Vitals style metric.
type WebVital struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	Rating string  `json:"rating"` // good, needs-improvement, poor
}

// PerformanceReport is the payload of a successful performance check.
type PerformanceReport struct {
	Score  float64    `json:"score"`
	Vitals []WebVital `json:"vitals"`
}

// BotResult records whether one crawler user agent may fetch the page.
type BotResult struct {
	Name    string `json:"name"`
	Allowed bool   `json:"allowed"`
}

// BotAccessReport is the payload of a successful bot-access check.
type BotAccessReport struct {
	Bots         []BotResult `json:"bots"`
	AllowedCount int         `json:"allowed_count"`
	BlockedCount int         `json:"blocked_count"`
}

// CheckOutcome is the tagged result of one (page, kind) check. Exactly one
// payload field is non-nil when Status is success; all are nil otherwise.
type CheckOutcome struct {
	Kind         CheckKind          `json:"kind"`
	Status       CheckStatus        `json:"status"`
	Structural   *StructuralReport  `json:"structural,omitempty"`
	Performance  *PerformanceReport `json:"performance,omitempty"`
	BotAccess    *BotAccessReport   `json:"bot_access,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
}

// PageAuditResult holds the three check outcomes for one URL.
type PageAuditResult struct {
	URL      string         `json:"url"`
	Outcomes []CheckOutcome `json:"outcomes"`
	Status   PageStatus     `json:"status"`
}

// Outcome returns the outcome for the given kind, or nil if absent.
func (r *PageAuditResult) Outcome(kind CheckKind) *CheckOutcome {
	for i := range r.Outcomes {
		if r.Outcomes[i].Kind == kind {
			return &r.Outcomes[i]
		}
	}
	return nil
}

// DerivePageStatus reduces check outcomes to a page status: success when
// every check succeeded, failed when none did, partial otherwise.
func DerivePageStatus(outcomes []CheckOutcome) PageStatus {
	succeeded := 0
	for _, o := range outcomes {
		if o.Status == StatusSuccess {
			succeeded++
		}
	}
	switch succeeded {
	case len(outcomes):
		return PageSuccess
	case 0:
		return PageFailed
	default:
		return PagePartial
	}
}

// CrawlPlan is the finalized, size-capped URL list for an audit run.
type CrawlPlan struct {
	Origin           string   `json:"origin"`
	URLs             []string `json:"urls"`
	DegradedToSingle bool     `json:"degraded_to_single"`
}

// CommonIssue is one entry of the ranked site-wide issue list.
type CommonIssue struct {
	Type           string `json:"type"`
	Count          int    `json:"count"`
	Severity       string `json:"severity"`
	ExampleURL     string `json:"example_url"`
	Recommendation string `json:"recommendation"`
}

// AggregateMetrics holds the site-wide roll-up numbers.
type AggregateMetrics struct {
	// AveragePerformanceScore is nil when no page produced a successful
	// performance outcome; failed checks are excluded from the denominator.
	AveragePerformanceScore *float64 `json:"average_performance_score,omitempty"`
	ScoredPages             int      `json:"scored_pages"`
	TotalIssues             int      `json:"total_issues"`
	HighIssues              int      `json:"high_issues"`
	MediumIssues            int      `json:"medium_issues"`
	LowIssues               int      `json:"low_issues"`
	BotsChecked             int      `json:"bots_checked"`
	BotsAllowed             int      `json:"bots_allowed"`
	BotsBlocked             int      `json:"bots_blocked"`
}

// SiteAuditSummary is the final report for one audit run.
type SiteAuditSummary struct {
	RequestID         string            `json:"request_id"`
	TargetURL         string            `json:"target_url"`
	GeneratedAt       time.Time         `json:"generated_at"`
	TotalPagesPlanned int               `json:"total_pages_planned"`
	TotalPagesAudited int               `json:"total_pages_audited"`
	Pages             []PageAuditResult `json:"pages"`
	Metrics           AggregateMetrics  `json:"metrics"`
	TopIssues         []CommonIssue     `json:"top_issues"`
	Notices           []string          `json:"notices,omitempty"`
}

// ErrNoPagesAudited is returned when every page pipeline failed outright
// and there is nothing to aggregate.
var ErrNoPagesAudited = errors.New("no pages could be audited")
