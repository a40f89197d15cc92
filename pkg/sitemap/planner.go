package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/amosWeiskopf/auditsmith/internal/models"
)

// Conventional sitemap locations, probed in order.
var sitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/wp-sitemap.xml",
	"/sitemap-index.xml",
}

// maxChildSitemaps bounds how many children of a sitemap index are fetched.
const maxChildSitemaps = 3

// Planner resolves a target URL into a size-capped crawl plan.
type Planner struct {
	client        *http.Client
	limiter       *rate.Limiter
	pageCap       int
	priorityPaths []string
	userAgent     string
	logger        *zap.SugaredLogger
}

// Options configures a Planner.
type Options struct {
	PageCap           int
	PriorityPaths     []string
	FetchTimeout      time.Duration
	RequestsPerSecond int
	UserAgent         string
}

// NewPlanner creates a Planner with the given options. Zero values fall
// back to sensible defaults (cap 15, 2 req/s, 10s fetch timeout).
func NewPlanner(opts Options, logger *zap.SugaredLogger) *Planner {
	if opts.PageCap <= 0 {
		opts.PageCap = 15
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "AuditSmith/1.0"
	}
	return &Planner{
		client:        &http.Client{Timeout: opts.FetchTimeout},
		limiter:       rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.RequestsPerSecond),
		pageCap:       opts.PageCap,
		priorityPaths: opts.PriorityPaths,
		userAgent:     opts.UserAgent,
		logger:        logger,
	}
}

// Plan resolves the crawl plan for a target. Single mode returns the target
// alone without touching the network. Full mode probes the conventional
// sitemap locations; when none resolves, the request silently degrades to a
// single-page plan rather than failing.
func (p *Planner) Plan(ctx context.Context, targetURL string, mode models.Mode) (*models.CrawlPlan, error) {
	target, err := url.Parse(targetURL)
	if err != nil || target.Scheme == "" || target.Hostname() == "" {
		return nil, fmt.Errorf("invalid target URL %q", targetURL)
	}
	origin := target.Scheme + "://" + target.Host

	if mode != models.ModeFull {
		return &models.CrawlPlan{Origin: origin, URLs: []string{targetURL}}, nil
	}

	discovered := p.discover(ctx, origin, target.Hostname())
	if len(discovered) == 0 {
		p.logger.Warnw("sitemap discovery failed, degrading to single-page audit",
			"target", targetURL)
		return &models.CrawlPlan{
			Origin:           origin,
			URLs:             []string{targetURL},
			DegradedToSingle: true,
		}, nil
	}

	return &models.CrawlPlan{
		Origin: origin,
		URLs:   p.selectPages(origin, discovered),
	}, nil
}

// discover probes the conventional sitemap paths and returns the URLs of
// the first location that parses, following one level of index indirection.
func (p *Planner) discover(ctx context.Context, origin, host string) []string {
	for _, path := range sitemapPaths {
		doc, err := p.fetch(ctx, origin+path)
		if err != nil {
			p.logger.Debugw("sitemap probe failed", "url", origin+path, "error", err)
			continue
		}

		urls, children := parseSitemap(doc)

		// A sitemap index lists child sitemaps instead of pages.
		for i, child := range children {
			if i >= maxChildSitemaps || len(urls) >= p.pageCap*2 {
				break
			}
			childDoc, err := p.fetch(ctx, child)
			if err != nil {
				p.logger.Debugw("child sitemap fetch failed", "url", child, "error", err)
				continue
			}
			childURLs, _ := parseSitemap(childDoc)
			urls = append(urls, childURLs...)
		}

		urls = filterSameSite(urls, host)
		if len(urls) > 0 {
			p.logger.Infow("sitemap resolved", "location", origin+path, "urls", len(urls))
			return urls
		}
	}
	return nil
}

func (p *Planner) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/xml,text/xml;q=0.9,*/*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d for %s", resp.StatusCode, rawURL)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}

// selectPages truncates discovered URLs to the page cap. The origin root is
// always included; priority-path URLs are preferred when truncating, and
// remaining slots are filled in document order.
func (p *Planner) selectPages(origin string, discovered []string) []string {
	root := origin + "/"
	seen := map[string]bool{normalizeURL(root): true}
	selected := []string{root}

	appendIfRoom := func(u string) {
		if len(selected) >= p.pageCap {
			return
		}
		key := normalizeURL(u)
		if seen[key] {
			return
		}
		seen[key] = true
		selected = append(selected, u)
	}

	for _, u := range discovered {
		if isPriorityPath(u, p.priorityPaths) {
			appendIfRoom(u)
		}
	}
	for _, u := range discovered {
		appendIfRoom(u)
	}
	return selected
}

func isPriorityPath(rawURL string, priorities []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, pr := range priorities {
		if strings.Contains(path, pr) {
			return true
		}
	}
	return false
}

// filterSameSite keeps URLs sharing the target's registrable domain.
func filterSameSite(urls []string, host string) []string {
	rootDomain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// Hosts without a public suffix (localhost, IPs) compare exactly.
		rootDomain = host
	}
	kept := urls[:0]
	for _, raw := range urls {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Hostname() == "" {
			continue
		}
		candidate, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname())
		if err != nil {
			candidate = u.Hostname()
		}
		if candidate == rootDomain {
			kept = append(kept, strings.TrimSpace(raw))
		}
	}
	return kept
}

func normalizeURL(raw string) string {
	raw = strings.TrimSuffix(raw, "/")
	if idx := strings.Index(raw, "#"); idx > 0 {
		raw = raw[:idx]
	}
	return strings.ToLower(raw)
}

// urlset and sitemapindex are the two document shapes of the sitemap
// protocol; real sitemaps are frequently sloppy, so parsing tolerates both
// in one pass.
type sitemapDoc struct {
	URLs     []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// parseSitemap returns page URLs and child sitemap URLs found in doc.
func parseSitemap(doc []byte) (urls []string, children []string) {
	var parsed sitemapDoc
	if err := xml.Unmarshal(doc, &parsed); err != nil {
		return nil, nil
	}
	for _, u := range parsed.URLs {
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	for _, s := range parsed.Sitemaps {
		if loc := strings.TrimSpace(s.Loc); loc != "" {
			children = append(children, loc)
		}
	}
	return urls, children
}
