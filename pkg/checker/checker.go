package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/amosWeiskopf/auditsmith/internal/models"
)

// PageChecker performs one audit check of a given kind for a single URL.
// Implementations are idempotent and side-effect-free on the target site.
// Every call is expected to consume exactly one rate-gateway admission;
// routing through the gateway is the pipeline's responsibility.
type PageChecker interface {
	CheckStructural(ctx context.Context, pageURL string) (*models.StructuralReport, error)
	CheckPerformance(ctx context.Context, pageURL string) (*models.PerformanceReport, error)
	CheckBotAccess(ctx context.Context, pageURL string) (*models.BotAccessReport, error)
}

// Client calls the upstream audit API.
type Client struct {
	endpoint   string
	login      string
	password   string
	userAgent  string
	httpClient *http.Client
}

// ClientOptions configures the upstream audit API client.
type ClientOptions struct {
	Endpoint  string
	Login     string
	Password  string
	UserAgent string
	Timeout   time.Duration
}

// NewClient creates a remote PageChecker against the upstream audit API.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "AuditSmith/1.0"
	}
	return &Client{
		endpoint:   opts.Endpoint,
		login:      opts.Login,
		password:   opts.Password,
		userAgent:  opts.UserAgent,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

// CheckStructural runs the upstream structural audit for one URL.
func (c *Client) CheckStructural(ctx context.Context, pageURL string) (*models.StructuralReport, error) {
	var report models.StructuralReport
	if err := c.call(ctx, "structural", pageURL, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// CheckPerformance runs the upstream performance audit for one URL.
func (c *Client) CheckPerformance(ctx context.Context, pageURL string) (*models.PerformanceReport, error) {
	var report models.PerformanceReport
	if err := c.call(ctx, "performance", pageURL, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// CheckBotAccess runs the upstream bot-access audit for one URL.
func (c *Client) CheckBotAccess(ctx context.Context, pageURL string) (*models.BotAccessReport, error) {
	var report models.BotAccessReport
	if err := c.call(ctx, "botaccess", pageURL, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) call(ctx context.Context, check, pageURL string, out any) error {
	endpoint := fmt.Sprintf("%s/v1/audit/%s?url=%s", c.endpoint, check, url.QueryEscape(pageURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", check, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.login != "" {
		req.SetBasicAuth(c.login, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s check failed: %w", check, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s check returned status %d: %s", check, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", check, err)
	}
	return nil
}
