package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amosWeiskopf/auditsmith/internal/models"
	"github.com/amosWeiskopf/auditsmith/pkg/checker"
	"github.com/amosWeiskopf/auditsmith/pkg/gateway"
)

// Pipeline runs the three audit checks for a single page. The checks run
// concurrently, each routed through the shared rate gateway with its own
// timeout, and every check resolves to an outcome: a slow or failing check
// never aborts its siblings.
type Pipeline struct {
	checker      checker.PageChecker
	gateway      *gateway.Gateway
	checkTimeout time.Duration
	perfTimeout  time.Duration
	logger       *zap.SugaredLogger
}

// Options configures per-check timeouts. The performance check's upstream
// is markedly slower than the other two, so it gets its own budget.
type Options struct {
	CheckTimeout       time.Duration
	PerformanceTimeout time.Duration
}

// New creates a Pipeline. Zero timeouts default to 15s (60s for performance).
func New(pc checker.PageChecker, gw *gateway.Gateway, opts Options, logger *zap.SugaredLogger) *Pipeline {
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 15 * time.Second
	}
	if opts.PerformanceTimeout <= 0 {
		opts.PerformanceTimeout = 60 * time.Second
	}
	return &Pipeline{
		checker:      pc,
		gateway:      gw,
		checkTimeout: opts.CheckTimeout,
		perfTimeout:  opts.PerformanceTimeout,
		logger:       logger,
	}
}

// AuditPage runs all three checks for one URL and reduces their outcomes
// into a single page result. No retries: a failed check is final for this run.
func (p *Pipeline) AuditPage(ctx context.Context, pageURL string) models.PageAuditResult {
	outcomes := make([]models.CheckOutcome, len(models.AllCheckKinds))

	var wg sync.WaitGroup
	for i, kind := range models.AllCheckKinds {
		wg.Add(1)
		go func(i int, kind models.CheckKind) {
			defer wg.Done()
			outcomes[i] = p.runCheck(ctx, kind, pageURL)
		}(i, kind)
	}
	wg.Wait()

	result := models.PageAuditResult{
		URL:      pageURL,
		Outcomes: outcomes,
		Status:   models.DerivePageStatus(outcomes),
	}
	if result.Status != models.PageSuccess {
		p.logger.Infow("page audit degraded", "url", pageURL, "status", result.Status)
	}
	return result
}

func (p *Pipeline) runCheck(ctx context.Context, kind models.CheckKind, pageURL string) models.CheckOutcome {
	timeout := p.checkTimeout
	if kind == models.CheckPerformance {
		timeout = p.perfTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome := models.CheckOutcome{Kind: kind}
	err := p.gateway.Execute(cctx, func(ctx context.Context) error {
		switch kind {
		case models.CheckStructural:
			report, err := p.checker.CheckStructural(ctx, pageURL)
			if err != nil {
				return err
			}
			outcome.Structural = report
		case models.CheckPerformance:
			report, err := p.checker.CheckPerformance(ctx, pageURL)
			if err != nil {
				return err
			}
			outcome.Performance = report
		case models.CheckBotAccess:
			report, err := p.checker.CheckBotAccess(ctx, pageURL)
			if err != nil {
				return err
			}
			outcome.BotAccess = report
		}
		return nil
	})

	switch {
	case err == nil:
		outcome.Status = models.StatusSuccess
	case errors.Is(err, context.DeadlineExceeded):
		outcome.Status = models.StatusTimeout
		outcome.ErrorMessage = "check timed out after " + timeout.String()
		p.logger.Warnw("check timed out", "kind", kind, "url", pageURL, "timeout", timeout)
	default:
		outcome.Status = models.StatusError
		outcome.ErrorMessage = err.Error()
		p.logger.Warnw("check failed", "kind", kind, "url", pageURL, "error", err)
	}
	return outcome
}
