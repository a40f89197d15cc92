package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amosWeiskopf/auditsmith/internal/models"
	"github.com/amosWeiskopf/auditsmith/pkg/gateway"
)

// fakeChecker lets each check kind be scripted independently.
type fakeChecker struct {
	structural  func(ctx context.Context) (*models.StructuralReport, error)
	performance func(ctx context.Context) (*models.PerformanceReport, error)
	botAccess   func(ctx context.Context) (*models.BotAccessReport, error)
}

func (f *fakeChecker) CheckStructural(ctx context.Context, _ string) (*models.StructuralReport, error) {
	return f.structural(ctx)
}

func (f *fakeChecker) CheckPerformance(ctx context.Context, _ string) (*models.PerformanceReport, error) {
	return f.performance(ctx)
}

func (f *fakeChecker) CheckBotAccess(ctx context.Context, _ string) (*models.BotAccessReport, error) {
	return f.botAccess(ctx)
}

func okChecker() *fakeChecker {
	return &fakeChecker{
		structural: func(context.Context) (*models.StructuralReport, error) {
			return &models.StructuralReport{
				Issues: []models.Issue{{Type: "Missing Title", Severity: "high"}},
				Counts: models.IssueCounts{Total: 1, High: 1},
			}, nil
		},
		performance: func(context.Context) (*models.PerformanceReport, error) {
			return &models.PerformanceReport{Score: 91}, nil
		},
		botAccess: func(context.Context) (*models.BotAccessReport, error) {
			return &models.BotAccessReport{AllowedCount: 10}, nil
		},
	}
}

func newPipeline(fc *fakeChecker, opts Options) *Pipeline {
	return New(fc, gateway.New(100, zap.NewNop().Sugar()), opts, zap.NewNop().Sugar())
}

func TestAuditPageAllChecksSucceed(t *testing.T) {
	p := newPipeline(okChecker(), Options{})

	result := p.AuditPage(context.Background(), "https://example.com/")

	assert.Equal(t, models.PageSuccess, result.Status)
	require.Len(t, result.Outcomes, 3)
	for _, o := range result.Outcomes {
		assert.Equal(t, models.StatusSuccess, o.Status, string(o.Kind))
	}
	require.NotNil(t, result.Outcome(models.CheckStructural).Structural)
	assert.Equal(t, 1, result.Outcome(models.CheckStructural).Structural.Counts.Total)
	assert.Equal(t, 91.0, result.Outcome(models.CheckPerformance).Performance.Score)
}

func TestAuditPagePartialOnPerformanceTimeout(t *testing.T) {
	fc := okChecker()
	fc.performance = func(ctx context.Context) (*models.PerformanceReport, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	p := newPipeline(fc, Options{PerformanceTimeout: 100 * time.Millisecond})

	result := p.AuditPage(context.Background(), "https://example.com/")

	assert.Equal(t, models.PagePartial, result.Status)
	perf := result.Outcome(models.CheckPerformance)
	assert.Equal(t, models.StatusTimeout, perf.Status)
	assert.Nil(t, perf.Performance)
	// Siblings are unaffected by the slow performance check.
	assert.Equal(t, models.StatusSuccess, result.Outcome(models.CheckStructural).Status)
	assert.Equal(t, models.StatusSuccess, result.Outcome(models.CheckBotAccess).Status)
}

func TestAuditPageErrorRecordedNotRaised(t *testing.T) {
	fc := okChecker()
	fc.botAccess = func(context.Context) (*models.BotAccessReport, error) {
		return nil, errors.New("connection refused")
	}
	p := newPipeline(fc, Options{})

	result := p.AuditPage(context.Background(), "https://example.com/")

	assert.Equal(t, models.PagePartial, result.Status)
	bots := result.Outcome(models.CheckBotAccess)
	assert.Equal(t, models.StatusError, bots.Status)
	assert.Contains(t, bots.ErrorMessage, "connection refused")
}

func TestAuditPageFailedWhenAllChecksFail(t *testing.T) {
	fail := errors.New("upstream down")
	fc := &fakeChecker{
		structural:  func(context.Context) (*models.StructuralReport, error) { return nil, fail },
		performance: func(context.Context) (*models.PerformanceReport, error) { return nil, fail },
		botAccess:   func(context.Context) (*models.BotAccessReport, error) { return nil, fail },
	}
	p := newPipeline(fc, Options{})

	result := p.AuditPage(context.Background(), "https://example.com/")

	assert.Equal(t, models.PageFailed, result.Status)
	for _, o := range result.Outcomes {
		assert.Equal(t, models.StatusError, o.Status)
	}
}

func TestAuditPageChecksRunConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := func(ctx context.Context) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
		inFlight.Add(-1)
	}
	fc := &fakeChecker{
		structural: func(ctx context.Context) (*models.StructuralReport, error) {
			slow(ctx)
			return &models.StructuralReport{}, nil
		},
		performance: func(ctx context.Context) (*models.PerformanceReport, error) {
			slow(ctx)
			return &models.PerformanceReport{}, nil
		},
		botAccess: func(ctx context.Context) (*models.BotAccessReport, error) {
			slow(ctx)
			return &models.BotAccessReport{}, nil
		},
	}
	p := newPipeline(fc, Options{})

	start := time.Now()
	result := p.AuditPage(context.Background(), "https://example.com/")

	assert.Equal(t, models.PageSuccess, result.Status)
	assert.Equal(t, int32(3), peak.Load(), "the three checks must overlap")
	assert.Less(t, time.Since(start).Milliseconds(), int64(280),
		"sequential checks would take at least 300ms")
}

func TestEveryCheckConsumesOneAdmission(t *testing.T) {
	gw := gateway.New(100, zap.NewNop().Sugar())
	p := New(okChecker(), gw, Options{}, zap.NewNop().Sugar())

	p.AuditPage(context.Background(), "https://example.com/")

	assert.Equal(t, 3, gw.InFlight())
}

func TestDerivePageStatusTable(t *testing.T) {
	mk := func(statuses ...models.CheckStatus) []models.CheckOutcome {
		outcomes := make([]models.CheckOutcome, len(statuses))
		for i, s := range statuses {
			outcomes[i] = models.CheckOutcome{Kind: models.AllCheckKinds[i], Status: s}
		}
		return outcomes
	}

	tests := []struct {
		name     string
		outcomes []models.CheckOutcome
		want     models.PageStatus
	}{
		{"all success", mk(models.StatusSuccess, models.StatusSuccess, models.StatusSuccess), models.PageSuccess},
		{"all error", mk(models.StatusError, models.StatusError, models.StatusError), models.PageFailed},
		{"all timeout", mk(models.StatusTimeout, models.StatusTimeout, models.StatusTimeout), models.PageFailed},
		{"error and timeout", mk(models.StatusError, models.StatusTimeout, models.StatusError), models.PageFailed},
		{"one timeout", mk(models.StatusSuccess, models.StatusTimeout, models.StatusSuccess), models.PagePartial},
		{"one success", mk(models.StatusError, models.StatusError, models.StatusSuccess), models.PagePartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.DerivePageStatus(tt.outcomes))
		})
	}
}
