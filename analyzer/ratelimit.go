package analyzer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"go.viam.com/fieldscout/logging"
)

// DefaultRequestsPerMinute is the external model's request budget.
const DefaultRequestsPerMinute = 15

// Lets a tick that lands slightly early through.
const rateLimitBurst = 2

type rateLimited struct {
	delegate Analyzer
	limiter  *rate.Limiter
	logger   logging.Logger
}

// NewRateLimited wraps delegate with a local token bucket of perMinute requests. Requests over
// budget are not queued: they fail immediately with ErrRateLimited and the empty result.
func NewRateLimited(delegate Analyzer, perMinute float64, logger logging.Logger) Analyzer {
	if perMinute <= 0 {
		perMinute = DefaultRequestsPerMinute
	}
	interval := time.Duration(float64(time.Minute) / perMinute)
	return &rateLimited{
		delegate: delegate,
		limiter:  rate.NewLimiter(rate.Every(interval), rateLimitBurst),
		logger:   logger,
	}
}

func (r *rateLimited) Analyze(ctx context.Context, img []byte, mimeType string, label DatasetLabel) (Result, error) {
	if !r.limiter.Allow() {
		r.logger.CDebugw(ctx, "local request budget exhausted, skipping analysis")
		return EmptyResult(label), errors.Wrap(ErrRateLimited, "local request budget exhausted")
	}
	return r.delegate.Analyze(ctx, img, mimeType, label)
}
