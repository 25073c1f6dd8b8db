package recognition

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

type rateLimited struct {
	limiter *rate.Limiter
	next    Recognizer
}

// WithRateLimit throttles calls to next. A non-positive rate returns next unchanged.
func WithRateLimit(next Recognizer, perSecond float64, burst int) Recognizer {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		next:    next,
	}
}

func (r *rateLimited) Recognize(ctx context.Context, image document.PageImage, opts document.Options) ([]document.PageAnnotation, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Recognize(ctx, image, opts)
}
