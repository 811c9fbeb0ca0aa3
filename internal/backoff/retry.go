package backoff

import (
	"context"
	"math/rand"
)

// Result holds the outcome of a Retry call.
type Result[T any] struct {
	// Value is the successful return value.
	Value T
	// Retries is the number of retries performed; 0 means the first
	// attempt succeeded.
	Retries int
	// ErrorTypes records the classified name of every failed attempt,
	// in order.
	ErrorTypes []string
}

// Retry runs fn until it succeeds, fails permanently, or the retry budget
// is spent. maxRetries bounds retries, not attempts: maxRetries=3 allows
// four calls. isTransient decides whether an error is worth retrying (nil
// retries everything); classify names each transient failure for
// reporting (nil skips recording). Delays between attempts follow the
// policy with full jitter and respect context cancellation.
func Retry[T any](
	ctx context.Context,
	p Policy,
	maxRetries int,
	isTransient func(error) bool,
	classify func(error) string,
	fn func(ctx context.Context) (T, error),
) (Result[T], error) {
	var res Result[T]

	for attempt := 0; ; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			res.Value = value
			res.Retries = attempt
			return res, nil
		}
		res.Retries = attempt

		if isTransient != nil && !isTransient(err) {
			return res, err
		}
		if classify != nil {
			res.ErrorTypes = append(res.ErrorTypes, classify(err))
		}
		if attempt >= maxRetries {
			return res, err
		}

		delay := Delay(p, attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
		if serr := SleepWithContext(ctx, delay); serr != nil {
			return res, serr
		}
	}
}
