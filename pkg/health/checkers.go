package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than limit goroutines are running.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("goroutine count %d exceeds %d", n, limit)
		}
		return nil
	}
}

// Pinger is implemented by connection pools.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be reached.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}
