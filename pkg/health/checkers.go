package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running,
// which usually means a leak.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// MaxCountCheck fails when count() exceeds limit. what names the counted
// resource in the error.
func MaxCountCheck(what string, limit int, count func() int) CheckFunc {
	return func(_ context.Context) error {
		if n := count(); n > limit {
			return errors.Errorf("%d %s exceeds limit %d", n, what, limit)
		}
		return nil
	}
}

// MinCountCheck fails when count() is below minimum.
func MinCountCheck(what string, minimum int, count func() int) CheckFunc {
	return func(_ context.Context) error {
		if n := count(); n < minimum {
			return errors.Errorf("%d %s is below minimum %d", n, what, minimum)
		}
		return nil
	}
}
