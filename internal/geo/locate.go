package geo

import (
	"context"
	"errors"
	"time"
)

// Acquisition timing. The continuous watch gets a 30s budget; a single-shot
// fallback fires after a short grace period with its own 10s timeout.
const (
	watchBudget   = 30 * time.Second
	fallbackDelay = 100 * time.Millisecond
	singleTimeout = 10 * time.Second
)

// Classified acquisition failures. Each carries the user-facing remedy;
// callers surface the message and let the user re-trigger, no retries here.
var (
	ErrPermissionDenied    = errors.New("location access was denied: allow location sharing in your device settings")
	ErrPositionUnavailable = errors.New("could not determine position: make sure GPS is enabled on your device")
	ErrLocationTimeout     = errors.New("location request timed out: please try again")
)

// Fix is one result from a continuous watch: a location or a terminal error.
type Fix struct {
	Location Location
	Err      error
}

// Provider supplies position fixes from a device or positioning daemon.
type Provider interface {
	// Watch streams fixes until ctx is cancelled. An error returned here
	// means the watch facility itself is unavailable.
	Watch(ctx context.Context) (<-chan Fix, error)
	// Current requests a single fix.
	Current(ctx context.Context) (Location, error)
}

// Acquire resolves one position fix. It starts a continuous high-accuracy
// watch and shortly after also fires a single-shot request; the first fix
// wins and the losing source is cancelled with the shared context. The first
// error reported before any fix is returned as-is (already classified), and
// an exhausted budget maps to ErrLocationTimeout.
func Acquire(ctx context.Context, p Provider) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, watchBudget)
	defer cancel()

	results := make(chan Fix, 2)

	fixes, watchErr := p.Watch(ctx)
	if watchErr == nil {
		go func() {
			fx, ok := <-fixes
			if ok {
				results <- fx
			}
		}()
	}

	delay := fallbackDelay
	if watchErr != nil {
		// Watch unavailable, go straight to the single-shot.
		delay = 0
	}
	fallback := time.After(delay)

	for {
		select {
		case fx := <-results:
			if fx.Err != nil {
				return Location{}, classify(fx.Err)
			}
			return fx.Location, nil
		case <-fallback:
			fallback = nil
			go func() {
				sctx, scancel := context.WithTimeout(ctx, singleTimeout)
				defer scancel()
				loc, err := p.Current(sctx)
				results <- Fix{Location: loc, Err: err}
			}()
		case <-ctx.Done():
			return Location{}, ErrLocationTimeout
		}
	}
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrLocationTimeout
	}
	return err
}
