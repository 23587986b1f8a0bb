package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arimarlgomes/KleinManager/internal/integrations/carrier"
	"github.com/arimarlgomes/KleinManager/internal/models"
	"github.com/pkg/errors"
)

// ErrNoTrackingNumber rejects a reconcile attempt before any lookup happens.
var ErrNoTrackingNumber = errors.New("order has no tracking number")

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Throttle paces the batch loop between items. Production wiring uses a real
// delay to respect carrier rate limits; tests use zero.
type Throttle interface {
	Wait(ctx context.Context) error
}

type FixedDelay struct {
	d time.Duration
}

func NewFixedDelay(d time.Duration) FixedDelay { return FixedDelay{d: d} }

func (f FixedDelay) Wait(ctx context.Context) error {
	if f.d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(f.d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RateLimiter is the per-carrier fixed-window limiter (Redis-backed in
// production). Optional.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Reconciler folds carrier answers into order records. It operates on
// in-memory order values only; persistence is the caller's concern.
type Reconciler struct {
	carrier  carrier.Client
	clock    Clock
	throttle Throttle

	rl          RateLimiter
	rlPerMinute int64
}

func NewReconciler(client carrier.Client) *Reconciler {
	return &Reconciler{
		carrier:  client,
		clock:    SystemClock{},
		throttle: NewFixedDelay(time.Second),
	}
}

func (r *Reconciler) WithClock(c Clock) *Reconciler {
	if c != nil {
		r.clock = c
	}
	return r
}

func (r *Reconciler) WithThrottle(t Throttle) *Reconciler {
	if t != nil {
		r.throttle = t
	}
	return r
}

func (r *Reconciler) WithRateLimit(rl RateLimiter, perMinute int64) *Reconciler {
	r.rl = rl
	r.rlPerMinute = perMinute
	return r
}

// Reconcile polls the carrier once and folds the answer into the order:
// snapshot dual-write, carrier resolution, status transition, poll timestamp.
// A lookup failure is not an error; it lands inside the stored snapshot. A
// transport fault returns the order unchanged alongside the error.
func (r *Reconciler) Reconcile(ctx context.Context, o models.Order) (models.Order, error) {
	out, _, err := r.reconcileOnce(ctx, o)
	return out, err
}

func (r *Reconciler) reconcileOnce(ctx context.Context, o models.Order) (models.Order, models.TrackingSnapshot, error) {
	if strEmpty(o.TrackingNumber) {
		return o, models.TrackingSnapshot{}, ErrNoTrackingNumber
	}

	hint := carrier.CodeAuto
	if !strEmpty(o.Carrier) {
		hint = *o.Carrier
	}

	if r.rl != nil && r.rlPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:carrier:%s:%s", hint, r.clock.Now().Format("200601021504"))
		allowed, n, err := r.rl.Allow(ctx, minuteKey, r.rlPerMinute, 70*time.Second)
		if err != nil {
			return o, models.TrackingSnapshot{}, err
		}
		if !allowed {
			slog.Warn("carrier rate limit exceeded", "carrier", hint, "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	res, err := r.carrier.Lookup(ctx, hint, *o.TrackingNumber)
	if err != nil {
		return o, models.TrackingSnapshot{}, errors.Wrap(err, "carrier lookup")
	}

	snap := Normalize(res)
	o = DualWrite(o, snap)
	// The answering carrier replaces the hint only when it is one we know;
	// an unrecognized or absent carrier never clears the previous value.
	if carrier.IsKnown(snap.Carrier) {
		c := snap.Carrier
		o.Carrier = &c
	}
	o.Status = NextStatus(o.Status, snap)
	now := r.clock.Now()
	o.DHLLastUpdate = &now
	o.UpdatedAt = now
	return o, snap, nil
}

// ReconcileAll runs the single-item routine over a worklist, sequentially and
// throttled. A transport fault skips that item (left unmodified) and the run
// continues. The returned slice holds only the orders that were updated; the
// count is the number of meaningfully fresh polls: snapshots without error
// and with at least one history event.
func (r *Reconciler) ReconcileAll(ctx context.Context, orders []models.Order) ([]models.Order, int) {
	updated := make([]models.Order, 0, len(orders))
	fresh := 0

	for i, o := range orders {
		if i > 0 {
			if err := r.throttle.Wait(ctx); err != nil {
				slog.Warn("batch reconcile interrupted", "error", err.Error())
				break
			}
		}

		out, snap, err := r.reconcileOnce(ctx, o)
		if err != nil {
			slog.Error("reconcile order", "order_id", o.ID, "error", err.Error())
			continue
		}
		updated = append(updated, out)
		if snap.Error == "" && len(snap.History) > 0 {
			fresh++
		}
	}

	return updated, fresh
}
