package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/arimarlgomes/KleinManager/internal/integrations/carrier"
	"github.com/arimarlgomes/KleinManager/internal/models"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

// scriptedCarrier returns one scripted answer per tracking number.
type scriptedCarrier struct {
	byNumber map[string]carrier.Result
	errs     map[string]error
	hints    []string
}

func (c *scriptedCarrier) Lookup(ctx context.Context, carrierCode, trackNumber string) (carrier.Result, error) {
	c.hints = append(c.hints, carrierCode)
	if err, ok := c.errs[trackNumber]; ok {
		return carrier.Result{}, err
	}
	return c.byNumber[trackNumber], nil
}

func testClock() fixedClock {
	return fixedClock{t: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)}
}

func orderWithTracking(id uint64, number string) models.Order {
	n := number
	return models.Order{ID: id, TrackingNumber: &n, Status: models.OrderStatusOrdered}
}

func TestReconcile_NoTrackingNumberRejected(t *testing.T) {
	r := NewReconciler(&scriptedCarrier{}).WithThrottle(NewFixedDelay(0))
	_, err := r.Reconcile(context.Background(), models.Order{ID: 1})
	require.ErrorIs(t, err, ErrNoTrackingNumber)
}

func TestReconcile_UpdatesOrder(t *testing.T) {
	sc := &scriptedCarrier{byNumber: map[string]carrier.Result{
		"N1": {Carrier: carrier.CodeDHL, Status: "In transit", Phase: carrier.PhaseTransit, Progress: 42,
			Events: []carrier.Event{{Status: "In transit", Location: "Leipzig"}}},
	}}
	clk := testClock()
	r := NewReconciler(sc).WithClock(clk).WithThrottle(NewFixedDelay(0))

	out, err := r.Reconcile(context.Background(), orderWithTracking(7, "N1"))
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusShipped, out.Status)
	require.Equal(t, "dhl", *out.Carrier)
	require.Equal(t, clk.t, *out.DHLLastUpdate)
	require.Equal(t, []string{carrier.CodeAuto}, sc.hints)

	var snap models.TrackingSnapshot
	require.NoError(t, json.Unmarshal([]byte(*out.TrackingDetails), &snap))
	require.Equal(t, 42, snap.Progress)
	require.Equal(t, *out.TrackingDetails, *out.DHLDetails)
}

func TestReconcile_ExplicitCarrierUsedAsHint(t *testing.T) {
	sc := &scriptedCarrier{byNumber: map[string]carrier.Result{
		"N1": {Carrier: carrier.CodeHermes, Status: "In transit", Phase: carrier.PhaseTransit, Progress: 10},
	}}
	r := NewReconciler(sc).WithClock(testClock()).WithThrottle(NewFixedDelay(0))

	o := orderWithTracking(1, "N1")
	o.Carrier = strp(carrier.CodeHermes)
	_, err := r.Reconcile(context.Background(), o)
	require.NoError(t, err)
	require.Equal(t, []string{carrier.CodeHermes}, sc.hints)
}

func TestReconcile_UnrecognizedCarrierPreservesPrior(t *testing.T) {
	sc := &scriptedCarrier{byNumber: map[string]carrier.Result{
		"N1": {Carrier: "", Status: "In transit", Phase: carrier.PhaseTransit, Progress: 10},
	}}
	r := NewReconciler(sc).WithClock(testClock()).WithThrottle(NewFixedDelay(0))

	o := orderWithTracking(1, "N1")
	o.Carrier = strp(carrier.CodeDHL)
	out, err := r.Reconcile(context.Background(), o)
	require.NoError(t, err)
	require.Equal(t, carrier.CodeDHL, *out.Carrier)
}

func TestReconcile_LookupFailureStoredNotRaised(t *testing.T) {
	sc := &scriptedCarrier{byNumber: map[string]carrier.Result{
		"N1": {Carrier: carrier.CodeDHL, Failure: carrier.FailureNotFound},
	}}
	r := NewReconciler(sc).WithClock(testClock()).WithThrottle(NewFixedDelay(0))

	out, err := r.Reconcile(context.Background(), orderWithTracking(1, "N1"))
	require.NoError(t, err)
	// Status transition suppressed, failure visible in the snapshot.
	require.Equal(t, models.OrderStatusOrdered, out.Status)
	var snap models.TrackingSnapshot
	require.NoError(t, json.Unmarshal([]byte(*out.TrackingDetails), &snap))
	require.Equal(t, carrier.FailureNotFound, snap.Error)
}

func TestReconcile_TransportFaultLeavesOrderUntouched(t *testing.T) {
	boom := errors.New("dial timeout")
	sc := &scriptedCarrier{errs: map[string]error{"N1": boom}}
	r := NewReconciler(sc).WithClock(testClock()).WithThrottle(NewFixedDelay(0))

	in := orderWithTracking(1, "N1")
	out, err := r.Reconcile(context.Background(), in)
	require.ErrorIs(t, err, boom)
	require.Equal(t, in, out)
}

func TestReconcileAll_IsolatesFaults(t *testing.T) {
	sc := &scriptedCarrier{
		byNumber: map[string]carrier.Result{
			"A": {Carrier: carrier.CodeDHL, Status: "In transit", Phase: carrier.PhaseTransit, Progress: 30,
				Events: []carrier.Event{{Status: "In transit"}}},
			"C": {Carrier: carrier.CodeDHL, Status: "Delivered", Phase: carrier.PhaseDelivered, Progress: 100,
				Events: []carrier.Event{{Status: "Delivered"}}},
		},
		errs: map[string]error{"B": errors.New("connection reset")},
	}
	r := NewReconciler(sc).WithClock(testClock()).WithThrottle(NewFixedDelay(0))

	updated, fresh := r.ReconcileAll(context.Background(), []models.Order{
		orderWithTracking(1, "A"),
		orderWithTracking(2, "B"),
		orderWithTracking(3, "C"),
	})
	require.Len(t, updated, 2)
	require.Equal(t, uint64(1), updated[0].ID)
	require.Equal(t, uint64(3), updated[1].ID)
	require.Equal(t, 2, fresh)
	require.Equal(t, models.OrderStatusDelivered, updated[1].Status)
}

func TestReconcileAll_CountsOnlyMeaningfulPolls(t *testing.T) {
	sc := &scriptedCarrier{byNumber: map[string]carrier.Result{
		"A": {Carrier: carrier.CodeDHL, Status: "In transit", Phase: carrier.PhaseTransit, Progress: 30,
			Events: []carrier.Event{{Status: "In transit"}}},
		"B": {Carrier: carrier.CodeDHL, Failure: carrier.FailureNotFound},
		"C": {Carrier: carrier.CodeDHL, Status: "In transit", Phase: carrier.PhaseTransit, Progress: 30},
	}}
	r := NewReconciler(sc).WithClock(testClock()).WithThrottle(NewFixedDelay(0))

	updated, fresh := r.ReconcileAll(context.Background(), []models.Order{
		orderWithTracking(1, "A"),
		orderWithTracking(2, "B"),
		orderWithTracking(3, "C"),
	})
	// All three orders get their snapshot stored, but only A counts as fresh.
	require.Len(t, updated, 3)
	require.Equal(t, 1, fresh)
}

func TestReconcileAll_ThrottledBetweenItems(t *testing.T) {
	sc := &scriptedCarrier{byNumber: map[string]carrier.Result{
		"A": {Carrier: carrier.CodeDHL, Phase: carrier.PhaseTransit, Progress: 1},
		"B": {Carrier: carrier.CodeDHL, Phase: carrier.PhaseTransit, Progress: 2},
	}}
	waits := 0
	r := NewReconciler(sc).WithClock(testClock()).WithThrottle(countingThrottle{n: &waits})

	r.ReconcileAll(context.Background(), []models.Order{
		orderWithTracking(1, "A"),
		orderWithTracking(2, "B"),
	})
	require.Equal(t, 1, waits)
}

type countingThrottle struct {
	n *int
}

func (c countingThrottle) Wait(ctx context.Context) error {
	*c.n++
	return ctx.Err()
}

type fakeLimiter struct {
	allowed bool
	keys    []string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	f.keys = append(f.keys, key)
	return f.allowed, 1, nil
}

func TestReconcile_RateLimiterConsulted(t *testing.T) {
	sc := &scriptedCarrier{byNumber: map[string]carrier.Result{
		"N1": {Carrier: carrier.CodeDHL, Phase: carrier.PhaseTransit, Progress: 5},
	}}
	fl := &fakeLimiter{allowed: true}
	r := NewReconciler(sc).WithClock(testClock()).WithThrottle(NewFixedDelay(0)).WithRateLimit(fl, 60)

	_, err := r.Reconcile(context.Background(), orderWithTracking(1, "N1"))
	require.NoError(t, err)
	require.Len(t, fl.keys, 1)
	require.Contains(t, fl.keys[0], "rl:carrier:auto:")
}
