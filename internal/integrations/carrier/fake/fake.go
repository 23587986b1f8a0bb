package fake

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/arimarlgomes/KleinManager/internal/integrations/carrier"
)

// Client is an in-process stand-in for a real carrier, used in tests and when
// no carrier credentials are configured. The answer is deterministic per
// (carrier, track number): most numbers are in transit, some delivered, some
// unknown to the carrier.
type Client struct{}

func New() *Client { return &Client{} }

func (f *Client) Lookup(ctx context.Context, carrierCode, trackNumber string) (carrier.Result, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(carrierCode))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(trackNumber))
	v := h.Sum32()

	code := carrierCode
	if code == "" || code == carrier.CodeAuto {
		code = carrier.CodeDHL
	}

	now := time.Now().UTC()
	switch v % 10 {
	case 0, 1:
		return carrier.Result{
			Carrier:  code,
			Status:   "Delivered",
			Phase:    carrier.PhaseDelivered,
			Progress: 100,
			Events: []carrier.Event{
				{Time: now.Add(-24 * time.Hour), Status: "In transit", Location: "Leipzig"},
				{Time: now, Status: "Delivered", Location: "Berlin"},
			},
		}, nil
	case 2:
		return carrier.Result{Carrier: code, Failure: carrier.FailureNotFound}, nil
	default:
		return carrier.Result{
			Carrier:  code,
			Status:   "In transit",
			Phase:    carrier.PhaseTransit,
			Progress: int(v % 100),
			Events: []carrier.Event{
				{Time: now, Status: "In transit", Location: "Leipzig"},
			},
		}, nil
	}
}
