package carrier

import (
	"context"
	"time"
)

// Known carrier codes plus the auto-detect sentinel.
const (
	CodeDHL    = "dhl"
	CodeHermes = "hermes"
	CodeAuto   = "auto"
)

// Coarse shipment phases shared by all carrier clients.
const (
	PhasePreTransit = "pre_transit"
	PhaseTransit    = "transit"
	PhaseDelivered  = "delivered"
	PhaseUnknown    = "unknown"
)

// Data-level lookup failure reasons. These are answers, not faults: the
// carrier responded, it just has nothing (useful) for the number.
const (
	FailureNotFound      = "not_found"
	FailureInvalidNumber = "invalid_number"
)

type Event struct {
	Time        time.Time
	Status      string
	Location    string
	Description string
}

// Result is a raw carrier answer. Failure is set for data-level lookup
// failures; transport faults come back as the error return of Lookup instead.
type Result struct {
	Carrier string
	Status  string
	Phase   string
	// Progress is the carrier's completion estimate in percent, or -1 when
	// the carrier does not report one.
	Progress int
	Events   []Event
	Failure  string
}

func (r Result) Failed() bool { return r.Failure != "" }

// IsKnown reports whether code names a carrier this system integrates with.
func IsKnown(code string) bool {
	switch code {
	case CodeDHL, CodeHermes:
		return true
	}
	return false
}

// Client looks a tracking number up at one carrier (or dispatches across
// several, see Registry). carrierCode may be CodeAuto.
type Client interface {
	Lookup(ctx context.Context, carrierCode, trackNumber string) (Result, error)
}

// Registry dispatches lookups to per-carrier clients and implements
// auto-detection by trying carriers in a fixed priority order.
type Registry struct {
	clients map[string]Client
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{clients: map[string]Client{}}
}

// Register adds a client for a carrier code. Registration order is the
// auto-detect priority order.
func (g *Registry) Register(code string, c Client) *Registry {
	if _, ok := g.clients[code]; !ok {
		g.order = append(g.order, code)
	}
	g.clients[code] = c
	return g
}

func (g *Registry) Known(code string) bool {
	_, ok := g.clients[code]
	return ok
}

func (g *Registry) Lookup(ctx context.Context, carrierCode, trackNumber string) (Result, error) {
	if carrierCode != "" && carrierCode != CodeAuto {
		c, ok := g.clients[carrierCode]
		if !ok {
			return Result{Carrier: carrierCode, Failure: FailureNotFound}, nil
		}
		return c.Lookup(ctx, carrierCode, trackNumber)
	}
	return g.detect(ctx, trackNumber)
}

// detect tries every registered carrier in priority order and returns the
// first data answer. When every carrier reports a data-level failure the
// result is a not_found failure; a transport fault is surfaced only if no
// carrier produced a data answer at all.
func (g *Registry) detect(ctx context.Context, trackNumber string) (Result, error) {
	var lastErr error
	sawAnswer := false
	for _, code := range g.order {
		res, err := g.clients[code].Lookup(ctx, code, trackNumber)
		if err != nil {
			lastErr = err
			continue
		}
		sawAnswer = true
		if !res.Failed() {
			return res, nil
		}
	}
	if !sawAnswer && lastErr != nil {
		return Result{}, lastErr
	}
	return Result{Failure: FailureNotFound}, nil
}
