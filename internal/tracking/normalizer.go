package tracking

import (
	"github.com/arimarlgomes/KleinManager/internal/integrations/carrier"
	"github.com/arimarlgomes/KleinManager/internal/models"
)

// Normalized status texts used when a carrier gives a phase but no
// human-readable status of its own.
const (
	statusTextPreTransit = "Shipment announced"
	statusTextTransit    = "In transit"
	statusTextDelivered  = "Delivered"
	statusTextUnknown    = "Unknown"
)

// Normalize converts a raw carrier answer into the canonical snapshot.
// Stateless: a lookup failure yields an error snapshot with zero progress and
// empty history, never a carry-over of previous values.
func Normalize(res carrier.Result) models.TrackingSnapshot {
	if res.Failed() {
		return models.TrackingSnapshot{
			Carrier:  res.Carrier,
			Progress: 0,
			Error:    res.Failure,
		}
	}

	snap := models.TrackingSnapshot{
		Carrier:  res.Carrier,
		Status:   res.Status,
		Progress: clampProgress(res.Progress, res.Phase),
	}
	if snap.Status == "" {
		snap.Status = statusTextForPhase(res.Phase)
	}
	for _, e := range res.Events {
		snap.History = append(snap.History, models.TrackingEvent{
			Time:        e.Time,
			Status:      e.Status,
			Location:    e.Location,
			Description: e.Description,
		})
	}
	return snap
}

// clampProgress bounds the carrier's estimate to [0, 100] and derives a
// value from the phase when the carrier reports none.
func clampProgress(progress int, phase string) int {
	if progress < 0 {
		switch phase {
		case carrier.PhaseDelivered:
			return 100
		case carrier.PhaseTransit:
			return 50
		case carrier.PhasePreTransit:
			return 10
		default:
			return 0
		}
	}
	if progress > 100 {
		return 100
	}
	return progress
}

func statusTextForPhase(phase string) string {
	switch phase {
	case carrier.PhasePreTransit:
		return statusTextPreTransit
	case carrier.PhaseTransit:
		return statusTextTransit
	case carrier.PhaseDelivered:
		return statusTextDelivered
	default:
		return statusTextUnknown
	}
}
