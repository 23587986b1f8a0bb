package tracking

import (
	"encoding/json"

	"github.com/arimarlgomes/KleinManager/internal/integrations/carrier"
	"github.com/arimarlgomes/KleinManager/internal/models"
)

// Records written before the multi-carrier schema only ever tracked DHL.
const legacyDefaultCarrier = carrier.CodeDHL

// Upgrade presents an order in the current schema shape regardless of which
// schema generation wrote it: when tracking_details is empty but the legacy
// dhl_details mirror is present, the mirror is copied over and the carrier
// defaults to dhl. Pure; the caller decides whether to persist the result.
func Upgrade(o models.Order) models.Order {
	if strEmpty(o.TrackingDetails) && !strEmpty(o.DHLDetails) {
		details := *o.DHLDetails
		o.TrackingDetails = &details
		if strEmpty(o.Carrier) {
			c := legacyDefaultCarrier
			o.Carrier = &c
		}
	}
	return o
}

// DualWrite stores a fresh snapshot in both schema generations: the canonical
// tracking_details and the legacy dhl_details/dhl_status mirror. The mirror
// is written for every carrier, not just DHL, so old readers keep working.
func DualWrite(o models.Order, snap models.TrackingSnapshot) models.Order {
	b, _ := json.Marshal(snap)
	details := string(b)
	o.TrackingDetails = &details
	legacy := details
	o.DHLDetails = &legacy
	status := snap.Status
	o.DHLStatus = &status
	return o
}

func strEmpty(s *string) bool { return s == nil || *s == "" }
