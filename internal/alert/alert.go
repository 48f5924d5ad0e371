// Package alert decides whether a new price observation deserves a notification.
package alert

// DropThreshold is the minimum relative fall of the official price, against
// the last recorded official price, that triggers an alert.
const DropThreshold = 0.10

// Reason explains why an alert fired.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonOfficialDrop Reason = "official price dropped ≥10%"
	ReasonDiscount     Reason = "promotional discount present"
)

// Decision is the outcome of Decide. Price is the effective price to report:
// the discounted price when present, otherwise the official price.
type Decision struct {
	Alert     bool
	Reference float64
	Price     float64
	Reason    Reason
}

// DropPercent returns how far Price sits below Reference, in percent.
func (d Decision) DropPercent() float64 {
	if d.Reference <= 0 {
		return 0
	}
	return (d.Reference - d.Price) / d.Reference * 100
}

// Decide applies the alert rules in order; the first match wins and at most
// one alert is produced:
//
//  1. the official price fell at least DropThreshold below lastOfficial
//     (reference is lastOfficial);
//  2. a discounted price is present (reference is newOfficial);
//  3. otherwise no alert.
func Decide(lastOfficial *float64, newOfficial float64, newDiscounted *float64) Decision {
	price := newOfficial
	if newDiscounted != nil {
		price = *newDiscounted
	}

	if lastOfficial != nil {
		last := *lastOfficial
		if last > 0 && newOfficial < last && (last-newOfficial)/last >= DropThreshold {
			return Decision{Alert: true, Reference: last, Price: price, Reason: ReasonOfficialDrop}
		}
	}

	if newDiscounted != nil {
		return Decision{Alert: true, Reference: newOfficial, Price: price, Reason: ReasonDiscount}
	}

	return Decision{Price: price}
}
