package portal

import (
	"math"
	"time"
)

const (
	StatusActive   = "active"
	StatusExpiring = "expiring"
	StatusExpired  = "expired"
)

const expiringWindowDays = 7

// DaysLeft is the whole number of days between now and the expiry date,
// rounded down. Negative once the date has passed.
func DaysLeft(expiry, now time.Time) int {
	return int(math.Floor(expiry.Sub(now).Hours() / 24))
}

// Classify maps remaining days to a display status: expired at zero or
// below, expiring inside the 7-day window, active otherwise.
func Classify(daysLeft int) string {
	switch {
	case daysLeft <= 0:
		return StatusExpired
	case daysLeft <= expiringWindowDays:
		return StatusExpiring
	default:
		return StatusActive
	}
}

// EffectiveStatus honors an explicit expired flag on the row; everything
// else is derived from the expiry date.
func EffectiveStatus(stored string, daysLeft int) string {
	if stored == StatusExpired {
		return StatusExpired
	}
	return Classify(daysLeft)
}
