package deadline

import (
	"fmt"
	"strings"
)

// Tier is the FedRAMP impact level governing response time.
type Tier string

const (
	// TierHigh must be answered within twelve hours of receipt
	TierHigh Tier = "high"

	// TierModerate is due at 15:00 Eastern on the second business day
	TierModerate Tier = "moderate"

	// TierLow is due at 15:00 Eastern on the third business day
	TierLow Tier = "low"
)

// InvalidTierError is returned for any tier outside High, Moderate and Low.
type InvalidTierError struct {
	Tier string
}

func (e *InvalidTierError) Error() string {
	return fmt.Sprintf("invalid impact tier %q (want high, moderate or low)", e.Tier)
}

// ParseTier accepts a case-insensitive tier name.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", &InvalidTierError{Tier: s}
	}
	return t, nil
}

// Valid reports whether t is one of the three known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierHigh, TierModerate, TierLow:
		return true
	}
	return false
}

// businessDays is the number of weekdays allowed for calendar-based tiers.
func (t Tier) businessDays() int {
	switch t {
	case TierModerate:
		return 2
	case TierLow:
		return 3
	}
	return 0
}
