package deadline

import (
	"errors"
	"flag"
	"fmt"
	"time"

	// embed the zone database so America/New_York resolves on minimal images
	_ "time/tzdata"
)

const (
	// HighWindow is the flat response window for TierHigh.
	HighWindow = 12 * time.Hour

	// TargetHour is the Eastern wall-clock hour calendar deadlines land on.
	TargetHour = 15

	// DisplayLayout is how deadlines are rendered in notifications.
	DisplayLayout = "Mon, Jan 2, 2006, 3:04 PM MST"

	easternZone = "America/New_York"

	easternStandardOffset = -5 * 60 * 60
	easternDaylightOffset = -4 * 60 * 60
)

// DSTMode selects how Eastern daylight saving is resolved for calendar tiers.
type DSTMode string

const (
	// DSTZoneDB uses the Go timezone database for America/New_York.
	DSTZoneDB DSTMode = "tzdb"

	// DSTLegacy compares the reference zone's January and July offsets and
	// flags daylight saving when the target date departs from the standard
	// one. It misclassifies dates when the reference zone is not Eastern.
	DSTLegacy DSTMode = "legacy"
)

// Deadline is an absolute response instant in UTC.
type Deadline struct {
	Instant time.Time `json:"deadline"`
}

// Request is a single deadline computation input.
type Request struct {
	ReceivedAt time.Time `json:"received_at"`
	Tier       Tier      `json:"tier"`
}

// Config holds deadline engine settings.
type Config struct {
	DSTMode     string
	LegacyZone  string
	DisplayZone string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DSTMode, "deadline-dst-mode", string(DSTZoneDB), "daylight saving resolution for calendar deadlines (tzdb|legacy)")
	fs.StringVar(&c.LegacyZone, "deadline-legacy-zone", easternZone, "reference zone sampled by the legacy DST heuristic")
	fs.StringVar(&c.DisplayZone, "deadline-display-zone", easternZone, "zone used when rendering deadlines for humans")
}

// Validate checks all configuration fields for correctness.
func (c *Config) Validate() error {
	var errs []error
	switch DSTMode(c.DSTMode) {
	case DSTZoneDB, DSTLegacy:
	default:
		errs = append(errs, fmt.Errorf("invalid DEADLINE_DST_MODE %q (must be tzdb or legacy)", c.DSTMode))
	}
	if _, err := time.LoadLocation(c.LegacyZone); err != nil {
		errs = append(errs, fmt.Errorf("invalid DEADLINE_LEGACY_ZONE %q: %w", c.LegacyZone, err))
	}
	if _, err := time.LoadLocation(c.DisplayZone); err != nil {
		errs = append(errs, fmt.Errorf("invalid DEADLINE_DISPLAY_ZONE %q: %w", c.DisplayZone, err))
	}
	return errors.Join(errs...)
}

// Engine computes deadlines. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	mode    DSTMode
	eastern *time.Location
	legacy  *time.Location
	display *time.Location
}

// New builds an Engine from validated configuration.
func New(c Config) (*Engine, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	eastern, err := time.LoadLocation(easternZone)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", easternZone, err)
	}
	legacy, _ := time.LoadLocation(c.LegacyZone)
	display, _ := time.LoadLocation(c.DisplayZone)
	return &Engine{
		mode:    DSTMode(c.DSTMode),
		eastern: eastern,
		legacy:  legacy,
		display: display,
	}, nil
}

// Default returns a tzdb-backed Engine rendering in Eastern time.
func Default() *Engine {
	e, err := New(Config{DSTMode: string(DSTZoneDB), LegacyZone: easternZone, DisplayZone: easternZone})
	if err != nil {
		panic(err)
	}
	return e
}

// Mode reports the configured DST resolution mode.
func (e *Engine) Mode() DSTMode { return e.mode }

// Compute returns the response deadline for a message received at receivedAt.
func (e *Engine) Compute(receivedAt time.Time, tier Tier) (Deadline, error) {
	if !tier.Valid() {
		return Deadline{}, &InvalidTierError{Tier: string(tier)}
	}

	if tier == TierHigh {
		return Deadline{Instant: receivedAt.Add(HighWindow).UTC()}, nil
	}

	day := BusinessDaysAfter(receivedAt, tier.businessDays())
	return Deadline{Instant: e.atTargetHour(day)}, nil
}

// Format renders d in the display zone using DisplayLayout.
func (e *Engine) Format(d Deadline) string {
	return d.Instant.In(e.display).Format(DisplayLayout)
}

// BusinessDaysAfter counts n weekdays forward from the calendar date of t,
// taken in t's own location. The returned value is midnight UTC of the
// resulting date and only its Y/M/D are meaningful.
func BusinessDaysAfter(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	for counted := 0; counted < n; {
		day = day.AddDate(0, 0, 1)
		if IsBusinessDay(day) {
			counted++
		}
	}
	return day
}

// IsBusinessDay reports whether t falls on Monday through Friday.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func (e *Engine) atTargetHour(day time.Time) time.Time {
	y, m, d := day.Date()
	if e.mode == DSTLegacy {
		zone := time.FixedZone("EST", easternStandardOffset)
		if legacyIsDST(e.legacy, y, m, d) {
			zone = time.FixedZone("EDT", easternDaylightOffset)
		}
		return time.Date(y, m, d, TargetHour, 0, 0, 0, zone).UTC()
	}
	return time.Date(y, m, d, TargetHour, 0, 0, 0, e.eastern).UTC()
}

// legacyIsDST reproduces the half-year offset comparison: the standard
// offset is the smaller of the Jan 1 and Jul 1 offsets in ref, and a date is
// daylight time when its own offset (sampled at 00:00 UTC) differs from it.
func legacyIsDST(ref *time.Location, y int, m time.Month, d int) bool {
	_, jan := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC).In(ref).Zone()
	_, jul := time.Date(y, time.July, 1, 0, 0, 0, 0, time.UTC).In(ref).Zone()
	std := min(jan, jul)
	_, cur := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).In(ref).Zone()
	return cur != std
}
