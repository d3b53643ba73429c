package deadline

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// 2000-01-01 .. 2040-01-01 in unix seconds
const (
	minUnix = 946684800
	maxUnix = 2208988800
)

func TestHighIsFlatTwelveHours(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	e := Default()

	properties.Property("high deadline equals receivedAt + 12h", prop.ForAll(
		func(sec int64, offsetMin int) bool {
			received := time.Unix(sec, 0).In(time.FixedZone("x", offsetMin*60))
			d, err := e.Compute(received, TierHigh)
			if err != nil {
				return false
			}
			return d.Instant.Equal(received.Add(12 * time.Hour))
		},
		gen.Int64Range(minUnix, maxUnix),
		gen.IntRange(-12*60, 14*60),
	))

	properties.TestingRun(t)
}

func TestCalendarTiersLandOnNthWeekdayAtThreeEastern(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	e := Default()
	eastern, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}

	check := func(tier Tier, n int) func(int64) bool {
		return func(sec int64) bool {
			received := time.Unix(sec, 0).UTC()
			d, err := e.Compute(received, tier)
			if err != nil {
				return false
			}

			local := d.Instant.In(eastern)
			if local.Hour() != TargetHour || local.Minute() != 0 || local.Second() != 0 {
				return false
			}
			if !IsBusinessDay(local) {
				return false
			}

			// count weekdays strictly after the received date up to the deadline date
			ry, rm, rd := received.Date()
			dy, dm, dd := local.Date()
			day := time.Date(ry, rm, rd, 0, 0, 0, 0, time.UTC)
			end := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
			counted := 0
			for day.Before(end) {
				day = day.AddDate(0, 0, 1)
				if IsBusinessDay(day) {
					counted++
				}
			}
			return counted == n
		}
	}

	properties.Property("moderate lands on 2nd weekday at 15:00 eastern",
		prop.ForAll(check(TierModerate, 2), gen.Int64Range(minUnix, maxUnix)))
	properties.Property("low lands on 3rd weekday at 15:00 eastern",
		prop.ForAll(check(TierLow, 3), gen.Int64Range(minUnix, maxUnix)))

	properties.TestingRun(t)
}
