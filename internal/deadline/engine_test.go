package deadline

import (
	"errors"
	"flag"
	"strings"
	"testing"
	"time"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func TestCompute(t *testing.T) {
	t.Parallel()

	e := Default()

	tests := []struct {
		name     string
		received string
		tier     Tier
		want     string
	}{
		{"moderate from friday afternoon", "2025-07-11T16:00:00Z", TierModerate, "2025-07-15T19:00:00Z"},
		{"low from saturday skips weekend", "2025-07-12T10:00:00Z", TierLow, "2025-07-16T19:00:00Z"},
		{"high in winter is flat add", "2025-01-06T09:30:00Z", TierHigh, "2025-01-06T21:30:00Z"},
		{"moderate in winter uses EST", "2025-01-06T09:30:00Z", TierModerate, "2025-01-08T20:00:00Z"},
		{"low from sunday", "2025-07-13T23:59:00Z", TierLow, "2025-07-16T19:00:00Z"},
		{"moderate from monday", "2025-07-14T00:00:00Z", TierModerate, "2025-07-16T19:00:00Z"},
		{"low from wednesday crosses weekend", "2025-07-16T12:00:00Z", TierLow, "2025-07-21T19:00:00Z"},
		{"spring forward target date decides", "2025-03-07T18:00:00Z", TierModerate, "2025-03-11T19:00:00Z"},
		{"fall back target date decides", "2025-10-31T18:00:00Z", TierModerate, "2025-11-04T20:00:00Z"},
		{"high across spring forward is not renormalized", "2025-03-08T20:00:00-05:00", TierHigh, "2025-03-09T13:00:00Z"},
		{"calendar date taken in received offset", "2025-07-10T21:00:00-07:00", TierModerate, "2025-07-14T19:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := e.Compute(mustParse(t, tt.received), tt.tier)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			want := mustParse(t, tt.want)
			if !got.Instant.Equal(want) {
				t.Errorf("deadline = %s, want %s", got.Instant.Format(time.RFC3339), tt.want)
			}
			if got.Instant.Location() != time.UTC {
				t.Errorf("location = %s, want UTC", got.Instant.Location())
			}
		})
	}
}

func TestCompute_InvalidTier(t *testing.T) {
	t.Parallel()

	for _, tier := range []Tier{"", "critical", "HIGH"} {
		_, err := Default().Compute(time.Now(), tier)
		var ite *InvalidTierError
		if !errors.As(err, &ite) {
			t.Fatalf("Compute(%q) error = %v, want InvalidTierError", tier, err)
		}
		if ite.Tier != string(tier) {
			t.Errorf("InvalidTierError.Tier = %q, want %q", ite.Tier, tier)
		}
	}
}

func TestParseTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{"high", TierHigh, false},
		{"Moderate", TierModerate, false},
		{" LOW ", TierLow, false},
		{"urgent", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseTier(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseTier(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseTier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLegacyDST(t *testing.T) {
	t.Parallel()

	received := mustParse(t, "2025-07-11T16:00:00Z")

	tests := []struct {
		name string
		zone string
		want string
	}{
		// eastern reference agrees with the zone database on weekdays
		{"eastern reference", "America/New_York", "2025-07-15T19:00:00Z"},
		// a zone without daylight saving never flags DST, so July lands on EST
		{"utc reference misclassifies summer", "UTC", "2025-07-15T20:00:00Z"},
		// southern hemisphere standard time is the July offset
		{"sydney reference inverts the season", "Australia/Sydney", "2025-07-15T20:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, err := New(Config{DSTMode: string(DSTLegacy), LegacyZone: tt.zone, DisplayZone: "UTC"})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			got, err := e.Compute(received, TierModerate)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if want := mustParse(t, tt.want); !got.Instant.Equal(want) {
				t.Errorf("deadline = %s, want %s", got.Instant.Format(time.RFC3339), tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	e := Default()
	got := e.Format(Deadline{Instant: mustParse(t, "2025-07-15T19:00:00Z")})
	if want := "Tue, Jul 15, 2025, 3:00 PM EDT"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}

	got = e.Format(Deadline{Instant: mustParse(t, "2025-01-08T20:00:00Z")})
	if want := "Wed, Jan 8, 2025, 3:00 PM EST"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestBusinessDaysAfter(t *testing.T) {
	t.Parallel()

	fri := mustParse(t, "2025-07-11T08:00:00Z")
	tests := []struct {
		n    int
		want string
	}{
		{0, "2025-07-11"},
		{1, "2025-07-14"},
		{5, "2025-07-18"},
		{6, "2025-07-21"},
	}
	for _, tt := range tests {
		got := BusinessDaysAfter(fri, tt.n).Format(time.DateOnly)
		if got != tt.want {
			t.Errorf("BusinessDaysAfter(fri, %d) = %s, want %s", tt.n, got, tt.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate, got: %v", err)
	}

	bad := Config{DSTMode: "guess", LegacyZone: "Mars/Olympus", DisplayZone: "UTC"}
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
	for _, sub := range []string{"DEADLINE_DST_MODE", "DEADLINE_LEGACY_ZONE"} {
		if !strings.Contains(err.Error(), sub) {
			t.Errorf("error %q does not contain %q", err, sub)
		}
	}
}
