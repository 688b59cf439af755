package scheduler

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	CadenceHourly = "0 * * * *"
	CadenceDaily  = "0 0 * * *"
)

// Interval is a fixed-rate schedule. Unlike cron.Every it keeps
// sub-second precision, so Next(t) is never earlier than t plus the delay.
type Interval time.Duration

var _ cron.Schedule = Interval(0)

func (i Interval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(i))
}

type Cadence struct {
	Name     string
	Interval Interval
}

var (
	Hourly = Cadence{Name: "hourly", Interval: Interval(time.Hour)}
	Daily  = Cadence{Name: "daily", Interval: Interval(24 * time.Hour)}
)

// ParseCadence maps a cadence expression to one of the supported named
// cadences. Only hourly and daily are recognized; anything else yields
// Hourly with ok set to false. Unrecognized input is never an error.
func ParseCadence(expr string) (c Cadence, ok bool) {
	switch strings.ToLower(strings.Join(strings.Fields(expr), " ")) {
	case CadenceHourly, "@hourly", "hourly":
		return Hourly, true
	case CadenceDaily, "@daily", "@midnight", "daily":
		return Daily, true
	default:
		return Hourly, false
	}
}

// IsCronSyntax reports whether expr is a well-formed standard cron
// expression, letting callers tell "unsupported" apart from "malformed"
// when ParseCadence falls back.
func IsCronSyntax(expr string) bool {
	_, err := cron.ParseStandard(expr)
	return err == nil
}
