package smacache

import (
	"time"

	"github.com/scmhub/calendar"
)

const (
	DefaultCutoffHour   = 16
	DefaultCutoffMinute = 15
	dateLayout          = "2006-01-02"
)

// MarketClock answers date questions in exchange (US/Eastern) time.
type MarketClock struct {
	Loc          *time.Location
	CutoffHour   int
	CutoffMinute int
	cal          *calendar.Calendar
}

func NewMarketClock(cutoffHour, cutoffMinute int) MarketClock {
	cal := calendar.GetCalendar("xnys")
	var loc *time.Location
	if cal != nil {
		loc = cal.Loc
	}
	if loc == nil {
		loc, _ = time.LoadLocation("America/New_York")
	}
	if loc == nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	return MarketClock{Loc: loc, CutoffHour: cutoffHour, CutoffMinute: cutoffMinute, cal: cal}
}

func DefaultMarketClock() MarketClock {
	return NewMarketClock(DefaultCutoffHour, DefaultCutoffMinute)
}

// ExpectedAsOfDate is the bar date a fresh cache should carry at now: today
// once the cutoff has passed, otherwise the previous weekday.
func (c MarketClock) ExpectedAsOfDate(now time.Time) string {
	et := now.In(c.Loc)
	today := time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, c.Loc)
	cutoff := time.Date(et.Year(), et.Month(), et.Day(), c.CutoffHour, c.CutoffMinute, 0, 0, c.Loc)
	if !et.Before(cutoff) {
		return today.Format(dateLayout)
	}
	return PreviousBusinessDay(today).Format(dateLayout)
}

// PreviousBusinessDay steps back to the prior weekday. Exchange holidays are
// not considered.
func PreviousBusinessDay(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Monday:
		return d.AddDate(0, 0, -3)
	case time.Sunday:
		return d.AddDate(0, 0, -2)
	default:
		return d.AddDate(0, 0, -1)
	}
}

// IsTradingDay reports whether the exchange has a session on t's date.
func (c MarketClock) IsTradingDay(t time.Time) bool {
	t = t.In(c.Loc)
	if c.cal == nil {
		wd := t.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return c.cal.IsBusinessDay(t)
}

// IsOpen reports whether the regular session is in progress at t.
func (c MarketClock) IsOpen(t time.Time) bool {
	t = t.In(c.Loc)
	if c.cal == nil {
		if !c.IsTradingDay(t) {
			return false
		}
		mins := t.Hour()*60 + t.Minute()
		return mins >= 9*60+30 && mins < 16*60
	}
	return c.cal.IsOpen(t)
}

// ExpectedAsOfDate uses the default 16:15 ET cutoff.
func ExpectedAsOfDate(now time.Time) string {
	return DefaultMarketClock().ExpectedAsOfDate(now)
}
