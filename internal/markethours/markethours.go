// Package markethours answers "is the NSE cash market trading now" for the
// position poller and fixes the broker session's end of day.
package markethours

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Regular session in IST.
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30
)

// Calendar is weekends plus a holiday set. The zero value is not usable;
// call NewCalendar.
type Calendar struct {
	holidays map[string]bool
}

// NewCalendar returns a calendar seeded with the built-in NSE holidays.
func NewCalendar() *Calendar {
	return &Calendar{holidays: defaultHolidays()}
}

// IsTradingDay reports whether t's IST date is a weekday and not a holiday.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	wd := t.In(IST).Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !c.IsHoliday(t)
}

// IsOpen reports whether t falls within 09:15 to 15:30 IST on a trading day.
func (c *Calendar) IsOpen(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	ist := t.In(IST)
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// NextOpen returns the next session open at or after t.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	ist := t.In(IST)
	open := time.Date(ist.Year(), ist.Month(), ist.Day(), OpenHour, OpenMinute, 0, 0, IST)
	if !ist.After(open) && c.IsTradingDay(ist) {
		return open
	}
	// weekends plus the Diwali cluster never exceed two weeks
	for i := 1; i <= 14; i++ {
		d := open.AddDate(0, 0, i)
		if c.IsTradingDay(d) {
			return d
		}
	}
	return open.AddDate(0, 0, 1)
}

// Close returns the session close on t's IST date.
func Close(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), CloseHour, CloseMinute, 0, 0, IST)
}

// EndOfDay returns the last instant of t's IST date. Broker sessions are
// issued per day and stop working at midnight IST.
func EndOfDay(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), IST)
}

// Status returns a short human-readable market status.
func (c *Calendar) Status(t time.Time) string {
	if c.IsOpen(t) {
		return fmt.Sprintf("market open, closes in %s", fmtDur(Close(t).Sub(t)))
	}
	next := c.NextOpen(t)
	ist := next.In(IST)
	return fmt.Sprintf("market closed, opens %s %s (%s)",
		ist.Weekday().String()[:3], ist.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
