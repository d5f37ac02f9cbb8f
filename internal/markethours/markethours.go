// Package markethours is the NSE trading calendar: session bounds, trading
// days and the bar timestamps a session produces.
package markethours

import "time"

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Session bounds in IST.
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30
)

// IsTradingDay reports whether t falls on a weekday that is not a holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	wd := ist.Weekday()
	return wd != time.Saturday && wd != time.Sunday && !IsHoliday(ist)
}

// IsMarketOpen reports whether t is inside a trading session.
func IsMarketOpen(t time.Time) bool {
	if !IsTradingDay(t) {
		return false
	}
	return !t.Before(SessionOpen(t)) && t.Before(SessionClose(t))
}

// SessionOpen returns 09:15 IST on t's date.
func SessionOpen(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), OpenHour, OpenMinute, 0, 0, IST)
}

// SessionClose returns 15:30 IST on t's date.
func SessionClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), CloseHour, CloseMinute, 0, 0, IST)
}

// maxLookbackDays bounds the backwards walks below.
const maxLookbackDays = 20 * 366

// IntradaySlots returns the start times of the last n bars of width step that
// completed at or before end, oldest first. Slots never cross a session close.
func IntradaySlots(end time.Time, n int, step time.Duration) []time.Time {
	session := time.Duration(CloseHour*60+CloseMinute-OpenHour*60-OpenMinute) * time.Minute
	if n <= 0 || step <= 0 || step > session {
		return nil
	}
	perDay := int(session / step)

	out := make([]time.Time, 0, n)
	day := end.In(IST)
	for i := 0; len(out) < n && i < maxLookbackDays; i++ {
		if IsTradingDay(day) {
			open := SessionOpen(day)
			for k := perDay - 1; k >= 0 && len(out) < n; k-- {
				if s := open.Add(time.Duration(k) * step); !s.Add(step).After(end) {
					out = append(out, s)
				}
			}
		}
		day = day.AddDate(0, 0, -1)
	}
	reverse(out)
	return out
}

// DailyCloses returns the session closes of the last n trading days that
// closed at or before end, oldest first.
func DailyCloses(end time.Time, n int) []time.Time {
	out := make([]time.Time, 0, max(n, 0))
	day := end.In(IST)
	for i := 0; len(out) < n && i < maxLookbackDays; i++ {
		if c := SessionClose(day); IsTradingDay(day) && !c.After(end) {
			out = append(out, c)
		}
		day = day.AddDate(0, 0, -1)
	}
	reverse(out)
	return out
}

// WeeklyCloses returns the last trading-day close of each of the last n
// weeks, oldest first. A week still in progress at end counts from its latest
// completed session.
func WeeklyCloses(end time.Time, n int) []time.Time {
	out := make([]time.Time, 0, max(n, 0))
	lastYear, lastWeek := -1, -1
	day := end.In(IST)
	for i := 0; len(out) < n && i < maxLookbackDays; i++ {
		if c := SessionClose(day); IsTradingDay(day) && !c.After(end) {
			if y, w := day.ISOWeek(); y != lastYear || w != lastWeek {
				out = append(out, c)
				lastYear, lastWeek = y, w
			}
		}
		day = day.AddDate(0, 0, -1)
	}
	reverse(out)
	return out
}

func reverse(ts []time.Time) {
	for i, j := 0, len(ts)-1; i < j; i, j = i+1, j-1 {
		ts[i], ts[j] = ts[j], ts[i]
	}
}
