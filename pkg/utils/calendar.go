package utils

import (
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST *time.Location

func init() {
	var err error
	IST, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// tz database missing
		IST = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// TradingDateLayout is the format of a trading date key.
const TradingDateLayout = "2006-01-02"

// NowIST returns the current time in IST.
func NowIST() time.Time {
	return time.Now().In(IST)
}

// TradingDate returns the IST calendar date of t as YYYY-MM-DD. Rollover and
// order expiry are keyed on this value.
func TradingDate(t time.Time) string {
	return t.In(IST).Format(TradingDateLayout)
}

// ParseTradingDate parses a YYYY-MM-DD date at midnight IST.
func ParseTradingDate(s string) (time.Time, error) {
	return time.ParseInLocation(TradingDateLayout, s, IST)
}

// SessionOpen returns the NSE cash session open (09:15 IST) on t's date.
func SessionOpen(t time.Time) time.Time {
	d := t.In(IST)
	return time.Date(d.Year(), d.Month(), d.Day(), 9, 15, 0, 0, IST)
}

// SessionClose returns the NSE cash session close (15:30 IST) on t's date.
func SessionClose(t time.Time) time.Time {
	d := t.In(IST)
	return time.Date(d.Year(), d.Month(), d.Day(), 15, 30, 0, 0, IST)
}

// IsTradingDay reports whether t falls on a weekday that is not an exchange holiday.
func IsTradingDay(t time.Time) bool {
	t = t.In(IST)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	_, holiday := exchangeHolidays[TradingDate(t)]
	return !holiday
}

// IsSessionOpen reports whether the cash session is live at t.
func IsSessionOpen(t time.Time) bool {
	if !IsTradingDay(t) {
		return false
	}
	return !t.Before(SessionOpen(t)) && !t.After(SessionClose(t))
}

// NextTradingDay returns the first trading day strictly after t.
func NextTradingDay(t time.Time) time.Time {
	next := t.In(IST).AddDate(0, 0, 1)
	for !IsTradingDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// SessionStatus describes the market at t: OPEN, PRE-OPEN, CLOSED or
// CLOSED with the weekend/holiday reason.
func SessionStatus(t time.Time) string {
	t = t.In(IST)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return "CLOSED (Weekend)"
	}
	if name, ok := exchangeHolidays[TradingDate(t)]; ok {
		return "CLOSED (" + name + ")"
	}

	preOpen := SessionOpen(t).Add(-15 * time.Minute)
	switch {
	case t.Before(preOpen):
		return "CLOSED"
	case t.Before(SessionOpen(t)):
		return "PRE-OPEN"
	case !t.After(SessionClose(t)):
		return "OPEN"
	default:
		return "CLOSED"
	}
}

// NSE trading holidays. Update annually from the exchange circular.
var exchangeHolidays = map[string]string{
	"2026-01-26": "Republic Day",
	"2026-02-17": "Mahashivratri",
	"2026-03-10": "Holi",
	"2026-03-30": "Id-ul-Fitr (Ramadan)",
	"2026-04-02": "Ram Navami",
	"2026-04-03": "Good Friday",
	"2026-04-14": "Dr. Ambedkar Jayanti",
	"2026-05-01": "Maharashtra Day",
	"2026-05-25": "Buddha Purnima",
	"2026-06-05": "Id-ul-Zuha (Bakri Id)",
	"2026-07-06": "Muharram",
	"2026-08-15": "Independence Day",
	"2026-08-18": "Parsi New Year",
	"2026-09-04": "Milad-un-Nabi",
	"2026-10-02": "Mahatma Gandhi Jayanti",
	"2026-10-20": "Dussehra",
	"2026-11-09": "Diwali (Laxmi Pujan)",
	"2026-11-10": "Diwali (Balipratipada)",
	"2026-11-30": "Guru Nanak Jayanti",
	"2026-12-25": "Christmas",
}
