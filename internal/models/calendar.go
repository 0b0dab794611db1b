package models

import "time"

// DayStart returns midnight of t's calendar day in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DateLayout is the YYYY-MM-DD layout of date query parameters.
const DateLayout = "2006-01-02"
