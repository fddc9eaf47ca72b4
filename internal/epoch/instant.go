// Package epoch provides the timestamp arithmetic and calendar/Julian Date
// conversions used by every time scale in the pipeline.
//
// An Instant counts seconds on the wall clock of the time scale it belongs to.
// Reading its calendar fields in UTC yields that scale's wall-clock fields, so a
// UTC instant, a UT1 instant and a TAI instant for the same physical moment hold
// different second counts. This keeps calendar conversions independent of the
// process time zone.
package epoch

import (
	"fmt"
	"math"
	"time"
)

const nanosPerSecond = 1_000_000_000

// Instant is a timestamp with integral seconds and a nanosecond fraction.
// Nsec is always in [0, 1e9).
type Instant struct {
	Sec  int64
	Nsec int64
}

// Date is a calendar date key used for table lookups.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// New builds a normalized Instant.
func New(sec, nsec int64) Instant {
	return normalize(sec, nsec)
}

// FromTime converts t using its wall clock in its own location.
// A time of 2021-06-10 09:00 JST becomes the local-civil instant 2021-06-10 09:00.
func FromTime(t time.Time) Instant {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	wall := time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.UTC)
	return Instant{Sec: wall.Unix(), Nsec: int64(wall.Nanosecond())}
}

// FromDate constructs the Instant at 00:00:00 of the given calendar date.
func FromDate(year int, month time.Month, day int) Instant {
	return FromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// Add returns i shifted by a possibly fractional number of seconds.
// The fraction is rounded to the nearest nanosecond. Non-finite deltas
// leave i unchanged.
func (i Instant) Add(seconds float64) Instant {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return i
	}
	whole, frac := math.Modf(seconds)
	return normalize(i.Sec+int64(whole), i.Nsec+int64(math.Round(frac*nanosPerSecond)))
}

// Sub returns the elapsed seconds i - j.
func (i Instant) Sub(j Instant) float64 {
	return float64(i.Sec-j.Sec) + float64(i.Nsec-j.Nsec)/nanosPerSecond
}

// Before reports whether i is earlier than j.
func (i Instant) Before(j Instant) bool {
	return i.Sec < j.Sec || (i.Sec == j.Sec && i.Nsec < j.Nsec)
}

// Time returns the wall-clock fields of i as a time.Time in UTC.
func (i Instant) Time() time.Time {
	return time.Unix(i.Sec, i.Nsec).UTC()
}

// Date returns the calendar date of i.
func (i Instant) Date() Date {
	y, m, d := i.Time().Date()
	return Date{Year: y, Month: m, Day: d}
}

// String formats i as "YYYY-MM-DD hh:mm:ss.mmm" with truncated milliseconds.
func (i Instant) String() string {
	return fmt.Sprintf("%s.%03d", i.Time().Format("2006-01-02 15:04:05"), i.Nsec/1e6)
}

// Before reports whether d is earlier than e.
func (d Date) Before(e Date) bool {
	if d.Year != e.Year {
		return d.Year < e.Year
	}
	if d.Month != e.Month {
		return d.Month < e.Month
	}
	return d.Day < e.Day
}

// String formats d as "YYYY-MM-DD".
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func normalize(sec, nsec int64) Instant {
	carry := nsec / nanosPerSecond
	nsec -= carry * nanosPerSecond
	if nsec < 0 {
		nsec += nanosPerSecond
		carry--
	}
	return Instant{Sec: sec + carry, Nsec: nsec}
}
