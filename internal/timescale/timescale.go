// Package timescale converts instants between local civil time, UTC, UT1, TAI
// and TT.
//
// Each transition is a pure delta application on an epoch.Instant:
//
//	local --(-UTC offset)--> UTC
//	UTC   --(+DUT1)--------> UT1
//	UTC   --(+TAI-UTC)-----> TAI
//	TAI   --(+32.184 s)----> TT
//
// The corrections themselves come from the iers tables through Resolver.
package timescale

import (
	"fmt"
	"time"

	"github.com/komasaru/iss-sgp4-json/internal/epoch"
	"github.com/komasaru/iss-sgp4-json/internal/iers"
)

// TTMinusTAI is the fixed offset TT - TAI in seconds.
const TTMinusTAI = 32.184

// DefaultUTCOffset is the offset of Japan Standard Time from UTC.
const DefaultUTCOffset = 9 * time.Hour

// Converter applies the time-scale transitions.
type Converter struct {
	// UTCOffset is local civil time minus UTC.
	UTCOffset time.Duration
}

// LocalToUTC converts a local civil instant to UTC.
func (c Converter) LocalToUTC(local epoch.Instant) epoch.Instant {
	return local.Add(-c.UTCOffset.Seconds())
}

// UTCToLocal converts a UTC instant to local civil time.
func (c Converter) UTCToLocal(utc epoch.Instant) epoch.Instant {
	return utc.Add(c.UTCOffset.Seconds())
}

// LocalNow returns now as a local civil instant.
func (c Converter) LocalNow(now time.Time) epoch.Instant {
	return c.UTCToLocal(epoch.FromTime(now.UTC()))
}

// UTCToUT1 applies DUT1 = UT1 - UTC in seconds.
func UTCToUT1(utc epoch.Instant, dut1 float64) epoch.Instant {
	return utc.Add(dut1)
}

// UTCToTAI applies the cumulative leap-second count TAI - UTC.
func UTCToTAI(utc epoch.Instant, dat int) epoch.Instant {
	return utc.Add(float64(dat))
}

// TAIToTT applies the fixed TT - TAI offset.
func TAIToTT(tai epoch.Instant) epoch.Instant {
	return tai.Add(TTMinusTAI)
}

// Scales holds one moment expressed in every supported time scale.
type Scales struct {
	Local epoch.Instant
	UTC   epoch.Instant
	UT1   epoch.Instant
	TAI   epoch.Instant
	TT    epoch.Instant
}

// Table names reported by LookupError.
const (
	TableEOP         = "eop"
	TableLeapSeconds = "leap_seconds"
)

// LookupError is returned by Resolver when a correction table has no usable
// record. It wraps the table's own error.
type LookupError struct {
	Table string
	UTC   epoch.Instant
	Err   error
}

func (e *LookupError) Error() string {
	scale := "UT1"
	if e.Table == TableLeapSeconds {
		scale = "TAI"
	}
	return fmt.Sprintf("resolving %s for %s: %v", scale, e.UTC, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Resolver folds the table lookups into a full Scales set.
type Resolver struct {
	Converter Converter
	EOP       iers.EarthOrientation
	Leap      iers.LeapSeconds
}

// Resolve converts a local civil instant to every scale. The corrections are
// looked up by the UTC calendar date. Lookup failures are returned unchanged
// in kind; no default is ever substituted.
func (r Resolver) Resolve(local epoch.Instant) (Scales, iers.Sample, error) {
	utc := r.Converter.LocalToUTC(local)
	return r.ResolveUTC(utc)
}

// ResolveUTC is Resolve for an instant already in UTC.
func (r Resolver) ResolveUTC(utc epoch.Instant) (Scales, iers.Sample, error) {
	date := utc.Date()

	sample, err := r.EOP.Lookup(date)
	if err != nil {
		return Scales{}, iers.Sample{}, &LookupError{Table: TableEOP, UTC: utc, Err: err}
	}
	dat, err := r.Leap.Lookup(date)
	if err != nil {
		return Scales{}, iers.Sample{}, &LookupError{Table: TableLeapSeconds, UTC: utc, Err: err}
	}

	tai := UTCToTAI(utc, dat)
	return Scales{
		Local: r.Converter.UTCToLocal(utc),
		UTC:   utc,
		UT1:   UTCToUT1(utc, sample.DUT1),
		TAI:   tai,
		TT:    TAIToTT(tai),
	}, sample, nil
}
