package timescale

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/komasaru/iss-sgp4-json/internal/epoch"
	"github.com/komasaru/iss-sgp4-json/internal/iers"
)

type stubEOP map[epoch.Date]iers.Sample

func (s stubEOP) Lookup(d epoch.Date) (iers.Sample, error) {
	if v, ok := s[d]; ok {
		return v, nil
	}
	return iers.Sample{}, fmt.Errorf("eop %s: %w", d, iers.ErrNotFound)
}

type failingEOP struct{ err error }

func (f failingEOP) Lookup(epoch.Date) (iers.Sample, error) { return iers.Sample{}, f.err }

var leap = iers.NewLeapSecondTable([]iers.LeapSecond{
	{Effective: epoch.Date{Year: 2015, Month: time.July, Day: 1}, TAIMinusUTC: 36},
	{Effective: epoch.Date{Year: 2017, Month: time.January, Day: 1}, TAIMinusUTC: 37},
})

func TestConverterTransitions(t *testing.T) {
	jst := Converter{UTCOffset: DefaultUTCOffset}
	local := epoch.FromTime(time.Date(2021, 6, 10, 9, 0, 0, 0, time.UTC))

	utc := jst.LocalToUTC(local)
	if got, want := utc.String(), "2021-06-10 00:00:00.000"; got != want {
		t.Errorf("LocalToUTC = %s, want %s", got, want)
	}
	if back := jst.UTCToLocal(utc); back != local {
		t.Errorf("UTCToLocal(LocalToUTC(x)) = %+v, want %+v", back, local)
	}

	if got := UTCToUT1(utc, -0.1716746).Sub(utc); math.Abs(got+0.1716746) > 1e-9 {
		t.Errorf("UT1 - UTC = %.9f, want -0.1716746", got)
	}

	tai := UTCToTAI(utc, 37)
	if got := tai.Sub(utc); got != 37 {
		t.Errorf("TAI - UTC = %g, want 37", got)
	}
	if got := TAIToTT(tai).Sub(tai); math.Abs(got-TTMinusTAI) > 1e-9 {
		t.Errorf("TT - TAI = %.9f, want %.3f", got, TTMinusTAI)
	}
}

func TestLocalNow(t *testing.T) {
	now := time.Date(2021, 6, 10, 0, 0, 0, 250_000_000, time.FixedZone("EDT", -4*3600))
	got := Converter{UTCOffset: DefaultUTCOffset}.LocalNow(now)
	if want := "2021-06-10 13:00:00.250"; got.String() != want {
		t.Errorf("LocalNow = %s, want %s", got, want)
	}
}

func TestResolve(t *testing.T) {
	r := Resolver{
		Converter: Converter{UTCOffset: DefaultUTCOffset},
		EOP: stubEOP{
			{Year: 2021, Month: time.June, Day: 9}:  {DUT1: -0.17},
			{Year: 2021, Month: time.June, Day: 10}: {PolarX: 215.262, PolarY: 456.311, DUT1: -0.1716746, LOD: 0.0009},
		},
		Leap: leap,
	}

	// 08:30 JST on the 10th is 23:30 UTC on the 9th: the UTC date selects the record.
	local := epoch.FromTime(time.Date(2021, 6, 10, 8, 30, 0, 0, time.UTC))
	sc, sample, err := r.Resolve(local)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sample.DUT1 != -0.17 {
		t.Errorf("sample DUT1 = %g, want record of 2021-06-09", sample.DUT1)
	}
	if got := sc.UTC.String(); got != "2021-06-09 23:30:00.000" {
		t.Errorf("UTC = %s", got)
	}
	if sc.Local != local {
		t.Errorf("Local = %+v, want %+v", sc.Local, local)
	}
	if got := sc.TT.Sub(sc.UTC); math.Abs(got-(37+TTMinusTAI)) > 1e-9 {
		t.Errorf("TT - UTC = %.9f, want %.3f", got, 37+TTMinusTAI)
	}
	if got := sc.UT1.Sub(sc.UTC); math.Abs(got+0.17) > 1e-9 {
		t.Errorf("UT1 - UTC = %.9f, want -0.17", got)
	}
}

func TestResolvePropagatesLookupErrors(t *testing.T) {
	local := epoch.FromTime(time.Date(2021, 6, 10, 9, 0, 0, 0, time.UTC))

	tests := []struct {
		name  string
		r     Resolver
		want  error
		table string
	}{
		{
			name:  "eop missing",
			r:     Resolver{Converter: Converter{UTCOffset: DefaultUTCOffset}, EOP: stubEOP{}, Leap: leap},
			want:  iers.ErrNotFound,
			table: TableEOP,
		},
		{
			name:  "eop malformed",
			r:     Resolver{EOP: failingEOP{err: iers.ErrMalformedRecord}, Leap: leap},
			want:  iers.ErrMalformedRecord,
			table: TableEOP,
		},
		{
			name: "leap seconds before table",
			r: Resolver{
				EOP:  stubEOP{{Year: 2021, Month: time.June, Day: 10}: {}},
				Leap: iers.NewLeapSecondTable(nil),
			},
			want:  iers.ErrNotFound,
			table: TableLeapSeconds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.r.Resolve(local)
			if !errors.Is(err, tt.want) {
				t.Errorf("Resolve error = %v, want %v", err, tt.want)
			}
			var le *LookupError
			if !errors.As(err, &le) {
				t.Fatalf("Resolve error %T is not a *LookupError", err)
			}
			if le.Table != tt.table {
				t.Errorf("LookupError.Table = %q, want %q", le.Table, tt.table)
			}
		})
	}
}
