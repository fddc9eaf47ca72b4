package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/soniakeys/meeus/v3/sidereal"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/komasaru/iss-sgp4-json/internal/epoch"
)

// angleDiff returns |a - b| wrapped into [0, π].
func angleDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), twoPi)
	if d > math.Pi {
		d = twoPi - d
	}
	return d
}

func jdOf(t time.Time) float64 {
	return epoch.JulianDate(epoch.FromTime(t))
}

// TestGMST validates our GMST calculation against the go-satellite library's
// GSTimeFromDate function, which uses the same IAU-82 model.
func TestGMST(t *testing.T) {
	tests := []struct {
		name string
		time time.Time
	}{
		{
			name: "J2000.0 epoch",
			time: time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "Vallado example date",
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC), // integer seconds for library compat
		},
		{
			name: "ISS scenario",
			time: time.Date(2021, 6, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "recent date 2026",
			time: time.Date(2026, 2, 6, 4, 1, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			our := GMST(jdOf(tt.time))
			ref := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)

			// 1e-8 radians ≈ 0.002 arcsec.
			if diff := angleDiff(our, ref); diff > 1e-8 {
				t.Errorf("GMST(%v) = %.12f rad, go-satellite = %.12f rad (diff=%.2e)", tt.time, our, ref, diff)
			}
		})
	}
}

// TestGMSTMeeus compares against Meeus' mean sidereal time (IAU 1982 in the
// 0h-plus-fraction formulation).
func TestGMSTMeeus(t *testing.T) {
	for _, tm := range []time.Time{
		time.Date(1987, 4, 10, 19, 21, 0, 0, time.UTC), // Meeus example 12.b
		time.Date(2021, 6, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2030, 12, 31, 23, 59, 59, 0, time.UTC),
	} {
		jd := jdOf(tm)
		ref := sidereal.Mean(jd).Rad()
		if diff := angleDiff(GMST(jd), ref); diff > 1e-7 {
			t.Errorf("GMST(%v) differs from meeus by %.2e rad", tm, diff)
		}
	}
}

func TestGMSTRange(t *testing.T) {
	for jd := 2415020.0; jd < 2488070.0; jd += 37.123 {
		if g := GMST(jd); g < 0 || g >= twoPi {
			t.Fatalf("GMST(%.3f) = %g outside [0, 2π)", jd, g)
		}
		if g := KinematicGMST(GMST(jd), NodeLongitude(epoch.JulianCentury(jd)), jd); g < 0 || g >= twoPi {
			t.Fatalf("KinematicGMST(%.3f) = %g outside [0, 2π)", jd, g)
		}
	}
}

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero", 0, 0},
		{"full turn", twoPi, 0},
		{"negative full turn", -twoPi, 0},
		{"two turns plus", 2*twoPi + 0.5, 0.5},
		{"negative", -0.5, twoPi - 0.5},
		{"inside", 3.0, 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeAngle(tt.in)
			if got < 0 || got >= twoPi {
				t.Fatalf("normalizeAngle(%g) = %g outside [0, 2π)", tt.in, got)
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("normalizeAngle(%g) = %.15f, want %.15f", tt.in, got, tt.want)
			}
		})
	}

	// A tiny negative value rounds up to 2π before the final reduction.
	if got := normalizeAngle(-1e-18); got < 0 || got >= twoPi {
		t.Errorf("normalizeAngle(-1e-18) = %g outside [0, 2π)", got)
	}
}

func TestNodeLongitude(t *testing.T) {
	if got, want := NodeLongitude(0), 125.04452222*math.Pi/180; math.Abs(got-want) > 1e-15 {
		t.Errorf("NodeLongitude(0) = %.15f, want %.15f", got, want)
	}

	// 2021-06-10 TT; Ω regresses about 19.34° per year.
	if got := NodeLongitude(0.21438742786387083); math.Abs(got-1.2285393430610325) > 1e-9 {
		t.Errorf("NodeLongitude(2021-06-10) = %.12f, want 1.228539343061", got)
	}

	for tc := -1.0; tc <= 1.0; tc += 0.0137 {
		if om := NodeLongitude(tc); om < 0 || om >= twoPi {
			t.Fatalf("NodeLongitude(%g) = %g outside [0, 2π)", tc, om)
		}
	}
}

func TestKinematicGMST(t *testing.T) {
	const gmst = 1.0
	omega := 1.2285393430610325

	// Before 1997-01-01 no correction applies.
	if got := KinematicGMST(gmst, omega, 2450000.5); got != gmst {
		t.Errorf("KinematicGMST before epoch = %.15f, want %.15f", got, gmst)
	}
	if got := KinematicGMST(gmst, omega, kinematicEpoch); got != gmst {
		t.Errorf("KinematicGMST at epoch = %.15f, want uncorrected", got)
	}

	got := KinematicGMST(gmst, omega, 2459375.5)
	want := gmst + (0.00264*math.Sin(omega)+0.000063*math.Sin(2*omega))*math.Pi/648000
	if math.Abs(got-want) > 1e-15 {
		t.Errorf("KinematicGMST = %.15f, want %.15f", got, want)
	}
	// The correction never exceeds 0.0027 arcsec.
	if d := math.Abs(got - gmst); d > 0.0027*math.Pi/648000 {
		t.Errorf("correction %.3e rad too large", d)
	}

	// Near 2π the corrected angle wraps instead of reaching 2π.
	if g := KinematicGMST(twoPi-1e-12, math.Pi/2, 2459375.5); g < 0 || g >= twoPi {
		t.Errorf("KinematicGMST near 2π = %g outside [0, 2π)", g)
	}
}

// TestR3 validates the sidereal rotation against the go-satellite library's
// ECIToECEF function using the same GMST. Both are pure Z rotations so they
// should agree to floating point precision.
//
// We test with the Vallado Example 3-15 TEME position and also with
// typical LEO positions.
func TestR3(t *testing.T) {
	tests := []struct {
		name string
		teme r3.Vec
		time time.Time
	}{
		{
			// Vallado "Fundamentals of Astrodynamics" Example 3-15
			name: "Vallado example 3-15",
			teme: r3.Vec{X: 5094.18016, Y: 6127.64465, Z: 6380.34453},
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		},
		{
			// Typical LEO satellite (roughly ISS-like orbit)
			name: "LEO equatorial",
			teme: r3.Vec{X: 6778.0},
			time: time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "ISS scenario",
			teme: r3.Vec{X: -4453.783586, Y: -5038.203756, Z: -342.393839},
			time: time.Date(2021, 6, 10, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gmst := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)

			ours := R3(gmst).Apply(tt.teme)
			ref := satellite.ECIToECEF(satellite.Vector3{X: tt.teme.X, Y: tt.teme.Y, Z: tt.teme.Z}, gmst)

			const tolerance = 1e-9 // km
			if math.Abs(ours.X-ref.X) > tolerance || math.Abs(ours.Y-ref.Y) > tolerance || math.Abs(ours.Z-ref.Z) > tolerance {
				t.Errorf("position mismatch:\n  ours: [%.9f, %.9f, %.9f] km\n  ref:  [%.9f, %.9f, %.9f] km",
					ours.X, ours.Y, ours.Z, ref.X, ref.Y, ref.Z)
			}
			if !ValidateECEF(ours) {
				t.Errorf("ECEF position failed validation: [%.1f, %.1f, %.1f] km", ours.X, ours.Y, ours.Z)
			}
		})
	}
}

// TestPEFVelocity verifies the velocity transform includes Earth rotation correction.
func TestPEFVelocity(t *testing.T) {
	// Prograde equatorial satellite at longitude 0°.
	o := Orientation{Rot: R3(0), Polar: Identity3, Omega: OmegaEarth}
	r := r3.Vec{X: 6778.0}
	v := r3.Vec{Y: 7.5}

	pef := o.TEMEToPEF(r)
	if math.Abs(pef.X-6778.0) > 1e-12 {
		t.Errorf("X position: got %.6f, want 6778.0", pef.X)
	}

	// Earth rotation velocity at this radius: ω*R = 7.292115e-5 * 6778 = 0.4943 km/s.
	got := o.PEFVelocity(v, pef)
	want := 7.5 - OmegaEarth*6778.0
	if math.Abs(got.Y-want) > 1e-12 {
		t.Errorf("VY: got %.9f km/s, want %.9f km/s", got.Y, want)
	}
	if got.X != 0 || got.Z != 0 {
		t.Errorf("VX, VZ = %g, %g, want 0", got.X, got.Z)
	}
}

func TestEarthRotation(t *testing.T) {
	if got := EarthRotation(0); got != OmegaEarth {
		t.Errorf("EarthRotation(0) = %g, want %g", got, OmegaEarth)
	}
	// Runtime float64 operands; a constant expression would be exact.
	omega := 7.29211514670698e-5
	for _, lod := range []float64{0.0015, -0.0015, 0.003} {
		want := omega * (1 - lod/86400)
		if got := EarthRotation(lod); math.Abs(got-want) > 1e-15*want {
			t.Errorf("EarthRotation(%g) = %.20g, want %.20g", lod, got, want)
		}
	}
	if slower := EarthRotation(0.0015); slower >= OmegaEarth {
		t.Errorf("positive LOD excess must slow rotation: %g >= %g", slower, OmegaEarth)
	}
}

// TestValidateECEF tests the ECEF position validation function.
func TestValidateECEF(t *testing.T) {
	tests := []struct {
		name  string
		pos   r3.Vec
		valid bool
	}{
		{"LEO", r3.Vec{X: 6778}, true},
		{"GEO", r3.Vec{X: 42164}, true},
		{"too low", r3.Vec{X: 5000}, false},
		{"too high", r3.Vec{X: 60000}, false},
		{"NaN", r3.Vec{X: math.NaN()}, false},
		{"Inf", r3.Vec{X: math.Inf(1)}, false},
		{"zero", r3.Vec{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateECEF(tt.pos); got != tt.valid {
				t.Errorf("ValidateECEF(%v) = %v, want %v", tt.pos, got, tt.valid)
			}
		})
	}
}
