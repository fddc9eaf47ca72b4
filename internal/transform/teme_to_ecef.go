// Package transform carries satellite state vectors from the TEME (True
// Equator Mean Equinox) frame produced by SGP4 into ECEF and on to geodetic
// coordinates.
//
// Method: Vallado-style rotation. TEME → PEF applies the sidereal angle
// (IAU-82 GMST plus the kinematic node terms); PEF → ECEF applies polar
// motion from the Earth-orientation tables.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/komasaru/iss-sgp4-json/internal/epoch"
	"github.com/komasaru/iss-sgp4-json/internal/geodetic"
	"github.com/komasaru/iss-sgp4-json/internal/timescale"
)

// ErrDomain reports inputs the pipeline cannot convert (non-finite values or
// a position at the Earth's center).
var ErrDomain = geodetic.ErrDomain

// StateVector is a position (km) and velocity (km/s) in a Cartesian frame.
type StateVector struct {
	Position r3.Vec
	Velocity r3.Vec
}

// Result is the terminal output of the pipeline: geodetic position with
// height in km, and scalar speed in km/s.
type Result struct {
	Position geodetic.Coord
	Speed    float64
}

// Orientation holds the Earth-orientation state for one instant.
type Orientation struct {
	GMST   float64 // sidereal angle with kinematic terms (radians)
	Omega  float64 // Earth rotation rate (rad/s)
	Rot    Matrix3 // TEME → PEF
	Polar  Matrix3 // PEF → ECEF
	JDUT1  float64
	TTCent float64 // Julian centuries of TT from J2000.0
}

// NewOrientation builds the orientation for a UT1 Julian Date and TT Julian
// century. xp and yp are the pole coordinates in milliarcseconds; lod is the
// length-of-day excess in seconds.
func NewOrientation(jdUT1, tTT, xp, yp, lod float64) Orientation {
	gmst := KinematicGMST(GMST(jdUT1), NodeLongitude(tTT), jdUT1)
	return Orientation{
		GMST:   gmst,
		Omega:  EarthRotation(lod),
		Rot:    R3(gmst),
		Polar:  PolarMotion(xp, yp, tTT),
		JDUT1:  jdUT1,
		TTCent: tTT,
	}
}

// EarthRotation returns the Earth's angular velocity (rad/s) corrected by the
// length-of-day excess lod (seconds).
func EarthRotation(lod float64) float64 {
	return OmegaEarth * (1.0 - lod/86400.0)
}

// TEMEToPEF rotates a TEME vector into PEF.
func (o Orientation) TEMEToPEF(v r3.Vec) r3.Vec {
	return o.Rot.Apply(v)
}

// PEFToECEF applies polar motion to a PEF vector.
func (o Orientation) PEFToECEF(v r3.Vec) r3.Vec {
	return o.Polar.Apply(v)
}

// TEMEToECEF transforms a TEME position to ECEF. Units are preserved.
func (o Orientation) TEMEToECEF(v r3.Vec) r3.Vec {
	return o.PEFToECEF(o.TEMEToPEF(v))
}

// PEFVelocity transforms a TEME velocity into PEF given the PEF position:
//
//	v_PEF = R3(θ) * v_TEME - ω × r_PEF
//
// where ω = [0, 0, ω_earth]. Convert reports the TEME speed and does not use
// this.
func (o Orientation) PEFVelocity(vTEME, rPEF r3.Vec) r3.Vec {
	w := r3.Vec{Z: o.Omega}
	return r3.Sub(o.Rot.Apply(vTEME), r3.Cross(w, rPEF))
}

// ECEFVelocity transforms a TEME state vector's velocity into ECEF.
func (o Orientation) ECEFVelocity(sv StateVector) r3.Vec {
	return o.PEFToECEF(o.PEFVelocity(sv.Velocity, o.TEMEToPEF(sv.Position)))
}

// Convert runs the pipeline for one sample. ut1 and tai are the sample
// instant on the UT1 and TAI scales; polarX and polarY are in milliarcseconds
// and lod in seconds. The state vector is TEME in km and km/s.
//
// The returned speed is the magnitude of the TEME velocity, untransformed.
func Convert(ut1, tai epoch.Instant, polarX, polarY, lod float64, sv StateVector) (Result, error) {
	for _, f := range []float64{
		polarX, polarY, lod,
		sv.Position.X, sv.Position.Y, sv.Position.Z,
		sv.Velocity.X, sv.Velocity.Y, sv.Velocity.Z,
	} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Result{}, fmt.Errorf("convert %s: non-finite input: %w", ut1, ErrDomain)
		}
	}

	tt := timescale.TAIToTT(tai)
	jdUT1 := epoch.JulianDate(ut1)
	tTT := epoch.JulianCentury(epoch.JulianDate(tt))

	o := NewOrientation(jdUT1, tTT, polarX, polarY, lod)
	ecef := o.TEMEToECEF(sv.Position)

	// Geodetic inversion works in meters.
	c, err := geodetic.FromECEF(r3.Scale(1000.0, ecef))
	if err != nil {
		return Result{}, fmt.Errorf("convert %s: %w", ut1, err)
	}
	c.Height /= 1000.0

	return Result{
		Position: c,
		Speed:    r3.Norm(sv.Velocity),
	}, nil
}

// ValidateECEF checks that a position (km) is physically reasonable for an
// Earth-orbiting satellite. Returns true if valid.
// Expected: magnitude between Earth radius (~6371km) and ~50000km (high orbit).
func ValidateECEF(pos r3.Vec) bool {
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) {
		return false
	}
	if math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return false
	}

	// Allow generous range: 6200km to 50000km.
	const minRadius = 6200.0
	const maxRadius = 50000.0

	mag := r3.Norm(pos)
	return mag >= minRadius && mag <= maxRadius
}
