package transform

import "math"

const twoPi = 2 * math.Pi

// arcsecToRad converts arcseconds to radians.
const arcsecToRad = math.Pi / 648000.0

// kinematicEpoch is the UT1 Julian Date (1997-01-01) after which the
// equation of the equinoxes carries the kinematic node terms.
const kinematicEpoch = 2450449.5

// OmegaEarth is the nominal rotation rate of the Earth in rad/s.
const OmegaEarth = 7.29211514670698e-5

// GMST calculates Greenwich Mean Sidereal Time in radians from a UT1 Julian Date.
// Uses the IAU-82 model as described in Vallado "Fundamentals of Astrodynamics".
//
// Formula (Vallado Eq 3-47):
//
//	θ_GMST = 67310.54841 + (876600h + 8640184.812866)*T + 0.093104*T² - 6.2e-6*T³
//
// where T is Julian centuries of UT1 from J2000.0, result is in seconds of time.
func GMST(jdUT1 float64) float64 {
	t := (jdUT1 - 2451545.0) / 36525.0

	// 876600h = 876600 * 3600 = 3155760000 seconds.
	gmstSec := 67310.54841 + (876600.0*3600.0+8640184.812866+(0.093104-6.2e-6*t)*t)*t

	// One second of time is 15 arcseconds, i.e. (π/180)/240 radians.
	return normalizeAngle(gmstSec * (math.Pi / 180.0) / 240.0)
}

// NodeLongitude returns the mean longitude of the Moon's ascending node
// (IAU-1980 nutation series) in radians, reduced to [0, 2π), for T Julian
// centuries of TT.
func NodeLongitude(tTT float64) float64 {
	deg := 125.04452222 + ((-6962890.5390+(7.455+0.008*tTT)*tTT)*tTT)/3600.0
	deg = math.Mod(deg, 360.0)
	if deg < 0 {
		deg += 360.0
	}
	return deg * math.Pi / 180.0
}

// KinematicGMST applies the kinematic terms of the equation of the equinoxes
// to gmst for dates after 1997-01-01. The result is in [0, 2π).
func KinematicGMST(gmst, omega, jdUT1 float64) float64 {
	if jdUT1 > kinematicEpoch {
		gmst += 0.00264*arcsecToRad*math.Sin(omega) + 0.000063*arcsecToRad*math.Sin(2.0*omega)
	}
	return normalizeAngle(gmst)
}

// normalizeAngle reduces a to [0, 2π).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, twoPi)
	for a < 0 {
		a += twoPi
	}
	for a >= twoPi {
		a -= twoPi
	}
	return a
}
