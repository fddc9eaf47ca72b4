// Package geodetic converts between Earth-fixed Cartesian coordinates and
// geodetic latitude, longitude and height on the WGS-84 ellipsoid.
package geodetic

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrDomain reports an input vector outside the domain of the conversion
// (non-finite components or the Earth's center).
var ErrDomain = errors.New("geodetic: input outside conversion domain")

// WGS-84 defining parameters.
const (
	wgs84A    = 6378137.0     // semi-major axis (meters)
	wgs84InvF = 298.257223563 // inverse flattening
)

// WGS-84 derived parameters: flattening, semi-minor axis (meters), first and
// second eccentricity squared.
const (
	wgs84F   = 1.0 / wgs84InvF
	wgs84B   = wgs84A * (1.0 - wgs84F)
	wgs84E2  = wgs84F * (2.0 - wgs84F)
	wgs84Ep2 = wgs84E2 * wgs84A * wgs84A / (wgs84B * wgs84B)
)

// Ellipsoid holds the parameters of a reference ellipsoid.
type Ellipsoid struct {
	A    float64 // semi-major axis
	InvF float64 // inverse flattening
	B    float64 // semi-minor axis
	E2   float64 // first eccentricity squared
	Ep2  float64 // second eccentricity squared
}

// WGS84 is the World Geodetic System 1984 ellipsoid in meters.
var WGS84 = Ellipsoid{A: wgs84A, InvF: wgs84InvF, B: wgs84B, E2: wgs84E2, Ep2: wgs84Ep2}

// Coord is a geodetic position. Lat and Lon are in degrees; Height uses the
// length unit of the Cartesian input.
type Coord struct {
	Lat, Lon, Height float64
}

// N returns the radius of curvature in the prime vertical at latitude lat (radians).
func (e Ellipsoid) N(lat float64) float64 {
	s := math.Sin(lat)
	return e.A / math.Sqrt(1-e.E2*s*s)
}

// FromECEF converts an ECEF position in meters to geodetic coordinates with
// Bowring's closed form (no iteration).
//
// On the polar axis (p == 0) longitude is undefined; it is reported as 0 and
// latitude as +90 or -90 by the sign of z. Points so deep inside the
// ellipsoid that the closed form has no valid latitude return ErrDomain.
func FromECEF(v r3.Vec) (Coord, error) {
	return WGS84.FromECEF(v)
}

// FromECEF converts v on ellipsoid e. See the package-level FromECEF.
func (e Ellipsoid) FromECEF(v r3.Vec) (Coord, error) {
	x, y, z := v.X, v.Y, v.Z
	if !finite(x) || !finite(y) || !finite(z) {
		return Coord{}, ErrDomain
	}

	p := math.Hypot(x, y)
	if p == 0 {
		if z == 0 {
			return Coord{}, ErrDomain
		}
		lat := 90.0
		if z < 0 {
			lat = -90.0
		}
		return Coord{Lat: lat, Lon: 0, Height: math.Abs(z) - e.B}, nil
	}

	theta := math.Atan2(z*e.A, p*e.B)
	sinT, cosT := math.Sincos(theta)

	lat := math.Atan2(
		z+e.Ep2*e.B*sinT*sinT*sinT,
		p-e.E2*e.A*cosT*cosT*cosT,
	)
	// Deep inside the ellipsoid the denominator turns negative and the
	// latitude leaves [-90°, 90°].
	if math.Abs(lat) > math.Pi/2 {
		return Coord{}, ErrDomain
	}
	lon := math.Atan2(y, x)

	// h = p/cos(lat) - N, rewritten as the projection onto the ellipsoid
	// normal so it stays exact as cos(lat) -> 0.
	sinLat, cosLat := math.Sincos(lat)
	h := p*cosLat + z*sinLat - e.A*math.Sqrt(1-e.E2*sinLat*sinLat)

	return Coord{
		Lat:    lat * 180.0 / math.Pi,
		Lon:    lon * 180.0 / math.Pi,
		Height: h,
	}, nil
}

// ToECEF converts geodetic coordinates (degrees, meters) to ECEF meters.
func ToECEF(c Coord) r3.Vec {
	return WGS84.ToECEF(c)
}

// ToECEF converts c on ellipsoid e.
func (e Ellipsoid) ToECEF(c Coord) r3.Vec {
	lat := c.Lat * math.Pi / 180.0
	lon := c.Lon * math.Pi / 180.0

	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	n := e.N(lat)

	return r3.Vec{
		X: (n + c.Height) * cosLat * cosLon,
		Y: (n + c.Height) * cosLat * sinLon,
		Z: (n*(1-e.E2) + c.Height) * sinLat,
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
