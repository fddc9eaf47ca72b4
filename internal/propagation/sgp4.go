package propagation

import (
	"fmt"
	"math"
	"strings"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/komasaru/iss-sgp4-json/internal/epoch"
	"github.com/komasaru/iss-sgp4-json/internal/transform"
)

// SGP4 is provided by github.com/joshuaferrara/go-satellite, a pure Go port
// of the Vallado reference code that reports TEME state vectors.
//
// The library hides its per-call error code and only accepts whole calendar
// seconds. Failures are therefore detected from the output (non-finite or
// implausible position), and sub-second parts of an instant are dropped.

var gravityModels = map[string]satellite.Gravity{
	"wgs72old": satellite.GravityWGS72Old,
	"wgs72":    satellite.GravityWGS72,
	"wgs84":    satellite.GravityWGS84,
}

// ParseGravity resolves a gravity model name: wgs72old, wgs72 or wgs84.
func ParseGravity(name string) (satellite.Gravity, error) {
	if g, ok := gravityModels[strings.ToLower(strings.TrimSpace(name))]; ok {
		return g, nil
	}
	return satellite.GravityWGS72, fmt.Errorf("unknown gravity model %q", name)
}

// SGP4Propagator evaluates one initialized element set.
type SGP4Propagator struct {
	sat     satellite.Satellite
	noradID int
}

// NewSGP4Propagator initializes SGP4 from the two element lines.
func NewSGP4Propagator(line1, line2 string, noradID int, gravity satellite.Gravity) (*SGP4Propagator, error) {
	// go-satellite calls log.Fatal on lines it cannot parse.
	for i, line := range []string{line1, line2} {
		if err := checkElementLine(line, byte('1'+i)); err != nil {
			return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", noradID, err)
		}
	}

	sat := satellite.TLEToSat(line1, line2, gravity)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", noradID, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{sat: sat, noradID: noradID}, nil
}

func checkElementLine(line string, number byte) error {
	line = strings.TrimSpace(line)
	switch {
	case len(line) != 69:
		return fmt.Errorf("line %c has %d columns, expected 69", number, len(line))
	case line[0] != number:
		return fmt.Errorf("line %c starts with %q", number, line[0])
	}
	return nil
}

// Propagate returns the TEME state (km, km/s) at the UT1 instant.
func (p *SGP4Propagator) Propagate(ut1 epoch.Instant) (transform.StateVector, error) {
	t := ut1.Time()
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	sv := transform.StateVector{
		Position: r3.Vec{X: pos.X, Y: pos.Y, Z: pos.Z},
		Velocity: r3.Vec{X: vel.X, Y: vel.Y, Z: vel.Z},
	}
	if !finite(sv.Position) || !finite(sv.Velocity) {
		return transform.StateVector{}, fmt.Errorf("sgp4 propagation failed for NORAD %d at %s: non-finite state", p.noradID, ut1)
	}
	if !transform.ValidateECEF(sv.Position) {
		return transform.StateVector{}, fmt.Errorf("sgp4 propagation failed for NORAD %d at %s: implausible radius %.1f km",
			p.noradID, ut1, r3.Norm(sv.Position))
	}
	return sv, nil
}

func finite(v r3.Vec) bool {
	for _, f := range [...]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
