package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// masToRad converts milliarcseconds to radians.
const masToRad = math.Pi / (180.0 * 3600.0 * 1000.0)

// Matrix3 is a 3x3 rotation matrix stored row-major.
type Matrix3 [3][3]float64

// Identity3 is the 3x3 identity matrix.
var Identity3 = Matrix3{
	{1, 0, 0},
	{0, 1, 0},
	{0, 0, 1},
}

// Apply returns m·v.
func (m Matrix3) Apply(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Mul returns the product m·n, so (m.Mul(n)).Apply(v) == m.Apply(n.Apply(v)).
func (m Matrix3) Mul(n Matrix3) Matrix3 {
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][0]*n[0][j] + m[i][1]*n[1][j] + m[i][2]*n[2][j]
		}
	}
	return out
}

// Transpose returns mᵀ, the inverse of a rotation matrix.
func (m Matrix3) Transpose() Matrix3 {
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

// R3 is the rotation about the Z-axis by angle θ (radians) that carries TEME
// into PEF when θ is the sidereal angle:
//
//	[ cos θ   sin θ  0 ]
//	[ -sin θ  cos θ  0 ]
//	[ 0       0      1 ]
func R3(theta float64) Matrix3 {
	s, c := math.Sincos(theta)
	return Matrix3{
		{c, s, 0},
		{-s, c, 0},
		{0, 0, 1},
	}
}

// PolarMotion builds the PEF to ECEF matrix from the pole coordinates xp and
// yp (milliarcseconds) and the TIO locator s' = -47 µas per century of TT.
func PolarMotion(xpMas, ypMas, tTT float64) Matrix3 {
	xp := xpMas * masToRad
	yp := ypMas * masToRad
	sp := -47.0e-6 * tTT * arcsecToRad

	sxp, cxp := math.Sincos(xp)
	syp, cyp := math.Sincos(yp)
	ssp, csp := math.Sincos(sp)

	return Matrix3{
		{cxp * csp, cxp * ssp, sxp},
		{-cyp*ssp + syp*sxp*csp, cyp*csp + syp*sxp*ssp, -syp * cxp},
		{-syp*ssp - cyp*sxp*csp, syp*csp - cyp*sxp*ssp, cyp * cxp},
	}
}
