// Package lpxrender implements the inverse mapping from LP Image cells
// back to a raster image: the closed-form spiral geometry kernel
// shared with the scan-table generator, and a parallel renderer that
// walks output pixels in row bands.
package lpxrender

import "math"

// spiralConstA and spiralR0 are the spiral geometry constants: sv_A =
// pi*sqrt(3), r0, the radius to the centre of cell 0. Used by
// spiralRadius, cellArrayOffset and cellIndexOf.
const (
	spiralConstA = math.Pi * 1.7320508075688772 // pi * sqrt(3)
	spiralR0     = 0.455
	oneThird     = 1.0 / 3.0
)

// spiralRadius returns the radius of the spiral of the given length
// (in cells) for a scan table built with period spiralPer.
func spiralRadius(length, spiralPer float64) float64 {
	a := spiralConstA/spiralPer + 1
	return spiralR0 * math.Pow(a, length/spiralPer)
}

// cellArrayOffset returns the scale-dependent cell offset added to
// cellIndexOf's result, snapped to multiples of spiralPer:
// -spiralPer*log(scale) / log(sv_A/spiralPer + 1).
func cellArrayOffset(scale, spiralPer float64) int {
	if scale <= 0 {
		scale = 1
	}
	a := spiralConstA/spiralPer + 1
	offset := -spiralPer * math.Log(scale) / math.Log(a)
	snapped := math.Round(offset/spiralPer) * spiralPer
	return int(snapped)
}

// cellIndexOf returns the index of the cell containing the point
// (u, v), a displacement from the spiral's centre, for a scan table
// built with period spiralPer cells per revolution. This is the
// inverse of the scan tables' forward pixel-to-cell mapping; both are
// generated from the same hexagonal tiling of the spiral and must
// agree to within one cell.
func cellIndexOf(u, v, spiralPer float64) int {
	if u == 0 && v == 0 {
		return 0
	}

	per := math.Floor(spiralPer) + 0.5

	radius := math.Hypot(u, v)
	angle := math.Atan2(v, u)
	if angle < 0 {
		angle += 2 * math.Pi
	}

	pitch := 1 / per
	pitchAng := 0.99999999 * 2 * math.Pi * pitch
	invPitchAng := 1 / pitchAng
	a := spiralConstA*pitch + 1

	j := 2*angle*invPitchAng - 0.0000001

	iPer := math.Trunc(((4 * math.Pi * math.Log(radius/spiralR0) / math.Log(a) * invPitchAng) - j) * pitch * 0.5)

	iPer2SpiralPer := math.Trunc(iPer * 2 * per)
	iCell2 := iPer2SpiralPer + math.Trunc(j)

	absAng := 0.5 * (iPer2SpiralPer + j) * pitchAng
	ang1 := 0.5 * iCell2 * pitchAng
	r1 := spiralR0 * math.Pow(a, absAng/(2*math.Pi))
	r2 := r1 * a
	s2 := (r2 - r1) * oneThird

	iCell := int(iCell2 / 2)

	dr := radius - r1
	da := absAng - ang1

	upperHalf := math.Mod(iCell2, 2) > 0

	switch {
	case dr < s2:
		return iCell
	case dr < 2*s2:
		width := math.Pi * pitch
		bound := width * (dr - s2) / s2
		if upperHalf {
			if da >= width-bound {
				return iCell + int(per) + 1
			}
			return iCell
		}
		if da < bound {
			return iCell + int(per)
		}
		return iCell
	default:
		if upperHalf {
			return iCell + int(per) + 1
		}
		return iCell + int(per)
	}
}
