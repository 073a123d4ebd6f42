package geom

import "math"

// GridResolution is the cell size (degrees) of the sky index grid used
// to build regions from positions. Cells are numbered row-major:
// dec rows from the south pole, RA columns within a row.
const GridResolution = 1e-3

var cellsPerRow = uint64(math.Ceil(360 / GridResolution))

// CellAt returns the index cell containing the given point.
func CellAt(p SkyPoint) uint64 {
	row := uint64(math.Floor((p.Dec + 90) / GridResolution))
	col := uint64(math.Floor(math.Mod(math.Mod(p.RA, 360)+360, 360) / GridResolution))
	return row*cellsPerRow + col
}

// RegionAround returns the region of index cells within radius degrees
// of the point, built row by row. The region is generous at the RA
// wrap: a circle crossing RA 0 covers the whole row instead.
func RegionAround(p SkyPoint, radius float64) SkyRegion {
	if radius <= 0 {
		c := CellAt(p)
		return NewSkyRegion(SkyRange{Begin: c, End: c + 1})
	}
	minRow := int64(math.Floor((p.Dec - radius + 90) / GridResolution))
	maxRow := int64(math.Floor((p.Dec + radius + 90) / GridResolution))
	maxRows := int64(math.Ceil(180 / GridResolution))
	if minRow < 0 {
		minRow = 0
	}
	if maxRow >= maxRows {
		maxRow = maxRows - 1
	}
	ra := math.Mod(math.Mod(p.RA, 360)+360, 360)
	var ranges []SkyRange
	for row := minRow; row <= maxRow; row++ {
		rowDec := float64(row)*GridResolution - 90
		dd := rowDec - p.Dec
		if math.Abs(dd) > radius {
			continue
		}
		// Half-width of the circle at this dec row, inflated for the
		// cos(dec) RA compression.
		half := math.Sqrt(radius*radius - dd*dd)
		cosDec := math.Cos(rowDec * math.Pi / 180)
		if cosDec < 1e-6 || ra-half/cosDec < 0 || ra+half/cosDec >= 360 {
			ranges = append(ranges, SkyRange{
				Begin: uint64(row) * cellsPerRow,
				End:   uint64(row)*cellsPerRow + cellsPerRow,
			})
			continue
		}
		c0 := uint64(math.Floor((ra - half/cosDec) / GridResolution))
		c1 := uint64(math.Floor((ra + half/cosDec) / GridResolution))
		ranges = append(ranges, SkyRange{
			Begin: uint64(row)*cellsPerRow + c0,
			End:   uint64(row)*cellsPerRow + c1 + 1,
		})
	}
	return NewSkyRegion(ranges...)
}
