// Package collision answers "what does this circle or segment touch" against
// the level's collision lines.
//
// Static lines live in a uniform grid; each line is referenced from every
// cell its bounding box overlaps. Lines are stored in one slice and cells
// hold integer indices into it (no pointers), so the grid is rebuilt or
// cleared without GC churn.
package collision

import (
	"math"

	"moto-sim/internal/geom"
)

// cellEpsilon widens query boxes so lines lying exactly on a cell border are
// found from both sides.
const cellEpsilon = 0.001

// Grid is a fixed-size uniform grid over the level bounds.
//
// Memory layout: cells are stored in row-major order (cells[row*cols+col]).
type Grid struct {
	origin      geom.Rect
	cellSize    float64
	invCellSize float64 // 1/cellSize for faster division
	cols, rows  int
	cells       [][]uint32 // cells[row*cols+col] = list of line indices

	// stamp/visited dedupe lines that span several cells within one query.
	stamp   uint32
	visited []uint32
	scratch []uint32
}

// NewGrid creates a grid covering bounds. Positions outside bounds are
// clamped to the border cells.
func NewGrid(bounds geom.Rect, cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = 3.0
	}
	if bounds.IsEmpty() {
		bounds = geom.Rect{}
	}
	cols := int(math.Ceil(bounds.Width() / cellSize))
	rows := int(math.Ceil(bounds.Height() / cellSize))

	// Ensure at least 1x1 grid
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	return &Grid{
		origin:      bounds,
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cols:        cols,
		rows:        rows,
		cells:       make([][]uint32, cols*rows),
		scratch:     make([]uint32, 0, 64),
	}
}

// Insert references id from every cell overlapped by box.
func (g *Grid) Insert(id uint32, box geom.Rect) {
	minCol, minRow, maxCol, maxRow := g.cellRange(box, 0)
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			idx := row*g.cols + col
			g.cells[idx] = append(g.cells[idx], id)
		}
	}
	if int(id) >= len(g.visited) {
		grown := make([]uint32, int(id)+1, 2*(int(id)+1))
		copy(grown, g.visited)
		g.visited = grown
	}
}

// Query returns the distinct ids referenced by cells overlapping box.
//
// IMPORTANT: The returned slice is reused on subsequent calls.
// Copy the results if you need to persist them.
//
// The returned candidates may not touch box; the caller must run the
// narrow phase.
func (g *Grid) Query(box geom.Rect) []uint32 {
	g.scratch = g.scratch[:0]
	g.stamp++
	if g.stamp == 0 {
		// Wrapped: forget every previous mark.
		for i := range g.visited {
			g.visited[i] = 0
		}
		g.stamp = 1
	}

	minCol, minRow, maxCol, maxRow := g.cellRange(box, cellEpsilon)
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			for _, id := range g.cells[row*g.cols+col] {
				if g.visited[id] == g.stamp {
					continue
				}
				g.visited[id] = g.stamp
				g.scratch = append(g.scratch, id)
			}
		}
	}
	return g.scratch
}

func (g *Grid) cellRange(box geom.Rect, eps float64) (minCol, minRow, maxCol, maxRow int) {
	minCol = g.clampCol(int(math.Floor((box.Min.X() - g.origin.Min.X() - eps) * g.invCellSize)))
	maxCol = g.clampCol(int(math.Floor((box.Max.X() - g.origin.Min.X() + eps) * g.invCellSize)))
	minRow = g.clampRow(int(math.Floor((box.Min.Y() - g.origin.Min.Y() - eps) * g.invCellSize)))
	maxRow = g.clampRow(int(math.Floor((box.Max.Y() - g.origin.Min.Y() + eps) * g.invCellSize)))
	return
}

func (g *Grid) clampCol(c int) int {
	if c < 0 {
		return 0
	}
	if c >= g.cols {
		return g.cols - 1
	}
	return c
}

func (g *Grid) clampRow(r int) int {
	if r < 0 {
		return 0
	}
	if r >= g.rows {
		return g.rows - 1
	}
	return r
}

// Stats returns grid statistics for debugging/profiling.
func (g *Grid) Stats() GridStats {
	var total, maxInCell, nonEmpty int
	for _, cell := range g.cells {
		count := len(cell)
		total += count
		if count > maxInCell {
			maxInCell = count
		}
		if count > 0 {
			nonEmpty++
		}
	}

	avg := 0.0
	if nonEmpty > 0 {
		avg = float64(total) / float64(nonEmpty)
	}

	return GridStats{
		TotalCells:     len(g.cells),
		NonEmptyCells:  nonEmpty,
		TotalRefs:      total,
		MaxInCell:      maxInCell,
		AvgPerNonEmpty: avg,
	}
}

// GridStats contains grid statistics for debugging.
type GridStats struct {
	TotalCells     int     `json:"totalCells"`
	NonEmptyCells  int     `json:"nonEmptyCells"`
	TotalRefs      int     `json:"totalRefs"`
	MaxInCell      int     `json:"maxInCell"`
	AvgPerNonEmpty float64 `json:"avgPerNonEmpty"`
}

// Dimensions returns the grid dimensions.
func (g *Grid) Dimensions() (cols, rows int, cellSize float64) {
	return g.cols, g.rows, g.cellSize
}
