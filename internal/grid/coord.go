package grid

import "fmt"

// GridCoord addresses one grid (and its terrain tile) within a map.
type GridCoord struct {
	X, Y int
}

// CellCoord addresses one cell across the whole map.
type CellCoord struct {
	X, Y int
}

func (c GridCoord) String() string { return fmt.Sprintf("[%d,%d]", c.X, c.Y) }
func (c CellCoord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// ComputeGridCoord maps world x, y to the grid that contains them.
func (l Layout) ComputeGridCoord(x, y float32) GridCoord {
	xOff := (float64(x) - float64(l.CenterGridOffset())) / float64(l.GridSize)
	yOff := (float64(y) - float64(l.CenterGridOffset())) / float64(l.GridSize)
	return GridCoord{
		X: int(xOff + float64(l.CenterGridID()) + 0.5),
		Y: int(yOff + float64(l.CenterGridID()) + 0.5),
	}
}

// ComputeCellCoord maps world x, y to the map-wide cell that contains them.
func (l Layout) ComputeCellCoord(x, y float32) CellCoord {
	xOff := (float64(x) - float64(l.CenterCellOffset())) / float64(l.CellSize())
	yOff := (float64(y) - float64(l.CenterCellOffset())) / float64(l.CellSize())
	return CellCoord{
		X: int(xOff + float64(l.CenterCellID()) + 0.5),
		Y: int(yOff + float64(l.CenterCellID()) + 0.5),
	}
}

// ValidGrid reports whether g is inside the grid table.
func (l Layout) ValidGrid(g GridCoord) bool {
	return g.X >= 0 && g.Y >= 0 && g.X < l.GridsPerSide && g.Y < l.GridsPerSide
}

// ValidCell reports whether c is inside the cell table.
func (l Layout) ValidCell(c CellCoord) bool {
	n := l.CellsPerSide()
	return c.X >= 0 && c.Y >= 0 && c.X < n && c.Y < n
}

// ClampCell pulls c back inside the cell table.
func (l Layout) ClampCell(c CellCoord) CellCoord {
	n := l.CellsPerSide() - 1
	c.X = max(0, min(n, c.X))
	c.Y = max(0, min(n, c.Y))
	return c
}

// CellID is the linear index of c, used for bitsets and corpse buckets.
func (l Layout) CellID(c CellCoord) uint32 {
	return uint32(c.Y*l.CellsPerSide() + c.X)
}

// CellFromID is the inverse of CellID.
func (l Layout) CellFromID(id uint32) CellCoord {
	n := uint32(l.CellsPerSide())
	return CellCoord{X: int(id % n), Y: int(id / n)}
}

// GridOf returns the grid that owns cell c.
func (l Layout) GridOf(c CellCoord) GridCoord {
	return GridCoord{X: c.X / l.CellsPerGrid, Y: c.Y / l.CellsPerGrid}
}

// TileCoord is the on-disk tile index for grid g. Tile files count down from
// the positive map corner while grid coordinates count up.
func (l Layout) TileCoord(g GridCoord) (int, int) {
	return l.GridsPerSide - 1 - g.X, l.GridsPerSide - 1 - g.Y
}

// Cell is a cell expressed relative to its owning grid.
type Cell struct {
	GridX, GridY int
	CellX, CellY int
	NoCreate     bool // visit only if the grid is already loaded
}

// NewCell splits a map-wide cell coordinate into grid and in-grid parts.
func (l Layout) NewCell(c CellCoord) Cell {
	return Cell{
		GridX: c.X / l.CellsPerGrid,
		GridY: c.Y / l.CellsPerGrid,
		CellX: c.X % l.CellsPerGrid,
		CellY: c.Y % l.CellsPerGrid,
	}
}

// CellAt is NewCell(ComputeCellCoord(x, y)).
func (l Layout) CellAt(x, y float32) Cell {
	return l.NewCell(l.ComputeCellCoord(x, y))
}

func (c Cell) Grid() GridCoord { return GridCoord{X: c.GridX, Y: c.GridY} }

// Coord returns the map-wide coordinate of c.
func (c Cell) Coord(l Layout) CellCoord {
	return CellCoord{X: c.GridX*l.CellsPerGrid + c.CellX, Y: c.GridY*l.CellsPerGrid + c.CellY}
}

// DiffCell reports whether a and b are different cells.
func (c Cell) DiffCell(o Cell) bool {
	return c.GridX != o.GridX || c.GridY != o.GridY || c.CellX != o.CellX || c.CellY != o.CellY
}

// DiffGrid reports whether a and b lie in different grids.
func (c Cell) DiffGrid(o Cell) bool {
	return c.GridX != o.GridX || c.GridY != o.GridY
}

// CellArea is an inclusive rectangle of map-wide cells.
type CellArea struct {
	Low, High CellCoord
}

// CalculateCellArea returns the cells touched by a square of half-side radius
// around x, y, clamped to the map.
func (l Layout) CalculateCellArea(x, y, radius float32) CellArea {
	if radius <= 0 {
		c := l.ClampCell(l.ComputeCellCoord(x, y))
		return CellArea{Low: c, High: c}
	}
	return CellArea{
		Low:  l.ClampCell(l.ComputeCellCoord(x-radius, y-radius)),
		High: l.ClampCell(l.ComputeCellCoord(x+radius, y+radius)),
	}
}

// Each calls fn for every cell in the area, row by row.
func (a CellArea) Each(fn func(CellCoord)) {
	for y := a.Low.Y; y <= a.High.Y; y++ {
		for x := a.Low.X; x <= a.High.X; x++ {
			fn(CellCoord{X: x, Y: y})
		}
	}
}

// Contains reports whether c lies inside the area.
func (a CellArea) Contains(c CellCoord) bool {
	return c.X >= a.Low.X && c.X <= a.High.X && c.Y >= a.Low.Y && c.Y <= a.High.Y
}
