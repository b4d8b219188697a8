package grid

// Layout holds the world-size constants that every coordinate computation
// derives from. The defaults match the 64x64 grid continent layout; tests and
// small worlds may shrink it.
type Layout struct {
	GridsPerSide int     // number of grids along one map axis
	GridSize     float32 // world units covered by one grid
	CellsPerGrid int     // cells along one grid axis
	Resolution   int     // terrain height samples along one grid axis
}

const (
	defaultGridsPerSide = 64
	defaultGridSize     = 533.3333
	defaultCellsPerGrid = 8
	defaultResolution   = 128
)

// DefaultLayout returns the standard continent layout.
func DefaultLayout() Layout {
	return Layout{
		GridsPerSide: defaultGridsPerSide,
		GridSize:     defaultGridSize,
		CellsPerGrid: defaultCellsPerGrid,
		Resolution:   defaultResolution,
	}
}

// Normalize fills zero fields with defaults.
func (l Layout) Normalize() Layout {
	d := DefaultLayout()
	if l.GridsPerSide <= 0 {
		l.GridsPerSide = d.GridsPerSide
	}
	if l.GridSize <= 0 {
		l.GridSize = d.GridSize
	}
	if l.CellsPerGrid <= 0 {
		l.CellsPerGrid = d.CellsPerGrid
	}
	if l.Resolution <= 0 {
		l.Resolution = d.Resolution
	}
	return l
}

func (l Layout) CenterGridID() float32     { return float32(l.GridsPerSide) / 2 }
func (l Layout) CenterGridOffset() float32 { return l.GridSize / 2 }
func (l Layout) CellSize() float32         { return l.GridSize / float32(l.CellsPerGrid) }

// CellsPerSide is the number of cells along one map axis.
func (l Layout) CellsPerSide() int { return l.GridsPerSide * l.CellsPerGrid }

// TotalCells is the size of a per-map cell bitset.
func (l Layout) TotalCells() int { return l.CellsPerSide() * l.CellsPerSide() }

func (l Layout) CenterCellID() float32     { return float32(l.CellsPerSide()) / 2 }
func (l Layout) CenterCellOffset() float32 { return l.CellSize() / 2 }

// HalfSize is the distance from the map origin to its border.
func (l Layout) HalfSize() float32 { return float32(l.GridsPerSide) * l.GridSize / 2 }

// IsValidMapCoord reports whether x, y lie inside the map bounds.
func (l Layout) IsValidMapCoord(x, y float32) bool {
	h := l.HalfSize() - 0.5
	return x > -h && x < h && y > -h && y < h
}

// IsValidMapCoord3 also rejects absurd heights.
func (l Layout) IsValidMapCoord3(x, y, z float32) bool {
	return l.IsValidMapCoord(x, y) && z > -200000 && z < 200000
}
