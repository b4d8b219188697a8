package maps

import (
	"math"

	"github.com/warheadgo/server/internal/collision"
	"github.com/warheadgo/server/internal/terrain"
	"github.com/warheadgo/server/internal/world"
)

// VMapInvalidHeight is returned when neither terrain nor static geometry
// gives an answer.
const VMapInvalidHeight float32 = -200000

// zOffsetFindHeight lifts a query point so a position resting exactly on the
// ground still finds it.
const zOffsetFindHeight float32 = 0.5

// PositionFullTerrainStatus bundles the terrain facts of one point.
type PositionFullTerrainStatus struct {
	AreaID uint32
	ZoneID uint32
	FloorZ float32
	Liquid terrain.LiquidData
}

func (m *Map) gridMapAt(x, y float32) *terrain.GridMap {
	return m.tileAt(m.layout.ComputeGridCoord(x, y))
}

// GetGridHeight is the terrain height at x, y, or InvalidHeight.
func (m *Map) GetGridHeight(x, y float32) float32 {
	if gm := m.gridMapAt(x, y); gm != nil {
		return gm.GetHeight(x, y)
	}
	return terrain.InvalidHeight
}

// GetMinHeight is the lowest flyable height at x, y.
func (m *Map) GetMinHeight(x, y float32) float32 {
	if gm := m.gridMapAt(x, y); gm != nil {
		return gm.GetMinHeight(x, y)
	}
	return terrain.NoFlightBoundsMinHeight
}

// GetStaticHeight combines terrain and static geometry. The terrain counts
// only when it is not above z; static geometry wins when it is higher or
// closer to z.
func (m *Map) GetStaticHeight(x, y, z float32, checkVMap bool, maxSearchDist float32) float32 {
	mapHeight := VMapInvalidHeight
	gridHeight := m.GetGridHeight(x, y)
	if z >= gridHeight-terrain.GroundHeightTolerance {
		mapHeight = gridHeight
	}
	vmapHeight := VMapInvalidHeight
	if checkVMap && m.deps.VMaps != nil {
		vmapHeight = m.deps.VMaps.Height(m.id, x, y, z, maxSearchDist)
	}
	if vmapHeight > terrain.InvalidHeight {
		if mapHeight > terrain.InvalidHeight {
			if vmapHeight > mapHeight || abs32(mapHeight-z) > abs32(vmapHeight-z) {
				return vmapHeight
			}
			return mapHeight
		}
		return vmapHeight
	}
	return mapHeight
}

// GetHeight is the floor under x, y, z including game object models.
func (m *Map) GetHeight(phaseMask uint32, x, y, z float32, checkVMap bool, maxSearchDist float32) float32 {
	h := m.GetStaticHeight(x, y, z, checkVMap, maxSearchDist)
	if dyn := m.GetGameObjectFloor(phaseMask, x, y, z, maxSearchDist); dyn > h {
		return dyn
	}
	return h
}

// GetGameObjectFloor is the highest game object surface below z, or
// collision.NoHeight.
func (m *Map) GetGameObjectFloor(phaseMask uint32, x, y, z, maxSearchDist float32) float32 {
	return m.tree.Height(x, y, z, maxSearchDist, phaseMask)
}

// GetAreaId returns the area under x, y.
func (m *Map) GetAreaId(x, y, z float32) uint32 {
	if gm := m.gridMapAt(x, y); gm != nil {
		return uint32(gm.GetArea(x, y))
	}
	return 0
}

// GetZoneId returns the zone owning the area under x, y.
func (m *Map) GetZoneId(x, y, z float32) uint32 {
	return m.zoneFor(m.GetAreaId(x, y, z))
}

// GetZoneAndAreaId returns both ids with one tile lookup.
func (m *Map) GetZoneAndAreaId(x, y, z float32) (zone, area uint32) {
	area = m.GetAreaId(x, y, z)
	return m.zoneFor(area), area
}

func (m *Map) zoneFor(area uint32) uint32 {
	if m.deps.Zones == nil || area == 0 {
		return area
	}
	if z := m.deps.Zones.ZoneForArea(area); z != 0 {
		return z
	}
	return area
}

// GetLiquidData describes the liquid at a point for a body of the given
// collision height.
func (m *Map) GetLiquidData(phaseMask uint32, x, y, z, collisionHeight float32, reqLiquidType uint8) terrain.LiquidData {
	gm := m.gridMapAt(x, y)
	if gm == nil {
		return terrain.NoLiquid()
	}
	return gm.GetLiquidData(x, y, z, collisionHeight, reqLiquidType)
}

// GetFullTerrainStatusForPosition answers area, zone, floor and liquid at once.
func (m *Map) GetFullTerrainStatusForPosition(phaseMask uint32, x, y, z, collisionHeight float32, reqLiquidType uint8) PositionFullTerrainStatus {
	zone, area := m.GetZoneAndAreaId(x, y, z)
	return PositionFullTerrainStatus{
		AreaID: area,
		ZoneID: zone,
		FloorZ: m.GetHeight(phaseMask, x, y, z+zOffsetFindHeight, true, terrain.DefaultHeightSearch),
		Liquid: m.GetLiquidData(phaseMask, x, y, z, collisionHeight, reqLiquidType),
	}
}

// GetWaterLevel is the liquid surface at x, y, or InvalidHeight.
func (m *Map) GetWaterLevel(x, y float32) float32 {
	if gm := m.gridMapAt(x, y); gm != nil {
		return gm.GetLiquidLevel(x, y)
	}
	return terrain.InvalidHeight
}

// IsInWater reports whether a body at z is swimming.
func (m *Map) IsInWater(phaseMask uint32, x, y, z, collisionHeight float32) bool {
	ld := m.GetLiquidData(phaseMask, x, y, z, collisionHeight, terrain.AllLiquids)
	return ld.Status&terrain.LiquidStatusSwimming != 0
}

// IsUnderWater reports whether a body at z is fully submerged in water.
func (m *Map) IsUnderWater(phaseMask uint32, x, y, z, collisionHeight float32) bool {
	ld := m.GetLiquidData(phaseMask, x, y, z, collisionHeight, terrain.LiquidTypeWater|terrain.LiquidTypeOcean)
	return ld.Status&terrain.LiquidUnderWater != 0
}

// GetWaterOrGroundLevel returns the surface a body at x, y would rest on:
// the water level when the ground lies under water, else the ground. It also
// returns the ground height.
func (m *Map) GetWaterOrGroundLevel(phaseMask uint32, x, y, z, collisionHeight float32) (level, ground float32) {
	if m.gridMapAt(x, y) == nil {
		return VMapInvalidHeight, VMapInvalidHeight
	}
	ground = m.GetHeight(phaseMask, x, y, z+zOffsetFindHeight, true, terrain.DefaultHeightSearch)
	ld := m.GetLiquidData(phaseMask, x, y, ground, collisionHeight, terrain.AllLiquids)
	switch ld.Status {
	case terrain.LiquidAboveWater:
		return max(ld.Level, ground), ground
	case terrain.LiquidNoWater:
		return ground, ground
	}
	return ld.Level, ground
}

// IsInLineOfSight tests the segment against static geometry and game object
// models as selected by checks.
func (m *Map) IsInLineOfSight(phaseMask uint32, a, b world.Position, checks collision.LineOfSightChecks, ignore collision.IgnoreFlags) bool {
	av, bv := a.Vec(), b.Vec()
	if checks&collision.CheckVMap != 0 && m.deps.VMaps != nil {
		if !m.deps.VMaps.IsInLineOfSight(m.id, av, bv) {
			return false
		}
	}
	if checks&collision.CheckGObjectAll == 0 {
		return true
	}
	if checks&collision.CheckGObjectM2 == 0 {
		ignore |= collision.IgnoreM2
	}
	return m.tree.IsInLineOfSight(av, bv, phaseMask, ignore)
}

// GetObjectHitPos returns where the segment first meets a game object model,
// pulled back by modifyDist.
func (m *Map) GetObjectHitPos(phaseMask uint32, a, b world.Position, modifyDist float32) (world.Position, bool) {
	hit, ok := m.tree.ObjectHitPos(a.Vec(), b.Vec(), phaseMask, modifyDist)
	if !ok {
		return b, false
	}
	return world.Position{X: hit.X, Y: hit.Y, Z: hit.Z, O: b.O}, true
}

// CheckCollisionAndGetValidCoords clips the move from start to dest at the
// first static or dynamic obstacle and drops the result onto the floor. It
// reports false when the move was clipped.
func (m *Map) CheckCollisionAndGetValidCoords(phaseMask uint32, start, dest world.Position) (world.Position, bool) {
	lift := collision.Vec3{Z: zOffsetFindHeight}
	a := start.Vec().Add(lift)
	b := dest.Vec().Add(lift)
	free := true
	if m.deps.VMaps != nil {
		if hit, ok := m.deps.VMaps.ObjectHitPos(m.id, a, b, -0.5); ok {
			b, free = hit, false
		}
	}
	if hit, ok := m.tree.ObjectHitPos(a, b, phaseMask, -0.5); ok {
		b, free = hit, false
	}
	out := world.Position{X: b.X, Y: b.Y, Z: b.Z - zOffsetFindHeight, O: dest.O}
	if floor := m.GetHeight(phaseMask, out.X, out.Y, out.Z+zOffsetFindHeight, true, terrain.DefaultHeightSearch); floor > terrain.InvalidHeight {
		out.Z = floor
	}
	return out, free
}

// CanReachPositionAndGetValidCoords checks that dest is a valid map position
// reachable in a straight line from start and returns the corrected point.
func (m *Map) CanReachPositionAndGetValidCoords(phaseMask uint32, start, dest world.Position) (world.Position, bool) {
	if !m.layout.IsValidMapCoord3(dest.X, dest.Y, dest.Z) {
		return start, false
	}
	out, free := m.CheckCollisionAndGetValidCoords(phaseMask, start, dest)
	if !m.layout.IsValidMapCoord3(out.X, out.Y, out.Z) {
		return start, false
	}
	return out, free
}

func abs32(f float32) float32 { return float32(math.Abs(float64(f))) }
