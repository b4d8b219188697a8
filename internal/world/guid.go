package world

import (
	"fmt"
	"sync/atomic"
)

// TypeID is the runtime class of a placed object.
type TypeID uint8

const (
	TypeObject TypeID = iota
	TypeItem
	TypeContainer
	TypeUnit
	TypePlayer
	TypeGameObject
	TypeDynamicObject
	TypeCorpse
)

func (t TypeID) String() string {
	switch t {
	case TypeUnit:
		return "creature"
	case TypePlayer:
		return "player"
	case TypeGameObject:
		return "gameobject"
	case TypeDynamicObject:
		return "dynamicobject"
	case TypeCorpse:
		return "corpse"
	case TypeItem, TypeContainer:
		return "item"
	}
	return "object"
}

// HighGuid is the type tag stored in the top 16 bits of an ObjectGuid.
type HighGuid uint16

const (
	HighItem          HighGuid = 0x4000
	HighContainer     HighGuid = 0x4000
	HighPlayer        HighGuid = 0x0000
	HighGameObject    HighGuid = 0xF110
	HighTransport     HighGuid = 0xF120
	HighUnit          HighGuid = 0xF130
	HighPet           HighGuid = 0xF140
	HighVehicle       HighGuid = 0xF150
	HighDynamicObject HighGuid = 0xF100
	HighCorpse        HighGuid = 0xF101
	HighMoTransport   HighGuid = 0x1FC0
)

func (h HighGuid) hasEntry() bool {
	switch h {
	case HighGameObject, HighTransport, HighUnit, HighPet, HighVehicle, HighMoTransport:
		return true
	}
	return false
}

// ObjectGuid identifies an object across the server: high type, entry (for
// typed guids) and a low counter.
type ObjectGuid uint64

// EmptyGuid is the zero guid.
const EmptyGuid ObjectGuid = 0

// NewGuid packs a guid. entry is ignored for high types that carry none.
func NewGuid(high HighGuid, entry, counter uint32) ObjectGuid {
	if counter == 0 {
		return EmptyGuid
	}
	if high.hasEntry() {
		return ObjectGuid(uint64(high)<<48 | uint64(entry&0xFFFFFF)<<24 | uint64(counter&0xFFFFFF))
	}
	return ObjectGuid(uint64(high)<<48 | uint64(counter))
}

func (g ObjectGuid) High() HighGuid { return HighGuid(g >> 48) }
func (g ObjectGuid) IsEmpty() bool  { return g == EmptyGuid }

// Entry returns the template entry, 0 for high types without one.
func (g ObjectGuid) Entry() uint32 {
	if !g.High().hasEntry() {
		return 0
	}
	return uint32(g>>24) & 0xFFFFFF
}

// Counter returns the low part.
func (g ObjectGuid) Counter() uint32 {
	if g.High().hasEntry() {
		return uint32(g) & 0xFFFFFF
	}
	return uint32(g)
}

// TypeID derives the object class from the high part.
func (g ObjectGuid) TypeID() TypeID {
	switch g.High() {
	case HighPlayer:
		if g.IsEmpty() {
			return TypeObject
		}
		return TypePlayer
	case HighUnit, HighPet, HighVehicle:
		return TypeUnit
	case HighGameObject, HighTransport, HighMoTransport:
		return TypeGameObject
	case HighDynamicObject:
		return TypeDynamicObject
	case HighCorpse:
		return TypeCorpse
	case HighItem:
		return TypeItem
	}
	return TypeObject
}

func (g ObjectGuid) String() string {
	return fmt.Sprintf("%s:%d/%d", g.TypeID(), g.Entry(), g.Counter())
}

// GuidGenerator hands out low counters for one high type. Safe for
// concurrent use.
type GuidGenerator struct {
	high HighGuid
	next atomic.Uint32
}

func NewGuidGenerator(high HighGuid, start uint32) *GuidGenerator {
	g := &GuidGenerator{high: high}
	g.next.Store(max(start, 1) - 1)
	return g
}

// Generate returns the next counter, skipping 0 on wraparound.
func (g *GuidGenerator) Generate() uint32 {
	for {
		if v := g.next.Add(1); v != 0 {
			return v
		}
	}
}

func (g *GuidGenerator) High() HighGuid { return g.high }
