package maps

// Kind selects the map specialization.
type Kind uint8

const (
	KindBase Kind = iota
	KindInstance
	KindBattleground
)

func (k Kind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindInstance:
		return "instance"
	case KindBattleground:
		return "battleground"
	}
	return "unknown"
}

// EnterState is the answer of an admission check. It is a value, not an
// error: every reason other than CanEnter is a normal refusal.
type EnterState uint8

const (
	CanEnter EnterState = iota
	CannotEnterAlreadyInMap
	CannotEnterNoEntry
	CannotEnterUninstancedDungeon
	CannotEnterDifficultyUnavailable
	CannotEnterNotInRaid
	CannotEnterCorpseInDifferentInstance
	CannotEnterInstanceBindMismatch
	CannotEnterTooManyInstances
	CannotEnterMaxPlayers
	CannotEnterZoneInCombat
	CannotEnterUnspecifiedReason
)

func (s EnterState) String() string {
	switch s {
	case CanEnter:
		return "can enter"
	case CannotEnterAlreadyInMap:
		return "already in map"
	case CannotEnterNoEntry:
		return "no entry"
	case CannotEnterUninstancedDungeon:
		return "uninstanced dungeon"
	case CannotEnterDifficultyUnavailable:
		return "difficulty unavailable"
	case CannotEnterNotInRaid:
		return "not in raid"
	case CannotEnterCorpseInDifferentInstance:
		return "corpse in different instance"
	case CannotEnterInstanceBindMismatch:
		return "instance bind mismatch"
	case CannotEnterTooManyInstances:
		return "too many instances"
	case CannotEnterMaxPlayers:
		return "max players"
	case CannotEnterZoneInCombat:
		return "zone in combat"
	}
	return "unspecified reason"
}

// ResetMethod says why an instance is being reset.
type ResetMethod uint8

const (
	ResetAll ResetMethod = iota
	ResetChangeDifficulty
	ResetGlobal
	ResetGroupJoin
	ResetGroupLeave
)

func (r ResetMethod) String() string {
	switch r {
	case ResetAll:
		return "all"
	case ResetChangeDifficulty:
		return "change difficulty"
	case ResetGlobal:
		return "global"
	case ResetGroupJoin:
		return "group join"
	case ResetGroupLeave:
		return "group leave"
	}
	return "unknown"
}

// EncounterCreditType is the kind of event that completes an encounter.
type EncounterCreditType uint8

const (
	EncounterCreditKillCreature EncounterCreditType = iota
	EncounterCreditCastSpell
)
