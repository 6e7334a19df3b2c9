package lens

import "strings"

// #region archetypes

// Archetype is a canonical lens-archetype, the key into the compatibility table.
type Archetype string

const (
	ArchetypeRomantic      Archetype = "romantic"
	ArchetypeCloaked       Archetype = "cloaked"
	ArchetypeDangerous     Archetype = "dangerous"
	ArchetypeGuardian      Archetype = "guardian"
	ArchetypeSovereign     Archetype = "sovereign"
	ArchetypeEnchanting    Archetype = "enchanting"
	ArchetypeDevoted       Archetype = "devoted"
	ArchetypeStrategist    Archetype = "strategist"
	ArchetypeBeautifulRuin Archetype = "beautiful_ruin"
)

// defaultArchetype absorbs anything the alias table does not know.
const defaultArchetype = ArchetypeRomantic

var aliases = map[string]Archetype{
	"romantic":          ArchetypeRomantic,
	"romantic_lead":     ArchetypeRomantic,
	"everyman":          ArchetypeRomantic,
	"dreamer":           ArchetypeRomantic,
	"hopeless_romantic": ArchetypeRomantic,
	"cloaked":           ArchetypeCloaked,
	"brooding":          ArchetypeCloaked,
	"mysterious":        ArchetypeCloaked,
	"stranger":          ArchetypeCloaked,
	"spy":               ArchetypeCloaked,
	"dangerous":         ArchetypeDangerous,
	"rogue":             ArchetypeDangerous,
	"villain":           ArchetypeDangerous,
	"bad_boy":           ArchetypeDangerous,
	"outlaw":            ArchetypeDangerous,
	"guardian":          ArchetypeGuardian,
	"protector":         ArchetypeGuardian,
	"knight":            ArchetypeGuardian,
	"bodyguard":         ArchetypeGuardian,
	"soldier":           ArchetypeGuardian,
	"sovereign":         ArchetypeSovereign,
	"royal":             ArchetypeSovereign,
	"king":              ArchetypeSovereign,
	"queen":             ArchetypeSovereign,
	"ceo":               ArchetypeSovereign,
	"billionaire":       ArchetypeSovereign,
	"enchanting":        ArchetypeEnchanting,
	"siren":             ArchetypeEnchanting,
	"charmer":           ArchetypeEnchanting,
	"muse":              ArchetypeEnchanting,
	"spellbinder":       ArchetypeEnchanting,
	"devoted":           ArchetypeDevoted,
	"loyal":             ArchetypeDevoted,
	"childhood_friend":  ArchetypeDevoted,
	"best_friend":       ArchetypeDevoted,
	"strategist":        ArchetypeStrategist,
	"mastermind":        ArchetypeStrategist,
	"scholar":           ArchetypeStrategist,
	"detective":         ArchetypeStrategist,
	"beautiful_ruin":    ArchetypeBeautifulRuin,
	"wounded":           ArchetypeBeautifulRuin,
	"tortured":          ArchetypeBeautifulRuin,
	"fallen":            ArchetypeBeautifulRuin,
}

// Canonicalize maps a free-form archetype name onto the canonical set.
// Case, surrounding space and separators (space, dash) are ignored.
func Canonicalize(name string) Archetype {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if a, ok := aliases[key]; ok {
		return a
	}
	return defaultArchetype
}

// #endregion archetypes

// #region compatibility

// Rating is how well a lens suits an archetype.
type Rating int

const (
	Forbidden Rating = iota
	Conditional
	Natural
)

const (
	nat = Natural
	cnd = Conditional
	fbd = Forbidden
)

// compatibility rows are in All() order:
// withheld_core, moral_friction, underestimated, volatile_mirror.
var compatibility = map[Archetype][4]Rating{
	ArchetypeRomantic:      {cnd, nat, cnd, nat},
	ArchetypeCloaked:       {nat, cnd, cnd, fbd},
	ArchetypeDangerous:     {cnd, nat, fbd, nat},
	ArchetypeGuardian:      {cnd, nat, nat, fbd},
	ArchetypeSovereign:     {nat, cnd, fbd, cnd},
	ArchetypeEnchanting:    {cnd, fbd, nat, nat},
	ArchetypeDevoted:       {fbd, fbd, nat, fbd},
	ArchetypeStrategist:    {nat, cnd, nat, fbd},
	ArchetypeBeautifulRuin: {nat, cnd, fbd, nat},
}

// RatingFor returns the compatibility of a lens with an archetype.
func RatingFor(a Archetype, id ID) Rating {
	row, ok := compatibility[a]
	if !ok {
		row = compatibility[defaultArchetype]
	}
	for i, l := range All() {
		if l == id {
			return row[i]
		}
	}
	return Forbidden
}

// Archetypes lists the canonical set.
func Archetypes() []Archetype {
	return []Archetype{
		ArchetypeRomantic, ArchetypeCloaked, ArchetypeDangerous,
		ArchetypeGuardian, ArchetypeSovereign, ArchetypeEnchanting,
		ArchetypeDevoted, ArchetypeStrategist, ArchetypeBeautifulRuin,
	}
}

// #endregion compatibility
