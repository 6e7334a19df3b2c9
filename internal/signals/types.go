package signals

// #region signal-type

// SignalType names a behavioral signal observed during a session.
type SignalType string

const (
	SignalTurn              SignalType = "turn"
	SignalCategorySelected  SignalType = "category_selected"
	SignalIntensity         SignalType = "intensity"
	SignalInterruption      SignalType = "interruption"
	SignalAbandonment       SignalType = "abandonment"
	SignalEscalation        SignalType = "escalation"
	SignalArchetypeSelected SignalType = "archetype_selected"
)

// #endregion signal-type

// #region category

// Category is a kind of narrative beat the reader can pick.
type Category string

const (
	CategoryTension    Category = "tension"
	CategoryTenderness Category = "tenderness"
	CategoryBanter     Category = "banter"
	CategoryDanger     Category = "danger"
)

// #endregion category

// #region intensity

// Intensity is the heat level of a turn; IntensityPeak is the top tier.
type Intensity string

const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
	IntensityPeak   Intensity = "peak"
)

// #endregion intensity

// #region signal-data

// SignalData carries the payload for a signal. Only the field relevant to the
// signal type is read.
type SignalData struct {
	Category  Category
	Intensity Intensity
	Archetype string
}

// #endregion signal-data

// #region tri

// Tri is a three-valued inference: nothing concluded yet, yes, or no.
type Tri int

const (
	Unknown Tri = iota
	Yes
	No
)

func (t Tri) String() string {
	switch t {
	case Yes:
		return "true"
	case No:
		return "false"
	}
	return "unknown"
}

// #endregion tri

// #region preferences

// Preferences is the fixed-shape inference summary.
type Preferences struct {
	PrefersTension        Tri
	PrefersTenderness     Tri
	PrefersBanter         Tri
	DislikesInterruption  Tri
	SustainsHighIntensity Tri
	EscalatesEarly        Tri
	FavoredArchetype      string // empty until one archetype has been picked twice
}

// #endregion preferences

// #region thresholds

// Minimum evidence before each inference leaves Unknown.
const (
	minTurns              = 2
	minCategorySelections = 4
	minInterruptions      = 2
	intensityWindow       = 3
	earlyTurnThreshold    = 3
	minArchetypePicks     = 2
	maxBiasPhrases        = 3

	preferShare = 0.4
	avoidShare  = 0.1
)

// #endregion thresholds
