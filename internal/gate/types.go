package gate

// #region length-limit
// LengthLimit bounds how long a story may run under a tier.
type LengthLimit string

const (
	LengthTaste     LengthLimit = "taste"
	LengthFling     LengthLimit = "fling"
	LengthAffair    LengthLimit = "affair"
	LengthSoulmates LengthLimit = "soulmates"
)

// #endregion length-limit

// #region tier
// Tier is an access level derived from the reader's plan.
type Tier string

const (
	TierFree    Tier = "free"
	TierPass    Tier = "pass"
	TierSub     Tier = "sub"
	TierPremium Tier = "premium"
)

// #endregion tier

// #region gate-record
// GateRecord is the constraint set a tier imposes on a turn.
type GateRecord struct {
	Tier                Tier        `json:"tier"`
	GateCode            string      `json:"gate_code"`
	CompletionAllowed   bool        `json:"completion_allowed"`
	CliffhangerRequired bool        `json:"cliffhanger_required"`
	LengthLimit         LengthLimit `json:"length_limit"`
}

// #endregion gate-record
