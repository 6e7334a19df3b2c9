package gate

import "strings"

// #region table
var table = map[Tier]GateRecord{
	TierFree: {
		Tier:                TierFree,
		GateCode:            "GATE_TASTE",
		CompletionAllowed:   false,
		CliffhangerRequired: true,
		LengthLimit:         LengthTaste,
	},
	TierPass: {
		Tier:                TierPass,
		GateCode:            "GATE_FLING",
		CompletionAllowed:   true,
		CliffhangerRequired: false,
		LengthLimit:         LengthFling,
	},
	TierSub: {
		Tier:                TierSub,
		GateCode:            "GATE_AFFAIR",
		CompletionAllowed:   true,
		CliffhangerRequired: false,
		LengthLimit:         LengthAffair,
	},
	TierPremium: {
		Tier:                TierPremium,
		GateCode:            "GATE_SOULMATES",
		CompletionAllowed:   true,
		CliffhangerRequired: false,
		LengthLimit:         LengthSoulmates,
	},
}

// mostRestrictive is what unknown tiers fall back to.
const mostRestrictive = TierFree

// #endregion table

// #region enforce
// EnforceGates maps an access tier to its constraints. Unknown and empty
// tiers resolve to the most restrictive record.
func EnforceGates(tier string) GateRecord {
	t := Tier(strings.ToLower(strings.TrimSpace(tier)))
	if rec, ok := table[t]; ok {
		return rec
	}
	return table[mostRestrictive]
}

// Tiers lists the closed set of known tiers, most restrictive first.
func Tiers() []Tier {
	return []Tier{TierFree, TierPass, TierSub, TierPremium}
}

// #endregion enforce

// #region directive
// Directive renders the record as an instruction for the integration pass.
// The controller never trims or pads output itself; the pass is told.
func (g GateRecord) Directive() string {
	var b strings.Builder
	b.WriteString("Gate ")
	b.WriteString(g.GateCode)
	b.WriteString(": ")
	if g.CliffhangerRequired {
		b.WriteString("end this turn on an unresolved cliffhanger. ")
	}
	if g.CompletionAllowed {
		b.WriteString("Narrative completion is permitted if the story has earned it.")
	} else {
		b.WriteString("Do not bring any arc or intimate sequence to completion.")
	}
	b.WriteString(" Length budget: ")
	b.WriteString(string(g.LengthLimit))
	b.WriteString(".")
	return b.String()
}

// #endregion directive
