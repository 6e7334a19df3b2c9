package gate

import (
	"strings"
	"testing"
)

func TestEnforceGatesTable(t *testing.T) {
	cases := []struct {
		tier        string
		code        string
		completion  bool
		cliffhanger bool
		length      LengthLimit
	}{
		{"free", "GATE_TASTE", false, true, LengthTaste},
		{"pass", "GATE_FLING", true, false, LengthFling},
		{"sub", "GATE_AFFAIR", true, false, LengthAffair},
		{"premium", "GATE_SOULMATES", true, false, LengthSoulmates},
	}
	for _, tc := range cases {
		t.Run(tc.tier, func(t *testing.T) {
			rec := EnforceGates(tc.tier)
			if rec.Tier != Tier(tc.tier) {
				t.Fatalf("expected tier %s, got %s", tc.tier, rec.Tier)
			}
			if rec.GateCode != tc.code {
				t.Errorf("expected gate code %s, got %s", tc.code, rec.GateCode)
			}
			if rec.CompletionAllowed != tc.completion {
				t.Errorf("completionAllowed: expected %v, got %v", tc.completion, rec.CompletionAllowed)
			}
			if rec.CliffhangerRequired != tc.cliffhanger {
				t.Errorf("cliffhangerRequired: expected %v, got %v", tc.cliffhanger, rec.CliffhangerRequired)
			}
			if rec.LengthLimit != tc.length {
				t.Errorf("lengthLimit: expected %s, got %s", tc.length, rec.LengthLimit)
			}
		})
	}
}

func TestEnforceGatesFreeTier(t *testing.T) {
	rec := EnforceGates("free")
	if rec.CompletionAllowed || !rec.CliffhangerRequired || rec.LengthLimit != "taste" {
		t.Fatalf("unexpected free record: %+v", rec)
	}
}

func TestEnforceGatesUnknownIsMostRestrictive(t *testing.T) {
	free := EnforceGates("free")
	for _, tier := range []string{"", "gold", "PLATINUM", "  ", "free-trial"} {
		if got := EnforceGates(tier); got != free {
			t.Errorf("tier %q: expected free record, got %+v", tier, got)
		}
	}
}

func TestEnforceGatesNormalizesCase(t *testing.T) {
	if got := EnforceGates("  Premium "); got.Tier != TierPremium {
		t.Fatalf("expected premium, got %s", got.Tier)
	}
}

func TestTiersAreAllKnown(t *testing.T) {
	for _, tier := range Tiers() {
		if EnforceGates(string(tier)).Tier != tier {
			t.Errorf("tier %s did not round-trip", tier)
		}
	}
}

func TestDirective(t *testing.T) {
	free := EnforceGates("free").Directive()
	if !strings.Contains(free, "cliffhanger") {
		t.Errorf("free directive should demand a cliffhanger: %q", free)
	}
	if !strings.Contains(free, "Do not bring") {
		t.Errorf("free directive should forbid completion: %q", free)
	}

	sub := EnforceGates("sub").Directive()
	if strings.Contains(sub, "cliffhanger") {
		t.Errorf("sub directive should not demand a cliffhanger: %q", sub)
	}
	if !strings.Contains(sub, "completion is permitted") {
		t.Errorf("sub directive should permit completion: %q", sub)
	}
}
