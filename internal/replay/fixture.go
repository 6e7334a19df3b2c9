package replay

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/storyweave/internal/codec"
	"github.com/danielpatrickdp/storyweave/internal/orchestrator"
)

// ErrInvalidFixture marks a fixture that cannot be replayed.
var ErrInvalidFixture = errors.New("invalid fixture")

// #region fixture-types

// Fixture is one scripted session: canned service replies per role and the
// reader turns played against them.
type Fixture struct {
	Description string                      `yaml:"description"`
	Tier        string                      `yaml:"tier"`
	PacingMode  string                      `yaml:"pacing_mode"`
	CascadeCap  int                         `yaml:"cascade_cap"`
	Timeout     time.Duration               `yaml:"timeout"`
	Scripts     map[codec.Role][]codec.Step `yaml:"scripts"`
	Turns       []FixtureTurn               `yaml:"turns"`
}

// FixtureTurn is one reader turn and what it should produce.
type FixtureTurn struct {
	Name       string      `yaml:"name"`
	Action     string      `yaml:"action"`
	Dialogue   string      `yaml:"dialogue"`
	Trigger    string      `yaml:"trigger"`
	Petition   bool        `yaml:"petition"`
	Invocation bool        `yaml:"invocation"`
	Expect     Expectation `yaml:"expect"`
}

// Expectation lists the checked outcomes of a turn. Nil flags are not checked.
type Expectation struct {
	Phase              string `yaml:"phase"` // empty means COMPLETE, or AUTHOR_PASS when aborted
	Aborted            bool   `yaml:"aborted"`
	Cascade            *bool  `yaml:"cascade"`
	RendererUsed       *bool  `yaml:"renderer_used"`
	FallbackAuthor     *bool  `yaml:"fallback_author"`
	FateStumbled       *bool  `yaml:"fate_stumbled"`
	ForcedInterruption *bool  `yaml:"forced_interruption"`
	Contains           string `yaml:"contains"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and validates a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	f, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return f, nil
}

// ParseFixture decodes a fixture. Unknown fields are rejected.
func ParseFixture(data []byte) (*Fixture, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f Fixture
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks roles and phases before any turn runs.
func (f *Fixture) Validate() error {
	if len(f.Turns) == 0 {
		return fmt.Errorf("%w: no turns", ErrInvalidFixture)
	}
	known := map[codec.Role]bool{}
	for _, r := range codec.Roles() {
		known[r] = true
	}
	for role := range f.Scripts {
		if !known[role] {
			return fmt.Errorf("%w: unknown role %q", ErrInvalidFixture, role)
		}
	}
	phases := map[string]bool{}
	for _, p := range []orchestrator.Phase{
		orchestrator.PhaseGateCheck, orchestrator.PhaseAuthorPass, orchestrator.PhaseSDAuthor,
		orchestrator.PhaseRenderPass, orchestrator.PhaseIntegrationPass, orchestrator.PhaseComplete,
	} {
		phases[string(p)] = true
	}
	for i, t := range f.Turns {
		if t.Expect.Phase != "" && !phases[t.Expect.Phase] {
			return fmt.Errorf("%w: turn %d: unknown phase %q", ErrInvalidFixture, i+1, t.Expect.Phase)
		}
	}
	return nil
}

// #endregion fixture-loader
