package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/storyweave/internal/codec"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 45*time.Second, cfg.CallTimeout)
	assert.Equal(t, 2, cfg.Pacing.Cap("slow"))
	assert.Equal(t, 3, cfg.Pacing.Cap("standard"))
	assert.Equal(t, 4, cfg.Pacing.Cap("fast"))
	assert.Equal(t, 3, cfg.Pacing.Cap("glacial"))
	assert.InDelta(t, 0.15, cfg.Tuning.PacingVariationPenalty, 1e-9)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "storyweave.db", cfg.DBPath)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storyweave.yaml")
	body := `
db_path: /tmp/story.db
call_timeout: 20s
services:
  renderer:
    transport: grpc
    endpoint: localhost:7000
    model: render-xl
pacing:
  fast: 6
tuning:
  min_cascade_length: 60
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/story.db", cfg.DBPath)
	assert.Equal(t, 20*time.Second, cfg.CallTimeout)
	assert.Equal(t, TransportGRPC, cfg.Services.For(codec.RoleRenderer).Transport)
	assert.Equal(t, "render-xl", cfg.Services.Renderer.Model)
	assert.Equal(t, "author", cfg.Services.PrimaryAuthor.Model, "untouched roles keep defaults")
	assert.Equal(t, 6, cfg.Pacing.Fast)
	assert.Equal(t, 2, cfg.Pacing.Slow)
	assert.Equal(t, 60, cfg.Tuning.MinCascadeLength)
	assert.Equal(t, 150, cfg.Tuning.ContinuityWords)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storyweave.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: from-file.db\npacing:\n  slow: 5\n"), 0o644))

	t.Setenv("STORYWEAVE_DB_PATH", "from-env.db")
	t.Setenv("STORYWEAVE_CALL_TIMEOUT", "5s")
	t.Setenv("STORYWEAVE_SERVICE_FALLBACK_AUTHOR_API_KEY", "sk-test")
	t.Setenv("STORYWEAVE_PACING_SLOW", "1")
	t.Setenv("STORYWEAVE_TUNING_PACING_VARIATION_PENALTY", "0.3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.DBPath)
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
	assert.Equal(t, "sk-test", cfg.Services.FallbackAuthor.APIKey)
	assert.Equal(t, 1, cfg.Pacing.Slow)
	assert.InDelta(t, 0.3, cfg.Tuning.PacingVariationPenalty, 1e-9)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pacing: [nope"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty db":         func(c *Config) { c.DBPath = "" },
		"zero timeout":     func(c *Config) { c.CallTimeout = 0 },
		"bad transport":    func(c *Config) { c.Services.Renderer.Transport = "carrier-pigeon" },
		"no endpoint":      func(c *Config) { c.Services.FallbackRenderer.Endpoint = "" },
		"no model":         func(c *Config) { c.Services.PrimaryAuthor.Model = "" },
		"zero cap":         func(c *Config) { c.Pacing.Fast = 0 },
		"penalty too high": func(c *Config) { c.Tuning.PacingVariationPenalty = 1 },
		"window over cap":  func(c *Config) { c.Tuning.HistoryWindow = 11 },
		"zero continuity":  func(c *Config) { c.Tuning.ContinuityWords = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "storyweave.yaml")
	cfg := DefaultConfig()
	cfg.Services.Renderer.Model = "custom"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", loaded.Services.Renderer.Model)
	assert.Equal(t, cfg.CallTimeout, loaded.CallTimeout)
}
