package main

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/storyweave/internal/codec"
	"github.com/danielpatrickdp/storyweave/internal/config"
	"github.com/danielpatrickdp/storyweave/internal/lens"
	"github.com/danielpatrickdp/storyweave/internal/orchestrator"
	"github.com/danielpatrickdp/storyweave/internal/state"
)

// #region wiring

// buildLayer opens one transport per role. The returned closer releases any
// gRPC connections.
func buildLayer(c *config.Config, log *zap.Logger) (*codec.Layer, func() error, error) {
	var closers []func() error
	closeAll := func() error {
		var errs []error
		for _, fn := range closers {
			errs = append(errs, fn())
		}
		return errors.Join(errs...)
	}

	client := &http.Client{}
	services := make([]codec.Service, 0, len(codec.Roles()))
	for _, role := range codec.Roles() {
		sc := c.Services.For(role)
		var tr codec.Transport
		switch sc.Transport {
		case config.TransportGRPC:
			g, err := codec.NewGRPCTransport(sc.Endpoint)
			if err != nil {
				_ = closeAll()
				return nil, nil, fmt.Errorf("%s: %w", role, err)
			}
			closers = append(closers, g.Close)
			tr = g
		default:
			tr = codec.NewHTTPTransport(codec.HTTPConfig{BaseURL: sc.Endpoint, APIKey: sc.APIKey, HTTPClient: client})
		}
		services = append(services, codec.Service{Role: role, Model: sc.Model, Transport: tr})
	}
	return codec.NewLayer(c.CallTimeout, log, services...), closeAll, nil
}

// controllerOptions maps config onto orchestrator options.
func controllerOptions(c *config.Config, sink orchestrator.TraceSink, log *zap.Logger) orchestrator.Options {
	return orchestrator.Options{
		PacingCaps: map[string]int{
			"slow":     c.Pacing.Cap("slow"),
			"standard": c.Pacing.Cap("standard"),
			"fast":     c.Pacing.Cap("fast"),
		},
		MinCascadeLength: c.Tuning.MinCascadeLength,
		ContinuityWords:  c.Tuning.ContinuityWords,
		Sink:             sink,
		Logger:           log,
	}
}

// lensEngine builds the shared engine over the persistent history.
func lensEngine(c *config.Config, store *state.Store, log *zap.Logger) *lens.Engine {
	return lens.NewEngine(store, lens.Config{
		Window:            c.Tuning.HistoryWindow,
		RepetitionPenalty: c.Tuning.PacingVariationPenalty,
	}, nil, log)
}

func openStore(c *config.Config) (*state.Store, error) {
	store, err := state.NewStore(c.DBPath, c.Tuning.HistoryCap)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}

// #endregion wiring
