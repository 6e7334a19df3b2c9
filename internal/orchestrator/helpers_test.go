package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/storyweave/internal/codec"
)

const (
	prose    = "Rain threads down the glass while she waits, counting his footsteps on the stair and trying not to."
	sdValid  = `{"intimacy_stage":"embrace","completion_allowed":true,"emotional_core":"trust","physical_bounds":"fully clothed","sensory_focus":"touch","rhythm":"slow","hard_stops":["no violence"]}`
	sdNoStop = `{"intimacy_stage":"embrace","completion_allowed":true,"emotional_core":"trust","hard_stops":[]}`
)

func authorJSON(narrative string, authorize bool) string {
	return fmt.Sprintf(`{"narrative":%q,"authorize_embodied":%t,"intimacy_stage":"embrace"}`, narrative, authorize)
}

// rig wires one Scripted transport per role.
type rig struct {
	primary, fallback, renderer, fallbackRenderer *codec.Scripted
	layer                                         *codec.Layer
}

func newRig(timeout time.Duration) *rig {
	r := &rig{
		primary:          codec.NewScripted(),
		fallback:         codec.NewScripted(),
		renderer:         codec.NewScripted(),
		fallbackRenderer: codec.NewScripted(),
	}
	r.layer = codec.NewLayer(timeout, nil,
		codec.Service{Role: codec.RolePrimaryAuthor, Model: "author", Transport: r.primary},
		codec.Service{Role: codec.RoleFallbackAuthor, Model: "author-lite", Transport: r.fallback},
		codec.Service{Role: codec.RoleRenderer, Model: "renderer", Transport: r.renderer},
		codec.Service{Role: codec.RoleFallbackRenderer, Model: "renderer-lite", Transport: r.fallbackRenderer},
	)
	return r
}

func (r *rig) controller(opts Options) *Controller {
	return NewController(r.layer, opts)
}

// alwaysOK answers every role successfully; authors authorize embodied beats.
func alwaysOK() *codec.Layer {
	author := codec.TransportFunc(func(_ context.Context, req codec.Request) (string, error) {
		if req.JSON {
			return authorJSON("He reaches for her hand across the table.", true), nil
		}
		return "Integrated: " + prose, nil
	})
	renderer := codec.TransportFunc(func(_ context.Context, req codec.Request) (string, error) {
		if req.JSON {
			return sdValid, nil
		}
		return prose, nil
	})
	return codec.NewLayer(time.Second, nil,
		codec.Service{Role: codec.RolePrimaryAuthor, Transport: author},
		codec.Service{Role: codec.RoleFallbackAuthor, Transport: author},
		codec.Service{Role: codec.RoleRenderer, Transport: renderer},
		codec.Service{Role: codec.RoleFallbackRenderer, Transport: renderer},
	)
}

func lastUser(req codec.Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == codec.MessageUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

func systemOf(req codec.Request) string {
	var parts []string
	for _, m := range req.Messages {
		if m.Role == codec.MessageSystem {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

func strPtr(s string) *string { return &s }
