package codec

import (
	"context"
	"sync"
	"time"
)

// #region step
// Step is one canned reply of a Scripted transport.
type Step struct {
	Text   string        `yaml:"text"`
	Fail   ErrorKind     `yaml:"fail"`   // timeout | http | malformed; empty means success
	Status int           `yaml:"status"` // HTTP status for http failures, default 500
	Delay  time.Duration `yaml:"delay"`
}

// #endregion step

// #region scripted
// Scripted replays queued steps in order. Once the queue is empty every call
// fails with 503 so tests notice unexpected extra calls.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	requests []Request
}

// NewScripted queues steps.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: append([]Step(nil), steps...)}
}

// Reply is shorthand for a successful step.
func Reply(text string) Step { return Step{Text: text} }

// Failure is shorthand for a failing step.
func Failure(kind ErrorKind) Step { return Step{Fail: kind} }

// Push appends more steps.
func (s *Scripted) Push(steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
}

// Complete pops the next step.
func (s *Scripted) Complete(ctx context.Context, req Request) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return "", &CallError{Kind: KindHTTP, Status: 503, Body: "script exhausted"}
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	s.mu.Unlock()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	switch step.Fail {
	case "":
		return step.Text, nil
	case KindHTTP:
		st := step.Status
		if st == 0 {
			st = 500
		}
		return "", &CallError{Kind: KindHTTP, Status: st, Body: "scripted failure"}
	default:
		return "", &CallError{Kind: step.Fail, Body: "scripted failure"}
	}
}

// Calls reports how many requests were received.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of every request received.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Remaining reports how many steps are still queued.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// #endregion scripted
