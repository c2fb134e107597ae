package transport

import (
	"context"
	"sync"

	"github.com/optionagent/agent/internal/domain"
	"github.com/optionagent/agent/internal/run"
)

// jobState is the in-memory record of an in-flight or finished run,
// letting GetRun/CancelRun answer without a database round trip.
type jobState struct {
	mu      sync.Mutex
	status  domain.RunStatus
	outcome run.Outcome
	cancel  context.CancelFunc
}

// jobRegistry tracks every run started by this server process.
type jobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*jobState
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: map[string]*jobState{}}
}

func (j *jobRegistry) register(runID string, cancel context.CancelFunc) *jobState {
	state := &jobState{status: domain.StatusPending, cancel: cancel}
	j.mu.Lock()
	j.jobs[runID] = state
	j.mu.Unlock()
	return state
}

func (j *jobRegistry) get(runID string) (*jobState, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	state, ok := j.jobs[runID]
	return state, ok
}

func (s *jobState) setOutcome(outcome run.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = outcome
	s.status = outcome.Run.Status
}

func (s *jobState) snapshot() (domain.RunStatus, run.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.outcome
}
