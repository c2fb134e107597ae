package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionagent/agent/internal/candidates"
	"github.com/optionagent/agent/internal/cascade"
	"github.com/optionagent/agent/internal/domain"
	"github.com/optionagent/agent/internal/gateway"
	"github.com/optionagent/agent/internal/ips"
	"github.com/optionagent/agent/internal/run"
	"github.com/optionagent/agent/internal/scorer"
)

type memRepo struct {
	runs map[string]domain.Run
}

func (m *memRepo) OpenRun(_ context.Context, r domain.Run) error  { m.runs[r.ID] = r; return nil }
func (m *memRepo) CloseRun(_ context.Context, r domain.Run) error { m.runs[r.ID] = r; return nil }
func (m *memRepo) PersistCandidate(_ context.Context, _ string, _ domain.Candidate) error {
	return nil
}
func (m *memRepo) PersistDecision(_ context.Context, _ string, _ domain.ReasoningDecision) error {
	return nil
}

type memIPSStore struct{ cfg domain.IPSConfig }

func (m memIPSStore) GetIPS(_ context.Context, _ string) (domain.IPSConfig, error) { return m.cfg, nil }

func newTestController(t *testing.T) (*run.Controller, *memRepo) {
	t.Helper()
	fake := gateway.NewFake()
	fake.ReasonQueue = []string{`{"decision":"REJECT","reasoning":"nothing survived"}`}
	registry := ips.NewRegistry(ips.DefaultHighWeightThreshold, zerolog.Nop())
	cfg := domain.IPSConfig{ID: "ips-1", Factors: []domain.Factor{
		{Key: "opt-delta", Scope: domain.ScopeChain, RawWeight: 1, Enabled: true, Direction: domain.DirLTE, Threshold: 0.20},
	}}
	loader := ips.NewLoader(memIPSStore{cfg: cfg}, registry)
	gen := candidates.New(zerolog.Nop())
	sc := scorer.New(fake, scorer.DefaultConfig(), zerolog.Nop())
	cascadeRunner := cascade.New(fake, registry, gen, nil, sc, zerolog.Nop())
	repo := &memRepo{runs: map[string]domain.Run{}}
	return run.New(repo, loader, cascadeRunner, sc, fake, nil, zerolog.Nop()), repo
}

func TestAddJobRunsOnSchedule(t *testing.T) {
	controller, repo := newTestController(t)
	s := New(controller, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		s.Start()
	}()

	// cron rounds @every intervals below one second up to one second, so
	// the wait has to cover at least one full second for a run to fire.
	err := s.AddJob(BatchJob{Name: "test-job", Schedule: "@every 1s", IPSID: "ips-1", UserID: "user-1", Watchlist: nil})
	require.NoError(t, err)

	go func() {
		time.Sleep(1500 * time.Millisecond)
		close(done)
	}()
	<-done
	s.Stop()
	assert.NotEmpty(t, repo.runs, "the scheduled job must have started at least one run")
}

func TestAddJobRejectsInvalidSchedule(t *testing.T) {
	controller, _ := newTestController(t)
	s := New(controller, zerolog.Nop())
	err := s.AddJob(BatchJob{Name: "bad-job", Schedule: "not-a-schedule"})
	assert.Error(t, err)
}
