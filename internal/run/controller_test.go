package run

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
	"github.com/optionagent/agent/internal/scorer"
)

type memRepo struct {
	runs       map[string]domain.Run
	candidates []domain.Candidate
	decisions  []domain.ReasoningDecision
}

func newMemRepo() *memRepo {
	return &memRepo{runs: map[string]domain.Run{}}
}

func (m *memRepo) OpenRun(_ context.Context, run domain.Run) error {
	m.runs[run.ID] = run
	return nil
}

func (m *memRepo) CloseRun(_ context.Context, run domain.Run) error {
	m.runs[run.ID] = run
	return nil
}

func (m *memRepo) PersistCandidate(_ context.Context, _ string, c domain.Candidate) error {
	m.candidates = append(m.candidates, c)
	return nil
}

func (m *memRepo) PersistDecision(_ context.Context, _ string, d domain.ReasoningDecision) error {
	m.decisions = append(m.decisions, d)
	return nil
}

type memIPSStore struct {
	cfg domain.IPSConfig
}

func (m memIPSStore) GetIPS(_ context.Context, _ string) (domain.IPSConfig, error) {
	return m.cfg, nil
}

type recordingSink struct {
	updates []domain.JobProgress
}

func (s *recordingSink) Publish(_ string, p domain.JobProgress) {
	s.updates = append(s.updates, p)
}

func newTestController(t *testing.T, fake *gateway.Fake, cfg domain.IPSConfig, sink ProgressSink) (*Controller, *memRepo) {
	t.Helper()
	registry := ips.NewRegistry(ips.DefaultHighWeightThreshold, zerolog.Nop())
	loader := ips.NewLoader(memIPSStore{cfg: cfg}, registry)
	gen := candidates.New(zerolog.Nop())
	sc := scorer.New(fake, scorer.DefaultConfig(), zerolog.Nop())
	cascadeRunner := cascade.New(fake, registry, gen, nil, sc, zerolog.Nop())
	repo := newMemRepo()
	return New(repo, loader, cascadeRunner, sc, fake, sink, zerolog.Nop()), repo
}

func TestExecuteProducesSelectedCandidatesAndPersistsState(t *testing.T) {
	fake := gateway.NewFake()
	exp := time.Now().AddDate(0, 0, 30)
	fake.Quotes["XYZ"] = gateway.Quote{Price: 100}
	fake.Overviews["XYZ"] = map[string]any{}
	fake.Chains["XYZ"] = gateway.ChainResponse{
		Contracts: []gateway.ContractDTO{
			{Symbol: "XYZ", Expiry: exp, Strike: 95, Type: "P", Bid: 1.05, Ask: 1.07, Delta: -0.18, OpenInterest: 250},
			{Symbol: "XYZ", Expiry: exp, Strike: 90, Type: "P", Bid: 0.35, Ask: 0.37, Delta: -0.08, OpenInterest: 200},
		},
	}
	fake.ReasonQueue = []string{`{"rationale":"solid trade"}`}

	cfg := domain.IPSConfig{ID: "ips-1", Factors: []domain.Factor{
		{Key: "opt-delta", Scope: domain.ScopeChain, RawWeight: 1, Enabled: true, Direction: domain.DirLTE, Threshold: 0.20},
	}}
	sink := &recordingSink{}
	controller, repo := newTestController(t, fake, cfg, sink)

	outcome := controller.Execute(context.Background(), StartRequest{
		Mode: domain.ModePaper, IPSID: "ips-1", UserID: "user-1", Watchlist: []string{"XYZ"},
	})

	require.Equal(t, domain.StatusCompleted, outcome.Run.Status)
	require.Len(t, outcome.Selected, 1)
	assert.NotNil(t, outcome.Selected[0].Rationale)
	assert.Equal(t, "solid trade", outcome.Selected[0].Rationale.Text)

	assert.Len(t, repo.candidates, 1)
	assert.Equal(t, domain.StatusCompleted, repo.runs[outcome.Run.ID].Status)
	assert.NotEmpty(t, sink.updates)
	assert.Equal(t, StepComplete, sink.updates[len(sink.updates)-1].CurrentStep)
}

func TestExecuteFailsRunOnIPSLoadError(t *testing.T) {
	fake := gateway.NewFake()
	registry := ips.NewRegistry(ips.DefaultHighWeightThreshold, zerolog.Nop())
	badCfg := domain.IPSConfig{Factors: []domain.Factor{
		{Key: "does-not-exist", Enabled: true, RawWeight: 1},
	}}
	loader := ips.NewLoader(memIPSStore{cfg: badCfg}, registry)
	gen := candidates.New(zerolog.Nop())
	sc := scorer.New(fake, scorer.DefaultConfig(), zerolog.Nop())
	cascadeRunner := cascade.New(fake, registry, gen, nil, sc, zerolog.Nop())
	repo := newMemRepo()
	controller := New(repo, loader, cascadeRunner, sc, fake, nil, zerolog.Nop())

	outcome := controller.Execute(context.Background(), StartRequest{
		Mode: domain.ModePaper, IPSID: "bad-ips", UserID: "user-1", Watchlist: []string{"XYZ"},
	})

	assert.Equal(t, domain.StatusFailed, outcome.Run.Status)
	assert.Equal(t, domain.KindIPSSchemaError, outcome.Run.ErrorKind)
}

func TestExecuteCompletesWithNoCandidatesWhenCascadeEmpty(t *testing.T) {
	fake := gateway.NewFake()
	fake.ReasonQueue = []string{`{"decision":"REJECT","reasoning":"nothing survived"}`}
	cfg := domain.IPSConfig{ID: "ips-1", Factors: []domain.Factor{
		{Key: "opt-delta", Scope: domain.ScopeChain, RawWeight: 1, Enabled: true, Direction: domain.DirLTE, Threshold: 0.20},
	}}
	controller, repo := newTestController(t, fake, cfg, nil)

	outcome := controller.Execute(context.Background(), StartRequest{
		Mode: domain.ModePaper, IPSID: "ips-1", UserID: "user-1", Watchlist: nil,
	})

	assert.Equal(t, domain.StatusCompleted, outcome.Run.Status)
	assert.Empty(t, outcome.Selected)
	assert.Empty(t, repo.candidates)
}

func TestExecuteFailsRunWhenCascadeObservesCancellation(t *testing.T) {
	fake := gateway.NewFake()
	fake.Errors["Quote:XYZ"] = domain.NewAgentError(domain.KindCancelled, "XYZ", context.Canceled)
	cfg := domain.IPSConfig{ID: "ips-1", Factors: []domain.Factor{
		{Key: "opt-delta", Scope: domain.ScopeChain, RawWeight: 1, Enabled: true, Direction: domain.DirLTE, Threshold: 0.20},
	}}
	controller, repo := newTestController(t, fake, cfg, nil)

	outcome := controller.Execute(context.Background(), StartRequest{
		Mode: domain.ModePaper, IPSID: "ips-1", UserID: "user-1", Watchlist: []string{"XYZ"},
	})

	assert.Equal(t, domain.StatusFailed, outcome.Run.Status, "a cancellation observed mid-cascade must fail the run, not complete it")
	assert.Equal(t, domain.KindCancelled, outcome.Run.ErrorKind)
	assert.Empty(t, repo.candidates)
}
