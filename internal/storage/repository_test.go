package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionagent/agent/internal/domain"
	"github.com/optionagent/agent/internal/gateway"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestPutAndGetIPSRoundTrips(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	cfg := domain.IPSConfig{
		ID:     "ips-1",
		Name:   "Conservative Income",
		UserID: "user-1",
		Factors: []domain.Factor{
			{Key: "delta", DisplayName: "Delta", Scope: domain.ScopeChain, Weight: 1, RawWeight: 10, Direction: domain.DirLTE, Threshold: 0.3, Enabled: true},
		},
		Strategies: []string{"put_credit_spread"},
	}
	require.NoError(t, repo.PutIPS(ctx, cfg))

	got, err := repo.GetIPS(ctx, "ips-1")
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, got.Name)
	assert.Equal(t, cfg.UserID, got.UserID)
	require.Len(t, got.Factors, 1)
	assert.Equal(t, "delta", got.Factors[0].Key)
}

func TestGetIPSUnknownIDErrors(t *testing.T) {
	repo := openTestRepo(t)
	_, err := repo.GetIPS(context.Background(), "missing")
	assert.Error(t, err)
}

func TestOpenRunAndCloseRunPersistErrors(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	run := domain.Run{
		ID: "run-1", Mode: domain.ModePaper, InitialSymbols: []string{"AAPL", "MSFT"},
		IPSID: "ips-1", UserID: "user-1", Status: domain.StatusRunning, StartedAt: time.Unix(0, 0).UTC(),
	}
	require.NoError(t, repo.OpenRun(ctx, run))

	finished := time.Unix(100, 0).UTC()
	run.Status = domain.StatusFailed
	run.FinishedAt = &finished
	run.ErrorKind = domain.KindProviderUnavailable
	run.ErrorMessage = "quotes provider down"
	run.Errors = []domain.RunError{
		{Kind: domain.KindProviderUnavailable, Symbol: "AAPL", Stage: "S1", Message: "timeout", At: finished},
	}
	require.NoError(t, repo.CloseRun(ctx, run))

	runs, err := repo.ListRuns(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.StatusFailed, runs[0].Status)

	var errCount int
	require.NoError(t, repo.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM run_errors WHERE run_id = ?`, "run-1").Scan(&errCount))
	assert.Equal(t, 1, errCount)
}

func TestPersistRawOptionsStoresContracts(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.OpenRun(ctx, domain.Run{ID: "run-1", UserID: "u", Status: domain.StatusRunning, StartedAt: time.Unix(0, 0).UTC()}))

	snapshot := domain.RawOptionSnapshot{
		RunID: "run-1", Symbol: "AAPL", AsOf: time.Unix(0, 0).UTC(),
		Contracts: []domain.OptionContract{
			{Symbol: "AAPL", Strike: 95, Type: domain.OptionPut, Bid: 1, Ask: 1.2, Delta: -0.2, Expiry: time.Unix(0, 0).UTC(), AsOf: time.Unix(0, 0).UTC()},
		},
	}
	require.NoError(t, repo.PersistRawOptions(ctx, snapshot))

	var contractCount int
	require.NoError(t, repo.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM option_contracts WHERE run_id = ?`, "run-1").Scan(&contractCount))
	assert.Equal(t, 1, contractCount)
}

func TestPersistCandidateAndDecision(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.OpenRun(ctx, domain.Run{ID: "run-1", UserID: "u", Status: domain.StatusRunning, StartedAt: time.Unix(0, 0).UTC()}))

	c := domain.Candidate{
		ID: "cand-1", Symbol: "AAPL", Strategy: "put_credit_spread",
		EntryMid: 0.7, MaxProfit: 0.7, MaxLoss: 4.3, Tier: domain.TierQuality,
		Historical: domain.HistoricalAnalysis{Confidence: "low"},
	}
	require.NoError(t, repo.PersistCandidate(ctx, "run-1", c))

	d := domain.ReasoningDecision{CheckpointID: "C1", Decision: domain.DecisionProceed, Reasoning: "ok", Timestamp: time.Unix(0, 0).UTC()}
	require.NoError(t, repo.PersistDecision(ctx, "run-1", d))
}

func TestLogToolPersistsAuditRow(t *testing.T) {
	repo := openTestRepo(t)
	entry := gateway.ToolCallLog{RunID: "run-1", Provider: "quotes", Operation: "Quote", Symbol: "AAPL", LatencyMS: 12, Attempt: 1, Outcome: "ok", At: time.Unix(0, 0).UTC()}
	require.NoError(t, repo.LogTool(context.Background(), entry))

	var rowCount int
	require.NoError(t, repo.db.conn.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM tool_calls WHERE run_id = ?`, "run-1").Scan(&rowCount))
	assert.Equal(t, 1, rowCount)
}
