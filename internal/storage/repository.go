package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/optionagent/agent/internal/domain"
	"github.com/optionagent/agent/internal/gateway"
)

// Repository implements the narrow persistence contract the Run
// Controller, cascade, and gateway depend on: OpenRun, PersistRawOptions,
// PersistContracts, PersistCandidate, CloseRun, LogTool, plus GetIPS for
// the IPS loader and ListRuns for job history.
type Repository struct {
	db *DB
}

// New builds a Repository over an open DB.
func New(db *DB) *Repository { return &Repository{db: db} }

// OpenRun inserts a new runs row with the run's current status.
func (r *Repository) OpenRun(ctx context.Context, run domain.Run) error {
	symbolsJSON, _ := json.Marshal(run.InitialSymbols)
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO runs (id, mode, ips_id, user_id, status, initial_symbols_json, started_at) VALUES (?,?,?,?,?,?,?)`,
		run.ID, run.Mode, run.IPSID, run.UserID, run.Status, string(symbolsJSON), run.StartedAt.Format(time.RFC3339),
	)
	return err
}

// CloseRun finalizes a run's status, error kind/message, and its
// accumulated error list.
func (r *Repository) CloseRun(ctx context.Context, run domain.Run) error {
	finishedAt := ""
	if run.FinishedAt != nil {
		finishedAt = run.FinishedAt.Format(time.RFC3339)
	}
	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE runs SET status=?, finished_at=?, error_kind=?, error_message=? WHERE id=?`,
		run.Status, finishedAt, string(run.ErrorKind), run.ErrorMessage, run.ID,
	)
	if err != nil {
		return err
	}
	for _, e := range run.Errors {
		if _, err := r.db.conn.ExecContext(ctx,
			`INSERT INTO run_errors (run_id, kind, symbol, stage, message, at) VALUES (?,?,?,?,?,?)`,
			run.ID, string(e.Kind), e.Symbol, e.Stage, e.Message, e.At.Format(time.RFC3339),
		); err != nil {
			return err
		}
	}
	return nil
}

// PersistRawOptions stores a raw chain-pull summary and its contract rows.
func (r *Repository) PersistRawOptions(ctx context.Context, snapshot domain.RawOptionSnapshot) error {
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO raw_option_snapshots (run_id, symbol, as_of) VALUES (?,?,?)`,
		snapshot.RunID, snapshot.Symbol, snapshot.AsOf.Format(time.RFC3339),
	)
	if err != nil {
		return err
	}
	return r.PersistContracts(ctx, snapshot.RunID, snapshot.Symbol, snapshot.Contracts)
}

// PersistContracts stores the individual option-contract rows for a
// symbol within a run.
func (r *Repository) PersistContracts(ctx context.Context, runID, symbol string, contracts []domain.OptionContract) error {
	stmt, err := r.db.conn.PrepareContext(ctx,
		`INSERT INTO option_contracts (run_id, symbol, expiry, strike, type, bid, ask, last, iv, delta, gamma, theta, vega, open_interest, volume, as_of)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range contracts {
		if _, err := stmt.ExecContext(ctx,
			runID, symbol, c.Expiry.Format(time.RFC3339), c.Strike, string(c.Type),
			c.Bid, c.Ask, c.Last, c.IV, c.Delta, c.Gamma, c.Theta, c.Vega,
			c.OpenInterest, c.Volume, c.AsOf.Format(time.RFC3339),
		); err != nil {
			return err
		}
	}
	return nil
}

// candidateAnalysis is the JSON shape persisted in candidates.detailed_analysis_json.
type candidateAnalysis struct {
	Legs           []domain.Leg              `json:"legs"`
	FactorResults  []domain.FactorResult     `json:"factor_results"`
	ViolationCount int                       `json:"violation_count"`
	Historical     domain.HistoricalAnalysis `json:"historical"`
	DiversityScore float64                   `json:"diversity_score"`
	Rationale      *domain.Rationale         `json:"rationale"`
}

// PersistCandidate stores one scored candidate.
func (r *Repository) PersistCandidate(ctx context.Context, runID string, c domain.Candidate) error {
	detail := candidateAnalysis{
		Legs: c.Legs, FactorResults: c.FactorResults, ViolationCount: c.ViolationCount,
		Historical: c.Historical, DiversityScore: c.DiversityScore, Rationale: c.Rationale,
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	_, err = r.db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO candidates (id, run_id, symbol, strategy, entry_mid, max_profit, max_loss, breakeven, est_pop, yield_score, ips_score, composite, tier, sector, detailed_analysis_json)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, runID, c.Symbol, c.Strategy, c.EntryMid, c.MaxProfit, c.MaxLoss, c.Breakeven, c.EstPOP,
		c.YieldScore, c.IPSScore, c.Composite, string(c.Tier), c.Sector, string(detailJSON),
	)
	return err
}

// PersistDecision appends one reasoning-checkpoint decision to the log.
func (r *Repository) PersistDecision(ctx context.Context, runID string, d domain.ReasoningDecision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = r.db.conn.ExecContext(ctx,
		`INSERT INTO decisions (run_id, checkpoint_id, decision, reasoning, timestamp, payload_json) VALUES (?,?,?,?,?,?)`,
		runID, d.CheckpointID, string(d.Decision), d.Reasoning, d.Timestamp.Format(time.RFC3339), string(payload),
	)
	return err
}

// LogTool persists one gateway tool-call audit row.
func (r *Repository) LogTool(ctx context.Context, entry gateway.ToolCallLog) error {
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO tool_calls (run_id, provider, operation, symbol, latency_ms, attempt, outcome, err, at) VALUES (?,?,?,?,?,?,?,?,?)`,
		entry.RunID, entry.Provider, entry.Operation, entry.Symbol, entry.LatencyMS, entry.Attempt, entry.Outcome, entry.Err, entry.At.Format(time.RFC3339),
	)
	return err
}

// GetIPS loads an IPSConfig by id in its raw, pre-normalization form.
func (r *Repository) GetIPS(ctx context.Context, id string) (domain.IPSConfig, error) {
	var name, userID, factorsJSON, strategiesJSON string
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT name, user_id, factors_json, strategies_json FROM ips_configs WHERE id=?`, id,
	).Scan(&name, &userID, &factorsJSON, &strategiesJSON)
	if err == sql.ErrNoRows {
		return domain.IPSConfig{}, fmt.Errorf("ips %q not found", id)
	}
	if err != nil {
		return domain.IPSConfig{}, err
	}

	var factors []domain.Factor
	if err := json.Unmarshal([]byte(factorsJSON), &factors); err != nil {
		return domain.IPSConfig{}, fmt.Errorf("decode factors: %w", err)
	}
	var strategies []string
	_ = json.Unmarshal([]byte(strategiesJSON), &strategies)

	return domain.IPSConfig{ID: id, Name: name, UserID: userID, Factors: factors, Strategies: strategies}, nil
}

// PutIPS upserts an IPSConfig in its raw, pre-normalization form.
func (r *Repository) PutIPS(ctx context.Context, cfg domain.IPSConfig) error {
	factorsJSON, err := json.Marshal(cfg.Factors)
	if err != nil {
		return err
	}
	strategiesJSON, err := json.Marshal(cfg.Strategies)
	if err != nil {
		return err
	}
	_, err = r.db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO ips_configs (id, name, user_id, factors_json, strategies_json) VALUES (?,?,?,?,?)`,
		cfg.ID, cfg.Name, cfg.UserID, string(factorsJSON), string(strategiesJSON),
	)
	return err
}

// RunSummary is one row of job history returned by ListRuns.
type RunSummary struct {
	ID        string
	Status    domain.RunStatus
	Mode      domain.RunMode
	StartedAt time.Time
}

// ListRuns returns the most recent runs for a user, newest first.
func (r *Repository) ListRuns(ctx context.Context, userID string, limit int) ([]RunSummary, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT id, status, mode, started_at FROM runs WHERE user_id=? ORDER BY started_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var startedAt, status, mode string
		if err := rows.Scan(&s.ID, &status, &mode, &startedAt); err != nil {
			return nil, err
		}
		s.Status = domain.RunStatus(status)
		s.Mode = domain.RunMode(mode)
		s.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}
