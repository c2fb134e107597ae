// Package run is the Run Controller: it owns a job's lifecycle, fetches
// the macro snapshot once per run, and orchestrates the IPS loader, the
// filter cascade, and the scorer/selector into one pipeline, publishing
// JobProgress telemetry at each stage boundary.
package run

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/optionagent/agent/internal/cascade"
	"github.com/optionagent/agent/internal/domain"
	"github.com/optionagent/agent/internal/gateway"
	"github.com/optionagent/agent/internal/ips"
	"github.com/optionagent/agent/internal/scorer"
)

var macroSeriesIDs = []string{"CPI", "UNEMPLOYMENT", "FED_FUNDS", "TREASURY_10Y"}

// Repository is the narrow persistence dependency the controller needs,
// satisfied by storage.Repository.
type Repository interface {
	OpenRun(ctx context.Context, run domain.Run) error
	CloseRun(ctx context.Context, run domain.Run) error
	PersistCandidate(ctx context.Context, runID string, c domain.Candidate) error
	PersistDecision(ctx context.Context, runID string, d domain.ReasoningDecision) error
}

// ProgressSink receives JobProgress updates as a run advances. The
// transport package's websocket broadcaster implements this.
type ProgressSink interface {
	Publish(runID string, p domain.JobProgress)
}

// NopProgressSink discards every update.
type NopProgressSink struct{}

func (NopProgressSink) Publish(string, domain.JobProgress) {}

const totalSteps = 8

// Step names published as JobProgress.CurrentStep, in pipeline order.
// StepComplete is exported so callers (e.g. the transport layer's stream
// handler) can detect the terminal update without matching on a literal.
const (
	stepInit       = "init"
	stepFetchIPS   = "fetch_ips"
	stepPrefilter  = "prefilter"
	stepChainFetch = "chain_fetch"
	stepHighWeight = "high_weight"
	stepLowWeight  = "low_weight"
	stepScoring    = "scoring"
	StepComplete   = "complete"
)

// Controller drives one run end to end.
type Controller struct {
	repo     Repository
	loader   *ips.Loader
	cascade  *cascade.Runner
	scorer   *scorer.Scorer
	gw       gateway.Gateway
	progress ProgressSink
	log      zerolog.Logger
}

// New builds a Controller.
func New(repo Repository, loader *ips.Loader, cascadeRunner *cascade.Runner, sc *scorer.Scorer, gw gateway.Gateway, progress ProgressSink, log zerolog.Logger) *Controller {
	if progress == nil {
		progress = NopProgressSink{}
	}
	return &Controller{
		repo: repo, loader: loader, cascade: cascadeRunner, scorer: sc, gw: gw, progress: progress,
		log: log.With().Str("component", "run_controller").Logger(),
	}
}

// StartRequest is the input to a new run.
type StartRequest struct {
	RunID     string // optional; generated if empty, so the caller can learn the ID before Execute returns
	Mode      domain.RunMode
	IPSID     string
	UserID    string
	Watchlist []string
}

// Outcome is the final, persisted state of a completed or failed run.
type Outcome struct {
	Run        domain.Run
	Candidates []domain.Candidate
	Selected   []domain.Candidate
}

// Execute runs the full pipeline synchronously: load IPS, fetch macro,
// run the cascade, score and select, persist everything, and return the
// final Outcome. The caller (typically the transport layer) is
// responsible for running this in its own goroutine if async behavior is
// wanted; Execute itself blocks until the run reaches a terminal status.
func (c *Controller) Execute(ctx context.Context, req StartRequest) Outcome {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	runRow := domain.Run{
		ID: runID, Mode: req.Mode, InitialSymbols: req.Watchlist,
		IPSID: req.IPSID, UserID: req.UserID, Status: domain.StatusRunning, StartedAt: time.Now(),
	}

	c.publish(runID, stepInit, 0, len(req.Watchlist), 0, "run accepted")
	if err := c.repo.OpenRun(ctx, runRow); err != nil {
		c.log.Error().Err(err).Str("run_id", runID).Msg("failed to open run")
	}

	cfg, err := c.loader.Load(ctx, req.IPSID)
	if err != nil {
		return c.fail(ctx, runRow, 1, err)
	}
	c.publish(runID, stepFetchIPS, 1, len(req.Watchlist), 0, "ips loaded")

	if ctx.Err() != nil {
		return c.fail(ctx, runRow, 1, domain.NewAgentError(domain.KindCancelled, "", ctx.Err()))
	}
	macro := c.fetchMacro(ctx)

	c.publish(runID, stepPrefilter, 2, len(req.Watchlist), 0, "running general pre-filter")
	result := c.cascade.Run(ctx, runID, req.Watchlist, cfg, macro)
	c.publish(runID, stepChainFetch, 4, len(req.Watchlist), len(result.Candidates), "chain fetch complete")
	c.publish(runID, stepHighWeight, 5, len(req.Watchlist), len(result.Candidates), "high-weight filter complete")
	c.publish(runID, stepLowWeight, 6, len(req.Watchlist), len(result.Candidates), "low-weight filter complete")

	for _, d := range result.Decisions {
		if err := c.repo.PersistDecision(context.Background(), runID, d); err != nil {
			c.log.Error().Err(err).Str("run_id", runID).Str("checkpoint", d.CheckpointID).Msg("failed to persist decision")
		}
	}
	for _, e := range result.Errors {
		runRow.Errors = append(runRow.Errors, e)
	}

	if fatal := firstFatalError(result.Errors); fatal != nil {
		return c.fail(ctx, runRow, 6, domain.NewAgentError(fatal.Kind, fatal.Symbol, errors.New(fatal.Message)))
	}
	if ctx.Err() != nil {
		return c.fail(ctx, runRow, 6, domain.NewAgentError(domain.KindCancelled, "", ctx.Err()))
	}

	if result.Empty || len(result.Candidates) == 0 {
		runRow.Status = domain.StatusCompleted
		now := time.Now()
		runRow.FinishedAt = &now
		_ = c.repo.CloseRun(context.Background(), runRow)
		c.publish(runID, StepComplete, totalSteps, len(req.Watchlist), 0, "run completed with no candidates")
		return Outcome{Run: runRow}
	}

	// Near-miss finalization at C3: the near-miss set is the selection
	// as-is, without scoring or rationale.
	if len(result.NearMiss) > 0 {
		for _, cand := range result.Candidates {
			if err := c.repo.PersistCandidate(context.Background(), runID, cand); err != nil {
				c.log.Error().Err(err).Str("run_id", runID).Str("candidate_id", cand.ID).Msg("failed to persist candidate")
			}
		}
		runRow.Status = domain.StatusCompleted
		now := time.Now()
		runRow.FinishedAt = &now
		_ = c.repo.CloseRun(context.Background(), runRow)
		c.publish(runID, StepComplete, totalSteps, len(req.Watchlist), len(result.Candidates), "run completed from near-miss set")
		return Outcome{Run: runRow, Candidates: result.Candidates, Selected: result.Candidates}
	}

	scored := c.scorer.ScoreAll(ctx, result.Candidates, req.IPSID, req.UserID)
	selected := c.scorer.Select(scored)
	for i := range selected {
		rationale := c.scorer.Rationale(ctx, selected[i])
		selected[i].Rationale = &rationale
	}
	c.publish(runID, stepScoring, 7, len(req.Watchlist), len(selected), "scoring and selection complete")

	for _, cand := range scored {
		if err := c.repo.PersistCandidate(context.Background(), runID, cand); err != nil {
			c.log.Error().Err(err).Str("run_id", runID).Str("candidate_id", cand.ID).Msg("failed to persist candidate")
		}
	}

	runRow.Status = domain.StatusCompleted
	now := time.Now()
	runRow.FinishedAt = &now
	if err := c.repo.CloseRun(context.Background(), runRow); err != nil {
		c.log.Error().Err(err).Str("run_id", runID).Msg("failed to close run")
	}
	c.publish(runID, StepComplete, totalSteps, len(req.Watchlist), len(selected), "run completed")

	return Outcome{Run: runRow, Candidates: scored, Selected: selected}
}

func (c *Controller) fail(_ context.Context, runRow domain.Run, completedSteps int, err error) Outcome {
	runRow.Status = domain.StatusFailed
	now := time.Now()
	runRow.FinishedAt = &now
	if agentErr, ok := err.(*domain.AgentError); ok {
		runRow.ErrorKind = agentErr.Kind
	} else {
		runRow.ErrorKind = domain.KindInternalInvariantViolation
	}
	runRow.ErrorMessage = err.Error()
	if closeErr := c.repo.CloseRun(context.Background(), runRow); closeErr != nil {
		c.log.Error().Err(closeErr).Str("run_id", runRow.ID).Msg("failed to close failed run")
	}
	c.publish(runRow.ID, StepComplete, completedSteps, len(runRow.InitialSymbols), 0, "run failed: "+err.Error())
	return Outcome{Run: runRow}
}

// firstFatalError returns the first RunError whose kind is fatal to the
// owning run (see domain.ErrorKind.IsFatal), or nil if none qualify. A
// context cancellation surfaced mid-cascade is the primary case: it is
// recorded as an ordinary RunError by the stage that observed it, but
// must still abort the run rather than let it complete.
func firstFatalError(errs []domain.RunError) *domain.RunError {
	for i := range errs {
		if errs[i].Kind.IsFatal() {
			return &errs[i]
		}
	}
	return nil
}

func (c *Controller) fetchMacro(ctx context.Context) map[string]float64 {
	macro := make(map[string]float64, len(macroSeriesIDs))
	for _, id := range macroSeriesIDs {
		point, err := c.gw.MacroSeries(ctx, id)
		if err != nil {
			c.log.Warn().Err(err).Str("series", id).Msg("macro series fetch failed, factor will read as missing")
			continue
		}
		macro[id] = point.Value
	}
	return macro
}

func (c *Controller) publish(runID, step string, completed, totalSymbols, candidatesFound int, message string) {
	c.progress.Publish(runID, domain.JobProgress{
		CurrentStep: step, CompletedSteps: completed, TotalSteps: totalSteps,
		TotalSymbols: totalSymbols, CandidatesFound: candidatesFound, Message: message,
	})
}
