package execution

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jherleth/salvo-ai/internal/adapters"
	"github.com/jherleth/salvo-ai/internal/backoff"
	"github.com/jherleth/salvo-ai/internal/evaluation"
	"github.com/jherleth/salvo-ai/internal/evaluation/evaluators"
	"github.com/jherleth/salvo-ai/internal/observability"
	"github.com/jherleth/salvo-ai/pkg/models"
)

// Defaults for trial orchestration. The CLI exposes them as flag defaults;
// library callers get the same values for zero-valued config fields.
const (
	DefaultNTrials     = 3
	DefaultMaxParallel = 1
	DefaultMaxRetries  = 3
)

// TraceSink receives each trial's raw trace as soon as it completes, on
// both the success and the infra-error path. The storage layer implements
// it; a nil sink disables persistence.
type TraceSink interface {
	SaveTrace(traceID string, trace *models.RunTrace) error
}

// TrialRunnerConfig configures a TrialRunner.
type TrialRunnerConfig struct {
	// Factory builds one fresh adapter per trial. SDK handles are never
	// shared across trials. Required.
	Factory adapters.Factory

	// Scenario to execute. Required.
	Scenario *models.Scenario

	// AdapterConfig carries the per-request model parameters.
	AdapterConfig adapters.Config

	// NTrials is the number of trials to run; <= 0 selects DefaultNTrials.
	NTrials int

	// MaxParallel bounds concurrent trials; <= 1 runs sequentially.
	MaxParallel int

	// MaxRetries bounds retries per trial (not attempts); negative values
	// clamp to zero. The CLI default is DefaultMaxRetries.
	MaxRetries int

	// EarlyStop aborts remaining trials on a hard fail or once the
	// threshold is mathematically unreachable.
	EarlyStop bool

	// Threshold is the pass score in [0, 1].
	Threshold float64

	// JudgeConfig is the project-level judge default block, if any.
	JudgeConfig *models.JudgeConfig

	// Backoff overrides the retry delay policy; the zero value selects
	// backoff.DefaultPolicy().
	Backoff backoff.Policy

	// Sink persists traces as trials finish. Optional.
	Sink TraceSink

	Logger  *slog.Logger
	Tracer  *observability.Tracer
	Metrics *observability.Metrics
}

// TrialRunner executes a scenario N times and aggregates the outcomes into
// a suite result. Trials are isolated: each gets a fresh adapter, its own
// scratch directory, and its own trace ID.
type TrialRunner struct {
	factory     adapters.Factory
	scenario    *models.Scenario
	cfg         adapters.Config
	nTrials     int
	maxParallel int
	maxRetries  int
	earlyStop   bool
	threshold   float64
	judgeConfig *models.JudgeConfig
	policy      backoff.Policy
	sink        TraceSink
	logger      *slog.Logger
	tracer      *observability.Tracer
	metrics     *observability.Metrics
}

// NewTrialRunner creates a TrialRunner, applying defaults for unset
// orchestration knobs.
func NewTrialRunner(cfg TrialRunnerConfig) *TrialRunner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nTrials := cfg.NTrials
	if nTrials <= 0 {
		nTrials = DefaultNTrials
	}
	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	policy := cfg.Backoff
	if policy == (backoff.Policy{}) {
		policy = backoff.DefaultPolicy()
	}

	return &TrialRunner{
		factory:     cfg.Factory,
		scenario:    cfg.Scenario,
		cfg:         cfg.AdapterConfig,
		nTrials:     nTrials,
		maxParallel: maxParallel,
		maxRetries:  maxRetries,
		earlyStop:   cfg.EarlyStop,
		threshold:   cfg.Threshold,
		judgeConfig: cfg.JudgeConfig,
		policy:      policy,
		sink:        cfg.Sink,
		logger:      logger.With("component", "trial-runner"),
		tracer:      cfg.Tracer,
		metrics:     cfg.Metrics,
	}
}

// RunAll executes the configured trials and returns the aggregated suite
// result. progress, when non-nil, is called after each trial completes with
// the number of completed trials and the requested total. Infrastructure
// failures inside a trial become infra_error trial results rather than
// errors; RunAll itself only fails on configuration mistakes.
func (r *TrialRunner) RunAll(ctx context.Context, progress func(completed, total int)) (*models.TrialSuiteResult, error) {
	if r.factory == nil {
		return nil, fmt.Errorf("trial runner: adapter factory is required")
	}
	if r.scenario == nil {
		return nil, fmt.Errorf("trial runner: scenario is required")
	}

	hash, err := ScenarioHash(r.scenario)
	if err != nil {
		return nil, err
	}

	r.logger.Info("starting trials",
		"scenario", r.scenario.Name(),
		"trials", r.nTrials,
		"max_parallel", r.maxParallel,
		"early_stop", r.earlyStop)

	var trials []models.TrialResult
	var stopReason string
	if r.maxParallel <= 1 {
		trials, stopReason = r.runSequential(ctx, hash, progress)
	} else {
		trials, stopReason = r.runConcurrent(ctx, hash, progress)
	}

	suite := r.buildSuiteResult(trials, stopReason)
	r.logger.Info("trials complete",
		"scenario", suite.ScenarioName,
		"verdict", string(suite.Verdict),
		"score_avg", suite.ScoreAvg,
		"trials_run", suite.TrialsTotal)
	return suite, nil
}

func (r *TrialRunner) runSequential(ctx context.Context, hash string, progress func(int, int)) ([]models.TrialResult, string) {
	results := make([]models.TrialResult, 0, r.nTrials)
	for trialNum := 1; trialNum <= r.nTrials; trialNum++ {
		results = append(results, r.runSingle(ctx, trialNum, hash))
		if progress != nil {
			progress(len(results), r.nTrials)
		}
		if r.earlyStop {
			if reason := r.shouldStop(results); reason != "" {
				return results, reason
			}
		}
	}
	return results, ""
}

// runConcurrent schedules all trials up front under a semaphore of
// maxParallel slots. Each goroutine checks the stop flag on entry and again
// after acquiring a slot; trials already in flight when the flag flips run
// to completion. Results land in a slot array indexed by trial number so
// the final ordering is deterministic regardless of completion order.
func (r *TrialRunner) runConcurrent(ctx context.Context, hash string, progress func(int, int)) ([]models.TrialResult, string) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		stop atomic.Bool
	)
	slots := make([]*models.TrialResult, r.nTrials)
	sem := make(chan struct{}, r.maxParallel)
	stopReason := ""
	completed := 0

	for i := 1; i <= r.nTrials; i++ {
		wg.Add(1)
		go func(trialNum int) {
			defer wg.Done()

			if stop.Load() {
				return
			}
			sem <- struct{}{}
			defer func() { <-sem }()
			if stop.Load() {
				return
			}

			result := r.runSingle(ctx, trialNum, hash)

			mu.Lock()
			defer mu.Unlock()
			slots[trialNum-1] = &result
			completed++
			if progress != nil {
				progress(completed, r.nTrials)
			}
			if r.earlyStop && !stop.Load() {
				if reason := r.shouldStop(compactSlots(slots)); reason != "" {
					stopReason = reason
					stop.Store(true)
				}
			}
		}(i)
	}
	wg.Wait()

	return compactSlots(slots), stopReason
}

// compactSlots drops the slots of trials that never ran, preserving trial
// number order.
func compactSlots(slots []*models.TrialResult) []models.TrialResult {
	results := make([]models.TrialResult, 0, len(slots))
	for _, slot := range slots {
		if slot != nil {
			results = append(results, *slot)
		}
	}
	return results
}

// shouldStop reports why the remaining trials are pointless: a completed
// hard fail, or a best-case average (every remaining trial scoring 1.0)
// that still misses the threshold. Empty means keep going.
func (r *TrialRunner) shouldStop(completed []models.TrialResult) string {
	for _, trial := range completed {
		if trial.Status == models.TrialHardFail {
			return fmt.Sprintf("Hard fail detected on trial %d", trial.TrialNumber)
		}
	}

	var sum float64
	for _, trial := range completed {
		sum += trial.Score
	}
	remaining := r.nTrials - len(completed)
	if remaining <= 0 {
		return ""
	}
	bestPossible := (sum + float64(remaining)) / float64(r.nTrials)
	if bestPossible < r.threshold {
		return "Threshold mathematically unreachable"
	}
	return ""
}

// runSingle executes one trial end to end: scratch dir, fresh adapter,
// retry-wrapped scenario run, trace persistence, assertion evaluation, and
// status derivation. Failures after the retry budget become an infra_error
// result with a placeholder trace persisted under the same trace ID.
func (r *TrialRunner) runSingle(ctx context.Context, trialNum int, hash string) models.TrialResult {
	start := time.Now()
	traceID := newRunID()

	trialCtx, span := r.tracer.StartTrial(ctx, r.scenario.Name(), trialNum)
	defer span.End()

	workDir, err := os.MkdirTemp("", fmt.Sprintf("salvo_trial_%d_", trialNum))
	if err != nil {
		return r.finishTrial(r.infraResult(trialNum, traceID, start, hash, "", backoff.Result[*models.RunTrace]{}, err), start)
	}
	defer os.RemoveAll(workDir)

	adapter := r.factory()
	provider := adapter.ProviderName()
	runner := NewScenarioRunner(adapter, r.logger, r.tracer, r.metrics)

	res, err := backoff.Retry(trialCtx, r.policy, r.maxRetries,
		adapters.IsTransient,
		func(err error) string { return string(adapters.Classify(err)) },
		func(ctx context.Context) (*models.RunTrace, error) {
			return runner.Run(ctx, r.scenario, r.cfg)
		})
	r.recordRetries(res)
	if err != nil {
		r.logger.Warn("trial failed after retries",
			"trial", trialNum, "retries", res.Retries, "error", err)
		return r.finishTrial(r.infraResult(trialNum, traceID, start, hash, provider, res, err), start)
	}
	trace := res.Value

	if r.sink != nil {
		if serr := r.sink.SaveTrace(traceID, ApplyTraceLimits(trace)); serr != nil {
			r.logger.Warn("trace persistence failed", "trace_id", traceID, "error", serr)
		}
	}

	assertions, err := evaluation.NormalizeAssertions(r.scenario.Assertions)
	if err != nil {
		return r.finishTrial(r.evalInfraResult(trialNum, traceID, trace, res, err), start)
	}

	opts := evaluators.Options{
		Scenario:     r.scenario,
		JudgeConfig:  r.judgeConfig,
		NewAdapter:   adapters.New,
		EstimateCost: EstimateCost,
		Logger:       r.logger,
		Tracer:       r.tracer,
		Metrics:      r.metrics,
	}
	evalResults, score, passed, err := evaluation.EvaluateTrace(trialCtx, trace, assertions, r.threshold, opts)
	if err != nil {
		return r.finishTrial(r.evalInfraResult(trialNum, traceID, trace, res, err), start)
	}
	_, _, hardFail := evaluation.ComputeScore(evalResults, r.threshold)

	status := models.TrialFailed
	switch {
	case hardFail:
		status = models.TrialHardFail
	case passed:
		status = models.TrialPassed
	}

	r.logger.Info("trial complete",
		"trial", trialNum,
		"status", string(status),
		"score", score,
		"retries", res.Retries)

	return r.finishTrial(models.TrialResult{
		TrialNumber:         trialNum,
		Status:              status,
		Score:               score,
		Passed:              passed,
		EvalResults:         evalResults,
		LatencySeconds:      trace.LatencySeconds,
		CostUSD:             trace.CostUSD,
		RetriesUsed:         res.Retries,
		TransientErrorTypes: res.ErrorTypes,
		TraceID:             traceID,
	}, start)
}

// finishTrial records the per-trial metric before handing the result back.
func (r *TrialRunner) finishTrial(result models.TrialResult, start time.Time) models.TrialResult {
	r.metrics.RecordTrial(string(result.Status), time.Since(start).Seconds())
	return result
}

// infraResult builds the trial result for a run that never produced a
// trace. A minimal placeholder trace (seed messages only, zero usage,
// finish_reason "error") is persisted under the trial's trace ID so the
// trace remains inspectable.
func (r *TrialRunner) infraResult(trialNum int, traceID string, start time.Time, hash, provider string, res backoff.Result[*models.RunTrace], cause error) models.TrialResult {
	elapsed := time.Since(start).Seconds()

	if r.sink != nil {
		placeholder := r.placeholderTrace(elapsed, hash, provider)
		if serr := r.sink.SaveTrace(traceID, placeholder); serr != nil {
			r.logger.Warn("placeholder trace persistence failed", "trace_id", traceID, "error", serr)
		}
	}

	return models.TrialResult{
		TrialNumber:         trialNum,
		Status:              models.TrialInfraError,
		Score:               0,
		Passed:              false,
		LatencySeconds:      elapsed,
		RetriesUsed:         r.maxRetries,
		TransientErrorTypes: transientTypes(res, cause),
		ErrorMessage:        cause.Error(),
		TraceID:             traceID,
	}
}

// evalInfraResult builds the trial result for an evaluation-pipeline
// failure after a successful run. The real trace already exists, so no
// placeholder is written.
func (r *TrialRunner) evalInfraResult(trialNum int, traceID string, trace *models.RunTrace, res backoff.Result[*models.RunTrace], cause error) models.TrialResult {
	return models.TrialResult{
		TrialNumber:         trialNum,
		Status:              models.TrialInfraError,
		Score:               0,
		Passed:              false,
		LatencySeconds:      trace.LatencySeconds,
		CostUSD:             trace.CostUSD,
		RetriesUsed:         res.Retries,
		TransientErrorTypes: res.ErrorTypes,
		ErrorMessage:        cause.Error(),
		TraceID:             traceID,
	}
}

func (r *TrialRunner) placeholderTrace(elapsed float64, hash, provider string) *models.RunTrace {
	messages := make([]models.TraceMessage, 0, 2)
	if r.scenario.SystemPrompt != "" {
		system := r.scenario.SystemPrompt
		messages = append(messages, models.TraceMessage{Role: adapters.RoleSystem, Content: &system})
	}
	prompt := r.scenario.Prompt
	messages = append(messages, models.TraceMessage{Role: adapters.RoleUser, Content: &prompt})

	return &models.RunTrace{
		Messages:       messages,
		LatencySeconds: elapsed,
		FinishReason:   "error",
		Model:          r.cfg.Model,
		Provider:       provider,
		Timestamp:      time.Now().UTC(),
		ScenarioHash:   hash,
	}
}

// transientTypes picks the classified error history for an infra result:
// the retry history when there is one, otherwise the final error's class.
func transientTypes(res backoff.Result[*models.RunTrace], cause error) []string {
	if len(res.ErrorTypes) > 0 {
		return res.ErrorTypes
	}
	return []string{string(adapters.Classify(cause))}
}

// recordRetries counts the attempts that actually led to a retry; on
// budget exhaustion the final failure is classified but never retried.
func (r *TrialRunner) recordRetries(res backoff.Result[*models.RunTrace]) {
	retried := res.ErrorTypes
	if len(retried) > res.Retries {
		retried = retried[:res.Retries]
	}
	for _, reason := range retried {
		r.metrics.RecordRetry(reason)
	}
}

// buildSuiteResult aggregates trial results into the suite verdict.
// Infra-error trials are excluded from score and latency statistics but
// still drive the INFRA_ERROR verdict and the failure report.
func (r *TrialRunner) buildSuiteResult(trials []models.TrialResult, stopReason string) *models.TrialSuiteResult {
	scored := make([]models.TrialResult, 0, len(trials))
	var passed, failed, hardFail, infra int
	var totalRetries, trialsWithRetries int
	for _, trial := range trials {
		switch trial.Status {
		case models.TrialPassed:
			passed++
		case models.TrialFailed:
			failed++
		case models.TrialHardFail:
			hardFail++
		case models.TrialInfraError:
			infra++
		}
		if trial.Status != models.TrialInfraError {
			scored = append(scored, trial)
		}
		totalRetries += trial.RetriesUsed
		if trial.RetriesUsed > 0 {
			trialsWithRetries++
		}
	}

	agg := evaluation.ComputeAggregateMetrics(scored)
	verdict := evaluation.DetermineVerdict(trials, agg.ScoreAvg, r.threshold, false)
	failures := evaluation.AggregateFailures(trials)

	return &models.TrialSuiteResult{
		RunID:        newRunID(),
		ScenarioName: r.scenario.Name(),
		Model:        r.cfg.Model,
		Adapter:      r.scenario.Adapter,

		Trials: trials,

		TrialsTotal:      len(trials),
		TrialsPassed:     passed,
		TrialsFailed:     failed,
		TrialsHardFail:   hardFail,
		TrialsInfraError: infra,

		Verdict:  verdict,
		PassRate: agg.PassRate,

		ScoreAvg:  agg.ScoreAvg,
		ScoreMin:  agg.ScoreMin,
		ScoreP50:  agg.ScoreP50,
		ScoreP95:  agg.ScoreP95,
		Threshold: r.threshold,

		CostTotal:       agg.CostTotal,
		CostAvgPerTrial: agg.CostAvgPerTrial,
		JudgeCostTotal:  sumJudgeCosts(trials),
		LatencyP50:      agg.LatencyP50,
		LatencyP95:      agg.LatencyP95,

		TotalRetries:      totalRetries,
		TrialsWithRetries: trialsWithRetries,

		EarlyStopped:    stopReason != "",
		EarlyStopReason: stopReason,
		NRequested:      r.nTrials,

		AssertionFailures: failures,
	}
}

// sumJudgeCosts totals the judge spend recorded in eval result metadata.
// Nil when no trial ran a judge assertion.
func sumJudgeCosts(trials []models.TrialResult) *float64 {
	var total float64
	found := false
	for _, trial := range trials {
		for _, result := range trial.EvalResults {
			if v, ok := result.Metadata["judge_cost_usd"]; ok {
				if cost, ok := v.(float64); ok {
					total += cost
					found = true
				}
			}
		}
	}
	if !found {
		return nil
	}
	return &total
}

// newRunID returns a UUIDv7 so IDs sort chronologically on disk; the
// random fallback only fires if the system clock source fails.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
