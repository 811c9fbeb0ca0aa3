package models

// TrialStatus classifies the outcome of a single trial.
type TrialStatus string

const (
	TrialPassed     TrialStatus = "passed"
	TrialFailed     TrialStatus = "failed"
	TrialHardFail   TrialStatus = "hard_fail"
	TrialInfraError TrialStatus = "infra_error"
)

// Verdict is the aggregate outcome across all trials of a run.
// VerdictHardFail serializes with the embedded space ("HARD FAIL");
// exit-code mapping and display code key off these exact strings.
type Verdict string

const (
	VerdictPass       Verdict = "PASS"
	VerdictFail       Verdict = "FAIL"
	VerdictHardFail   Verdict = "HARD FAIL"
	VerdictPartial    Verdict = "PARTIAL"
	VerdictInfraError Verdict = "INFRA_ERROR"
)

// TrialResult is the outcome of one trial: evaluation results, timing,
// cost, and retry bookkeeping. On infra_error the Score is 0, the trial
// is excluded from aggregate scoring, and ErrorMessage carries the cause.
type TrialResult struct {
	TrialNumber         int          `json:"trial_number"`
	Status              TrialStatus  `json:"status"`
	Score               float64      `json:"score"`
	Passed              bool         `json:"passed"`
	EvalResults         []EvalResult `json:"eval_results"`
	LatencySeconds      float64      `json:"latency_seconds"`
	CostUSD             *float64     `json:"cost_usd"`
	RetriesUsed         int          `json:"retries_used"`
	TransientErrorTypes []string     `json:"transient_error_types,omitempty"`
	ErrorMessage        string       `json:"error_message,omitempty"`
	TraceID             string       `json:"trace_id,omitempty"`
}

// AssertionFailure aggregates repeated failures of one assertion across
// the trials of a suite, ranked for the "top offenders" report.
type AssertionFailure struct {
	AssertionType   string   `json:"assertion_type"`
	Expression      string   `json:"expression"`
	FailCount       int      `json:"fail_count"`
	FailRate        float64  `json:"fail_rate"`
	TotalWeightLost float64  `json:"total_weight_lost"`
	SampleDetails   []string `json:"sample_details,omitempty"`
}

// TrialSuiteResult is the persisted result of an N-trial run. Aggregate
// score and latency statistics cover scored trials only (infra errors are
// excluded); pointer-typed aggregates are nil when no trial produced the
// underlying measurement.
type TrialSuiteResult struct {
	RunID        string `json:"run_id"`
	ScenarioName string `json:"scenario_name"`
	ScenarioFile string `json:"scenario_file,omitempty"`
	Model        string `json:"model"`
	Adapter      string `json:"adapter"`

	Trials []TrialResult `json:"trials"`

	TrialsTotal      int `json:"trials_total"`
	TrialsPassed     int `json:"trials_passed"`
	TrialsFailed     int `json:"trials_failed"`
	TrialsHardFail   int `json:"trials_hard_fail"`
	TrialsInfraError int `json:"trials_infra_error"`

	Verdict  Verdict `json:"verdict"`
	PassRate float64 `json:"pass_rate"`

	ScoreAvg  float64 `json:"score_avg"`
	ScoreMin  float64 `json:"score_min"`
	ScoreP50  float64 `json:"score_p50"`
	ScoreP95  float64 `json:"score_p95"`
	Threshold float64 `json:"threshold"`

	CostTotal       *float64 `json:"cost_total"`
	CostAvgPerTrial *float64 `json:"cost_avg_per_trial"`
	JudgeCostTotal  *float64 `json:"judge_cost_total,omitempty"`
	LatencyP50      *float64 `json:"latency_p50"`
	LatencyP95      *float64 `json:"latency_p95"`

	TotalRetries      int `json:"total_retries"`
	TrialsWithRetries int `json:"trials_with_retries"`

	EarlyStopped    bool   `json:"early_stopped"`
	EarlyStopReason string `json:"early_stop_reason,omitempty"`
	NRequested      int    `json:"n_requested"`

	AssertionFailures []AssertionFailure `json:"assertion_failures,omitempty"`
}
