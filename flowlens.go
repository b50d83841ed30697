// Package flowlens is the public API for embedding the FlowLens business
// insight engine.
//
// FlowLens watches workflow execution telemetry (step statuses, item
// counts, field names, durations) and turns it into business insights:
// which metric a workflow is really about, how that metric is trending,
// and which structural patterns (empty results, failures, cost hotspots,
// manual bottlenecks) deserve attention. It never reads record values;
// every stored figure is a count, a boolean, a duration, or a field name.
//
//	engine, err := flowlens.New(
//	    flowlens.WithLogger(logger),
//	    flowlens.WithDatabaseURL(dsn),
//	)
//	if err != nil { ... }
//	defer engine.Close(ctx)
//
//	insights, err := engine.AnalyzeAgent(ctx, agentID)
//
// The import graph enforces a strict no-cycle rule: flowlens (root)
// imports internal/*, but internal/* never imports flowlens. Public
// types (Pattern, TrendReport, Rule) are standalone structs; conversion
// helpers live here because this is the only file that sees both sides
// of the boundary.
package flowlens

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/flowlens-ai/flowlens/internal/cache"
	"github.com/flowlens-ai/flowlens/internal/collector"
	"github.com/flowlens-ai/flowlens/internal/confidence"
	"github.com/flowlens-ai/flowlens/internal/config"
	"github.com/flowlens-ai/flowlens/internal/detect"
	"github.com/flowlens-ai/flowlens/internal/memory"
	"github.com/flowlens-ai/flowlens/internal/model"
	"github.com/flowlens-ai/flowlens/internal/patterns"
	"github.com/flowlens-ai/flowlens/internal/storage"
	"github.com/flowlens-ai/flowlens/internal/telemetry"
	"github.com/flowlens-ai/flowlens/internal/trend"
	"github.com/flowlens-ai/flowlens/migrations"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = storage.ErrNotFound

// Engine is the FlowLens lifecycle. Construct with New(), release with
// Close(). Engine has no public fields; use New() options to configure it.
type Engine struct {
	cfg            config.Config
	db             *storage.DB
	collector      *collector.Collector
	detector       *cachedDetector
	analyzer       trendAnalyzer
	confCalc       *confidence.Calculator
	rules          *memory.Manager
	detectionCache *cache.DetectionCache
	otelShutdown   func(context.Context) error
	logger         *slog.Logger
}

// trendAnalyzer is the slice of internal/trend the Engine drives.
type trendAnalyzer interface {
	Analyze(ctx context.Context, agentID uuid.UUID) (*model.TrendMetrics, error)
}

// New initialises the engine. It connects to the database, runs
// migrations, and wires all subsystems. It starts no goroutines beyond
// the detection cache's eviction loop.
func New(opts ...Option) (*Engine, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		}))
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.trendLookback > 0 {
		cfg.TrendLookback = o.trendLookback
	}
	if o.detectionCacheTTL > 0 {
		cfg.DetectionCacheTTL = o.detectionCacheTTL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("flowlens starting", "version", version)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}
	db.WithSummaryThresholds(model.SummaryThresholds{
		SlowStepMS:    cfg.SlowStepThresholdMS,
		HighTokenStep: cfg.HighTokenStepThreshold,
	})

	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}
	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extraFS); err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}

	thresholds := confidence.DefaultThresholds
	if o.confidenceThresholds != nil {
		thresholds = confidence.Thresholds{
			EarlySignals:     o.confidenceThresholds.EarlySignals,
			EmergingPatterns: o.confidenceThresholds.EmergingPatterns,
			Confirmed:        o.confidenceThresholds.Confirmed,
		}
	}

	detectionCache := cache.NewDetectionCache(cfg.DetectionCacheTTL)
	detector := &cachedDetector{
		inner: detect.New(db, logger),
		cache: detectionCache,
	}

	return &Engine{
		cfg:            cfg,
		db:             db,
		collector:      collector.New(db, db, logger),
		detector:       detector,
		analyzer:       trend.New(db, detector, logger).WithLookback(cfg.TrendLookback),
		confCalc:       confidence.New(thresholds),
		rules:          memory.New(db, logger),
		detectionCache: detectionCache,
		otelShutdown:   otelShutdown,
		logger:         logger,
	}, nil
}

// Close releases the database pool, the detection cache, and the OTEL
// providers.
func (e *Engine) Close(ctx context.Context) error {
	e.logger.Info("flowlens stopping")
	e.detectionCache.Close()
	err := e.otelShutdown(ctx)
	e.db.Close()
	return err
}

// ── Ingestion ─────────────────────────────────────────────────────────────────

// RecordExecution registers an execution and its terminal status.
// Idempotent: re-recording the same execution updates its status.
func (e *Engine) RecordExecution(ctx context.Context, rec ExecutionRecord) error {
	return e.db.InsertExecution(ctx, rec.ExecutionID, rec.AgentID,
		model.ExecutionStatus(rec.Status), rec.StartedAt, rec.CompletedAt)
}

// RecordStep stores one step's telemetry.
func (e *Engine) RecordStep(ctx context.Context, rec StepRecord) error {
	return e.db.InsertStepRecord(ctx, fromPublicStepRecord(rec))
}

// CollectMetrics aggregates an execution's step records into one
// privacy-safe metrics row. Persistence is best-effort: the returned
// metrics are valid even if the write failed. New data invalidates the
// agent's cached metric detection.
func (e *Engine) CollectMetrics(ctx context.Context, req CollectRequest) (*ExecutionMetrics, error) {
	m, err := e.collector.Collect(ctx, collector.CollectRequest{
		ExecutionID:    req.ExecutionID,
		AgentID:        req.AgentID,
		StartedAt:      req.StartedAt,
		CompletedAt:    req.CompletedAt,
		TrackedTotalMS: req.TrackedTotalMS,
	})
	if err != nil {
		return nil, err
	}
	e.detectionCache.Invalidate(req.AgentID)
	pub := toPublicMetrics(*m)
	return &pub, nil
}

// ── Analysis ──────────────────────────────────────────────────────────────────

// DetectKeyMetric identifies which step of the agent's workflow carries
// the business metric, based on the most recent execution. Results are
// cached per agent for the configured TTL. Returns ErrNotFound when the
// agent has no collected metrics yet.
func (e *Engine) DetectKeyMetric(ctx context.Context, agentID uuid.UUID) (*DetectedMetric, error) {
	rows, err := e.db.ListExecutionMetrics(ctx, agentID, time.Time{}, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	dm, err := e.detector.Detect(ctx, agentID, rows[0].StepMetrics)
	if err != nil {
		return nil, err
	}
	pub := toPublicDetected(dm)
	return &pub, nil
}

// AnalyzeTrends computes the trend picture for the agent's detected
// business metric. A nil report with a nil error means the agent does
// not yet have enough history (fewer than 7 executions in the window).
func (e *Engine) AnalyzeTrends(ctx context.Context, agentID uuid.UUID) (*TrendReport, error) {
	tm, err := e.analyzer.Analyze(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if tm == nil {
		return nil, nil
	}
	report := toPublicTrend(agentID, tm)
	return &report, nil
}

// DetectPatterns runs all pattern detectors over the agent's recent
// execution history and returns the findings ordered most severe first.
func (e *Engine) DetectPatterns(ctx context.Context, agentID uuid.UUID) ([]Pattern, error) {
	since := time.Now().UTC().Add(-e.cfg.TrendLookback)
	execs, err := e.db.ListExecutionSummaries(ctx, agentID, since, 100)
	if err != nil {
		return nil, fmt.Errorf("list execution summaries: %w", err)
	}
	if len(execs) == 0 {
		return nil, nil
	}

	detectors := patterns.All()
	results := make([][]model.DetectedPattern, len(detectors))
	g, _ := errgroup.WithContext(ctx)
	for i, d := range detectors {
		g.Go(func() error {
			results[i] = d.Detect(execs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var found []model.DetectedPattern
	for _, r := range results {
		found = append(found, r...)
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Severity != found[j].Severity {
			return found[i].Severity.Rank() > found[j].Severity.Rank()
		}
		return found[i].ConfidenceScore > found[j].ConfidenceScore
	})

	out := make([]Pattern, len(found))
	for i, p := range found {
		out[i] = toPublicPattern(p)
	}
	return out, nil
}

// AnalyzeAgent bundles the full analysis for one agent: trends, ordered
// patterns, and the confidence mode insight language must honor.
func (e *Engine) AnalyzeAgent(ctx context.Context, agentID uuid.UUID) (*AgentInsights, error) {
	since := time.Now().UTC().Add(-e.cfg.TrendLookback)
	rows, err := e.db.ListExecutionMetrics(ctx, agentID, since, 100)
	if err != nil {
		return nil, err
	}
	runCount := len(rows)

	trends, err := e.AnalyzeTrends(ctx, agentID)
	if err != nil {
		return nil, err
	}
	pats, err := e.DetectPatterns(ctx, agentID)
	if err != nil {
		return nil, err
	}

	return &AgentInsights{
		AgentID:        agentID,
		Trends:         trends,
		Patterns:       pats,
		ConfidenceMode: ConfidenceMode(e.confCalc.Mode(runCount)),
		RunCount:       runCount,
	}, nil
}

// ── Confidence ────────────────────────────────────────────────────────────────

// ConfidenceModeFor returns the language-strength tier for a run count.
func (e *Engine) ConfidenceModeFor(runCount int) ConfidenceMode {
	return ConfidenceMode(e.confCalc.Mode(runCount))
}

// ConfidenceScore maps a run count to a score in (0, 1].
func (e *Engine) ConfidenceScore(runCount int) float64 {
	return e.confCalc.Score(runCount)
}

// ValidateInsightLanguage returns the forbidden terms the text uses for
// the given mode. An empty result means the text is acceptable.
func (e *Engine) ValidateInsightLanguage(text string, mode ConfidenceMode) []string {
	return e.confCalc.ValidateLanguage(text, confidence.Mode(mode))
}

// PromptConstraints renders the language constraints for a mode as a
// block suitable for inclusion in an LLM prompt.
func (e *Engine) PromptConstraints(mode ConfidenceMode) string {
	return e.confCalc.PromptConstraints(confidence.Mode(mode))
}

// ── Behavior rules ────────────────────────────────────────────────────────────

// CreateRule persists a new behavior rule.
func (e *Engine) CreateRule(ctx context.Context, r Rule) (Rule, error) {
	created, err := e.rules.CreateRule(ctx, fromPublicRule(r))
	if err != nil {
		return Rule{}, err
	}
	return toPublicRule(created), nil
}

// DeactivateRule soft-deletes a rule. Returns ErrNotFound when no active
// rule with that id belongs to the user.
func (e *Engine) DeactivateRule(ctx context.Context, userID, ruleID uuid.UUID) error {
	return e.rules.DeactivateRule(ctx, userID, ruleID)
}

// FindMatchingRule returns the rule to apply for a data anomaly, or nil
// when none matches. Agent-specific rules win over global ones.
func (e *Engine) FindMatchingRule(ctx context.Context, userID, agentID uuid.UUID, field, operator string) (*Rule, error) {
	r, err := e.rules.FindMatchingRule(ctx, userID, agentID, field, operator)
	if err != nil || r == nil {
		return nil, err
	}
	pub := toPublicRule(*r)
	return &pub, nil
}

// RecordRuleApplication bumps a rule's usage counters. Errors are logged
// and swallowed: bookkeeping never fails the execution that applied the
// rule.
func (e *Engine) RecordRuleApplication(ctx context.Context, ruleID uuid.UUID) {
	e.rules.RecordRuleApplication(ctx, ruleID)
}

// ListRules lists the user's active rules, optionally narrowed to one agent.
func (e *Engine) ListRules(ctx context.Context, userID uuid.UUID, agentID *uuid.UUID) ([]Rule, error) {
	rules, err := e.rules.GetRules(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}
	out := make([]Rule, len(rules))
	for i, r := range rules {
		out[i] = toPublicRule(r)
	}
	return out, nil
}

// ── Cached detection ──────────────────────────────────────────────────────────

// cachedDetector wraps detect.Detector with the per-agent TTL cache so
// repeated analyses within the window reuse the detected metric.
type cachedDetector struct {
	inner *detect.Detector
	cache *cache.DetectionCache
}

func (c *cachedDetector) Detect(ctx context.Context, agentID uuid.UUID, steps []model.StepMetric) (model.DetectedMetric, error) {
	if m, ok := c.cache.Get(agentID); ok {
		return m, nil
	}
	m, err := c.inner.Detect(ctx, agentID, steps)
	if err != nil {
		return model.DetectedMetric{}, err
	}
	c.cache.Set(agentID, m)
	return m, nil
}

// ── Type converters ───────────────────────────────────────────────────────────

func fromPublicStepRecord(r StepRecord) model.StepExecutionRecord {
	return model.StepExecutionRecord{
		ID:          r.ID,
		ExecutionID: r.ExecutionID,
		AgentID:     r.AgentID,
		StepID:      r.StepID,
		StepName:    r.StepName,
		Plugin:      r.Plugin,
		Action:      r.Action,
		ItemCount:   r.ItemCount,
		Status:      model.StepStatus(r.Status),
		Metadata: model.StepRecordMetadata{
			FieldNames:         r.Metadata.FieldNames,
			FallbackConfigured: r.Metadata.FallbackConfigured,
			RequiresApproval:   r.Metadata.RequiresApproval,
			TokensUsed:         r.Metadata.TokensUsed,
			DurationMS:         r.Metadata.DurationMS,
			TotalExecutionMS:   r.Metadata.TotalExecutionMS,
		},
		CreatedAt: r.CreatedAt,
	}
}

func toPublicMetrics(m model.ExecutionMetrics) ExecutionMetrics {
	return ExecutionMetrics{
		ExecutionID:     m.ExecutionID,
		AgentID:         m.AgentID,
		TotalItems:      m.TotalItems,
		ItemsByField:    m.ItemsByField,
		FieldNames:      m.FieldNames,
		HasEmptyResults: m.HasEmptyResults,
		FailedStepCount: m.FailedStepCount,
		DurationMS:      m.DurationMS,
		CollectedAt:     m.CollectedAt,
	}
}

func toPublicDetected(dm model.DetectedMetric) DetectedMetric {
	return DetectedMetric{
		StepName:        dm.Step.StepName,
		StepIndex:       dm.StepIndex,
		Confidence:      dm.Confidence,
		DetectionMethod: string(dm.DetectionMethod),
		Reasoning:       dm.Reasoning,
	}
}

func toPublicTrend(agentID uuid.UUID, tm *model.TrendMetrics) TrendReport {
	return TrendReport{
		AgentID:              agentID,
		VolumeChange7D:       tm.VolumeChange7D,
		VolumeChange30D:      tm.VolumeChange30D,
		IsVolumeSpike:        tm.IsVolumeSpike,
		IsVolumeDrop:         tm.IsVolumeDrop,
		CategoryDistribution: tm.CategoryDistribution,
		DistributionShift:    tm.DistributionShift,
		DurationTrend:        tm.DurationTrend,
		EmptyResultRate:      tm.EmptyResultRate,
		FailureRate:          tm.FailureRate,
		BaselineAvg:          tm.Baseline.MetricAvg,
		BaselineStdDev:       tm.Baseline.MetricStdDev,
		DetectedMetric:       toPublicDetected(tm.DetectedMetric),
		DataPointCount:       tm.DataPointCount,
		Confidence:           string(tm.Confidence),
	}
}

func toPublicPattern(p model.DetectedPattern) Pattern {
	return Pattern{
		InsightType:     string(p.InsightType),
		Category:        string(p.Category),
		Severity:        string(p.Severity),
		ConfidenceScore: p.ConfidenceScore,
		ExecutionIDs:    p.ExecutionIDs,
		PatternData:     p.PatternData,
		Metrics:         p.Metrics,
	}
}

func toPublicRule(r model.BehaviorRule) Rule {
	return Rule{
		ID:            r.ID,
		UserID:        r.UserID,
		AgentID:       r.AgentID,
		TriggerField:  r.Trigger.DataPattern.Field,
		TriggerOp:     r.Trigger.DataPattern.Operator,
		ActionType:    r.Action.Type,
		ActionParams:  r.Action.Params,
		AppliedCount:  r.AppliedCount,
		LastAppliedAt: r.LastAppliedAt,
		CreatedAt:     r.CreatedAt,
	}
}

func fromPublicRule(r Rule) model.BehaviorRule {
	return model.BehaviorRule{
		ID:      r.ID,
		UserID:  r.UserID,
		AgentID: r.AgentID,
		Trigger: model.TriggerCondition{
			DataPattern: model.DataPattern{Field: r.TriggerField, Operator: r.TriggerOp},
		},
		Action:    model.RuleAction{Type: r.ActionType, Params: r.ActionParams},
		CreatedAt: r.CreatedAt,
	}
}
