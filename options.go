package flowlens

import (
	"io/fs"
	"log/slog"
	"time"
)

// Option configures an Engine.
type Option func(*resolvedOptions)

// resolvedOptions holds all overrides after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	databaseURL          string
	logger               *slog.Logger
	version              string
	trendLookback        time.Duration
	detectionCacheTTL    time.Duration
	confidenceThresholds *ConfidenceThresholds
	extraMigrations      []fs.FS
}

// ConfidenceThresholds overrides the run-count boundaries between
// confidence modes: below EarlySignals is observation, then each field
// opens the next tier.
type ConfidenceThresholds struct {
	EarlySignals     int
	EmergingPatterns int
	Confirmed        int
}

// WithDatabaseURL overrides the database connection string from config
// (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the Engine.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs and telemetry.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithTrendLookback overrides how far back trend analysis reads metrics
// (FLOWLENS_TREND_LOOKBACK env var).
func WithTrendLookback(d time.Duration) Option {
	return func(o *resolvedOptions) { o.trendLookback = d }
}

// WithDetectionCacheTTL overrides how long a detected key metric is
// reused before re-detection (FLOWLENS_DETECTION_CACHE_TTL env var).
func WithDetectionCacheTTL(d time.Duration) Option {
	return func(o *resolvedOptions) { o.detectionCacheTTL = d }
}

// WithConfidenceThresholds overrides the confidence mode boundaries.
func WithConfidenceThresholds(t ConfidenceThresholds) Option {
	return func(o *resolvedOptions) { o.confidenceThresholds = &t }
}

// WithExtraMigrations adds an additional SQL migration filesystem to run
// after the embedded migrations. Multiple filesystems may be registered;
// they are applied in registration order.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}
