// Package logging provides categorized logging for slrforge. Each subsystem
// logs under its own named category so a single run can be filtered by
// concern (pipeline, search, store, ...). Backed by zap; Init selects the
// level, Sync flushes at shutdown.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryPipeline Category = "pipeline" // stage orchestration, gating
	CategoryStore    Category = "store"    // artifact persistence
	CategoryQuery    Category = "query"    // dialect compilation, complexity
	CategorySearch   Category = "search"   // providers, executor
	CategoryDedup    Category = "dedup"    // duplicate elimination
	CategoryExport   Category = "export"   // CSV/BibTeX/RIS/Markdown writers
	CategoryDrafter  Category = "drafter"  // LLM drafting and critique
	CategoryCache    Category = "cache"    // search-response cache
)

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	loggers = make(map[Category]*Logger)
)

// Init builds the process logger. Verbose enables debug level. Safe to call
// once at startup; before Init all logging is a no-op.
func Init(verbose bool) error {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	root = logger
	loggers = make(map[Category]*Logger)
	return nil
}

// Sync flushes buffered log entries. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// Logger is a category-scoped logger with printf-style methods.
type Logger struct {
	s *zap.SugaredLogger
}

// Get returns (or creates) the logger for the given category.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{s: root.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.s.Debugf(format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.s.Infof(format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.s.Warnf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.s.Errorf(format, args...)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - quick logging without getting a logger first
// =============================================================================

// Pipeline logs to the pipeline category.
func Pipeline(format string, args ...interface{}) {
	Get(CategoryPipeline).Info(format, args...)
}

// PipelineDebug logs debug to the pipeline category.
func PipelineDebug(format string, args ...interface{}) {
	Get(CategoryPipeline).Debug(format, args...)
}

// PipelineWarn logs warning to the pipeline category.
func PipelineWarn(format string, args ...interface{}) {
	Get(CategoryPipeline).Warn(format, args...)
}

// PipelineError logs error to the pipeline category.
func PipelineError(format string, args ...interface{}) {
	Get(CategoryPipeline).Error(format, args...)
}

// Store logs to the store category.
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category.
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// StoreWarn logs warning to the store category.
func StoreWarn(format string, args ...interface{}) {
	Get(CategoryStore).Warn(format, args...)
}

// StoreError logs error to the store category.
func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

// Query logs to the query category.
func Query(format string, args ...interface{}) {
	Get(CategoryQuery).Info(format, args...)
}

// QueryDebug logs debug to the query category.
func QueryDebug(format string, args ...interface{}) {
	Get(CategoryQuery).Debug(format, args...)
}

// QueryWarn logs warning to the query category.
func QueryWarn(format string, args ...interface{}) {
	Get(CategoryQuery).Warn(format, args...)
}

// Search logs to the search category.
func Search(format string, args ...interface{}) {
	Get(CategorySearch).Info(format, args...)
}

// SearchDebug logs debug to the search category.
func SearchDebug(format string, args ...interface{}) {
	Get(CategorySearch).Debug(format, args...)
}

// SearchWarn logs warning to the search category.
func SearchWarn(format string, args ...interface{}) {
	Get(CategorySearch).Warn(format, args...)
}

// SearchError logs error to the search category.
func SearchError(format string, args ...interface{}) {
	Get(CategorySearch).Error(format, args...)
}

// Dedup logs to the dedup category.
func Dedup(format string, args ...interface{}) {
	Get(CategoryDedup).Info(format, args...)
}

// DedupDebug logs debug to the dedup category.
func DedupDebug(format string, args ...interface{}) {
	Get(CategoryDedup).Debug(format, args...)
}

// Export logs to the export category.
func Export(format string, args ...interface{}) {
	Get(CategoryExport).Info(format, args...)
}

// ExportDebug logs debug to the export category.
func ExportDebug(format string, args ...interface{}) {
	Get(CategoryExport).Debug(format, args...)
}

// ExportWarn logs warning to the export category.
func ExportWarn(format string, args ...interface{}) {
	Get(CategoryExport).Warn(format, args...)
}

// Drafter logs to the drafter category.
func Drafter(format string, args ...interface{}) {
	Get(CategoryDrafter).Info(format, args...)
}

// DrafterDebug logs debug to the drafter category.
func DrafterDebug(format string, args ...interface{}) {
	Get(CategoryDrafter).Debug(format, args...)
}

// DrafterWarn logs warning to the drafter category.
func DrafterWarn(format string, args ...interface{}) {
	Get(CategoryDrafter).Warn(format, args...)
}

// DrafterError logs error to the drafter category.
func DrafterError(format string, args ...interface{}) {
	Get(CategoryDrafter).Error(format, args...)
}

// Cache logs to the cache category.
func Cache(format string, args ...interface{}) {
	Get(CategoryCache).Info(format, args...)
}

// CacheDebug logs debug to the cache category.
func CacheDebug(format string, args ...interface{}) {
	Get(CategoryCache).Debug(format, args...)
}

// CacheWarn logs warning to the cache category.
func CacheWarn(format string, args ...interface{}) {
	Get(CategoryCache).Warn(format, args...)
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level.
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}
