// Package logging provides config-driven categorized file-based logging for twinsim.
// Logs are written to <state dir>/logs/ with separate files per category.
// Logging is controlled by debug_mode in the config - when false, no logs are written.
// The dashboard owns the terminal, so nothing here ever writes to stdout.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Boot/initialization
	CategorySession   Category = "session"   // Session lifecycle, delta edits
	CategoryScheduler Category = "scheduler" // Debounce timer, sequencing, stale drops
	CategoryScoring   Category = "scoring"   // Scoring service calls
	CategoryNarrative Category = "narrative" // Narrative generation calls
	CategoryUI        Category = "ui"        // Dashboard events
)

// AllCategories lists every category in a stable order.
var AllCategories = []Category{
	CategoryBoot,
	CategorySession,
	CategoryScheduler,
	CategoryScoring,
	CategoryNarrative,
	CategoryUI,
}

// Config mirrors config.LoggingConfig to avoid circular imports.
type Config struct {
	DebugMode  bool
	Categories map[string]bool
	Level      string
	JSONFormat bool
}

// StructuredLogEntry represents a JSON log entry
type StructuredLogEntry struct {
	Timestamp int64                  `json:"ts"`  // Unix milliseconds
	Category  string                 `json:"cat"` // Log category
	Level     string                 `json:"lvl"` // debug/info/warn/error
	Message   string                 `json:"msg"`
	RequestID string                 `json:"req,omitempty"` // Session or request correlation ID
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	config    Config
	configMu  sync.RWMutex
	logLevel  int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory under stateDir.
// Should be called once at startup; calling it again replaces the config and
// closes any open log files.
func Initialize(stateDir string, cfg Config) error {
	if stateDir == "" {
		return fmt.Errorf("state directory required")
	}

	CloseAll()

	configMu.Lock()
	config = cfg
	logLevel = parseLevel(cfg.Level)
	configMu.Unlock()

	loggersMu.Lock()
	logsDir = filepath.Join(stateDir, "logs")
	loggersMu.Unlock()

	// Only create logs directory if debug mode is enabled
	if !cfg.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== twinsim logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", cfg.Level)
	if len(cfg.Categories) == 0 {
		boot.Info("All categories enabled (no category filter)")
	}
	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

func isJSON() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.JSONFormat
}

func level() int {
	configMu.RLock()
	defer configMu.RUnlock()
	return logLevel
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	dir := logsDir
	loggersMu.RUnlock()

	if dir == "" {
		return &Logger{category: category}
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix for easy rotation
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(lvl int, name, reqID, msg string, fields map[string]interface{}) {
	if l.logger == nil || level() > lvl {
		return
	}
	if isJSON() {
		entry := StructuredLogEntry{
			Timestamp: time.Now().UnixMilli(),
			Category:  string(l.category),
			Level:     name,
			Message:   msg,
			RequestID: reqID,
			Fields:    fields,
		}
		if data, err := json.Marshal(entry); err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	switch {
	case reqID != "" && len(fields) > 0:
		l.logger.Printf("[%s] [req:%s] %s | %v", levelTag(name), reqID, msg, fields)
	case reqID != "":
		l.logger.Printf("[%s] [req:%s] %s", levelTag(name), reqID, msg)
	case len(fields) > 0:
		l.logger.Printf("[%s] %s | fields=%v", levelTag(name), msg, fields)
	default:
		l.logger.Printf("[%s] %s", levelTag(name), msg)
	}
}

func levelTag(name string) string {
	switch name {
	case "debug":
		return "DEBUG"
	case "warn":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "debug", "", fmt.Sprintf(format, args...), nil)
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "info", "", fmt.Sprintf(format, args...), nil)
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "warn", "", fmt.Sprintf(format, args...), nil)
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "error", "", fmt.Sprintf(format, args...), nil)
}

// CloseAll closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// Session logs to the session category
func Session(format string, args ...interface{}) {
	Get(CategorySession).Info(format, args...)
}

// SessionDebug logs debug to the session category
func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debug(format, args...)
}

// Scheduler logs to the scheduler category
func Scheduler(format string, args ...interface{}) {
	Get(CategoryScheduler).Info(format, args...)
}

// ScoringError logs an error to the scoring category
func ScoringError(format string, args ...interface{}) {
	Get(CategoryScoring).Error(format, args...)
}

// NarrativeError logs an error to the narrative category
func NarrativeError(format string, args ...interface{}) {
	Get(CategoryNarrative).Error(format, args...)
}

// UIDebug logs debug to the ui category
func UIDebug(format string, args ...interface{}) {
	Get(CategoryUI).Debug(format, args...)
}

// =============================================================================
// REQUEST ID TRACING
// =============================================================================

// RequestLogger provides request-scoped logging with a correlation ID
type RequestLogger struct {
	logger    *Logger
	requestID string
	fields    map[string]interface{}
}

// WithRequestID creates a request-scoped logger. Sessions use their UUID.
func WithRequestID(category Category, requestID string) *RequestLogger {
	return &RequestLogger{
		logger:    Get(category),
		requestID: requestID,
		fields:    make(map[string]interface{}),
	}
}

// WithField returns a copy of the request logger with an extra field.
func (r *RequestLogger) WithField(key string, value interface{}) *RequestLogger {
	fields := make(map[string]interface{}, len(r.fields)+1)
	for k, v := range r.fields {
		fields[k] = v
	}
	fields[key] = value
	return &RequestLogger{logger: r.logger, requestID: r.requestID, fields: fields}
}

func (r *RequestLogger) Debug(format string, args ...interface{}) {
	r.logger.write(LevelDebug, "debug", r.requestID, fmt.Sprintf(format, args...), r.fields)
}

func (r *RequestLogger) Info(format string, args ...interface{}) {
	r.logger.write(LevelInfo, "info", r.requestID, fmt.Sprintf(format, args...), r.fields)
}

func (r *RequestLogger) Warn(format string, args ...interface{}) {
	r.logger.write(LevelWarn, "warn", r.requestID, fmt.Sprintf(format, args...), r.fields)
}

func (r *RequestLogger) Error(format string, args ...interface{}) {
	r.logger.write(LevelError, "error", r.requestID, fmt.Sprintf(format, args...), r.fields)
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
