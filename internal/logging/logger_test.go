package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetLogging(t *testing.T) {
	t.Helper()
	CloseAll()
	configMu.Lock()
	config = Config{}
	logLevel = LevelInfo
	configMu.Unlock()
	loggersMu.Lock()
	logsDir = ""
	loggersMu.Unlock()
	t.Cleanup(CloseAll)
}

func readLog(t *testing.T, dir string, cat Category) string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), "_"+string(cat)+".log") {
			content, err := os.ReadFile(filepath.Join(dir, "logs", entry.Name()))
			if err != nil {
				t.Fatalf("Failed to read log file for %s: %v", cat, err)
			}
			return string(content)
		}
	}
	t.Fatalf("No log file found for category: %s", cat)
	return ""
}

// TestAllCategoriesLog tests that all categories create log files when debug mode is on
func TestAllCategoriesLog(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	if err := Initialize(dir, Config{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	for _, cat := range AllCategories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		Get(cat).Info("Test info message for %s", cat)
		Get(cat).Debug("Test debug message for %s", cat)
	}

	Session("Convenience session log")
	Scheduler("Convenience scheduler log")
	ScoringError("Convenience scoring error")
	NarrativeError("Convenience narrative error")
	CloseAll()

	for _, cat := range AllCategories {
		content := readLog(t, dir, cat)
		if !strings.Contains(content, "Test info message for "+string(cat)) {
			t.Errorf("Log file for %s missing info entry: %q", cat, content)
		}
	}
	if !strings.Contains(readLog(t, dir, CategoryScoring), "[ERROR] Convenience scoring error") {
		t.Error("Expected scoring error entry")
	}
}

// TestDebugModeDisabled tests that no logs are created when debug mode is off
func TestDebugModeDisabled(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	if err := Initialize(dir, Config{DebugMode: false, Level: "debug"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	for _, cat := range AllCategories {
		if IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be disabled when debug mode is off", cat)
		}
	}

	Boot("This should NOT be logged")
	Get(CategoryScoring).Error("This should NOT be logged")
	CloseAll()

	if _, err := os.Stat(filepath.Join(dir, "logs")); !os.IsNotExist(err) {
		t.Errorf("Logs directory should not exist in production mode, stat err = %v", err)
	}
}

func TestCategoryFilter(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	cfg := Config{
		DebugMode:  true,
		Categories: map[string]bool{"scoring": false},
	}
	if err := Initialize(dir, cfg); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsCategoryEnabled(CategoryScoring) {
		t.Error("scoring should be disabled by filter")
	}
	if !IsCategoryEnabled(CategoryNarrative) {
		t.Error("unlisted categories default to enabled")
	}
}

func TestLevelFiltering(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	if err := Initialize(dir, Config{DebugMode: true, Level: "warn"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	l := Get(CategoryScheduler)
	l.Debug("hidden debug")
	l.Info("hidden info")
	l.Warn("visible warn")
	CloseAll()

	content := readLog(t, dir, CategoryScheduler)
	if strings.Contains(content, "hidden") {
		t.Errorf("Expected debug/info to be filtered, got %q", content)
	}
	if !strings.Contains(content, "[WARN] visible warn") {
		t.Errorf("Expected warn entry, got %q", content)
	}
}

func TestJSONFormat(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	if err := Initialize(dir, Config{DebugMode: true, Level: "info", JSONFormat: true}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	WithRequestID(CategorySession, "sess-1").WithField("seq", 3).Info("result applied")
	CloseAll()

	content := readLog(t, dir, CategorySession)
	line := content[strings.Index(content, "{"):]
	line = strings.TrimSpace(line)

	var entry StructuredLogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log line %q: %v", line, err)
	}
	if entry.RequestID != "sess-1" || entry.Message != "result applied" || entry.Level != "info" {
		t.Errorf("Unexpected entry: %+v", entry)
	}
	if entry.Fields["seq"] != float64(3) {
		t.Errorf("Expected seq field 3, got %v", entry.Fields["seq"])
	}
}

func TestRequestLoggerWithFieldDoesNotMutateParent(t *testing.T) {
	parent := WithRequestID(CategorySession, "sess-2")
	child := parent.WithField("field", "bmi")

	if len(parent.fields) != 0 {
		t.Errorf("parent fields mutated: %v", parent.fields)
	}
	if child.fields["field"] != "bmi" {
		t.Errorf("child missing field: %v", child.fields)
	}
}

func TestTimerStopWithThreshold(t *testing.T) {
	resetLogging(t)
	timer := StartTimer(CategoryScoring, "simulate")
	time.Sleep(2 * time.Millisecond)
	if d := timer.StopWithThreshold(time.Hour); d <= 0 {
		t.Errorf("Expected positive duration, got %v", d)
	}
}

func TestInitializeRequiresDir(t *testing.T) {
	resetLogging(t)
	if err := Initialize("", Config{}); err == nil {
		t.Error("Expected error for empty state dir")
	}
}
