package main

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"twinsim/internal/clinical"
)

func TestBaselineWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "patient.yaml", baselineYAML)
	writeFile(t, dir, "other.yaml", baselineYAML)

	reloaded := make(chan clinical.Baseline, 4)
	errs := make(chan error, 4)
	w, err := NewBaselineWatcher(path, 20*time.Millisecond,
		func(b clinical.Baseline) { reloaded <- b },
		func(err error) { errs <- err })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// unrelated files in the same directory are ignored
	writeFile(t, dir, "other.yaml", strings.Replace(baselineYAML, "bmi: 29", "bmi: 40", 1))
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(baselineYAML, "bmi: 29", "bmi: 31.5", 1)), 0644))

	select {
	case b := <-reloaded:
		require.Equal(t, 31.5, b.BMI)
	case err := <-errs:
		t.Fatalf("unexpected reload error: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("baseline was not reloaded")
	}
}

func TestBaselineWatcher_InvalidFileReportsError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "patient.yaml", baselineYAML)

	errs := make(chan error, 4)
	w, err := NewBaselineWatcher(path, 20*time.Millisecond,
		func(clinical.Baseline) { t.Error("invalid baseline must not be applied") },
		func(err error) { errs <- err })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("gender: Female\nage: 500\n"), 0644))

	select {
	case err := <-errs:
		require.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("expected a reload error")
	}
}
