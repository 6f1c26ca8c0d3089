package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"twinsim/internal/clinical"
	"twinsim/internal/session"
	"twinsim/internal/simulation"
)

var (
	simBaselines []string
	simSets      []string
	simNarrate   bool
	simCheck     bool
	simJSON      bool
)

// simulateCmd runs one scenario per baseline file and prints the projection
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Project the risk change for one or more baselines",
	Long: `Applies the given deltas to each baseline, scores the scenario and prints
the projected risk. Several --baseline files are simulated concurrently.

Example:
  twin simulate --baseline patient.yaml --set bmi=-3 --set glucose=-20 --narrate`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringSliceVarP(&simBaselines, "baseline", "b", nil, "Baseline profile (YAML or JSON); repeatable")
	simulateCmd.Flags().StringArrayVarP(&simSets, "set", "s", nil, "Delta as field=value, e.g. bmi=-3; repeatable")
	simulateCmd.Flags().BoolVar(&simNarrate, "narrate", false, "Also generate an explanation")
	simulateCmd.Flags().BoolVar(&simCheck, "check", false, "Check the scoring service health first")
	simulateCmd.Flags().BoolVar(&simJSON, "json", false, "Print results as JSON")
	simulateCmd.MarkFlagRequired("baseline")
}

// assignment is one parsed --set flag.
type assignment struct {
	Field clinical.Field
	Value float64
}

var fieldAliases = map[string]clinical.Field{
	"bmi":     clinical.FieldBMI,
	"hba1c":   clinical.FieldHbA1c,
	"glucose": clinical.FieldGlucose,
}

func parseField(name string) (clinical.Field, error) {
	if f, ok := fieldAliases[strings.ToLower(name)]; ok {
		return f, nil
	}
	return clinical.ParseField(name)
}

func parseSets(sets []string) ([]assignment, error) {
	out := make([]assignment, 0, len(sets))
	for _, s := range sets {
		name, raw, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q: want field=value", s)
		}
		f, err := parseField(strings.TrimSpace(name))
		if err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", s, err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", s, err)
		}
		out = append(out, assignment{Field: f, Value: v})
	}
	return out, nil
}

// outcome is the result of simulating one baseline file.
type outcome struct {
	Path         string             `json:"baseline"`
	SessionID    string             `json:"session_id"`
	Targets      clinical.Values    `json:"targets"`
	Deltas       map[string]float64 `json:"deltas"`
	OriginalRisk float64            `json:"original_risk"`
	NewRisk      float64            `json:"new_risk"`
	Reduction    float64            `json:"risk_reduction"`
	Narrative    string             `json:"narrative,omitempty"`
	NarrativeErr string             `json:"narrative_error,omitempty"`
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	assigns, err := parseSets(simSets)
	if err != nil {
		return err
	}
	bounds, err := cfg.BoundsTable()
	if err != nil {
		return fmt.Errorf("simulation bounds: %w", err)
	}
	sc, nc, err := clients(ctx)
	if err != nil {
		return err
	}
	if simCheck {
		if err := sc.Health(ctx); err != nil {
			return fmt.Errorf("scoring service at %s is not healthy: %w", cfg.Scoring.BaseURL, err)
		}
		logger.Debug("Scoring service healthy", zap.String("url", cfg.Scoring.BaseURL))
	}

	results := make([]outcome, len(simBaselines))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range simBaselines {
		g.Go(func() error {
			out, err := simulateOne(gctx, path, session.Options{
				Bounds:    bounds,
				Debounce:  cfg.GetDebounce(),
				Scoring:   sc,
				Narrative: nc,
			}, assigns, simNarrate)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if simJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for i, out := range results {
		if i > 0 {
			fmt.Fprintln(cmd.OutOrStdout())
		}
		printOutcome(cmd.OutOrStdout(), out)
	}
	return nil
}

func simulateOne(ctx context.Context, path string, opts session.Options, assigns []assignment, narrate bool) (outcome, error) {
	b, err := clinical.LoadBaseline(path)
	if err != nil {
		return outcome{}, err
	}
	sess, err := session.New(b, opts)
	if err != nil {
		return outcome{}, err
	}
	defer sess.Close()

	log := logger.With(zap.String("baseline", path), zap.String("session", sess.ID()))
	for _, a := range assigns {
		applied, _ := sess.SetDelta(a.Field, a.Value)
		if applied != a.Value {
			log.Warn("Delta clamped to field bounds",
				zap.String("field", string(a.Field)),
				zap.Float64("requested", a.Value),
				zap.Float64("applied", applied))
		}
	}
	if sess.View().Deltas.IsZero() {
		return outcome{}, errors.New("nothing to simulate: all deltas are zero (use --set field=value)")
	}

	sess.Flush()
	res, err := sess.AwaitResult(ctx)
	if err != nil {
		return outcome{}, fmt.Errorf("simulation failed: %w", err)
	}
	log.Info("Simulation resolved",
		zap.Uint64("seq", res.Seq),
		zap.Float64("original_risk", res.OriginalRisk),
		zap.Float64("new_risk", res.NewRisk))

	out := newOutcome(path, sess.ID(), res)
	if narrate {
		text, err := narrateResult(ctx, sess)
		if err != nil {
			// The projection is still valid without its explanation.
			log.Warn("Narrative failed", zap.Error(err))
			out.NarrativeErr = err.Error()
		}
		out.Narrative = text
	}
	return out, nil
}

func narrateResult(ctx context.Context, sess *session.Session) (string, error) {
	if err := sess.RequestNarrative(ctx); err != nil {
		return "", err
	}
	report, err := sess.AwaitNarrative(ctx)
	if err != nil {
		return "", err
	}
	return report.Text, nil
}

func newOutcome(path, id string, res simulation.Result) outcome {
	out := outcome{
		Path:         path,
		SessionID:    id,
		Targets:      res.Values,
		Deltas:       make(map[string]float64),
		OriginalRisk: res.OriginalRisk,
		NewRisk:      res.NewRisk,
		Reduction:    res.RiskReduction,
	}
	for _, f := range clinical.Fields {
		if d := res.Deltas.Get(f); d != 0 {
			out.Deltas[string(f)] = d
		}
	}
	return out
}

func printOutcome(w io.Writer, out outcome) {
	fmt.Fprintf(w, "Baseline: %s\n", out.Path)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tDELTA\tTARGET")
	for _, f := range clinical.Fields {
		d, ok := out.Deltas[string(f)]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%+g\t%g\n", f, d, out.Targets[f])
	}
	tw.Flush()

	fmt.Fprintf(w, "Original risk:  %5.1f%% (%s)\n", out.OriginalRisk*100, clinical.LevelFor(out.OriginalRisk))
	fmt.Fprintf(w, "Projected risk: %5.1f%% (%s)\n", out.NewRisk*100, clinical.LevelFor(out.NewRisk))
	fmt.Fprintf(w, "Reduction:      %+.1f points\n", out.Reduction*100)
	if out.Narrative != "" {
		fmt.Fprintf(w, "\n%s\n", out.Narrative)
	}
	if out.NarrativeErr != "" {
		fmt.Fprintf(w, "\nNarrative unavailable: %s\n", out.NarrativeErr)
	}
}
