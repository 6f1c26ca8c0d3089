package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"twinsim/cmd/twin/ui"
	"twinsim/internal/clinical"
	"twinsim/internal/logging"
	"twinsim/internal/metrics"
	"twinsim/internal/session"
)

var (
	dashBaseline    string
	dashWatch       bool
	dashMetricsAddr string
)

// dashboardCmd launches the interactive what-if dashboard
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive what-if dashboard for one baseline",
	Long: `Opens a terminal dashboard with one slider per simulateable field.
Edits are debounced; the projection updates once the sliders settle.
Press 'a' to generate an explanation of the displayed projection.

With --watch, saving the baseline file starts a fresh session for the new
profile.`,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().StringVarP(&dashBaseline, "baseline", "b", "", "Baseline profile (YAML or JSON)")
	dashboardCmd.Flags().BoolVar(&dashWatch, "watch", false, "Reload the baseline when the file changes")
	dashboardCmd.Flags().StringVar(&dashMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (default from config when enabled)")
	dashboardCmd.MarkFlagRequired("baseline")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := clinical.LoadBaseline(dashBaseline)
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
	opts := session.Options{
		Bounds:    bounds,
		Debounce:  cfg.GetDebounce(),
		Scoring:   sc,
		Narrative: nc,
	}

	sess, err := session.New(b, opts)
	if err != nil {
		return err
	}
	logging.Boot("dashboard started for %s (session %s)", dashBaseline, sess.ID())

	p := tea.NewProgram(ui.New(sess, dashBaseline, ui.DefaultStyles()), tea.WithAltScreen())
	sess.OnChange(ui.Notifier(p))

	slot := &sessionSlot{current: sess}
	defer slot.close()

	addr := dashMetricsAddr
	if addr == "" && cfg.Metrics.Enabled {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		srv := metrics.Serve(addr, func(err error) {
			logging.Get(logging.CategoryBoot).Error("metrics server: %v", err)
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logging.Boot("serving metrics on %s", addr)
	}

	if dashWatch {
		w, err := NewBaselineWatcher(dashBaseline, 300*time.Millisecond, func(nb clinical.Baseline) {
			ns, err := session.New(nb, opts)
			if err != nil {
				logging.Get(logging.CategorySession).Warn("reloaded baseline rejected: %v", err)
				return
			}
			ns.OnChange(ui.Notifier(p))

			old, ok := slot.swap(ns)
			if !ok {
				logging.SessionDebug("dashboard closed, dropping reloaded session %s", ns.ID())
				return
			}
			p.Send(ui.SwapMsg{Engine: ns, Source: dashBaseline})
			old.Close()
			logging.Session("baseline reloaded, session %s replaced by %s", old.ID(), ns.ID())
		}, func(err error) {
			logging.Get(logging.CategorySession).Warn("baseline watch: %v", err)
		})
		if err != nil {
			return fmt.Errorf("failed to watch baseline: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			w.Stop()
			return err
		}
		defer w.Stop()
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// sessionSlot holds the dashboard's live session. Once closed, any session
// swapped in is closed immediately instead of replacing the current one.
type sessionSlot struct {
	mu      sync.Mutex
	current *session.Session
	closed  bool
}

// swap installs ns and returns the session it replaced. After close it
// closes ns itself and reports false.
func (s *sessionSlot) swap(ns *session.Session) (*session.Session, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ns.Close()
		return nil, false
	}
	old := s.current
	s.current = ns
	s.mu.Unlock()
	return old, true
}

func (s *sessionSlot) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.current.Close()
}
