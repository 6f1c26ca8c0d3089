package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"twinsim/internal/config"
	"twinsim/internal/logging"
	"twinsim/internal/narrative"
	"twinsim/internal/scoring"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "twin",
	Short: "twin - diabetes risk what-if simulator",
	Long: `twin projects how a patient's type 2 diabetes risk would change if
BMI, HbA1c or fasting glucose were lowered.

Edits are debounced and only the freshest scoring response is shown. An
explanation of the projected change can be requested on demand.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}
		if err := logging.Initialize(cfg.StateDir, cfg.Logging.ToLogging()); err != nil {
			return fmt.Errorf("failed to initialize file logging: %w", err)
		}

		// The dashboard owns the terminal.
		if cmd.Name() == "dashboard" {
			logger = zap.NewNop()
			return nil
		}

		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(fieldsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// clients builds the scoring and narrative clients from the loaded config.
func clients(ctx context.Context) (*scoring.HTTPClient, narrative.Client, error) {
	sc := scoring.NewHTTPClient(scoring.HTTPConfig{
		BaseURL: cfg.Scoring.BaseURL,
		Timeout: cfg.Scoring.GetTimeout(),
	})
	nc, err := narrative.NewClient(ctx, cfg.Narrative)
	if err != nil {
		return nil, nil, fmt.Errorf("narrative client: %w", err)
	}
	return sc, nc, nil
}
