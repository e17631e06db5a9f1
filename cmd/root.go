package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/gradecast/internal/config"
	"github.com/KaramelBytes/gradecast/internal/forecast"
	"github.com/KaramelBytes/gradecast/internal/logging"
)

var (
	// Global flags
	cfgFile       string
	debug         bool
	flagLogFormat string

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "gradecast",
	Short: "gradecast: clean student tables and forecast grades",
	Long: `gradecast loads student performance tables (CSV or Excel), cleans missing values,
and forecasts each student's final score with bagged decision trees. Students are
sorted into risk groups with recommendations, from the terminal or over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("✗ Error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.gradecast/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: text|json (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: fall back to defaults
		warnf("failed to load config: %v", err)
		return
	}
	cfg = c
}

// settings returns the loaded config, loading it on first use.
func settings() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}

func newLogger(c *cfgpkg.Global) *slog.Logger {
	level, format := c.LogLevel, c.LogFormat
	if debug {
		level = "debug"
	}
	if flagLogFormat != "" {
		format = flagLogFormat
	}
	return logging.New(logging.Options{Level: level, Format: format})
}

func newPipeline(c *cfgpkg.Global, logger *slog.Logger) *forecast.Pipeline {
	return forecast.New(forecast.Config{
		Seed:          c.Seed,
		Estimators:    c.Estimators,
		TestRatio:     c.TestRatio,
		Workers:       c.Workers,
		HistogramBins: c.HistogramBins,
	}, logger)
}

func okf(format string, args ...any) {
	fmt.Printf("%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", color.YellowString("⚠ Warning:"), fmt.Sprintf(format, args...))
}
