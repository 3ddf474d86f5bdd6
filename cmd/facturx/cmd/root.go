package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/facturx/internal/config"
	"github.com/rezonia/facturx/internal/logger"
)

var (
	version = "1.0.0"

	// Global flags
	verbose      bool
	outputFormat string

	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "facturx",
	Short: "Generate, ingest and serve Factur-X hybrid invoices",
	Long: `facturx produces and reads Factur-X invoices: PDF/A-3 documents carrying
their own machine-readable CII XML.

Examples:
  # Start the HTTP service
  facturx serve

  # Render a draft into a Factur-X PDF
  facturx generate draft.json -o invoice.pdf --xml invoice.xml

  # Print the XML embedded in a PDF
  facturx extract invoice.pdf

  # Check the structure of several files
  facturx validate invoices/*.pdf -f table`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the selected command and closes the log output whether or not it failed
func Execute() error {
	defer closeLog()
	return rootCmd.Execute()
}

func closeLog() {
	if logCloser != nil {
		_ = logCloser.Close()
		logCloser = nil
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, table)")
}

// setup loads the configuration and installs the logger before any command runs
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output}
	if verbose {
		logCfg.Level = "debug"
	}
	// stdout carries command output everywhere but serve
	if cmd.Name() != "serve" && (logCfg.Output == "" || logCfg.Output == "stdout") {
		logCfg.Output = "stderr"
	}
	if _, logCloser, err = logger.Setup(logCfg); err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	return nil
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
