package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"overlayhook/internal/config"
	"overlayhook/internal/logging"
)

var (
	version  = "0.1.0"
	cfgFile  string
	logLevel string
	noTray   bool
)

var rootCmd = &cobra.Command{
	Use:           "overlayhook",
	Short:         "In-process input interception for overlays",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("overlayhook v%s\n", version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := loadConfig()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(mgr.Get())
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := loadConfig()
		if err != nil {
			return err
		}
		if err := mgr.Get().Validate(); err != nil {
			return fmt.Errorf("%s:\n%w", mgr.Path(), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", mgr.Path())
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), mgr.Path())
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Open a test window and intercept its input",
	Long: `probe creates a window in this process, installs every input hook,
attaches to the window and connects to the overlay like an injected
session would. Close the window or press Ctrl+C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := loadConfig()
		if err != nil {
			return err
		}
		closer, err := setupLogging(mgr.Get())
		if err != nil {
			return err
		}
		defer closer.Close()
		defer logging.Sync()

		return runProbe(mgr, !noTray)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is %APPDATA%\\overlayhook\\config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
	probeCmd.Flags().BoolVar(&noTray, "no-tray", false, "do not show the tray icon")

	configCmd.AddCommand(configShowCmd, configValidateCmd, configPathCmd)
	rootCmd.AddCommand(versionCmd, configCmd, probeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newManager() (*config.Manager, error) {
	if cfgFile != "" {
		return config.NewManagerAt(cfgFile), nil
	}
	return config.NewManager()
}

func loadConfig() (*config.Manager, error) {
	mgr, err := newManager()
	if err != nil {
		return nil, err
	}
	if err := mgr.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg := mgr.Get()
		cfg.Logging.Level = logLevel
		mgr.Set(cfg)
	}
	return mgr, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func setupLogging(cfg *config.Config) (io.Closer, error) {
	if cfg.Logging.File == "" {
		logging.Init(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
		return nopCloser{}, nil
	}
	return logging.InitFile(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
}
