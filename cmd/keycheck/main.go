// keycheck inspects and verifies the vendor API keys launchplanner uses.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chrissnell/launchplanner/internal/connectors"
	"github.com/chrissnell/launchplanner/internal/diagnostics"
	"github.com/chrissnell/launchplanner/internal/keys"
	"github.com/chrissnell/launchplanner/internal/log"
	"github.com/chrissnell/launchplanner/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile    string
	cfgBackend string
	debug      bool
	timeout    time.Duration
	jsonOutput bool
	noColor    bool

	logger *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "keycheck",
	Short: "Inspect and test launchplanner API keys",
	Long: `keycheck loads API keys the same way the launchplanner server does
(process environment, then the .env file, then the JSON key file) and
reports which services are configured, whether each key still works,
and how to obtain keys that are missing.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := log.Init(debug); err != nil {
			return err
		}
		logger = log.GetSugaredLogger()
		if !debug {
			logger = log.Nop()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

// listCmd prints the configured keys of every service
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured API keys by service",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

// testCmd probes keys against the vendor APIs
var testCmd = &cobra.Command{
	Use:   "test [service]",
	Short: "Test API keys with a live request",
	Long: `Makes one cheap authenticated request per configured key and reports
the outcome. With no argument every service is tested.

Examples:
  keycheck test
  keycheck test serpapi`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTest,
}

// guideCmd explains how to get a key
var guideCmd = &cobra.Command{
	Use:   "guide [service]",
	Short: "Show how to obtain API keys",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGuide,
}

// envTemplateCmd writes a .env skeleton
var envTemplateCmd = &cobra.Command{
	Use:   "env-template",
	Short: "Print a .env template listing every key variable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprint(cmd.OutOrStdout(), diagnostics.EnvTemplate())
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration source (optional; keys are read from the environment and .env without it)")
	rootCmd.PersistentFlags().StringVar(&cfgBackend, "config-backend", "yaml", "Configuration backend type: 'yaml' or 'sqlite'")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Turn on debugging output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Write JSON instead of a table")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	testCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall time limit for the key tests")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(guideCmd)
	rootCmd.AddCommand(envTemplateCmd)
}

// loadConfig reads the configuration when one was given, otherwise it
// returns the defaults
func loadConfig() (*config.ConfigData, error) {
	if cfgFile == "" {
		cfg := &config.ConfigData{}
		cfg.ApplyDefaults()
		return cfg, nil
	}

	filename, _ := filepath.Abs(cfgFile)
	provider, err := config.OpenProvider(filename, cfgBackend)
	if err != nil {
		return nil, err
	}
	defer provider.Close()

	return provider.LoadConfig()
}

// newProber builds the key manager and a prober over live connectors.
// Responses are never cached so every test reaches the vendor.
func newProber(cfg *config.ConfigData) (*keys.Manager, *diagnostics.Prober, error) {
	km, err := keys.NewManagerFromConfig(cfg.Keys, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("could not load API keys: %w", err)
	}
	client := connectors.NewClient(cfg.Connectors, km, logger)
	return km, diagnostics.NewProber(connectors.NewSet(client), km, logger), nil
}

func parseService(name string) (keys.Service, error) {
	svc, ok := keys.ParseService(name)
	if !ok {
		return "", fmt.Errorf("unknown service %q (known: %v)", name, keys.AllServices())
	}
	return svc, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
