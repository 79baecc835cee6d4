package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chrissnell/launchplanner/pkg/config"
)

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML configuration file (required)")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file (required)")
		force      = flag.Bool("force", false, "Overwrite existing SQLite database")
		dryRun     = flag.Bool("dry-run", false, "Show what would be done without executing")
	)
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <config.yaml> -sqlite <config.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := convert(os.Stdout, *yamlFile, *sqliteFile, *force, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func convert(w io.Writer, yamlFile, sqliteFile string, force, dryRun bool) error {
	if _, err := os.Stat(yamlFile); os.IsNotExist(err) {
		return fmt.Errorf("YAML file does not exist: %s", yamlFile)
	}
	if _, err := os.Stat(sqliteFile); err == nil && !force {
		return fmt.Errorf("SQLite file already exists: %s (use -force to overwrite or choose a different filename)", sqliteFile)
	}

	fmt.Fprintf(w, "Converting YAML configuration to SQLite...\n")
	fmt.Fprintf(w, "  Source: %s\n", yamlFile)
	fmt.Fprintf(w, "  Target: %s\n", sqliteFile)

	yamlProvider := config.NewYAMLProvider(yamlFile)
	configData, err := yamlProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading YAML configuration: %w", err)
	}
	fmt.Fprintf(w, "  Loaded %d controllers\n", len(configData.Controllers))

	if dryRun {
		printConfigSummary(w, configData)
		fmt.Fprintln(w, "DRY RUN complete - no database created")
		return nil
	}

	if force {
		if err := os.Remove(sqliteFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("error removing existing SQLite file: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(sqliteFile), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	sqliteProvider, err := config.NewSQLiteProvider(sqliteFile)
	if err != nil {
		return fmt.Errorf("failed to create SQLite provider: %w", err)
	}
	defer sqliteProvider.Close()

	if err := sqliteProvider.SaveConfig(configData); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(w, "Conversion completed successfully!\n")
	fmt.Fprintf(w, "You can now use the SQLite backend with: -config-backend sqlite -config %s\n", sqliteFile)
	return nil
}

func printConfigSummary(w io.Writer, c *config.ConfigData) {
	fmt.Fprintln(w, "\nConfiguration Summary:")
	fmt.Fprintf(w, "Cache backend:   %s (ttl %s)\n", c.Cache.Backend, c.Cache.TTL)
	fmt.Fprintf(w, "Pricing backend: %s\n", c.Pricing.Backend)
	fmt.Fprintf(w, "Country:         %s (strict: %v)\n", c.Connectors.Country, c.Connectors.Strict)
	if c.Keys.EnvFile != "" {
		fmt.Fprintf(w, "Key file:        %s\n", c.Keys.EnvFile)
	}

	fmt.Fprintf(w, "\nControllers (%d):\n", len(c.Controllers))
	for _, controller := range c.Controllers {
		fmt.Fprintf(w, "  - %s\n", controller.Type)
	}
}
