package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"dossiersync/pkg/auth"
	"dossiersync/pkg/config"
	"dossiersync/pkg/engine"
	"dossiersync/pkg/logger"
	"dossiersync/pkg/progress"
	"dossiersync/pkg/provider"
	"dossiersync/pkg/store"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile   string
	logLevel     string
	progressFile string
	mongoURI     string
	apiURL       string
	profileName  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dossiersync",
	Short: "Resumable batch puller for the dossier provider API",
	Long: `dossiersync pulls the full dossier dataset from the provider's
paginated REST API into MongoDB, in bounded sessions that resume exactly
where the previous one stopped.

Progress is committed to a local snapshot file after every page, so an
interrupted run never refetches completed pages and never skips records.
Records are written idempotently, keyed by the provider's ID field.

Credentials are resolved in order from:
  - Stored profiles (use 'dossiersync auth login' to store)
  - Environment variables (DOSSIERSYNC_API_USERNAME / DOSSIERSYNC_API_PASSWORD)
  - Configuration file`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is dossiersync.yaml in the working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&progressFile, "progress-file", "", "path to the progress snapshot file")
	rootCmd.PersistentFlags().StringVar(&mongoURI, "mongo-uri", "", "MongoDB connection URI")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "provider API base URL")
	rootCmd.PersistentFlags().StringVarP(&profileName, "profile", "a", "", "use a specific stored credential profile")

	rootCmd.SetVersionTemplate(`dossiersync {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig merges defaults, config file, environment, and global flags
func loadConfig(extra map[string]interface{}) (*config.Config, error) {
	flags := map[string]interface{}{}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}
	if progressFile != "" {
		flags["progress-file"] = progressFile
	}
	if mongoURI != "" {
		flags["mongo-uri"] = mongoURI
	}
	if apiURL != "" {
		flags["api-url"] = apiURL
	}
	for k, v := range extra {
		flags[k] = v
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// resolveCredentials fills the provider credentials from the credential
// manager when the config and environment carry none.
func resolveCredentials(cfg *config.Config) error {
	if profileName == "" && cfg.Provider.Username != "" && cfg.Provider.Password != "" {
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var creds *auth.Credentials
	if profileName != "" {
		creds, err = manager.Retrieve(profileName)
		if err != nil {
			return fmt.Errorf("profile %q not found, use 'dossiersync auth list' to see stored profiles", profileName)
		}
	} else {
		creds, err = manager.RetrieveDefault()
		if err != nil {
			return fmt.Errorf("no provider credentials found, run 'dossiersync auth login' or set DOSSIERSYNC_API_USERNAME and DOSSIERSYNC_API_PASSWORD")
		}
	}

	cfg.Provider.Username = creds.Username
	cfg.Provider.Password = creds.Password
	logger.GetLogger().WithField("profile", creds.Profile).Info("using stored credentials")
	return nil
}

// buildEngine wires the provider client, document store, and progress
// store into an engine. The caller must Close the returned Mongo handle.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, *store.Mongo, error) {
	if err := resolveCredentials(cfg); err != nil {
		return nil, nil, err
	}

	log := logger.GetLogger()

	client := provider.NewClient(cfg, log)

	docs, err := store.Connect(ctx, &cfg.Mongo, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := docs.EnsureIndexes(ctx); err != nil {
		_ = docs.Close(ctx)
		return nil, nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	prog := progress.NewStore(cfg.Progress.FilePath, log)

	return engine.New(client, docs, prog, cfg, log), docs, nil
}
