package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gobeyondidentity/census-sync/internal/config"
	"github.com/gobeyondidentity/census-sync/internal/credentials"
	"github.com/gobeyondidentity/census-sync/internal/logger"
	"github.com/gobeyondidentity/census-sync/internal/server"
	"github.com/gobeyondidentity/census-sync/internal/setup"
	"github.com/gobeyondidentity/census-sync/internal/sync"
	"github.com/gobeyondidentity/census-sync/internal/wizard"
)

// keyringPasswordEnv unlocks the file keyring backend when no system keyring exists
const keyringPasswordEnv = "CENSUS_SYNC_KEYRING_PASSWORD"

var (
	cfgFile string
	cfg     *config.Config
)

// Command flags
var (
	syncID               int64
	runID                int64
	waitForRun           bool
	forceFullSync        bool
	maxWaitSeconds       int
	pollFrequencySeconds int
	maxPollAttempts      int
	credentialsName      string
	apiKeyFile           string
	credentialsBaseURL   string
	docsOutputDir        string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "census-sync",
	Short: "Trigger and monitor Census sync runs",
	Long: `A tool for triggering Census syncs and waiting for their runs to finish
using the Census REST API.

This application supports two modes:
- One-shot mode: Trigger syncs, wait for runs, or inspect them and exit
- Server mode: Run continuously with scheduled sync runs and an HTTP API`,
	SilenceUsage: true,
}

// triggerCmd represents the trigger command
var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Trigger a sync run",
	Long: `Trigger a run of a Census sync and print the new sync run id.
With --wait the command polls the run until it completes, fails or is cancelled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrigger(cmd)
	},
}

// waitCmd represents the wait command
var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for a sync run to finish",
	Long:  `Poll an existing sync run until it reaches a terminal status or the wait limits are exceeded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWait(cmd)
	},
}

// runInfoCmd represents the run-info command
var runInfoCmd = &cobra.Command{
	Use:   "run-info",
	Short: "Show the details of a sync run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRunInfo()
	},
}

// syncInfoCmd represents the sync-info command
var syncInfoCmd = &cobra.Command{
	Use:   "sync-info",
	Short: "Show the details of a sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSyncInfo()
	},
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every configured sync once",
	Long: `Trigger a run of every sync listed under sync.sync_ids and wait for all of them
to finish. Exits non-zero if any run failed, was cancelled or timed out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync()
	},
}

// validateConfigCmd represents the validate-config command
var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file for syntax and required fields.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateConfig()
	},
}

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run in server mode with HTTP API and optional scheduling",
	Long: `Run the application in server mode. This provides an HTTP API for triggering sync runs,
waiting for them, health checks, and metrics. If scheduling is enabled in configuration, every
configured sync runs according to the specified cron schedule.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

// credentialsCmd represents the credentials command
var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage Census API keys stored in the system keyring",
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a Census API key under a name",
	Long: `Store a Census API key in the system keyring. The key is read from --api-key-file,
or from the CENSUS_API_KEY environment variable. Reference it with census.credentials_name.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCredentialsSet()
	},
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a stored Census API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCredentialsDelete()
	},
}

var credentialsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show stored credentials with the API key redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCredentialsShow()
	},
}

// setupCmd represents the setup command
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup and configuration wizard",
	Long:  `Interactive setup wizard to help configure census-sync for first-time use.`,
}

// setupWizardCmd represents the setup wizard subcommand
var setupWizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Run interactive configuration wizard",
	Long:  `Run an interactive wizard to create configuration file with guided prompts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetupWizard()
	},
}

// setupValidateCmd represents the setup validate subcommand
var setupValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current setup and connectivity",
	Long:  `Validate the configuration file and credentials, and test connectivity to the Census API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetupValidation()
	},
}

// setupDocsCmd represents the setup docs subcommand
var setupDocsCmd = &cobra.Command{
	Use:   "docs [output-dir]",
	Short: "Generate setup and API documentation",
	Long:  `Generate documentation including setup guide, API reference, and troubleshooting.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			docsOutputDir = args[0]
		}
		return runDocsGeneration()
	},
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print version information for census-sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("census-sync version %s\n", server.Version)
		fmt.Println("Built with Go")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	triggerCmd.Flags().Int64Var(&syncID, "sync-id", 0, "id of the sync to trigger")
	triggerCmd.Flags().BoolVar(&waitForRun, "wait", false, "wait for the sync run to finish")
	triggerCmd.Flags().BoolVar(&forceFullSync, "force-full-sync", false, "resync all records instead of only changes")
	addWaitFlags(triggerCmd)
	_ = triggerCmd.MarkFlagRequired("sync-id")

	waitCmd.Flags().Int64Var(&runID, "run-id", 0, "id of the sync run to wait for")
	addWaitFlags(waitCmd)
	_ = waitCmd.MarkFlagRequired("run-id")

	runInfoCmd.Flags().Int64Var(&runID, "run-id", 0, "id of the sync run")
	_ = runInfoCmd.MarkFlagRequired("run-id")

	syncInfoCmd.Flags().Int64Var(&syncID, "sync-id", 0, "id of the sync")
	_ = syncInfoCmd.MarkFlagRequired("sync-id")

	credentialsCmd.PersistentFlags().StringVar(&credentialsName, "name", "default", "name the credentials are stored under")
	credentialsSetCmd.Flags().StringVar(&apiKeyFile, "api-key-file", "", "file containing the Census API key")
	credentialsSetCmd.Flags().StringVar(&credentialsBaseURL, "base-url", "", "Census API base URL to store with the key")
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsDeleteCmd)
	credentialsCmd.AddCommand(credentialsShowCmd)

	// Add setup subcommands
	setupCmd.AddCommand(setupWizardCmd)
	setupCmd.AddCommand(setupValidateCmd)
	setupCmd.AddCommand(setupDocsCmd)

	// Add commands
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(waitCmd)
	rootCmd.AddCommand(runInfoCmd)
	rootCmd.AddCommand(syncInfoCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(credentialsCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(validateConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

func addWaitFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&maxWaitSeconds, "max-wait-seconds", -1, "override sync.max_wait_seconds (0 = no limit)")
	cmd.Flags().IntVar(&pollFrequencySeconds, "poll-frequency-seconds", -1, "override sync.poll_frequency_seconds")
	cmd.Flags().IntVar(&maxPollAttempts, "max-poll-attempts", -1, "override sync.max_poll_attempts (0 = no limit)")
}

// initConfig reads in config file and ENV variables
func initConfig() {
	var err error

	if cfgFile != "" {
		// Use config file from the flag
		cfg, err = config.Load(cfgFile)
	} else {
		// Find config file in standard locations
		cfgFile, err = config.FindConfigFile()
		if err != nil {
			// Commands that need a config report it themselves
			return
		}
		cfg, err = config.Load(cfgFile)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}

// requireConfig returns the validated configuration
func requireConfig() (*config.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded - run 'setup wizard' or pass --config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// openStore opens the credentials keyring, or returns nil when none is available
func openStore(log *logrus.Logger) credentials.Store {
	store, err := credentials.OpenKeyringStore(keyringDir(), os.Getenv(keyringPasswordEnv))
	if err != nil {
		if log != nil {
			log.Debugf("Credentials keyring unavailable: %v", err)
		}
		return nil
	}
	return store
}

func keyringDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".census-sync", "credentials")
	}
	return filepath.Join(home, ".config", "census-sync", "credentials")
}

// newEngine builds the sync engine from the loaded configuration
func newEngine(log *logrus.Logger) (*sync.Engine, error) {
	var store credentials.Store
	if cfg.Census.APIKey == "" {
		store = openStore(log)
	}

	client, err := credentials.ClientFromConfig(cfg, store)
	if err != nil {
		return nil, fmt.Errorf("failed to create Census client: %w", err)
	}

	return sync.NewEngine(client, cfg, log), nil
}

// signalContext is cancelled on SIGINT or SIGTERM so polling stops promptly
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func waitOptions(cmd *cobra.Command, engine *sync.Engine) sync.WaitOptions {
	opts := engine.DefaultWaitOptions()
	if cmd.Flags().Changed("max-wait-seconds") && maxWaitSeconds >= 0 {
		opts.MaxWait = time.Duration(maxWaitSeconds) * time.Second
	}
	if cmd.Flags().Changed("poll-frequency-seconds") && pollFrequencySeconds > 0 {
		opts.PollInterval = time.Duration(pollFrequencySeconds) * time.Second
	}
	if cmd.Flags().Changed("max-poll-attempts") && maxPollAttempts >= 0 {
		opts.MaxAttempts = maxPollAttempts
	}
	return opts
}

// runTrigger triggers a single sync, optionally waiting for the run
func runTrigger(cmd *cobra.Command) error {
	if _, err := requireConfig(); err != nil {
		return err
	}

	log := logger.Setup(cfg.App.LogLevel, cfg.App.TestMode)
	logger.LogProcessStart(log, []int64{syncID}, cfg.App.LogLevel)

	engine, err := newEngine(log)
	if err != nil {
		log.Error(err)
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if !waitForRun {
		newRunID, err := engine.TriggerSync(ctx, syncID, forceFullSync)
		if err != nil {
			log.Error(err)
			return err
		}
		fmt.Println(newRunID)
		return nil
	}

	result, err := engine.TriggerAndWait(ctx, syncID, sync.TriggerOptions{
		ForceFullSync: forceFullSync,
		Wait:          waitOptions(cmd, engine),
	})
	if err != nil {
		log.Error(err)
		return err
	}

	if result.DryRun {
		return nil
	}
	return printJSON(result.Run)
}

// runWait waits for an existing sync run
func runWait(cmd *cobra.Command) error {
	if _, err := requireConfig(); err != nil {
		return err
	}

	log := logger.Setup(cfg.App.LogLevel, cfg.App.TestMode)

	engine, err := newEngine(log)
	if err != nil {
		log.Error(err)
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	log.Infof("Waiting for Census sync run with ID %d", runID)
	run, err := engine.WaitForCompletion(ctx, runID, waitOptions(cmd, engine))
	if err != nil {
		log.Error(err)
		if run != nil {
			_ = printJSON(run)
		}
		return err
	}

	return printJSON(run)
}

// runRunInfo prints the details of a sync run
func runRunInfo() error {
	if _, err := requireConfig(); err != nil {
		return err
	}

	log := logger.Setup(cfg.App.LogLevel, cfg.App.TestMode)

	engine, err := newEngine(log)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	run, err := engine.GetSyncRunInfo(ctx, runID)
	if err != nil {
		return err
	}
	return printJSON(run)
}

// runSyncInfo prints the details of a sync
func runSyncInfo() error {
	if _, err := requireConfig(); err != nil {
		return err
	}

	log := logger.Setup(cfg.App.LogLevel, cfg.App.TestMode)

	engine, err := newEngine(log)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	info, err := engine.GetSyncInfo(ctx, syncID)
	if err != nil {
		return err
	}
	return printJSON(info)
}

// runSync triggers every configured sync and waits for the runs
func runSync() error {
	if _, err := requireConfig(); err != nil {
		return err
	}

	log := logger.Setup(cfg.App.LogLevel, cfg.App.TestMode)

	logger.LogProcessStart(log, cfg.Sync.SyncIDs, cfg.App.LogLevel)
	log.Info("Starting main sync process")

	engine, err := newEngine(log)
	if err != nil {
		log.Error(err)
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := engine.Sync(ctx)
	if err != nil {
		log.Errorf("Sync process failed: %v", err)
		return err
	}

	if len(result.Errors) > 0 {
		log.Warnf("Sync completed with %d errors", len(result.Errors))
		return result.Err()
	}

	log.Info("Sync process completed successfully")
	return nil
}

// validateConfig validates the configuration file
func validateConfig() error {
	if cfg == nil {
		if cfgFile == "" {
			return fmt.Errorf("no config file found")
		}
		return fmt.Errorf("failed to load config %s", cfgFile)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed:\n%v\n", err)
		return err
	}

	fmt.Printf("✅ Configuration file '%s' is valid\n", cfgFile)
	fmt.Printf("   - Census API: %s\n", cfg.Census.BaseURL)
	if cfg.Census.CredentialsName != "" && cfg.Census.APIKey == "" {
		fmt.Printf("   - Credentials: keyring entry '%s'\n", cfg.Census.CredentialsName)
	}
	fmt.Printf("   - Syncs to run: %d\n", len(cfg.Sync.SyncIDs))
	fmt.Printf("   - Max wait: %ds, poll every %ds\n", cfg.Sync.MaxWaitSeconds, cfg.Sync.PollFrequencySeconds)
	fmt.Printf("   - Test mode: %t\n", cfg.App.TestMode)
	fmt.Printf("   - Log level: %s\n", cfg.App.LogLevel)

	return nil
}

// runServer executes server mode
func runServer() error {
	if _, err := requireConfig(); err != nil {
		return err
	}

	log := logger.Setup(cfg.App.LogLevel, cfg.App.TestMode)

	log.Infof("Starting Census sync server on port %d", cfg.Server.Port)
	if cfg.Server.ScheduleEnabled {
		log.Infof("Scheduling enabled with cron: %s", cfg.Server.Schedule)
	} else {
		log.Info("Scheduling disabled - manual sync only")
	}

	engine, err := newEngine(log)
	if err != nil {
		log.Errorf("Failed to create server: %v", err)
		return err
	}

	srv := server.NewServer(cfg, engine, log)
	return srv.Start()
}

// runCredentialsSet stores an API key in the keyring
func runCredentialsSet() error {
	var apiKey string
	if apiKeyFile != "" {
		key, err := wizard.ReadAPIKeyFile(apiKeyFile)
		if err != nil {
			return err
		}
		apiKey = key
	} else {
		apiKey = os.Getenv("CENSUS_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("no API key given: use --api-key-file or set CENSUS_API_KEY")
	}

	store, err := credentials.OpenKeyringStore(keyringDir(), os.Getenv(keyringPasswordEnv))
	if err != nil {
		return err
	}

	creds := credentials.New(apiKey)
	creds.BaseURL = credentialsBaseURL
	if err := store.Save(credentialsName, creds); err != nil {
		return err
	}

	fmt.Printf("✅ Credentials stored as '%s'\n", credentialsName)
	fmt.Printf("   Set census.credentials_name: \"%s\" in config.yaml to use them\n", credentialsName)
	return nil
}

// runCredentialsDelete removes an API key from the keyring
func runCredentialsDelete() error {
	store, err := credentials.OpenKeyringStore(keyringDir(), os.Getenv(keyringPasswordEnv))
	if err != nil {
		return err
	}

	if err := store.Delete(credentialsName); err != nil {
		return err
	}

	fmt.Printf("✅ Credentials '%s' deleted\n", credentialsName)
	return nil
}

// runCredentialsShow prints stored credentials without revealing the key
func runCredentialsShow() error {
	store, err := credentials.OpenKeyringStore(keyringDir(), os.Getenv(keyringPasswordEnv))
	if err != nil {
		return err
	}

	creds, err := store.Load(credentialsName)
	if errors.Is(err, credentials.ErrNotFound) {
		return fmt.Errorf("no credentials stored as '%s'", credentialsName)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Name:     %s\n", credentialsName)
	fmt.Printf("API key:  %s\n", creds.APIKey)
	if creds.BaseURL != "" {
		fmt.Printf("Base URL: %s\n", creds.BaseURL)
	}
	return nil
}

// runSetupWizard executes the interactive configuration wizard
func runSetupWizard() error {
	w := wizard.NewWizard(openStore(nil))
	return w.Run()
}

// runSetupValidation executes setup validation
func runSetupValidation() error {
	if cfg == nil {
		return fmt.Errorf("no config file found - run 'setup wizard' first")
	}

	var store credentials.Store
	if cfg.Census.APIKey == "" {
		store = openStore(nil)
	}

	ctx, cancel := signalContext()
	defer cancel()

	validator := setup.NewValidator(cfg, store)
	summary, err := validator.ValidateSetup(ctx)
	if err != nil {
		return err
	}

	// Exit with error code if validation failed
	if summary.OverallStatus != "PASS" {
		os.Exit(1)
	}

	return nil
}

// runDocsGeneration generates documentation
func runDocsGeneration() error {
	outputDir := docsOutputDir
	if outputDir == "" {
		outputDir = "./docs"
	}

	fmt.Printf("Generating documentation in %s...\n", outputDir)
	return setup.GenerateDocumentation(outputDir)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
