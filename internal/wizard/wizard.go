package wizard

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gobeyondidentity/census-sync/internal/census"
	"github.com/gobeyondidentity/census-sync/internal/config"
	"github.com/gobeyondidentity/census-sync/internal/credentials"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorTeal  = "\033[36m"
	colorRed   = "\033[31m"
)

// Census workspace API keys carry this prefix
const apiKeyPrefix = "secret-token:"

// Wizard handles interactive configuration setup
type Wizard struct {
	reader *bufio.Reader
	config *config.Config
	store  credentials.Store
}

// NewWizard creates a new configuration wizard. When store is nil the API
// key can only be written into config.yaml.
func NewWizard(store credentials.Store) *Wizard {
	reader := bufio.NewReaderSize(os.Stdin, 8192)
	return &Wizard{
		reader: reader,
		config: &config.Config{},
		store:  store,
	}
}

// Run starts the interactive configuration wizard
func (w *Wizard) Run() error {
	fmt.Println("Welcome to the Census Sync Configuration Wizard!")
	fmt.Println("This wizard will help you set up triggering and monitoring Census sync runs.")
	fmt.Println()

	if err := w.configureApp(); err != nil {
		return fmt.Errorf("failed to configure app settings: %w", err)
	}

	if err := w.configureCensus(); err != nil {
		return fmt.Errorf("failed to configure Census: %w", err)
	}

	if err := w.configureSync(); err != nil {
		return fmt.Errorf("failed to configure sync settings: %w", err)
	}

	if err := w.configureServer(); err != nil {
		return fmt.Errorf("failed to configure server settings: %w", err)
	}

	// Set defaults and validate (skip API key validation if not set)
	w.config.SetDefaults()
	skipAPIKey := w.config.Census.APIKey == "" && w.config.Census.CredentialsName == ""
	if err := w.config.ValidateWithOptions(config.ValidateOptions{SkipAPIKey: skipAPIKey}); err != nil {
		fmt.Printf("%sConfiguration validation failed: %v%s\n", colorRed, err, colorReset)
		fmt.Println("Please review your settings and try again.")
		fmt.Println()
		fmt.Println("You can:")
		fmt.Println("1. Run the wizard again")
		fmt.Println("2. Edit the generated config.yaml manually")
		fmt.Println("3. Use './census-sync validate-config' to check your configuration")
		return nil // Exit gracefully without showing CLI help
	}

	return w.saveConfiguration()
}

// configureApp configures application-level settings
func (w *Wizard) configureApp() error {
	fmt.Printf("%sApplication Settings%s\n", colorTeal, colorReset)
	fmt.Println("═══════════════════════")

	w.config.App.LogLevel = w.promptWithDefault("Log level (debug, info, warn, error)", "info")

	testMode := w.promptYesNo("Enable test mode? (recommended for first run)", true)
	w.config.App.TestMode = testMode

	if testMode {
		fmt.Println("Test mode enabled - no sync runs will be triggered in Census")
	}

	fmt.Println()
	return nil
}

// configureCensus configures the Census API key and endpoint
func (w *Wizard) configureCensus() error {
	fmt.Printf("%sCensus Configuration%s\n", colorTeal, colorReset)
	fmt.Println("═════════════════════")

	fmt.Println("API Key Setup:")
	fmt.Println("You need a Census workspace API key (Workspace Settings > API Access).")
	fmt.Println()

	apiKey := w.promptAPIKey("Census API key")
	if apiKey == "" {
		fmt.Printf("%sAPI key not set - you'll need to add it to config.yaml manually%s\n", colorRed, colorReset)
	} else {
		w.storeAPIKey(apiKey)
	}

	w.config.Census.BaseURL = w.promptWithDefault("Census API base URL", census.DefaultBaseURL)
	w.config.Census.RequestsPerSecond = w.promptIntWithDefault("Max requests per second (0 = unlimited)", 0)

	fmt.Println()
	return nil
}

// storeAPIKey saves the key in the keyring when possible, otherwise inline in the config
func (w *Wizard) storeAPIKey(apiKey string) {
	if w.store != nil && w.promptYesNo("Store the API key in the system keyring?", true) {
		name := w.promptWithDefault("Credentials name", "default")
		if err := w.store.Save(name, credentials.New(apiKey)); err != nil {
			fmt.Printf("%sFailed to store API key in keyring: %v%s\n", colorRed, err, colorReset)
			fmt.Println("The API key will be written to config.yaml instead")
		} else {
			w.config.Census.CredentialsName = name
			fmt.Printf("API key stored in keyring as '%s'\n", name)
			return
		}
	}

	w.config.Census.APIKey = apiKey
	fmt.Println("API key configured")
}

// configureSync configures sync run settings
func (w *Wizard) configureSync() error {
	fmt.Printf("%sSync Settings%s\n", colorTeal, colorReset)
	fmt.Println("══════════════")

	fmt.Println("Syncs to Run:")
	fmt.Println("Enter the ids of the Census syncs to trigger (the number in the sync's URL).")
	fmt.Println("Press Enter on an empty line when done.")

	var syncIDs []int64
	for {
		input := w.prompt(fmt.Sprintf("Sync %d id (or press Enter to finish)", len(syncIDs)+1))
		if input == "" {
			break
		}

		syncID, ok := parseSyncID(input)
		if !ok {
			fmt.Printf("%sPlease enter a positive number%s\n", colorRed, colorReset)
			continue
		}

		syncIDs = append(syncIDs, syncID)
		fmt.Printf("Added: %d (%s)\n", syncID, census.SyncHistoryURL(syncID))
	}

	for len(syncIDs) == 0 {
		syncID, ok := parseSyncID(w.promptRequired("At least one sync id is required"))
		if ok {
			syncIDs = append(syncIDs, syncID)
		}
	}

	w.config.Sync.SyncIDs = syncIDs
	w.config.Sync.ForceFullSync = w.promptYesNo("Force a full sync on every run?", false)

	fmt.Println("\nWaiting for Sync Runs:")
	w.config.Sync.MaxWaitSeconds = w.promptIntWithDefault("Max wait for a run to finish (seconds)", 900)
	w.config.Sync.PollFrequencySeconds = w.promptIntWithDefault("Poll frequency (seconds)", 10)
	w.config.Sync.MaxPollAttempts = w.promptIntWithDefault("Max poll attempts (0 = no limit)", 0)
	w.config.Sync.RetryAttempts = w.promptIntWithDefault("Retry attempts for failed status checks", 3)
	w.config.Sync.RetryDelaySeconds = w.promptIntWithDefault("Retry delay (seconds)", 10)
	w.config.Sync.Concurrency = w.promptIntWithDefault("Syncs to run at the same time", 1)

	fmt.Println()
	return nil
}

// configureServer configures server mode settings
func (w *Wizard) configureServer() error {
	fmt.Printf("%sServer Mode Configuration%s\n", colorTeal, colorReset)
	fmt.Println("════════════════════════════")

	w.config.Server.Port = w.promptIntWithDefault("HTTP server port", 8080)

	enableScheduling := w.promptYesNo("Enable automatic sync scheduling?", false)
	w.config.Server.ScheduleEnabled = enableScheduling

	if enableScheduling {
		fmt.Println("\nSchedule Configuration:")
		fmt.Println("Enter a cron schedule expression.")
		fmt.Println("Examples:")
		fmt.Println("  '0 */6 * * *'   - Every 6 hours")
		fmt.Println("  '0 0 * * *'     - Daily at midnight")
		fmt.Println("  '0 9 * * 1-5'   - Weekdays at 9 AM")

		schedule := w.promptWithDefault("Cron schedule", "0 */6 * * *")
		w.config.Server.Schedule = schedule

		fmt.Printf("Scheduled sync: %s\n", schedule)
	} else {
		w.config.Server.Schedule = "0 */6 * * *" // Default, but disabled
		fmt.Println("Manual runs only - use the CLI or HTTP API to trigger syncs")
	}

	fmt.Println()
	return nil
}

// saveConfiguration saves the configuration to a file
func (w *Wizard) saveConfiguration() error {
	fmt.Printf("%sSave Configuration%s\n", colorTeal, colorReset)
	fmt.Println("════════════════════")

	configPath := w.promptWithDefault("Configuration file path", "./config.yaml")

	if _, err := os.Stat(configPath); err == nil {
		overwrite := w.promptYesNo(fmt.Sprintf("File %s already exists. Overwrite?", configPath), false)
		if !overwrite {
			fmt.Printf("%sConfiguration not saved%s\n", colorRed, colorReset)
			return fmt.Errorf("user chose not to overwrite existing file")
		}
	}

	if err := config.Save(w.config, configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Printf("Configuration saved to: %s\n", configPath)
	fmt.Println()

	w.showNextSteps(configPath)

	return nil
}

// showNextSteps displays next steps for the user
func (w *Wizard) showNextSteps(configPath string) {
	fmt.Printf("%sSetup Complete!%s\n", colorTeal, colorReset)
	fmt.Println("═════════════════")
	fmt.Println()

	if w.config.Census.APIKey == "" && w.config.Census.CredentialsName == "" {
		fmt.Printf("%sImportant: Your API key is not set!%s\n", colorRed, colorReset)
		fmt.Printf("   Edit %s and add your Census API key to:\n", configPath)
		fmt.Println("   census.api_key: \"${CENSUS_API_KEY}\"")
		fmt.Println("   or store it with: ./census-sync credentials set --name default")
		fmt.Println()
	}

	fmt.Println("Next steps:")
	fmt.Println("1. Validate setup:    ./census-sync setup validate")
	fmt.Println("2. Trigger a sync:    ./census-sync trigger --sync-id <id> --wait")
	fmt.Println("3. Run all syncs:     ./census-sync run")
	fmt.Println("4. Start server:      ./census-sync server")
	fmt.Println()
	fmt.Println("Documentation:")
	fmt.Println("   - Run './census-sync --help' for command options")
	fmt.Printf("   - Server API will be available at http://localhost:%d\n", w.config.Server.Port)
	fmt.Printf("   - Health check: curl http://localhost:%d/health\n", w.config.Server.Port)
	fmt.Println()

	if w.config.App.TestMode {
		fmt.Println("Test mode is enabled - no sync runs will be triggered")
		fmt.Println("   Set 'test_mode: false' in config when ready for production")
	}
}

// Helper methods for prompting user input

func (w *Wizard) prompt(question string) string {
	fmt.Printf("%s: ", question)
	input, err := w.reader.ReadString('\n')
	if err != nil && input == "" {
		fmt.Printf("Error reading input: %v\n", err)
		return ""
	}
	return strings.TrimSpace(input)
}

func (w *Wizard) promptRequired(question string) string {
	for {
		value := w.prompt(question)
		if value != "" {
			return value
		}
		fmt.Printf("%sThis field is required%s\n", colorRed, colorReset)
	}
}

func (w *Wizard) promptWithDefault(question, defaultValue string) string {
	value := w.prompt(fmt.Sprintf("%s [%s]", question, defaultValue))
	if value == "" {
		return defaultValue
	}
	return value
}

func (w *Wizard) promptYesNo(question string, defaultValue bool) bool {
	defaultStr := "y/N"
	if defaultValue {
		defaultStr = "Y/n"
	}

	for {
		response := w.prompt(fmt.Sprintf("%s [%s]", question, defaultStr))
		if response == "" {
			return defaultValue
		}

		response = strings.ToLower(response)
		if response == "y" || response == "yes" {
			return true
		}
		if response == "n" || response == "no" {
			return false
		}

		fmt.Printf("%sPlease enter 'y' or 'n'%s\n", colorRed, colorReset)
	}
}

func (w *Wizard) promptIntWithDefault(question string, defaultValue int) int {
	for {
		response := w.prompt(fmt.Sprintf("%s [%d]", question, defaultValue))
		if response == "" {
			return defaultValue
		}

		if value, err := strconv.Atoi(response); err == nil {
			return value
		}

		fmt.Printf("%sPlease enter a valid number%s\n", colorRed, colorReset)
	}
}

func (w *Wizard) promptAPIKey(question string) string {
	fmt.Printf("%s\n", question)
	fmt.Println("Read from file path (leave empty to skip):")

	return w.promptAPIKeyFromFile()
}

func (w *Wizard) promptAPIKeyFromFile() string {
	filePath := w.prompt("Path to file containing API key")
	if filePath == "" {
		return ""
	}

	apiKey, err := ReadAPIKeyFile(filePath)
	if err != nil {
		fmt.Printf("%s%v%s\n", colorRed, err, colorReset)
		return ""
	}

	if w.validateAPIKey(apiKey) {
		fmt.Println("API key loaded from file")
		return apiKey
	}

	return ""
}

// ReadAPIKeyFile reads an API key from a file, ignoring surrounding whitespace
func ReadAPIKeyFile(path string) (string, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("error reading file: %w", err)
	}

	apiKey := strings.TrimSpace(string(content))
	if apiKey == "" {
		return "", fmt.Errorf("file %s is empty", path)
	}
	return apiKey, nil
}

func (w *Wizard) validateAPIKey(apiKey string) bool {
	if strings.ContainsAny(apiKey, " \t\r\n") {
		fmt.Printf("%sAPI key must not contain whitespace%s\n", colorRed, colorReset)
		fmt.Println("   Make sure the file contains only the key")
		return false
	}

	if !strings.HasPrefix(apiKey, apiKeyPrefix) {
		fmt.Printf("%sWarning: Census API keys usually start with '%s'%s\n", colorRed, apiKeyPrefix, colorReset)
	}

	if len(apiKey) < len(apiKeyPrefix)+8 {
		fmt.Printf("%sAPI key seems short (%d chars). Make sure you copied the complete key%s\n", colorRed, len(apiKey), colorReset)
		return false
	}

	return true
}

func parseSyncID(input string) (int64, bool) {
	syncID, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64)
	if err != nil || syncID <= 0 {
		return 0, false
	}
	return syncID, true
}
