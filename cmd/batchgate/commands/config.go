package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/grainway/batchgate/config"
)

// ConfigCmd manages batchgate configuration.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage batchgate configuration",
	Long: `Display and manage batchgate configuration.

Configuration sources (in order of precedence):
1. Environment variables (BATCHGATE_* prefix)
2. Project config (./batchgate.toml, searched up the directory tree)
3. User config (~/.batchgate/config.toml)
4. System config (/etc/batchgate/config.toml)
5. Default values

Examples:
  batchgate config show                  # Show effective configuration
  batchgate config show --format json   # Same, as JSON
  batchgate config get boards.dependent_board_id
  batchgate config validate              # Validate without running
  batchgate config init                  # Write a starter config file
  batchgate config where                 # Show the config cascade`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Long:  "Display the merged configuration from all sources. Credentials are shown as fingerprints, never in the clear.",
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get one configuration value using dot notation (e.g., tracker.page_size, schedule.interval_minutes)",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	RunE:  runConfigValidate,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter configuration file",
	Long: `Write a starter configuration file with every default spelled out.

Defaults to the user config path; pass a path to write elsewhere.
Board ids, relation columns, and credentials must be filled in before
the first run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var configWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runConfigWhere,
}

var (
	configFormat    string
	configInitForce bool
)

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file (the old one is rotated to .back1)")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configGetCmd)
	ConfigCmd.AddCommand(configValidateCmd)
	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configWhereCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Shallow copy with credentials replaced by fingerprints.
	display := *cfg
	display.Tracker.APIToken = config.TokenFingerprint(cfg.Tracker.APIToken)
	display.Server.WebhookSecret = config.TokenFingerprint(cfg.Server.WebhookSecret)

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(display, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Println(string(data))

	case "yaml":
		data, err := yaml.Marshal(mapForYAML(display))
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		fmt.Printf("# batchgate configuration (credentials fingerprinted)\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(display)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Printf("# batchgate configuration (credentials fingerprinted)\n%s", string(data))

	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

// mapForYAML round-trips the config through JSON so YAML output uses the
// same snake_case keys as the other formats.
func mapForYAML(cfg config.Config) map[string]interface{} {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := config.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}

	// Credentials never print in the clear.
	if strings.HasSuffix(key, "api_token") || strings.HasSuffix(key, "webhook_secret") {
		fmt.Println(config.TokenFingerprint(config.GetString(key)))
		return nil
	}

	fmt.Println(config.Get(key))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	fmt.Println("✓ Configuration is valid")
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.UserConfigPath()
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("cannot determine config path (no home directory); pass a path explicitly")
	}

	if err := config.WriteStarter(path, configInitForce); err != nil {
		return err
	}

	fmt.Printf("✓ Wrote starter config to %s\n", path)
	fmt.Println("Fill in tracker.api_url, both board ids, and both relation columns,")
	fmt.Println("then set BATCHGATE_TRACKER_API_TOKEN and run 'batchgate check'.")
	return nil
}

func runConfigWhere(cmd *cobra.Command, args []string) error {
	fmt.Println("Configuration cascade (later overrides earlier):")

	for _, path := range config.ConfigSourcePaths() {
		marker := "missing"
		if _, err := os.Stat(path); err == nil {
			marker = "present"
		}
		fmt.Printf("  [%s] %s\n", marker, path)
	}
	fmt.Println("  [always] BATCHGATE_* environment variables")

	if active := config.ActiveConfigPath(); active != "" {
		fmt.Printf("\nHot reload follows: %s\n", active)
	} else {
		fmt.Println("\nNo config file found; running on defaults and environment variables.")
	}
	return nil
}
