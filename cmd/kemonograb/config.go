package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"kemonograb/pkg/config"
	"kemonograb/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and manage configuration",
	Long: `Inspect and manage kemonograb configuration.

Settings are merged from several layers. Later layers only fill in
what earlier ones left unset:

  flags > KEMONOGRAB_* environment > .env file > config file > defaults`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Write a starter config file with every option listed and commented.

The file lands in the current directory as 'kemonograb.yaml'; pass
--config to put it somewhere else.`,
	Run: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration as the program would actually run with it,
after flags, environment, .env files, the config file, and defaults
have all been merged.

The session cookie and proxy password are masked in the output.`,
	Run: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a config file for problems",
	Long: `Check a config file for YAML errors, out-of-range values, and
directories that cannot be created. Advisory findings are printed
as warnings and do not fail the check.`,
	Run: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const starterConfig = `# kemonograb configuration
#
# Every option below also has an environment variable form prefixed
# with KEMONOGRAB_, for example KEMONOGRAB_SESSION or
# KEMONOGRAB_OUTPUT_DIR. Environment variables win over this file.

# Network settings shared by listing and file requests
network:
  # Session cookie value. Public creators work without it; a logged-in
  # session unlocks subscriber-only content. Copy it from your
  # browser's cookies for the site.
  session: ""

  # Override the User-Agent header. Empty keeps the default.
  user_agent: ""

  # HTTP(S) proxy, with optional credentials
  proxy_url: ""
  proxy_user: ""
  proxy_password: ""

  # Verify TLS certificates
  verify_tls: true

# API budget
rate_limit:
  # Requests per minute across listing pages and file transfers, 1-120
  requests_per_minute: 60

  # Let the first requests of a run go out without waiting
  burst_enabled: true
  burst_size: 10

# Where downloads land
output:
  # Files go under <base>/<site>/<service>/<creator>/<post id>/
  base_directory: "./downloads"

  # Write a per-post info file (title, id, link, published date, files)
  save_post_info: false

  # Info file format, md or txt
  post_info_format: "md"

  # Write a creator-level profile JSON
  save_profile_info: false

# Transfer behavior
download:
  # Parallel transfers, 1-10
  concurrent_downloads: 3

  # Cap on concurrent transfers per file server, 0 for no cap
  per_host_limit: 0

  # Give up on a single file after this long
  download_timeout: "5m"

  # Create directories for posts without files
  include_empty_posts: false

  # Walk the creator oldest post first
  oldest_first: false

  # Re-download recorded files that are missing on disk
  verify_existing: false

# What happens after a failed request
retry:
  # Attempts per request, 1-10
  max_attempts: 5

  # First wait, longest wait, and growth between them
  base_delay: "1s"
  max_delay: "60s"
  multiplier: 2.0

  # Random fraction added to each wait
  jitter_factor: 0.1

# Desktop notification preferences
notifications:
  enabled: true
  on_complete: true
  on_error: true
  on_rate_limit: true

# Logging
logging:
  # debug, info, warn, error
  level: "info"

  # text or json
  format: "text"

  # Also append JSON log lines to this file. Empty logs to stderr only.
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) {
	path := configFile
	if path == "" {
		path = "kemonograb.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		ui.PrintError("Config file already exists", path)
		fmt.Println("\nRemove it first if you want a fresh one:")
		fmt.Printf("  rm %s\n", path)
		os.Exit(1)
	}

	if err := os.WriteFile(path, []byte(starterConfig), 0644); err != nil {
		ui.PrintError("Could not write config file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Config file created: " + path)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the configuration file to taste (a session cookie is optional)")
	fmt.Println("2. Run 'kemonograb config validate' to check the configuration")
	fmt.Println("3. Start downloading with 'kemonograb grab <target>'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Could not load configuration", err.Error())
		os.Exit(1)
	}

	shown := *cfg
	shown.Network.Session = maskSecret(shown.Network.Session)
	if shown.Network.ProxyPassword != "" {
		shown.Network.ProxyPassword = "***"
	}

	data, err := yaml.Marshal(&shown)
	if err != nil {
		ui.PrintError("Could not render configuration", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Effective Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nLayers, strongest first:")
	fmt.Println("  1. command line flags")
	fmt.Println("  2. KEMONOGRAB_* environment variables")
	fmt.Println("  3. .env file in the working directory")
	if configFile != "" {
		fmt.Printf("  4. config file %s\n", configFile)
	} else {
		fmt.Println("  4. config file (none given, searched default locations)")
	}
	fmt.Println("  5. built-in defaults")
}

// maskSecret keeps just enough of a secret to recognize it.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > 8 {
		return s[:4] + "..." + s[len(s)-4:]
	}
	return "***"
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	if configFile == "" {
		configFile = config.FindConfigFile()
		if configFile == "" {
			ui.PrintError("No config file found", "pass one with --config")
			os.Exit(1)
		}
	}

	ui.PrintInfo("Validating", configFile)

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Config file rejected", err.Error())
		os.Exit(1)
	}

	var problems, warnings []string

	if cfg.Network.Session == "" {
		warnings = append(warnings, "no session cookie configured, subscriber-only posts will be unavailable")
	}
	if !cfg.Network.VerifyTLS {
		warnings = append(warnings, "TLS certificate verification is disabled")
	}

	// The load already range-checked values; what is left is whether
	// the configured directories can actually be created.
	if cfg.Output.BaseDirectory != "" {
		if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
		}
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration problems:", "")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		os.Exit(1)
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Warnings:", "")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration looks good")

	fmt.Println("\nEffective settings:")
	fmt.Printf("  downloads go to %s\n", cfg.Output.BaseDirectory)
	fmt.Printf("  %d parallel transfers, %d requests/minute\n",
		cfg.Download.ConcurrentDownloads, cfg.RateLimit.RequestsPerMinute)
	fmt.Printf("  up to %d attempts per request\n", cfg.Retry.MaxAttempts)
	fmt.Printf("  logging at %s\n", cfg.Logging.Level)
}
