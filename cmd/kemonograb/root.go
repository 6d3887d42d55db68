package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"kemonograb/pkg/ui"
)

var (
	// Overridden through ldflags on release builds.
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	configFile    string
	logLevel      string
	noColor       bool
	notifications bool
	quiet         bool
	progressOnly  bool
	verbose       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kemonograb",
	Short: "A bulk media downloader for Kemono and Coomer creator archives",
	Long: `kemonograb downloads every file a creator has posted on the Kemono or
Coomer archives: point it at a profile URL or a site:service:creator id
and it walks the paginated post listing, extracts all previews and
attachments, and saves them under a per-creator directory tree.

Features:
  - Parallel transfers with a configurable worker count
  - Request pacing to stay under the API rate limit
  - Safe resume: finished files are recorded and never re-downloaded
  - Checkpointed pagination for interrupted runs
  - Single-line progress display or a full terminal UI (--tui)
  - Desktop notifications for run events
  - Exponential backoff retries on flaky requests
  - Optional session cookie for subscriber-only content`,
	Version: fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Progress mode is default for download runs unless verbose is
		// specified. Management commands keep their normal output.
		if !verbose && !quiet {
			switch cmd.Name() {
			case "grab", "kemonograb":
				progressOnly = true
			}
		}

		if noColor {
			ui.SetColorEnabled(false)
		}

		if quiet || logLevel == "error" {
			ui.SetQuietMode(true)
		}

		if progressOnly {
			ui.SetProgressOnlyMode(true)
			// Also set log level to error to keep structured logs off
			// the progress line
			logLevel = "error"
		}

		if cmd.Name() != "version" && cmd.Name() != "help" && cmd.Name() != "completion" {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .kemonograb.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log verbosity (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "turn off ANSI colors")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", true, "send desktop notifications for run events")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only errors on the terminal")
	rootCmd.PersistentFlags().BoolVarP(&progressOnly, "progress", "p", false, "show only the progress display and essential info")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "full output: logo, logs, and progress")

	rootCmd.SetVersionTemplate(`kemonograb {{.Version}}
` + runtime.Version() + ` ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
