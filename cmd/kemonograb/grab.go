package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"kemonograb/internal/downloader"
	"kemonograb/pkg/auth"
	"kemonograb/pkg/config"
	"kemonograb/pkg/crawler"
	"kemonograb/pkg/kemono"
	"kemonograb/pkg/logger"
	"kemonograb/pkg/ui"
	"kemonograb/pkg/ui/tui"
)

var (
	// Grab command flags
	outputDir       string
	concurrent      int
	perHostLimit    int
	rateLimit       int
	accountName     string
	maxRetries      int
	downloadTimeout int
	pageOffset      int
	offsetRange     string
	postIDs         string
	oldestFirst     bool
	includeEmpty    bool
	verifyExisting  bool
	resumeRun       bool
	forceRestart    bool
	useTUI          bool
)

// grabCmd represents the grab command
var grabCmd = &cobra.Command{
	Use:   "grab <target>",
	Short: "Download all files a creator has posted",
	Long: `Download every file a creator has posted to a Kemono or Coomer archive.

The target is either a profile URL or the compact site:service:creator
form:

  https://kemono.su/patreon/user/12345
  kemono:patreon:12345
  coomer:onlyfans:somecreator

Public creators need no credentials. For subscriber-only content, store
a session cookie with 'kemonograb auth login' or set the
KEMONOGRAB_SESSION environment variable.

Files land under <output>/<site>/<service>/<creator>/<post id>/.
Finished files are recorded in a progress ledger and never downloaded
again, so an interrupted run can simply be rerun.`,
	Example: `  # Download a whole creator with default settings
  kemonograb grab https://kemono.su/patreon/user/12345

  # Compact target form, custom output and concurrency
  kemonograb grab kemono:patreon:12345 --output ./archive --concurrent 5

  # Resume an interrupted run from its checkpoint
  kemonograb grab kemono:patreon:12345 --resume

  # Only specific posts, oldest first
  kemonograb grab kemono:patreon:12345 --post-ids 100-200 --oldest-first

  # Watch it in the full terminal UI
  kemonograb grab coomer:onlyfans:somecreator --tui`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runGrab(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(grabCmd)

	// Local flags for grab command
	grabCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for downloads (default: ./downloads)")
	grabCmd.Flags().IntVar(&concurrent, "concurrent", 3, "parallel file transfers")
	grabCmd.Flags().IntVar(&perHostLimit, "per-host-limit", 0, "max concurrent transfers per file server (0 = no limit)")
	grabCmd.Flags().IntVar(&rateLimit, "rate-limit", 60, "request budget per minute")
	grabCmd.Flags().StringVarP(&accountName, "account", "a", "", "use a specific stored session")
	grabCmd.Flags().IntVar(&maxRetries, "max-retries", 5, "maximum number of retry attempts")
	grabCmd.Flags().IntVar(&downloadTimeout, "download-timeout", 300, "per-file download timeout in seconds")
	grabCmd.Flags().IntVar(&pageOffset, "page-offset", -1, "fetch a single listing page at this post offset")
	grabCmd.Flags().StringVar(&offsetRange, "offset-range", "", "fetch listing pages in an offset range (start-end)")
	grabCmd.Flags().StringVar(&postIDs, "post-ids", "", "only download matching post ids (id, lo-hi, or a comma-separated mix)")
	grabCmd.Flags().BoolVar(&oldestFirst, "oldest-first", false, "download the oldest posts first")
	grabCmd.Flags().BoolVar(&includeEmpty, "include-empty-posts", false, "create directories for posts without files")
	grabCmd.Flags().BoolVar(&verifyExisting, "verify-existing", false, "re-download recorded files that are missing on disk")
	grabCmd.Flags().BoolVar(&resumeRun, "resume", false, "resume from last checkpoint")
	grabCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "start over and ignore any checkpoint")
	grabCmd.Flags().BoolVar(&useTUI, "tui", false, "full-screen terminal dashboard")

	// Mirror the common flags on the root command so a bare
	// 'kemonograb <target>' run can use them too.
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for downloads (default: ./downloads)")
	rootCmd.Flags().IntVar(&concurrent, "concurrent", 3, "parallel file transfers")
	rootCmd.Flags().IntVar(&rateLimit, "rate-limit", 60, "request budget per minute")
	rootCmd.Flags().StringVarP(&accountName, "account", "a", "", "use a specific stored session")
	rootCmd.Flags().BoolVar(&resumeRun, "resume", false, "resume from last checkpoint")
	rootCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "start over and ignore any checkpoint")
	rootCmd.Flags().BoolVar(&useTUI, "tui", false, "full-screen terminal dashboard")
}

func runGrab(cmd *cobra.Command, args []string) {
	target, err := kemono.ParseTarget(args[0])
	if err != nil {
		ui.PrintError("Invalid target", err.Error())
		os.Exit(1)
	}

	if logLevel == "error" {
		ui.SetQuietMode(true)
	}

	if !useTUI {
		ui.PrintInfo("Target", target.String())
	}

	window, filter := parseRunSelection()

	flags := make(map[string]interface{})
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if concurrent != 3 {
		flags["concurrent-downloads"] = concurrent
	}
	if perHostLimit > 0 {
		flags["per-host-limit"] = perHostLimit
	}
	if rateLimit != 60 {
		flags["requests-per-minute"] = rateLimit
	}
	if !notifications {
		flags["notifications-enabled"] = false
	}
	if maxRetries != 5 {
		flags["max-attempts"] = maxRetries
	}
	if downloadTimeout != 300 {
		flags["download-timeout"] = downloadTimeout
	}
	if oldestFirst {
		flags["oldest-first"] = true
	}
	if includeEmpty {
		flags["include-empty-posts"] = true
	}
	if verifyExisting {
		flags["verify-existing"] = true
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Could not load configuration", err.Error())
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Could not set up logging", err.Error())
		os.Exit(1)
	}
	resolveSession(cfg, target)

	logger.WithFields(map[string]interface{}{
		"version": version,
		"target":  target.String(),
	}).Info("grab starting")

	c, err := crawler.New(cfg, logger.GetLogger())
	if err != nil {
		ui.PrintError("Could not start the crawler", err.Error())
		os.Exit(1)
	}

	opts := crawler.Options{
		Target:       target,
		Window:       window,
		Filter:       filter,
		Resume:       resumeRun,
		ForceRestart: forceRestart,
	}

	// Stop signals drain the run: no new pages or dispatches, in-flight
	// transfers finish their attempt.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if useTUI {
		runWithTUI(ctx, stop, c, cfg, opts, target)
		return
	}

	// Plain console flow
	ui.PrintHighlight("[STARTING GRAB]")

	c.SetReporter(consoleReporter(cfg, target))

	summary, err := c.Run(ctx, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			ui.PrintWarning("Interrupted", "progress saved - rerun with --resume to continue")
			os.Exit(130)
		}
		logger.WithError(err).WithField("target", target.String()).Error("grab failed")
		ui.PrintError("GRAB FAILED", err.Error())
		os.Exit(1)
	}

	logger.WithFields(map[string]interface{}{
		"target":    target.String(),
		"completed": summary.Completed,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	}).Info("grab finished")
	ui.PrintSuccess("[GRAB COMPLETED]")
}

// parseRunSelection builds the page window and post filter from the
// selection flags.
func parseRunSelection() (crawler.Window, *crawler.PostFilter) {
	window := crawler.AllPages()
	if pageOffset >= 0 && offsetRange != "" {
		ui.PrintError("Conflicting flags", "--page-offset and --offset-range cannot be combined")
		os.Exit(1)
	}
	if pageOffset >= 0 {
		window = crawler.SinglePage(pageOffset)
		if err := window.Validate(); err != nil {
			ui.PrintError("Invalid page offset", err.Error())
			os.Exit(1)
		}
	}
	if offsetRange != "" {
		var err error
		window, err = crawler.ParseOffsetRange(offsetRange)
		if err != nil {
			ui.PrintError("Invalid offset range", err.Error())
			os.Exit(1)
		}
	}

	var filter *crawler.PostFilter
	if postIDs != "" {
		var err error
		filter, err = crawler.ParsePostFilter(postIDs)
		if err != nil {
			ui.PrintError("Invalid post id filter", err.Error())
			os.Exit(1)
		}
	}

	return window, filter
}

// resolveSession fills cfg.Network.Session from the stored accounts. A
// missing session is not an error: the archives serve public creators
// anonymously.
func resolveSession(cfg *config.Config, target kemono.Target) {
	creds, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Credential store unavailable", err.Error())
		os.Exit(1)
	}

	var account *auth.Account

	if accountName != "" {
		account, err = creds.Retrieve(accountName)
		if err != nil {
			ui.PrintError("No stored session", accountName)
			ui.PrintInfo("Available accounts", "Use 'kemonograb auth list' to see stored sessions")
			os.Exit(1)
		}
	} else if cfg.Network.Session != "" {
		// Session from config/env takes precedence over stored accounts
		logger.Info("using session from configuration")
		return
	} else {
		// Fall back to the default stored account, if any
		account, _ = creds.RetrieveDefault()
	}

	if account == nil {
		logger.Debug("no stored session, downloading anonymously")
		return
	}

	if account.Site != "" && kemono.SiteFamily(account.Site) != kemono.SiteFamily(target.Site) {
		ui.PrintWarning("Stored session belongs to another site", account.Site)
	}

	cfg.Network.Session = account.Session
	logger.WithField("account", account.Name).Info("using stored session")
	if !useTUI {
		ui.PrintInfo("Using account", account.Name)
	}
}

// consoleReporter builds the progress surface for a non-TUI run and
// layers notifications on it when they are enabled.
func consoleReporter(cfg *config.Config, target kemono.Target) crawler.Reporter {
	var rep crawler.Reporter = crawler.NopReporter{}
	if !quiet {
		rep = ui.NewProgressDisplay(verbose || strings.EqualFold(cfg.Logging.Level, "debug"))
	}
	if cfg.Notifications.Enabled {
		rep = ui.NewNotifyingReporter(rep, ui.NewNotifier(), cfg.Notifications, target.String())
	}
	return logReporter{rep}
}

// logReporter mirrors run events into the structured log, so the log
// file records outcomes no matter which display mode is active.
type logReporter struct {
	crawler.Reporter
}

func (r logReporter) RunStarted(target kemono.Target, creator *kemono.Creator) {
	fields := map[string]interface{}{
		"site":    target.Site,
		"service": target.Service,
		"creator": target.Creator,
	}
	if creator != nil {
		fields["creator_name"] = creator.Name
	}
	logger.LogComponentStart("crawler", fields)
	r.Reporter.RunStarted(target, creator)
}

func (r logReporter) FileFinished(result downloader.TransferResult) {
	switch result.Outcome {
	case downloader.OutcomeComplete:
		logger.LogDownload(result.Job.Creator, result.Job.PostID, result.Job.FileName, true, nil)
	case downloader.OutcomeFailed:
		logger.LogDownload(result.Job.Creator, result.Job.PostID, result.Job.FileName, false, result.Error)
	}
	r.Reporter.FileFinished(result)
}

func (r logReporter) RunFinished(summary *crawler.RunSummary) {
	reason := "completed"
	if summary != nil && summary.Failed > 0 {
		reason = "completed with failures"
	}
	logger.LogComponentStop("crawler", reason)
	r.Reporter.RunFinished(summary)
}

// runWithTUI drives the crawl under the full-screen terminal UI. The
// crawl runs in a goroutine; closing the TUI cancels the run and lets
// it drain before the process exits.
func runWithTUI(ctx context.Context, stop context.CancelFunc, c *crawler.Crawler, cfg *config.Config, opts crawler.Options, target kemono.Target) {
	dash := tui.NewTUI(cfg.Download.ConcurrentDownloads)

	var rep crawler.Reporter = ui.NewTUIReporter(dash, cfg.RateLimit.RequestsPerMinute)
	if cfg.Notifications.Enabled {
		rep = ui.NewNotifyingReporter(rep, ui.NewNotifier(), cfg.Notifications, target.String())
	}
	c.SetReporter(logReporter{rep})

	var summary *crawler.RunSummary
	runDone := make(chan error, 1)
	go func() {
		s, err := c.Run(ctx, opts)
		summary = s
		runDone <- err
	}()

	uiDone := make(chan error, 1)
	go func() {
		uiDone <- dash.Start()
	}()

	var runErr error
	select {
	case runErr = <-runDone:
		dash.Stop()
		<-uiDone
	case err := <-uiDone:
		if err != nil {
			logger.WithError(err).Error("dashboard crashed")
		}
		// The user closed the TUI; drain the run before exiting.
		stop()
		runErr = <-runDone
	}

	// The alternate screen wiped the live view, so restate the outcome.
	if summary != nil {
		ui.PrintSuccess(fmt.Sprintf("Grabbed %d new files, %d already archived, %d failed",
			summary.Completed, summary.Skipped, summary.Failed))
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			ui.PrintWarning("Interrupted", "progress saved - rerun with --resume to continue")
			os.Exit(130)
		}
		logger.WithError(runErr).WithField("target", target.String()).Error("grab failed")
		ui.PrintError("GRAB FAILED", runErr.Error())
		os.Exit(1)
	}

	logger.WithField("target", target.String()).Info("grab finished")
}

// Make grab the default command when no subcommand is specified
func init() {
	prior := rootCmd.RunE
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if prior != nil {
			return prior(cmd, args)
		}
		if len(args) > 0 && !isSubcommand(args[0]) {
			// A first argument that is not a subcommand is a target.
			return grabCmd.RunE(grabCmd, args)
		}
		return cmd.Help()
	}

	// The root has to tolerate a bare target argument.
	rootCmd.Args = cobra.ArbitraryArgs
}

func isSubcommand(arg string) bool {
	for _, sub := range rootCmd.Commands() {
		if sub.Name() == arg || sub.HasAlias(arg) {
			return true
		}
	}
	return false
}
