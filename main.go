package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"kemonograb/pkg/config"
	"kemonograb/pkg/crawler"
	"kemonograb/pkg/kemono"
	"kemonograb/pkg/logger"
	"kemonograb/pkg/ui"
)

// Legacy flag-based entry point. The cobra CLI under cmd/kemonograb is
// the full interface; this binary covers the plain
// "kemonograb [flags] <target>" invocation.

var (
	configFile    = flag.String("config", "", "config file (default is .kemonograb.yaml)")
	session       = flag.String("session", "", "session cookie for subscriber-only content")
	outputDir     = flag.String("output", "", "output directory for downloads (default: ./downloads)")
	concurrent    = flag.Int("concurrent", 3, "parallel file transfers")
	rateLimit     = flag.Int("rate-limit", 60, "request budget per minute")
	notifications = flag.Bool("notifications", true, "send desktop notifications for run events")
	resumeRun     = flag.Bool("resume", false, "resume from last checkpoint")
	forceRestart  = flag.Bool("force-restart", false, "start over and ignore any checkpoint")
)

func main() {
	flag.Parse()

	ui.PrintLogo()

	args := flag.Args()
	if len(args) != 1 {
		ui.PrintError("Usage: kemonograb [flags] <profile URL or site:service:creator>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	target, err := kemono.ParseTarget(strings.TrimSpace(args[0]))
	if err != nil {
		ui.PrintError("Invalid target", err.Error())
		os.Exit(1)
	}
	ui.PrintInfo("Target", target.String())

	// Only flags the user actually set may override the config file.
	flags := make(map[string]interface{})
	if *session != "" {
		flags["session"] = *session
	}
	if *outputDir != "" {
		flags["output"] = *outputDir
	}
	if *concurrent != 3 {
		flags["concurrent-downloads"] = *concurrent
	}
	if *rateLimit != 60 {
		flags["requests-per-minute"] = *rateLimit
	}
	if !*notifications {
		flags["notifications-enabled"] = false
	}

	cfg, err := config.Load(*configFile, flags)
	if err != nil {
		ui.PrintError("Could not load configuration", err.Error())
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Could not set up logging", err.Error())
		os.Exit(1)
	}
	logger.WithField("target", target.String()).Info("grab starting")

	c, err := crawler.New(cfg, logger.GetLogger())
	if err != nil {
		ui.PrintError("Could not start the crawler", err.Error())
		os.Exit(1)
	}

	var rep crawler.Reporter = ui.NewProgressDisplay(false)
	if cfg.Notifications.Enabled {
		rep = ui.NewNotifyingReporter(rep, ui.NewNotifier(), cfg.Notifications, target.String())
	}
	c.SetReporter(rep)

	// Stop signals drain the run instead of killing transfers mid-write.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.PrintHighlight("[STARTING GRAB]")

	summary, err := c.Run(ctx, crawler.Options{
		Target:       target,
		Window:       crawler.AllPages(),
		Resume:       *resumeRun,
		ForceRestart: *forceRestart,
	})
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
