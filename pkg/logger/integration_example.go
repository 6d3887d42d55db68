package logger

// How the pieces fit together at the application boundary.

/*
In the command entry point, the logger comes up right after the config
and before anything that might want to log:

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		os.Exit(1)
	}

	logger.WithField("version", version).Info("kemonograb starting")

	// Settings are loggable, session cookies are not.
	logger.WithFields(map[string]interface{}{
		"output_dir": cfg.Output.BaseDirectory,
		"concurrent": cfg.Download.ConcurrentDownloads,
		"rate_limit": cfg.RateLimit.RequestsPerMinute,
	}).Debug("Configuration loaded")

	c, err := crawler.New(cfg, logger.GetLogger())
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize crawler")
	}

	summary, err := c.Run(ctx, crawler.Options{Target: target, Window: crawler.AllPages()})
	if err != nil {
		logger.WithError(err).WithField("target", target.String()).Error("Grab failed")
		os.Exit(1)
	}
	logger.WithField("completed", summary.Completed).Info("Grab completed")
*/

/*
Long-lived components take a Logger and derive one carrying their
identity, so every line they emit is attributable:

	func (c *Crawler) Run(ctx context.Context, opts Options) (*RunSummary, error) {
		log := c.logger.
			WithField("component", "crawler").
			WithField("creator", opts.Target.Creator)

		log.Info("Starting crawl")

		page, err := c.client.FetchPostsPage(ctx, opts.Target, 0)
		if err != nil {
			log.WithError(err).Error("Failed to fetch first page")
			return nil, err
		}

		log.WithFields(map[string]interface{}{
			"creator_name": page.Props.Name,
			"post_count":   page.Props.Count,
		}).Info("Creator profile fetched")

		// ...
	}
*/

/*
The helpers in this package standardize cross-cutting events. The CLI
wraps its Reporter so outcomes land in the log regardless of display
mode:

	func (r logReporter) FileFinished(result downloader.TransferResult) {
		switch result.Outcome {
		case downloader.OutcomeComplete:
			logger.LogDownload(result.Job.Creator, result.Job.PostID, result.Job.FileName, true, nil)
		case downloader.OutcomeFailed:
			logger.LogDownload(result.Job.Creator, result.Job.PostID, result.Job.FileName, false, result.Error)
		}
		r.Reporter.FileFinished(result)
	}

with LogComponentStart and LogComponentStop bracketing the run the same
way.
*/
