// Package logger is the zerolog front end for the downloader. Every other
// package logs through the Logger interface defined here, so the choice of
// backend stays in one place and tests can swap in a recording logger.
//
// A process normally configures the global logger once at startup:
//
//	cfg := &config.LoggingConfig{
//		Level:  "info",
//		Format: "text",
//		File:   "/var/log/kemonograb.log",
//	}
//	err := logger.Initialize(cfg)
//
// and then logs through the package-level helpers or a derived instance:
//
//	logger.Info("starting crawl")
//	logger.WithField("creator", "somecreator").Info("resolved target")
//	logger.WithError(err).Error("download failed")
//
//	log := logger.GetLogger().
//		WithField("component", "downloader").
//		WithField("run_id", runID)
//	log.InfoWithFields("file saved", map[string]interface{}{
//		"file":     "page_01.jpg",
//		"size":     1024000,
//		"duration": elapsed,
//	})
//
// Level selects the minimum severity (debug, info, warn, error, fatal).
// Format chooses between "text", a colored console writer for humans, and
// "json", raw zerolog lines for collectors. File, when set, duplicates
// every event to that path as JSON regardless of the console format.
package logger
