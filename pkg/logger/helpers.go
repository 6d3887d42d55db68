package logger

// Shared event shapes, so the same operation logs identically wherever
// it happens.

// LogDownload records one file outcome under the standard field names.
func LogDownload(creator, postID, fileName string, success bool, err error) {
	log := GetLogger().WithFields(map[string]interface{}{
		"creator": creator,
		"post_id": postID,
		"file":    fileName,
		"success": success,
	})

	switch {
	case err != nil:
		log.WithError(err).Error("download failed")
	case success:
		log.Info("download completed")
	default:
		log.Warn("download skipped")
	}
}

// LogComponentStart marks a component coming up, with its settings.
func LogComponentStart(component string, config map[string]interface{}) {
	log := GetLogger().WithField("component", component)
	if len(config) > 0 {
		log = log.WithFields(config)
	}
	log.Info("component up")
}

// LogComponentStop marks a component going down and why.
func LogComponentStop(component string, reason string) {
	GetLogger().WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("component down")
}
