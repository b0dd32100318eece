// Package logging provides structured logging using uber/zap.
//
// Production builds encode JSON; Development builds encode colored console
// lines. Both use the same field keys.
//
// Session and tracker components take a *Logger and attach session_id and
// resource_id fields (see Session and Resource) to every lifecycle record.
// Components accept a nil *Logger and substitute a no-op one via OrNop.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	if err != nil {
//		return err
//	}
//	logger.Info("Session created", logging.Session(sid), zap.String("tag", "workflow:order"))
//	logger.Warn("Auto-save failed", logging.Session(sid), zap.Error(err))
package logging
