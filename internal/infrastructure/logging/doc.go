// Package logging is HydroCore's slog wrapper.
//
// One Logger is built from the config file at startup (JSON or text,
// level-filtered, stdout/stderr/file) and handed down; every record
// carries service and version fields. The other packages declare their
// own minimal Logger interfaces, which *logging.Logger satisfies
// through its embedded *slog.Logger.
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("mqtt connected", "broker", "localhost:1883")
//
// Never log credentials or tokens.
package logging
