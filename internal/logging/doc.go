// Package logging provides structured logging for dvc commands.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// persistent context attributes. Because several dvc processes may share one
// repository, every entry carries the pid of the process that wrote it, which
// makes the log useful for reconstructing who held which path lock.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/repo/.dvc/tmp", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("acquired", "reads", reads, "writes", writes)
//
// # Context Propagation
//
//	cmdLogger := logger.WithCommand("stage run").WithPID(os.Getpid())
//	cmdLogger.Debug("gate locked", "path", ".dvc/lock")
//
// Output:
//
//	{"time":"...","level":"DEBUG","msg":"gate locked","command":"stage run","pid":4242,"path":".dvc/lock"}
//
// # Testing
//
// Use [NopLogger] to discard all log output.
//
// # Configuration
//
//	logging:
//	  enabled: true
//	  level: debug
package logging
