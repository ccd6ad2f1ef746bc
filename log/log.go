// Package log declares the per-subsystem loggers shared across the
// ingestion pipeline, in the same style lnd wires logging for each of
// its subsystems: a backend log writer is created once, and every
// package pulls its own tagged sub-logger from it via NewSubsystemLogger.
package log

import (
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate"
)

// backendLog is the logging backend used to create all subsystem
// loggers. Writes fan out to both stdout and the rotating log file
// configured by InitLogRotator.
var backendLog = btclog.NewBackend(logWriter{})

// logWriter implements io.Writer and forwards to both the rotator (once
// initialized) and stdout, mirroring lnd's logWriter.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if rotator != nil {
		rotator.Write(p)
	}
	return len(p), nil
}

var rotator *logrotate.Logger

// InitLogRotator initializes the log rotation system, writing logs to
// the specified file, rotated daily, keeping the specified number of
// old log files around, in the same manner as lnd's initLogRotator.
func InitLogRotator(logFile string, maxFiles int) error {
	r, err := logrotate.NewLogger(logFile, maxFiles)
	if err != nil {
		return err
	}
	rotator = r
	return nil
}

// Subsystem tags, matching the short fixed-width style lnd uses for
// its own subsystem loggers (e.g. "LNWL", "RPCS").
const (
	SubsystemStore      = "STOR"
	SubsystemIdentity   = "IDEN"
	SubsystemUTXO       = "UTXO"
	SubsystemScanner    = "SCAN"
	SubsystemMatcher    = "MTCH"
	SubsystemPipeline   = "PIPE"
	SubsystemNotifier   = "NTFY"
	SubsystemHistorical = "HIST"
	SubsystemBot        = "BOT "
	SubsystemChainRPC   = "CRPC"
)

// NewSubsystemLogger returns a logger tagged with the given subsystem,
// defaulting to Info level. Callers may adjust the level at runtime via
// SetLevel, mirroring lnd's per-subsystem log level configuration.
func NewSubsystemLogger(subsystem string) btclog.Logger {
	logger := backendLog.Logger(subsystem)
	logger.SetLevel(btclog.LevelInfo)
	return logger
}

// SetLevel adjusts the level of a previously created subsystem logger.
func SetLevel(logger btclog.Logger, level string) {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return
	}
	logger.SetLevel(lvl)
}
