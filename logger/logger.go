// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package logger hosts the per-subsystem loggers. A single backend feeds
// standard output and a rotating log file; subsystem loggers are created
// from it and handed to the packages that own them.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// logWriter implements an io.Writer that outputs to both standard output
// and the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var (
	// backendLog is the logging backend used to create all subsystem
	// loggers.
	backendLog = btclog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs. It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	bgbdLog = backendLog.Logger("BGBD")
	bcdbLog = backendLog.Logger("BCDB")
	chanLog = backendLog.Logger("CHAN")
	delgLog = backendLog.Logger("DELG")
	defiLog = backendLog.Logger("DEFI")
	cnfgLog = backendLog.Logger("CNFG")
)

// subsystemLoggers maps each subsystem identifier to its associated
// logger.
var subsystemLoggers = map[string]btclog.Logger{
	"BGBD": bgbdLog,
	"BCDB": bcdbLog,
	"CHAN": chanLog,
	"DELG": delgLog,
	"DEFI": defiLog,
	"CNFG": cnfgLog,
}

// Get returns the logger of the given subsystem, creating it on first
// use.
func Get(subsystem string) btclog.Logger {
	if logger, ok := subsystemLoggers[subsystem]; ok {
		return logger
	}
	logger := backendLog.Logger(subsystem)
	subsystemLoggers[subsystem] = logger
	return logger
}

// InitLogRotator initializes the logging rotator to write logs to logFile
// and create roll files in the same directory. It must be called before
// logging output is expected to reach the file.
func InitLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %s", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %s", err)
	}
	logRotator = r
	return nil
}

// Close shuts the log rotator down.
func Close() {
	if logRotator != nil {
		logRotator.Close()
		logRotator = nil
	}
}

// SetLogLevels sets the log level for all subsystem loggers.
func SetLogLevels(levelStr string) error {
	level, ok := btclog.LevelFromString(levelStr)
	if !ok {
		return fmt.Errorf("invalid log level %s", levelStr)
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
	return nil
}

// SupportedSubsystems returns a sorted slice of the registered subsystem
// identifiers.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsystem := range subsystemLoggers {
		subsystems = append(subsystems, subsystem)
	}
	sort.Strings(subsystems)
	return subsystems
}
