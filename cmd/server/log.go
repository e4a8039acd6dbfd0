package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"github.com/xtrntr/auctionhouse/internal/api"
	"github.com/xtrntr/auctionhouse/internal/config"
	"github.com/xtrntr/auctionhouse/internal/db"
	"github.com/xtrntr/auctionhouse/internal/house"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/orders"
	"github.com/xtrntr/auctionhouse/internal/settlement"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	if logRotator == nil {
		return os.Stdout.Write(p)
	}
	os.Stdout.Write(p)
	return logRotator.Write(p)
}

// A single backend logger is created and all subsystem loggers write to it.
// When adding new subsystems, define them in subsystemLoggers.
var (
	backendLog = slog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs. Use initLogRotator to set it.
	// It should be closed on application shutdown.
	logRotator *rotator.Rotator

	log     = backendLog.Logger("MAIN")
	ldgrLog = backendLog.Logger("LDGR")
	housLog = backendLog.Logger("HOUS")
	ordrLog = backendLog.Logger("ORDR")
	setlLog = backendLog.Logger("SETL")
	apiLog  = backendLog.Logger("API")
	dbLog   = backendLog.Logger("DB")
	wsLog   = backendLog.Logger("WS")
)

func init() {
	ledger.UseLogger(ldgrLog)
	house.UseLogger(housLog)
	orders.UseLogger(ordrLog)
	settlement.UseLogger(setlLog)
	api.UseLogger(apiLog)
	db.UseLogger(dbLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]slog.Logger{
	"MAIN": log,
	"LDGR": ldgrLog,
	"HOUS": housLog,
	"ORDR": ordrLog,
	"SETL": setlLog,
	"API":  apiLog,
	"DB":   dbLog,
	"WS":   wsLog,
}

// initLogRotator initializes the logging rotater to write logs to logFile and
// create roll files in the same directory. It must be called before the
// package-global log rotater variables are used.
func initLogRotator(logFile string, maxRolls int) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, 32*1024, false, maxRolls)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	logRotator = r
	return nil
}

func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for id := range subsystemLoggers {
		subsystems = append(subsystems, id)
	}
	sort.Strings(subsystems)
	return subsystems
}

// setLogLevels applies a debuglevel spec to every subsystem logger.
func setLogLevels(spec string) error {
	def, levels, err := config.ParseDebugLevels(spec)
	if err != nil {
		return err
	}
	for id := range levels {
		if _, ok := subsystemLoggers[id]; !ok {
			return fmt.Errorf("unknown subsystem %q, supported subsystems: %s",
				id, strings.Join(supportedSubsystems(), ", "))
		}
	}
	for id, logger := range subsystemLoggers {
		lvl := def
		if l, ok := levels[id]; ok {
			lvl = l
		}
		logger.SetLevel(lvl)
	}
	return nil
}
