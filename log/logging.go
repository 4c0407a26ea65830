// Package log provides leveled logging through a buffered channel that is emptied by a single writer goroutine.
package log

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tevino/abool"
)

// Severity describes a log level.
type Severity uint32

type logLine struct {
	msg       string
	level     Severity
	timestamp time.Time
	file      string
	line      int
}

// Log Levels.
const (
	TraceLevel    Severity = 1
	DebugLevel    Severity = 2
	InfoLevel     Severity = 3
	WarningLevel  Severity = 4
	ErrorLevel    Severity = 5
	CriticalLevel Severity = 6
)

var (
	logBuffer             chan *logLine
	forceEmptyingOfBuffer chan struct{}

	logLevelInt = uint32(InfoLevel)
	logLevel    = &logLevelInt

	pkgLevelsActive = abool.NewBool(false)
	pkgLevels       = make(map[string]Severity)
	pkgLevelsLock   sync.Mutex

	logsWaiting     = make(chan struct{}, 1)
	logsWaitingFlag = abool.NewBool(false)

	shutdownSignal = make(chan struct{})
	shutdownOnce   sync.Once
	writerDone     = make(chan struct{})
)

// SetPkgLevels sets individual log levels for packages. Only effective after Start().
func SetPkgLevels(levels map[string]Severity) {
	pkgLevelsLock.Lock()
	pkgLevels = levels
	pkgLevelsLock.Unlock()
	pkgLevelsActive.Set()
}

// UnSetPkgLevels removes all individual log levels for packages.
func UnSetPkgLevels() {
	pkgLevelsActive.UnSet()
}

// SetLogLevel sets a new log level.
func SetLogLevel(level Severity) {
	atomic.StoreUint32(logLevel, uint32(level))
}

// GetLogLevel returns the current log level.
func GetLogLevel() Severity {
	return Severity(atomic.LoadUint32(logLevel))
}

// ParseLevel returns the level severity of a log level name.
func ParseLevel(level string) Severity {
	switch strings.ToLower(level) {
	case "trace":
		return TraceLevel
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warning":
		return WarningLevel
	case "error":
		return ErrorLevel
	case "critical":
		return CriticalLevel
	}
	return 0
}

// Start applies the given level and package levels. Package levels are given
// in the form "store=trace,persistence=debug".
func Start(level, pkgLogLevels string) error {
	var err error

	if level != "" {
		initialLogLevel := ParseLevel(level)
		if initialLogLevel == 0 {
			err = fmt.Errorf("log warning: invalid log level %q, falling back to level info", level)
			initialLogLevel = InfoLevel
		}
		SetLogLevel(initialLogLevel)
	}

	if len(pkgLogLevels) > 0 {
		newPkgLevels := make(map[string]Severity)
		for _, pair := range strings.Split(pkgLogLevels, ",") {
			splitted := strings.Split(pair, "=")
			if len(splitted) != 2 {
				err = fmt.Errorf("log warning: invalid package log level %q, ignoring", pair)
				continue
			}
			pkgLevel := ParseLevel(splitted[1])
			if pkgLevel == 0 {
				err = fmt.Errorf("log warning: invalid package log level %q, ignoring", pair)
				continue
			}
			newPkgLevels[splitted[0]] = pkgLevel
		}
		SetPkgLevels(newPkgLevels)
	}

	return err
}

// Shutdown writes all remaining log lines and stops the writer.
func Shutdown() {
	shutdownOnce.Do(func() {
		close(shutdownSignal)
	})
	<-writerDone
}

func init() {
	logBuffer = make(chan *logLine, 1024)
	forceEmptyingOfBuffer = make(chan struct{}, 4)

	go writer()
}
