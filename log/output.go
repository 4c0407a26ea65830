package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	output     io.Writer = os.Stdout
	outputLock sync.Mutex
	useColor   = true
)

// SetOutput sets the writer log lines are written to. Colors are disabled for writers other than stdout.
func SetOutput(w io.Writer) {
	outputLock.Lock()
	defer outputLock.Unlock()

	output = w
	useColor = w == os.Stdout
}

func writeLine(line *logLine, duplicates uint64) {
	outputLock.Lock()
	defer outputLock.Unlock()

	fmt.Fprintln(output, formatLine(line, duplicates, useColor))
}

func writer() {
	defer close(writerDone)

	var line *logLine
	var lastLine *logLine
	var duplicates uint64

	for {
		// reset
		line = nil
		lastLine = nil //nolint:ineffassign
		duplicates = 0

		// wait until logs need to be processed
		select {
		case <-logsWaiting:
			logsWaitingFlag.UnSet()
		case <-forceEmptyingOfBuffer:
		case <-shutdownSignal:
			finalizeWriting()
			return
		}

		// write all the logs!
	writeLoop:
		for {
			select {
			case line = <-logBuffer:
				// look-ahead for deduplication
				if lastLine == nil {
					lastLine = line
					continue writeLoop
				}
				if lastLine.msg == line.msg && lastLine.level == line.level && lastLine.line == line.line {
					duplicates++
					continue writeLoop
				}
				writeLine(lastLine, duplicates)
				lastLine = line
				duplicates = 0
			case <-time.After(10 * time.Millisecond):
				if lastLine != nil {
					writeLine(lastLine, duplicates)
				}
				break writeLoop
			}
		}
	}
}

func finalizeWriting() {
	for {
		select {
		case line := <-logBuffer:
			writeLine(line, 0)
		default:
			return
		}
	}
}
