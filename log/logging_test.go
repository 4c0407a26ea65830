package log

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type syncBuffer struct {
	sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.Lock()
	defer b.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.Lock()
	defer b.Unlock()
	return b.buf.String()
}

func TestLogging(t *testing.T) {
	out := &syncBuffer{}
	SetOutput(out)

	err := Start("trace", "")
	assert.NoError(t, err)

	// log
	Trace("Trace")
	Debug("Debug")
	Info("Info")
	Warning("Warning")
	Error("Error")
	Critical("Critical")

	// logf
	Tracef("Trace %s", "f")
	Debugf("Debug %s", "f")
	Infof("Info %s", "f")
	Warningf("Warning %s", "f")
	Errorf("Error %s", "f")
	Criticalf("Critical %s", "f")

	// play with levels
	SetLogLevel(CriticalLevel)
	Warning("suppressed")
	SetLogLevel(InfoLevel)

	assert.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("Critical f"))
	}, time.Second, 5*time.Millisecond)
	assert.NotContains(t, out.String(), "suppressed")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, Severity(0), ParseLevel("loud"))

	err := Start("loud", "store=trace,broken")
	assert.Error(t, err)
	UnSetPkgLevels()
	SetLogLevel(InfoLevel)
}
