// Package logmock provides a log.Component for tests, grounded on the
// teacher's logmock.New(t) helper used throughout
// comp/forwarder/defaultforwarder/*_test.go.
package logmock

import (
	"testing"

	"github.com/cnstream-go/cnstream/pkg/log"
)

type testLogger struct {
	t *testing.T
}

var _ log.Component = (*testLogger)(nil)

// New returns a log.Component that writes to t.Logf, so messages surface
// under `go test -v` and are attributed to the right subtest.
func New(t *testing.T) log.Component {
	return &testLogger{t: t}
}

func (l *testLogger) Debugf(format string, args ...any)    { l.t.Logf("DEBUG: "+format, args...) }
func (l *testLogger) Infof(format string, args ...any)     { l.t.Logf("INFO: "+format, args...) }
func (l *testLogger) Warnf(format string, args ...any)     { l.t.Logf("WARN: "+format, args...) }
func (l *testLogger) Errorf(format string, args ...any)    { l.t.Logf("ERROR: "+format, args...) }
func (l *testLogger) Criticalf(format string, args ...any) { l.t.Logf("CRITICAL: "+format, args...) }
func (l *testLogger) Flush()                               {}
