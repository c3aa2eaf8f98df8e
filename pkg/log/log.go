// Package log defines the logging Component interface shared by every
// pipeline package, grounded on the teacher's comp/core/log Component
// pattern (see comp/core/log/mock_test.go and
// comp/forwarder/defaultforwarder/worker_test.go's logmock.New(t) calls).
package log

// Component is the logging surface every core package depends on. The
// production implementation (package logimpl) wraps go.uber.org/zap; tests
// use package logmock.
type Component interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Criticalf(format string, args ...any)
	Flush()
}
