// Package logger provides the structured logging interface shared by
// every long-running task in the network core. Each task is handed its
// own component-scoped logger.
package logger

import "github.com/sirupsen/logrus"

// Logger is the set of methods every task logs through. It mirrors
// logrus.FieldLogger, which already exposes exactly the level/format
// combinations used throughout this codebase.
type Logger = logrus.FieldLogger

var root = logrus.StandardLogger()

// New returns a Logger scoped to a named component, e.g. "advertiser" or
// "receiver 192.168.1.9:17671". Fields are preferred over format strings
// directives in the message when the value is structured.
func New(component string) Logger {
	return root.WithField("component", component)
}

// SetLevel adjusts the verbosity of the process-wide root logger. Exposed so
// the CLI entrypoint can wire --verbose without reaching into logrus
// directly.
func SetLevel(level logrus.Level) {
	root.SetLevel(level)
}
