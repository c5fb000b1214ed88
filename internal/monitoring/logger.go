// Package monitoring carries the warning logger used by background workers
// and the persistence layer, where a failed write is worth flagging but must
// never fail the caller.
package monitoring

import "log"

// Logf reports a recoverable problem. Defaults to log.Printf; replace it
// with SetLogger to redirect or mute, e.g. in tests.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps the package logger. A nil f installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
