package util

import "github.com/hauke96/sigolo/v2"

// LogFatalBug logs a fatal message for an invariant violation that should
// never happen in practice, then terminates the process.
func LogFatalBug(format string, args ...interface{}) {
	sigolo.Fatalb(1, format+" - this is a bug, please report it", args)
}
