package monitoring

import "log"

// Logf is the diagnostic logger shared by the pipeline, the stores and the
// renderers. It writes through the standard log package until SetLogger
// replaces it.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces Logf. Passing nil mutes all diagnostics.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}

// Component returns a logger that tags every message with "[name] ". Logf is
// resolved at call time so a later SetLogger still applies.
func Component(name string) func(format string, v ...any) {
	prefix := "[" + name + "] "
	return func(format string, v ...any) {
		Logf(prefix+format, v...)
	}
}
