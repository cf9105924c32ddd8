// Package tlog provides the leveled loggers used across the engine and its
// operator tooling. Debug is silent by default; enable it with SetDebug.
package tlog

import (
	"io"
	"log"
	"os"
)

var (
	// Debug logs are off by default. Enable with SetDebug(true).
	Debug = log.New(io.Discard, "DEBUG ", 0)
	// Info logs go to stdout.
	Info = log.New(os.Stdout, "", 0)
	// Warn logs go to stderr, prefixed so they stand out in mixed output.
	Warn = log.New(os.Stderr, "WARN  ", 0)
	// Fatal logs go to stderr. Callers decide whether to os.Exit after
	// logging; the logger itself never exits.
	Fatal = log.New(os.Stderr, "FATAL ", 0)
)

// SetDebug turns the Debug logger on or off.
func SetDebug(on bool) {
	if on {
		Debug.SetOutput(os.Stderr)
	} else {
		Debug.SetOutput(io.Discard)
	}
}
