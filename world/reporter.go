package world

import (
	"fmt"
	"io"
)

// Reporter receives progress lines while a world runs.
type Reporter interface {
	Printf(format string, args ...interface{})
}

// SilentReporter drops every line.
type SilentReporter struct{}

func (r *SilentReporter) Printf(format string, args ...interface{}) {}

// ColorReporter writes progress to a writer, typically stderr.
type ColorReporter struct {
	Writer io.Writer
}

func (r *ColorReporter) Printf(format string, args ...interface{}) {
	fmt.Fprintf(r.Writer, format, args...)
}
