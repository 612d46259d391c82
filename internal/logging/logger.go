// Package logging provides colored, leveled log output for the cull-engine CLI.
//
// Every line is written to stderr (or the writer installed with SetOutput) so
// that stdout stays free for JSON results. Debug output is suppressed unless
// verbose mode is enabled via SetVerbose(true).
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	mu      sync.Mutex
	out     io.Writer = os.Stderr
	verbose bool
)

// Color printers for each log level.
var (
	infoPrefix      = color.New(color.FgBlue).SprintFunc()
	successPrefix   = color.New(color.FgGreen).SprintFunc()
	warnPrefix      = color.New(color.FgYellow).SprintFunc()
	errorPrefix     = color.New(color.FgRed).SprintFunc()
	phasePrefix     = color.New(color.FgCyan).SprintFunc()
	debugPrefix     = color.New(color.FgBlue).SprintFunc()
	componentPrefix = color.New(color.FgMagenta).SprintFunc()
)

// SetVerbose enables or disables Debug output.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// SetOutput redirects all log output and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := out
	out = w
	return prev
}

func write(prefix, component, msg string) {
	mu.Lock()
	defer mu.Unlock()
	line := prefix
	if component != "" {
		line += " " + componentPrefix("["+component+"]")
	}
	fmt.Fprintln(out, line+" "+msg)
}

func isVerbose() bool {
	mu.Lock()
	defer mu.Unlock()
	return verbose
}

// Logger tags every line with the name of the component that produced it.
// The zero value logs without a tag.
type Logger struct {
	component string
}

// New returns a Logger for the named component.
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) name() string {
	if l == nil {
		return ""
	}
	return l.component
}

// Info prints an informational message in blue.
func (l *Logger) Info(format string, args ...any) {
	write(infoPrefix("[INFO]"), l.name(), fmt.Sprintf(format, args...))
}

// Success prints a success message in green.
func (l *Logger) Success(format string, args ...any) {
	write(successPrefix("[SUCCESS]"), l.name(), fmt.Sprintf(format, args...))
}

// Warn prints a warning message in yellow.
func (l *Logger) Warn(format string, args ...any) {
	write(warnPrefix("[WARN]"), l.name(), fmt.Sprintf(format, args...))
}

// Error prints an error message in red.
func (l *Logger) Error(format string, args ...any) {
	write(errorPrefix("[ERROR]"), l.name(), fmt.Sprintf(format, args...))
}

// Debug prints a debug message, only when verbose mode is enabled.
func (l *Logger) Debug(format string, args ...any) {
	if !isVerbose() {
		return
	}
	write(debugPrefix("[DEBUG]"), l.name(), fmt.Sprintf(format, args...))
}

// Info prints an untagged informational message.
func Info(msg string) { write(infoPrefix("[INFO]"), "", msg) }

// Success prints an untagged success message.
func Success(msg string) { write(successPrefix("[SUCCESS]"), "", msg) }

// Warn prints an untagged warning.
func Warn(msg string) { write(warnPrefix("[WARN]"), "", msg) }

// Error prints an untagged error.
func Error(msg string) { write(errorPrefix("[ERROR]"), "", msg) }

// Debug prints an untagged debug message when verbose mode is enabled.
func Debug(msg string) {
	if !isVerbose() {
		return
	}
	write(debugPrefix("[DEBUG]"), "", msg)
}

// Phase prints a section header surrounded by separator lines.
func Phase(msg string) {
	sep := phasePrefix("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(out, sep)
	fmt.Fprintln(out, phasePrefix("[PHASE]")+" "+msg)
	fmt.Fprintln(out, sep)
}

// FormatDuration renders d as "45s", "1m 30s" or "1h 1m 1s", truncated to
// whole seconds.
//
// Examples:
//
//	FormatDuration(0)                => "0s"
//	FormatDuration(90 * time.Second) => "1m 30s"
//	FormatDuration(2 * time.Hour)    => "2h 0m 0s"
func FormatDuration(d time.Duration) string {
	seconds := int(d / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
