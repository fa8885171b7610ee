// Package printer writes the command line's human-readable output.
package printer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
)

// Out and Err receive normal and error output.
var (
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
)

// Success prints a line in green.
func Success(format string, a ...any) {
	green.Fprintf(Out, "✓ %s\n", fmt.Sprintf(format, a...))
}

// Info prints a plain line.
func Info(format string, a ...any) {
	fmt.Fprintf(Out, format+"\n", a...)
}

// Step prints a progress line in cyan.
func Step(format string, a ...any) {
	cyan.Fprintf(Out, "→ %s\n", fmt.Sprintf(format, a...))
}

// Warning prints a line in yellow.
func Warning(format string, a ...any) {
	yellow.Fprintf(Out, "! %s\n", fmt.Sprintf(format, a...))
}

// Link prints a labelled value with the value in bold, e.g. a share link.
func Link(label, value string) {
	fmt.Fprintf(Out, "%s ", label)
	bold.Fprintln(Out, value)
}

// Error prints title, an explanation and any details to Err and returns an
// error carrying only the title, for cobra to exit with.
func Error(title, explanation string, details map[string]string) error {
	red.Fprintf(Err, "%s\n", title)
	if explanation != "" {
		fmt.Fprintf(Err, "\n%s\n", explanation)
	}
	if len(details) > 0 {
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(Err)
		for _, k := range keys {
			fmt.Fprintf(Err, "  %s: %s\n", k, details[k])
		}
	}
	return &printedError{title: title}
}

type printedError struct{ title string }

func (e *printedError) Error() string { return e.title }

// Printed reports whether err came from Error and was already shown.
func Printed(err error) bool {
	var p *printedError
	return errors.As(err, &p)
}
