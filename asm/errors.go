// Package asm provides the two-pass MIPS32 assembler. It translates one
// or more source files into an encoded image in simulated memory, a
// symbol table, and an ordered list of statements the execution engine
// uses to map program-counter values back to source.
package asm

import (
	"fmt"
	"strings"
)

// ErrorMessage is one diagnostic produced during assembly.
type ErrorMessage struct {
	File    string
	Line    int
	Column  int
	Message string
	Warning bool
}

func (e ErrorMessage) String() string {
	kind := "Error"
	if e.Warning {
		kind = "Warning"
	}
	return fmt.Sprintf("%s in %s line %d column %d: %s", kind, e.File, e.Line, e.Column, e.Message)
}

// ErrorList accumulates diagnostics across both assembler passes.
// Assembly continues past individual errors so the full list can be
// reported; the assembly as a whole fails if any entry has error
// severity, or any entry at all when warnings are promoted.
type ErrorList struct {
	Messages []ErrorMessage

	warningsAreErrors bool
	errorCount        int
	warningCount      int
}

// NewErrorList creates an empty list. When warningsAreErrors is set,
// warnings count toward assembly failure.
func NewErrorList(warningsAreErrors bool) *ErrorList {
	return &ErrorList{warningsAreErrors: warningsAreErrors}
}

// Add records an error-severity diagnostic.
func (l *ErrorList) Add(file string, line, column int, format string, args ...interface{}) {
	l.Messages = append(l.Messages, ErrorMessage{
		File: file, Line: line, Column: column,
		Message: fmt.Sprintf(format, args...),
	})
	l.errorCount++
}

// AddWarning records a warning-severity diagnostic.
func (l *ErrorList) AddWarning(file string, line, column int, format string, args ...interface{}) {
	l.Messages = append(l.Messages, ErrorMessage{
		File: file, Line: line, Column: column,
		Message: fmt.Sprintf(format, args...), Warning: true,
	})
	l.warningCount++
}

// ErrorCount returns the number of error-severity entries.
func (l *ErrorList) ErrorCount() int { return l.errorCount }

// WarningCount returns the number of warning-severity entries.
func (l *ErrorList) WarningCount() int { return l.warningCount }

// Failed reports whether the assembly as a whole failed.
func (l *ErrorList) Failed() bool {
	if l.errorCount > 0 {
		return true
	}
	return l.warningsAreErrors && l.warningCount > 0
}

// Report renders every diagnostic, one per line.
func (l *ErrorList) Report() string {
	var b strings.Builder
	for _, m := range l.Messages {
		b.WriteString(m.String())
		b.WriteByte('\n')
	}
	return b.String()
}
