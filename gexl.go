/*
Package gexl is an engine for safely evaluating restricted JavaScript-like
expressions against a host-controlled capability whitelist.

Consists of subpackages:
  - source: defines source text and the cursor consumed by matchers;
  - grammar: combinator-based grammar engine with backtracking, named rules, and per-instance caches;
  - gate: capability whitelist validating identifiers and call signatures at compile time;
  - compile: translates syntax nodes into re-invokable closures;
  - lang: the restricted expression grammar and the parse/compile/eval driver;
  - cmd/gexl: interactive console for compiled expressions.

Typical usage is:

1. Register the objects and callees expressions are allowed to touch in a
gate.Whitelist (optionally narrowed further by a YAML policy file).

2. Compile an expression once with lang.Compile. Compilation parses the
source, validates every identifier root and call signature through the
whitelist, and produces a closure tree.

3. Evaluate the compiled expression any number of times, each time with a
fresh binding table and optional call-time arguments forwarded to the
whitelist accessors.
*/
package gexl

import (
	"fmt"
)

// Error classes used by subpackages, each class contains up to 99 error codes:
const (
	GrammarErrors = 1   // used by grammar: engine misuse (unknown rule references, bad descriptors)
	SyntaxErrors  = 101 // used by grammar: source text does not match the grammar
	CompileErrors = 201 // used by compile: unknown node kinds and operators
	GateErrors    = 301 // used by gate: unauthorized identifiers and calls
	EvalErrors    = 401 // used by compile: runtime faults while evaluating a closure
)

// Error is the error type used by gexl subpackages.
type Error struct {
	// Code contains non-zero error code.
	Code int

	// Message contains non-empty error message including source name and position information if provided.
	Message string

	// SourceName contains source name that caused this error or empty string.
	SourceName string

	// Line contains line number in source text or 0.
	Line int

	// Col contains column number in source text or 0.
	Col int
}

// SourcePos is used to retrieve source name and position information when constructing an error;
// source.Pos implements this interface.
type SourcePos interface {
	// SourceName returns source name or empty string.
	SourceName() string
	// Line returns line number or 0.
	Line() int
	// Col returns column number or 0.
	Col() int
}

// NewError creates new Error structure.
// name, line, and col will be added to error message if provided (non-zero).
func NewError(code int, msg, name string, line, col int) *Error {
	if name != "" && line != 0 && col != 0 {
		msg += fmt.Sprintf(" in %s at line %d col %d", name, line, col)
	}
	return &Error{code, msg, name, line, col}
}

// Error simply returns Error.Message.
func (e *Error) Error() string {
	return e.Message
}

// FormatError creates Error structure with no source and position information.
// params will be added to error message using fmt.Sprintf function.
func FormatError(code int, msg string, params ...any) *Error {
	if len(params) > 0 {
		msg = fmt.Sprintf(msg, params...)
	}
	return NewError(code, msg, "", 0, 0)
}

// FormatErrorPos creates Error structure with source and position information.
// pos must not be nil.
// params will be added to error message using fmt.Sprintf function.
func FormatErrorPos(pos SourcePos, code int, msg string, params ...any) *Error {
	if len(params) > 0 {
		msg = fmt.Sprintf(msg, params...)
	}
	return NewError(code, msg, pos.SourceName(), pos.Line(), pos.Col())
}
