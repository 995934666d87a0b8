package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/teranos/artificer/errors"
)

// ErrorContext indicates the environment where query errors will be displayed
type ErrorContext string

const (
	// ErrorContextTerminal renders errors with ANSI colors
	ErrorContextTerminal ErrorContext = "terminal"
	// ErrorContextPlain renders errors without ANSI codes (logs, protocol responses)
	ErrorContextPlain ErrorContext = "plain"
)

// ErrorSeverity indicates the severity level of a query error
type ErrorSeverity string

const (
	SeverityError   ErrorSeverity = "error"
	SeverityWarning ErrorSeverity = "warning"
)

// ErrorKind categorizes query errors for programmatic handling
type ErrorKind string

const (
	ErrorKindSyntax     ErrorKind = "syntax"     // malformed query text
	ErrorKindValidation ErrorKind = "validation" // unknown names, bad arity
	ErrorKindBinding    ErrorKind = "binding"    // parameter count or type mismatch
)

// ParseError is a structured query error
type ParseError struct {
	Err         error
	Kind        ErrorKind
	Severity    ErrorSeverity
	Message     string
	Offset      int    // byte offset into the query, -1 if unknown
	Token       *Token // token that caused the error (optional)
	Query       string // full query text, set by Parse
	Suggestions []string
	Context     map[string]interface{}
	Timestamp   time.Time
}

// Error implements error interface
func (e *ParseError) Error() string {
	return e.FormatError(ErrorContextPlain)
}

// FormatError generates context-appropriate error message
func (e *ParseError) FormatError(ctx ErrorContext) string {
	if ctx == ErrorContextPlain {
		return e.formatPlainError()
	}
	return e.formatTerminalError()
}

func (e *ParseError) formatPlainError() string {
	msg := e.Message
	if e.Token != nil && e.Token.Kind != TokenEOF {
		msg += fmt.Sprintf(" near '%s'", e.Token.Raw)
	}
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" (at offset %d)", e.Offset)
	}
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(". Suggestions: %s", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

func (e *ParseError) formatTerminalError() string {
	var baseMsg string
	switch e.Severity {
	case SeverityWarning:
		baseMsg = pterm.Yellow(e.Message)
	default:
		baseMsg = pterm.Red(e.Message)
	}

	context := fmt.Sprintf("\n\n%s", pterm.LightCyan("Context:"))
	if e.Query != "" && e.Offset >= 0 && e.Offset <= len(e.Query) {
		context += fmt.Sprintf("\n  %s", e.Query)
		context += fmt.Sprintf("\n  %s%s", strings.Repeat(" ", e.Offset), pterm.Yellow("^"))
	}
	if e.Token != nil && e.Token.Kind != TokenEOF {
		context += fmt.Sprintf("\n  %s '%s'", pterm.Yellow("Token:"), e.Token.Raw)
	}

	if len(e.Suggestions) > 0 {
		context += fmt.Sprintf("\n\n%s", pterm.Green("Suggestions:"))
		for _, suggestion := range e.Suggestions {
			context += fmt.Sprintf("\n  • %s", suggestion)
		}
	}

	return fmt.Sprintf("%s%s", baseMsg, context)
}

// Unwrap exposes the classified repository error so errors.Is(err, errors.ErrQuerySyntax) works
func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) subject() string {
	if e.Token != nil {
		return e.Token.Raw
	}
	return ""
}

// NewParseError creates a new ParseError with the given kind and message
func NewParseError(kind ErrorKind, message string) *ParseError {
	e := &ParseError{
		Kind:      kind,
		Severity:  SeverityError,
		Message:   message,
		Offset:    -1,
		Context:   make(map[string]interface{}),
		Timestamp: time.Now(),
	}
	e.classify()
	return e
}

// classify keeps Err pointing at the taxonomy error for the current kind and token
func (e *ParseError) classify() {
	switch e.Kind {
	case ErrorKindSyntax:
		e.Err = errors.NewQuerySyntax(e.subject(), "%s", e.Message)
	case ErrorKindBinding:
		e.Err = errors.NewQueryValidation("binding", e.subject(), "%s", e.Message)
	default:
		e.Err = errors.NewQueryValidation("validation", e.subject(), "%s", e.Message)
	}
}

// WithOffset sets the byte offset where the error occurred
func (e *ParseError) WithOffset(offset int) *ParseError {
	e.Offset = offset
	return e
}

// WithToken sets the token that caused the error
func (e *ParseError) WithToken(token Token) *ParseError {
	e.Token = &token
	e.Offset = token.Offset
	e.classify()
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ParseError) WithSuggestion(suggestion string) *ParseError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithContext adds debug context metadata
func (e *ParseError) WithContext(key string, value interface{}) *ParseError {
	e.Context[key] = value
	return e
}

// WithQuery records the full query text for caret rendering
func (e *ParseError) WithQuery(q string) *ParseError {
	e.Query = q
	return e
}
