package signature

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrorKind classifies a ParseError.
type ErrorKind int

const (
	UnexpectedToken ErrorKind = iota + 1
	UnexpectedEndOfInput
	BadArraySuffix
	UnsupportedConstruct
)

// Sentinels matched by errors.Is against any *ParseError of the same kind.
var (
	ErrUnexpectedToken      = errors.New("unexpected token")
	ErrUnexpectedEndOfInput = errors.New("unexpected end of input")
	ErrBadArraySuffix       = errors.New("bad array suffix")
	ErrUnsupportedConstruct = errors.New("unsupported construct")
)

func (k ErrorKind) String() string {
	switch k {
	case UnexpectedToken:
		return "UnexpectedToken"
	case UnexpectedEndOfInput:
		return "UnexpectedEndOfInput"
	case BadArraySuffix:
		return "BadArraySuffix"
	case UnsupportedConstruct:
		return "UnsupportedConstruct"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case UnexpectedToken:
		return ErrUnexpectedToken
	case UnexpectedEndOfInput:
		return ErrUnexpectedEndOfInput
	case BadArraySuffix:
		return ErrBadArraySuffix
	case UnsupportedConstruct:
		return ErrUnsupportedConstruct
	default:
		return nil
	}
}

// ParseError is returned for every signature that cannot be parsed.
// Offset is the byte offset into Input where the failing token starts
// (len(Input) for end of input).
type ParseError struct {
	Kind     ErrorKind
	Msg      string // overrides the expected/found message when set
	Expected string
	Found    string
	Offset   int
	Input    string
}

func (e *ParseError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = fmt.Sprintf("expected %s, found %s", e.Expected, e.Found)
	}
	msg = fmt.Sprintf("%s at offset %d", msg, e.Offset)
	if e.Input == "" {
		return msg
	}
	return msg + " in\n" + e.Caret()
}

// Unwrap exposes the kind sentinel so callers can use errors.Is.
func (e *ParseError) Unwrap() error {
	return e.Kind.sentinel()
}

// Caret renders the input with a '^' under the failing column.
func (e *ParseError) Caret() string {
	offset := min(max(e.Offset, 0), len(e.Input))
	col := utf8.RuneCountInString(e.Input[:offset])
	return e.Input + "\n" + strings.Repeat(" ", col) + "^"
}

// describe renders a token for diagnostics, e.g. `identifier "Foo"`.
func describe(t Token, src string) string {
	if t.Kind.IsPunctuation() {
		return t.Kind.String()
	}
	return fmt.Sprintf("%s %q", t.Kind, t.Text(src))
}
