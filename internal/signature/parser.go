package signature

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var primitives = map[string]string{
	"float64": "double",
	"float32": "float",
	"int8":    "SByte",
	"int16":   "Int16",
	"int32":   "Int32",
	"int64":   "Int64",
	"bool":    "Boolean",
}

var unsignedPrimitives = map[string]string{
	"int8":  "Byte",
	"int16": "UInt16",
	"int32": "UInt32",
	"int64": "UInt64",
}

// errMethodNameSupplied is returned by Parse when the dialect reads the
// method name from the input but the caller passed one as well.
var errMethodNameSupplied = errors.New("method name is parsed from the input and must not be supplied")

type parser struct {
	lex   *Lexer
	flags GrammarFlags
}

// ParseMapSignature parses a map-file type signature such as
// "string(int32, System.String[])". The map dialect carries no method name,
// so methodName is used verbatim.
func ParseMapSignature(signature, methodName string) (Signature, error) {
	return Parse(signature, MapFile, methodName)
}

// ParseStackTraceLine parses one stack frame line such as
// "at System.Decimal.op_Division(Decimal d1, Decimal d2)".
func ParseStackTraceLine(line string) (Signature, error) {
	return Parse(line, StackTrace, "")
}

// Parse parses input with the given dialect flags. When flags include
// MethodName the method name is read from the input and methodName must be
// empty. Input following the closing parenthesis is ignored.
func Parse(input string, flags GrammarFlags, methodName string) (Signature, error) {
	if flags.Has(MethodName) && methodName != "" {
		return Signature{}, errMethodNameSupplied
	}
	p := &parser{lex: NewLexer(input), flags: flags}
	return p.parseSignature(methodName)
}

func (p *parser) parseSignature(methodName string) (Signature, error) {
	p.lex.Eat(Whitespace)
	if p.flags.Has(AtPrefix) {
		p.skipAtMarker()
	}
	if p.flags.Has(ReturnType) {
		if _, err := p.parseType(); err != nil {
			return Signature{}, err
		}
	}
	if p.flags.Has(MethodName) {
		t, err := p.lex.Expect(Identifier)
		if err != nil {
			return Signature{}, err
		}
		methodName = p.lex.Text(t)
	}
	if _, err := p.lex.Expect(LeftParen); err != nil {
		return Signature{}, err
	}
	args, err := p.parseArgumentList(RightParen)
	if err != nil {
		return Signature{}, err
	}
	if _, err := p.lex.Expect(RightParen); err != nil {
		return Signature{}, err
	}
	return Signature{MethodName: methodName, Args: args}, nil
}

// skipAtMarker consumes a leading "at" marker. Localised runtimes translate
// the word, so any single non-whitespace token followed by whitespace is
// accepted in that position. Lines without a marker are left untouched.
func (p *parser) skipAtMarker() {
	probe := *p.lex
	t, ok := probe.Next()
	if !ok || t.Kind == Whitespace {
		return
	}
	if !probe.Eat(Whitespace) {
		return
	}
	*p.lex = probe
}

// parseArgumentList parses comma separated types up to, but not including,
// the closing token.
func (p *parser) parseArgumentList(closing TokenKind) ([]string, error) {
	args := []string{}
	if p.lex.PeekIs(closing) {
		return args, nil
	}
	for {
		p.lex.Eat(Whitespace)
		arg, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if p.flags.Has(ParameterNames) {
			if _, err := p.lex.Expect(Whitespace); err != nil {
				return nil, err
			}
			if _, err := p.lex.Expect(Identifier); err != nil {
				return nil, err
			}
		}
		args = append(args, lastSegment(arg))

		next, ok := p.lex.Peek()
		if !ok {
			return nil, &ParseError{
				Kind:     UnexpectedEndOfInput,
				Expected: closing.String(),
				Found:    "EOF",
				Offset:   len(p.lex.Source()),
				Input:    p.lex.Source(),
			}
		}
		if next.Kind == closing {
			return args, nil
		}
		if _, err := p.lex.Expect(Comma); err != nil {
			return nil, err
		}
	}
}

// lastSegment strips namespace and enclosing type qualification.
func lastSegment(typeName string) string {
	if i := strings.LastIndexAny(typeName, "./"); i > 0 {
		return typeName[i+1:]
	}
	return typeName
}

func (p *parser) parseType() (string, error) {
	t, err := p.lex.Expect(Identifier)
	if err != nil {
		return "", err
	}
	name := p.lex.Text(t)
	switch name {
	case "native":
		return "", p.unsupported(t, "native-sized primitives are not supported")
	case "unsigned":
		if _, err := p.lex.Expect(Whitespace); err != nil {
			return "", err
		}
		u, err := p.lex.Expect(Identifier)
		if err != nil {
			return "", err
		}
		resolved, ok := unsignedPrimitives[p.lex.Text(u)]
		if !ok {
			return "", p.unsupported(u, fmt.Sprintf("bad unsigned type %q", p.lex.Text(u)))
		}
		name = resolved
	default:
		if resolved, ok := primitives[name]; ok {
			name = resolved
		}
	}

	if p.flags.Has(GenericArity) && p.lex.Eat(Backtick) {
		n, err := p.lex.Expect(Number)
		if err != nil {
			return "", err
		}
		name += "`" + p.lex.Text(n)
	}

	if p.flags.Has(GenericTypes) && p.lex.Eat(LeftAngle) {
		genericArgs, err := p.parseArgumentList(RightAngle)
		if err != nil {
			return "", err
		}
		if _, err := p.lex.Expect(RightAngle); err != nil {
			return "", err
		}
		if !p.flags.Has(GenericArity) {
			name += "`" + strconv.Itoa(len(genericArgs))
		}
	}

	if p.lex.Eat(Slash) {
		nested, err := p.parseType()
		if err != nil {
			return "", err
		}
		name += "+" + nested
	}

	suffix, err := p.parseArraySuffixes()
	if err != nil {
		return "", err
	}
	name += suffix

	if p.lex.Eat(Ampersand) {
		name += "&"
	}
	return name, nil
}

func (p *parser) parseArraySuffixes() (string, error) {
	var b strings.Builder
	for p.lex.PeekIs(LeftBracket) {
		s, err := p.parseArraySuffix()
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// parseArraySuffix parses one of [], [,] or [N...,M...]; the bound form
// normalises to [,].
func (p *parser) parseArraySuffix() (string, error) {
	if _, err := p.lex.Expect(LeftBracket); err != nil {
		return "", err
	}
	p.lex.Eat(Whitespace)
	next, ok := p.lex.Peek()
	if !ok {
		return "", &ParseError{
			Kind:     UnexpectedEndOfInput,
			Expected: "',' or ']'",
			Found:    "EOF",
			Offset:   len(p.lex.Source()),
			Input:    p.lex.Source(),
		}
	}
	switch next.Kind {
	case RightBracket:
		p.lex.Next()
		return "[]", nil
	case Comma:
		p.lex.Next()
		if _, err := p.lex.Expect(RightBracket); err != nil {
			return "", err
		}
		return "[,]", nil
	case Number:
		if err := p.parseBound(); err != nil {
			return "", err
		}
		if _, err := p.lex.Expect(Comma); err != nil {
			return "", err
		}
		if err := p.parseBound(); err != nil {
			return "", err
		}
		if _, err := p.lex.Expect(RightBracket); err != nil {
			return "", err
		}
		return "[,]", nil
	}
	return "", &ParseError{
		Kind: BadArraySuffix,
		Msg: fmt.Sprintf("expected array suffix [] or [,] or [N...,N...], found %s after opening '['",
			describe(next, p.lex.Source())),
		Offset: next.Start,
		Input:  p.lex.Source(),
	}
}

// parseBound parses "N..." inside a multi-dimensional array suffix.
func (p *parser) parseBound() error {
	if _, err := p.lex.Expect(Number); err != nil {
		return err
	}
	for range 3 {
		if _, err := p.lex.Expect(Dot); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) unsupported(t Token, msg string) *ParseError {
	return &ParseError{
		Kind:   UnsupportedConstruct,
		Msg:    msg,
		Offset: t.Start,
		Input:  p.lex.Source(),
	}
}
