package signature

import (
	"unicode"
	"unicode/utf8"
)

// Lexer produces tokens lazily from a signature or stack trace line.
// Its only state is the read offset, so copying a Lexer value yields an
// independent cursor; Peek relies on that.
type Lexer struct {
	src string
	pos int
}

// NewLexer returns a lexer positioned at the start of src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src}
}

// Source returns the text being lexed.
func (l *Lexer) Source() string { return l.src }

// Offset returns the byte offset of the next unread character.
func (l *Lexer) Offset() int { return l.pos }

// Text returns the source text covered by t.
func (l *Lexer) Text(t Token) string { return t.Text(l.src) }

// Next consumes and returns the next token. ok is false at end of input.
func (l *Lexer) Next() (tok Token, ok bool) {
	if l.pos >= len(l.src) {
		return Token{}, false
	}
	start := l.pos
	if kind, isPunct := punctuation[l.src[start]]; isPunct {
		l.pos++
		return Token{Kind: kind, Start: start, End: l.pos}, true
	}

	r, size := utf8.DecodeRuneInString(l.src[start:])
	var kind TokenKind
	switch {
	case isSpace(r):
		kind = Whitespace
		l.scanWhile(isSpace)
	case unicode.IsDigit(r):
		kind = Number
		l.scanWhile(unicode.IsDigit)
	case isIdentStart(r):
		kind = Identifier
		l.pos += size
		l.scanWhile(isIdentPart)
	default:
		kind = Invalid
		l.pos += size
		l.scanWhile(isInvalid)
	}
	return Token{Kind: kind, Start: start, End: l.pos}, true
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() (Token, bool) {
	probe := *l
	return probe.Next()
}

// PeekIs reports whether the next token has the given kind.
func (l *Lexer) PeekIs(kind TokenKind) bool {
	t, ok := l.Peek()
	return ok && t.Kind == kind
}

// Expect consumes the next token and fails unless it has the given kind.
func (l *Lexer) Expect(kind TokenKind) (Token, error) {
	t, ok := l.Next()
	if !ok {
		return Token{}, &ParseError{
			Kind:     UnexpectedEndOfInput,
			Expected: kind.String(),
			Found:    "EOF",
			Offset:   len(l.src),
			Input:    l.src,
		}
	}
	if t.Kind != kind {
		return t, &ParseError{
			Kind:     UnexpectedToken,
			Expected: kind.String(),
			Found:    describe(t, l.src),
			Offset:   t.Start,
			Input:    l.src,
		}
	}
	return t, nil
}

// ExpectLiteral consumes an identifier whose text must equal literal.
func (l *Lexer) ExpectLiteral(literal string) (Token, error) {
	t, err := l.Expect(Identifier)
	if err != nil {
		return t, err
	}
	if got := l.Text(t); got != literal {
		return t, &ParseError{
			Kind:     UnexpectedToken,
			Expected: "'" + literal + "'",
			Found:    "'" + got + "'",
			Offset:   t.Start,
			Input:    l.src,
		}
	}
	return t, nil
}

// Eat consumes the next token if it has the given kind. It never fails.
func (l *Lexer) Eat(kind TokenKind) bool {
	if !l.PeekIs(kind) {
		return false
	}
	l.Next()
	return true
}

func (l *Lexer) scanWhile(pred func(rune) bool) {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !pred(r) {
			return
		}
		l.pos += size
	}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '.' || r == '/' || r == '+' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isInvalid(r rune) bool {
	if r < utf8.RuneSelf {
		if _, ok := punctuation[byte(r)]; ok {
			return false
		}
	}
	return !isSpace(r) && !unicode.IsDigit(r) && !isIdentStart(r)
}
