package signature

import "fmt"

// TokenKind identifies the lexical class of a Token.
type TokenKind int

const (
	Whitespace   TokenKind = iota // runs of ' ' and '\t'
	Identifier                    // letter or '_' followed by letters, digits, '_', '.', '/', '+'
	Number                        // [0-9]+
	LeftParen                     // (
	RightParen                    // )
	LeftAngle                     // <
	RightAngle                    // >
	Backtick                      // `
	LeftBracket                   // [
	RightBracket                  // ]
	Comma                         // ,
	Dot                           // .
	Slash                         // /
	Plus                          // +
	Ampersand                     // &
	Invalid                       // run of runes outside the signature alphabet
)

var tokenNames = map[TokenKind]string{
	Whitespace:   "whitespace",
	Identifier:   "identifier",
	Number:       "number",
	LeftParen:    "'('",
	RightParen:   "')'",
	LeftAngle:    "'<'",
	RightAngle:   "'>'",
	Backtick:     "'`'",
	LeftBracket:  "'['",
	RightBracket: "']'",
	Comma:        "','",
	Dot:          "'.'",
	Slash:        "'/'",
	Plus:         "'+'",
	Ampersand:    "'&'",
	Invalid:      "invalid input",
}

func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// IsPunctuation reports whether k is one of the single-character punctuation kinds.
func (k TokenKind) IsPunctuation() bool {
	return k >= LeftParen && k <= Ampersand
}

// punctuation maps single-byte punctuation to its token kind. It is checked
// before identifiers, so '.', '/' and '+' only lex as punctuation when they
// do not continue an identifier.
var punctuation = map[byte]TokenKind{
	'(': LeftParen,
	')': RightParen,
	'<': LeftAngle,
	'>': RightAngle,
	'`': Backtick,
	'[': LeftBracket,
	']': RightBracket,
	',': Comma,
	'.': Dot,
	'/': Slash,
	'+': Plus,
	'&': Ampersand,
}

// Token is a lexical unit pointing back into the source string.
// Start and End are byte offsets, End exclusive.
type Token struct {
	Kind  TokenKind
	Start int
	End   int
}

// Text returns the slice of src covered by the token.
func (t Token) Text(src string) string {
	return src[t.Start:t.End]
}
