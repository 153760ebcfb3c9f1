package formula

import (
	"strings"
	"unicode"

	"github.com/vogtb/sheetd/packages/cell"
)

// TokenType classifies a lexical token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenCell
	TokenRange
	TokenFunction
	TokenUnaryPrefixOp
	TokenBinaryOp
	TokenComma
	TokenLeftParen
	TokenRightParen
	TokenIdentifier
	TokenError
)

// BinaryOp is an infix operator in the AST
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpModulo
	BinOpPower
	BinOpConcat
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
)

// UnaryOp is a prefix operator in the AST
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
)

// lexState is what the previous token allows next
type lexState int

const (
	// expecting an operand: at the start, after an operator or a comma
	stateOperand lexState = iota
	// just after "(", where ")" is also allowed for empty argument lists
	stateOpenParen
	// after a complete operand: a literal, reference or ")"
	stateAfterOperand
	// after a bare name, which may still turn into a call
	stateAfterName
)

// accepts reports whether a token of type t may follow in state s
func (s lexState) accepts(t TokenType) bool {
	switch s {
	case stateOperand, stateOpenParen:
		switch t {
		case TokenNumber, TokenString, TokenCell, TokenRange, TokenFunction,
			TokenIdentifier, TokenLeftParen, TokenUnaryPrefixOp:
			return true
		case TokenRightParen:
			return s == stateOpenParen
		}
		return false
	case stateAfterName:
		if t == TokenLeftParen {
			return true
		}
		fallthrough
	case stateAfterOperand:
		switch t {
		case TokenBinaryOp, TokenRightParen, TokenComma, TokenEOF:
			return true
		}
	}
	return false
}

// next returns the state after a token of type t
func (s lexState) next(t TokenType) lexState {
	switch t {
	case TokenNumber, TokenString, TokenCell, TokenRange, TokenRightParen:
		return stateAfterOperand
	case TokenIdentifier, TokenFunction:
		return stateAfterName
	case TokenLeftParen:
		return stateOpenParen
	default:
		return stateOperand
	}
}

// Token is one lexical token. Pos is the rune offset in the input.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// Lexer splits an expression into tokens, checking as it goes that each
// token may follow the previous one
type Lexer struct {
	src   []rune
	pos   int
	state lexState
	depth int
	out   []Token

	// lenient lexers skip order and paren checks; used to enumerate the
	// references of expressions that may not parse
	lenient bool
}

func NewLexer(input string) *Lexer {
	return &Lexer{src: []rune(input)}
}

func newLenientLexer(input string) *Lexer {
	return &Lexer{src: []rune(input), lenient: true}
}

// Tokenize returns every token followed by TokenEOF. on error the tokens
// read so far are returned with it.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		tok := l.scan()
		if tok.Type == TokenError {
			return l.out, NewSpreadsheetError(ErrorCodeOther, tok.Value)
		}
		if tok.Type == TokenEOF {
			break
		}
		if !l.lenient && !l.state.accepts(tok.Type) {
			return l.out, NewSpreadsheetError(ErrorCodeOther, "unexpected token: "+tok.Value)
		}
		l.out = append(l.out, tok)
		l.state = l.state.next(tok.Type)
	}

	if len(l.out) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeOther, "empty expression")
	}
	if !l.lenient {
		if !l.state.accepts(TokenEOF) {
			return l.out, NewSpreadsheetError(ErrorCodeOther, "unexpected end of expression")
		}
		if l.depth > 0 {
			return l.out, NewSpreadsheetError(ErrorCodeOther, "unbalanced parentheses: missing closing parenthesis")
		}
	}
	return append(l.out, Token{Type: TokenEOF, Pos: l.pos}), nil
}

// at returns the rune offset runes ahead, 0 past the end
func (l *Lexer) at(offset int) rune {
	i := l.pos + offset
	if i < 0 || i >= len(l.src) {
		return 0
	}
	return l.src[i]
}

func (l *Lexer) text(from int) string {
	return string(l.src[from:l.pos])
}

func (l *Lexer) scan() Token {
	for l.pos < len(l.src) && unicode.IsSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	start := l.pos
	ch := l.at(0)
	switch {
	case ch == '"':
		return l.scanString()
	case isDigit(ch):
		return l.scanNumber()
	case isLetter(ch) || ch == '_':
		return l.scanName()
	}

	l.pos++
	tok := func(t TokenType, v string) Token { return Token{Type: t, Value: v, Pos: start} }
	switch ch {
	case '(':
		l.depth++
		return tok(TokenLeftParen, "(")
	case ')':
		l.depth--
		if l.depth < 0 && !l.lenient {
			return tok(TokenError, "unexpected closing parenthesis")
		}
		return tok(TokenRightParen, ")")
	case ',':
		return tok(TokenComma, ",")
	case '+', '-':
		if l.state == stateOperand || l.state == stateOpenParen {
			return tok(TokenUnaryPrefixOp, string(ch))
		}
		return tok(TokenBinaryOp, string(ch))
	case '*', '/', '^', '&', '%':
		return tok(TokenBinaryOp, string(ch))
	case '<':
		if op, ok := l.follow('=', "<="); ok {
			return tok(TokenBinaryOp, op)
		}
		if op, ok := l.follow('>', "<>"); ok {
			return tok(TokenBinaryOp, op)
		}
		return tok(TokenBinaryOp, "<")
	case '>':
		if op, ok := l.follow('=', ">="); ok {
			return tok(TokenBinaryOp, op)
		}
		return tok(TokenBinaryOp, ">")
	case '=':
		// = and == both mean equality
		l.follow('=', "")
		return tok(TokenBinaryOp, "=")
	case '!':
		if op, ok := l.follow('=', "!="); ok {
			return tok(TokenBinaryOp, op)
		}
		return tok(TokenError, "unexpected '!'")
	}
	return tok(TokenError, "unexpected character: "+string(ch))
}

// follow consumes next if it is the current rune and reports op
func (l *Lexer) follow(next rune, op string) (string, bool) {
	if l.at(0) != next {
		return "", false
	}
	l.pos++
	return op, true
}

// scanNumber reads an integer literal. digits running into letters, as in
// "1A", are an error rather than a number followed by a name.
func (l *Lexer) scanNumber() Token {
	start := l.pos
	for isDigit(l.at(0)) {
		l.pos++
	}
	if isLetter(l.at(0)) || l.at(0) == '_' {
		for l.pos < len(l.src) && cell.IsIdentifierChar(l.at(0)) {
			l.pos++
		}
		return Token{Type: TokenError, Value: "invalid token: " + l.text(start), Pos: start}
	}
	return Token{Type: TokenNumber, Value: l.text(start), Pos: start}
}

// scanString reads a double-quoted literal; "" inside it is one quote
func (l *Lexer) scanString() Token {
	start := l.pos
	l.pos++

	var sb strings.Builder
	for l.pos < len(l.src) {
		ch := l.at(0)
		l.pos++
		if ch != '"' {
			sb.WriteRune(ch)
			continue
		}
		if l.at(0) != '"' {
			return Token{Type: TokenString, Value: sb.String(), Pos: start}
		}
		sb.WriteRune('"')
		l.pos++
	}
	return Token{Type: TokenError, Value: "unclosed string literal", Pos: start}
}

// scanName reads a function name, range, cell or bare identifier
func (l *Lexer) scanName() Token {
	start := l.pos
	for l.pos < len(l.src) && cell.IsIdentifierChar(l.at(0)) {
		l.pos++
	}
	name := l.text(start)

	switch {
	case l.at(0) == '(':
		// anything called is a function, even names shaped like cells (LOG10)
		return Token{Type: TokenFunction, Value: strings.ToUpper(name), Pos: start}
	case strings.Contains(name, "_"):
		return Token{Type: TokenRange, Value: canonicalRange(name), Pos: start}
	}
	if addr, err := cell.ParseName(name); err == nil {
		return Token{Type: TokenCell, Value: addr.Name(), Pos: start}
	}
	return Token{Type: TokenIdentifier, Value: name, Pos: start}
}

// canonicalRange rewrites each corner of a range token to its canonical cell
// name, so A01_b3 and A1_B3 name the same range. a token that does not split
// into two valid corners is only upper-cased and left for the resolver to
// reject as an address error.
func canonicalRange(token string) string {
	parts := strings.Split(token, "_")
	if len(parts) != 2 {
		return cell.Normalize(token)
	}
	for i, part := range parts {
		addr, err := cell.ParseName(part)
		if err != nil {
			return cell.Normalize(token)
		}
		parts[i] = addr.Name()
	}
	return strings.Join(parts, "_")
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isLetter(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}
