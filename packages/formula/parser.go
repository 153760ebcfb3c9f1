package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser builds an AST from a token stream by recursive descent
type Parser struct {
	tokens []Token
	pos    int
}

func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// binaryLevels lists the left-associative infix operators from lowest to
// highest precedence. ^ binds tighter still and is handled by parsePower
// since it associates to the right.
var binaryLevels = []map[string]BinaryOp{
	{
		"=": BinOpEqual, "<>": BinOpNotEqual, "!=": BinOpNotEqual,
		"<": BinOpLess, "<=": BinOpLessEqual, ">": BinOpGreater, ">=": BinOpGreaterEqual,
	},
	{"&": BinOpConcat},
	{"+": BinOpAdd, "-": BinOpSubtract},
	{"*": BinOpMultiply, "/": BinOpDivide, "%": BinOpModulo},
}

// Parse parses the whole token stream into one expression
func (p *Parser) Parse() (ASTNode, error) {
	if len(p.tokens) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeOther, "no tokens to parse")
	}

	node, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, NewSpreadsheetError(ErrorCodeOther, fmt.Sprintf("unexpected token after expression: %s", tok.Value))
	}
	return node, nil
}

// peek returns the current token, EOF once the stream is exhausted
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) parseExpression() (ASTNode, error) {
	return p.parseBinary(0)
}

func (p *Parser) parseBinary(level int) (ASTNode, error) {
	if level == len(binaryLevels) {
		return p.parsePower()
	}

	left, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		op, ok := binaryLevels[level][tok.Value]
		if tok.Type != TokenBinaryOp || !ok {
			return left, nil
		}
		p.pos++

		right, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		left = newBinaryOpNode(op, left, right)
	}
}

func (p *Parser) parsePower() (ASTNode, error) {
	base, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenBinaryOp || tok.Value != "^" {
		return base, nil
	}
	p.pos++

	exponent, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	return newBinaryOpNode(BinOpPower, base, exponent), nil
}

// parseUnary handles any run of prefix + and -
func (p *Parser) parseUnary() (ASTNode, error) {
	tok := p.peek()
	if tok.Type != TokenUnaryPrefixOp {
		return p.parsePrimary()
	}
	p.pos++

	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	op := UnaryOpPlus
	if tok.Value == "-" {
		op = UnaryOpMinus
	}
	return &UnaryOpNode{
		Span:    Span{Start: tok.Pos, End: operand.Extent().End},
		Op:      op,
		Operand: operand,
	}, nil
}

func (p *Parser) parsePrimary() (ASTNode, error) {
	tok := p.peek()
	pos := Span{Start: tok.Pos, End: tok.Pos + len(tok.Value)}

	switch tok.Type {
	case TokenNumber:
		p.pos++
		n, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return nil, NewSpreadsheetError(ErrorCodeNum, fmt.Sprintf("invalid number: %s", tok.Value))
		}
		return &NumberNode{Span: pos, Value: n}, nil
	case TokenString:
		p.pos++
		pos.End += 2
		return &StringNode{Span: pos, Value: tok.Value}, nil
	case TokenCell:
		p.pos++
		return &CellRefNode{Span: pos, Name: tok.Value}, nil
	case TokenRange:
		p.pos++
		return &RangeNode{Span: pos, Token: tok.Value}, nil
	case TokenIdentifier:
		p.pos++
		switch strings.ToUpper(tok.Value) {
		case "TRUE":
			return &BooleanNode{Span: pos, Value: true}, nil
		case "FALSE":
			return &BooleanNode{Span: pos, Value: false}, nil
		}
		return &NameNode{Span: pos, Name: tok.Value}, nil
	case TokenFunction:
		return p.parseFunctionCall()
	case TokenLeftParen:
		p.pos++
		node, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.peek().Type != TokenRightParen {
			return nil, NewSpreadsheetError(ErrorCodeOther, "expected closing parenthesis")
		}
		p.pos++
		return node, nil
	case TokenEOF:
		return nil, NewSpreadsheetError(ErrorCodeOther, "unexpected end of expression")
	}
	return nil, NewSpreadsheetError(ErrorCodeOther, fmt.Sprintf("unexpected token: %s", tok.Value))
}

// parseFunctionCall parses NAME(arg, ...), the argument list may be empty
func (p *Parser) parseFunctionCall() (ASTNode, error) {
	name := p.peek()
	p.pos++
	if p.peek().Type != TokenLeftParen {
		return nil, NewSpreadsheetError(ErrorCodeOther, "expected '(' after function name")
	}
	p.pos++

	call := &FunctionCallNode{Name: name.Value, Args: []ASTNode{}}
	for p.peek().Type != TokenRightParen {
		if len(call.Args) > 0 {
			if p.peek().Type != TokenComma {
				return nil, NewSpreadsheetError(ErrorCodeOther, "expected ',' or ')' in function arguments")
			}
			p.pos++
		}
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if p.peek().Type == TokenEOF {
			return nil, NewSpreadsheetError(ErrorCodeOther, "unexpected end in function arguments")
		}
	}
	closing := p.peek()
	p.pos++

	call.Span = Span{Start: name.Pos, End: closing.Pos + 1}
	return call, nil
}

func newBinaryOpNode(op BinaryOp, left, right ASTNode) *BinaryOpNode {
	return &BinaryOpNode{
		Span:  join(left.Extent(), right.Extent()),
		Op:    op,
		Left:  left,
		Right: right,
	}
}
