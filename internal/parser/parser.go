// Package parser implements C2: tokens → one translation-unit AST, via
// recursive descent with a single token of lookahead.
package parser

import (
	"fmt"
	"strconv"

	"astctool.dev/astc/internal/ast"
	"astctool.dev/astc/internal/token"
)

// Error records one parse-production failure.
// On an unrecoverable mismatch the parser records one Error per
// production and returns nil for that production; the caller (here,
// ParseFile itself) skips one token and retries at the translation-unit
// level to avoid cascading errors.
type Error struct {
	Line, Col int
	Message   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Col, e.Message)
}

// Parser consumes a token vector produced by the lexer (C1).
type Parser struct {
	toks   []token.Token
	pos    int
	errors []*Error
}

// New returns a Parser over toks (normally lexer.Tokenize's output).
func New(toks []token.Token) *Parser {
	return &Parser{toks: toks}
}

// ParseFile parses a full translation unit. It always returns a
// TranslationUnit node; p.Errors() reports any recorded ParseErrors.
// ParseFile never returns nil — errors are recorded
// and recovery skips to the next top-level declaration.
func ParseFile(toks []token.Token) (*Node, []*Error) {
	p := New(toks)
	root := p.parseTranslationUnit()
	return root, p.errors
}

// Node is a re-export convenience alias so callers only import one
// parser package for both the function and its result type.
type Node = ast.Node

func (p *Parser) peek() token.Token { return p.toks[p.pos] }

func (p *Parser) peekAt(off int) token.Token {
	i := p.pos + off
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *Parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) at(k token.Kind) bool { return p.peek().Kind == k }

func (p *Parser) match(ks ...token.Kind) bool {
	for _, k := range ks {
		if p.at(k) {
			return true
		}
	}
	return false
}

func (p *Parser) expect(k token.Kind) (token.Token, bool) {
	if p.at(k) {
		return p.advance(), true
	}
	p.errorf("expected %s, got %s", k, p.peek().Kind)
	return token.Token{}, false
}

func (p *Parser) errorf(format string, args ...interface{}) {
	t := p.peek()
	p.errors = append(p.errors, &Error{Line: t.Line, Col: t.Col, Message: fmt.Sprintf(format, args...)})
}

// Errors returns the parse errors recorded by the most recent parse.
func (p *Parser) Errors() []*Error { return p.errors }

// parseTranslationUnit = declaration*.
func (p *Parser) parseTranslationUnit() *Node {
	root := ast.NewNode(ast.TranslationUnit, 1, 1)
	for !p.at(token.EOF) {
		before := p.pos
		decl := p.parseDeclaration()
		if decl != nil {
			root.List = append(root.List, decl)
		}
		if p.pos == before {
			// No progress: skip one token and retry at the translation-unit
			// level to avoid cascading errors.
			p.advance()
		}
	}
	return root
}

// parseDeclaration = type-specifier identifier ( function-suffix | var-suffix ).
func (p *Parser) parseDeclaration() *Node {
	if !token.IsTypeKeyword(p.peek().Kind) {
		p.errorf("expected type-specifier, got %s", p.peek().Kind)
		return nil
	}
	typeNode := p.parseTypeSpecifier()
	nameTok, ok := p.expect(token.IDENT)
	if !ok {
		return nil
	}
	if p.at(token.LParen) {
		return p.parseFunctionSuffix(typeNode, nameTok)
	}
	return p.parseVarSuffix(typeNode, nameTok)
}

func (p *Parser) parseTypeSpecifier() *Node {
	t := p.advance()
	n := ast.NewNode(ast.TypeSpec, t.Line, t.Col)
	n.Name = t.Kind.String()
	n.PrimType = primTypeOf(t.Kind)
	// Absorb pointer stars onto the type node (e.g. "char *").
	for p.at(token.Star) {
		p.advance()
		ptr := ast.NewNode(ast.TypeSpec, n.Line, n.Col)
		ptr.PrimType = ast.TyPointer
		ptr.X = n
		n = ptr
	}
	return n
}

func primTypeOf(k token.Kind) ast.PrimType {
	switch k {
	case token.KwVoid:
		return ast.TyVoid
	case token.KwChar:
		return ast.TyChar
	case token.KwFloat:
		return ast.TyFloat
	case token.KwDouble:
		return ast.TyDouble
	case token.KwLong, token.KwUnsigned, token.KwSigned:
		return ast.TyLong
	case token.KwStruct, token.KwUnion, token.KwEnum:
		return ast.TyStruct
	default:
		return ast.TyInt
	}
}

// function-suffix = '(' params? ')' ( compound-stmt | ';' ).
// Parameters are parsed in full here — a lighter textual-skip
// approach would lose the parameter types lowering needs.
func (p *Parser) parseFunctionSuffix(retType *Node, nameTok token.Token) *Node {
	fn := ast.NewNode(ast.FuncDecl, nameTok.Line, nameTok.Col)
	fn.Name = nameTok.Lexeme
	fn.Type = retType
	p.expect(token.LParen)
	fn.List = p.parseParamList()
	p.expect(token.RParen)
	if p.at(token.Semicolon) {
		p.advance()
		return fn // declaration only, no body
	}
	fn.X = p.parseCompoundStmt()
	return fn
}

// parseParamList = (type identifier (',' type identifier)*)?
func (p *Parser) parseParamList() []*Node {
	var params []*Node
	if p.at(token.RParen) {
		return params
	}
	if p.at(token.KwVoid) && p.peekAt(1).Kind == token.RParen {
		p.advance()
		return params
	}
	for {
		if !token.IsTypeKeyword(p.peek().Kind) {
			p.errorf("expected parameter type, got %s", p.peek().Kind)
			break
		}
		ptype := p.parseTypeSpecifier()
		nameTok, ok := p.expect(token.IDENT)
		if !ok {
			break
		}
		param := ast.NewNode(ast.Param, nameTok.Line, nameTok.Col)
		param.Name = nameTok.Lexeme
		param.Type = ptype
		params = append(params, param)
		if p.at(token.Comma) {
			p.advance()
			continue
		}
		break
	}
	return params
}

// var-suffix = ( '=' expression )? ';'
func (p *Parser) parseVarSuffix(typ *Node, nameTok token.Token) *Node {
	v := ast.NewNode(ast.VarDecl, nameTok.Line, nameTok.Col)
	v.Name = nameTok.Lexeme
	v.Type = typ
	if p.at(token.Assign) {
		p.advance()
		v.X = p.parseExpression()
	}
	p.expect(token.Semicolon)
	return v
}

// compound-stmt = '{' statement* '}'
func (p *Parser) parseCompoundStmt() *Node {
	lb, _ := p.expect(token.LBrace)
	blk := ast.NewNode(ast.CompoundStmt, lb.Line, lb.Col)
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		before := p.pos
		stmt := p.parseStatement()
		if stmt != nil {
			blk.List = append(blk.List, stmt)
		}
		if p.pos == before {
			p.advance()
		}
	}
	p.expect(token.RBrace)
	return blk
}

// statement = compound-stmt | return-stmt | if-stmt | while-stmt |
//
//	for-stmt | break-stmt | continue-stmt | local var-decl |
//	expression-stmt
func (p *Parser) parseStatement() *Node {
	switch p.peek().Kind {
	case token.LBrace:
		return p.parseCompoundStmt()
	case token.KwReturn:
		return p.parseReturnStmt()
	case token.KwIf:
		return p.parseIfStmt()
	case token.KwWhile:
		return p.parseWhileStmt()
	case token.KwFor:
		return p.parseForStmt()
	case token.KwBreak:
		t := p.advance()
		p.expect(token.Semicolon)
		return ast.NewNode(ast.BreakStmt, t.Line, t.Col)
	case token.KwContinue:
		t := p.advance()
		p.expect(token.Semicolon)
		return ast.NewNode(ast.ContinueStmt, t.Line, t.Col)
	default:
		if token.IsTypeKeyword(p.peek().Kind) {
			typ := p.parseTypeSpecifier()
			nameTok, ok := p.expect(token.IDENT)
			if !ok {
				return nil
			}
			return p.parseVarSuffix(typ, nameTok)
		}
		return p.parseExpressionStmt()
	}
}

func (p *Parser) parseReturnStmt() *Node {
	t := p.advance()
	n := ast.NewNode(ast.ReturnStmt, t.Line, t.Col)
	if !p.at(token.Semicolon) {
		n.X = p.parseExpression()
	}
	p.expect(token.Semicolon)
	return n
}

func (p *Parser) parseIfStmt() *Node {
	t := p.advance()
	n := ast.NewNode(ast.IfStmt, t.Line, t.Col)
	p.expect(token.LParen)
	n.X = p.parseExpression()
	p.expect(token.RParen)
	n.Y = p.parseStatement()
	if p.at(token.KwElse) {
		p.advance()
		n.Z = p.parseStatement()
	}
	return n
}

func (p *Parser) parseWhileStmt() *Node {
	t := p.advance()
	n := ast.NewNode(ast.WhileStmt, t.Line, t.Col)
	p.expect(token.LParen)
	n.X = p.parseExpression()
	p.expect(token.RParen)
	n.Y = p.parseStatement()
	return n
}

// parseForStmt = 'for' '(' simple-stmt? ';' expr? ';' simple-stmt? ')' statement
// The three clauses are stored as: X=init, Z=cond, List[0]=increment
// expression (absent if the clause is empty); the loop body is Y.
func (p *Parser) parseForStmt() *Node {
	t := p.advance()
	n := ast.NewNode(ast.ForStmt, t.Line, t.Col)
	p.expect(token.LParen)
	if !p.at(token.Semicolon) {
		if token.IsTypeKeyword(p.peek().Kind) {
			typ := p.parseTypeSpecifier()
			nameTok, _ := p.expect(token.IDENT)
			n.X = p.parseVarSuffix(typ, nameTok)
		} else {
			n.X = p.parseExpression()
			p.expect(token.Semicolon)
		}
	} else {
		p.expect(token.Semicolon)
	}
	if !p.at(token.Semicolon) {
		n.Z = p.parseExpression()
	}
	p.expect(token.Semicolon)
	if !p.at(token.RParen) {
		inc := p.parseExpression()
		n.List = append(n.List, inc)
	}
	p.expect(token.RParen)
	n.Y = p.parseStatement()
	return n
}

func (p *Parser) parseExpressionStmt() *Node {
	e := p.parseExpression()
	p.expect(token.Semicolon)
	n := ast.NewNode(ast.ExprStmt, e.Line, e.Col)
	n.X = e
	return n
}

// --- Expressions, precedence-climbing over the C99 operator set ---

func (p *Parser) parseExpression() *Node { return p.parseAssignment() }

func (p *Parser) parseAssignment() *Node {
	lhs := p.parseLogicalOr()
	if p.at(token.Assign) {
		t := p.advance()
		rhs := p.parseAssignment()
		n := ast.NewNode(ast.BinaryOp, t.Line, t.Col)
		n.BinOp = ast.OpAssign
		n.X, n.Y = lhs, rhs
		return n
	}
	return lhs
}

func (p *Parser) parseLogicalOr() *Node {
	n := p.parseLogicalAnd()
	for p.at(token.OrOr) {
		t := p.advance()
		rhs := p.parseLogicalAnd()
		n = binNode(t, ast.OpLOr, n, rhs)
	}
	return n
}

func (p *Parser) parseLogicalAnd() *Node {
	n := p.parseBitOr()
	for p.at(token.AndAnd) {
		t := p.advance()
		rhs := p.parseBitOr()
		n = binNode(t, ast.OpLAnd, n, rhs)
	}
	return n
}

func (p *Parser) parseBitOr() *Node {
	n := p.parseBitXor()
	for p.at(token.Pipe) {
		t := p.advance()
		n = binNode(t, ast.OpOr, n, p.parseBitXor())
	}
	return n
}

func (p *Parser) parseBitXor() *Node {
	n := p.parseBitAnd()
	for p.at(token.Caret) {
		t := p.advance()
		n = binNode(t, ast.OpXor, n, p.parseBitAnd())
	}
	return n
}

func (p *Parser) parseBitAnd() *Node {
	n := p.parseEquality()
	for p.at(token.Amp) {
		t := p.advance()
		n = binNode(t, ast.OpAnd, n, p.parseEquality())
	}
	return n
}

func (p *Parser) parseEquality() *Node {
	n := p.parseRelational()
	for p.match(token.Eq, token.Ne) {
		t := p.advance()
		op := ast.OpEq
		if t.Kind == token.Ne {
			op = ast.OpNe
		}
		n = binNode(t, op, n, p.parseRelational())
	}
	return n
}

func (p *Parser) parseRelational() *Node {
	n := p.parseShift()
	for p.match(token.Lt, token.Gt, token.Le, token.Ge) {
		t := p.advance()
		var op ast.BinOp
		switch t.Kind {
		case token.Lt:
			op = ast.OpLt
		case token.Gt:
			op = ast.OpGt
		case token.Le:
			op = ast.OpLe
		default:
			op = ast.OpGe
		}
		n = binNode(t, op, n, p.parseShift())
	}
	return n
}

func (p *Parser) parseShift() *Node {
	n := p.parseAdditive()
	for p.match(token.Shl, token.Shr) {
		t := p.advance()
		op := ast.OpShl
		if t.Kind == token.Shr {
			op = ast.OpShr
		}
		n = binNode(t, op, n, p.parseAdditive())
	}
	return n
}

func (p *Parser) parseAdditive() *Node {
	n := p.parseMultiplicative()
	for p.match(token.Plus, token.Minus) {
		t := p.advance()
		op := ast.OpAdd
		if t.Kind == token.Minus {
			op = ast.OpSub
		}
		n = binNode(t, op, n, p.parseMultiplicative())
	}
	return n
}

func (p *Parser) parseMultiplicative() *Node {
	n := p.parseUnary()
	for p.match(token.Star, token.Slash, token.Percent) {
		t := p.advance()
		var op ast.BinOp
		switch t.Kind {
		case token.Star:
			op = ast.OpMul
		case token.Slash:
			op = ast.OpDiv
		default:
			op = ast.OpMod
		}
		n = binNode(t, op, n, p.parseUnary())
	}
	return n
}

func binNode(t token.Token, op ast.BinOp, x, y *Node) *Node {
	n := ast.NewNode(ast.BinaryOp, t.Line, t.Col)
	n.BinOp = op
	n.X, n.Y = x, y
	return n
}

// parseUnary covers '-', '!', '~', '&', '*' and falls through to
// postfix/primary.
func (p *Parser) parseUnary() *Node {
	switch p.peek().Kind {
	case token.Minus:
		t := p.advance()
		return unNode(t, ast.OpNeg, p.parseUnary())
	case token.Not:
		t := p.advance()
		return unNode(t, ast.OpNot, p.parseUnary())
	case token.Tilde:
		t := p.advance()
		return unNode(t, ast.OpBNot, p.parseUnary())
	case token.Amp:
		t := p.advance()
		return unNode(t, ast.OpAddr, p.parseUnary())
	case token.Star:
		t := p.advance()
		return unNode(t, ast.OpDeref, p.parseUnary())
	case token.LParen:
		if token.IsTypeKeyword(p.peekAt(1).Kind) {
			if closed, ok := p.tryCast(); ok {
				return closed
			}
		}
	}
	return p.parsePostfix()
}

func unNode(t token.Token, op ast.UnOp, x *Node) *Node {
	n := ast.NewNode(ast.UnaryOp, t.Line, t.Col)
	n.UnOp = op
	n.X = x
	return n
}

// tryCast speculatively parses "(" type-specifier ")" unary and backs
// off if it doesn't fit, since '(' also starts a parenthesized
// expression.
func (p *Parser) tryCast() (*Node, bool) {
	save := p.pos
	t := p.advance() // '('
	typ := p.parseTypeSpecifier()
	if !p.at(token.RParen) {
		p.pos = save
		return nil, false
	}
	p.advance()
	operand := p.parseUnary()
	n := ast.NewNode(ast.CastExpr, t.Line, t.Col)
	n.Type = typ
	n.PrimType = typ.PrimType
	n.X = operand
	return n, true
}

// parsePostfix handles call/member/arrow/subscript chaining on a primary.
func (p *Parser) parsePostfix() *Node {
	n := p.parsePrimary()
	for {
		switch p.peek().Kind {
		case token.LParen:
			n = p.parseCallTail(n)
		case token.Dot:
			t := p.advance()
			field, _ := p.expect(token.IDENT)
			m := ast.NewNode(ast.MemberAccess, t.Line, t.Col)
			m.X = n
			m.Name = field.Lexeme
			n = m
		case token.Arrow:
			t := p.advance()
			field, _ := p.expect(token.IDENT)
			m := ast.NewNode(ast.PtrMemberAccess, t.Line, t.Col)
			m.X = n
			m.Name = field.Lexeme
			n = m
		case token.LBracket:
			t := p.advance()
			idx := p.parseExpression()
			p.expect(token.RBracket)
			sub := ast.NewNode(ast.ArraySubscript, t.Line, t.Col)
			sub.X = n
			sub.Z = idx
			n = sub
		default:
			return n
		}
	}
}

// parseCallTail lowers callee+args; IsHostCall is set true when the
// callee name matches a registered host-library symbol, distinguishing
// a host-library call from a user-defined one. The parser
// doesn't know the FFI registry, so it flags calls to any of the six
// baseline names (printf, malloc, free, strlen, memcpy, exit). No other
// component sets the flag, and lowering does not read it.
func (p *Parser) parseCallTail(callee *Node) *Node {
	t := p.advance() // '('
	n := ast.NewNode(ast.CallExpr, t.Line, t.Col)
	n.X = callee
	if !p.at(token.RParen) {
		for {
			n.List = append(n.List, p.parseExpression())
			if p.at(token.Comma) {
				p.advance()
				continue
			}
			break
		}
	}
	p.expect(token.RParen)
	if callee.Kind == ast.Identifier {
		if _, ok := hostBuiltins[callee.Name]; ok {
			n.IsHostCall = true
		}
	}
	return n
}

var hostBuiltins = map[string]bool{
	"printf": true, "malloc": true, "free": true,
	"strlen": true, "memcpy": true, "exit": true,
}

// parsePrimary = identifier | numeric-literal | string-literal | char-literal | '(' expression ')'
func (p *Parser) parsePrimary() *Node {
	t := p.peek()
	switch t.Kind {
	case token.IDENT:
		p.advance()
		n := ast.NewNode(ast.Identifier, t.Line, t.Col)
		n.Name = t.Lexeme
		return n
	case token.NUMBER:
		p.advance()
		return parseNumericLiteral(t)
	case token.STRING:
		p.advance()
		n := ast.NewNode(ast.StringLiteral, t.Line, t.Col)
		n.StrVal = t.Lexeme
		// The lexer keeps escapes raw; decode them (\n, \t, \", ...) here.
		if s, err := strconv.Unquote(`"` + t.Lexeme + `"`); err == nil {
			n.StrVal = s
		}
		return n
	case token.CHAR:
		p.advance()
		n := ast.NewNode(ast.CharConstant, t.Line, t.Col)
		n.PrimType = ast.TyChar
		if len(t.Lexeme) > 0 {
			n.IntVal = int64(t.Lexeme[0])
		}
		return n
	case token.LParen:
		p.advance()
		e := p.parseExpression()
		p.expect(token.RParen)
		return e
	default:
		p.errorf("expected expression, got %s", t.Kind)
		n := ast.NewNode(ast.IntConstant, t.Line, t.Col)
		n.PrimType = ast.TyInt
		return n
	}
}

// parseNumericLiteral inspects the token text (base-10/base-16, with
// suffix stripping) produced by the lexer and resolves it to a typed
// constant node.
func parseNumericLiteral(t token.Token) *Node {
	text := t.Lexeme
	isFloat := false
	end := len(text)
	for end > 0 && isSuffix(text[end-1]) {
		if text[end-1] == 'f' || text[end-1] == 'F' {
			isFloat = true
		}
		end--
	}
	body := text[:end]
	for _, c := range body {
		if c == '.' || c == 'e' || c == 'E' {
			isFloat = true
		}
	}
	n := ast.NewNode(ast.IntConstant, t.Line, t.Col)
	if isFloat {
		n.Kind = ast.FloatConstant
		n.PrimType = ast.TyDouble
		n.FloatVal = parseFloat(body)
		return n
	}
	n.PrimType = ast.TyInt
	n.IntVal = parseInt(body)
	return n
}

func isSuffix(c byte) bool {
	switch c {
	case 'L', 'l', 'U', 'u', 'F', 'f':
		return true
	}
	return false
}

func parseInt(s string) int64 {
	if len(s) > 1 && (s[1] == 'x' || s[1] == 'X') && s[0] == '0' {
		var v int64
		for i := 2; i < len(s); i++ {
			v = v*16 + int64(hexVal(s[i]))
		}
		return v
	}
	var v int64
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			break
		}
		v = v*10 + int64(s[i]-'0')
	}
	return v
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return 0
}

func parseFloat(s string) float64 {
	var whole, frac float64
	var fracDiv float64 = 1
	i := 0
	neg := false
	if i < len(s) && s[i] == '-' {
		neg = true
		i++
	}
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		whole = whole*10 + float64(s[i]-'0')
		i++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			frac = frac*10 + float64(s[i]-'0')
			fracDiv *= 10
			i++
		}
	}
	val := whole + frac/fracDiv
	exp := 0
	expNeg := false
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			expNeg = s[i] == '-'
			i++
		}
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			exp = exp*10 + int(s[i]-'0')
			i++
		}
	}
	for ; exp > 0; exp-- {
		if expNeg {
			val /= 10
		} else {
			val *= 10
		}
	}
	if neg {
		val = -val
	}
	return val
}
