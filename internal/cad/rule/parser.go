package rule

import "fmt"

// maxDepth 表达式最大嵌套深度
const maxDepth = 128

type node interface{}

type (
	numberLit struct{ value float64 }
	stringLit struct{ value string }
	boolLit   struct{ value bool }
	nameRef   struct{ name string }
	unaryOp   struct {
		op string
		x  node
	}
	binaryOp struct {
		op   string
		l, r node
	}
	logicalOp struct {
		op   string // and / or
		l, r node
	}
	notOp struct{ x node }
	// compareChain a < b <= c 这类链式比较
	compareChain struct {
		operands []node
		ops      []string
	}
	callExpr struct {
		fn   string
		args []node
	}
)

type parser struct {
	tokens []token
	pos    int
	depth  int
}

func parse(src string) (node, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	if p.peek().kind == tokEOF {
		return nil, fmt.Errorf("invalid syntax: empty expression")
	}
	n, err := p.orTest()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("invalid syntax: unexpected %q at position %d", tok.text, tok.pos)
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isOp(texts ...string) bool {
	tok := p.peek()
	if tok.kind != tokOp {
		return false
	}
	for _, t := range texts {
		if tok.text == t {
			return true
		}
	}
	return false
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return fmt.Errorf("expression too deeply nested")
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) orTest() (node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	left, err := p.andTest()
	if err != nil {
		return nil, err
	}
	for p.isOp("or") {
		p.next()
		right, err := p.andTest()
		if err != nil {
			return nil, err
		}
		left = &logicalOp{op: "or", l: left, r: right}
	}
	return left, nil
}

func (p *parser) andTest() (node, error) {
	left, err := p.notTest()
	if err != nil {
		return nil, err
	}
	for p.isOp("and") {
		p.next()
		right, err := p.notTest()
		if err != nil {
			return nil, err
		}
		left = &logicalOp{op: "and", l: left, r: right}
	}
	return left, nil
}

func (p *parser) notTest() (node, error) {
	if p.isOp("not") {
		p.next()
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.notTest()
		if err != nil {
			return nil, err
		}
		return &notOp{x: x}, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (node, error) {
	first, err := p.arith()
	if err != nil {
		return nil, err
	}
	if !p.isOp("<", "<=", ">", ">=", "==", "!=") {
		return first, nil
	}
	chain := &compareChain{operands: []node{first}}
	for p.isOp("<", "<=", ">", ">=", "==", "!=") {
		op := p.next().text
		operand, err := p.arith()
		if err != nil {
			return nil, err
		}
		chain.ops = append(chain.ops, op)
		chain.operands = append(chain.operands, operand)
	}
	return chain, nil
}

func (p *parser) arith() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		op := p.next().text
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = &binaryOp{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) term() (node, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for p.isOp("*", "/", "//", "%") {
		op := p.next().text
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = &binaryOp{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) factor() (node, error) {
	if p.isOp("+", "-") {
		op := p.next().text
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.factor()
		if err != nil {
			return nil, err
		}
		return &unaryOp{op: op, x: x}, nil
	}
	return p.power()
}

// power ** 右结合，且比左侧一元负号优先级高：-2**2 == -4
func (p *parser) power() (node, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	if p.isOp("**") {
		p.next()
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		exp, err := p.factor()
		if err != nil {
			return nil, err
		}
		return &binaryOp{op: "**", l: base, r: exp}, nil
	}
	return base, nil
}

func (p *parser) primary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return &numberLit{value: tok.num}, nil
	case tokString:
		return &stringLit{value: tok.text}, nil
	case tokName:
		switch tok.text {
		case "True", "true":
			return &boolLit{value: true}, nil
		case "False", "false":
			return &boolLit{value: false}, nil
		}
		if p.peek().kind == tokLParen {
			p.next()
			return p.call(tok.text)
		}
		return &nameRef{name: tok.text}, nil
	case tokLParen:
		inner, err := p.orTest()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("invalid syntax: expected ')' at position %d", closing.pos)
		}
		return inner, nil
	case tokEOF:
		return nil, fmt.Errorf("invalid syntax: unexpected end of expression")
	default:
		return nil, fmt.Errorf("invalid syntax: unexpected %q at position %d", tok.text, tok.pos)
	}
}

func (p *parser) call(fn string) (node, error) {
	c := &callExpr{fn: fn}
	if p.peek().kind == tokRParen {
		p.next()
		return c, nil
	}
	for {
		arg, err := p.orTest()
		if err != nil {
			return nil, err
		}
		c.args = append(c.args, arg)
		tok := p.next()
		switch tok.kind {
		case tokComma:
			continue
		case tokRParen:
			return c, nil
		default:
			return nil, fmt.Errorf("invalid syntax: expected ',' or ')' at position %d", tok.pos)
		}
	}
}
