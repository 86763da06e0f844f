// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tools

import (
	"context"
	"math"
	"strconv"
	"strings"

	"tutor-platform/pkg/errors"
)

// CalculatorName 计算器工具名
const CalculatorName = "calculator"

const (
	maxExpressionLen = 512
	maxNestingDepth  = 64
)

// Calculator 受限算术表达式求值：仅数字、+ - * / ^ ( )，不解析任何标识符
type Calculator struct{}

// NewCalculator 创建计算器工具
func NewCalculator() *Calculator { return &Calculator{} }

func (c *Calculator) Name() string { return CalculatorName }

func (c *Calculator) Description() string {
	return "Evaluate an arithmetic expression. Supports numbers, + - * / ^ and parentheses only."
}

func (c *Calculator) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"expression": {Type: KindString, Description: "Arithmetic expression, e.g. 12*(3+4)"},
		},
		Required: []string{"expression"},
	}
}

func (c *Calculator) Execute(ctx context.Context, args map[string]any) (any, error) {
	expr, _ := args["expression"].(string)
	v, steps, err := EvaluateSteps(expr)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"expression": strings.TrimSpace(expr),
		"result":     v,
		"formatted":  FormatNumber(v),
		"steps":      steps,
	}, nil
}

// FormatNumber 以 12 位有效数字格式化，消除 0.1+0.2 一类的浮点尾差
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', 12, 64)
}

// Evaluate 求值；非法记号或语法返回 MALFORMED_EXPRESSION，除零返回 DIVISION_BY_ZERO
func Evaluate(expr string) (float64, error) {
	v, _, err := EvaluateSteps(expr)
	return v, err
}

// EvaluateSteps 求值并给出最外层运算的分步说明：
// 首项（或首因子、底数），随后每个运算符与已求值的操作数，最后是结果。
func EvaluateSteps(expr string) (float64, []string, error) {
	if strings.TrimSpace(expr) == "" {
		return 0, nil, malformed("empty expression", 0)
	}
	if len(expr) > maxExpressionLen {
		return 0, nil, malformed("expression too long", maxExpressionLen)
	}
	toks, err := tokenize(expr)
	if err != nil {
		return 0, nil, err
	}
	p := &parser{toks: toks}
	v, err := p.parseExpr()
	if err != nil {
		return 0, nil, err
	}
	if p.peek().kind != tokEOF {
		return 0, nil, malformed("unexpected token "+strconv.Quote(p.peek().text), p.peek().pos)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, nil, malformed("result is not a finite number", 0)
	}
	steps := make([]string, 0, len(p.steps)+2)
	steps = append(steps, "Start with the expression: "+strings.TrimSpace(expr))
	steps = append(steps, p.steps...)
	steps = append(steps, "Result: "+FormatNumber(v))
	return v, steps, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	num  float64
	pos  int
}

func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch >= '0' && ch <= '9' || ch == '.':
			start := i
			i = scanNumber(s, i)
			text := s[start:i]
			n, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, malformed("invalid number "+strconv.Quote(text), start)
			}
			toks = append(toks, token{kind: tokNum, text: text, num: n, pos: start})
		case ch == '*' && i+1 < len(s) && s[i+1] == '*':
			toks = append(toks, token{kind: tokOp, text: "^", pos: i})
			i += 2
		case strings.IndexByte("+-*/^", ch) >= 0:
			toks = append(toks, token{kind: tokOp, text: string(ch), pos: i})
			i++
		case ch == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case ch == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		default:
			return nil, malformed("unsupported character "+strconv.Quote(string(ch)), i)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(s)})
	return toks, nil
}

// scanNumber 读取 digits[.digits][e[+-]digits]
func scanNumber(s string, i int) int {
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
		i++
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && s[j] >= '0' && s[j] <= '9' {
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			i = j
		}
	}
	return i
}

// parser 递归下降：
//
//	expr  := term (('+'|'-') term)*
//	term  := unary (('*'|'/') unary)*
//	unary := ('+'|'-') unary | power
//	power := primary ('^' unary)?
//
// 括号外（exprLevel == 1）的运算记录到 steps；外层运算后完成，覆盖内层记录。
type parser struct {
	toks      []token
	pos       int
	depth     int
	exprLevel int
	steps     []string
}

// record 仅在括号外且确有运算时覆盖 steps
func (p *parser) record(outer bool, first string, ops []string) {
	if !outer || len(ops) == 0 {
		return
	}
	p.steps = append([]string{first}, ops...)
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseExpr() (float64, error) {
	p.exprLevel++
	defer func() { p.exprLevel-- }()
	outer := p.exprLevel == 1

	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	first := "Take the first term: " + FormatNumber(left)
	var ops []string
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			p.record(outer, first, ops)
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		ops = append(ops, t.text+" "+FormatNumber(right))
		if t.text == "+" {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *parser) parseTerm() (float64, error) {
	outer := p.exprLevel == 1
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	first := "Take the first factor: " + FormatNumber(left)
	var ops []string
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/") {
			p.record(outer, first, ops)
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if t.text == "*" {
			ops = append(ops, "Multiply by "+FormatNumber(right))
			left *= right
			continue
		}
		ops = append(ops, "Divide by "+FormatNumber(right))
		if right == 0 {
			return 0, errors.New(errors.CodeDivisionByZero, "division by zero").
				WithDetails(map[string]any{"position": t.pos})
		}
		left /= right
	}
}

func (p *parser) parseUnary() (float64, error) {
	t := p.peek()
	if t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.next()
		if err := p.enter(t.pos); err != nil {
			return 0, err
		}
		v, err := p.parseUnary()
		p.depth--
		if err != nil {
			return 0, err
		}
		if t.text == "-" {
			return -v, nil
		}
		return v, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (float64, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	t := p.peek()
	if t.kind != tokOp || t.text != "^" {
		return base, nil
	}
	p.next()
	exp, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	if base == 0 && exp < 0 {
		return 0, errors.New(errors.CodeDivisionByZero, "division by zero").
			WithDetails(map[string]any{"position": t.pos})
	}
	p.record(p.exprLevel == 1, "Take the base: "+FormatNumber(base),
		[]string{"Raise to the power of " + FormatNumber(exp)})
	return math.Pow(base, exp), nil
}

func (p *parser) parsePrimary() (float64, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return t.num, nil
	case tokLParen:
		if err := p.enter(t.pos); err != nil {
			return 0, err
		}
		v, err := p.parseExpr()
		p.depth--
		if err != nil {
			return 0, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return 0, malformed("missing closing parenthesis", closing.pos)
		}
		return v, nil
	case tokEOF:
		return 0, malformed("unexpected end of expression", t.pos)
	default:
		return 0, malformed("unexpected token "+strconv.Quote(t.text), t.pos)
	}
}

func (p *parser) enter(pos int) error {
	p.depth++
	if p.depth > maxNestingDepth {
		return malformed("expression nested too deeply", pos)
	}
	return nil
}

func malformed(reason string, pos int) error {
	return errors.New(errors.CodeMalformedExpression, reason).
		WithDetails(map[string]any{"position": pos})
}
