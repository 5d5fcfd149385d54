package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/schema"
)

// Context supplies the values a predicate expression can reference: a
// default (unqualified) row, any number of named rows (e.g. "base" and
// a join's right-side name, spec §4.4 "$base"), and the positional
// filter parameters (spec §6 "$1, $2, …").
type Context struct {
	Default schema.Row
	Named   map[string]schema.Row
	Params  []interface{}
}

func (c Context) lookup(qualifier, column string) (interface{}, error) {
	row := c.Default
	if qualifier != "" {
		named, ok := c.Named[qualifier]
		if !ok {
			return nil, bberrors.New(bberrors.PlanErrorKind, "unknown table reference %q in expression", qualifier)
		}
		row = named
	}
	return row[column], nil
}

// Eval parses and evaluates expr as a boolean predicate against ctx.
// This is the tiny reference expression language bundlebase's own
// resolver needs to compile Filter/Join predicates into something
// runnable for tests; the real columnar execution engine's planner and
// expression evaluator are out of scope (spec §1) and may supply a
// fuller dialect behind the same Engine contract.
func Eval(expr string, ctx Context) (bool, error) {
	p := &exprParser{tokens: tokenize(expr), ctx: ctx}
	v, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if !p.atEnd() {
		return false, bberrors.New(bberrors.PlanErrorKind, "unexpected trailing tokens in expression %q", expr)
	}
	b, ok := v.(bool)
	if !ok {
		return false, bberrors.New(bberrors.PlanErrorKind, "expression %q did not evaluate to a boolean", expr)
	}
	return b, nil
}

type tokKind int

const (
	tIdent tokKind = iota
	tQIdent
	tParam
	tNumber
	tString
	tBool
	tOp
	tAnd
	tOr
	tDot
	tLParen
	tRParen
	tEOF
)

type token struct {
	kind tokKind
	text string
}

func tokenize(s string) []token {
	var toks []token
	r := []rune(s)
	i := 0
	for i < len(r) {
		c := r[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '.':
			toks = append(toks, token{tDot, "."})
			i++
		case c == '(':
			toks = append(toks, token{tLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tRParen, ")"})
			i++
		case c == '$':
			j := i + 1
			for j < len(r) && r[j] >= '0' && r[j] <= '9' {
				j++
			}
			if j > i+1 {
				// $1, $2, … positional parameter (spec §6).
				toks = append(toks, token{tParam, string(r[i+1 : j])})
				i = j
				continue
			}
			// $base, $<name> — a qualifier alias (spec §4.4 "the base
			// side is addressable in the predicate as $base"); tokenize
			// as a plain identifier without the leading '$'.
			k := i + 1
			for k < len(r) && isIdentRune(r[k]) {
				k++
			}
			toks = append(toks, token{tIdent, string(r[i+1 : k])})
			i = k
		case c == '"':
			j := i + 1
			for j < len(r) && r[j] != '"' {
				j++
			}
			toks = append(toks, token{tQIdent, string(r[i+1 : j])})
			i = j + 1
		case c == '\'':
			j := i + 1
			for j < len(r) && r[j] != '\'' {
				j++
			}
			toks = append(toks, token{tString, string(r[i+1 : j])})
			i = j + 1
		case c == '=' :
			if i+1 < len(r) && r[i+1] == '=' {
				toks = append(toks, token{tOp, "="})
				i += 2
			} else {
				toks = append(toks, token{tOp, "="})
				i++
			}
		case c == '!' && i+1 < len(r) && r[i+1] == '=':
			toks = append(toks, token{tOp, "!="})
			i += 2
		case c == '>' || c == '<':
			op := string(c)
			i++
			if i < len(r) && r[i] == '=' {
				op += "="
				i++
			}
			toks = append(toks, token{tOp, op})
		case c >= '0' && c <= '9' || (c == '-' && i+1 < len(r) && r[i+1] >= '0' && r[i+1] <= '9'):
			j := i + 1
			for j < len(r) && (r[j] >= '0' && r[j] <= '9' || r[j] == '.') {
				j++
			}
			toks = append(toks, token{tNumber, string(r[i:j])})
			i = j
		default:
			j := i
			for j < len(r) && (isIdentRune(r[j])) {
				j++
			}
			word := string(r[i:j])
			if j == i {
				i++
				continue
			}
			switch strings.ToUpper(word) {
			case "AND":
				toks = append(toks, token{tAnd, word})
			case "OR":
				toks = append(toks, token{tOr, word})
			case "TRUE", "FALSE":
				toks = append(toks, token{tBool, strings.ToUpper(word)})
			default:
				toks = append(toks, token{tIdent, word})
			}
			i = j
		}
	}
	toks = append(toks, token{tEOF, ""})
	return toks
}

func isIdentRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

type exprParser struct {
	tokens []token
	pos    int
	ctx    Context
}

func (p *exprParser) peek() token   { return p.tokens[p.pos] }
func (p *exprParser) atEnd() bool   { return p.peek().kind == tEOF }
func (p *exprParser) advance() token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *exprParser) parseOr() (interface{}, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lb, rb := left.(bool), right.(bool)
		left = lb || rb
	}
	return left, nil
}

func (p *exprParser) parseAnd() (interface{}, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tAnd {
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		lb, rb := left.(bool), right.(bool)
		left = lb && rb
	}
	return left, nil
}

func (p *exprParser) parseComparison() (interface{}, error) {
	if p.peek().kind == tLParen {
		p.advance()
		v, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tRParen {
			return nil, bberrors.New(bberrors.PlanErrorKind, "expected ) in expression")
		}
		p.advance()
		return v, nil
	}
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tOp {
		return nil, bberrors.New(bberrors.PlanErrorKind, "expected comparison operator in expression")
	}
	op := p.advance().text
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return compare(left, op, right)
}

func (p *exprParser) parseOperand() (interface{}, error) {
	t := p.advance()
	switch t.kind {
	case tParam:
		n, err := strconv.Atoi(t.text)
		if err != nil || n < 1 || n > len(p.ctx.Params) {
			return nil, bberrors.New(bberrors.PlanErrorKind, "parameter $%s out of range", t.text)
		}
		return p.ctx.Params[n-1], nil
	case tNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, bberrors.Wrap(bberrors.PlanErrorKind, err, "invalid number %q", t.text)
		}
		return f, nil
	case tString:
		return t.text, nil
	case tBool:
		return t.text == "TRUE", nil
	case tIdent, tQIdent:
		name := t.text
		if p.peek().kind == tDot {
			p.advance()
			col := p.advance()
			return p.ctx.lookup(name, col.text)
		}
		return p.ctx.lookup("", name)
	default:
		return nil, bberrors.New(bberrors.PlanErrorKind, "unexpected token %q in expression", t.text)
	}
}

func compare(left interface{}, op string, right interface{}) (interface{}, error) {
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if lok && rok {
		switch op {
		case "=":
			return lf == rf, nil
		case "!=":
			return lf != rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		}
	}
	ls := fmt.Sprintf("%v", left)
	rs := fmt.Sprintf("%v", right)
	switch op {
	case "=":
		return ls == rs, nil
	case "!=":
		return ls != rs, nil
	case ">":
		return ls > rs, nil
	case ">=":
		return ls >= rs, nil
	case "<":
		return ls < rs, nil
	case "<=":
		return ls <= rs, nil
	}
	return nil, bberrors.New(bberrors.PlanErrorKind, "unsupported comparison operator %q", op)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
