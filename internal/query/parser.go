package query

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/buruapp/buru-server/internal/normalize"
)

// SyntaxError reports a malformed query. Pos is the byte offset of the
// offending token and Near its text (empty at end of input).
type SyntaxError struct {
	Pos  int
	Near string
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("syntax error at end of input (position %d): %s", e.Pos, e.Msg)
	}
	return fmt.Sprintf("syntax error at position %d near %q: %s", e.Pos, e.Near, e.Msg)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokLParen
	tokRParen
	tokOr
	tokAnd
	tokNot
)

type token struct {
	kind tokenKind
	text string
	pos  int
	// dangling marks a '-' with nothing attached to it.
	dangling bool
}

// lex splits input into tokens. It accepts any byte sequence.
func lex(input string) []token {
	var toks []token
	i := 0
	for i < len(input) {
		r, size := utf8.DecodeRuneInString(input[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == '|':
			toks = append(toks, token{kind: tokOr, text: "|", pos: i})
			i++
		case r == '-':
			next, _ := utf8.DecodeRuneInString(input[i+1:])
			dangling := i+1 >= len(input) || unicode.IsSpace(next)
			toks = append(toks, token{kind: tokNot, text: "-", pos: i, dangling: dangling})
			i++
		default:
			start := i
			for i < len(input) {
				r, size := utf8.DecodeRuneInString(input[i:])
				if unicode.IsSpace(r) || r == '(' || r == ')' || r == '|' {
					break
				}
				i += size
			}
			word := input[start:i]
			tok := token{kind: tokWord, text: word, pos: start}
			switch word {
			case "AND":
				tok.kind = tokAnd
			case "OR":
				tok.kind = tokOr
			case "NOT":
				tok.kind = tokNot
			}
			toks = append(toks, tok)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(input)})
}

// Limits keeping parse cost and recursion bounded for any input.
const (
	MaxQueryLength = 4096
	maxNesting     = 64
)

const (
	orderPrefix = "order:"
	sincePrefix = "date>="
	untilPrefix = "date<="
)

type parser struct {
	toks []token
	i    int

	depth    int // open parentheses
	negDepth int // enclosing negations

	q          *Query
	directive  *token // first directive seen, for OR conflicts
	sawOrder   bool
	topLevelOr bool
}

// Parse turns a query string into a Query.
//
// Grammar:
//
//	query   = [ or ]
//	or      = and { ("|" | "OR") and }
//	and     = unary { ["AND"] unary }
//	unary   = ("-" | "NOT") unary | primary
//	primary = tag | directive | "(" or ")"
//
// Juxtaposed terms are conjoined and bind tighter than OR. Directives
// (order:KEY, date>=DATE, date<=DATE) are only valid as plain top-level
// conjuncts. Every input yields either a Query or a *SyntaxError.
func Parse(input string) (Query, error) {
	if len(input) > MaxQueryLength {
		return Query{}, &SyntaxError{
			Pos: MaxQueryLength,
			Msg: fmt.Sprintf("query longer than %d bytes", MaxQueryLength),
		}
	}

	q := MatchAll()
	p := &parser{toks: lex(input), q: &q}

	if p.peek().kind == tokEOF {
		return q, nil
	}

	e, err := p.parseOr()
	if err != nil {
		return Query{}, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		if tok.kind == tokRParen {
			return Query{}, p.errorAt(tok, "unmatched ')'")
		}
		return Query{}, p.errorAt(tok, "unexpected token")
	}
	if p.topLevelOr && p.directive != nil {
		return Query{}, p.errorAt(*p.directive, "directives cannot be combined with OR")
	}

	q.Expr = e
	return q, nil
}

func (p *parser) peek() token {
	return p.toks[p.i]
}

func (p *parser) next() token {
	tok := p.toks[p.i]
	if tok.kind != tokEOF {
		p.i++
	}
	return tok
}

func (p *parser) errorAt(tok token, format string, args ...any) *SyntaxError {
	return &SyntaxError{Pos: tok.pos, Near: tok.text, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) tooDeep() bool {
	return p.depth+p.negDepth >= maxNesting
}

func startsTerm(tok token) bool {
	switch tok.kind {
	case tokWord, tokLParen, tokNot:
		return true
	}
	return false
}

func (p *parser) parseOr() (Expr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []Expr{first}

	for p.peek().kind == tokOr {
		if p.depth == 0 {
			p.topLevelOr = true
		}
		p.next()
		if !startsTerm(p.peek()) {
			return nil, p.errorAt(p.peek(), "expected a term after OR")
		}
		e, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, e)
	}

	if len(terms) == 1 {
		return first, nil
	}
	return Or{Terms: terms}, nil
}

func (p *parser) parseAnd() (Expr, error) {
	if !startsTerm(p.peek()) {
		return nil, p.errorAt(p.peek(), "expected a tag, '(' or negation")
	}

	var terms []Expr
	for {
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if e != nil {
			terms = append(terms, e)
		}

		tok := p.peek()
		if tok.kind == tokAnd {
			p.next()
			if !startsTerm(p.peek()) {
				return nil, p.errorAt(p.peek(), "expected a term after AND")
			}
			continue
		}
		if !startsTerm(tok) {
			break
		}
	}

	switch len(terms) {
	case 0:
		// Only directives.
		return And{}, nil
	case 1:
		return terms[0], nil
	default:
		return And{Terms: terms}, nil
	}
}

func (p *parser) parseUnary() (Expr, error) {
	tok := p.peek()
	if tok.kind != tokNot {
		return p.parsePrimary()
	}

	p.next()
	if tok.dangling || !startsTerm(p.peek()) {
		return nil, p.errorAt(tok, "negation with no operand")
	}
	if p.tooDeep() {
		return nil, p.errorAt(tok, "nesting too deep")
	}
	p.negDepth++
	e, err := p.parseUnary()
	p.negDepth--
	if err != nil {
		return nil, err
	}
	return Not{Term: e}, nil
}

// parsePrimary returns a nil Expr for a directive.
func (p *parser) parsePrimary() (Expr, error) {
	tok := p.next()
	switch tok.kind {
	case tokWord:
		if isDirective(tok.text) {
			return nil, p.parseDirective(tok)
		}
		name, err := normalize.TagName(tok.text)
		if err != nil {
			return nil, p.errorAt(tok, "%s", err.Error())
		}
		return Tag{Name: name}, nil

	case tokLParen:
		if p.peek().kind == tokRParen {
			return nil, p.errorAt(tok, "empty group")
		}
		if p.tooDeep() {
			return nil, p.errorAt(tok, "nesting too deep")
		}
		p.depth++
		e, err := p.parseOr()
		p.depth--
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, p.errorAt(tok, "unmatched '('")
		}
		p.next()
		return e, nil

	default:
		return nil, p.errorAt(tok, "expected a tag, '(' or negation")
	}
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func isDirective(word string) bool {
	return hasFoldPrefix(word, orderPrefix) ||
		hasFoldPrefix(word, sincePrefix) ||
		hasFoldPrefix(word, untilPrefix)
}

func (p *parser) parseDirective(tok token) error {
	if p.depth > 0 || p.negDepth > 0 {
		return p.errorAt(tok, "directive must be a top-level term")
	}
	if p.directive == nil {
		p.directive = &tok
	}

	switch {
	case hasFoldPrefix(tok.text, orderPrefix):
		if p.sawOrder {
			return p.errorAt(tok, "duplicate order directive")
		}
		order, ok := ParseOrder(strings.ToLower(tok.text[len(orderPrefix):]))
		if !ok {
			return p.errorAt(tok, "unknown order; expected one of created_at_desc, created_at, filesize, filesize_desc, random")
		}
		p.sawOrder = true
		p.q.Order = order

	case hasFoldPrefix(tok.text, sincePrefix):
		if p.q.Since != nil {
			return p.errorAt(tok, "duplicate date>= directive")
		}
		t, err := parseDate(tok.text[len(sincePrefix):])
		if err != nil {
			return p.errorAt(tok, "%s", err.Error())
		}
		p.q.Since = &t

	case hasFoldPrefix(tok.text, untilPrefix):
		if p.q.Until != nil {
			return p.errorAt(tok, "duplicate date<= directive")
		}
		t, err := parseDate(tok.text[len(untilPrefix):])
		if err != nil {
			return p.errorAt(tok, "%s", err.Error())
		}
		p.q.Until = &t
	}
	return nil
}

// parseDate accepts RFC 3339 timestamps or bare dates (midnight UTC).
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q; expected YYYY-MM-DD or RFC 3339", s)
}
