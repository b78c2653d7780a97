// Package query implements the tag query language: the expression tree,
// a total parser, and compilers that render expressions into
// parameterized SQL for a chosen Dialect.
package query

import (
	"strings"
	"time"
)

// Expr is a boolean expression over tag names.
// The set of node types is closed: Tag, And, Or and Not.
type Expr interface {
	expr()
}

// Tag matches images associated with Name.
type Tag struct {
	Name string
}

// And matches when every term matches. An empty And matches everything.
type And struct {
	Terms []Expr
}

// Or matches when any term matches. An empty Or matches nothing.
type Or struct {
	Terms []Expr
}

// Not inverts Term.
type Not struct {
	Term Expr
}

func (Tag) expr() {}
func (And) expr() {}
func (Or) expr()  {}
func (Not) expr() {}

// Order selects the result ordering of an image query.
type Order string

// Supported orderings. Every ordering except OrderRandom breaks ties by hash.
const (
	OrderCreatedAtDesc Order = "created_at_desc"
	OrderCreatedAt     Order = "created_at"
	OrderFileSize      Order = "filesize"
	OrderFileSizeDesc  Order = "filesize_desc"
	OrderRandom        Order = "random"
)

// ParseOrder validates an order key.
func ParseOrder(s string) (Order, bool) {
	switch o := Order(s); o {
	case OrderCreatedAtDesc, OrderCreatedAt, OrderFileSize, OrderFileSizeDesc, OrderRandom:
		return o, true
	}
	return "", false
}

// Query is a parsed query string: the tag expression plus the top-level
// directives that came with it.
type Query struct {
	Expr  Expr
	Order Order
	Since *time.Time // created_at >= Since
	Until *time.Time // created_at <= Until
}

// MatchAll returns the query an empty string parses to.
func MatchAll() Query {
	return Query{Expr: And{}, Order: OrderCreatedAtDesc}
}

// Tags returns the distinct tag names referenced by e, in first-seen order.
func Tags(e Expr) []string {
	seen := make(map[string]struct{})
	var names []string
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case Tag:
			if _, ok := seen[n.Name]; !ok {
				seen[n.Name] = struct{}{}
				names = append(names, n.Name)
			}
		case And:
			for _, t := range n.Terms {
				walk(t)
			}
		case Or:
			for _, t := range n.Terms {
				walk(t)
			}
		case Not:
			walk(n.Term)
		}
	}
	walk(e)
	return names
}

// Format renders e back into query syntax. For any expression produced by
// Parse, parsing the result yields an equivalent expression.
func Format(e Expr) string {
	var b strings.Builder
	format(&b, e)
	return b.String()
}

func format(b *strings.Builder, e Expr) {
	switch n := e.(type) {
	case Tag:
		b.WriteString(n.Name)
	case And:
		for i, t := range n.Terms {
			if i > 0 {
				b.WriteByte(' ')
			}
			formatOperand(b, t, isOr)
		}
	case Or:
		for i, t := range n.Terms {
			if i > 0 {
				b.WriteString(" | ")
			}
			formatOperand(b, t, isOr)
		}
	case Not:
		b.WriteByte('-')
		formatOperand(b, n.Term, func(e Expr) bool { return isOr(e) || isAnd(e) })
	}
}

// formatOperand parenthesizes e when wrap reports it would otherwise bind
// differently.
func formatOperand(b *strings.Builder, e Expr, wrap func(Expr) bool) {
	if wrap(e) {
		b.WriteByte('(')
		format(b, e)
		b.WriteByte(')')
		return
	}
	format(b, e)
}

func isOr(e Expr) bool {
	_, ok := e.(Or)
	return ok
}

func isAnd(e Expr) bool {
	_, ok := e.(And)
	return ok
}
