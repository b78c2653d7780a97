package query

import (
	"fmt"
)

const imagesFrom = "FROM images i JOIN image_metadatas m ON m.image_hash = i.hash"

// CompileImages renders the paginated image-hash query for q.
// Every tag name and bound travels as a bind argument.
func CompileImages(d Dialect, q Query, page Pagination) (Statement, error) {
	b := newBuilder(d)
	b.write("SELECT i.hash ", imagesFrom, " WHERE ")
	if err := b.where(q); err != nil {
		return Statement{}, err
	}

	b.write(" ORDER BY ", orderBy(q.Order), " ")
	limitArg := len(b.args) + 1
	b.args = append(b.args, page.Limit, page.Offset())
	b.write(d.LimitOffset(limitArg, limitArg+1))
	return b.statement(), nil
}

// CompileImageCount renders a COUNT over the images q matches.
// Ordering directives do not affect it.
func CompileImageCount(d Dialect, q Query) (Statement, error) {
	b := newBuilder(d)
	b.write("SELECT COUNT(*) ", imagesFrom, " WHERE ")
	if err := b.where(q); err != nil {
		return Statement{}, err
	}
	return b.statement(), nil
}

// where writes the tag condition and any date bounds.
func (b *builder) where(q Query) error {
	e := q.Expr
	if e == nil {
		e = And{}
	}
	if err := b.expr(e); err != nil {
		return err
	}

	if q.Since != nil {
		b.write(" AND ", b.d.Timestamp("m.created_at"), " >= ", b.d.Timestamp(b.bind(FormatTime(*q.Since))))
	}
	if q.Until != nil {
		b.write(" AND ", b.d.Timestamp("m.created_at"), " <= ", b.d.Timestamp(b.bind(FormatTime(*q.Until))))
	}
	return nil
}

// expr writes e as a boolean SQL condition over the outer image row i.
func (b *builder) expr(e Expr) error {
	switch n := e.(type) {
	case Tag:
		b.write("EXISTS (SELECT 1 FROM image_tags t WHERE t.image_hash = i.hash AND t.tag_name = ", b.bind(n.Name), ")")
		return nil
	case And:
		return b.junction(n.Terms, " AND ", "1 = 1")
	case Or:
		return b.junction(n.Terms, " OR ", "1 = 0")
	case Not:
		b.write("NOT (")
		if err := b.expr(n.Term); err != nil {
			return err
		}
		b.write(")")
		return nil
	default:
		return fmt.Errorf("query: unknown expression node %T", e)
	}
}

// junction joins terms with op. An empty junction renders its identity.
func (b *builder) junction(terms []Expr, op, identity string) error {
	switch len(terms) {
	case 0:
		b.write(identity)
		return nil
	case 1:
		return b.expr(terms[0])
	}

	b.write("(")
	for i, t := range terms {
		if i > 0 {
			b.write(op)
		}
		if err := b.expr(t); err != nil {
			return err
		}
	}
	b.write(")")
	return nil
}

// orderBy returns the ORDER BY list for o. The hash tie-breaker keeps
// pagination stable for identical sort keys.
func orderBy(o Order) string {
	switch o {
	case OrderCreatedAt:
		return "m.created_at ASC, i.hash ASC"
	case OrderFileSize:
		return "m.file_size ASC, i.hash ASC"
	case OrderFileSizeDesc:
		return "m.file_size DESC, i.hash DESC"
	case OrderRandom:
		return "RANDOM()"
	default:
		return "m.created_at DESC, i.hash DESC"
	}
}
