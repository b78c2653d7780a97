package query

import (
	"strings"
)

// TagFilter narrows a tag listing. Zero value lists every tag.
// Non-empty criteria are conjoined.
type TagFilter struct {
	Names    []string // exact names, any of
	Prefix   string
	Contains string
}

const tagsFrom = "FROM tags t LEFT JOIN tag_counts c ON c.tag_name = t.name"

// CompileTags renders a tag listing with cached counts, most used first
// and ties broken by name. Rows select (name, count).
func CompileTags(d Dialect, f TagFilter, page Pagination) Statement {
	b := newBuilder(d)
	b.write("SELECT t.name, COALESCE(c.count, 0) ", tagsFrom)
	b.tagFilter(f)
	b.write(" ORDER BY COALESCE(c.count, 0) DESC, t.name ASC ")
	limitArg := len(b.args) + 1
	b.args = append(b.args, page.Limit, page.Offset())
	b.write(d.LimitOffset(limitArg, limitArg+1))
	return b.statement()
}

// CompileSuggest renders the prefix suggestion query: names only, ranked
// by cached count.
func CompileSuggest(d Dialect, prefix string, limit int) Statement {
	b := newBuilder(d)
	b.write("SELECT t.name ", tagsFrom)
	b.tagFilter(TagFilter{Prefix: prefix})
	b.write(" ORDER BY COALESCE(c.count, 0) DESC, t.name ASC LIMIT ", b.bind(limit))
	return b.statement()
}

func (b *builder) tagFilter(f TagFilter) {
	var conds []string
	if len(f.Names) > 0 {
		ph := make([]string, len(f.Names))
		for i, n := range f.Names {
			ph[i] = b.bind(n)
		}
		conds = append(conds, "t.name IN ("+strings.Join(ph, ", ")+")")
	}
	if f.Prefix != "" {
		conds = append(conds, "t.name LIKE "+b.bind(EscapeLike(f.Prefix)+"%")+` ESCAPE '\'`)
	}
	if f.Contains != "" {
		conds = append(conds, "t.name LIKE "+b.bind("%"+EscapeLike(f.Contains)+"%")+` ESCAPE '\'`)
	}
	if len(conds) > 0 {
		b.write(" WHERE ", strings.Join(conds, " AND "))
	}
}

// EscapeLike escapes LIKE wildcards so s matches literally under ESCAPE '\'.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
