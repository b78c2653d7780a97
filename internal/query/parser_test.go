package query

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Expr
	}{
		{"empty", "", And{}},
		{"whitespace only", "  \t\n ", And{}},
		{"single tag", "cat", Tag{"cat"}},
		{"tags are lowercased", "Cat", Tag{"cat"}},
		{"juxtaposition conjoins", "cat outdoor", And{Terms: []Expr{Tag{"cat"}, Tag{"outdoor"}}}},
		{"explicit AND", "cat AND outdoor", And{Terms: []Expr{Tag{"cat"}, Tag{"outdoor"}}}},
		{"dash negates", "cat -outdoor", And{Terms: []Expr{Tag{"cat"}, Not{Tag{"outdoor"}}}}},
		{"NOT negates", "NOT dog", Not{Tag{"dog"}}},
		{"pipe disjunction", "cat | dog", Or{Terms: []Expr{Tag{"cat"}, Tag{"dog"}}}},
		{"pipe without spaces", "cat|dog", Or{Terms: []Expr{Tag{"cat"}, Tag{"dog"}}}},
		{"OR keyword", "cat OR dog", Or{Terms: []Expr{Tag{"cat"}, Tag{"dog"}}}},
		{"AND binds tighter than OR", "a b | c", Or{Terms: []Expr{
			And{Terms: []Expr{Tag{"a"}, Tag{"b"}}},
			Tag{"c"},
		}}},
		{"groups", "cat (cute | -dog)", And{Terms: []Expr{
			Tag{"cat"},
			Or{Terms: []Expr{Tag{"cute"}, Not{Tag{"dog"}}}},
		}}},
		{"negated group", "-(a | b)", Not{Or{Terms: []Expr{Tag{"a"}, Tag{"b"}}}}},
		{"nested groups", "((a))", Tag{"a"}},
		{"double negation", "--a", Not{Not{Tag{"a"}}}},
		{"hyphen inside a tag", "sci-fi", Tag{"sci-fi"}},
		{"lowercase keywords are tags", "and or not", And{Terms: []Expr{Tag{"and"}, Tag{"or"}, Tag{"not"}}}},
		{"three-way or", "a | b | c", Or{Terms: []Expr{Tag{"a"}, Tag{"b"}, Tag{"c"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Expr)
			assert.Equal(t, OrderCreatedAtDesc, q.Order)
		})
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		pos   int
		near  string
	}{
		{"unmatched open", "cat (dog", 4, "("},
		{"unmatched close", "cat dog)", 7, ")"},
		{"empty group", "cat ()", 4, "("},
		{"trailing dash", "cat -", 4, "-"},
		{"detached dash", "- cat", 0, "-"},
		{"dash before close", "(cat -)", 5, "-"},
		{"trailing NOT", "cat NOT", 4, "NOT"},
		{"leading OR", "| cat", 0, "|"},
		{"trailing OR", "cat |", 5, ""},
		{"double OR", "cat OR OR dog", 7, "OR"},
		{"leading AND", "AND cat", 0, "AND"},
		{"trailing AND", "cat AND", 7, ""},
		{"invalid tag", "cat,dog", 0, "cat,dog"},
		{"unknown order", "order:sideways", 0, "order:sideways"},
		{"duplicate order", "order:random order:filesize", 13, "order:filesize"},
		{"directive in group", "(order:random)", 1, "order:random"},
		{"negated directive", "-date>=2024-01-01", 1, "date>=2024-01-01"},
		{"directive with OR", "order:random | cat", 0, "order:random"},
		{"bad date", "date>=yesterday", 0, "date>=yesterday"},
		{"missing date", "date<=", 0, "date<="},
		{"duplicate since", "date>=2024-01-01 date>=2024-02-01", 17, "date>=2024-02-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)

			var syn *SyntaxError
			require.ErrorAs(t, err, &syn)
			assert.Equal(t, tt.pos, syn.Pos)
			assert.Equal(t, tt.near, syn.Near)
			assert.NotEmpty(t, syn.Msg)
		})
	}
}

func TestParse_Directives(t *testing.T) {
	t.Run("order", func(t *testing.T) {
		q, err := Parse("cat order:filesize_desc")
		require.NoError(t, err)
		assert.Equal(t, Tag{"cat"}, q.Expr)
		assert.Equal(t, OrderFileSizeDesc, q.Order)
	})

	t.Run("order key is case-insensitive", func(t *testing.T) {
		q, err := Parse("ORDER:Random")
		require.NoError(t, err)
		assert.Equal(t, OrderRandom, q.Order)
		assert.Equal(t, And{}, q.Expr)
	})

	t.Run("date bounds", func(t *testing.T) {
		q, err := Parse("date>=2024-01-01 cat date<=2025-05-02T01:18:49.678809123Z")
		require.NoError(t, err)
		assert.Equal(t, Tag{"cat"}, q.Expr)
		require.NotNil(t, q.Since)
		require.NotNil(t, q.Until)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *q.Since)
		assert.Equal(t, time.Date(2025, 5, 2, 1, 18, 49, 678809123, time.UTC), *q.Until)
	})

	t.Run("offset dates normalize to UTC", func(t *testing.T) {
		q, err := Parse("date>=2024-01-01T09:00:00+09:00")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *q.Since)
	})

	t.Run("OR inside a group is fine beside directives", func(t *testing.T) {
		q, err := Parse("(cat | dog) order:created_at")
		require.NoError(t, err)
		assert.Equal(t, Or{Terms: []Expr{Tag{"cat"}, Tag{"dog"}}}, q.Expr)
		assert.Equal(t, OrderCreatedAt, q.Order)
	})
}

func TestParse_IsTotal(t *testing.T) {
	inputs := []string{
		"(", ")", "-", "|", "()", ")(", "((((", "))))", "- - -", "a (b | (c -d)",
		"\xff\xfe", "a\x00b", "NOT NOT", "OR", "AND", "a AND AND b", "date>=", "order:",
		"-(", "(-)", "a | (", "a -(b", "é", "　",
		strings.Repeat("(", 900000) + "a",
		strings.Repeat("-", 1000000) + "a",
		strings.Repeat("a ", MaxQueryLength),
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			q, err := Parse(in)
			if err == nil {
				assert.NotNil(t, q.Expr)
			}
		}, "input %q", in)
	}
}

func TestParse_Limits(t *testing.T) {
	t.Run("nesting at the limit parses", func(t *testing.T) {
		in := strings.Repeat("(", maxNesting) + "cat" + strings.Repeat(")", maxNesting)
		q, err := Parse(in)
		require.NoError(t, err)
		assert.Equal(t, Tag{"cat"}, q.Expr)
	})

	deep := []struct {
		name string
		in   string
	}{
		{"parentheses", strings.Repeat("(", maxNesting+1) + "cat" + strings.Repeat(")", maxNesting+1)},
		{"negations", strings.Repeat("-", maxNesting+1) + "cat"},
		{"mixed", strings.Repeat("-(", maxNesting/2+1) + "cat" + strings.Repeat(")", maxNesting/2+1)},
	}
	for _, tt := range deep {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			var se *SyntaxError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "nesting too deep", se.Msg)
		})
	}

	t.Run("long input", func(t *testing.T) {
		_, err := Parse(strings.Repeat("a", MaxQueryLength+1))
		var se *SyntaxError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, MaxQueryLength, se.Pos)
	})
}

func TestSyntaxError_Error(t *testing.T) {
	err := &SyntaxError{Pos: 4, Near: "(", Msg: "unmatched '('"}
	assert.Equal(t, `syntax error at position 4 near "(": unmatched '('`, err.Error())

	eof := &SyntaxError{Pos: 5, Msg: "expected a term after OR"}
	assert.Equal(t, "syntax error at end of input (position 5): expected a term after OR", eof.Error())
}
