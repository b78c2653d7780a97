package store

import (
	"context"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/buruapp/buru-server/internal/content"
	"github.com/buruapp/buru-server/internal/domain"
	"github.com/buruapp/buru-server/internal/query"
)

func TestRefreshTagCounts(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		a := archive(t, s, "one", t0, "cat", "outdoor")
		archive(t, s, "two", t0, "cat", "dog")
		archive(t, s, "three", t0, "dog")

		if err := s.RefreshTagCounts(ctx); err != nil {
			t.Fatalf("RefreshTagCounts: %v", err)
		}
		assertCounts(t, s, map[string]int64{"cat": 2, "dog": 2, "outdoor": 1})

		// Drop every cat association; the cache is stale until refreshed.
		if err := s.ReplaceImageTags(ctx, a, []string{"outdoor"}); err != nil {
			t.Fatal(err)
		}
		two := content.Sum([]byte("two"))
		if err := s.ReplaceImageTags(ctx, two, []string{"dog"}); err != nil {
			t.Fatal(err)
		}
		assertCounts(t, s, map[string]int64{"cat": 2, "dog": 2, "outdoor": 1})

		if err := s.RefreshTagCounts(ctx); err != nil {
			t.Fatalf("RefreshTagCounts: %v", err)
		}
		assertCounts(t, s, map[string]int64{"cat": 0, "dog": 2, "outdoor": 1})

		// Idempotent.
		if err := s.RefreshTagCounts(ctx); err != nil {
			t.Fatalf("RefreshTagCounts: %v", err)
		}
		assertCounts(t, s, map[string]int64{"cat": 0, "dog": 2, "outdoor": 1})
	})
}

func assertCounts(t *testing.T, s *Store, want map[string]int64) {
	t.Helper()
	tags, err := s.ListTags(context.Background(), query.TagFilter{}, query.Pagination{Page: 1, Limit: 100})
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	got := make(map[string]int64, len(tags))
	for _, tc := range tags {
		got[tc.Name] = tc.Count
	}
	for name, n := range want {
		if got[name] != n {
			t.Errorf("count(%s) = %d, want %d", name, got[name], n)
		}
	}
}

func TestListTags(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		archive(t, s, "1", t0, "cat", "car", "dog")
		archive(t, s, "2", t0, "cat", "car")
		archive(t, s, "3", t0, "cat", "100%_real")
		if err := s.RefreshTagCounts(ctx); err != nil {
			t.Fatal(err)
		}

		all, err := s.ListTags(ctx, query.TagFilter{}, query.DefaultPagination())
		if err != nil {
			t.Fatalf("ListTags: %v", err)
		}
		want := []domain.TagCount{{Name: "cat", Count: 3}, {Name: "car", Count: 2}, {Name: "100%_real", Count: 1}, {Name: "dog", Count: 1}}
		if !slices.Equal(all, want) {
			t.Errorf("got %v, want %v", all, want)
		}

		page2, err := s.ListTags(ctx, query.TagFilter{}, query.Pagination{Page: 2, Limit: 2})
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(page2, want[2:]) {
			t.Errorf("page 2 = %v, want %v", page2, want[2:])
		}

		byName, _ := s.ListTags(ctx, query.TagFilter{Names: []string{"dog", "car", "missing"}}, query.DefaultPagination())
		if !slices.Equal(byName, []domain.TagCount{{Name: "car", Count: 2}, {Name: "dog", Count: 1}}) {
			t.Errorf("name filter = %v", byName)
		}

		prefix, _ := s.ListTags(ctx, query.TagFilter{Prefix: "ca"}, query.DefaultPagination())
		if !slices.Equal(prefix, []domain.TagCount{{Name: "cat", Count: 3}, {Name: "car", Count: 2}}) {
			t.Errorf("prefix filter = %v", prefix)
		}

		// Wildcards in user input match literally.
		literal, _ := s.ListTags(ctx, query.TagFilter{Contains: "%_"}, query.DefaultPagination())
		if !slices.Equal(literal, []domain.TagCount{{Name: "100%_real", Count: 1}}) {
			t.Errorf("contains filter = %v", literal)
		}
		none, _ := s.ListTags(ctx, query.TagFilter{Prefix: "_a"}, query.DefaultPagination())
		if len(none) != 0 {
			t.Errorf("'_' must not act as a wildcard, got %v", none)
		}
	})
}

func TestListTags_BeforeRefreshCountsZero(t *testing.T) {
	s := newTestStore(t)
	archive(t, s, "1", t0, "b", "a")

	tags, err := s.ListTags(context.Background(), query.TagFilter{}, query.DefaultPagination())
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.TagCount{{Name: "a"}, {Name: "b"}}
	if !slices.Equal(tags, want) {
		t.Errorf("got %v, want %v", tags, want)
	}
}

func TestSuggestTags(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		archive(t, s, "1", t0, "cat", "car", "cab")
		archive(t, s, "2", t0, "car", "dog")
		archive(t, s, "3", t0, "car")
		archive(t, s, "4", t0, "cat")
		if err := s.RefreshTagCounts(ctx); err != nil {
			t.Fatal(err)
		}

		got, err := s.SuggestTags(ctx, "ca", 10)
		if err != nil {
			t.Fatalf("SuggestTags: %v", err)
		}
		if !slices.Equal(got, []string{"car", "cat", "cab"}) {
			t.Errorf("got %v", got)
		}

		got, _ = s.SuggestTags(ctx, "ca", 2)
		if !slices.Equal(got, []string{"car", "cat"}) {
			t.Errorf("limit not applied: %v", got)
		}

		got, _ = s.SuggestTags(ctx, "", 10)
		if !slices.Equal(got, []string{"car", "cat", "cab", "dog"}) {
			t.Errorf("empty prefix should match all: %v", got)
		}

		got, _ = s.SuggestTags(ctx, "zzz", 10)
		if len(got) != 0 {
			t.Errorf("expected no suggestions, got %v", got)
		}
	})
}

// evaluate is the in-memory reference semantics of an expression.
func evaluate(e query.Expr, tags map[string]bool) bool {
	switch n := e.(type) {
	case query.Tag:
		return tags[n.Name]
	case query.And:
		for _, t := range n.Terms {
			if !evaluate(t, tags) {
				return false
			}
		}
		return true
	case query.Or:
		for _, t := range n.Terms {
			if evaluate(t, tags) {
				return true
			}
		}
		return false
	case query.Not:
		return !evaluate(n.Term, tags)
	}
	panic("unknown node")
}

func TestCompiledQueriesMatchReferenceEvaluation(t *testing.T) {
	queries := []string{
		"", "a", "-a", "a b", "a | b", "a -b", "-(a | b)", "(a | b) (c | -d)",
		"a b c d", "a | b | c | d", "--a", "-(a -b) | c", "(a (b | (c -d))) | -(a | c)",
		"e", "-e", "a e | b",
	}
	universe := []string{"a", "b", "c", "d"}

	forEachDialect(t, func(t *testing.T, s *Store) {
		rng := rand.New(rand.NewPCG(1, 2))
		relation := make(map[content.Hash]map[string]bool)
		for i := range 40 {
			var tags []string
			set := make(map[string]bool)
			for _, name := range universe {
				if rng.IntN(2) == 0 {
					tags = append(tags, name)
					set[name] = true
				}
			}
			h := archive(t, s, "ref-"+string(rune('0'+i)), t0, tags...)
			relation[h] = set
		}

		for _, in := range queries {
			q, err := query.Parse(in)
			if err != nil {
				t.Fatalf("Parse(%q): %v", in, err)
			}

			var want []content.Hash
			for h, set := range relation {
				if evaluate(q.Expr, set) {
					want = append(want, h)
				}
			}
			got, err := s.ListImageHashes(context.Background(), q, query.Pagination{Page: 1, Limit: query.MaxLimit})
			if err != nil {
				t.Fatalf("ListImageHashes(%q): %v", in, err)
			}
			n, err := s.CountImages(context.Background(), q)
			if err != nil {
				t.Fatalf("CountImages(%q): %v", in, err)
			}

			slices.Sort(want)
			slices.Sort(got)
			if !slices.Equal(got, want) {
				t.Errorf("query %q: got %d images, reference %d", in, len(got), len(want))
			}
			if n != int64(len(want)) {
				t.Errorf("query %q: count %d, reference %d", in, n, len(want))
			}
		}
	})
}
