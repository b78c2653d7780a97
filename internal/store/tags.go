package store

import (
	"context"
	"database/sql"

	"github.com/buruapp/buru-server/internal/domain"
	"github.com/buruapp/buru-server/internal/query"
)

// ListTags returns one page of tags with their cached counts, most used first.
// Tags never counted by a refresh report zero.
func (s *Store) ListTags(ctx context.Context, f query.TagFilter, page query.Pagination) ([]domain.TagCount, error) {
	stmt := query.CompileTags(s.dialect, f, page)

	var tags []domain.TagCount
	err := s.withRetry(ctx, "list tags", func(ctx context.Context) error {
		tags = []domain.TagCount{}
		rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var tc domain.TagCount
			if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
				return err
			}
			tags = append(tags, tc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// SuggestTags returns up to limit tag names starting with prefix, ranked
// by cached count then name.
func (s *Store) SuggestTags(ctx context.Context, prefix string, limit int) ([]string, error) {
	stmt := query.CompileSuggest(s.dialect, prefix, limit)

	var names []string
	err := s.withRetry(ctx, "suggest tags", func(ctx context.Context) error {
		names = []string{}
		rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			names = append(names, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// RefreshTagCounts recomputes the tag_counts cache from image_tags in one
// transaction. Every tag gets a row; tags without images count zero.
func (s *Store) RefreshTagCounts(ctx context.Context) error {
	return s.inTx(ctx, "refresh tag counts", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tag_counts`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tag_counts (tag_name, count)
			SELECT t.name, COUNT(it.image_hash)
			FROM tags t LEFT JOIN image_tags it ON it.tag_name = t.name
			GROUP BY t.name`)
		return err
	})
}
