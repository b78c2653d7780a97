package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/buruapp/buru-server/internal/content"
	"github.com/buruapp/buru-server/internal/domain"
	domainerrors "github.com/buruapp/buru-server/internal/errors"
	"github.com/buruapp/buru-server/internal/query"
)

// ArchiveParams is one archive write.
type ArchiveParams struct {
	Hash content.Hash
	// Metadata is required when the image row may not exist yet. A nil
	// Metadata asserts the image is already archived.
	Metadata *domain.Metadata
	// Source, when non-empty, overwrites the stored source.
	Source string
	// Tags are canonical names added to the image's existing set.
	Tags []string
}

// ArchiveImage inserts the image and its metadata if absent, attaches the
// source and unions Tags into the image's associations, all in one
// transaction. created reports whether this call inserted the image row;
// a concurrent insert of the same hash is not an error.
func (s *Store) ArchiveImage(ctx context.Context, p ArchiveParams) (created bool, err error) {
	hash := string(p.Hash)

	err = s.inTx(ctx, "archive image", func(tx *sql.Tx) error {
		created = false

		if p.Metadata == nil {
			exists, err := imageExists(ctx, tx, s.dialect, hash)
			if err != nil {
				return err
			}
			if !exists {
				return domainerrors.NotFoundf("image %s not found", hash)
			}
		} else {
			res, err := tx.ExecContext(ctx, s.dialect.InsertIgnore("images", "hash"), hash)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			created = n > 0

			m := p.Metadata
			createdAt := m.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now()
			}
			if _, err := tx.ExecContext(ctx,
				s.dialect.InsertIgnore("image_metadatas",
					"image_hash", "width", "height", "format", "color_type", "file_size", "created_at", "duration"),
				hash, m.Width, m.Height, m.Format, m.ColorType, m.FileSize, query.FormatTime(createdAt), nullFloat(m.Duration),
			); err != nil {
				return err
			}
		}

		if p.Source != "" {
			if _, err := s.exec(ctx, tx, `UPDATE images SET source = ? WHERE hash = ?`, p.Source, hash); err != nil {
				return err
			}
		}

		return s.addTags(ctx, tx, hash, p.Tags)
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// addTags ensures each tag exists and links it to hash. Existing links are kept.
func (s *Store) addTags(ctx context.Context, tx *sql.Tx, hash string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	ensureTag := s.dialect.InsertIgnore("tags", "name")
	link := s.dialect.InsertIgnore("image_tags", "image_hash", "tag_name")
	for _, name := range tags {
		if _, err := tx.ExecContext(ctx, ensureTag, name); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, link, hash, name); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceImageTags replaces the full association set of hash with tags.
// Tag rows of dropped associations are kept.
func (s *Store) ReplaceImageTags(ctx context.Context, hash content.Hash, tags []string) error {
	h := string(hash)
	return s.inTx(ctx, "replace image tags", func(tx *sql.Tx) error {
		exists, err := imageExists(ctx, tx, s.dialect, h)
		if err != nil {
			return err
		}
		if !exists {
			return domainerrors.NotFoundf("image %s not found", h)
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM image_tags WHERE image_hash = ?`, h); err != nil {
			return err
		}
		return s.addTags(ctx, tx, h, tags)
	})
}

// DeleteImage removes the image; metadata and associations cascade.
// Tags and cached counts are left alone.
func (s *Store) DeleteImage(ctx context.Context, hash content.Hash) error {
	h := string(hash)
	return s.inTx(ctx, "delete image", func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `DELETE FROM images WHERE hash = ?`, h)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return domainerrors.NotFoundf("image %s not found", h)
		}
		return nil
	})
}

// ImageExists reports whether hash has an image row.
func (s *Store) ImageExists(ctx context.Context, hash content.Hash) (bool, error) {
	var exists bool
	err := s.withRetry(ctx, "image exists", func(ctx context.Context) error {
		var err error
		exists, err = imageExists(ctx, s.db, s.dialect, string(hash))
		return err
	})
	return exists, err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func imageExists(ctx context.Context, q queryer, d query.Dialect, hash string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, d.Rebind(`SELECT 1 FROM images WHERE hash = ?`), hash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetImage returns the full media view of hash.
func (s *Store) GetImage(ctx context.Context, hash content.Hash) (domain.Media, error) {
	h := string(hash)
	var media domain.Media

	err := s.withRetry(ctx, "get image", func(ctx context.Context) error {
		var (
			source    sql.NullString
			createdAt string
			duration  sql.NullFloat64
		)
		media = domain.Media{Hash: hash}
		m := &media.Metadata

		err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
			SELECT i.source, m.width, m.height, m.format, m.color_type, m.file_size, m.created_at, m.duration
			FROM images i JOIN image_metadatas m ON m.image_hash = i.hash
			WHERE i.hash = ?`), h).Scan(
			&source, &m.Width, &m.Height, &m.Format, &m.ColorType, &m.FileSize, &createdAt, &duration,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return domainerrors.NotFoundf("image %s not found", h)
		}
		if err != nil {
			return err
		}

		media.Source = source.String
		if m.CreatedAt, err = query.ParseTime(createdAt); err != nil {
			return domainerrors.Wrapf(err, domainerrors.CodeDatabase, "image %s has malformed created_at", h)
		}
		if duration.Valid {
			d := duration.Float64
			m.Duration = &d
		}

		media.Tags, err = imageTags(ctx, s.db, s.dialect, h)
		return err
	})
	if err != nil {
		return domain.Media{}, err
	}
	return media, nil
}

func imageTags(ctx context.Context, q queryer, d query.Dialect, hash string) ([]string, error) {
	rows, err := q.QueryContext(ctx, d.Rebind(`SELECT tag_name FROM image_tags WHERE image_hash = ? ORDER BY tag_name`), hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// ListImageHashes returns one page of hashes matching q in q's order.
func (s *Store) ListImageHashes(ctx context.Context, q query.Query, page query.Pagination) ([]content.Hash, error) {
	stmt, err := query.CompileImages(s.dialect, q, page)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "compile image query")
	}

	var hashes []content.Hash
	err = s.withRetry(ctx, "list images", func(ctx context.Context) error {
		hashes = hashes[:0]
		rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var h string
			if err := rows.Scan(&h); err != nil {
				return err
			}
			hashes = append(hashes, content.Hash(h))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

// CountImages counts the images matching q.
func (s *Store) CountImages(ctx context.Context, q query.Query) (int64, error) {
	stmt, err := query.CompileImageCount(s.dialect, q)
	if err != nil {
		return 0, domainerrors.Wrap(err, domainerrors.CodeInternal, "compile count query")
	}
	return s.count(ctx, "count images", stmt)
}

// CountImagesByTag counts the images currently associated with name.
// Unlike ListTags it does not read the cache.
func (s *Store) CountImagesByTag(ctx context.Context, name string) (int64, error) {
	return s.count(ctx, "count images by tag", query.Statement{
		SQL:  s.dialect.Rebind(`SELECT COUNT(*) FROM image_tags WHERE tag_name = ?`),
		Args: []any{name},
	})
}

func (s *Store) count(ctx context.Context, op string, stmt query.Statement) (int64, error) {
	var n int64
	err := s.withRetry(ctx, op, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&n)
	})
	return n, err
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
