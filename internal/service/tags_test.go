package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buruapp/buru-server/internal/domain"
	domainerrors "github.com/buruapp/buru-server/internal/errors"
	"github.com/buruapp/buru-server/internal/query"
)

func TestTagService_RefreshDropsToZero(t *testing.T) {
	env := setupTestServices(t)
	ctx := context.Background()
	hashes := seed(t, env, []string{"cat", "outdoor"}, []string{"cat"})

	require.NoError(t, env.tags.Refresh(ctx))
	tags, err := env.tags.List(ctx, TagListRequest{Page: defaultPage()})
	require.NoError(t, err)
	assert.Equal(t, []domain.TagCount{{Name: "cat", Count: 2}, {Name: "outdoor", Count: 1}}, tags)

	for _, h := range hashes {
		_, err := env.images.ReplaceTags(ctx, h, []string{"outdoor"})
		require.NoError(t, err)
	}

	// Cached counts are stale until the next refresh; live counts are not.
	n, err := env.tags.CountByTag(ctx, "cat")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	tags, err = env.tags.List(ctx, TagListRequest{NameComma: "cat", Page: defaultPage()})
	require.NoError(t, err)
	assert.Equal(t, []domain.TagCount{{Name: "cat", Count: 2}}, tags)

	require.NoError(t, env.tags.Refresh(ctx))
	tags, err = env.tags.List(ctx, TagListRequest{Page: defaultPage()})
	require.NoError(t, err)
	assert.Equal(t, []domain.TagCount{{Name: "outdoor", Count: 2}, {Name: "cat", Count: 0}}, tags)
}

func TestTagService_List(t *testing.T) {
	env := setupTestServices(t)
	ctx := context.Background()
	seed(t, env, []string{"cat", "car"}, []string{"cat"}, []string{"dog"})
	require.NoError(t, env.tags.Refresh(ctx))

	tags, err := env.tags.List(ctx, TagListRequest{NameComma: "DOG, car", Page: defaultPage()})
	require.NoError(t, err)
	assert.Equal(t, []domain.TagCount{{Name: "car", Count: 1}, {Name: "dog", Count: 1}}, tags)

	tags, err = env.tags.List(ctx, TagListRequest{Prefix: "Ca", Page: defaultPage()})
	require.NoError(t, err)
	assert.Equal(t, []domain.TagCount{{Name: "cat", Count: 2}, {Name: "car", Count: 1}}, tags)

	tags, err = env.tags.List(ctx, TagListRequest{Contains: "o", Page: query.Pagination{Page: 1, Limit: 1}})
	require.NoError(t, err)
	assert.Equal(t, []domain.TagCount{{Name: "dog", Count: 1}}, tags)

	_, err = env.tags.List(ctx, TagListRequest{NameComma: "a|b", Page: defaultPage()})
	assert.Equal(t, domainerrors.CodeInvalidArgument, domainerrors.CodeOf(err))
}

func TestTagService_Suggest(t *testing.T) {
	env := setupTestServices(t)
	ctx := context.Background()
	seed(t, env, []string{"car", "cat"}, []string{"car"}, []string{"cab", "dog"})
	require.NoError(t, env.tags.Refresh(ctx))

	got, err := env.tags.Suggest(ctx, "CA", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"car", "cab", "cat"}, got)

	got, err = env.tags.Suggest(ctx, "ca", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"car"}, got)

	got, err = env.tags.Suggest(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	_, err = env.tags.Suggest(ctx, "ca", query.MaxLimit+1)
	assert.Equal(t, domainerrors.CodeInvalidArgument, domainerrors.CodeOf(err))

	_, err = env.tags.Suggest(ctx, "c a", 5)
	assert.Equal(t, domainerrors.CodeInvalidArgument, domainerrors.CodeOf(err))
}

func TestTagService_CountByTag(t *testing.T) {
	env := setupTestServices(t)
	ctx := context.Background()
	seed(t, env, []string{"cat"}, []string{"cat", "dog"})

	n, err := env.tags.CountByTag(ctx, "CAT")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = env.tags.CountByTag(ctx, "unknown")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = env.tags.CountByTag(ctx, "")
	assert.Equal(t, domainerrors.CodeInvalidArgument, domainerrors.CodeOf(err))
}
