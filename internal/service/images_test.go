package service

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buruapp/buru-server/internal/content"
	domainerrors "github.com/buruapp/buru-server/internal/errors"
	"github.com/buruapp/buru-server/internal/query"
)

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func defaultPage() query.Pagination {
	return query.DefaultPagination()
}

// seed archives a distinct image per tag set and returns their hashes.
func seed(t *testing.T, env *testEnv, tagSets ...[]string) []string {
	t.Helper()
	hashes := make([]string, len(tagSets))
	for i, tags := range tagSets {
		res, err := env.archive.Archive(context.Background(), ArchiveRequest{
			Data: pngBytes(t, 4, 4, uint8(100+i)),
			Tags: tags,
		})
		require.NoError(t, err)
		hashes[i] = string(res.Media.Hash)
	}
	return hashes
}

func TestImageService_Get(t *testing.T) {
	env := setupTestServices(t)
	ctx := context.Background()
	hashes := seed(t, env, []string{"cat"})

	view, err := env.images.Get(ctx, hashes[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"cat"}, view.Tags)

	h := content.Hash(hashes[0])
	assert.Equal(t, env.cdnBase+"/"+content.Location(h, content.Original), view.URLs.Original)
	assert.Equal(t, env.cdnBase+"/"+content.Location(h, content.Sample), view.URLs.Sample)
	assert.Equal(t, env.cdnBase+"/"+content.Location(h, "180x180"), view.URLs.Preview)

	_, err = env.images.Get(ctx, "0000000000000000")
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))

	_, err = env.images.Get(ctx, "not-a-hash")
	assert.Equal(t, domainerrors.CodeInvalidArgument, domainerrors.CodeOf(err))
}

func TestImageService_List(t *testing.T) {
	env := setupTestServices(t)
	ctx := context.Background()
	hashes := seed(t, env,
		[]string{"cat", "outdoor"},
		[]string{"cat"},
		[]string{"dog", "outdoor"},
	)

	page, err := env.images.List(ctx, "cat -outdoor", defaultPage())
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, hashes[1], string(page.Items[0].Hash))

	page, err = env.images.List(ctx, "outdoor", defaultPage())
	require.NoError(t, err)
	got := make([]string, len(page.Items))
	for i, v := range page.Items {
		got[i] = string(v.Hash)
	}
	assert.ElementsMatch(t, []string{hashes[0], hashes[2]}, got)

	page, err = env.images.List(ctx, "order:created_at", query.Pagination{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 2, page.Page)

	n, err := env.images.Count(ctx, "cat | dog")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestImageService_ListSyntaxError(t *testing.T) {
	env := setupTestServices(t)

	_, err := env.images.List(context.Background(), "cat (dog", defaultPage())
	require.Error(t, err)

	var de *domainerrors.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domainerrors.CodeSyntax, de.Code)
	details, ok := de.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 4, details["position"])

	_, err = env.images.Count(context.Background(), ")")
	assert.Equal(t, domainerrors.CodeSyntax, domainerrors.CodeOf(err))
}

func TestImageService_ReplaceTags(t *testing.T) {
	env := setupTestServices(t)
	ctx := context.Background()
	hashes := seed(t, env, []string{"cat", "outdoor"})

	view, err := env.images.ReplaceTags(ctx, hashes[0], []string{"Dog", "indoor", "dog"})
	require.NoError(t, err)
	assert.Equal(t, []string{"dog", "indoor"}, view.Tags)

	view, err = env.images.ReplaceTags(ctx, hashes[0], []string{"cat", "outdoor"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "outdoor"}, view.Tags)

	view, err = env.images.ReplaceTags(ctx, hashes[0], nil)
	require.NoError(t, err)
	assert.Empty(t, view.Tags)

	_, err = env.images.ReplaceTags(ctx, "0000000000000000", []string{"cat"})
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))

	_, err = env.images.ReplaceTags(ctx, hashes[0], []string{"a|b"})
	assert.Equal(t, domainerrors.CodeInvalidArgument, domainerrors.CodeOf(err))
}

func TestImageService_Delete(t *testing.T) {
	env := setupTestServices(t)
	ctx := context.Background()
	hashes := seed(t, env, []string{"cat"}, []string{"cat"})
	h := content.Hash(hashes[0])

	require.NoError(t, env.images.Delete(ctx, hashes[0]))

	_, err := env.images.Get(ctx, hashes[0])
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))
	assert.False(t, env.content.Exists(h, content.Original))

	// The tag survives for the other image.
	n, err := env.tags.CountByTag(ctx, "cat")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	err = env.images.Delete(ctx, hashes[0])
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))
}

func TestImageService_OpenFile(t *testing.T) {
	env := setupTestServices(t)
	data := pngBytes(t, 3, 3, 42)
	res, err := env.archive.Archive(context.Background(), ArchiveRequest{Data: data})
	require.NoError(t, err)

	f, err := env.images.OpenFile("original", string(res.Media.Hash))
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = env.images.OpenFile("180x180", string(res.Media.Hash))
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err), "derivatives are produced elsewhere")

	_, err = env.images.OpenFile("thumbnail", string(res.Media.Hash))
	assert.Equal(t, domainerrors.CodeInvalidArgument, domainerrors.CodeOf(err))
}
