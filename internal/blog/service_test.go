package blog

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leafsii/blog-bff/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var _ Store = (*Service)(nil)
var _ Store = (*MemoryStore)(nil)
var _ Store = (*PostgresStore)(nil)

// countingStore counts the reads that reach the backing store.
type countingStore struct {
	*MemoryStore
	lists atomic.Int32
	gets  atomic.Int32
}

func (c *countingStore) ListArticles(ctx context.Context, page, pageSize int) (*ArticlePage, error) {
	c.lists.Add(1)
	return c.MemoryStore.ListArticles(ctx, page, pageSize)
}

func (c *countingStore) GetArticle(ctx context.Context, id int64) (*Article, error) {
	c.gets.Add(1)
	return c.MemoryStore.GetArticle(ctx, id)
}

func newCachedService(t *testing.T) (*Service, *countingStore, *Author) {
	t.Helper()
	mem, au, _ := seededStore(t)
	store := &countingStore{MemoryStore: mem}

	c := cache.NewInMemory(zap.NewNop().Sugar(), nil)
	t.Cleanup(func() { _ = c.Close() })

	return NewService(store, WithCache(c, time.Minute)), store, au
}

func TestServiceServesReadsFromCache(t *testing.T) {
	svc, store, au := newCachedService(t)
	ctx := context.Background()

	created, err := svc.CreateArticle(ctx, ArticleInput{Title: "cached", Content: "body", AuthorID: au.ID})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		page, err := svc.ListArticles(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, page.Articles, 1)

		a, err := svc.GetArticle(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "cached", a.Title)
	}
	assert.Equal(t, int32(1), store.lists.Load())
	assert.Equal(t, int32(1), store.gets.Load())
}

func TestServiceWritesInvalidate(t *testing.T) {
	svc, store, au := newCachedService(t)
	ctx := context.Background()

	created, err := svc.CreateArticle(ctx, ArticleInput{Title: "v1", Content: "body", AuthorID: au.ID})
	require.NoError(t, err)

	a, err := svc.GetArticle(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", a.Title)

	title := "v2"
	_, err = svc.UpdateArticle(ctx, created.ID, ArticlePatch{Title: &title})
	require.NoError(t, err)

	a, err = svc.GetArticle(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", a.Title)
	assert.Equal(t, int32(2), store.gets.Load())

	require.NoError(t, svc.DeleteArticle(ctx, created.ID))
	_, err = svc.GetArticle(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	page, err := svc.ListArticles(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Articles)
}

func TestServiceDoesNotCacheErrors(t *testing.T) {
	svc, store, _ := newCachedService(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.GetArticle(ctx, 77)
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, int32(2), store.gets.Load())
}

func TestServiceWithoutCache(t *testing.T) {
	mem, au, _ := seededStore(t)
	store := &countingStore{MemoryStore: mem}
	svc := NewService(store)
	ctx := context.Background()

	_, err := svc.CreateArticle(ctx, ArticleInput{Title: "t", Content: "c", AuthorID: au.ID})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := svc.ListArticles(ctx, 1, 10)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), store.lists.Load())

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Articles)
}
