package blog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leafsii/blog-bff/internal/cache"
	"go.uber.org/zap"
)

// Cache key layout. Every read key embeds the current generation, which
// each successful write bumps, so stale entries are never served and simply
// age out.
const (
	keyGeneration = "blog:gen"
	keyArticles   = "blog:articles:g%d:p%d:s%d"
	keyArticle    = "blog:article:g%d:%d"
	keyCategories = "blog:categories:g%d"
	keyAuthors    = "blog:authors:g%d"
	keyStats      = "blog:stats:g%d"
)

// Service is the read-through cached front of a Store.
type Service struct {
	store  Store
	cache  *cache.Cache
	ttl    time.Duration
	logger *zap.SugaredLogger
}

type ServiceOption func(*Service)

// WithCache enables caching of reads for ttl.
func WithCache(c *cache.Cache, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.cache = c
		s.ttl = ttl
	}
}

func WithServiceLogger(l *zap.SugaredLogger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	return s
}

func (s *Service) generation(ctx context.Context) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	gen, err := s.cache.Counter(ctx, keyGeneration)
	if err != nil {
		s.logger.Warnw("Cache generation unavailable; bypassing cache", "error", err)
		return 0, false
	}
	return gen, true
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(ctx, keyGeneration); err != nil {
		s.logger.Warnw("Failed to invalidate blog cache", "error", err)
	}
}

// cached serves key from the cache, or loads and stores it.
func cached[T any](ctx context.Context, s *Service, key func(gen int64) string, load func() (T, error)) (T, error) {
	gen, ok := s.generation(ctx)
	if !ok {
		return load()
	}

	k := key(gen)
	var v T
	err := s.cache.Get(ctx, k, &v)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warnw("Cache read failed", "key", k, "error", err)
	}

	v, err = load()
	if err != nil {
		return v, err
	}
	if err := s.cache.Set(ctx, k, v, s.ttl); err != nil {
		s.logger.Warnw("Cache write failed", "key", k, "error", err)
	}
	return v, nil
}

func (s *Service) ListArticles(ctx context.Context, page, pageSize int) (*ArticlePage, error) {
	page, pageSize = NormalizePage(page, pageSize)
	return cached(ctx, s,
		func(gen int64) string { return fmt.Sprintf(keyArticles, gen, page, pageSize) },
		func() (*ArticlePage, error) { return s.store.ListArticles(ctx, page, pageSize) })
}

func (s *Service) GetArticle(ctx context.Context, id int64) (*Article, error) {
	return cached(ctx, s,
		func(gen int64) string { return fmt.Sprintf(keyArticle, gen, id) },
		func() (*Article, error) { return s.store.GetArticle(ctx, id) })
}

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return cached(ctx, s,
		func(gen int64) string { return fmt.Sprintf(keyCategories, gen) },
		func() ([]Category, error) { return s.store.ListCategories(ctx) })
}

func (s *Service) ListAuthors(ctx context.Context) ([]Author, error) {
	return cached(ctx, s,
		func(gen int64) string { return fmt.Sprintf(keyAuthors, gen) },
		func() ([]Author, error) { return s.store.ListAuthors(ctx) })
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return cached(ctx, s,
		func(gen int64) string { return fmt.Sprintf(keyStats, gen) },
		func() (*Stats, error) { return s.store.Stats(ctx) })
}

func (s *Service) CreateArticle(ctx context.Context, in ArticleInput) (*Article, error) {
	a, err := s.store.CreateArticle(ctx, in)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return a, nil
}

func (s *Service) UpdateArticle(ctx context.Context, id int64, patch ArticlePatch) (*Article, error) {
	a, err := s.store.UpdateArticle(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return a, nil
}

func (s *Service) DeleteArticle(ctx context.Context, id int64) error {
	if err := s.store.DeleteArticle(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) UpsertAuthor(ctx context.Context, in AuthorInput) (*Author, error) {
	au, err := s.store.UpsertAuthor(ctx, in)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return au, nil
}

func (s *Service) UpsertCategory(ctx context.Context, in CategoryInput) (*Category, error) {
	c, err := s.store.UpsertCategory(ctx, in)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return c, nil
}
