package blog

import (
	"context"
	"sort"
	"sync"
	"time"
)

type articleLink struct {
	categoryID int64
	assignedAt time.Time
}

// MemoryStore keeps the blog in process memory. Values handed out are copies.
type MemoryStore struct {
	mu         sync.RWMutex
	authors    map[int64]Author
	categories map[int64]Category
	articles   map[int64]Article
	links      map[int64][]articleLink

	nextAuthorID   int64
	nextCategoryID int64
	nextArticleID  int64

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		authors:    make(map[int64]Author),
		categories: make(map[int64]Category),
		articles:   make(map[int64]Article),
		links:      make(map[int64][]articleLink),
		now:        time.Now,
	}
}

// hydrate must be called with mu held.
func (s *MemoryStore) hydrate(a Article) Article {
	a.Summary = cloneString(a.Summary)
	a.CoverImage = cloneString(a.CoverImage)
	if au, ok := s.authors[a.AuthorID]; ok {
		au.ArticlesCount = 0
		a.Author = &au
	}
	a.Categories = []Category{}
	for _, l := range s.links[a.ID] {
		if c, ok := s.categories[l.categoryID]; ok {
			c.ArticlesCount = 0
			a.Categories = append(a.Categories, c)
		}
	}
	return a
}

func (s *MemoryStore) ListArticles(ctx context.Context, page, pageSize int) (*ArticlePage, error) {
	page, pageSize = NormalizePage(page, pageSize)

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Article, 0, len(s.articles))
	for _, a := range s.articles {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	result := &ArticlePage{
		Articles:   []Article{},
		Total:      len(all),
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(len(all), pageSize),
	}

	start := (page - 1) * pageSize
	if start >= len(all) {
		return result, nil
	}
	end := min(start+pageSize, len(all))
	for _, a := range all[start:end] {
		result.Articles = append(result.Articles, s.hydrate(a))
	}
	return result, nil
}

func (s *MemoryStore) GetArticle(ctx context.Context, id int64) (*Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.articles[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := s.hydrate(a)
	return &out, nil
}

// checkCategories must be called with mu held.
func (s *MemoryStore) checkCategories(ids []int64) error {
	for _, id := range ids {
		if _, ok := s.categories[id]; !ok {
			return ErrInvalidReference
		}
	}
	return nil
}

// setLinks must be called with mu held.
func (s *MemoryStore) setLinks(articleID int64, categoryIDs []int64, at time.Time) {
	links := make([]articleLink, 0, len(categoryIDs))
	seen := make(map[int64]struct{}, len(categoryIDs))
	for _, id := range categoryIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		links = append(links, articleLink{categoryID: id, assignedAt: at})
	}
	if len(links) == 0 {
		delete(s.links, articleID)
		return
	}
	s.links[articleID] = links
}

func (s *MemoryStore) CreateArticle(ctx context.Context, in ArticleInput) (*Article, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.authors[in.AuthorID]; !ok {
		return nil, ErrInvalidReference
	}
	if err := s.checkCategories(in.CategoryIDs); err != nil {
		return nil, err
	}

	now := s.now()
	s.nextArticleID++
	a := Article{
		ID:         s.nextArticleID,
		Title:      in.Title,
		Content:    in.Content,
		Summary:    cloneString(in.Summary),
		CoverImage: cloneString(in.CoverImage),
		Published:  in.Published,
		AuthorID:   in.AuthorID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.articles[a.ID] = a
	s.setLinks(a.ID, in.CategoryIDs, now)

	out := s.hydrate(a)
	return &out, nil
}

func (s *MemoryStore) UpdateArticle(ctx context.Context, id int64, patch ArticlePatch) (*Article, error) {
	if err := Validate(patch); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.CategoryIDs != nil {
		if err := s.checkCategories(patch.CategoryIDs); err != nil {
			return nil, err
		}
	}

	if patch.Title != nil {
		a.Title = *patch.Title
	}
	if patch.Content != nil {
		a.Content = *patch.Content
	}
	if patch.Summary != nil {
		a.Summary = cloneString(patch.Summary)
	}
	if patch.CoverImage != nil {
		a.CoverImage = cloneString(patch.CoverImage)
	}
	if patch.Published != nil {
		a.Published = *patch.Published
	}
	now := s.now()
	a.UpdatedAt = now
	s.articles[id] = a

	if patch.CategoryIDs != nil {
		s.setLinks(id, patch.CategoryIDs, now)
	}

	out := s.hydrate(a)
	return &out, nil
}

func (s *MemoryStore) DeleteArticle(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.articles[id]; !ok {
		return ErrNotFound
	}
	delete(s.links, id)
	delete(s.articles, id)
	return nil
}

func (s *MemoryStore) ListCategories(ctx context.Context) ([]Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[int64]int)
	for _, links := range s.links {
		for _, l := range links {
			counts[l.categoryID]++
		}
	}

	out := make([]Category, 0, len(s.categories))
	for _, c := range s.categories {
		c.ArticlesCount = counts[c.ID]
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListAuthors(ctx context.Context) ([]Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[int64]int)
	for _, a := range s.articles {
		counts[a.AuthorID]++
	}

	out := make([]Author, 0, len(s.authors))
	for _, au := range s.authors {
		au.ArticlesCount = counts[au.ID]
		out = append(out, au)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Stats{
		Articles:   len(s.articles),
		Authors:    len(s.authors),
		Categories: len(s.categories),
	}, nil
}

func (s *MemoryStore) UpsertAuthor(ctx context.Context, in AuthorInput) (*Author, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, au := range s.authors {
		if au.Email == in.Email {
			au.Name = in.Name
			au.Bio = cloneString(in.Bio)
			au.Avatar = cloneString(in.Avatar)
			au.UpdatedAt = now
			s.authors[id] = au
			return &au, nil
		}
	}

	s.nextAuthorID++
	au := Author{
		ID:        s.nextAuthorID,
		Name:      in.Name,
		Email:     in.Email,
		Bio:       cloneString(in.Bio),
		Avatar:    cloneString(in.Avatar),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.authors[au.ID] = au
	return &au, nil
}

func (s *MemoryStore) UpsertCategory(ctx context.Context, in CategoryInput) (*Category, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, c := range s.categories {
		if c.Name == in.Name {
			c.Description = cloneString(in.Description)
			c.UpdatedAt = now
			s.categories[id] = c
			return &c, nil
		}
	}

	s.nextCategoryID++
	c := Category{
		ID:          s.nextCategoryID,
		Name:        in.Name,
		Description: cloneString(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.categories[c.ID] = c
	return &c, nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
