package blog

import "time"

type Author struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Bio           *string   `json:"bio"`
	Avatar        *string   `json:"avatar"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	ArticlesCount int       `json:"articlesCount"`
}

type Category struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   *string   `json:"description"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	ArticlesCount int       `json:"articlesCount"`
}

type Article struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Summary    *string    `json:"summary"`
	CoverImage *string    `json:"coverImage"`
	Published  bool       `json:"published"`
	AuthorID   int64      `json:"authorId"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Author     *Author    `json:"author,omitempty"`
	Categories []Category `json:"categories"`
}

type ArticlePage struct {
	Articles   []Article `json:"articles"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
	TotalPages int       `json:"totalPages"`
}

type Stats struct {
	Articles   int `json:"articles"`
	Authors    int `json:"authors"`
	Categories int `json:"categories"`
}

type ArticleInput struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Content     string  `json:"content" validate:"required"`
	Summary     *string `json:"summary" validate:"omitempty,max=1000"`
	CoverImage  *string `json:"coverImage" validate:"omitempty,max=2048"`
	Published   bool    `json:"published"`
	AuthorID    int64   `json:"authorId" validate:"required,gt=0"`
	CategoryIDs []int64 `json:"categoryIds" validate:"omitempty,dive,gt=0"`
}

// ArticlePatch is a partial update. Nil fields are left unchanged; a non-nil
// CategoryIDs replaces every category link, so an empty slice clears them.
type ArticlePatch struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Content     *string `json:"content" validate:"omitempty,min=1"`
	Summary     *string `json:"summary" validate:"omitempty,max=1000"`
	CoverImage  *string `json:"coverImage" validate:"omitempty,max=2048"`
	Published   *bool   `json:"published"`
	CategoryIDs []int64 `json:"categoryIds" validate:"omitempty,dive,gt=0"`
}

type AuthorInput struct {
	Name   string  `json:"name" validate:"required,max=255"`
	Email  string  `json:"email" validate:"required,email"`
	Bio    *string `json:"bio"`
	Avatar *string `json:"avatar"`
}

type CategoryInput struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Description *string `json:"description"`
}
