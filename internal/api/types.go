package api

import (
	"time"

	"github.com/leafsii/blog-bff/internal/blog"
	"github.com/leafsii/blog-bff/internal/db"
)

// Envelope is the response shape of every /api/blog endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ArticleDTO is the flattened article used by list and detail responses:
// author name and category names instead of nested objects.
type ArticleDTO struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	Content    string    `json:"content"`
	CoverImage string    `json:"coverImage"`
	Published  bool      `json:"published"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	AuthorID   int64     `json:"authorId"`
	Author     string    `json:"author"`
	Categories []string  `json:"categories"`
}

type ArticleListDTO struct {
	Articles   []ArticleDTO `json:"articles"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalPages int          `json:"totalPages"`
}

// LegacyListDTO is the body of GET /api/list.
type LegacyListDTO struct {
	Data LegacyListData `json:"data"`
}

type LegacyListData struct {
	Item   string `json:"item"`
	Result any    `json:"result"`
}

type HealthDTO struct {
	Success   bool      `json:"success"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
	Database  db.Health `json:"database"`
}

type ReadyDTO struct {
	Ready    bool              `json:"ready"`
	Database db.Health         `json:"database"`
	Handles  []db.HandleStatus `json:"handles"`
	Cache    string            `json:"cache"`
}

func toArticleDTO(a blog.Article) ArticleDTO {
	dto := ArticleDTO{
		ID:         a.ID,
		Title:      a.Title,
		Content:    a.Content,
		Published:  a.Published,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
		AuthorID:   a.AuthorID,
		Categories: make([]string, 0, len(a.Categories)),
	}
	if a.Summary != nil {
		dto.Summary = *a.Summary
	}
	if a.CoverImage != nil {
		dto.CoverImage = *a.CoverImage
	}
	if a.Author != nil {
		dto.Author = a.Author.Name
	}
	for _, c := range a.Categories {
		dto.Categories = append(dto.Categories, c.Name)
	}
	return dto
}

func toArticleDTOs(articles []blog.Article) []ArticleDTO {
	out := make([]ArticleDTO, 0, len(articles))
	for _, a := range articles {
		out = append(out, toArticleDTO(a))
	}
	return out
}
