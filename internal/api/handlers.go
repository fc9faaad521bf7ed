package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/leafsii/blog-bff/internal/blog"
	"github.com/leafsii/blog-bff/internal/db"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// BlogService is the subset of blog.Service the handlers need.
type BlogService interface {
	ListArticles(ctx context.Context, page, pageSize int) (*blog.ArticlePage, error)
	GetArticle(ctx context.Context, id int64) (*blog.Article, error)
	CreateArticle(ctx context.Context, in blog.ArticleInput) (*blog.Article, error)
	UpdateArticle(ctx context.Context, id int64, patch blog.ArticlePatch) (*blog.Article, error)
	DeleteArticle(ctx context.Context, id int64) error
	ListCategories(ctx context.Context) ([]blog.Category, error)
	ListAuthors(ctx context.Context) ([]blog.Author, error)
}

// HealthChecker reports database handle health. *db.Manager implements it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) db.Health
	Status() []db.HandleStatus
}

// CacheInfo reports which backend the cache runs on. *cache.Cache implements it.
type CacheInfo interface {
	IsInMemoryMode() bool
}

type Handler struct {
	blog    BlogService
	health  HealthChecker
	cache   CacheInfo
	pages   *template.Template
	logger  *zap.SugaredLogger
	started time.Time
}

// NewHandler wires the handlers. health may be nil when the blog runs on the
// in-memory store; cache may be nil when caching is disabled.
func NewHandler(svc BlogService, health HealthChecker, cache CacheInfo, logger *zap.SugaredLogger) (*Handler, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}
	return &Handler{
		blog:    svc,
		health:  health,
		cache:   cache,
		pages:   pages,
		logger:  logger,
		started: time.Now(),
	}, nil
}

// General API

func (h *Handler) APIIndex(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "API service is running",
		"version": "1.0.0",
		"services": map[string]string{
			"blog": "/api/blog",
			"list": "/api/list",
		},
		"timestamp": time.Now().UTC(),
	})
}

// LegacyList serves the first page of articles in the shape older frontends
// expect.
func (h *Handler) LegacyList(w http.ResponseWriter, r *http.Request) {
	page, err := h.blog.ListArticles(r.Context(), 1, blog.DefaultPageSize)
	if err != nil {
		status, _ := classifyError(err)
		h.logger.Errorw("Legacy list failed", "error", err, "status", status)
		h.writeJSON(w, status, LegacyListDTO{Data: LegacyListData{
			Item:   "error",
			Result: []string{"failed to list articles", err.Error()},
		}})
		return
	}

	h.writeJSON(w, http.StatusOK, LegacyListDTO{Data: LegacyListData{
		Item:   "Blog articles",
		Result: toArticleDTOs(page.Articles),
	}})
}

// APIHealth never fails; database problems show up as false flags.
func (h *Handler) APIHealth(w http.ResponseWriter, r *http.Request) {
	health := h.dbHealth(r.Context())
	status := "healthy"
	if !health.Writer || !health.Reader {
		status = "degraded"
	}

	h.writeJSON(w, http.StatusOK, HealthDTO{
		Success:   true,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.started).Seconds(),
		Database:  health,
	})
}

// Blog API

func (h *Handler) BlogIndex(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Blog API",
		"version": "1.0.0",
		"endpoints": map[string]map[string]string{
			"articles": {
				"GET /api/blog/articles":         "list articles",
				"GET /api/blog/articles/{id}":    "get one article",
				"POST /api/blog/articles":        "create an article",
				"PUT /api/blog/articles/{id}":    "update an article",
				"DELETE /api/blog/articles/{id}": "delete an article",
			},
			"categories": {
				"GET /api/blog/categories": "list categories",
			},
			"authors": {
				"GET /api/blog/authors": "list authors",
			},
		},
	})
}

func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be an integer", err)
		return
	}
	pageSize, err := queryInt(r, "pageSize")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "pageSize must be an integer", err)
		return
	}

	result, err := h.blog.ListArticles(r.Context(), page, pageSize)
	if err != nil {
		h.writeServiceError(w, "failed to list articles", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Envelope{
		Success: true,
		Data: ArticleListDTO{
			Articles:   toArticleDTOs(result.Articles),
			Total:      result.Total,
			Page:       result.Page,
			PageSize:   result.PageSize,
			TotalPages: result.TotalPages,
		},
	})
}

func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.articleID(w, r)
	if !ok {
		return
	}

	article, err := h.blog.GetArticle(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "failed to get article", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Envelope{Success: true, Data: toArticleDTO(*article)})
}

func (h *Handler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	var in blog.ArticleInput
	if !h.decodeBody(w, r, &in) {
		return
	}

	article, err := h.blog.CreateArticle(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, "failed to create article", err)
		return
	}

	h.logger.Infow("Article created via API", "id", article.ID, "request_id", requestIDFrom(r))
	h.writeJSON(w, http.StatusCreated, Envelope{Success: true, Data: article})
}

func (h *Handler) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.articleID(w, r)
	if !ok {
		return
	}
	var patch blog.ArticlePatch
	if !h.decodeBody(w, r, &patch) {
		return
	}

	article, err := h.blog.UpdateArticle(r.Context(), id, patch)
	if err != nil {
		h.writeServiceError(w, "failed to update article", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Envelope{Success: true, Data: article})
}

func (h *Handler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.articleID(w, r)
	if !ok {
		return
	}

	if err := h.blog.DeleteArticle(r.Context(), id); err != nil {
		h.writeServiceError(w, "failed to delete article", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "article deleted"})
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.blog.ListCategories(r.Context())
	if err != nil {
		h.writeServiceError(w, "failed to list categories", err)
		return
	}
	h.writeJSON(w, http.StatusOK, Envelope{Success: true, Data: categories})
}

func (h *Handler) ListAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.blog.ListAuthors(r.Context())
	if err != nil {
		h.writeServiceError(w, "failed to list authors", err)
		return
	}
	h.writeJSON(w, http.StatusOK, Envelope{Success: true, Data: authors})
}

// Probes

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Readyz reports ready only while the writer answers its probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	health := h.dbHealth(r.Context())
	dto := ReadyDTO{
		Ready:    health.Writer,
		Database: health,
		Handles:  []db.HandleStatus{},
		Cache:    "disabled",
	}
	if h.health != nil {
		dto.Handles = h.health.Status()
	}
	if h.cache != nil {
		dto.Cache = "redis"
		if h.cache.IsInMemoryMode() {
			dto.Cache = "memory"
		}
	}

	status := http.StatusOK
	if !dto.Ready {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, dto)
}

func (h *Handler) dbHealth(ctx context.Context) db.Health {
	if h.health == nil {
		return db.Health{Writer: true, Reader: true}
	}
	return h.health.HealthCheck(ctx)
}

// Utility methods

func (h *Handler) articleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "article id must be a positive integer", err)
		return 0, false
	}
	return id, true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be valid JSON", err)
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// classifyError maps service errors onto an HTTP status and error code.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, blog.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, blog.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, blog.ErrInvalidReference):
		return http.StatusUnprocessableEntity, "INVALID_REFERENCE"
	case db.IsConnectionError(err):
		return http.StatusServiceUnavailable, "DATABASE_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	status, code := classifyError(err)
	if status == http.StatusNotFound {
		message = "article not found"
	}
	h.writeError(w, status, code, message, err)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := Envelope{Success: false, Message: message, Code: code}
	if err != nil {
		resp.Error = err.Error()
	}

	if status >= http.StatusInternalServerError {
		h.logger.Errorw("API error", "code", code, "message", message, "status", status, "error", err)
	} else {
		h.logger.Debugw("API request rejected", "code", code, "message", message, "status", status, "error", err)
	}

	h.writeJSON(w, status, resp)
}
