package api

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/leafsii/blog-bff/internal/blog"
)

//go:embed templates/*.html
var templateFS embed.FS

func parsePages() (*template.Template, error) {
	return template.New("pages").Funcs(template.FuncMap{
		"date": func(t time.Time) string { return t.Format("2006-01-02") },
	}).ParseFS(templateFS, "templates/*.html")
}

// BlogPage renders the first page of articles as HTML.
func (h *Handler) BlogPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.blog.ListArticles(r.Context(), 1, blog.DefaultPageSize)
	if err != nil {
		status, _ := classifyError(err)
		h.logger.Errorw("Failed to render blog list", "error", err)
		http.Error(w, "server error", status)
		return
	}
	h.render(w, "list.html", map[string]any{"Articles": page.Articles})
}

// ArticlePage renders one article as HTML.
func (h *Handler) ArticlePage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.articleID(w, r)
	if !ok {
		return
	}

	article, err := h.blog.GetArticle(r.Context(), id)
	if errors.Is(err, blog.ErrNotFound) {
		http.Error(w, "article not found", http.StatusNotFound)
		return
	}
	if err != nil {
		status, _ := classifyError(err)
		h.logger.Errorw("Failed to render article", "id", id, "error", err)
		http.Error(w, "server error", status)
		return
	}
	h.render(w, "detail.html", map[string]any{"Article": article})
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := h.pages.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Errorw("Template execution failed", "template", name, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
