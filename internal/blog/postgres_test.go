package blog

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/leafsii/blog-bff/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// downRouter behaves like a manager whose handles cannot connect.
type downRouter struct {
	reads, writes int
}

func (r *downRouter) Read(ctx context.Context, fn func(db.Conn) error) error {
	r.reads++
	return &db.ConnectionError{Role: db.RoleReader, Attempts: 1, Err: errors.New("connection refused")}
}

func (r *downRouter) Write(ctx context.Context, fn func(db.Conn) error) error {
	r.writes++
	return &db.ConnectionError{Role: db.RoleWriter, Attempts: 1, Err: errors.New("connection refused")}
}

func TestPostgresStoreRoutesReadsAndWrites(t *testing.T) {
	r := &downRouter{}
	s := NewPostgresStore(r, nil)
	ctx := context.Background()

	_, err := s.ListArticles(ctx, 1, 10)
	assert.True(t, db.IsConnectionError(err))
	_, err = s.GetArticle(ctx, 1)
	assert.True(t, db.IsConnectionError(err))
	_, err = s.ListCategories(ctx)
	assert.True(t, db.IsConnectionError(err))
	_, err = s.ListAuthors(ctx)
	assert.True(t, db.IsConnectionError(err))
	_, err = s.Stats(ctx)
	assert.True(t, db.IsConnectionError(err))
	assert.Equal(t, 5, r.reads)
	assert.Zero(t, r.writes)

	_, err = s.CreateArticle(ctx, ArticleInput{Title: "t", Content: "c", AuthorID: 1})
	assert.True(t, db.IsConnectionError(err))
	_, err = s.UpdateArticle(ctx, 1, ArticlePatch{})
	assert.True(t, db.IsConnectionError(err))
	assert.True(t, db.IsConnectionError(s.DeleteArticle(ctx, 1)))
	assert.Equal(t, 3, r.writes)
	assert.Equal(t, 5, r.reads)
}

func TestPostgresStoreValidatesBeforeWriting(t *testing.T) {
	r := &downRouter{}
	s := NewPostgresStore(r, nil)

	_, err := s.CreateArticle(context.Background(), ArticleInput{Title: "t"})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, r.writes)
}

func TestClassifyForeignKeyViolation(t *testing.T) {
	err := classify(&pgconn.PgError{Code: "23503", ConstraintName: "articles_author_id_fkey"}, "insert article")
	assert.ErrorIs(t, err, ErrInvalidReference)
	assert.Contains(t, err.Error(), "articles_author_id_fkey")

	other := classify(&pgconn.PgError{Code: "23505"}, "insert article")
	assert.NotErrorIs(t, other, ErrInvalidReference)

	var pgErr *pgconn.PgError
	assert.ErrorAs(t, other, &pgErr)
}
