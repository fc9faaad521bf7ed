package blog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/leafsii/blog-bff/internal/db"
	"go.uber.org/zap"
)

// Router splits work between the primary and the replica.
type Router interface {
	Read(ctx context.Context, fn func(db.Conn) error) error
	Write(ctx context.Context, fn func(db.Conn) error) error
}

// PostgresStore runs every query on the reader and every mutation on the
// writer. Results of a mutation are read back on the writer, inside the same
// transaction, so they never depend on replica lag.
type PostgresStore struct {
	db     Router
	logger *zap.SugaredLogger
}

func NewPostgresStore(router Router, logger *zap.SugaredLogger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PostgresStore{db: router, logger: logger}
}

// querier is satisfied by both db.Conn and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const articleColumns = `
	a.id, a.title, a.content, a.summary, a.cover_image, a.published, a.author_id,
	a.created_at, a.updated_at,
	au.id, au.name, au.email, au.bio, au.avatar, au.created_at, au.updated_at`

func scanArticle(row pgx.Row) (*Article, error) {
	var (
		a  Article
		au Author
	)
	err := row.Scan(
		&a.ID, &a.Title, &a.Content, &a.Summary, &a.CoverImage, &a.Published, &a.AuthorID,
		&a.CreatedAt, &a.UpdatedAt,
		&au.ID, &au.Name, &au.Email, &au.Bio, &au.Avatar, &au.CreatedAt, &au.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Author = &au
	a.Categories = []Category{}
	return &a, nil
}

func (s *PostgresStore) ListArticles(ctx context.Context, page, pageSize int) (*ArticlePage, error) {
	page, pageSize = NormalizePage(page, pageSize)
	result := &ArticlePage{Articles: []Article{}, Page: page, PageSize: pageSize}

	err := s.db.Read(ctx, func(c db.Conn) error {
		if err := c.QueryRow(ctx, `SELECT count(*) FROM articles`).Scan(&result.Total); err != nil {
			return fmt.Errorf("count articles: %w", err)
		}

		rows, err := c.Query(ctx, `SELECT `+articleColumns+`
			FROM articles a
			JOIN authors au ON au.id = a.author_id
			ORDER BY a.created_at DESC, a.id DESC
			LIMIT $1 OFFSET $2`, pageSize, (page-1)*pageSize)
		if err != nil {
			return fmt.Errorf("list articles: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			a, err := scanArticle(rows)
			if err != nil {
				return fmt.Errorf("scan article: %w", err)
			}
			result.Articles = append(result.Articles, *a)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("list articles: %w", err)
		}
		rows.Close()

		return attachCategories(ctx, c, result.Articles)
	})
	if err != nil {
		return nil, err
	}

	result.TotalPages = totalPages(result.Total, pageSize)
	return result, nil
}

func attachCategories(ctx context.Context, q querier, articles []Article) error {
	if len(articles) == 0 {
		return nil
	}
	ids := make([]int64, len(articles))
	index := make(map[int64]int, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
		index[a.ID] = i
	}

	rows, err := q.Query(ctx, `
		SELECT ac.article_id, c.id, c.name, c.description, c.created_at, c.updated_at
		FROM article_categories ac
		JOIN categories c ON c.id = ac.category_id
		WHERE ac.article_id = ANY($1)
		ORDER BY ac.assigned_at, c.id`, ids)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			articleID int64
			cat       Category
		)
		if err := rows.Scan(&articleID, &cat.ID, &cat.Name, &cat.Description, &cat.CreatedAt, &cat.UpdatedAt); err != nil {
			return fmt.Errorf("scan category: %w", err)
		}
		if i, ok := index[articleID]; ok {
			articles[i].Categories = append(articles[i].Categories, cat)
		}
	}
	return rows.Err()
}

func loadArticle(ctx context.Context, q querier, id int64) (*Article, error) {
	a, err := scanArticle(q.QueryRow(ctx, `SELECT `+articleColumns+`
		FROM articles a
		JOIN authors au ON au.id = a.author_id
		WHERE a.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load article %d: %w", id, err)
	}

	articles := []Article{*a}
	if err := attachCategories(ctx, q, articles); err != nil {
		return nil, err
	}
	return &articles[0], nil
}

func (s *PostgresStore) GetArticle(ctx context.Context, id int64) (*Article, error) {
	var article *Article
	err := s.db.Read(ctx, func(c db.Conn) error {
		a, err := loadArticle(ctx, c, id)
		if err != nil {
			return err
		}
		article = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return article, nil
}

func (s *PostgresStore) CreateArticle(ctx context.Context, in ArticleInput) (*Article, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	var article *Article
	err := s.db.Write(ctx, func(c db.Conn) error {
		return pgx.BeginFunc(ctx, c, func(tx pgx.Tx) error {
			var id int64
			err := tx.QueryRow(ctx, `
				INSERT INTO articles (title, content, summary, cover_image, published, author_id)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id`,
				in.Title, in.Content, in.Summary, in.CoverImage, in.Published, in.AuthorID).Scan(&id)
			if err != nil {
				return classify(err, "insert article")
			}

			if err := linkCategories(ctx, tx, id, in.CategoryIDs); err != nil {
				return err
			}

			a, err := loadArticle(ctx, tx, id)
			if err != nil {
				return err
			}
			article = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Article created", "id", article.ID, "authorId", article.AuthorID)
	return article, nil
}

func linkCategories(ctx context.Context, tx pgx.Tx, articleID int64, categoryIDs []int64) error {
	for _, categoryID := range categoryIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO article_categories (article_id, category_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, articleID, categoryID)
		if err != nil {
			return classify(err, "link category")
		}
	}
	return nil
}

func (s *PostgresStore) UpdateArticle(ctx context.Context, id int64, patch ArticlePatch) (*Article, error) {
	if err := Validate(patch); err != nil {
		return nil, err
	}

	var article *Article
	err := s.db.Write(ctx, func(c db.Conn) error {
		return pgx.BeginFunc(ctx, c, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `
				UPDATE articles SET
					title       = COALESCE($2, title),
					content     = COALESCE($3, content),
					summary     = COALESCE($4, summary),
					cover_image = COALESCE($5, cover_image),
					published   = COALESCE($6, published),
					updated_at  = now()
				WHERE id = $1`,
				id, patch.Title, patch.Content, patch.Summary, patch.CoverImage, patch.Published)
			if err != nil {
				return classify(err, "update article")
			}
			if tag.RowsAffected() == 0 {
				return ErrNotFound
			}

			if patch.CategoryIDs != nil {
				if _, err := tx.Exec(ctx, `DELETE FROM article_categories WHERE article_id = $1`, id); err != nil {
					return fmt.Errorf("unlink categories: %w", err)
				}
				if err := linkCategories(ctx, tx, id, patch.CategoryIDs); err != nil {
					return err
				}
			}

			a, err := loadArticle(ctx, tx, id)
			if err != nil {
				return err
			}
			article = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return article, nil
}

func (s *PostgresStore) DeleteArticle(ctx context.Context, id int64) error {
	return s.db.Write(ctx, func(c db.Conn) error {
		return pgx.BeginFunc(ctx, c, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `DELETE FROM article_categories WHERE article_id = $1`, id); err != nil {
				return fmt.Errorf("unlink categories: %w", err)
			}
			tag, err := tx.Exec(ctx, `DELETE FROM articles WHERE id = $1`, id)
			if err != nil {
				return fmt.Errorf("delete article: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return ErrNotFound
			}
			return nil
		})
	})
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]Category, error) {
	categories := []Category{}
	err := s.db.Read(ctx, func(c db.Conn) error {
		rows, err := c.Query(ctx, `
			SELECT c.id, c.name, c.description, c.created_at, c.updated_at, count(ac.article_id)
			FROM categories c
			LEFT JOIN article_categories ac ON ac.category_id = c.id
			GROUP BY c.id
			ORDER BY c.id`)
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var cat Category
			if err := rows.Scan(&cat.ID, &cat.Name, &cat.Description, &cat.CreatedAt, &cat.UpdatedAt, &cat.ArticlesCount); err != nil {
				return fmt.Errorf("scan category: %w", err)
			}
			categories = append(categories, cat)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *PostgresStore) ListAuthors(ctx context.Context) ([]Author, error) {
	authors := []Author{}
	err := s.db.Read(ctx, func(c db.Conn) error {
		rows, err := c.Query(ctx, `
			SELECT au.id, au.name, au.email, au.bio, au.avatar, au.created_at, au.updated_at, count(a.id)
			FROM authors au
			LEFT JOIN articles a ON a.author_id = au.id
			GROUP BY au.id
			ORDER BY au.id`)
		if err != nil {
			return fmt.Errorf("list authors: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var au Author
			if err := rows.Scan(&au.ID, &au.Name, &au.Email, &au.Bio, &au.Avatar, &au.CreatedAt, &au.UpdatedAt, &au.ArticlesCount); err != nil {
				return fmt.Errorf("scan author: %w", err)
			}
			authors = append(authors, au)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return authors, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.Read(ctx, func(c db.Conn) error {
		return c.QueryRow(ctx, `
			SELECT
				(SELECT count(*) FROM articles),
				(SELECT count(*) FROM authors),
				(SELECT count(*) FROM categories)`).Scan(&st.Articles, &st.Authors, &st.Categories)
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *PostgresStore) UpsertAuthor(ctx context.Context, in AuthorInput) (*Author, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	var au Author
	err := s.db.Write(ctx, func(c db.Conn) error {
		return c.QueryRow(ctx, `
			INSERT INTO authors (name, email, bio, avatar)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (email) DO UPDATE SET
				name = EXCLUDED.name,
				bio = EXCLUDED.bio,
				avatar = EXCLUDED.avatar,
				updated_at = now()
			RETURNING id, name, email, bio, avatar, created_at, updated_at`,
			in.Name, in.Email, in.Bio, in.Avatar).
			Scan(&au.ID, &au.Name, &au.Email, &au.Bio, &au.Avatar, &au.CreatedAt, &au.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &au, nil
}

func (s *PostgresStore) UpsertCategory(ctx context.Context, in CategoryInput) (*Category, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	var cat Category
	err := s.db.Write(ctx, func(c db.Conn) error {
		return c.QueryRow(ctx, `
			INSERT INTO categories (name, description)
			VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET
				description = EXCLUDED.description,
				updated_at = now()
			RETURNING id, name, description, created_at, updated_at`,
			in.Name, in.Description).
			Scan(&cat.ID, &cat.Name, &cat.Description, &cat.CreatedAt, &cat.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// classify maps constraint violations onto domain errors.
func classify(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
		return fmt.Errorf("%s: %w: %s", op, ErrInvalidReference, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}
