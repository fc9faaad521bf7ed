package blog

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidReference = errors.New("invalid reference")
	ErrInvalidInput     = errors.New("invalid input")
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Store is the persistence boundary of the blog.
type Store interface {
	ListArticles(ctx context.Context, page, pageSize int) (*ArticlePage, error)
	GetArticle(ctx context.Context, id int64) (*Article, error)
	CreateArticle(ctx context.Context, in ArticleInput) (*Article, error)
	UpdateArticle(ctx context.Context, id int64, patch ArticlePatch) (*Article, error)
	DeleteArticle(ctx context.Context, id int64) error

	ListCategories(ctx context.Context) ([]Category, error)
	ListAuthors(ctx context.Context) ([]Author, error)
	Stats(ctx context.Context) (*Stats, error)

	UpsertAuthor(ctx context.Context, in AuthorInput) (*Author, error)
	UpsertCategory(ctx context.Context, in CategoryInput) (*Category, error)
}

// NormalizePage applies the paging defaults and bounds.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize == 0:
		pageSize = DefaultPageSize
	case pageSize < 1:
		pageSize = 1
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func totalPages(total, pageSize int) int {
	if total == 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a request struct and returns an error wrapping
// ErrInvalidInput that names every offending field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "gt":
		return field + " must be greater than " + fe.Param()
	case "min":
		return field + " must not be empty"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	default:
		return field + " failed " + fe.Tag()
	}
}
