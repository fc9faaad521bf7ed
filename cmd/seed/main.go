package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/leafsii/blog-bff/internal/blog"
	"github.com/leafsii/blog-bff/internal/config"
	"github.com/leafsii/blog-bff/internal/db"
	"github.com/leafsii/blog-bff/internal/log"
	"go.uber.org/zap"
)

var seedCategories = []blog.CategoryInput{
	{Name: "Technology", Description: strPtr("Software, infrastructure and tooling")},
	{Name: "Databases", Description: strPtr("Storage engines, replication and queries")},
	{Name: "Operations", Description: strPtr("Running services in production")},
}

type seedArticle struct {
	title, summary, content string
	categories              []int // indexes into seedCategories
}

var seedArticles = []seedArticle{
	{
		title:      "Splitting reads and writes",
		summary:    "Routing queries to a replica without surprising anyone.",
		content:    "Writes go to the primary. Reads go to the replica, which may lag behind by a few milliseconds.",
		categories: []int{0, 1},
	},
	{
		title:      "Retrying connections with backoff",
		summary:    "Why the first connection attempt is not the last.",
		content:    "Databases restart, fail over and scale. A service that gives up on the first refused connection is a fragile one.",
		categories: []int{1, 2},
	},
	{
		title:      "Warming up a serverless database",
		summary:    "A trivial query goes a long way.",
		content:    "Some managed databases pause when idle. Sending SELECT 1 at startup resumes them before real traffic arrives.",
		categories: []int{2},
	},
}

func strPtr(s string) *string { return &s }

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.Type != "postgres" {
		fmt.Fprintf(os.Stderr, "Seeding needs DB_TYPE=postgres, got %q\n", cfg.Database.Type)
		os.Exit(1)
	}

	logger, err := log.NewSugar(log.Options{Env: cfg.Env, Level: cfg.Log.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	manager := db.NewManager(cfg.Database.Manager(), db.WithLogger(logger))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	err = seed(ctx, manager, logger)
	cancel()

	dctx, dcancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dcancel()
	if derr := manager.Disconnect(dctx); derr != nil {
		logger.Errorw("Database disconnect failed", "error", derr)
	}

	if err != nil {
		logger.Errorw("Seeding failed", "error", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, manager *db.Manager, logger *zap.SugaredLogger) error {
	// Make sure both endpoints answer before touching data.
	ping := func(c db.Conn) error {
		_, err := c.Exec(ctx, "SELECT 1")
		return err
	}
	if err := manager.Write(ctx, ping); err != nil {
		return fmt.Errorf("writer check: %w", err)
	}
	if err := manager.Read(ctx, ping); err != nil {
		return fmt.Errorf("reader check: %w", err)
	}
	logger.Infow("Database endpoints reachable", "handles", manager.Status())

	store := blog.NewPostgresStore(manager, logger)

	author, err := store.UpsertAuthor(ctx, blog.AuthorInput{
		Name:  "Admin",
		Email: "admin@blog.com",
		Bio:   strPtr("Keeps the lights on."),
	})
	if err != nil {
		return fmt.Errorf("upsert author: %w", err)
	}
	logger.Infow("Author ready", "id", author.ID, "email", author.Email)

	categoryIDs := make([]int64, 0, len(seedCategories))
	for _, in := range seedCategories {
		cat, err := store.UpsertCategory(ctx, in)
		if err != nil {
			return fmt.Errorf("upsert category %q: %w", in.Name, err)
		}
		categoryIDs = append(categoryIDs, cat.ID)
	}
	logger.Infow("Categories ready", "count", len(categoryIDs))

	before, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}
	if before.Articles > 0 {
		logger.Infow("Articles already present; skipping article seed", "articles", before.Articles)
	} else {
		for _, a := range seedArticles {
			ids := make([]int64, 0, len(a.categories))
			for _, idx := range a.categories {
				ids = append(ids, categoryIDs[idx])
			}
			article, err := store.CreateArticle(ctx, blog.ArticleInput{
				Title:       a.title,
				Content:     a.content,
				Summary:     strPtr(a.summary),
				Published:   true,
				AuthorID:    author.ID,
				CategoryIDs: ids,
			})
			if err != nil {
				return fmt.Errorf("create article %q: %w", a.title, err)
			}
			logger.Infow("Article created", "id", article.ID, "title", article.Title)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}
	fmt.Printf("Seed complete: %d articles, %d authors, %d categories\n",
		stats.Articles, stats.Authors, stats.Categories)
	return nil
}
