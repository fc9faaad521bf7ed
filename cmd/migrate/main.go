package main

import (
	"database/sql"
	"flag"
	"log"

	"github.com/leafsii/blog-bff/internal/config"
	"github.com/leafsii/blog-bff/internal/db/migrations"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	flags = flag.NewFlagSet("migrate", flag.ExitOnError)
	dir   = flags.String("dir", ".", "directory with migration files inside the embedded set")
)

const usage = `Usage: migrate COMMAND

Commands:
  up       apply all pending migrations
  down     roll back the latest migration
  status   print migration status
  reset    roll back every migration`

func main() {
	flag.Parse()
	flags.Parse(flag.Args())
	args := flags.Args()

	if len(args) < 1 {
		log.Fatal(usage)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Type != "postgres" {
		log.Fatalf("Migrations need DB_TYPE=postgres, got %q", cfg.Database.Type)
	}

	// Schema changes always go to the writer.
	db, err := sql.Open("pgx", cfg.Database.WriterURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("Failed to set dialect: %v", err)
	}

	command := args[0]
	switch command {
	case "up":
		if err := goose.Up(db, *dir); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
	case "down":
		if err := goose.Down(db, *dir); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
	case "status":
		if err := goose.Status(db, *dir); err != nil {
			log.Fatalf("Migration status failed: %v", err)
		}
	case "reset":
		if err := goose.Reset(db, *dir); err != nil {
			log.Fatalf("Migration reset failed: %v", err)
		}
	default:
		log.Fatalf("Unknown command: %s\n\n%s", command, usage)
	}
}
