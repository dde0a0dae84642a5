// Command migrate runs schema migrations for the plugin config and
// violation tables, grounded on apps/backend/cmd/migrate/main.go in the
// teacher: golang-migrate driven off a database/sql connection, with the
// same up/down/status command surface.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/joho/godotenv"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down|status]")
	}
	command := os.Args[1]

	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			envOr("DB_USER", "pluginchain"),
			envOr("DB_PASSWORD", "pluginchain"),
			envOr("DB_HOST", "localhost"),
			envOr("DB_PORT", "5432"),
			envOr("DB_NAME", "pluginchain"),
			envOr("DB_SSL_MODE", "disable"),
		)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}
	log.Println("database connection established")

	switch command {
	case "up", "down", "status":
		runMigrations(db, command)
	default:
		log.Fatalf("unknown command: %s", command)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runMigrations(db *sql.DB, command string) {
	migrationsPath := envOr("MIGRATIONS_PATH", "migrations")
	if !filepath.IsAbs(migrationsPath) {
		pwd, _ := os.Getwd()
		migrationsPath = filepath.Join(pwd, migrationsPath)
	}

	if _, err := os.Stat(migrationsPath); os.IsNotExist(err) {
		log.Fatalf("migrations directory does not exist: %s", migrationsPath)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("failed to create migration driver: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", migrationsPath), "postgres", driver)
	if err != nil {
		log.Fatalf("failed to create migration instance: %v", err)
	}

	switch command {
	case "up":
		log.Println("running migrations...")
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("failed to run migrations: %v", err)
		}
		version, _, _ := m.Version()
		log.Printf("database at version %d", version)
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("failed to roll back migrations: %v", err)
		}
		log.Println("migrations rolled back")
	case "status":
		version, dirty, err := m.Version()
		if err != nil && err != migrate.ErrNilVersion {
			log.Fatalf("failed to get migration status: %v", err)
		}
		log.Printf("current migration version: %d (dirty: %v)", version, dirty)
	}
}
