package main

import (
	"LendView/internal/archive"
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <up|down>")
		fmt.Println("  up   - create the history archive schema")
		fmt.Println("  down - drop the history archive schema")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  POSTGRES_URL - Postgres connection string")
		os.Exit(1)
	}

	pgURL := os.Getenv("POSTGRES_URL")
	if pgURL == "" {
		pgURL = "postgres://localhost:5432/lendview?sslmode=disable"
	}

	db, err := sql.Open("postgres", pgURL)
	if err != nil {
		log.Fatalf("FATAL: open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	switch os.Args[1] {
	case "up":
		if _, err := db.ExecContext(ctx, archive.Schema); err != nil {
			log.Fatalf("FATAL: migrate up: %v", err)
		}
		log.Println("INFO: archive schema applied")

	case "down":
		if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS history CASCADE`); err != nil {
			log.Fatalf("FATAL: migrate down: %v", err)
		}
		log.Println("INFO: archive schema dropped")

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up' or 'down')\n", os.Args[1])
		os.Exit(1)
	}
}
