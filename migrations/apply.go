package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// Applies every .sql file under migrations/ in lexical order. Statements are
// written to be re-runnable (CREATE TABLE IF NOT EXISTS).
func main() {
	_ = godotenv.Load()
	dbURL := os.Getenv("DATABASE_URL")
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Printf("Failed to connect to DB: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	files, err := filepath.Glob("migrations/*.sql")
	if err != nil {
		fmt.Printf("Failed to list migrations: %v\n", err)
		os.Exit(1)
	}
	sort.Strings(files)

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			fmt.Printf("Failed to read %s: %v\n", file, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(sqlBytes)); err != nil {
			fmt.Printf("Migration %s failed: %v\n", file, err)
			os.Exit(1)
		}
		fmt.Printf("Applied %s\n", file)
	}
	fmt.Println("Migration successful.")
}
