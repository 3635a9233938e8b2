package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"monteur/internal/infra"
	"monteur/internal/infra/credentials"
)

func main() {
	var (
		keyFlag    string
		bucketFlag string
	)
	flag.StringVar(&keyFlag, "key", "", "Supabase Storage service key (falls back to STORAGE_SERVICE_KEY)")
	flag.StringVar(&bucketFlag, "bucket", "", "bucket recorded with the key (falls back to STORAGE_BUCKET)")
	flag.Parse()

	_ = godotenv.Load()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("STORAGE_SERVICE_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "storage service key is required via -key or STORAGE_SERVICE_KEY")
		os.Exit(1)
	}
	bucket := strings.TrimSpace(bucketFlag)
	if bucket == "" {
		bucket = strings.TrimSpace(os.Getenv("STORAGE_BUCKET"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "storagekey").Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	ctxExec, cancelExec := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelExec()
	if err := store.SetStorageServiceKey(ctxExec, key, bucket); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist storage service key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("storage service key stored successfully")
}
