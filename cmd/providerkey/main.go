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

	"genstudio/internal/infra"
	"genstudio/internal/infra/credentials"
)

func main() {
	_ = godotenv.Load()

	var (
		keyFlag  string
		baseFlag string
		showFlag bool
	)
	flag.StringVar(&keyFlag, "key", "", "gateway API key (fallbacks to PROVIDER_API_KEY)")
	flag.StringVar(&baseFlag, "base-url", "", "gateway base URL recorded with the key (fallbacks to PROVIDER_BASE_URL)")
	flag.BoolVar(&showFlag, "show", false, "print whether a key is stored instead of writing one")
	flag.Parse()

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

	logger := infra.NewLogger("cli", "providerkey")
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	if showFlag {
		key, err := store.ProviderAPIKey(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read key: %v\n", err)
			os.Exit(1)
		}
		if key == "" {
			fmt.Println("no gateway key stored")
			return
		}
		fmt.Printf("gateway key stored (...%s)\n", key[max(0, len(key)-4):])
		return
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("PROVIDER_API_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "gateway API key is required via -key or PROVIDER_API_KEY")
		os.Exit(1)
	}
	baseURL := strings.TrimSpace(baseFlag)
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv("PROVIDER_BASE_URL"))
	}

	if err := store.SetProviderAPIKey(ctx, key, baseURL); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist gateway api key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("gateway API key stored successfully")
}
