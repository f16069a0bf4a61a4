package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/zombar/linkray"
	"github.com/zombar/linkray/api"
	"github.com/zombar/linkray/db"
	"github.com/zombar/linkray/gemini"
	"github.com/zombar/linkray/identity"
	"github.com/zombar/linkray/metrics"
	"github.com/zombar/linkray/storage"
	"github.com/zombar/linkray/urlkey"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration parses a duration environment variable, logging and falling
// back to the default on bad input.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration value, using default", "key", key, "provided", raw, "default", defaultValue)
		return defaultValue
	}
	return d
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("linkray service initializing", "version", "1.0.0")

	defaultPort := getEnv("PORT", "8080")
	defaultGeminiURL := getEnv("GEMINI_BASE_URL", gemini.DefaultBaseURL)
	defaultModels := getEnv("GEMINI_MODELS", strings.Join(linkray.DefaultModels, ","))
	defaultScreenshotBase := getEnv("SCREENSHOT_BASE_URL", urlkey.DefaultScreenshotBase)
	defaultMaxPages := getEnv("DEEP_MAX_PAGES", strconv.Itoa(linkray.DefaultMaxPages))

	maxPages, err := strconv.Atoi(defaultMaxPages)
	if err != nil || maxPages < 1 {
		logger.Warn("invalid DEEP_MAX_PAGES value, using default",
			"provided", defaultMaxPages, "default", linkray.DefaultMaxPages)
		maxPages = linkray.DefaultMaxPages
	}

	// Command-line flags (override environment variables)
	port := flag.String("port", defaultPort, "Server port")
	geminiURL := flag.String("gemini-url", defaultGeminiURL, "Gemini API base URL")
	geminiModels := flag.String("gemini-models", defaultModels, "Comma-separated AI model fallback chain")
	screenshotBase := flag.String("screenshot-base", defaultScreenshotBase, "Screenshot service base URL")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	anonymousRecent := flag.Bool("anonymous-recent", false, "Allow unauthenticated access to the recent-scans endpoint")
	flag.Parse()

	geminiKey := getEnv("GEMINI_API_KEY", "")
	if geminiKey == "" {
		logger.Error("GEMINI_API_KEY environment variable is required")
		os.Exit(1)
	}

	// PostgreSQL database configuration (required)
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		logger.Error("DB_HOST environment variable is required")
		os.Exit(1)
	}
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "linkray")
	dbPassword := getEnv("DB_PASSWORD", "linkray_dev_pass")
	dbName := getEnv("DB_NAME", "linkray")

	database, err := db.New(db.Config{
		DSN: fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			dbHost, dbPort, dbUser, dbPassword, dbName),
	})
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	logger.Info("using PostgreSQL database", "host", dbHost, "port", dbPort, "database", dbName)

	aiClient := gemini.NewClient(gemini.Config{
		BaseURL: *geminiURL,
		APIKey:  geminiKey,
	})

	// Document archive: S3 when configured, local filesystem otherwise.
	var archive linkray.Archive
	if bucket := getEnv("S3_BUCKET", ""); bucket != "" {
		s3Store, err := storage.NewS3Storage(context.Background(), storage.S3Config{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          bucket,
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnv("S3_USE_PATH_STYLE", "") == "true",
		})
		if err != nil {
			logger.Error("failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
		archive = s3Store
		logger.Info("using S3 document archive", "bucket", bucket)
	} else {
		fsStore, err := storage.New(storage.Config{BasePath: getEnv("STORAGE_BASE_PATH", "./storage")})
		if err != nil {
			logger.Error("failed to initialize filesystem storage", "error", err)
			os.Exit(1)
		}
		archive = fsStore
		logger.Info("using filesystem document archive")
	}

	var identityClient *identity.Client
	if authURL := getEnv("AUTH_BASE_URL", ""); authURL != "" {
		identityClient = identity.NewClient(identity.Config{
			BaseURL: authURL,
			APIKey:  getEnv("AUTH_ANON_KEY", ""),
		})
		logger.Info("identity resolution enabled", "auth_url", authURL)
	} else {
		logger.Warn("AUTH_BASE_URL not set, all requests will be anonymous")
	}

	service := linkray.NewService(linkray.Config{
		FetchTimeout:   getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		CacheTTL:       getEnvDuration("CACHE_TTL", 24*time.Hour),
		DeepMaxPages:   maxPages,
		ScreenshotBase: *screenshotBase,
		Models:         strings.Split(*geminiModels, ","),
	}, database, aiClient, archive)

	server := api.NewServer(api.Config{
		Addr:            ":" + *port,
		CORSEnabled:     !*disableCORS,
		AnonymousRecent: *anonymousRecent,
	}, database, service, identityClient)

	// Connection pool gauges
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			metrics.UpdateDBStats(database.Conn().Stats())
		}
	}()

	go func() {
		logger.Info("linkray service starting",
			"port", *port,
			"database_host", dbHost,
			"database_name", dbName,
			"gemini_url", *geminiURL,
			"models", *geminiModels,
			"deep_max_pages", maxPages,
		)

		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
