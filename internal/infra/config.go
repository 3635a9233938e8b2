package infra

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Storage drivers accepted in STORAGE_DRIVER.
const (
	StorageDriverSupabase = "supabase"
	StorageDriverS3       = "s3"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	StorageDriver     string
	StorageBaseURL    string
	StorageBucket     string
	StorageServiceKey string
	StorageTimeout    time.Duration

	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	ScratchDir           string
	FetchTimeout         time.Duration
	// GenerateTimeout bounds one generation request, publish included. It
	// stays below HTTPWriteTimeout so the caller always gets an answer.
	GenerateTimeout      time.Duration
	MaxSourceBytes       int64
	MaxSourcePixels      int64
	SourceCacheTTL       time.Duration
	TransformConcurrency int
	ImageSourceAllowlist []string

	GeoIPDBPath        string
	DefaultLocale      string
	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		StorageDriver:     strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverSupabase)),
		StorageBaseURL:    strings.TrimRight(strings.TrimSpace(os.Getenv("STORAGE_BASE_URL")), "/"),
		StorageBucket:     getEnv("STORAGE_BUCKET", "gallery"),
		StorageServiceKey: os.Getenv("STORAGE_SERVICE_KEY"),
		StorageTimeout:    time.Second * time.Duration(getEnvInt("STORAGE_TIMEOUT_SECONDS", 20)),

		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),

		ScratchDir:           getEnv("SCRATCH_DIR", "./tmp/static_images"),
		FetchTimeout:         time.Second * time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 20)),
		GenerateTimeout:      time.Second * time.Duration(getEnvInt("GENERATE_TIMEOUT_SECONDS", 75)),
		MaxSourceBytes:       getEnvInt64("MAX_SOURCE_BYTES", 50<<20),
		MaxSourcePixels:      getEnvInt64("MAX_SOURCE_PIXELS", 100_000_000),
		SourceCacheTTL:       time.Second * time.Duration(getEnvInt("SOURCE_CACHE_TTL_SECONDS", 0)),
		TransformConcurrency: getEnvInt("TRANSFORM_CONCURRENCY", 2),

		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:      strings.ToLower(getEnv("DEFAULT_LOCALE", "fr")),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 90)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.StorageBaseURL == "" {
		return nil, fmt.Errorf("STORAGE_BASE_URL is required")
	}
	storageURL, err := url.Parse(cfg.StorageBaseURL)
	if err != nil || storageURL.Hostname() == "" {
		return nil, fmt.Errorf("STORAGE_BASE_URL %q is not an absolute url", cfg.StorageBaseURL)
	}

	switch cfg.StorageDriver {
	case StorageDriverSupabase:
	case StorageDriverS3:
		if cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "" {
			return nil, fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required for the s3 driver")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if cfg.DefaultLocale != "fr" && cfg.DefaultLocale != "en" {
		return nil, fmt.Errorf("DEFAULT_LOCALE must be fr or en, got %q", cfg.DefaultLocale)
	}

	if err := checkTimeouts(cfg); err != nil {
		return nil, err
	}

	cfg.ImageSourceAllowlist = mergeHosts(storageURL.Hostname(), splitList(os.Getenv("IMAGE_SOURCE_HOST_ALLOWLIST")))
	return cfg, nil
}

// checkTimeouts requires the worst case generation (one fetch plus create and
// overwrite calls) to fit GenerateTimeout, and GenerateTimeout to end before
// the server write deadline.
func checkTimeouts(cfg *Config) error {
	for name, d := range map[string]time.Duration{
		"FETCH_TIMEOUT_SECONDS":      cfg.FetchTimeout,
		"STORAGE_TIMEOUT_SECONDS":    cfg.StorageTimeout,
		"GENERATE_TIMEOUT_SECONDS":   cfg.GenerateTimeout,
		"HTTP_WRITE_TIMEOUT_SECONDS": cfg.HTTPWriteTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if worst := cfg.FetchTimeout + 2*cfg.StorageTimeout; worst > cfg.GenerateTimeout {
		return fmt.Errorf("GENERATE_TIMEOUT_SECONDS (%s) is shorter than fetch plus two storage calls (%s)", cfg.GenerateTimeout, worst)
	}
	if cfg.GenerateTimeout >= cfg.HTTPWriteTimeout {
		return fmt.Errorf("GENERATE_TIMEOUT_SECONDS (%s) must be below HTTP_WRITE_TIMEOUT_SECONDS (%s)", cfg.GenerateTimeout, cfg.HTTPWriteTimeout)
	}
	return nil
}

// mergeHosts returns the storage host plus extra, lowercased, deduplicated and sorted.
func mergeHosts(storageHost string, extra []string) []string {
	seen := map[string]struct{}{}
	hosts := []string{}
	for _, h := range append([]string{storageHost}, extra...) {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}
