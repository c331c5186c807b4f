package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rmb_tracker/classify"
)

type Config struct {
	DatabaseURL  string
	DBPath       string
	LogLevel     string
	LogPath      string
	TaxonomyPath string
	Scheduler    SchedulerConfig
	Scraper      ScraperConfig
	Metrics      MetricsConfig
	Archive      ArchiveConfig
	Proxy        ProxyConfig
}

type SchedulerConfig struct {
	ScrapeCron  string
	MetricsCron string
}

type ScraperConfig struct {
	DelayMS    int
	MaxRetries int
}

type MetricsConfig struct {
	StaleDays    int
	CompareDays  int
	TopEmployers int
}

// ArchiveConfig enables raw payload archival to S3-compatible storage.
type ArchiveConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string // optional: DO Spaces, R2, etc.
	AccessKeyID     string
	SecretAccessKey string
}

type ProxyConfig struct {
	URL string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnvFallback("DATABASE_URL", "SUPABASE_DB_URL"),
		DBPath:       getEnv("DB_PATH", "tracker.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogPath:      getEnv("LOG_PATH", "daemon.log"),
		TaxonomyPath: getEnv("TAXONOMY_PATH", "config/taxonomy.yaml"),
		Scheduler: SchedulerConfig{
			ScrapeCron:  os.Getenv("SCRAPE_CRON"),
			MetricsCron: os.Getenv("METRICS_CRON"),
		},
		Scraper: ScraperConfig{
			DelayMS:    getEnvInt("SCRAPE_DELAY_MS", 500),
			MaxRetries: getEnvInt("SCRAPE_MAX_RETRIES", 3),
		},
		Metrics: MetricsConfig{
			StaleDays:    getEnvInt("METRICS_STALE_DAYS", 60),
			CompareDays:  getEnvInt("METRICS_COMPARE_DAYS", 14),
			TopEmployers: getEnvInt("METRICS_TOP_EMPLOYERS", 10),
		},
		Archive: ArchiveConfig{
			Enabled:         os.Getenv("ARCHIVE_ENABLED") == "true",
			Bucket:          os.Getenv("ARCHIVE_S3_BUCKET"),
			Region:          getEnv("ARCHIVE_S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("ARCHIVE_S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("ARCHIVE_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("ARCHIVE_S3_SECRET_ACCESS_KEY"),
		},
		Proxy: ProxyConfig{
			URL: os.Getenv("PROXY_URL"),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Archive.Enabled && cfg.Archive.Bucket == "" {
		return nil, fmt.Errorf("ARCHIVE_S3_BUCKET is required when ARCHIVE_ENABLED=true")
	}

	return cfg, nil
}

// LoadTaxonomy reads the classifier rule file. A missing file is not an
// error: the shipped default taxonomy applies.
func (c *Config) LoadTaxonomy() (classify.Taxonomy, error) {
	data, err := os.ReadFile(c.TaxonomyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return classify.DefaultTaxonomy(), nil
		}
		return classify.Taxonomy{}, fmt.Errorf("read taxonomy: %w", err)
	}

	var t classify.Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return classify.Taxonomy{}, fmt.Errorf("parse taxonomy %s: %w", c.TaxonomyPath, err)
	}
	return t, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvFallback(key, fallbackKey string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return os.Getenv(fallbackKey)
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
