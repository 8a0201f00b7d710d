package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Holds all configuration for the ingestion pipeline and the query service.
type Config struct {
	// HTTP API
	ServerPort string `mapstructure:"SERVER_PORT"`

	// Document store
	ElasticsearchURL string `mapstructure:"ELASTICSEARCH_URL"`
	ElasticUser      string `mapstructure:"ELASTICSEARCH_USER"`
	ElasticPassword  string `mapstructure:"ELASTICSEARCH_PASSWORD"`
	IndexName        string `mapstructure:"INDEX_NAME"`

	// Bundestag DIP API
	DIPBaseURL string `mapstructure:"DIP_BASE_URL"`
	DIPAPIKey  string `mapstructure:"DIP_API_KEY"`

	// European Parliament open-data API
	EUAPIBase     string `mapstructure:"EU_API_BASE"`
	EUPageLimit   int    `mapstructure:"EU_PAGE_LIMIT"`
	EUHTTPTimeout int    `mapstructure:"EU_HTTP_TIMEOUT"`
	EUTerm        int    `mapstructure:"EU_TERM"`

	// Scheduled daily runs: per-kind EU sample size and DIP document cap.
	// The EU listing has no date filter, so the sample cap is what keeps a
	// nightly run from walking the whole corpus.
	EUDailyLimit int `mapstructure:"EU_DAILY_LIMIT"`
	DailyMaxDocs int `mapstructure:"DAILY_MAX_DOCS"`

	// Upstream courtesy delay between requests, seconds.
	RequestDelayBase   float64 `mapstructure:"REQUEST_DELAY_BASE"`
	RequestDelayJitter float64 `mapstructure:"REQUEST_DELAY_JITTER"`

	// Pipeline
	BatchSize   int `mapstructure:"BATCH_SIZE"`
	MaxRetries  int `mapstructure:"MAX_RETRIES"`
	NumFetchers int `mapstructure:"NUM_FETCHERS"`

	// Search defaults
	PageSize int `mapstructure:"PAGE_SIZE"`

	// Optional cross-run dedup signature store
	RedisEnabled  bool   `mapstructure:"REDIS_ENABLED"`
	RedisHost     string `mapstructure:"REDIS_HOST"`
	RedisPort     string `mapstructure:"REDIS_PORT"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// Ingest run history database
	RunLogPath string `mapstructure:"RUNLOG_PATH"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// Initializes Viper and unmarshals config into our Config struct.
// Values come from environment variables with the defaults below.
func LoadConfig() (*Config, error) {
	viper.SetDefault("SERVER_PORT", "8080")

	viper.SetDefault("ELASTICSEARCH_URL", "http://localhost:9200")
	viper.SetDefault("ELASTICSEARCH_USER", "")
	viper.SetDefault("ELASTICSEARCH_PASSWORD", "")
	viper.SetDefault("INDEX_NAME", "protocols-v1")

	viper.SetDefault("DIP_BASE_URL", "https://search.dip.bundestag.de/api/v1")
	viper.SetDefault("DIP_API_KEY", "")

	viper.SetDefault("EU_API_BASE", "https://data.europarl.europa.eu/api/v2")
	viper.SetDefault("EU_PAGE_LIMIT", 5000)
	viper.SetDefault("EU_HTTP_TIMEOUT", 60)
	viper.SetDefault("EU_TERM", 10)

	viper.SetDefault("EU_DAILY_LIMIT", 1)
	viper.SetDefault("DAILY_MAX_DOCS", 2000)

	viper.SetDefault("REQUEST_DELAY_BASE", 0.5)
	viper.SetDefault("REQUEST_DELAY_JITTER", 0.5)

	viper.SetDefault("BATCH_SIZE", 500)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("NUM_FETCHERS", 4)

	viper.SetDefault("PAGE_SIZE", 10)

	viper.SetDefault("REDIS_ENABLED", false)
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)

	viper.SetDefault("RUNLOG_PATH", "ingest_runs.db")

	viper.SetDefault("LOG_LEVEL", "info")

	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}
