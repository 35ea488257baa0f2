// Package config reads the service configuration from the environment.
// main loads a .env file first via godotenv autoload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	DefaultMaxFileSize           = 50 * 1024 * 1024
	DefaultTierThreshold         = 10 * 1024 * 1024
	DefaultPartialPrefixCap      = 2 * 1024 * 1024
	DefaultIdleExpiry            = 5 * time.Minute
	DefaultExtractionBudget      = 25 * time.Second
	DefaultExtractionHeadroom    = 2 * time.Second
	DefaultChunkFetchConcurrency = 4
)

type AWSConfig struct {
	Region    string
	AccountID string
}

func (c AWSConfig) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("AWS_REGION is required")
	}
	return nil
}

type DynamoDBConfig struct {
	SessionsTableName string
}

type S3Config struct {
	BucketName string
}

type RedisConfig struct {
	Host string
}

type ServiceConfig struct {
	HTTPAddr              string
	CompletionsQueueName  string
	MaxFileSize           uint64
	StorageTierThreshold  uint64
	PartialPrefixCap      uint64
	IdleExpiry            time.Duration
	ExtractionBudget      time.Duration
	ExtractionHeadroom    time.Duration
	ChunkFetchConcurrency int
}

type Config struct {
	Env         string
	Tracing     bool
	TracingAddr string

	AWSConfig      AWSConfig
	DynamoDBConfig DynamoDBConfig
	S3Config       S3Config
	RedisConfig    RedisConfig
	ServiceConfig  ServiceConfig
}

func LoadConfig() Config {
	return Config{
		Env:         getEnv("APP_ENV", "development"),
		Tracing:     getEnvBool("TRACING_ENABLED", false),
		TracingAddr: getEnv("TRACING_ADDR", "localhost:4317"),

		AWSConfig: AWSConfig{
			Region:    getEnv("AWS_REGION", "us-east-1"),
			AccountID: getEnv("AWS_ACCOUNT_ID", ""),
		},
		DynamoDBConfig: DynamoDBConfig{
			SessionsTableName: getEnv("SESSIONS_TABLE_NAME", "upload_sessions"),
		},
		S3Config: S3Config{
			BucketName: getEnv("CHUNKS_BUCKET_NAME", "psd-upload-chunks"),
		},
		RedisConfig: RedisConfig{
			Host: getEnv("REDIS_HOST", "localhost:6379"),
		},
		ServiceConfig: ServiceConfig{
			HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
			CompletionsQueueName:  getEnv("COMPLETIONS_QUEUE_NAME", "psd-extraction-completions"),
			MaxFileSize:           getEnvUint("MAX_FILE_SIZE", DefaultMaxFileSize),
			StorageTierThreshold:  getEnvUint("STORAGE_TIER_THRESHOLD", DefaultTierThreshold),
			PartialPrefixCap:      getEnvUint("PARTIAL_PREFIX_CAP", DefaultPartialPrefixCap),
			IdleExpiry:            getEnvDuration("SESSION_IDLE_EXPIRY", DefaultIdleExpiry),
			ExtractionBudget:      getEnvDuration("EXTRACTION_BUDGET", DefaultExtractionBudget),
			ExtractionHeadroom:    getEnvDuration("EXTRACTION_HEADROOM", DefaultExtractionHeadroom),
			ChunkFetchConcurrency: DefaultChunkFetchConcurrency,
		},
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvUint(key string, fallback uint64) uint64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
