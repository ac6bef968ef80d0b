package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every tunable the service needs. It is loaded once in main
// and passed explicitly to each component at construction; nothing reads the
// environment after startup.
type Config struct {
	Server    ServerConfig
	Supabase  SupabaseConfig
	Redis     RedisConfig
	Blob      BlobConfig
	Engine    EngineConfig
	KeyServer KeyServerConfig
	Packaging PackagingConfig
	Workers   WorkerConfig
}

type ServerConfig struct {
	Port       string
	APIVersion string
}

type SupabaseConfig struct {
	URL        string
	ServiceKey string
}

type RedisConfig struct {
	Addr     string
	Password string

	// Stream / consumer-group names for the three inbound subscriptions and
	// the outbound notification stream.
	JobRequestStream     string
	StorageTriggerStream string
	JobCompletionStream  string
	NotificationStream   string
	ConsumerGroup        string
}

type BlobConfig struct {
	Region       string
	OutputBucket string
	// ImageURI is the overlay image attached to storage-trigger jobs.
	ImageURI string
}

type EngineConfig struct {
	BaseURL   string
	ProjectID string
	Location  string
	// CompletionTopic is handed to the engine as the callback destination
	// for job completion events.
	CompletionTopic string
}

type KeyServerConfig struct {
	URL           string
	SecretID      string
	SecretVersion int
}

type PackagingConfig struct {
	MediaCDNBase string
}

type WorkerConfig struct {
	MaxWorkers int
	QueueSize  int
}

// Load reads the configuration from environment variables, applying defaults
// suitable for local development. It fails fast on values that must be set.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:       getEnv("SERVER_PORT", "8080"),
			APIVersion: getEnv("API_VERSION", "v1"),
		},
		Supabase: SupabaseConfig{
			URL:        os.Getenv("SUPABASE_URL"),
			ServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
		},
		Redis: RedisConfig{
			Addr:                 getEnv("REDIS_ADDR", "localhost:6379"),
			Password:             os.Getenv("REDIS_PASSWORD"),
			JobRequestStream:     getEnv("JOB_REQUEST_STREAM", "transcoder:job-requests"),
			StorageTriggerStream: getEnv("STORAGE_TRIGGER_STREAM", "transcoder:storage-triggers"),
			JobCompletionStream:  getEnv("JOB_COMPLETION_STREAM", "transcoder:job-completions"),
			NotificationStream:   getEnv("NOTIFICATION_STREAM", "transcoder:notifications"),
			ConsumerGroup:        getEnv("CONSUMER_GROUP", "transcoder-workers"),
		},
		Blob: BlobConfig{
			Region:       getEnv("BLOB_REGION", "ap-southeast-1"),
			OutputBucket: getEnv("OUTPUT_BUCKET", "transcoder-output"),
			ImageURI:     getEnv("OVERLAY_IMAGE_URI", ""),
		},
		Engine: EngineConfig{
			BaseURL:         os.Getenv("ENGINE_BASE_URL"),
			ProjectID:       os.Getenv("PROJECT_ID"),
			Location:        getEnv("LOCATION", "asia-southeast1"),
			CompletionTopic: getEnv("JOB_COMPLETION_TOPIC", "transcoder:job-completions"),
		},
		KeyServer: KeyServerConfig{
			URL:           os.Getenv("KEY_SERVER_URL"),
			SecretID:      os.Getenv("SECRET_ID"),
			SecretVersion: getEnvAsInt("SECRET_VERSION", 1),
		},
		Packaging: PackagingConfig{
			MediaCDNBase: getEnv("MEDIA_CDN_BASE", ""),
		},
		Workers: WorkerConfig{
			MaxWorkers: getEnvAsInt("MAX_WORKERS", 5),
			QueueSize:  getEnvAsInt("JOB_QUEUE_SIZE", 100),
		},
	}

	if cfg.Supabase.URL == "" || cfg.Supabase.ServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set")
	}
	if cfg.Engine.BaseURL == "" {
		return nil, fmt.Errorf("ENGINE_BASE_URL must be set")
	}
	if cfg.Engine.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID must be set")
	}
	if cfg.KeyServer.URL == "" {
		return nil, fmt.Errorf("KEY_SERVER_URL must be set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
