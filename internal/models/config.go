package models

import (
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	ServerAddr     string `yaml:"server_addr"`
	DatabaseURL    string `yaml:"database_url"`
	KafkaBroker    string `yaml:"kafka_broker"`
	KafkaTopic     string `yaml:"kafka_topic"`
	StorageBackend string `yaml:"storage_backend"` // local or gcs
	StoragePath    string `yaml:"storage_path"`
	PublicBaseURL  string `yaml:"public_base_url"`
	GCSBucket      string `yaml:"gcs_bucket"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	ListingLimit   int    `yaml:"listing_limit"`
	LogLevel       string `yaml:"log_level"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnv lets deployment-specific values override the file, so the same
// config.yaml works across environments.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("KAFKA_BROKER"); v != "" {
		c.KafkaBroker = v
	}
	if v := os.Getenv("GCS_BUCKET"); v != "" {
		c.GCSBucket = v
	}
}

func (c *Config) applyDefaults() {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.KafkaTopic == "" {
		c.KafkaTopic = "resize-jobs"
	}
	if c.StorageBackend == "" {
		c.StorageBackend = "local"
	}
	if c.StoragePath == "" {
		c.StoragePath = "./data"
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = 5 << 20
	}
	if c.ListingLimit == 0 {
		c.ListingLimit = 10
	}
}
