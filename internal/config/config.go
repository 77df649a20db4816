// Package config reads officeflow settings from the environment, optionally
// seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"

	"officeflow/internal/blob"
	"officeflow/internal/collection"
	"officeflow/internal/core"
)

// Config holds every runtime setting.
type Config struct {
	Environment string `env:"OFFICEFLOW_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`
	LogFile     string `env:"OFFICEFLOW_LOG_FILE"`

	DataRoot      string `env:"OFFICEFLOW_DATA_ROOT" envDefault:"./storage"`
	StorageDriver string `env:"OFFICEFLOW_STORAGE_DRIVER" envDefault:"file"`
	SQLitePath    string `env:"OFFICEFLOW_SQLITE_PATH"`
	PostgresDSN   string `env:"OFFICEFLOW_POSTGRES_DSN"`

	BlobDriver     string `env:"OFFICEFLOW_BLOB_DRIVER" envDefault:"fs"`
	BlobRoot       string `env:"OFFICEFLOW_BLOB_FS_ROOT"`
	S3Bucket       string `env:"OFFICEFLOW_BLOB_S3_BUCKET"`
	S3Region       string `env:"OFFICEFLOW_BLOB_S3_REGION"`
	S3Prefix       string `env:"OFFICEFLOW_BLOB_S3_PREFIX"`
	S3Endpoint     string `env:"OFFICEFLOW_BLOB_S3_ENDPOINT"`
	S3PathStyle    bool   `env:"OFFICEFLOW_BLOB_S3_PATH_STYLE" envDefault:"false"`
	S3AccessKey    string `env:"OFFICEFLOW_BLOB_S3_ACCESS_KEY_ID"`
	S3SecretKey    string `env:"OFFICEFLOW_BLOB_S3_SECRET_ACCESS_KEY"`
	S3SessionToken string `env:"OFFICEFLOW_BLOB_S3_SESSION_TOKEN"`

	HTTPAddr          string `env:"OFFICEFLOW_HTTP_ADDR" envDefault:":8080"`
	AllocationRetries int    `env:"OFFICEFLOW_ALLOCATION_RETRIES" envDefault:"5"`
}

// Load applies the given .env files (or ./.env when none are named and it
// exists) without overriding variables already set, then parses the
// environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("env file %s not found", f)
			}
			return Config{}, fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and incomplete backend settings.
func (c Config) Validate() error {
	switch collection.Driver(c.StorageDriver) {
	case collection.DriverFile, collection.DriverMemory, collection.DriverSQLite:
	case collection.DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("OFFICEFLOW_POSTGRES_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown OFFICEFLOW_STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch blob.Driver(c.BlobDriver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("OFFICEFLOW_BLOB_S3_BUCKET is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown OFFICEFLOW_BLOB_DRIVER %q", c.BlobDriver)
	}
	if c.AllocationRetries < 1 {
		return fmt.Errorf("OFFICEFLOW_ALLOCATION_RETRIES must be positive")
	}
	return nil
}

// Storage returns the collection backend settings.
func (c Config) Storage() core.StorageConfig {
	return core.StorageConfig{
		Driver:      collection.Driver(c.StorageDriver),
		Root:        c.DataRoot,
		SQLitePath:  c.SQLitePath,
		PostgresDSN: c.PostgresDSN,
	}
}

// Blob returns the attachment store settings. The fs root defaults to the
// data root.
func (c Config) Blob() blob.Config {
	root := c.BlobRoot
	if root == "" {
		root = c.DataRoot
	}
	return blob.Config{
		Driver: blob.Driver(c.BlobDriver),
		Root:   root,
		S3: blob.S3Config{
			Region:          c.S3Region,
			Bucket:          c.S3Bucket,
			Prefix:          c.S3Prefix,
			Endpoint:        c.S3Endpoint,
			AccessKeyID:     c.S3AccessKey,
			SecretAccessKey: c.S3SecretKey,
			SessionToken:    c.S3SessionToken,
			PathStyle:       c.S3PathStyle,
		},
	}
}
