// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends accepted in STORAGE_BACKEND.
const (
	BackendLocal = "local"
	BackendMinio = "minio"
)

// Config holds all runtime configuration for the service.
// It is built once at startup and never mutated afterwards.
type Config struct {
	Port     string
	Key      string
	AppEnv   string
	LogLevel string

	// Filesystem layout: WorkDir/ServeDir/{FileDir,ImageDir} and WorkDir/TmpDir.
	WorkDir  string
	ServeDir string
	TmpDir   string
	FileDir  string
	ImageDir string

	MaxUploadBytes  int64
	UploadTimeout   time.Duration
	StrictUploadKey bool

	// Object storage (used when StorageBackend is "minio")
	StorageBackend   string
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool
}

// Load reads configuration from a .env file (if present) and environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading from environment")
	}

	maxUpload, err := strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", "104857600"), 10, 64)
	if err != nil || maxUpload <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be a positive integer")
	}
	timeout, err := time.ParseDuration(getEnv("UPLOAD_TIMEOUT", "5m"))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("UPLOAD_TIMEOUT must be a positive duration")
	}
	strict, err := strconv.ParseBool(getEnv("STRICT_UPLOAD_KEY", "false"))
	if err != nil {
		return nil, fmt.Errorf("parse STRICT_UPLOAD_KEY: %w", err)
	}
	useSSL, err := strconv.ParseBool(getEnv("STORAGE_USE_SSL", "false"))
	if err != nil {
		return nil, fmt.Errorf("parse STORAGE_USE_SSL: %w", err)
	}

	cfg := &Config{
		Port:     getEnv("PORT", "80"),
		Key:      getEnv("KEY", "key"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		WorkDir:  getEnv("WORK_DIR", "data"),
		ServeDir: getEnv("SERVE_DIR", "public"),
		TmpDir:   getEnv("TMP_DIR", "tmp"),
		FileDir:  getEnv("FILE_DIR", "f"),
		ImageDir: getEnv("IMAGE_DIR", "i"),

		MaxUploadBytes:  maxUpload,
		UploadTimeout:   timeout,
		StrictUploadKey: strict,

		StorageBackend:   strings.ToLower(getEnv("STORAGE_BACKEND", BackendLocal)),
		StorageEndpoint:  getEnv("STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey: getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
		StorageSecretKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
		StorageBucket:    getEnv("STORAGE_BUCKET", "filehost"),
		StorageUseSSL:    useSSL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that the rest of the service relies on.
func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"SERVE_DIR": c.ServeDir,
		"TMP_DIR":   c.TmpDir,
		"FILE_DIR":  c.FileDir,
		"IMAGE_DIR": c.ImageDir,
	} {
		if !isSingleElement(v) {
			return fmt.Errorf("%s must be a single directory name, got %q", name, v)
		}
	}
	if c.FileDir == c.ImageDir {
		return errors.New("FILE_DIR and IMAGE_DIR must differ")
	}
	switch c.StorageBackend {
	case BackendLocal, BackendMinio:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	return nil
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// ServeRoot is the directory holding both public subdirectories.
func (c *Config) ServeRoot() string {
	return filepath.Join(c.WorkDir, c.ServeDir)
}

// ScratchDir is where uploads are spooled before being published.
func (c *Config) ScratchDir() string {
	return filepath.Join(c.WorkDir, c.TmpDir)
}

// Subdirs returns the public subdirectory names, files first.
func (c *Config) Subdirs() []string {
	return []string{c.FileDir, c.ImageDir}
}

func isSingleElement(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
