// Package cfg provides configuration for the assetgraph tool.
package cfg

import (
	"os"
	"strconv"
	"time"
)

// Config holds tool configuration.
type Config struct {
	// DB is the path of the SQLite asset store.
	DB string
	// Propagate enables propagation of base changes to derived assets.
	Propagate bool
	// Debug enables debug logging.
	Debug bool
	// BusyTimeout is how long the store waits on a locked database.
	BusyTimeout time.Duration
	// CompressionLevel is the zstd level used for stored documents
	// (1 fastest, 4 best).
	CompressionLevel int
}

// FromEnv creates a Config from environment variables.
func FromEnv() *Config {
	return &Config{
		DB:               getEnv("ASSETGRAPH_DB", "assetgraph.db"),
		Propagate:        getEnvBool("ASSETGRAPH_PROPAGATE", true),
		Debug:            getEnvBool("ASSETGRAPH_DEBUG", false),
		BusyTimeout:      getEnvDuration("ASSETGRAPH_BUSY_TIMEOUT", 5*time.Second),
		CompressionLevel: getEnvInt("ASSETGRAPH_COMPRESSION_LEVEL", 2),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
