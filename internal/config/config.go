package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Matcher   MatcherConfig
	Capture   CaptureConfig
	Web       WebConfig
	Location  *time.Location // time zone used to decide the attendance day
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type EmbeddingConfig struct {
	URL string // face embedding server, defaults to http://localhost:8000
	Dim int    // defaults to 128
}

type MatcherConfig struct {
	Metric                  string  `yaml:"metric"`
	Threshold               float64 `yaml:"threshold"`
	MinEmbeddingsPerStudent int     `yaml:"min_embeddings_per_student"`
	Index                   string  `yaml:"index"`
	HNSWNeighbors           int     `yaml:"hnsw_neighbors"`
}

type CaptureConfig struct {
	MaxSize     int    // longest image side sent to the extractor, in pixels
	SnapshotURL string // IP camera snapshot endpoint for the "snapshot" method
}

type WebConfig struct {
	Host           string   // listen address, defaults to 0.0.0.0
	Port           int      // listen port, defaults to 8080
	APIToken       string   // bearer token for the admin API, empty disables auth
	AllowedOrigins []string // extra CORS origins besides localhost
}

type fileConfig struct {
	Matcher MatcherConfig `yaml:"matcher"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a non-negative float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// splitList splits a comma-separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// loadMatcherDefaults parses the embedded defaults and, when MATCH_CONFIG_FILE
// is set, overlays that file on top.
func loadMatcherDefaults() (MatcherConfig, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(defaultsYAML, &fc); err != nil {
		// Embedded file, so this only fails on a broken build.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	path := os.Getenv("MATCH_CONFIG_FILE")
	if path == "" {
		return fc.Matcher, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fc.Matcher, fmt.Errorf("read matcher config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc.Matcher, fmt.Errorf("parse matcher config %s: %w", path, err)
	}
	return fc.Matcher, nil
}

func Load() (*Config, error) {
	matcher, err := loadMatcherDefaults()
	if err != nil {
		return nil, err
	}

	loc := time.Local
	if tz := os.Getenv("ATTENDANCE_TIMEZONE"); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid ATTENDANCE_TIMEZONE %q: %w", tz, err)
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
			Dim: envInt("EMBEDDING_DIM", 128),
		},
		Matcher: MatcherConfig{
			Metric:                  strings.ToLower(envString("MATCH_METRIC", matcher.Metric)),
			Threshold:               envFloat("MATCH_THRESHOLD", matcher.Threshold),
			MinEmbeddingsPerStudent: envInt("MATCH_MIN_EMBEDDINGS", matcher.MinEmbeddingsPerStudent),
			Index:                   strings.ToLower(envString("MATCH_INDEX", matcher.Index)),
			HNSWNeighbors:           envInt("MATCH_HNSW_NEIGHBORS", matcher.HNSWNeighbors),
		},
		Capture: CaptureConfig{
			MaxSize:     envInt("CAPTURE_MAX_SIZE", 1024),
			SnapshotURL: os.Getenv("CAPTURE_SNAPSHOT_URL"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			APIToken:       os.Getenv("WEB_API_TOKEN"),
			AllowedOrigins: splitList(os.Getenv("WEB_ALLOWED_ORIGINS")),
		},
		Location: loc,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	var errs []error
	switch c.Matcher.Metric {
	case "euclidean", "cosine":
	default:
		errs = append(errs, fmt.Errorf("unknown match metric %q (want euclidean or cosine)", c.Matcher.Metric))
	}
	switch c.Matcher.Index {
	case "linear", "hnsw":
	default:
		errs = append(errs, fmt.Errorf("unknown match index %q (want linear or hnsw)", c.Matcher.Index))
	}
	if c.Matcher.Threshold < 0 {
		errs = append(errs, errors.New("match threshold must not be negative"))
	}
	if c.Matcher.MinEmbeddingsPerStudent < 1 {
		errs = append(errs, errors.New("minimum embeddings per student must be at least 1"))
	}
	if c.Embedding.Dim < 1 {
		errs = append(errs, errors.New("embedding dimension must be positive"))
	}
	return errors.Join(errs...)
}
