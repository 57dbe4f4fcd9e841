package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr           string
	DatabaseURL    string
	DataDir        string
	AssetDir       string
	AssetBucket    string
	AssetPrefix    string
	PublicBaseURL  string
	MaxAttempts    int
	JWTSecret      string
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaTimeout   time.Duration
	ArchiveBucket  string
	ArchivePrefix  string
	UIDir          string
	AllowedOrigins []string
	LogLevel       string
	Ephemeral      bool
}

const (
	defaultAddr          = ":3000"
	defaultDataDir       = "./data"
	defaultAssetDir      = "./images"
	defaultPublicBaseURL = "http://localhost:3000"
	defaultMaxAttempts   = 10000
	defaultLogLevel      = "info"
	defaultKafkaTimeout  = 10 * time.Second
)

// Load reads the OUTFIT_* environment. PORT is honoured when OUTFIT_ADDR
// is unset.
func Load() (Config, error) {
	addr := os.Getenv("OUTFIT_ADDR")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = defaultAddr
		}
	}
	cfg := Config{
		Addr:           addr,
		DatabaseURL:    firstNonEmpty(os.Getenv("OUTFIT_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		DataDir:        getEnv("OUTFIT_DATA_DIR", defaultDataDir),
		AssetDir:       getEnv("OUTFIT_ASSET_DIR", defaultAssetDir),
		AssetBucket:    os.Getenv("OUTFIT_ASSET_BUCKET"),
		AssetPrefix:    os.Getenv("OUTFIT_ASSET_PREFIX"),
		PublicBaseURL:  strings.TrimRight(getEnv("OUTFIT_PUBLIC_BASE_URL", defaultPublicBaseURL), "/"),
		MaxAttempts:    getInt("OUTFIT_MAX_ATTEMPTS", defaultMaxAttempts),
		JWTSecret:      os.Getenv("OUTFIT_JWT_SECRET"),
		KafkaBrokers:   splitList(os.Getenv("OUTFIT_KAFKA_BROKERS")),
		KafkaTopic:     os.Getenv("OUTFIT_KAFKA_TOPIC"),
		KafkaTimeout:   getDuration("OUTFIT_KAFKA_WRITE_TIMEOUT", defaultKafkaTimeout),
		ArchiveBucket:  os.Getenv("OUTFIT_ARCHIVE_BUCKET"),
		ArchivePrefix:  os.Getenv("OUTFIT_ARCHIVE_PREFIX"),
		UIDir:          os.Getenv("OUTFIT_UI_DIR"),
		AllowedOrigins: splitList(getEnv("OUTFIT_ALLOWED_ORIGINS", "*")),
		LogLevel:       getEnv("OUTFIT_LOG_LEVEL", defaultLogLevel),
		Ephemeral:      getBool("OUTFIT_EPHEMERAL", false),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("OUTFIT_MAX_ATTEMPTS must be positive, got %d", c.MaxAttempts)
	}
	if c.KafkaTimeout <= 0 {
		return fmt.Errorf("OUTFIT_KAFKA_WRITE_TIMEOUT must be positive, got %s", c.KafkaTimeout)
	}
	if (len(c.KafkaBrokers) == 0) != (c.KafkaTopic == "") {
		return fmt.Errorf("OUTFIT_KAFKA_BROKERS and OUTFIT_KAFKA_TOPIC must be set together")
	}
	return nil
}

// KafkaEnabled reports whether decision events should be published.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaTopic != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
