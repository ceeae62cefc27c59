package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all runtime configuration derived from environment variables
// and an optional config file.
type Config struct {
	Port               string
	AuthToken          string
	JWTSecret          string
	DBURL              string
	PaypalURL          string
	PaypalClientID     string
	PaypalClientSecret string
	PaypalTimeoutSecs  int
	ReadTimeoutSecs    int
	WriteTimeoutSecs   int
	IdleTimeoutSecs    int
	DBMaxConns         int
	DBMinConns         int
	DBMaxIdleSecs      int
	DBMaxLifeSecs      int
	DBConnTimeoutSecs  int
	DBStatementCache   int
	OutlierWeight      float64
	RateLimitPerMin    int
	RateLimitBurst     int
	LogLevel           string
	LogFormat          string
}

var defaults = map[string]any{
	"PORT":                        "8080",
	"PAYPAL_TIMEOUT_SECS":         10,
	"SERVER_READ_TIMEOUT":         15,
	"SERVER_WRITE_TIMEOUT":        15,
	"SERVER_IDLE_TIMEOUT":         60,
	"DB_MAX_CONNS":                20,
	"DB_MIN_CONNS":                2,
	"DB_MAX_CONN_IDLE_SECS":       300,
	"DB_MAX_CONN_LIFETIME_SECS":   3600,
	"DB_CONN_TIMEOUT_SECS":        10,
	"DB_STATEMENT_CACHE_CAPACITY": 256,
	"RATING_OUTLIER_WEIGHT":       0.5,
	"RATE_LIMIT_PER_MIN":          60,
	"RATE_LIMIT_BURST":            10,
	"LOG_LEVEL":                   "info",
	"LOG_FORMAT":                  "json",
}

// Load reads configuration, applying defaults and validation. Environment
// variables take precedence over the file named by CONFIG_FILE.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read CONFIG_FILE %s: %w", path, err)
		}
	}

	cfg := Config{
		Port:               v.GetString("PORT"),
		AuthToken:          v.GetString("AUTH_TOKEN"),
		JWTSecret:          v.GetString("JWT_SECRET"),
		DBURL:              v.GetString("DB_URL"),
		PaypalURL:          v.GetString("PAYPAL_URL"),
		PaypalClientID:     v.GetString("PAYPAL_CLIENT_ID"),
		PaypalClientSecret: v.GetString("PAYPAL_CLIENT_SECRET"),
		PaypalTimeoutSecs:  v.GetInt("PAYPAL_TIMEOUT_SECS"),
		ReadTimeoutSecs:    v.GetInt("SERVER_READ_TIMEOUT"),
		WriteTimeoutSecs:   v.GetInt("SERVER_WRITE_TIMEOUT"),
		IdleTimeoutSecs:    v.GetInt("SERVER_IDLE_TIMEOUT"),
		DBMaxConns:         v.GetInt("DB_MAX_CONNS"),
		DBMinConns:         v.GetInt("DB_MIN_CONNS"),
		DBMaxIdleSecs:      v.GetInt("DB_MAX_CONN_IDLE_SECS"),
		DBMaxLifeSecs:      v.GetInt("DB_MAX_CONN_LIFETIME_SECS"),
		DBConnTimeoutSecs:  v.GetInt("DB_CONN_TIMEOUT_SECS"),
		DBStatementCache:   v.GetInt("DB_STATEMENT_CACHE_CAPACITY"),
		OutlierWeight:      v.GetFloat64("RATING_OUTLIER_WEIGHT"),
		RateLimitPerMin:    v.GetInt("RATE_LIMIT_PER_MIN"),
		RateLimitBurst:     v.GetInt("RATE_LIMIT_BURST"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:          strings.ToLower(v.GetString("LOG_FORMAT")),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDatabase reads only what the migrate command needs.
func LoadDatabase() (string, error) {
	v := viper.New()
	v.AutomaticEnv()
	dbURL := v.GetString("DB_URL")
	if dbURL == "" {
		return "", fmt.Errorf("DB_URL is required")
	}
	return dbURL, nil
}

func (cfg Config) validate() error {
	if cfg.AuthToken == "" {
		return fmt.Errorf("AUTH_TOKEN is required")
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.DBURL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if cfg.PaypalURL == "" {
		return fmt.Errorf("PAYPAL_URL is required")
	}
	if cfg.PaypalClientID == "" || cfg.PaypalClientSecret == "" {
		return fmt.Errorf("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET are required")
	}
	if cfg.PaypalTimeoutSecs <= 0 {
		return fmt.Errorf("PAYPAL_TIMEOUT_SECS must be positive")
	}
	if cfg.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if cfg.OutlierWeight <= 0 || cfg.OutlierWeight > 1 {
		return fmt.Errorf("RATING_OUTLIER_WEIGHT must be in (0, 1]")
	}
	if cfg.RateLimitPerMin <= 0 || cfg.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MIN and RATE_LIMIT_BURST must be positive")
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}
	return nil
}
