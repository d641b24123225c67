package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

type DBConfig struct {
	Driver          string // postgres or sqlite
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type RealtimeConfig struct {
	FeedLimit    int
	ViewCacheTTL time.Duration
}

type CommissionConfig struct {
	SplitMode string
}

type Config struct {
	Environment string
	LogLevel    string
	MediaDir    string
	CompanyName string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Realtime    RealtimeConfig
	Commission  CommissionConfig
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// Load reads configs/.env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		MediaDir:    v.GetString("MEDIA_DIR"),
		CompanyName: v.GetString("COMPANY_NAME"),
		HTTP: HTTPConfig{
			Host:        v.GetString("HTTP_HOST"),
			Port:        v.GetInt("HTTP_PORT"),
			CORSOrigins: parseList(v.GetString("CORS_ORIGINS")),
		},
		DB: DBConfig{
			Driver:          strings.ToLower(v.GetString("DB_DRIVER")),
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
		},
		Realtime: RealtimeConfig{
			FeedLimit:    v.GetInt("FEED_LIMIT"),
			ViewCacheTTL: v.GetDuration("VIEW_CACHE_TTL"),
		},
		Commission: CommissionConfig{
			SplitMode: strings.ToLower(v.GetString("COMMISSION_SPLIT_MODE")),
		},
	}

	if cfg.DB.DSN == "" && cfg.DB.Driver == "postgres" {
		cfg.DB.DSN = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			v.GetString("DB_HOST"),
			v.GetString("DB_USER"),
			v.GetString("DB_PASSWORD"),
			v.GetString("DB_NAME"),
			v.GetString("DB_PORT"),
			v.GetString("DB_SSLMODE"),
		)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MEDIA_DIR", "./uploads")
	v.SetDefault("COMPANY_NAME", "Service Back Office")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "backoffice")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("FEED_LIMIT", 10)
	v.SetDefault("VIEW_CACHE_TTL", "5m")
	v.SetDefault("COMMISSION_SPLIT_MODE", "independent")
}

func validate(cfg *Config) error {
	switch cfg.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", cfg.DB.Driver)
	}
	if cfg.DB.Driver == "sqlite" && cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required for sqlite")
	}
	if cfg.Auth.JWTSecret == "" {
		if cfg.IsProduction() {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.Auth.JWTSecret = "development-only-secret"
	}
	switch cfg.Commission.SplitMode {
	case "independent", "proportional":
	default:
		return fmt.Errorf("COMMISSION_SPLIT_MODE must be independent or proportional, got %q", cfg.Commission.SplitMode)
	}
	if cfg.Realtime.FeedLimit <= 0 {
		return fmt.Errorf("FEED_LIMIT must be positive")
	}
	return nil
}

func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	items := strings.Split(raw, ",")
	result := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
