package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Discord
	DiscordToken   string
	DiscordGuildID string // 空の場合はグローバルコマンドとして登録する

	// Catalog API
	CatalogClientID     string
	CatalogClientSecret string
	CatalogBaseURL      string
	CatalogTokenURL     string
	CatalogScope        string
	CatalogRateLimit    float64 // req/sec
	CatalogTimeout      time.Duration

	// Schedule
	DefaultTerm      string
	DisplayTTL       time.Duration
	ProgressInterval time.Duration
	AssetsDir        string

	// Rate Limit
	InteractionRateLimit int // 1ユーザーあたり/分

	// Logging
	LogLevel string

	// Server
	ServerPort string
}

// LoadDotEnv は.envファイルを環境変数に読み込む。既に設定済みの変数は上書きしない。
// ファイルが存在しない場合は何もしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.DiscordToken = required("DISCORD_TOKEN")
	cfg.CatalogClientID = required("UM_API_CLIENT_ID")
	cfg.CatalogClientSecret = required("UM_API_CLIENT_SECRET")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DiscordGuildID = getEnvString("DISCORD_GUILD_ID", "")
	cfg.CatalogBaseURL = getEnvString("UM_API_BASE_URL", "https://gw.api.it.umich.edu/um/Curriculum/SOC")
	cfg.CatalogTokenURL = getEnvString("UM_API_TOKEN_URL", "https://gw.api.it.umich.edu/um/oauth2/token")
	cfg.CatalogScope = getEnvString("UM_API_SCOPE", "umscheduleofclasses")
	cfg.CatalogRateLimit = getEnvFloat("UM_API_RATE_LIMIT", 5)
	cfg.CatalogTimeout = getEnvDuration("UM_API_TIMEOUT", 10*time.Second)
	cfg.DefaultTerm = getEnvString("DEFAULT_TERM", "Winter 2023")
	cfg.DisplayTTL = getEnvDuration("SCHEDULE_DISPLAY_TTL", 14*time.Minute)
	cfg.ProgressInterval = getEnvDuration("SCHEDULE_PROGRESS_INTERVAL", 250*time.Millisecond)
	cfg.AssetsDir = getEnvString("ASSETS_DIR", "assets")
	cfg.InteractionRateLimit = getEnvInt("INTERACTION_RATE_LIMIT", 30)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
