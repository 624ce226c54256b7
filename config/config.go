package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"landmark-quest/utils"
)

type Config struct {
	DatabaseURL      string
	GameServiceToken string
	Port             int
	AllowedOrigins   []string

	Game    GameConfig
	Workers WorkersConfig
	Logging LoggingConfig
	R2      utils.R2Config
}

type GameConfig struct {
	TimeZone          string
	Location          *time.Location
	DetectionRadius   float64
	ClaimRadius       float64
	MaxRadius         float64
	ClaimWriteTimeout time.Duration
	LeaderboardLimit  int
	UsernameCooldown  time.Duration
}

type WorkersConfig struct {
	CatalogRefreshInterval    time.Duration
	LeaderboardExportInterval time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 5200)
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("CLAIM_TIMEZONE", "UTC")
	v.SetDefault("DETECTION_RADIUS_M", 250.0)
	v.SetDefault("CLAIM_RADIUS_M", 20.0)
	v.SetDefault("MAX_RADIUS_M", 5000.0)
	v.SetDefault("CLAIM_WRITE_TIMEOUT", "5s")
	v.SetDefault("LEADERBOARD_LIMIT", 50)
	v.SetDefault("USERNAME_COOLDOWN", "168h")
	v.SetDefault("CATALOG_REFRESH_INTERVAL", "5m")
	v.SetDefault("LEADERBOARD_EXPORT_INTERVAL", "1h")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabaseURL:      v.GetString("DATABASE_URL"),
		GameServiceToken: v.GetString("GAME_SERVICE_TOKEN"),
		Port:             v.GetInt("PORT"),
		AllowedOrigins:   splitOrigins(v.GetString("ALLOWED_ORIGINS")),
		Game: GameConfig{
			TimeZone:          v.GetString("CLAIM_TIMEZONE"),
			DetectionRadius:   v.GetFloat64("DETECTION_RADIUS_M"),
			ClaimRadius:       v.GetFloat64("CLAIM_RADIUS_M"),
			MaxRadius:         v.GetFloat64("MAX_RADIUS_M"),
			ClaimWriteTimeout: v.GetDuration("CLAIM_WRITE_TIMEOUT"),
			LeaderboardLimit:  v.GetInt("LEADERBOARD_LIMIT"),
			UsernameCooldown:  v.GetDuration("USERNAME_COOLDOWN"),
		},
		Workers: WorkersConfig{
			CatalogRefreshInterval:    v.GetDuration("CATALOG_REFRESH_INTERVAL"),
			LeaderboardExportInterval: v.GetDuration("LEADERBOARD_EXPORT_INTERVAL"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		R2: utils.R2Config{
			AccountID:       v.GetString("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     v.GetString("R2_ACCESS_KEY_ID"),
			AccessKeySecret: v.GetString("R2_ACCESS_KEY_SECRET"),
			Bucket:          v.GetString("R2_BUCKET_NAME"),
			CDNBaseURL:      v.GetString("CDN_BASE_URL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the game tunables. DATABASE_URL and GAME_SERVICE_TOKEN are
// checked by the commands that need them.
func (c *Config) Validate() error {
	loc, err := time.LoadLocation(c.Game.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid CLAIM_TIMEZONE %q: %w", c.Game.TimeZone, err)
	}
	c.Game.Location = loc

	if c.Game.ClaimRadius <= 0 || c.Game.DetectionRadius <= 0 {
		return errors.New("DETECTION_RADIUS_M and CLAIM_RADIUS_M must be positive")
	}
	if c.Game.ClaimRadius > c.Game.DetectionRadius {
		return fmt.Errorf("CLAIM_RADIUS_M (%.0f) must not exceed DETECTION_RADIUS_M (%.0f)",
			c.Game.ClaimRadius, c.Game.DetectionRadius)
	}
	if c.Game.DetectionRadius > c.Game.MaxRadius {
		return fmt.Errorf("DETECTION_RADIUS_M (%.0f) exceeds MAX_RADIUS_M (%.0f)",
			c.Game.DetectionRadius, c.Game.MaxRadius)
	}
	if c.Game.ClaimWriteTimeout <= 0 {
		return errors.New("CLAIM_WRITE_TIMEOUT must be positive")
	}
	if c.Workers.CatalogRefreshInterval <= 0 || c.Workers.LeaderboardExportInterval <= 0 {
		return errors.New("worker intervals must be positive")
	}
	if c.Game.LeaderboardLimit <= 0 {
		c.Game.LeaderboardLimit = 50
	}
	return nil
}

func splitOrigins(raw string) []string {
	var out []string
	for _, origin := range strings.Split(raw, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			out = append(out, origin)
		}
	}
	return out
}
