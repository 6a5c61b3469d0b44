package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Telegram TelegramConfig
	Loyalty  LoyaltyConfig
}

type ServerConfig struct {
	Port         string
	Environment  string
	AllowOrigins string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type TelegramConfig struct {
	BotToken  string
	WebAppURL string
	AdminIDs  []int64
}

// LoyaltyConfig holds the point-economy parameters, supplied once at startup.
// BonusPercents/MinThresholds are keyed by chain level 1..MaxDepth; operator
// overrides from loyalty_settings are merged on top via BonusService.Reload.
type LoyaltyConfig struct {
	BonusPercents map[int]float64
	MinThresholds map[int]float64
	MaxDepth      int
	GeoRadiusM    float64
	CodeAttempts  int
	SignupBonus   float64
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Name + "?sslmode=" + d.SSLMode
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			AllowOrigins: getEnv("ALLOW_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "karmabot"),
			Password: getEnv("DB_PASSWORD", "karmabot"),
			Name:     getEnv("DB_NAME", "karmabot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Telegram: TelegramConfig{
			BotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
			WebAppURL: getEnv("TELEGRAM_WEBAPP_URL", ""),
			AdminIDs:  parseIDList(getEnv("TELEGRAM_ADMIN_IDS", "")),
		},
		Loyalty: LoyaltyConfig{
			BonusPercents: map[int]float64{
				1: getEnvFloat("LOYALTY_BONUS_L1", 0.50),
				2: getEnvFloat("LOYALTY_BONUS_L2", 0.30),
				3: getEnvFloat("LOYALTY_BONUS_L3", 0.20),
			},
			MinThresholds: map[int]float64{
				1: getEnvFloat("LOYALTY_MIN_L1", 10.00),
				2: getEnvFloat("LOYALTY_MIN_L2", 5.00),
				3: getEnvFloat("LOYALTY_MIN_L3", 2.00),
			},
			MaxDepth:     3,
			GeoRadiusM:   getEnvFloat("LOYALTY_GEO_RADIUS_M", 100),
			CodeAttempts: getEnvInt("LOYALTY_CODE_ATTEMPTS", 3),
			SignupBonus:  getEnvFloat("LOYALTY_SIGNUP_BONUS", 0),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func parseIDList(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
