package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the game service. It is constructed
// once at startup and injected into each component.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Game     GameConfig
	Wallet   WalletConfig
	Fraud    FraudConfig
	Gating   GatingConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ServerConfig holds server configuration
type ServerConfig struct {
	GRPCPort    string
	HTTPPort    string
	MetricsPort string
}

// GameConfig holds session and scoring configuration
type GameConfig struct {
	QuestionBatchMax    int
	SessionIdleTimeout  time.Duration
	PeriodSweepInterval time.Duration
	BasePoints          int64
	MaxTimeBonus        int64
	BonusWindowSeconds  float64
}

// WalletConfig holds ad reward and daily bonus configuration
type WalletConfig struct {
	AdRewardAmount    decimal.Decimal
	AdRewardDailyCap  int
	DailyBonusAmount  decimal.Decimal
	FreeClaimInterval time.Duration
}

// FraudConfig holds fraud detection thresholds
type FraudConfig struct {
	FastAvgResponseSeconds float64
	HighAccuracy           float64
	ResponseVarianceFloor  float64
	MinVarianceSamples     int
	SharedDeviceUserLimit  int
	ScoreSpikeMultiplier   float64
}

// GatingConfig holds winner gating configuration. ConversionRate converts
// payout credits to the reference currency for lifetime earnings; it is
// explicit, versioned configuration rather than a live rate feed.
type GatingConfig struct {
	FreeThreshold       decimal.Decimal
	PaidThreshold       decimal.Decimal
	TournamentThreshold decimal.Decimal
	ConversionRate      decimal.Decimal
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 3306),
			User:            getEnv("DB_USER", "root"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_DATABASE", "onetrivia"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Server: ServerConfig{
			GRPCPort:    getEnv("GRPC_PORT", "50055"),
			HTTPPort:    getEnv("HTTP_PORT", "8085"),
			MetricsPort: getEnv("METRICS_PORT", "9105"),
		},
		Game: GameConfig{
			QuestionBatchMax:    getEnvInt("QUESTION_BATCH_MAX", 20),
			SessionIdleTimeout:  getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
			PeriodSweepInterval: getEnvDuration("PERIOD_SWEEP_INTERVAL", time.Minute),
			BasePoints:          int64(getEnvInt("SCORE_BASE_POINTS", 10)),
			MaxTimeBonus:        int64(getEnvInt("SCORE_MAX_TIME_BONUS", 5)),
			BonusWindowSeconds:  getEnvFloat("SCORE_BONUS_WINDOW_SECONDS", 10),
		},
		Wallet: WalletConfig{
			AdRewardAmount:    getEnvDecimal("AD_REWARD_AMOUNT", "5"),
			AdRewardDailyCap:  getEnvInt("AD_REWARD_DAILY_CAP", 5),
			DailyBonusAmount:  getEnvDecimal("DAILY_BONUS_AMOUNT", "10"),
			FreeClaimInterval: getEnvDuration("FREE_CLAIM_INTERVAL", 24*time.Hour),
		},
		Fraud: FraudConfig{
			FastAvgResponseSeconds: getEnvFloat("FRAUD_FAST_AVG_RESPONSE_SECONDS", 2.0),
			HighAccuracy:           getEnvFloat("FRAUD_HIGH_ACCURACY", 0.95),
			ResponseVarianceFloor:  getEnvFloat("FRAUD_RESPONSE_VARIANCE_FLOOR", 0.25),
			MinVarianceSamples:     getEnvInt("FRAUD_MIN_VARIANCE_SAMPLES", 50),
			SharedDeviceUserLimit:  getEnvInt("FRAUD_SHARED_DEVICE_USER_LIMIT", 3),
			ScoreSpikeMultiplier:   getEnvFloat("FRAUD_SCORE_SPIKE_MULTIPLIER", 2.0),
		},
		Gating: GatingConfig{
			FreeThreshold:       getEnvDecimal("GATING_FREE_THRESHOLD", "0.5"),
			PaidThreshold:       getEnvDecimal("GATING_PAID_THRESHOLD", "2"),
			TournamentThreshold: getEnvDecimal("GATING_TOURNAMENT_THRESHOLD", "5"),
			ConversionRate:      getEnvDecimal("EARNINGS_CONVERSION_RATE", "0.0012"),
		},
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key, defaultValue string) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(defaultValue)
	return d
}
