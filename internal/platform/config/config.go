// Package config は環境変数または.envファイルからアプリケーション設定を読み込みます
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/jinford/jobwatch/internal/module/tracking/domain"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// API接続設定
	API APIConfig

	// IntentStore設定
	Store StoreConfig

	// ログ設定
	LogLevel  string
	LogFormat string

	// ジョブ種別ごとのポーリング方針
	Polling PollingConfig
}

// APIConfig はサーバーAPI接続設定
type APIConfig struct {
	BaseURL string
	Token   string
	// RequestsPerSecond は全アダプタ共有のレート上限
	RequestsPerSecond float64
}

// StoreConfig はクライアントローカルのIntentStore設定
type StoreConfig struct {
	// DatabasePath はSQLiteファイルのパス
	DatabasePath string
}

// ClassPollingConfig は1ジョブ種別分のポーリング設定
type ClassPollingConfig struct {
	Interval          time.Duration
	MaxDuration       time.Duration
	DegradedThreshold int
	SingleActive      bool
}

// PollingConfig はジョブ種別ごとのポーリング設定
type PollingConfig struct {
	IndexBuild    ClassPollingConfig
	ArchiveIngest ClassPollingConfig
	AssessmentRun ClassPollingConfig
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	defaults := domain.DefaultPolicies()
	cfg := &Config{
		API: APIConfig{
			BaseURL:           getEnv("JOBWATCH_API_BASE_URL", "http://localhost:8080"),
			Token:             getEnv("JOBWATCH_API_TOKEN", ""),
			RequestsPerSecond: getEnvAsFloat("JOBWATCH_API_RATE_LIMIT", 10),
		},
		Store: StoreConfig{
			DatabasePath: getEnv("JOBWATCH_DB_PATH", defaultDatabasePath()),
		},
		LogLevel:  getEnv("JOBWATCH_LOG_LEVEL", "info"),
		LogFormat: getEnv("JOBWATCH_LOG_FORMAT", "text"),
		Polling: PollingConfig{
			IndexBuild:    loadClassPolling("INDEX", defaults[domain.JobClassIndexBuild]),
			ArchiveIngest: loadClassPolling("ARCHIVE", defaults[domain.JobClassArchiveIngest]),
			AssessmentRun: loadClassPolling("ASSESS", defaults[domain.JobClassAssessmentRun]),
		},
	}

	return cfg, nil
}

// Policies は設定をドメインのClassPolicyに変換します
func (c *Config) Policies() map[domain.JobClass]domain.ClassPolicy {
	return map[domain.JobClass]domain.ClassPolicy{
		domain.JobClassIndexBuild:    c.Polling.IndexBuild.toPolicy(),
		domain.JobClassArchiveIngest: c.Polling.ArchiveIngest.toPolicy(),
		domain.JobClassAssessmentRun: c.Polling.AssessmentRun.toPolicy(),
	}
}

func (c ClassPollingConfig) toPolicy() domain.ClassPolicy {
	return domain.ClassPolicy{
		Interval:          c.Interval,
		MaxDuration:       c.MaxDuration,
		DegradedThreshold: c.DegradedThreshold,
		SingleActive:      c.SingleActive,
	}
}

// loadClassPolling は種別ごとのポーリング設定を環境変数から読み込みます
// 変数名は JOBWATCH_<PREFIX>_POLL_INTERVAL のような形式です
func loadClassPolling(prefix string, def domain.ClassPolicy) ClassPollingConfig {
	return ClassPollingConfig{
		Interval:          getEnvAsDuration("JOBWATCH_"+prefix+"_POLL_INTERVAL", def.Interval),
		MaxDuration:       getEnvAsDuration("JOBWATCH_"+prefix+"_MAX_DURATION", def.MaxDuration),
		DegradedThreshold: getEnvAsInt("JOBWATCH_"+prefix+"_DEGRADED_THRESHOLD", def.DegradedThreshold),
		SingleActive:      getEnvAsBool("JOBWATCH_"+prefix+"_SINGLE_ACTIVE", def.SingleActive),
	}
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "jobwatch.db"
	}
	return filepath.Join(home, ".jobwatch", "intents.db")
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数をtime.Durationとして取得します（例: "5s", "30m"）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
