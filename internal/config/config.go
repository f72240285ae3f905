// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// VehicleIDRule はオーナーのsubject idから所有車両IDを導出する規則。
// ソースには2種類の規則が存在するため、設定で明示的に選択する。
type VehicleIDRule string

const (
	// VehicleIDRuleSplit は最初のアンダースコア以降を大文字化する規則
	// （owner_v001 → V001）。ログイン画面が使用していた規則。
	VehicleIDRuleSplit VehicleIDRule = "split"
	// VehicleIDRuleSuffix は末尾4文字を大文字化する規則
	// （owner_v001 → V001）。セッション復元コードが使用していた規則。
	VehicleIDRuleSuffix VehicleIDRule = "suffix"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database（セッションスロットの永続化先）
	DatabaseURL string

	// Agents
	MasterAgentURL     string
	CustomerAgentURL   string
	SchedulingAgentURL string
	AgentTimeout       time.Duration

	// Polling
	PollInterval time.Duration
	HistoryLimit int

	// Session
	VehicleIDRule VehicleIDRule
	OwnerName     string
	OwnerPhone    string

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.MasterAgentURL = os.Getenv("MASTER_AGENT_URL")
	if cfg.MasterAgentURL == "" {
		missing = append(missing, "MASTER_AGENT_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.CustomerAgentURL = getEnvString("CUSTOMER_AGENT_URL", "http://127.0.0.1:8200")
	cfg.SchedulingAgentURL = getEnvString("SCHEDULING_AGENT_URL", "http://127.0.0.1:8300")
	cfg.AgentTimeout = getEnvDuration("AGENT_TIMEOUT", 10*time.Second)
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", 3*time.Second)
	cfg.HistoryLimit = getEnvInt("HISTORY_LIMIT", 20)
	cfg.OwnerName = getEnvString("OWNER_DISPLAY_NAME", "Fleet Operator")
	cfg.OwnerPhone = getEnvString("OWNER_PHONE", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")

	rule := getEnvString("VEHICLE_ID_RULE", string(VehicleIDRuleSplit))
	switch VehicleIDRule(rule) {
	case VehicleIDRuleSplit, VehicleIDRuleSuffix:
		cfg.VehicleIDRule = VehicleIDRule(rule)
	default:
		return nil, fmt.Errorf("invalid VEHICLE_ID_RULE: %q (expected %q or %q)",
			rule, VehicleIDRuleSplit, VehicleIDRuleSuffix)
	}

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
