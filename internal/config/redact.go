package config

import (
	"fmt"
	"net/url"
	"strings"
)

const redactedSuffix = "...redacted"

// FormatRedacted renders the resolved configuration for -config-only output.
// Secrets are masked; URIs keep their host but lose credentials.
func FormatRedacted(cfg Config) string {
	integrations := cfg.Integrations()

	lines := []string{
		fmt.Sprintf("app_env: %s", cfg.AppEnv),
		fmt.Sprintf("log_level: %s", cfg.LogLevel),
		fmt.Sprintf("http_port: %d", cfg.HTTPPort),
		fmt.Sprintf("bot_transport: %s", cfg.Transport),
		fmt.Sprintf("telegram_token: %s", maskSecret(cfg.TelegramToken)),
		fmt.Sprintf("webapp_url: %s", valueOrUnset(cfg.WebAppURL)),
		fmt.Sprintf("admin_users: %d", len(cfg.AdminUserIDs)),
		fmt.Sprintf("session_store: %s", cfg.SessionStore),
	}

	switch cfg.SessionStore {
	case StoreMongo:
		lines = append(lines,
			fmt.Sprintf("mongo_uri: %s", redactURI(cfg.MongoURI)),
			fmt.Sprintf("mongo_db: %s", cfg.MongoDB),
		)
	case StoreRedis:
		lines = append(lines,
			fmt.Sprintf("redis_addr: %s", cfg.RedisAddr),
			fmt.Sprintf("redis_password: %s", maskSecret(cfg.RedisPassword)),
			fmt.Sprintf("redis_db: %d", cfg.RedisDB),
		)
	}

	lines = append(lines,
		fmt.Sprintf("google_services: %t", integrations.Google),
		fmt.Sprintf("google_sheets: %t", integrations.Sheets),
		fmt.Sprintf("sink_failures_in_health: %t", cfg.SinkFailuresInHealth),
		fmt.Sprintf("require_init_data: %t", cfg.RequireInitData),
		fmt.Sprintf("external_call_timeout: %s", cfg.CallTimeout),
	)

	return strings.Join(lines, "\n")
}

func maskSecret(value string) string {
	if value == "" {
		return "<unset>"
	}
	if len(value) <= 4 {
		return redactedSuffix
	}
	return value[:4] + redactedSuffix
}

func valueOrUnset(value string) string {
	if value == "" {
		return "<unset>"
	}
	return value
}

func redactURI(raw string) string {
	if raw == "" {
		return "<unset>"
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return redactedSuffix
	}
	parsed.User = nil

	return parsed.String()
}
