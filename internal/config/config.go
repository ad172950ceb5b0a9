// Package config defines the configuration contract and handles loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken      = "TELEGRAM_BOT_TOKEN"
	KeyWebAppURL          = "WEBAPP_URL"
	KeyAdminUserIDs       = "ADMIN_USER_IDS"
	KeyBotTransport       = "BOT_TRANSPORT"
	KeySessionStore       = "SESSION_STORE"
	KeyMongoURI           = "MONGO_URI"
	KeyMongoDB            = "MONGO_DB"
	KeyRedisAddr          = "REDIS_ADDR"
	KeyRedisPassword      = "REDIS_PASSWORD"
	KeyRedisDB            = "REDIS_DB"
	KeyGoogleProjectID    = "GOOGLE_PROJECT_ID"
	KeyGoogleClientEmail  = "GOOGLE_CLIENT_EMAIL"
	KeyGooglePrivateKey   = "GOOGLE_PRIVATE_KEY"
	KeyGoogleSheetID      = "GOOGLE_SHEET_ID"
	KeyGoogleSheetRange   = "GOOGLE_SHEET_RANGE"
	KeySinkFailuresHealth = "SINK_FAILURES_IN_HEALTH"
	KeyRequireInitData    = "MINIAPP_REQUIRE_INIT_DATA"
	KeyInitDataTTL        = "INIT_DATA_TTL"
	KeyCallTimeout        = "EXTERNAL_CALL_TIMEOUT"
	KeyAppEnv             = "APP_ENV"
	KeyLogLevel           = "LOG_LEVEL"
	KeyHTTPPort           = "HTTP_PORT"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Bot transports.
	TransportWebhook = "webhook"
	TransportPolling = "polling"

	// Session store backends.
	StoreMongo  = "mongo"
	StoreRedis  = "redis"
	StoreMemory = "memory"

	// Defaults for optional settings.
	DefaultAppEnv       = EnvProduction
	DefaultLogLevel     = "info"
	DefaultHTTPPort     = 8080
	DefaultTransport    = TransportWebhook
	DefaultSessionStore = StoreMongo
	DefaultMongoDB      = "tma_demo"
	DefaultRedisAddr    = "localhost:6379"
	DefaultSheetRange   = "Metrics!A:Z"
	DefaultCallTimeout  = 10 * time.Second
	DefaultInitDataTTL  = 24 * time.Hour
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the affected capability refuses to work without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
		Notes:       "Webhook mode keeps serving the API without it and answers webhooks with 500; polling mode refuses to start.",
	},
	{
		Key:         KeyWebAppURL,
		Example:     "https://example.com/app",
		Required:    true,
		Description: "Public URL of the Mini App opened by inline keyboard buttons.",
	},
	{
		Key:         KeyAdminUserIDs,
		Example:     "123456789,987654321",
		Description: "Comma separated Telegram user_ids allowed to use admin actions.",
	},
	{
		Key:         KeyBotTransport,
		Example:     TransportWebhook + " / " + TransportPolling,
		Default:     DefaultTransport,
		Description: "How Telegram updates reach the dispatcher.",
	},
	{
		Key:         KeySessionStore,
		Example:     StoreMongo + " / " + StoreRedis + " / " + StoreMemory,
		Default:     DefaultSessionStore,
		Description: "Backend holding user sessions.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Description: "MongoDB connection string.",
		Notes:       "Required when " + KeySessionStore + "=" + StoreMongo + ".",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDB,
		Default:     DefaultMongoDB,
		Description: "MongoDB database name.",
	},
	{
		Key:         KeyRedisAddr,
		Example:     DefaultRedisAddr,
		Default:     DefaultRedisAddr,
		Description: "Redis address used when " + KeySessionStore + "=" + StoreRedis + ".",
	},
	{
		Key:         KeyRedisPassword,
		Description: "Redis password.",
	},
	{
		Key:         KeyRedisDB,
		Example:     "0",
		Default:     "0",
		Description: "Redis logical database.",
	},
	{
		Key:         KeyGoogleProjectID,
		Description: "Google Cloud project of the service account writing metrics rows.",
	},
	{
		Key:         KeyGoogleClientEmail,
		Example:     "bot@project.iam.gserviceaccount.com",
		Description: "Service account e-mail.",
	},
	{
		Key:         KeyGooglePrivateKey,
		Description: "Service account PEM private key; literal \\n sequences are expanded.",
	},
	{
		Key:         KeyGoogleSheetID,
		Description: "Spreadsheet receiving one row per metrics snapshot.",
	},
	{
		Key:         KeyGoogleSheetRange,
		Example:     DefaultSheetRange,
		Default:     DefaultSheetRange,
		Description: "A1 range used by the append call.",
	},
	{
		Key:         KeySinkFailuresHealth,
		Example:     "false",
		Default:     "false",
		Description: "Expose the last spreadsheet append failure on /health.",
	},
	{
		Key:         KeyRequireInitData,
		Example:     "false",
		Default:     "false",
		Description: "Require signed Mini App init data on /api routes.",
	},
	{
		Key:         KeyInitDataTTL,
		Example:     DefaultInitDataTTL.String(),
		Default:     DefaultInitDataTTL.String(),
		Description: "Maximum age of Mini App init data; 0 disables the check.",
	},
	{
		Key:         KeyCallTimeout,
		Example:     DefaultCallTimeout.String(),
		Default:     DefaultCallTimeout.String(),
		Description: "Upper bound for every Bot API, store and sink call.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP port for webhooks, the Mini App API and diagnostics.",
	},
}

// Config mirrors resolved configuration values after loading. It is treated as
// immutable once Load returns.
type Config struct {
	TelegramToken string
	WebAppURL     string
	AdminUserIDs  []int64
	Transport     string
	SessionStore  string

	MongoURI      string
	MongoDB       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GoogleProjectID   string
	GoogleClientEmail string
	GooglePrivateKey  string
	GoogleSheetID     string
	GoogleSheetRange  string

	SinkFailuresInHealth bool
	RequireInitData      bool
	InitDataTTL          time.Duration
	CallTimeout          time.Duration

	AppEnv   string
	LogLevel string
	HTTPPort int
}

// Integrations reports which external capabilities are configured. Every
// "configured" flag shown to operators is derived here.
type Integrations struct {
	BotToken  bool `json:"botToken"`
	WebAppURL bool `json:"webappUrl"`
	Database  bool `json:"database"`
	Google    bool `json:"googleServices"`
	Sheets    bool `json:"googleSheets"`
	Admins    int  `json:"adminUsers"`
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:            firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:     strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		WebAppURL:         strings.TrimSpace(os.Getenv(KeyWebAppURL)),
		Transport:         firstNonEmpty(normalizeEnv(os.Getenv(KeyBotTransport)), DefaultTransport),
		SessionStore:      firstNonEmpty(normalizeEnv(os.Getenv(KeySessionStore)), DefaultSessionStore),
		MongoURI:          strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:           firstNonEmpty(os.Getenv(KeyMongoDB), DefaultMongoDB),
		RedisAddr:         firstNonEmpty(os.Getenv(KeyRedisAddr), DefaultRedisAddr),
		RedisPassword:     os.Getenv(KeyRedisPassword),
		GoogleProjectID:   strings.TrimSpace(os.Getenv(KeyGoogleProjectID)),
		GoogleClientEmail: strings.TrimSpace(os.Getenv(KeyGoogleClientEmail)),
		GooglePrivateKey:  strings.ReplaceAll(strings.TrimSpace(os.Getenv(KeyGooglePrivateKey)), `\n`, "\n"),
		GoogleSheetID:     strings.TrimSpace(os.Getenv(KeyGoogleSheetID)),
		GoogleSheetRange:  firstNonEmpty(os.Getenv(KeyGoogleSheetRange), DefaultSheetRange),
		LogLevel:          firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:          DefaultHTTPPort,
		CallTimeout:       DefaultCallTimeout,
		InitDataTTL:       DefaultInitDataTTL,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	if cfg.Transport != TransportWebhook && cfg.Transport != TransportPolling {
		return Config{}, fmt.Errorf("invalid %s: must be %q or %q", KeyBotTransport, TransportWebhook, TransportPolling)
	}

	switch cfg.SessionStore {
	case StoreMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("missing required environment variable(s): %s", KeyMongoURI)
		}
		if !strings.HasPrefix(cfg.MongoURI, "mongodb://") && !strings.HasPrefix(cfg.MongoURI, "mongodb+srv://") {
			return Config{}, fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
		}
	case StoreRedis, StoreMemory:
	default:
		return Config{}, fmt.Errorf("invalid %s: must be %q, %q or %q", KeySessionStore, StoreMongo, StoreRedis, StoreMemory)
	}

	if cfg.Transport == TransportPolling && cfg.TelegramToken == "" {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s (required for %s transport)", KeyTelegramToken, TransportPolling)
	}

	admins, err := parseUserIDs(os.Getenv(KeyAdminUserIDs))
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyAdminUserIDs, err)
	}
	cfg.AdminUserIDs = admins

	if raw := strings.TrimSpace(os.Getenv(KeyRedisDB)); raw != "" {
		db, parseErr := strconv.Atoi(raw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyRedisDB, parseErr)
		}
		cfg.RedisDB = db
	}

	if cfg.SinkFailuresInHealth, err = parseBool(KeySinkFailuresHealth); err != nil {
		return Config{}, err
	}
	if cfg.RequireInitData, err = parseBool(KeyRequireInitData); err != nil {
		return Config{}, err
	}

	if raw := strings.TrimSpace(os.Getenv(KeyCallTimeout)); raw != "" {
		timeout, parseErr := time.ParseDuration(raw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyCallTimeout, parseErr)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyCallTimeout)
		}
		cfg.CallTimeout = timeout
	}

	if raw := strings.TrimSpace(os.Getenv(KeyInitDataTTL)); raw != "" {
		ttl, parseErr := time.ParseDuration(raw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyInitDataTTL, parseErr)
		}
		if ttl < 0 {
			return Config{}, fmt.Errorf("%s must not be negative", KeyInitDataTTL)
		}
		cfg.InitDataTTL = ttl
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// IsAdmin reports whether userID is on the admin allow-list.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// SheetsConfigured reports whether every credential required by the
// spreadsheet sink is present.
func (c Config) SheetsConfigured() bool {
	return c.GoogleCredentialsConfigured() && c.GoogleSheetID != ""
}

// GoogleCredentialsConfigured reports whether a complete service account is set.
func (c Config) GoogleCredentialsConfigured() bool {
	return c.GoogleProjectID != "" && c.GoogleClientEmail != "" && c.GooglePrivateKey != ""
}

// MissingRequired lists required keys that are unset. Webhook handling is
// refused while this is non-empty.
func (c Config) MissingRequired() []string {
	missing := make([]string, 0, 2)
	if c.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}
	if c.WebAppURL == "" {
		missing = append(missing, KeyWebAppURL)
	}
	return missing
}

// Integrations derives the configured-integration summary.
func (c Config) Integrations() Integrations {
	return Integrations{
		BotToken:  c.TelegramToken != "",
		WebAppURL: c.WebAppURL != "",
		Database:  c.SessionStore != "",
		Google:    c.GoogleCredentialsConfigured(),
		Sheets:    c.SheetsConfigured(),
		Admins:    len(c.AdminUserIDs),
	}
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func parseUserIDs(raw string) ([]int64, error) {
	ids := make([]int64, 0)
	seen := make(map[int64]struct{})

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", part, err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids, nil
}

func parseBool(key string) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false, nil
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}

	return value, nil
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
