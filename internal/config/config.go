package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Mode             string
	Environment      string
	BaseURL          string
	HTTPAddr         string
	AuthCookieSecure bool

	OTLPEndpoint string

	Cloud     CloudConfig
	RateLimit RateLimitConfig
	Email     EmailConfig
	Bootstrap BootstrapConfig
	Scheduler SchedulerConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

type CloudConfig struct {
	Metrics CloudMetricsConfig
}

type CloudMetricsConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	AuthToken    string
	PushInterval time.Duration
}

// RateLimitConfig configures the redis-backed invitation limiter.
// An empty RedisAddr disables rate limiting and invite locks.
type RateLimitConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	InviteRate    float64
	InviteBurst   int
	LockTTL       time.Duration
}

// SchedulerConfig drives the background jobs. EnabledJobs empty means all.
type SchedulerConfig struct {
	Enabled          bool
	RunInterval      time.Duration
	BatchSize        int
	SessionRetention time.Duration
	EnabledJobs      []string
}

type EmailConfig struct {
	Provider     string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	From         string
}

type BootstrapConfig struct {
	LocalAuthEnabled bool
	AllowSignUp      bool
	AdminEmail       string
	AdminPassword    string
	AdminName        string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	mode := normalizeMode(getenv("APP_MODE", ModeOSS))
	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:          getenv("APP_SERVICE", "taskhub"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Mode:             mode,
		Environment:      environment,
		BaseURL:          strings.TrimRight(strings.TrimSpace(getenv("BASE_URL", "http://localhost:8080")), "/"),
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		AuthCookieSecure: authCookieSecure,
		OTLPEndpoint:     getenv("OTLP_ENDPOINT", "localhost:4317"),
		Cloud: CloudConfig{
			Metrics: CloudMetricsConfig{
				Enabled:      getenvBool("CLOUD_METRICS_ENABLED", false),
				Exporter:     strings.ToLower(getenv("CLOUD_METRICS_EXPORTER", "")),
				Endpoint:     strings.TrimSpace(getenv("CLOUD_METRICS_ENDPOINT", "")),
				AuthToken:    strings.TrimSpace(getenv("CLOUD_METRICS_AUTH_TOKEN", "")),
				PushInterval: getenvDuration("CLOUD_METRICS_PUSH_INTERVAL", time.Minute),
			},
		},
		RateLimit: RateLimitConfig{
			RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       int(getenvInt64("REDIS_DB", 0)),
			InviteRate:    getenvFloat("INVITE_RATE_PER_SECOND", 0.2),
			InviteBurst:   int(getenvInt64("INVITE_BURST", 10)),
			LockTTL:       getenvDuration("INVITE_LOCK_TTL", 5*time.Second),
		},
		Email: EmailConfig{
			Provider:     strings.ToLower(getenv("EMAIL_PROVIDER", "log")),
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			From:         getenv("EMAIL_FROM", "no-reply@taskhub.local"),
		},
		Bootstrap: BootstrapConfig{
			LocalAuthEnabled: getenvBool("AUTH_LOCAL_ENABLED", environment != "production"),
			AllowSignUp:      getenvBool("AUTH_LOCAL_ALLOW_SIGNUP", environment != "production"),
			AdminEmail:       strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_EMAIL", "")),
			AdminPassword:    getenv("BOOTSTRAP_ADMIN_PASSWORD", ""),
			AdminName:        getenv("BOOTSTRAP_ADMIN_NAME", "Admin"),
		},
		Scheduler: SchedulerConfig{
			Enabled:          getenvBool("SCHEDULER_ENABLED", true),
			RunInterval:      getenvDuration("SCHEDULER_RUN_INTERVAL", 30*time.Second),
			BatchSize:        int(getenvInt64("SCHEDULER_BATCH_SIZE", 100)),
			SessionRetention: getenvDuration("SCHEDULER_SESSION_RETENTION", 30*24*time.Hour),
			EnabledJobs:      getenvList("SCHEDULER_ENABLED_JOBS"),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "taskhub"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
	}

	return cfg
}

const (
	ModeOSS        = "oss"
	ModeCloud      = "cloud"
	ModeStandalone = "standalone"
)

func (c Config) IsCloud() bool {
	return c.Mode == ModeCloud
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func normalizeMode(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case ModeCloud:
		return ModeCloud
	case ModeStandalone, ModeOSS:
		return ModeOSS
	default:
		return ModeOSS
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
