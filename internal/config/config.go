package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseDriver       string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret string

	LogLevel  string
	LogPretty bool

	Reminder ReminderConfig
	SMTP     SMTPConfig
	Redis    RedisConfig
}

// ReminderConfig mirrors the REMINDER_* / JOB_* variables. Zero values are
// meaningful for the two minute offsets, so they are kept as plain ints.
type ReminderConfig struct {
	DefaultMinutes      int
	OverdueGraceMinutes int
	PollInterval        time.Duration
	BatchSize           int
	BaseBackoff         time.Duration
	MaxAttempts         int
	SendTimeout         time.Duration
	RunningLease        time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether enough is configured to deliver real email.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseDriver:       strings.ToLower(getenv("DATABASE_DRIVER", "postgres")),
		DatabaseURL:          mustGetenv("DATABASE_URL"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		LogLevel:             getenv("LOG_LEVEL", "info"),
		LogPretty:            getenv("LOG_PRETTY", "false") == "true",
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	cfg.JWTSecret = mustGetenv("JWT_SECRET")

	cfg.Reminder = ReminderConfig{
		DefaultMinutes:      getint("REMINDER_MINUTES", 1440),
		OverdueGraceMinutes: getint("OVERDUE_GRACE_MINUTES", 0),
		PollInterval:        getmillis("JOB_POLL_INTERVAL_MS", 60000),
		BatchSize:           getint("JOB_BATCH_SIZE", 50),
		BaseBackoff:         getmillis("JOB_BASE_BACKOFF_MS", 60000),
		MaxAttempts:         getint("JOB_MAX_ATTEMPTS", 5),
		SendTimeout:         getmillis("JOB_SEND_TIMEOUT_MS", 30000),
		RunningLease:        getmillis("JOB_RUNNING_LEASE_MS", 5*60*1000),
	}

	cfg.SMTP = SMTPConfig{
		Host:     getenv("SMTP_HOST", ""),
		Port:     getint("SMTP_PORT", 587),
		Username: getenv("SMTP_USERNAME", ""),
		Password: getenv("SMTP_PASSWORD", ""),
		From:     getenv("SMTP_FROM", ""),
	}

	cfg.Redis = RedisConfig{
		Addr:     getenv("REDIS_ADDR", ""),
		Password: getenv("REDIS_PASSWORD", ""),
		DB:       getint("REDIS_DB", 0),
	}

	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getint(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getmillis(key string, def int) time.Duration {
	n := getint(key, def)
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Millisecond
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}
