package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"

	MailDriverSMTP  = "smtp"
	MailDriverBrevo = "brevo"
	MailDriverLog   = "log"
)

type Config struct {
	Env     string
	BaseURL string

	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration
	CORSOrigins             []string
	RateLimitRPM            int
	AuthRateLimitRPM        int
	LogLevel                string

	StoreDriver   string
	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32
	MongoURI      string
	MongoDatabase string
	RedisURL      string

	SecretKey           string
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	VerifyEmailTokenTTL time.Duration
	ResetTokenTTL       time.Duration
	OTPTTL              time.Duration
	OTPResendCooldown   time.Duration
	OTPCleanupInterval  time.Duration
	LoginRequireOTP     bool
	BcryptCost          int

	MailDriver   string
	MailFrom     string
	MailFromName string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	BrevoAPIKey  string

	AvatarRoot     string
	AvatarMaxBytes int64
	AvatarSize     int

	WebRoot          string
	GuardLoginPath   string
	GuardHomePath    string
	GuardAdminPrefix string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:     strings.ToLower(getEnv("NODE_ENV", EnvDevelopment)),
		BaseURL: strings.TrimRight(getEnv("NEXT_PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		RateLimitRPM:            getInt("RATE_LIMIT_RPM", 300),
		AuthRateLimitRPM:        getInt("AUTH_RATE_LIMIT_RPM", 30),
		LogLevel:                strings.ToLower(getEnv("LOG_LEVEL", "info")),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:    int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:    int32(getInt("DB_MIN_CONNS", 1)),
		MongoURI:      strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDatabase: getEnv("MONGO_DATABASE", "rainbow_buyers"),
		RedisURL:      strings.TrimSpace(os.Getenv("REDIS_URL")),

		SecretKey:           strings.TrimSpace(os.Getenv("SECRET_KEY")),
		AccessTokenTTL:      getDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
		RefreshTokenTTL:     getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		VerifyEmailTokenTTL: getDuration("VERIFY_EMAIL_TOKEN_TTL", time.Hour),
		ResetTokenTTL:       getDuration("RESET_TOKEN_TTL", 15*time.Minute),
		OTPTTL:              getDuration("OTP_TTL", 10*time.Minute),
		OTPResendCooldown:   getDuration("OTP_RESEND_COOLDOWN", 60*time.Second),
		OTPCleanupInterval:  getDuration("OTP_CLEANUP_INTERVAL", 5*time.Minute),
		LoginRequireOTP:     getBool("LOGIN_REQUIRE_OTP", true),
		BcryptCost:          getInt("BCRYPT_COST", 12),

		MailDriver:   strings.ToLower(getEnv("MAIL_DRIVER", MailDriverLog)),
		MailFrom:     getEnv("MAIL_FROM", "no-reply@rainbowbuyers.local"),
		MailFromName: getEnv("MAIL_FROM_NAME", "Rainbow Buyers"),
		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getInt("SMTP_PORT", 587),
		SMTPUsername: strings.TrimSpace(os.Getenv("SMTP_USERNAME")),
		SMTPPassword: strings.TrimSpace(os.Getenv("SMTP_PASSWORD")),
		BrevoAPIKey:  strings.TrimSpace(os.Getenv("BREVO_API_KEY")),

		AvatarRoot:     getEnv("AVATAR_ROOT", "./state/avatars"),
		AvatarMaxBytes: getInt64("AVATAR_MAX_BYTES", 2*1024*1024),
		AvatarSize:     getInt("AVATAR_SIZE", 256),

		WebRoot:          getEnv("WEB_ROOT", "./web"),
		GuardLoginPath:   getEnv("GUARD_LOGIN_PATH", "/auth/login"),
		GuardHomePath:    getEnv("GUARD_HOME_PATH", "/"),
		GuardAdminPrefix: getEnv("GUARD_ADMIN_PREFIX", "/admin"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}

	if c.IsProduction() && len(c.SecretKey) < 32 {
		return fmt.Errorf("SECRET_KEY must be at least 32 characters in production")
	}

	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("NODE_ENV must be one of development, production, test")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("NEXT_PUBLIC_BASE_URL is invalid: %w", err)
	}

	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS/DB_MAX_CONNS are inconsistent")
		}
	case StoreDriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORE_DRIVER=mongo")
		}
	case StoreDriverMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of postgres, mongo, memory")
	}

	switch c.MailDriver {
	case MailDriverSMTP:
		if c.SMTPHost == "" || c.SMTPPort <= 0 {
			return fmt.Errorf("SMTP_HOST and SMTP_PORT are required when MAIL_DRIVER=smtp")
		}
	case MailDriverBrevo:
		if c.BrevoAPIKey == "" {
			return fmt.Errorf("BREVO_API_KEY is required when MAIL_DRIVER=brevo")
		}
	case MailDriverLog:
	default:
		return fmt.Errorf("MAIL_DRIVER must be one of smtp, brevo, log")
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.VerifyEmailTokenTTL <= 0 || c.ResetTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}

	if c.RefreshTokenTTL < c.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL must not be shorter than ACCESS_TOKEN_TTL")
	}

	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}

	if c.OTPResendCooldown < 0 {
		return fmt.Errorf("OTP_RESEND_COOLDOWN cannot be negative")
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if strings.TrimSpace(c.AvatarRoot) == "" {
		return fmt.Errorf("AVATAR_ROOT cannot be empty")
	}

	if c.AvatarMaxBytes <= 0 || c.AvatarSize <= 0 {
		return fmt.Errorf("AVATAR_MAX_BYTES and AVATAR_SIZE must be positive")
	}

	if !strings.HasPrefix(c.GuardLoginPath, "/") || !strings.HasPrefix(c.GuardHomePath, "/") || !strings.HasPrefix(c.GuardAdminPrefix, "/") {
		return fmt.Errorf("GUARD_* paths must start with /")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
