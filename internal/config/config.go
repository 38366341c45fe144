package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"go-auth-service/internal/token"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	EmailDriverLog   = "log"
	EmailDriverSMTP  = "smtp"
	EmailDriverKafka = "kafka"
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	StoreDriver       string
	DatabaseURL       string
	DBMaxConns        int32
	DBMinConns        int32
	DBConnectAttempts int

	JWTAccessSecret      string
	JWTRefreshSecret     string
	JWTPurposeSecret     string
	JWTAccessTTL         time.Duration
	JWTRefreshTTL        time.Duration
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration
	BcryptCost           int
	PasswordHistorySize  int

	LedgerSweepInterval time.Duration
	LedgerUsedRetention time.Duration

	EmailDriver   string
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	MailFrom      string
	MailFromName  string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaUsername string
	KafkaPassword string
	AppBaseURL    string

	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int
	OpenAPISpecPath  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),

		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:        int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:        int32(getInt("DB_MIN_CONNS", 2)),
		DBConnectAttempts: getInt("DB_CONNECT_ATTEMPTS", 5),

		JWTAccessSecret:      strings.TrimSpace(os.Getenv("JWT_ACCESS_SECRET")),
		JWTRefreshSecret:     strings.TrimSpace(os.Getenv("JWT_REFRESH_SECRET")),
		JWTPurposeSecret:     strings.TrimSpace(os.Getenv("JWT_PURPOSE_SECRET")),
		JWTAccessTTL:         getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL:        getDuration("JWT_REFRESH_TTL", 168*time.Hour),
		VerificationTokenTTL: getDuration("VERIFICATION_TOKEN_TTL", 24*time.Hour),
		ResetTokenTTL:        getDuration("RESET_TOKEN_TTL", time.Hour),
		BcryptCost:           getInt("BCRYPT_COST", 10),
		PasswordHistorySize:  getInt("PASSWORD_HISTORY_SIZE", 5),

		LedgerSweepInterval: getDuration("LEDGER_SWEEP_INTERVAL", time.Hour),
		LedgerUsedRetention: getDuration("LEDGER_USED_RETENTION", 168*time.Hour),

		EmailDriver:   strings.ToLower(getEnv("EMAIL_DRIVER", EmailDriverLog)),
		SMTPHost:      strings.TrimSpace(os.Getenv("SMTP_HOST")),
		SMTPPort:      getInt("SMTP_PORT", 587),
		SMTPUsername:  strings.TrimSpace(os.Getenv("SMTP_USERNAME")),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		MailFrom:      strings.TrimSpace(os.Getenv("MAIL_FROM")),
		MailFromName:  strings.TrimSpace(os.Getenv("MAIL_FROM_NAME")),
		KafkaBrokers:  splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "auth.email"),
		KafkaUsername: strings.TrimSpace(os.Getenv("KAFKA_USERNAME")),
		KafkaPassword: os.Getenv("KAFKA_PASSWORD"),
		AppBaseURL:    getEnv("APP_BASE_URL", "http://localhost:3000"),

		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:     getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 20),
		OpenAPISpecPath:  getEnv("OPENAPI_SPEC_PATH", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if err := c.validateSecrets(); err != nil {
		return err
	}

	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive")
	}

	if c.VerificationTokenTTL <= 0 || c.ResetTokenTTL <= 0 {
		return fmt.Errorf("VERIFICATION_TOKEN_TTL and RESET_TOKEN_TTL must be positive")
	}

	if c.PasswordHistorySize < 1 {
		return fmt.Errorf("PASSWORD_HISTORY_SIZE must be at least 1")
	}

	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
		if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS/DB_MAX_CONNS are out of range")
		}
		if c.DBConnectAttempts < 1 {
			return fmt.Errorf("DB_CONNECT_ATTEMPTS must be at least 1")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER %q is not supported", c.StoreDriver)
	}

	switch c.EmailDriver {
	case EmailDriverLog:
	case EmailDriverSMTP:
		if c.SMTPHost == "" || c.MailFrom == "" {
			return fmt.Errorf("SMTP_HOST and MAIL_FROM are required when EMAIL_DRIVER=smtp")
		}
	case EmailDriverKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required when EMAIL_DRIVER=kafka")
		}
	default:
		return fmt.Errorf("EMAIL_DRIVER %q is not supported", c.EmailDriver)
	}

	if c.LedgerSweepInterval <= 0 {
		return fmt.Errorf("LEDGER_SWEEP_INTERVAL must be positive")
	}

	if strings.TrimSpace(c.AppBaseURL) == "" {
		return fmt.Errorf("APP_BASE_URL cannot be empty")
	}

	return nil
}

func (c *Config) validateSecrets() error {
	secrets := []struct {
		key   string
		value string
	}{
		{"JWT_ACCESS_SECRET", c.JWTAccessSecret},
		{"JWT_REFRESH_SECRET", c.JWTRefreshSecret},
		{"JWT_PURPOSE_SECRET", c.JWTPurposeSecret},
	}

	var errs []error
	for _, s := range secrets {
		switch {
		case s.value == "":
			errs = append(errs, fmt.Errorf("%s is required", s.key))
		case len(s.value) < token.MinSecretLength:
			errs = append(errs, fmt.Errorf("%s must be at least %d bytes", s.key, token.MinSecretLength))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for i := range secrets {
		for j := i + 1; j < len(secrets); j++ {
			if secrets[i].value == secrets[j].value {
				return fmt.Errorf("%s and %s must differ", secrets[i].key, secrets[j].key)
			}
		}
	}

	return nil
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
