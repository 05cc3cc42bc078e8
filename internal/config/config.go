package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"family-ledger/internal/domain"
)

// Config centraliza la configuración del servicio.
type Config struct {
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
	AppName       string `env:"APP_NAME" envDefault:"Family Ledger"`
	HTTPPort      string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL   string `env:"DATABASE_URL"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"true"`

	JWTSecret            string `env:"JWT_SECRET,required"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"10080"`

	EmailProvider  string `env:"EMAIL_PROVIDER" envDefault:"log"`
	EmailFrom      string `env:"EMAIL_FROM"`
	EmailFromName  string `env:"EMAIL_FROM_NAME"`
	SMTPHost       string `env:"SMTP_HOST"`
	SMTPPort       int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser       string `env:"SMTP_USER"`
	SMTPPass       string `env:"SMTP_PASS"`
	SMTPUseTLS     bool   `env:"SMTP_USE_TLS" envDefault:"false"`
	SendGridAPIKey string `env:"SENDGRID_API_KEY"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	CodeTTL       time.Duration `env:"VERIFICATION_CODE_TTL" envDefault:"5m"`
	Cooldown      time.Duration `env:"VERIFICATION_COOLDOWN" envDefault:"60s"`
	MaxAttempts   int           `env:"VERIFICATION_MAX_ATTEMPTS" envDefault:"5"`
	Retention     time.Duration `env:"VERIFICATION_RETENTION" envDefault:"24h"`
	PurgeSchedule string        `env:"VERIFICATION_PURGE_SCHEDULE" envDefault:"@every 1h"`
	PolicyFile    string        `env:"POLICY_FILE"`

	StoreTimeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	EmailTimeout  time.Duration `env:"EMAIL_TIMEOUT" envDefault:"10s"`
	IssuerTimeout time.Duration `env:"ISSUER_TIMEOUT" envDefault:"3s"`

	RegisterThrottleWindow time.Duration `env:"REGISTER_THROTTLE_WINDOW" envDefault:"10m"`
	RegisterThrottleMax    int           `env:"REGISTER_THROTTLE_MAX" envDefault:"20"`

	CORSAllowOrigin string `env:"CORS_ALLOW_ORIGIN" envDefault:"*"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction indica si el proceso corre con APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Policy arma la politica de verificacion desde el entorno y, si existe,
// aplica encima el archivo POLICY_FILE.
func (c *Config) Policy() (domain.VerificationPolicy, error) {
	policy := domain.VerificationPolicy{
		CodeTTL:     c.CodeTTL,
		Cooldown:    c.Cooldown,
		MaxAttempts: c.MaxAttempts,
		Retention:   c.Retention,
	}
	if c.PolicyFile != "" {
		var err error
		policy, err = LoadPolicyFile(c.PolicyFile, policy)
		if err != nil {
			return domain.VerificationPolicy{}, err
		}
	}
	if err := policy.Validate(); err != nil {
		return domain.VerificationPolicy{}, err
	}
	return policy, nil
}

// LoadPolicyFile lee un YAML y sobreescribe solo las claves presentes en base.
func LoadPolicyFile(path string, base domain.VerificationPolicy) (domain.VerificationPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.VerificationPolicy{}, fmt.Errorf("read policy file: %w", err)
	}
	policy := base
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return domain.VerificationPolicy{}, fmt.Errorf("parse policy file: %w", err)
	}
	return policy, nil
}
