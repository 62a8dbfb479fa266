package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	Port                   string `env:"PORT" envDefault:"8080"`
	AppEnv                 string `env:"APP_ENV" envDefault:"development"`
	DBUser                 string `env:"DB_USER,required"`
	DBPassword             string `env:"DB_PASSWORD,required"`
	DBHost                 string `env:"DB_HOST,required"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME,required"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`

	FirebaseProjectID string   `env:"FIREBASE_PROJECT_ID"`
	AdminUIDs         []string `env:"ADMIN_UIDS" envSeparator:","`

	// PublicBaseURL is where gateways send buyers back to and post webhooks.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	FrontendURL   string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	NodeID        int64  `env:"NODE_ID" envDefault:"1"`

	AllowDummyGateway        bool          `env:"ALLOW_DUMMY_GATEWAY" envDefault:"false"`
	GatewayTimeout           time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"15s"`
	MembershipMaxPrepaidDays int           `env:"MEMBERSHIP_MAX_PREPAID_DAYS" envDefault:"730"`

	PayPal   PayPalConfig   `envPrefix:"PAYPAL_"`
	Crypto   CryptoConfig   `envPrefix:"CRYPTO_"`
	Midtrans MidtransConfig `envPrefix:"MIDTRANS_"`
	Kafka    KafkaConfig    `envPrefix:"KAFKA_"`

	ArchiveBucket         string `env:"WEBHOOK_ARCHIVE_BUCKET"`
	GoogleCredentialsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type PayPalConfig struct {
	ClientID  string `env:"CLIENT_ID"`
	Secret    string `env:"SECRET"`
	BaseURL   string `env:"BASE_URL" envDefault:"https://api-m.sandbox.paypal.com"`
	WebhookID string `env:"WEBHOOK_ID"`
}

type CryptoConfig struct {
	APIKey    string `env:"API_KEY"`
	IPNSecret string `env:"IPN_SECRET"`
	BaseURL   string `env:"BASE_URL" envDefault:"https://api.nowpayments.io"`
}

type MidtransConfig struct {
	ServerKey  string `env:"SERVER_KEY"`
	Production bool   `env:"PRODUCTION" envDefault:"false"`
	IDRPerUSD  int64  `env:"IDR_PER_USD" envDefault:"16000"`
}

type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"novelshelf.commerce"`
}

var ErrDummyGatewayInProduction = errors.New("ALLOW_DUMMY_GATEWAY cannot be enabled when APP_ENV=production")

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.AllowDummyGateway && cfg.IsProduction() {
		return nil, ErrDummyGatewayInProduction
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
