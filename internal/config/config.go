package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

// Config carries every tunable policy knob. The bot's historical flows
// disagreed on amount bounds and confirmation steps between versions, so all
// of them are configuration here rather than hard-coded behavior.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	GatewayBaseURL     string `env:"GATEWAY_BASE_URL" envDefault:"https://services.santimpay.com/api/v1/gateway"`
	GatewayMerchantID  string `env:"GATEWAY_MERCHANT_ID,required"`
	GatewayPrivateKey  string `env:"GATEWAY_PRIVATE_KEY,required"` // EC private key, PEM
	GatewayCallbackURL string `env:"GATEWAY_CALLBACK_URL,required"`
	GatewayTimeoutS    int    `env:"GATEWAY_TIMEOUT_S" envDefault:"10"`

	CallbackSecret string `env:"CALLBACK_SECRET,required"`

	// Amount bounds in santim (1 ETB = 100 santim).
	TransferMin int64 `env:"TRANSFER_MIN" envDefault:"3000"`
	TransferMax int64 `env:"TRANSFER_MAX" envDefault:"200000"`
	WithdrawMin int64 `env:"WITHDRAW_MIN" envDefault:"3000"`
	WithdrawMax int64 `env:"WITHDRAW_MAX" envDefault:"200000"`
	DepositMin  int64 `env:"DEPOSIT_MIN" envDefault:"1000"`
	DepositMax  int64 `env:"DEPOSIT_MAX" envDefault:"2000000"`

	ConfirmTimeoutS int `env:"CONFIRM_TIMEOUT_S" envDefault:"120"`
	LockTTLS        int `env:"LOCK_TTL_S" envDefault:"60"`
	LockSweepS      int `env:"LOCK_SWEEP_S" envDefault:"30"`

	SignupBonus   int64   `env:"SIGNUP_BONUS" envDefault:"0"`
	ReferralBonus int64   `env:"REFERRAL_BONUS" envDefault:"100"`
	BonusRate     float64 `env:"BONUS_RATE" envDefault:"0.1"` // ETB credited per bonus point converted

	ReconcileIntervalS int `env:"RECONCILE_INTERVAL_S" envDefault:"5"`
	ReconcileBatch     int `env:"RECONCILE_BATCH" envDefault:"10"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) ConfirmTimeout() time.Duration { return time.Duration(c.ConfirmTimeoutS) * time.Second }
func (c *Config) LockTTL() time.Duration        { return time.Duration(c.LockTTLS) * time.Second }
func (c *Config) LockSweep() time.Duration      { return time.Duration(c.LockSweepS) * time.Second }
func (c *Config) GatewayTimeout() time.Duration { return time.Duration(c.GatewayTimeoutS) * time.Second }
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalS) * time.Second
}
