// Package config loads the lottery server configuration from environment
// variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/luca-patrignani/mental-lottery/domain/lottery"
)

type Config struct {
	Addr string `env:"LOTTERY_ADDR" envDefault:"127.0.0.1:8545"`
	// Stake accepts unit suffixes, e.g. "0.01 ether" or "10000000000000000 wei".
	Stake          string        `env:"LOTTERY_STAKE" envDefault:"0.01"`
	DBPath         string        `env:"LOTTERY_DB" envDefault:"lottery.db"`
	KeyPath        string        `env:"LOTTERY_KEY" envDefault:"lottery.key"`
	Manager        string        `env:"LOTTERY_MANAGER"`
	InitialBalance string        `env:"LOTTERY_INITIAL_BALANCE" envDefault:"100"`
	RequestTTL     time.Duration `env:"LOTTERY_REQUEST_TTL" envDefault:"30s"`
	TLS            bool          `env:"LOTTERY_TLS" envDefault:"false"`
	LogLevel       string        `env:"LOTTERY_LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("LOTTERY_ADDR is empty")
	}
	stake, err := c.StakeAmount()
	if err != nil {
		return err
	}
	if !stake.IsPositive() {
		return fmt.Errorf("LOTTERY_STAKE must be positive, got %s", stake)
	}
	initial, err := c.InitialBalanceAmount()
	if err != nil {
		return err
	}
	if initial.IsNegative() {
		return fmt.Errorf("LOTTERY_INITIAL_BALANCE must not be negative, got %s", initial)
	}
	if c.RequestTTL <= 0 {
		return fmt.Errorf("LOTTERY_REQUEST_TTL must be positive, got %s", c.RequestTTL)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

func (c Config) StakeAmount() (decimal.Decimal, error) {
	d, err := lottery.ParseAmount(c.Stake)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("LOTTERY_STAKE: %w", err)
	}
	return d, nil
}

func (c Config) InitialBalanceAmount() (decimal.Decimal, error) {
	d, err := lottery.ParseAmount(c.InitialBalance)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("LOTTERY_INITIAL_BALANCE: %w", err)
	}
	return d, nil
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("LOTTERY_LOG_LEVEL: %w", err)
	}
	return lvl, nil
}
