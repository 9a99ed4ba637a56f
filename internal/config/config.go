// Package config loads and validates the service configuration: one entry
// per model pool plus storage and monitoring settings, read from JSON with
// environment-variable overrides under the MODELAMM prefix.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/spf13/viper"
)

// PoolConfig describes one model pool. Big amounts are decimal strings in
// 10^18 fixed-point units.
type PoolConfig struct {
	ModelID            string `mapstructure:"model_id"`
	CrrPpm             uint32 `mapstructure:"crr_ppm"`
	TradeFeeBps        uint32 `mapstructure:"trade_fee_bps"`
	MaxTradeBps        uint32 `mapstructure:"max_trade_bps"`
	InfraAccrualBps    uint32 `mapstructure:"infra_accrual_bps"`
	IBRDurationSeconds int    `mapstructure:"ibr_duration_seconds"`
	FlatCurveThreshold string `mapstructure:"flat_curve_threshold"`
	FlatCurvePrice     string `mapstructure:"flat_curve_price"`
	InitialReserve     string `mapstructure:"initial_reserve"`
}

type Config struct {
	Pools           []PoolConfig `mapstructure:"pools"`
	PostgresURL     string       `mapstructure:"postgres_url"`
	MonitorInterval int          `mapstructure:"monitor_interval"`
	DebugLogging    bool         `mapstructure:"debug_logging"`
}

const (
	DefaultMonitorInterval = 5000 // milliseconds

	DefaultMaxTradeBps     = 1_000
	DefaultInfraAccrualBps = 7_000
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"monitor_interval": DefaultMonitorInterval,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvironmentVariables(v, &cfg)
	applyPoolDefaults(&cfg)

	return &cfg, validateConfig(&cfg)
}

func applyPoolDefaults(cfg *Config) {
	for i := range cfg.Pools {
		if cfg.Pools[i].MaxTradeBps == 0 {
			cfg.Pools[i].MaxTradeBps = DefaultMaxTradeBps
		}
		if cfg.Pools[i].InfraAccrualBps == 0 {
			cfg.Pools[i].InfraAccrualBps = DefaultInfraAccrualBps
		}
	}
}

func validateConfig(cfg *Config) error {
	if len(cfg.Pools) == 0 {
		return errors.New("no pools configured")
	}
	if cfg.MonitorInterval <= 0 {
		return errors.New("invalid monitor_interval")
	}

	seen := make(map[string]struct{}, len(cfg.Pools))
	for _, p := range cfg.Pools {
		if p.ModelID == "" {
			return errors.New("pool missing model_id")
		}
		if _, dup := seen[p.ModelID]; dup {
			return fmt.Errorf("duplicate pool for model %s", p.ModelID)
		}
		seen[p.ModelID] = struct{}{}

		if p.IBRDurationSeconds < 0 {
			return fmt.Errorf("pool %s: negative ibr_duration_seconds", p.ModelID)
		}
		for field, value := range map[string]string{
			"flat_curve_threshold": p.FlatCurveThreshold,
			"flat_curve_price":     p.FlatCurvePrice,
			"initial_reserve":      p.InitialReserve,
		} {
			if _, err := ParseAmount(value); err != nil {
				return fmt.Errorf("pool %s: invalid %s: %w", p.ModelID, field, err)
			}
		}
	}
	return nil
}

// ParseAmount parses a positive decimal integer string into a big amount.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, errors.New("empty amount")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q must be a positive integer", s)
	}
	return v, nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("MODELAMM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if dsn := v.GetString("POSTGRES_URL"); dsn != "" {
		cfg.PostgresURL = dsn
	}
}
