package config

import (
	"fmt"
	"math"
	"os"

	"github.com/vitos/tg_signal_trader/internal/domain"
	"gopkg.in/yaml.v3"
)

// TPSplits divides the original position size across the exit ladder.
// Fractions of 1.0; validated to sum to exactly 100%.
type TPSplits struct {
	TP1    float64 `yaml:"tp1" json:"tp1"`
	TP2    float64 `yaml:"tp2" json:"tp2"`
	Runner float64 `yaml:"runner" json:"runner"`
}

// Settings is one immutable configuration snapshot. It is never mutated in
// place; the Manager swaps whole snapshots atomically.
type Settings struct {
	DryRun     bool   `yaml:"dry_run" json:"dry_run"`
	UseTestnet bool   `yaml:"use_testnet" json:"use_testnet"`
	QuoteAsset string `yaml:"quote_asset" json:"quote_asset"`

	CapitalEntryPctDefault float64 `yaml:"capital_entry_pct_default" json:"capital_entry_pct_default"`
	OverrideCapitalEnabled bool    `yaml:"override_capital_enabled" json:"override_capital_enabled"`
	MinNotionalUSDT        float64 `yaml:"min_notional_usdt" json:"min_notional_usdt"`
	RespectSpotOnly        bool    `yaml:"respect_spot_only" json:"respect_spot_only"`

	MaxSlippagePct            float64 `yaml:"max_slippage_pct" json:"max_slippage_pct"`
	UseLimitIfSlippageExceeds bool    `yaml:"use_limit_if_slippage_exceeds" json:"use_limit_if_slippage_exceeds"`
	LimitTimeInForceSec       int     `yaml:"limit_time_in_force_sec" json:"limit_time_in_force_sec"`

	TPSplits                 TPSplits `yaml:"tp_splits" json:"tp_splits"`
	StopLossMoveToBEAfterTP2 bool     `yaml:"stop_loss_move_to_be_after_tp2" json:"stop_loss_move_to_be_after_tp2"`
	TrailingRunnerEnabled    bool     `yaml:"trailing_runner_enabled" json:"trailing_runner_enabled"`
	TrailingPct              float64  `yaml:"trailing_pct" json:"trailing_pct"`
	TrailingPollSec          int      `yaml:"trailing_poll_sec" json:"trailing_poll_sec"`

	DefaultSLPct         float64 `yaml:"default_sl_pct" json:"default_sl_pct"`
	OverrideSLEnabled    bool    `yaml:"override_sl_enabled" json:"override_sl_enabled"`
	OverrideSLPct        float64 `yaml:"override_sl_pct" json:"override_sl_pct"`
	OverrideSLAsAbsolute bool    `yaml:"override_sl_as_absolute" json:"override_sl_as_absolute"`
	OverrideTPEnabled    bool    `yaml:"override_tp_enabled" json:"override_tp_enabled"`
	OverrideTPPct        float64 `yaml:"override_tp_pct" json:"override_tp_pct"`

	PreferSymbolInParens bool              `yaml:"prefer_symbol_in_parentheses" json:"prefer_symbol_in_parentheses"`
	FallbackToNameSearch bool              `yaml:"fallback_to_name_search" json:"fallback_to_name_search"`
	TokenAliases         map[string]string `yaml:"token_aliases" json:"token_aliases"`

	HeartbeatMaxIdleMin     float64 `yaml:"heartbeat_max_idle_min" json:"heartbeat_max_idle_min"`
	FlattenCheckIntervalMin float64 `yaml:"flatten_check_interval_min" json:"flatten_check_interval_min"`
	FlattenCancelsPending   bool    `yaml:"flatten_cancels_pending" json:"flatten_cancels_pending"`
	MaxHoldHours            float64 `yaml:"max_hold_hours" json:"max_hold_hours"`

	MachineName string `yaml:"machine_name" json:"machine_name"`
	LogLevel    string `yaml:"log_level" json:"log_level"`
	LogFile     string `yaml:"log_file" json:"log_file"` // empty = stderr only
	ServerPort  int    `yaml:"server_port" json:"server_port"`
}

// Defaults mirrors the settings the bot ships with.
func Defaults() Settings {
	return Settings{
		QuoteAsset:                "USDT",
		CapitalEntryPctDefault:    0.80,
		MinNotionalUSDT:           5,
		RespectSpotOnly:           true,
		MaxSlippagePct:            0.015,
		UseLimitIfSlippageExceeds: true,
		LimitTimeInForceSec:       180,
		TPSplits:                  TPSplits{TP1: 0.5, TP2: 0.3, Runner: 0.2},
		StopLossMoveToBEAfterTP2:  true,
		TrailingRunnerEnabled:     true,
		TrailingPct:               0.08,
		TrailingPollSec:           5,
		DefaultSLPct:              0.10,
		OverrideSLPct:             0.01,
		OverrideTPPct:             0.03,
		PreferSymbolInParens:      true,
		FallbackToNameSearch:      true,
		HeartbeatMaxIdleMin:       30,
		FlattenCheckIntervalMin:   10,
		FlattenCancelsPending:     true,
		MaxHoldHours:              0,
		LogLevel:                  "info",
		ServerPort:                8080,
	}
}

// Load reads a YAML settings file on top of the defaults and validates the
// result. A missing file yields the defaults, matching how the bot behaves
// on first start.
func Load(path string) (*Settings, error) {
	s := Defaults()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &s, nil
		}
		return nil, err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

const splitEpsilon = 1e-9

// Validate rejects a snapshot wholesale. A runtime TP-split mismatch would
// corrupt partial-close accounting, so the sum is enforced here and nowhere
// else.
func (s *Settings) Validate() error {
	var problems []string

	if s.QuoteAsset == "" {
		problems = append(problems, "quote_asset must not be empty")
	}
	if s.CapitalEntryPctDefault <= 0 || s.CapitalEntryPctDefault > 1 {
		problems = append(problems, "capital_entry_pct_default must be in (0, 1]")
	}
	if s.MinNotionalUSDT < 0 {
		problems = append(problems, "min_notional_usdt must not be negative")
	}
	if s.MaxSlippagePct < 0 {
		problems = append(problems, "max_slippage_pct must not be negative")
	}
	if s.LimitTimeInForceSec <= 0 {
		problems = append(problems, "limit_time_in_force_sec must be positive")
	}

	sum := s.TPSplits.TP1 + s.TPSplits.TP2 + s.TPSplits.Runner
	if math.Abs(sum-1.0) > splitEpsilon {
		problems = append(problems, fmt.Sprintf("tp_splits must sum to 100%%, got %.4f", sum*100))
	}
	if s.TPSplits.TP1 < 0 || s.TPSplits.TP2 < 0 || s.TPSplits.Runner < 0 {
		problems = append(problems, "tp_splits portions must not be negative")
	}

	if s.TrailingPct <= 0 || s.TrailingPct >= 1 {
		problems = append(problems, "trailing_pct must be in (0, 1)")
	}
	if s.TrailingPollSec <= 0 {
		problems = append(problems, "trailing_poll_sec must be positive")
	}
	if s.DefaultSLPct <= 0 || s.DefaultSLPct >= 1 {
		problems = append(problems, "default_sl_pct must be in (0, 1)")
	}
	if s.OverrideSLAsAbsolute && !s.OverrideSLEnabled {
		problems = append(problems, "override_sl_as_absolute requires override_sl_enabled")
	}
	if s.OverrideSLEnabled && !s.OverrideSLAsAbsolute && (s.OverrideSLPct <= 0 || s.OverrideSLPct >= 1) {
		problems = append(problems, "override_sl_pct must be in (0, 1)")
	}
	if s.HeartbeatMaxIdleMin <= 0 {
		problems = append(problems, "heartbeat_max_idle_min must be positive")
	}
	if s.FlattenCheckIntervalMin <= 0 {
		problems = append(problems, "flatten_check_interval_min must be positive")
	}
	if s.MaxHoldHours < 0 {
		problems = append(problems, "max_hold_hours must not be negative")
	}
	if s.ServerPort <= 0 || s.ServerPort > 65535 {
		problems = append(problems, "server_port must be a valid port")
	}

	if len(problems) > 0 {
		return &domain.ConfigValidationError{Problems: problems}
	}
	return nil
}
