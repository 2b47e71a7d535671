// Package config loads the session configuration: the enumerated
// tunables every other package reads, plus named difficulty presets
// applied before any explicit override file.
package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in the external interface. Fields
// are exported for direct YAML decoding; callers should treat a
// loaded Config as read-only.
type Config struct {
	MinTickSize          int64   `yaml:"min_tick_size"`
	QuoteLifetime        int64   `yaml:"quote_lifetime"`
	MaxOrderQty          int64   `yaml:"max_order_qty"`
	PositionLimit        int64   `yaml:"position_limit"`
	LossLimit            int64   `yaml:"loss_limit"`
	MarginThreshold      int64   `yaml:"margin_threshold"`
	MarginPenaltyTicks   int64   `yaml:"margin_penalty_ticks"`
	MakerFee             int64   `yaml:"maker_fee"`
	TakerFee             int64   `yaml:"taker_fee"`
	ToxicityAlpha        float64 `yaml:"toxicity_alpha"`
	BotLatencyMultiplier float64 `yaml:"bot_latency_multiplier"`
	VolatilityCap        float64 `yaml:"volatility_cap"`
	ConcentrationFrac    float64 `yaml:"concentration_frac"`
	SnapshotDepthN       int     `yaml:"snapshot_depth_n"`
	TapeWindow           int     `yaml:"tape_window"`
	VarK                 float64 `yaml:"var_k"`
	VarWindow            int     `yaml:"var_window"`
}

// Default returns the baseline configuration (the MEDIUM preset) used
// when no preset or override file is given.
func Default() Config {
	return Preset("MEDIUM")
}

// Preset returns one of the named difficulty bundles. Unknown names
// fall back to MEDIUM — difficulty mainly scales bot speed, quote
// lifetime, and fees, not the hard game rules (position_limit stays
// fixed across presets).
func Preset(name string) Config {
	switch name {
	case "EASY":
		return Config{
			MinTickSize: 1, QuoteLifetime: 90, MaxOrderQty: 50,
			PositionLimit: 20, LossLimit: -100_000, MarginThreshold: -50_000,
			MarginPenaltyTicks: 2, MakerFee: 0, TakerFee: 0,
			ToxicityAlpha: 0.15, BotLatencyMultiplier: 2.0, VolatilityCap: 3.0,
			ConcentrationFrac: 0.5, SnapshotDepthN: 10, TapeWindow: 50,
			VarK: 1.65, VarWindow: 30,
		}
	case "HARD":
		return Config{
			MinTickSize: 1, QuoteLifetime: 60, MaxOrderQty: 50,
			PositionLimit: 20, LossLimit: -100_000, MarginThreshold: -50_000,
			MarginPenaltyTicks: 2, MakerFee: 0, TakerFee: 15,
			ToxicityAlpha: 0.15, BotLatencyMultiplier: 0.9, VolatilityCap: 6.0,
			ConcentrationFrac: 0.35, SnapshotDepthN: 10, TapeWindow: 50,
			VarK: 1.65, VarWindow: 30,
		}
	case "AXXELA":
		return Config{
			MinTickSize: 1, QuoteLifetime: 50, MaxOrderQty: 50,
			PositionLimit: 20, LossLimit: -100_000, MarginThreshold: -50_000,
			MarginPenaltyTicks: 2, MakerFee: 0, TakerFee: 20,
			ToxicityAlpha: 0.15, BotLatencyMultiplier: 0.65, VolatilityCap: 7.0,
			ConcentrationFrac: 0.25, SnapshotDepthN: 10, TapeWindow: 50,
			VarK: 1.65, VarWindow: 30,
		}
	default: // MEDIUM
		return Config{
			MinTickSize: 1, QuoteLifetime: 70, MaxOrderQty: 50,
			PositionLimit: 20, LossLimit: -100_000, MarginThreshold: -50_000,
			MarginPenaltyTicks: 2, MakerFee: 0, TakerFee: 10,
			ToxicityAlpha: 0.15, BotLatencyMultiplier: 1.2, VolatilityCap: 4.5,
			ConcentrationFrac: 0.4, SnapshotDepthN: 10, TapeWindow: 50,
			VarK: 1.65, VarWindow: 30,
		}
	}
}

// Load decodes YAML bytes over base, rejecting any key not named
// above. Callers typically pass Preset(name) as base so an override
// file only needs to mention the keys it changes.
func Load(base Config, yamlBytes []byte) (Config, error) {
	cfg := base
	if len(yamlBytes) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(yamlBytes))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
