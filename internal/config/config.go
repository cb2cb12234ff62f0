// Package config is the engine's configuration surface, using
// spf13/viper for layered env/file/flag config with registered
// defaults. Names and defaults below are contracts the test suite
// relies on this naming — do not rename without updating callers.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the fully-resolved, immutable-after-bootstrap configuration
// surface. It is read once at startup and passed by reference into the
// engine context.
type Config struct {
	// Scheduler
	MinIntervalMS float64
	MaxIntervalS  float64
	DTCapS        float64
	EMABeta       float64

	// Decay
	ActivationDecayBase float64
	WeightDecayBase     float64
	DecayTypeMultiplier map[string]float64
	ActivationDecayMin  float64
	ActivationDecayMax  float64
	WeightFloor         float64
	WeightCeiling       float64
	EnergyFloor         float64

	// Threshold / affect
	BaseThreshold                 float64
	CriticalityFactor              float64
	AffectiveThresholdLambdaFactor float64

	// Fanout
	FanoutLow              int
	FanoutHigh             int
	SelectiveTopK           int
	WMPressureThreshold    float64
	MinTopK                int
	FanoutTaskModeEnabled  bool

	// Learning
	LearningRateBase float64
	OverlayCap       float64
	AlphaLocal       float64
	AlphaGlobal      float64
	TraceEMAAlpha    float64

	// Emotion gates
	EmotionGatesEnabled bool
	ResLambda           float64
	CompLambda          float64

	// Tripwires
	TripwireConservationEpsilon float64
	CriticalityBandLow          float64
	CriticalityBandHigh         float64
	TripwireCriticalityFrames   int
	TripwireFrontierPct         float64
	TripwireFrontierFrames      int
	TripwireMissingEventsFrames int
	SafeModeViolationThreshold  int
	SafeModeViolationWindowS    float64

	// Two-scale traversal
	TwoScaleEnabled bool

	// Telemetry
	TelemetryFlushIntervalS float64
	TelemetryBufferSize     int
	TelemetrySampleRate     float64

	// Working memory
	BudgetTokens int
}

// Defaults returns the config with every named default value.
func Defaults() *Config {
	return &Config{
		MinIntervalMS: 100,
		MaxIntervalS:  60,
		DTCapS:        5,
		EMABeta:       0.3,

		ActivationDecayBase: 2e-5,
		WeightDecayBase:     1e-6,
		DecayTypeMultiplier: map[string]float64{
			"Memory": 0.5,
			"Task":   5.0,
			"Concept": 1.0,
			"Goal":   0.7,
			"Person": 0.8,
			"Event":  2.0,
		},
		ActivationDecayMin: 1e-6,
		ActivationDecayMax: 1e-2,
		WeightFloor:        -5,
		WeightCeiling:      2,
		EnergyFloor:        0.001,

		BaseThreshold:                  1.0,
		CriticalityFactor:              2.0,
		AffectiveThresholdLambdaFactor: 0.08,

		FanoutLow:             3,
		FanoutHigh:            10,
		SelectiveTopK:         5,
		WMPressureThreshold:   0.2,
		MinTopK:               2,
		FanoutTaskModeEnabled: false,

		LearningRateBase: 0.01,
		OverlayCap:       2.0,
		AlphaLocal:       0.8,
		AlphaGlobal:      0.2,
		TraceEMAAlpha:    0.1,

		EmotionGatesEnabled: true,
		ResLambda:           0.6,
		CompLambda:          0.8,

		TripwireConservationEpsilon: 1e-3,
		CriticalityBandLow:          0.7,
		CriticalityBandHigh:         1.3,
		TripwireCriticalityFrames:   5,
		TripwireFrontierPct:         0.9,
		TripwireFrontierFrames:      5,
		TripwireMissingEventsFrames: 3,
		SafeModeViolationThreshold:  3,
		SafeModeViolationWindowS:    60,

		TwoScaleEnabled: true,

		TelemetryFlushIntervalS: 1.0,
		TelemetryBufferSize:     500,
		TelemetrySampleRate:     0.2,

		BudgetTokens: 400,
	}
}

// Load builds a viper instance seeded with Defaults(), then layers in
// ECHOCORE_-prefixed environment variables and an optional config file —
// the same env > file > default precedence niceyeti-tabular's config
// loader uses. Unknown keys in the file are ignored without a warning;
// missing required keys never happen here since every field has a default.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ECHOCORE")
	v.AutomaticEnv()

	defaults := Defaults()
	seedDefaults(v, defaults)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	cfg := Defaults()
	if err := applyOverrides(v, cfg); err != nil {
		return nil, fmt.Errorf("config: applying overrides: %w", err)
	}
	return cfg, nil
}

func seedDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("min_interval_ms", d.MinIntervalMS)
	v.SetDefault("max_interval_s", d.MaxIntervalS)
	v.SetDefault("dt_cap_s", d.DTCapS)
	v.SetDefault("ema_beta", d.EMABeta)
	v.SetDefault("activation_decay_base", d.ActivationDecayBase)
	v.SetDefault("weight_decay_base", d.WeightDecayBase)
	v.SetDefault("weight_floor", d.WeightFloor)
	v.SetDefault("weight_ceiling", d.WeightCeiling)
	v.SetDefault("energy_floor", d.EnergyFloor)
	v.SetDefault("base_threshold", d.BaseThreshold)
	v.SetDefault("criticality_factor", d.CriticalityFactor)
	v.SetDefault("affective_threshold_lambda_factor", d.AffectiveThresholdLambdaFactor)
	v.SetDefault("fanout_low", d.FanoutLow)
	v.SetDefault("fanout_high", d.FanoutHigh)
	v.SetDefault("selective_topk", d.SelectiveTopK)
	v.SetDefault("wm_pressure_threshold", d.WMPressureThreshold)
	v.SetDefault("min_topk", d.MinTopK)
	v.SetDefault("fanout_task_mode_enabled", d.FanoutTaskModeEnabled)
	v.SetDefault("learning_rate_base", d.LearningRateBase)
	v.SetDefault("overlay_cap", d.OverlayCap)
	v.SetDefault("alpha_local", d.AlphaLocal)
	v.SetDefault("alpha_global", d.AlphaGlobal)
	v.SetDefault("trace_ema_alpha", d.TraceEMAAlpha)
	v.SetDefault("emotion_gates_enabled", d.EmotionGatesEnabled)
	v.SetDefault("res_lambda", d.ResLambda)
	v.SetDefault("comp_lambda", d.CompLambda)
	v.SetDefault("tripwire_conservation_epsilon", d.TripwireConservationEpsilon)
	v.SetDefault("criticality_band_low", d.CriticalityBandLow)
	v.SetDefault("criticality_band_high", d.CriticalityBandHigh)
	v.SetDefault("tripwire_criticality_frames", d.TripwireCriticalityFrames)
	v.SetDefault("tripwire_frontier_pct", d.TripwireFrontierPct)
	v.SetDefault("tripwire_frontier_frames", d.TripwireFrontierFrames)
	v.SetDefault("tripwire_missing_events_frames", d.TripwireMissingEventsFrames)
	v.SetDefault("safe_mode_violation_threshold", d.SafeModeViolationThreshold)
	v.SetDefault("safe_mode_violation_window_s", d.SafeModeViolationWindowS)
	v.SetDefault("two_scale_enabled", d.TwoScaleEnabled)
	v.SetDefault("telemetry_flush_interval_s", d.TelemetryFlushIntervalS)
	v.SetDefault("telemetry_buffer_size", d.TelemetryBufferSize)
	v.SetDefault("telemetry_sample_rate", d.TelemetrySampleRate)
	v.SetDefault("budget_tokens", d.BudgetTokens)
}

func applyOverrides(v *viper.Viper, cfg *Config) error {
	cfg.MinIntervalMS = v.GetFloat64("min_interval_ms")
	cfg.MaxIntervalS = v.GetFloat64("max_interval_s")
	cfg.DTCapS = v.GetFloat64("dt_cap_s")
	cfg.EMABeta = v.GetFloat64("ema_beta")
	cfg.ActivationDecayBase = v.GetFloat64("activation_decay_base")
	cfg.WeightDecayBase = v.GetFloat64("weight_decay_base")
	cfg.WeightFloor = v.GetFloat64("weight_floor")
	cfg.WeightCeiling = v.GetFloat64("weight_ceiling")
	cfg.EnergyFloor = v.GetFloat64("energy_floor")
	cfg.BaseThreshold = v.GetFloat64("base_threshold")
	cfg.CriticalityFactor = v.GetFloat64("criticality_factor")
	cfg.AffectiveThresholdLambdaFactor = v.GetFloat64("affective_threshold_lambda_factor")
	cfg.FanoutLow = v.GetInt("fanout_low")
	cfg.FanoutHigh = v.GetInt("fanout_high")
	cfg.SelectiveTopK = v.GetInt("selective_topk")
	cfg.WMPressureThreshold = v.GetFloat64("wm_pressure_threshold")
	cfg.MinTopK = v.GetInt("min_topk")
	cfg.FanoutTaskModeEnabled = v.GetBool("fanout_task_mode_enabled")
	cfg.LearningRateBase = v.GetFloat64("learning_rate_base")
	cfg.OverlayCap = v.GetFloat64("overlay_cap")
	cfg.AlphaLocal = v.GetFloat64("alpha_local")
	cfg.AlphaGlobal = v.GetFloat64("alpha_global")
	cfg.TraceEMAAlpha = v.GetFloat64("trace_ema_alpha")
	cfg.EmotionGatesEnabled = v.GetBool("emotion_gates_enabled")
	cfg.ResLambda = v.GetFloat64("res_lambda")
	cfg.CompLambda = v.GetFloat64("comp_lambda")
	cfg.TripwireConservationEpsilon = v.GetFloat64("tripwire_conservation_epsilon")
	cfg.CriticalityBandLow = v.GetFloat64("criticality_band_low")
	cfg.CriticalityBandHigh = v.GetFloat64("criticality_band_high")
	cfg.TripwireCriticalityFrames = v.GetInt("tripwire_criticality_frames")
	cfg.TripwireFrontierPct = v.GetFloat64("tripwire_frontier_pct")
	cfg.TripwireFrontierFrames = v.GetInt("tripwire_frontier_frames")
	cfg.TripwireMissingEventsFrames = v.GetInt("tripwire_missing_events_frames")
	cfg.SafeModeViolationThreshold = v.GetInt("safe_mode_violation_threshold")
	cfg.SafeModeViolationWindowS = v.GetFloat64("safe_mode_violation_window_s")
	cfg.TwoScaleEnabled = v.GetBool("two_scale_enabled")
	cfg.TelemetryFlushIntervalS = v.GetFloat64("telemetry_flush_interval_s")
	cfg.TelemetryBufferSize = v.GetInt("telemetry_buffer_size")
	cfg.TelemetrySampleRate = v.GetFloat64("telemetry_sample_rate")
	cfg.BudgetTokens = v.GetInt("budget_tokens")
	cfg.DecayTypeMultiplier = Defaults().DecayTypeMultiplier
	return nil
}
