// Package config holds the flat set of tuning constants for the token
// economy. All values are game-balance parameters, not derived from a
// model; they load from YAML and can be overridden field-by-field in tests.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete tuning surface of the simulation core.
type Config struct {
	// Timing.
	TickIntervalMs       int     `yaml:"tick_interval_ms"`        // Nominal wall-clock length of one tick
	TicksPerDay          int     `yaml:"ticks_per_day"`           // Ticks making up one in-game day
	EventCheckIntervalMs int     `yaml:"event_check_interval_ms"` // Slower timer for the event scheduler
	MaxElapsedTicks      float64 `yaml:"max_elapsed_ticks"`       // Cap on retroactive credit after suspension

	// Treasury bounds and history.
	TreasuryMin        float64 `yaml:"treasury_min"`
	TreasuryMax        float64 `yaml:"treasury_max"`
	TreasuryStart      float64 `yaml:"treasury_start"`
	TreasuryHistoryCap int     `yaml:"treasury_history_cap"`

	// Sentiment process. Canonical scale is [-100, 100].
	SentimentMin        float64 `yaml:"sentiment_min"`
	SentimentMax        float64 `yaml:"sentiment_max"`
	CyclePeriod         float64 `yaml:"cycle_period"`       // Ticks per full market cycle
	CycleAmplitude      float64 `yaml:"cycle_amplitude"`    // Peak of the sinusoidal target
	SentimentDecayRate  float64 `yaml:"sentiment_decay"`    // Mean-reversion strength (×0.1 per tick)
	NoiseAmplitude      float64 `yaml:"noise_amplitude"`    // Additive uniform noise per tick
	SentimentImpact     float64 `yaml:"sentiment_impact"`   // Yield swing at full sentiment
	SentimentHistoryCap int     `yaml:"sentiment_history_cap"`

	// Spatial bonuses.
	SynergyRadius     int     `yaml:"synergy_radius"`
	SynergyChainBonus float64 `yaml:"synergy_chain_bonus"`
	SynergyCatBonus   float64 `yaml:"synergy_category_bonus"`
	SynergyCap        float64 `yaml:"synergy_cap"`
	MaxZoneRadius     int     `yaml:"max_zone_radius"`

	// Building yield shaping.
	UpgradeBonusPerLevel float64 `yaml:"upgrade_bonus_per_level"`
	StakingBonus         float64 `yaml:"staking_bonus"`
	DiversityBonus       float64 `yaml:"diversity_bonus"` // Per distinct category
	DiversityCap         float64 `yaml:"diversity_cap"`

	// Events.
	MaxSimultaneousEvents int     `yaml:"max_simultaneous_events"`
	EventCooldownTicks    uint64  `yaml:"event_cooldown_ticks"`
	EventHistoryCap       int     `yaml:"event_history_cap"`
	EventRarityScale      float64 `yaml:"event_rarity_scale"` // Scales rarity to per-check probability

	// Reality blending.
	RealSentimentWeight float64 `yaml:"real_sentiment_weight"`
	SentimentSmoothing  float64 `yaml:"sentiment_smoothing"`
	YieldClampMin       float64 `yaml:"yield_clamp_min"`
	YieldClampMax       float64 `yaml:"yield_clamp_max"`
	YieldSmoothing      float64 `yaml:"yield_smoothing"`
	ExpectedBaseAPY     float64 `yaml:"expected_base_apy"`
	TVLDeltaScale       float64 `yaml:"tvl_delta_scale"`
	TriggerCooldownTicks uint64 `yaml:"trigger_cooldown_ticks"`
	PriceMoveThreshold  float64 `yaml:"price_move_threshold"` // 24h % move that proposes an event
	SentimentExtreme    float64 `yaml:"sentiment_extreme"`    // Fear/greed distance from 50 counted as extreme
	ReversalThreshold   float64 `yaml:"reversal_threshold"`   // Tick-over-tick blended swing counted as reversal

	// Money sinks.
	MaintenancePerBuilding float64 `yaml:"maintenance_per_building"` // Per building per day
	ServiceFundingRate     float64 `yaml:"service_funding_rate"`     // Per funding point per day

	// Bankruptcy and contagion.
	BankruptcyThresholdTicks int     `yaml:"bankruptcy_threshold_ticks"`
	DecayProbability         float64 `yaml:"decay_probability"`
	ContagionChance          float64 `yaml:"contagion_chance"`
	ContagionRadius          int     `yaml:"contagion_radius"`
	ContagionImmuneTier      string  `yaml:"contagion_immune_tier"`
}

// Default returns the shipped game-balance values.
func Default() Config {
	return Config{
		TickIntervalMs:       1000,
		TicksPerDay:          24,
		EventCheckIntervalMs: 5000,
		MaxElapsedTicks:      3,

		TreasuryMin:        0,
		TreasuryMax:        1_000_000_000,
		TreasuryStart:      10_000,
		TreasuryHistoryCap: 500,

		SentimentMin:        -100,
		SentimentMax:        100,
		CyclePeriod:         720,
		CycleAmplitude:      60,
		SentimentDecayRate:  0.5,
		NoiseAmplitude:      4,
		SentimentImpact:     0.4,
		SentimentHistoryCap: 500,

		SynergyRadius:     4,
		SynergyChainBonus: 0.08,
		SynergyCatBonus:   0.04,
		SynergyCap:        0.5,
		MaxZoneRadius:     6,

		UpgradeBonusPerLevel: 0.25,
		StakingBonus:         0.10,
		DiversityBonus:       0.02,
		DiversityCap:         0.12,

		MaxSimultaneousEvents: 3,
		EventCooldownTicks:    120,
		EventHistoryCap:       100,
		EventRarityScale:      0.25,

		RealSentimentWeight:  0.35,
		SentimentSmoothing:   0.2,
		YieldClampMin:        0.5,
		YieldClampMax:        2.0,
		YieldSmoothing:       0.15,
		ExpectedBaseAPY:      5.0,
		TVLDeltaScale:        2.0,
		TriggerCooldownTicks: 60,
		PriceMoveThreshold:   10,
		SentimentExtreme:     35,
		ReversalThreshold:    25,

		MaintenancePerBuilding: 2,
		ServiceFundingRate:     0.5,

		BankruptcyThresholdTicks: 10,
		DecayProbability:         0.15,
		ContagionChance:          0.3,
		ContagionRadius:          3,
		ContagionImmuneTier:      "whale",
	}
}

// Load reads a YAML config file over the defaults, so partial files work.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
