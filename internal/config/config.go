// Copyright 2025 James Ross
// Package config loads and validates the YAML configuration a FlockNet run
// is driven by, layering defaults, file contents, and environment
// overrides through viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TrafficPattern names one of the arrival-process generators an agent can
// be configured with.
type TrafficPattern string

const (
	Constant    TrafficPattern = "constant"
	Bursty      TrafficPattern = "bursty"
	Poisson     TrafficPattern = "poisson"
	PeakTraffic TrafficPattern = "peak"
	Sine        TrafficPattern = "sine"
)

// Traffic configures the arrival process every agent in a run shares.
// Field meanings follow the tagged-variant pattern semantics:
// Constant(rate_pps), Bursty(avg_rate_pps, burst_size), Poisson(lambda),
// PeakTraffic(base_rate, peak_rate, peak_duration_s),
// Sine(rate_pps, amplitude, period_s).
type Traffic struct {
	Pattern       TrafficPattern `mapstructure:"pattern"`
	RateLps       float64        `mapstructure:"rate_packets_per_sec"`
	BurstSize     int            `mapstructure:"burst_size"`
	PeakBaseLps   float64        `mapstructure:"peak_base_rate_packets_per_sec"`
	PeakRateLps   float64        `mapstructure:"peak_rate_packets_per_sec"`
	PeakDurationS float64        `mapstructure:"peak_duration_sec"`
	SinePeriodS   float64        `mapstructure:"sine_period_sec"`
	SineAmplitude float64        `mapstructure:"sine_amplitude"`
}

// Network describes the simulated link every server enforces.
type Network struct {
	BandwidthBps int `mapstructure:"bandwidth_bps"`
	PacketSize   int `mapstructure:"packet_size_bytes"`
	BufferSize   int `mapstructure:"buffer_size"`
}

// Transport selects and tunes the agent-to-server delivery path.
type Transport struct {
	Kind         string        `mapstructure:"kind"` // "local" or "tcp"
	BasePort     int           `mapstructure:"base_port"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// CircuitBreaker tunes the per-connection breaker the TCP transport wraps
// every agent-server link with.
type CircuitBreaker struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

// Observability tunes the process-level logging and Prometheus surface.
type Observability struct {
	MetricsPort int    `mapstructure:"metrics_port"`
	LogLevel    string `mapstructure:"log_level"`
}

// Simulation bounds a single benchmark run.
type Simulation struct {
	DurationSec      int     `mapstructure:"duration_sec"`
	NumAgents        int     `mapstructure:"num_agents"`
	NumServers       int     `mapstructure:"num_servers"`
	SnapshotInterval float64 `mapstructure:"snapshot_interval_sec"`
	SettleDelayMS    int     `mapstructure:"settle_delay_ms"`
}

// Config is the full shape a FlockNet run is described by.
type Config struct {
	Strategy       string         `mapstructure:"strategy"`
	Simulation     Simulation     `mapstructure:"simulation"`
	Traffic        Traffic        `mapstructure:"traffic"`
	Network        Network        `mapstructure:"network"`
	Transport      Transport      `mapstructure:"transport"`
	CircuitBreaker CircuitBreaker `mapstructure:"circuit_breaker"`
	Observability  Observability  `mapstructure:"observability"`
	ResultsDir     string         `mapstructure:"results_dir"`
}

func defaultConfig() *Config {
	return &Config{
		Strategy: "drop-tail",
		Simulation: Simulation{
			DurationSec:      30,
			NumAgents:        10,
			NumServers:       1,
			SnapshotInterval: 1.0,
			SettleDelayMS:    100,
		},
		Traffic: Traffic{
			Pattern:       Constant,
			RateLps:       100,
			BurstSize:     20,
			PeakBaseLps:   50,
			PeakRateLps:   500,
			PeakDurationS: 10,
			SinePeriodS:   10.0,
			SineAmplitude: 0.5,
		},
		Network: Network{
			BandwidthBps: 100_000_000,
			PacketSize:   1500,
			BufferSize:   1024,
		},
		Transport: Transport{
			Kind:         "local",
			BasePort:     5000,
			DialTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		},
		CircuitBreaker: CircuitBreaker{
			FailureThreshold: 0.5,
			Window:           10 * time.Second,
			CooldownPeriod:   5 * time.Second,
			MinSamples:       5,
		},
		Observability: Observability{
			MetricsPort: 9090,
			LogLevel:    "info",
		},
		ResultsDir: "./results",
	}
}

// Load reads configuration from a YAML file, layering environment
// overrides on top, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("flocknet")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("strategy", def.Strategy)

	v.SetDefault("simulation.duration_sec", def.Simulation.DurationSec)
	v.SetDefault("simulation.num_agents", def.Simulation.NumAgents)
	v.SetDefault("simulation.num_servers", def.Simulation.NumServers)
	v.SetDefault("simulation.snapshot_interval_sec", def.Simulation.SnapshotInterval)
	v.SetDefault("simulation.settle_delay_ms", def.Simulation.SettleDelayMS)

	v.SetDefault("traffic.pattern", string(def.Traffic.Pattern))
	v.SetDefault("traffic.rate_packets_per_sec", def.Traffic.RateLps)
	v.SetDefault("traffic.burst_size", def.Traffic.BurstSize)
	v.SetDefault("traffic.peak_base_rate_packets_per_sec", def.Traffic.PeakBaseLps)
	v.SetDefault("traffic.peak_rate_packets_per_sec", def.Traffic.PeakRateLps)
	v.SetDefault("traffic.peak_duration_sec", def.Traffic.PeakDurationS)
	v.SetDefault("traffic.sine_period_sec", def.Traffic.SinePeriodS)
	v.SetDefault("traffic.sine_amplitude", def.Traffic.SineAmplitude)

	v.SetDefault("network.bandwidth_bps", def.Network.BandwidthBps)
	v.SetDefault("network.packet_size_bytes", def.Network.PacketSize)
	v.SetDefault("network.buffer_size", def.Network.BufferSize)

	v.SetDefault("transport.kind", def.Transport.Kind)
	v.SetDefault("transport.base_port", def.Transport.BasePort)
	v.SetDefault("transport.dial_timeout", def.Transport.DialTimeout)
	v.SetDefault("transport.write_timeout", def.Transport.WriteTimeout)

	v.SetDefault("circuit_breaker.failure_threshold", def.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.window", def.CircuitBreaker.Window)
	v.SetDefault("circuit_breaker.cooldown_period", def.CircuitBreaker.CooldownPeriod)
	v.SetDefault("circuit_breaker.min_samples", def.CircuitBreaker.MinSamples)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)

	v.SetDefault("results_dir", def.ResultsDir)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid
// settings.
func Validate(cfg *Config) error {
	if cfg.Simulation.NumAgents < 1 {
		return fmt.Errorf("simulation.num_agents must be >= 1")
	}
	if cfg.Simulation.NumServers < 1 {
		return fmt.Errorf("simulation.num_servers must be >= 1")
	}
	if cfg.Simulation.DurationSec < 1 {
		return fmt.Errorf("simulation.duration_sec must be >= 1")
	}
	if cfg.Network.BufferSize < 1 {
		return fmt.Errorf("network.buffer_size must be >= 1")
	}
	if cfg.Network.BandwidthBps < 1 {
		return fmt.Errorf("network.bandwidth_bps must be >= 1")
	}
	if cfg.Network.PacketSize < 1 {
		return fmt.Errorf("network.packet_size_bytes must be >= 1")
	}
	switch cfg.Transport.Kind {
	case "local", "tcp":
	default:
		return fmt.Errorf("transport.kind must be \"local\" or \"tcp\", got %q", cfg.Transport.Kind)
	}
	if cfg.Transport.Kind == "tcp" && (cfg.Transport.BasePort <= 0 || cfg.Transport.BasePort > 65535) {
		return fmt.Errorf("transport.base_port must be 1..65535")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	switch cfg.Traffic.Pattern {
	case Constant, Bursty, Poisson, PeakTraffic, Sine:
	default:
		return fmt.Errorf("traffic.pattern %q is not recognized", cfg.Traffic.Pattern)
	}
	if cfg.Traffic.RateLps <= 0 {
		return fmt.Errorf("traffic.rate_packets_per_sec must be > 0")
	}
	return nil
}
