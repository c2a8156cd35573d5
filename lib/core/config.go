// Package core wires configuration, transport and the registry directory
// into a running connection pool client.
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/go-i2p/fdfspool/lib/endpoint"
	apperrors "github.com/go-i2p/fdfspool/lib/errors"
	"github.com/go-i2p/fdfspool/lib/registry"
	"github.com/go-i2p/fdfspool/lib/transport"
	"github.com/go-i2p/fdfspool/lib/validation"
)

// Default configuration values
const (
	DefaultClusterName     = "default"
	DefaultTracker         = "127.0.0.1:22122"
	DefaultMetricsListen   = "127.0.0.1:9120"
	DefaultMetricsInterval = 10 * time.Second
)

// Config holds all configuration for a pool client.
type Config struct {
	Pool      PoolConfig      `toml:"pool" yaml:"pool"`
	Transport TransportConfig `toml:"transport" yaml:"transport"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
	Clusters  []ClusterConfig `toml:"cluster" yaml:"cluster"`
}

// PoolConfig contains per-endpoint pool settings.
type PoolConfig struct {
	// CoordinatorCapacity is the maximum number of connections per tracker
	CoordinatorCapacity int `toml:"coordinator_capacity" yaml:"coordinator_capacity"`
	// DataCapacity is the maximum number of connections per storage node
	DataCapacity int `toml:"data_capacity" yaml:"data_capacity"`
	// AcquireTimeout bounds how long a caller waits for a connection (0 = no limit)
	AcquireTimeout Duration `toml:"acquire_timeout" yaml:"acquire_timeout"`
	// MaxIdleTime closes idle connections older than this (0 = never)
	MaxIdleTime Duration `toml:"max_idle_time" yaml:"max_idle_time"`
}

// TransportConfig contains connection establishment settings.
type TransportConfig struct {
	// Network is "tcp" or "i2p"
	Network string `toml:"network" yaml:"network"`
	// DialTimeout bounds a single connection attempt
	DialTimeout Duration `toml:"dial_timeout" yaml:"dial_timeout"`
	// KeepAlive is the TCP keep-alive period
	KeepAlive Duration `toml:"keep_alive" yaml:"keep_alive"`
	// DialRate is the number of new connections per second per endpoint (0 = unlimited)
	DialRate float64 `toml:"dial_rate" yaml:"dial_rate"`
	// DialBurst is how many dials may happen at once before DialRate applies
	DialBurst int `toml:"dial_burst" yaml:"dial_burst"`
	// BreakerThreshold stops dialing an endpoint after this many consecutive failures (0 = never)
	BreakerThreshold int `toml:"breaker_threshold" yaml:"breaker_threshold"`
	// BreakerCooldown is how long dials stay rejected before a probe is let through
	BreakerCooldown Duration `toml:"breaker_cooldown" yaml:"breaker_cooldown"`
	// SAMAddress is the SAM bridge address (host:port), used when Network is "i2p"
	SAMAddress string `toml:"sam_address" yaml:"sam_address"`
	// TunnelName names the I2P tunnel
	TunnelName string `toml:"tunnel_name" yaml:"tunnel_name"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served
	Enabled bool `toml:"enabled" yaml:"enabled"`
	// Listen is the address to bind the metrics server to
	Listen string `toml:"listen" yaml:"listen"`
	// Interval is how often pool gauges are refreshed
	Interval Duration `toml:"interval" yaml:"interval"`
}

// ClusterConfig names one storage cluster and its trackers.
type ClusterConfig struct {
	// Name identifies the cluster; it is the client id in the registry directory
	Name string `toml:"name" yaml:"name"`
	// Trackers lists tracker addresses as host:port
	Trackers []string `toml:"trackers" yaml:"trackers"`
}

// Endpoints parses the cluster's tracker addresses.
func (c ClusterConfig) Endpoints() ([]endpoint.Endpoint, error) {
	return endpoint.ParseList(c.Trackers)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			CoordinatorCapacity: registry.DefaultCoordinatorCapacity,
			DataCapacity:        registry.DefaultDataCapacity,
		},
		Transport: TransportConfig{
			Network:     transport.NetworkTCP,
			DialTimeout: Duration(transport.DefaultDialTimeout),
			KeepAlive:   Duration(transport.DefaultKeepAlive),
			SAMAddress:  transport.DefaultSAMAddress,
			TunnelName:  transport.DefaultTunnelName,
		},
		Metrics: MetricsConfig{
			Listen:   DefaultMetricsListen,
			Interval: Duration(DefaultMetricsInterval),
		},
		Clusters: []ClusterConfig{
			{Name: DefaultClusterName, Trackers: []string{DefaultTracker}},
		},
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig reads configuration from a TOML file, or a YAML file when the
// path ends in .yaml or .yml. If the file doesn't exist, it returns the
// default configuration. Environment overrides are applied after the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err == nil {
		// A file that lists clusters replaces the default cluster.
		cfg.Clusters = nil
		if isYAML(path) {
			err = yaml.Unmarshal(data, cfg)
		} else {
			err = toml.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("parsing config file: %w: %w", apperrors.ErrConfiguration, err)
		}
		if len(cfg.Clusters) == 0 {
			cfg.Clusters = DefaultConfig().Clusters
		}
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration to a TOML or YAML file, chosen by
// extension as in LoadConfig. It creates the parent directory if it
// doesn't exist.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = toml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the configuration and reports every problem found. The
// returned error wraps apperrors.ErrConfiguration.
func (c *Config) Validate() error {
	var errs validation.Errors

	errs.Add(validation.Capacity("pool.coordinator_capacity", c.Pool.CoordinatorCapacity))
	errs.Add(validation.Capacity("pool.data_capacity", c.Pool.DataCapacity))
	errs.Add(validation.NonNegativeDuration("pool.acquire_timeout", c.Pool.AcquireTimeout.Std()))
	errs.Add(validation.NonNegativeDuration("pool.max_idle_time", c.Pool.MaxIdleTime.Std()))

	errs.Add(validation.OneOf("transport.network", c.Transport.Network, transport.NetworkTCP, transport.NetworkI2P))
	errs.Add(validation.NonNegativeDuration("transport.dial_timeout", c.Transport.DialTimeout.Std()))
	if c.Transport.DialRate < 0 {
		errs.Add(validation.NewResult("transport.dial_rate", "must not be negative", validation.ErrOutOfRange))
	}
	errs.Add(validation.NonNegative("transport.dial_burst", c.Transport.DialBurst))
	errs.Add(validation.NonNegative("transport.breaker_threshold", c.Transport.BreakerThreshold))
	errs.Add(validation.NonNegativeDuration("transport.breaker_cooldown", c.Transport.BreakerCooldown.Std()))
	if c.Transport.Network == transport.NetworkI2P {
		_, _, err := validation.HostPort("transport.sam_address", c.Transport.SAMAddress)
		errs.Add(err)
		errs.Add(validation.Required("transport.tunnel_name", c.Transport.TunnelName))
	}

	if c.Metrics.Enabled {
		_, _, err := validation.HostPort("metrics.listen", c.Metrics.Listen)
		errs.Add(err)
	}
	errs.Add(validation.NonNegativeDuration("metrics.interval", c.Metrics.Interval.Std()))

	if len(c.Clusters) == 0 {
		errs.Add(validation.NewResult("cluster", "at least one cluster is required", validation.ErrRequired))
	}
	seen := make(map[string]bool, len(c.Clusters))
	for i, cl := range c.Clusters {
		field := fmt.Sprintf("cluster[%d]", i)
		errs.Add(validation.ClientID(field+".name", cl.Name))
		if seen[cl.Name] {
			errs.Add(validation.NewResult(field+".name", fmt.Sprintf("%q is defined more than once", cl.Name), validation.ErrDuplicate))
		}
		seen[cl.Name] = true

		if len(cl.Trackers) == 0 {
			errs.Add(validation.NewResult(field+".trackers", "at least one tracker is required", validation.ErrRequired))
			continue
		}
		if _, err := cl.Endpoints(); err != nil {
			errs.Add(fmt.Errorf("%s.trackers: %w", field, err))
		}
	}

	if err := errs.Err(); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrConfiguration, err)
	}
	return nil
}

// Cluster returns the cluster with the given name.
func (c *Config) Cluster(name string) (ClusterConfig, bool) {
	for _, cl := range c.Clusters {
		if cl.Name == name {
			return cl, true
		}
	}
	return ClusterConfig{}, false
}

// RegistryOptions returns the pool settings as registry options.
func (c *Config) RegistryOptions() registry.Options {
	return registry.Options{
		CoordinatorCapacity: c.Pool.CoordinatorCapacity,
		DataCapacity:        c.Pool.DataCapacity,
		AcquireTimeout:      c.Pool.AcquireTimeout.Std(),
		MaxIdleTime:         c.Pool.MaxIdleTime.Std(),
		Network:             transport.NetworkTCP,
	}
}

// TransportOptions returns the transport settings as a transport config.
func (c *Config) TransportOptions() transport.Config {
	return transport.Config{
		Network:     c.Transport.Network,
		DialTimeout: c.Transport.DialTimeout.Std(),
		KeepAlive:   c.Transport.KeepAlive.Std(),
		DialRate:    c.Transport.DialRate,
		DialBurst:   c.Transport.DialBurst,
		SAMAddress:  c.Transport.SAMAddress,
		TunnelName:  c.Transport.TunnelName,

		BreakerThreshold: c.Transport.BreakerThreshold,
		BreakerCooldown:  c.Transport.BreakerCooldown.Std(),
	}
}
