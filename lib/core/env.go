package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	apperrors "github.com/go-i2p/fdfspool/lib/errors"
)

// Environment variables that override file configuration.
const (
	EnvCoordinatorCapacity = "FDFSPOOL_COORDINATOR_CAPACITY"
	EnvDataCapacity        = "FDFSPOOL_DATA_CAPACITY"
	EnvAcquireTimeout      = "FDFSPOOL_ACQUIRE_TIMEOUT"
	EnvMaxIdleTime         = "FDFSPOOL_MAX_IDLE_TIME"
	EnvNetwork             = "FDFSPOOL_NETWORK"
	EnvDialTimeout         = "FDFSPOOL_DIAL_TIMEOUT"
	EnvDialRate            = "FDFSPOOL_DIAL_RATE"
	EnvDialBurst           = "FDFSPOOL_DIAL_BURST"
	EnvSAMAddress          = "FDFSPOOL_SAM_ADDRESS"
	EnvMetricsListen       = "FDFSPOOL_METRICS_LISTEN"
	// EnvTrackers replaces the trackers of the first cluster with a
	// comma-separated list.
	EnvTrackers = "FDFSPOOL_TRACKERS"
)

// ApplyEnvOverrides overwrites settings from FDFSPOOL_* environment
// variables. Durations accept Go duration strings or whole seconds.
func (c *Config) ApplyEnvOverrides() error {
	if err := envInt(EnvCoordinatorCapacity, &c.Pool.CoordinatorCapacity); err != nil {
		return err
	}
	if err := envInt(EnvDataCapacity, &c.Pool.DataCapacity); err != nil {
		return err
	}
	if err := envDuration(EnvAcquireTimeout, &c.Pool.AcquireTimeout); err != nil {
		return err
	}
	if err := envDuration(EnvMaxIdleTime, &c.Pool.MaxIdleTime); err != nil {
		return err
	}
	envString(EnvNetwork, &c.Transport.Network)
	if err := envDuration(EnvDialTimeout, &c.Transport.DialTimeout); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(EnvDialRate); ok {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", apperrors.ErrConfiguration, EnvDialRate, err)
		}
		c.Transport.DialRate = rate
	}
	if err := envInt(EnvDialBurst, &c.Transport.DialBurst); err != nil {
		return err
	}
	envString(EnvSAMAddress, &c.Transport.SAMAddress)
	if v, ok := os.LookupEnv(EnvMetricsListen); ok && v != "" {
		c.Metrics.Listen = v
		c.Metrics.Enabled = true
	}

	if v, ok := os.LookupEnv(EnvTrackers); ok && v != "" {
		var trackers []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				trackers = append(trackers, t)
			}
		}
		if len(c.Clusters) == 0 {
			c.Clusters = []ClusterConfig{{Name: DefaultClusterName}}
		}
		c.Clusters[0].Trackers = trackers
	}
	return nil
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", apperrors.ErrConfiguration, key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", apperrors.ErrConfiguration, key, err)
	}
	*dst = d
	return nil
}
