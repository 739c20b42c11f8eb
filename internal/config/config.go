// Package config holds the client configuration, loaded from YAML and
// overridden by CLI flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TransportKind selects how the client reaches its collaborators.
type TransportKind string

const (
	TransportWebSocket TransportKind = "websocket"
	TransportPeer      TransportKind = "peer"
)

// Config stores every parameter of one client run.
type Config struct {
	ServerURL string        `yaml:"server_url"`
	Transport TransportKind `yaml:"transport"`
	DraftID   string        `yaml:"draft_id"`
	DraftName string        `yaml:"draft_name"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Registry  RegistryConfig  `yaml:"registry"`
	Throttle  ThrottleConfig  `yaml:"throttle"`
	Peer      PeerConfig      `yaml:"peer"`

	MetricsAddr string `yaml:"metrics_addr"` // empty disables the endpoint
	Debug       bool   `yaml:"debug"`
}

type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"` // zero means uncapped
	Jitter      time.Duration `yaml:"jitter"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// LastDelay returns base_delay·2^(max_attempts-1), the uncapped wait before
// the final attempt. It saturates instead of overflowing.
func (r ReconnectConfig) LastDelay() time.Duration {
	d := r.BaseDelay
	for i := 1; i < r.MaxAttempts; i++ {
		if d > math.MaxInt64/2 {
			return time.Duration(math.MaxInt64)
		}
		d *= 2
	}
	return d
}

type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type RegistryConfig struct {
	MaxConnections int `yaml:"max_connections"`
}

// ThrottleConfig paces shape updates; zero sends every update.
type ThrottleConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type PeerConfig struct {
	ICEServers []string `yaml:"ice_servers"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Transport: TransportWebSocket,
		Reconnect: ReconnectConfig{
			MaxAttempts: 10,
			BaseDelay:   500 * time.Millisecond,
			Jitter:      250 * time.Millisecond,
			DialTimeout: 10 * time.Second,
		},
		Heartbeat: HeartbeatConfig{Interval: 25 * time.Second},
		Registry:  RegistryConfig{MaxConnections: 8},
		Throttle:  ThrottleConfig{Interval: 50 * time.Millisecond},
		Peer: PeerConfig{ICEServers: []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		}},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults. Keys that are absent keep their
// default values.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if c.ServerURL == "" {
		errs = append(errs, errors.New("server_url is required"))
	} else if u, err := url.Parse(c.ServerURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		errs = append(errs, fmt.Errorf("server_url %q must be a ws:// or wss:// URL", c.ServerURL))
	}

	switch c.Transport {
	case TransportWebSocket, TransportPeer:
	default:
		errs = append(errs, fmt.Errorf("transport %q must be %q or %q", c.Transport, TransportWebSocket, TransportPeer))
	}

	if c.Reconnect.MaxAttempts < 1 {
		errs = append(errs, errors.New("reconnect.max_attempts must be at least 1"))
	}
	if c.Reconnect.BaseDelay <= 0 {
		errs = append(errs, errors.New("reconnect.base_delay must be positive"))
	}
	if c.Reconnect.MaxDelay > 0 && c.Reconnect.MaxAttempts >= 1 && c.Reconnect.BaseDelay > 0 {
		if floor := c.Reconnect.LastDelay(); c.Reconnect.MaxDelay < floor {
			errs = append(errs, fmt.Errorf("reconnect.max_delay %s must be zero or at least %s", c.Reconnect.MaxDelay, floor))
		}
	}
	if c.Reconnect.Jitter < 0 {
		errs = append(errs, errors.New("reconnect.jitter must not be negative"))
	}
	if c.Reconnect.DialTimeout < 0 {
		errs = append(errs, errors.New("reconnect.dial_timeout must not be negative"))
	}
	if c.Heartbeat.Interval < 0 {
		errs = append(errs, errors.New("heartbeat.interval must not be negative"))
	}
	if c.Registry.MaxConnections < 1 {
		errs = append(errs, errors.New("registry.max_connections must be at least 1"))
	}
	if c.Throttle.Interval < 0 {
		errs = append(errs, errors.New("throttle.interval must not be negative"))
	}
	if c.Transport == TransportPeer && len(c.Peer.ICEServers) == 0 {
		errs = append(errs, errors.New("peer.ice_servers must not be empty for the peer transport"))
	}

	return errors.Join(errs...)
}
