package kademlia

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config gathers every value spec.md §6 says is "read once at node start":
// net_id, node_id, bind address, optional bootstrap contact, K, alpha,
// T_timeout, and M_max. Republishing is an acceptable extension
// (SPEC_FULL.md §4.10) and defaults off.
type Config struct {
	NetID    string `yaml:"net_id"`
	NodeID   string `yaml:"node_id,omitempty"` // hex; random if empty
	BindAddr string `yaml:"bind_addr"`

	BootstrapAddr string `yaml:"bootstrap_addr,omitempty"`
	BootstrapID   string `yaml:"bootstrap_id,omitempty"`

	K       int           `yaml:"k"`
	Alpha   int           `yaml:"alpha"`
	Timeout time.Duration `yaml:"timeout"`
	MaxMsg  int           `yaml:"max_message_len"`

	RepublishInterval time.Duration `yaml:"republish_interval,omitempty"`
}

// DefaultConfig returns the reference parameters from spec.md §1/§4.6/§4.3:
// K=20, alpha=3, T_timeout=5s, M_max=8KiB. Republishing is disabled by
// default; the core itself never requires it.
func DefaultConfig() Config {
	return Config{
		K:       20,
		Alpha:   3,
		Timeout: 5 * time.Second,
		MaxMsg:  MaxMessageLen,
	}
}

// LoadConfigFile reads a YAML config file on top of DefaultConfig. Missing
// fields keep their default. Call once, at process start.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	if cfg.K == 0 {
		cfg.K = 20
	}
	if cfg.Alpha == 0 {
		cfg.Alpha = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxMsg == 0 {
		cfg.MaxMsg = MaxMessageLen
	}
	return cfg, nil
}
