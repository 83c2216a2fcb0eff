// Package config loads and validates experiment configuration.
//
// An experiment file describes the machines (id, listen address, clock
// rate), the shared send probability and policy, and the run duration:
//
//	experiment: 4
//	duration: 60s
//	send_probability: 0.3
//	send_policy: random
//	machines:
//	  - id: 0
//	    listen_addr: 127.0.0.1:5001
//	    clock_rate: 1
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"clockmesh"
)

// Duration wraps time.Duration with yaml support for values like "60s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// MachineConfig is one machine's entry in the experiment file.
type MachineConfig struct {
	ID         int    `yaml:"id"`
	ListenAddr string `yaml:"listen_addr"`
	ClockRate  int    `yaml:"clock_rate"` // 0 means draw uniformly from 1-6
}

// Config is a full experiment description.
type Config struct {
	Experiment      int             `yaml:"experiment"`
	Duration        Duration        `yaml:"duration"`
	SendProbability float64         `yaml:"send_probability"`
	SendPolicy      string          `yaml:"send_policy,omitempty"`
	LogDir          string          `yaml:"log_dir,omitempty"`
	StorePath       string          `yaml:"store_path,omitempty"` // sqlite archive; empty disables
	NTPCheck        bool            `yaml:"ntp_check,omitempty"`
	NTPPool         string          `yaml:"ntp_pool,omitempty"`
	Machines        []MachineConfig `yaml:"machines"`
}

// Load reads and validates an experiment file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.Duration == 0 {
		c.Duration = Duration(60 * time.Second)
	}
	if c.Experiment == 0 {
		c.Experiment = 1
	}
}

// Validate checks ranges and cross-machine consistency.
func (c *Config) Validate() error {
	if len(c.Machines) < 2 {
		return fmt.Errorf("need at least 2 machines, have %d", len(c.Machines))
	}
	if c.SendProbability < 0 || c.SendProbability > 1 {
		return fmt.Errorf("send probability %v out of range [0,1]", c.SendProbability)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if _, err := clockmesh.ParseSendPolicy(c.SendPolicy); err != nil {
		return err
	}

	seenIDs := make(map[int]bool)
	seenAddrs := make(map[string]bool)
	for _, m := range c.Machines {
		if m.ClockRate < 0 || m.ClockRate > 6 {
			return fmt.Errorf("machine %d: clock rate %d out of range 1-6", m.ID, m.ClockRate)
		}
		if m.ListenAddr == "" {
			return fmt.Errorf("machine %d: listen address is empty", m.ID)
		}
		if seenIDs[m.ID] {
			return fmt.Errorf("duplicate machine id %d", m.ID)
		}
		if seenAddrs[m.ListenAddr] {
			return fmt.Errorf("duplicate listen address %s", m.ListenAddr)
		}
		seenIDs[m.ID] = true
		seenAddrs[m.ListenAddr] = true
	}
	return nil
}

// Policy returns the parsed send policy. Call after Validate.
func (c *Config) Policy() clockmesh.SendPolicy {
	p, err := clockmesh.ParseSendPolicy(c.SendPolicy)
	if err != nil {
		return clockmesh.SendRandomPeer
	}
	return p
}
