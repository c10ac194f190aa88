// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the owslave TOML configuration file.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Thermoquad/owslave/pkg/owvar"
)

// DefaultRom is the ROM id used when none is configured
const DefaultRom = "01020304050607"

// Config is the complete owslave configuration
type Config struct {
	Device    DeviceConfig    `toml:"device"`
	Transport TransportConfig `toml:"transport"`
	Hook      HookConfig      `toml:"hook"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// DeviceConfig describes the emulated slave
type DeviceConfig struct {
	Rom string `toml:"rom"`
}

// TransportConfig selects and tunes the bus connection
type TransportConfig struct {
	Port        string        `toml:"port"`
	Baud        int           `toml:"baud"`
	URL         string        `toml:"url"`
	Username    string        `toml:"username"`
	NoSSLVerify bool          `toml:"no_ssl_verify"`
	ByteTimeout time.Duration `toml:"byte_timeout"`
	IdleTimeout time.Duration `toml:"idle_timeout"`
}

// HookConfig lists extra tags acknowledged by the extension hook
type HookConfig struct {
	AcceptTags []int `toml:"accept_tags"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Device: DeviceConfig{Rom: DefaultRom},
		Transport: TransportConfig{
			Baud:        115200,
			ByteTimeout: 50 * time.Millisecond,
			IdleTimeout: 250 * time.Millisecond,
		},
	}
}

// Load reads path over the defaults and validates the result
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges. It does not require a transport to be set;
// commands that need one check for it themselves.
func Validate(cfg Config) error {
	if _, err := owvar.ParseRomID(cfg.Device.Rom); err != nil {
		return fmt.Errorf("device.rom: %w", err)
	}
	if cfg.Transport.Port != "" && cfg.Transport.URL != "" {
		return fmt.Errorf("transport: port and url are mutually exclusive")
	}
	if cfg.Transport.Baud <= 0 {
		return fmt.Errorf("transport.baud must be positive, got %d", cfg.Transport.Baud)
	}
	if cfg.Transport.URL != "" {
		u, err := url.Parse(cfg.Transport.URL)
		if err != nil {
			return fmt.Errorf("transport.url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("transport.url: unsupported scheme %q (use ws:// or wss://)", u.Scheme)
		}
	}
	if cfg.Transport.ByteTimeout <= 0 || cfg.Transport.IdleTimeout <= 0 {
		return fmt.Errorf("transport timeouts must be positive")
	}
	for _, tag := range cfg.Hook.AcceptTags {
		if tag < 0 || tag > 0xFF {
			return fmt.Errorf("hook.accept_tags: 0x%X is not a byte", tag)
		}
		if owvar.IsNative(uint8(tag)) {
			return fmt.Errorf("hook.accept_tags: 0x%02X is decoded natively and never reaches the hook", tag)
		}
	}
	return nil
}

// RomID returns the parsed device ROM id
func (c Config) RomID() owvar.RomID {
	// Validate has already accepted the string
	rom, _ := owvar.ParseRomID(c.Device.Rom)
	return rom
}

// HookTags returns the accepted extension tags as bytes
func (c Config) HookTags() []uint8 {
	tags := make([]uint8, 0, len(c.Hook.AcceptTags))
	for _, t := range c.Hook.AcceptTags {
		tags = append(tags, uint8(t))
	}
	return tags
}
