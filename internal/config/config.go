// Package config loads the host tool's TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Image     ImageConfig     `toml:"image"`
	Log       LogConfig       `toml:"log"`
	Provision ProvisionConfig `toml:"provision"`
}

type ImageConfig struct {
	// Path to the flash image. Backend "file" is a flat two-region image
	// flashable as-is; "bolt" is a transactional bbolt database.
	Path       string `toml:"path"`
	Backend    string `toml:"backend"`
	RegionSize uint32 `toml:"region_size"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ProvisionConfig holds the default radio parameters the provision
// command writes; each can be overridden on the command line.
type ProvisionConfig struct {
	NodeID    uint32 `toml:"node_id"`
	NetworkID uint32 `toml:"network_id"`
	GatewayID uint32 `toml:"gateway_id"`
	MaxPower  uint32 `toml:"max_power"`
}

// Defaults returns a Config with sane defaults. The 1 KiB region size
// matches the flash the original node firmware reserves.
func Defaults() *Config {
	return &Config{
		Image: ImageConfig{
			Path:       "~/.past/flash.img",
			Backend:    "file",
			RegionSize: 1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Provision: ProvisionConfig{
			NodeID:    1,
			NetworkID: 1,
			GatewayID: 1,
			MaxPower:  13,
		},
	}
}

// Load reads a TOML config file over the defaults. If path is empty the
// default location is tried and silently skipped when absent.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = ExpandHome("~/.past/config.toml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects geometry and backend values the store cannot work with.
func (c *Config) Validate() error {
	switch c.Image.Backend {
	case "file", "bolt":
	default:
		return fmt.Errorf("image backend %q: want \"file\" or \"bolt\"", c.Image.Backend)
	}
	if c.Image.RegionSize < 64 {
		return fmt.Errorf("region size %d: too small to hold a header and records", c.Image.RegionSize)
	}
	return nil
}

// ExpandHome resolves a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
