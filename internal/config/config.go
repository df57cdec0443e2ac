package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDataDir        = "~/.taskalert"
	DefaultStorage        = "file"
	DefaultNotifier       = "desktop"
	DefaultCheckInterval  = 30 * time.Second
	DefaultUpcomingWindow = 5 * time.Minute
	DefaultBellInterval   = time.Second
)

type Config struct {
	DataDir       string        `yaml:"data_dir" toml:"data_dir" json:"data_dir"`
	Storage       string        `yaml:"storage" toml:"storage" json:"storage"`
	Alerts        Alerts        `yaml:"alerts" toml:"alerts" json:"alerts"`
	Notifications Notifications `yaml:"notifications" toml:"notifications" json:"notifications"`
	Alarm         Alarm         `yaml:"alarm" toml:"alarm" json:"alarm"`
}

type Alerts struct {
	CheckInterval  Duration `yaml:"check_interval" toml:"check_interval" json:"check_interval"`
	UpcomingWindow Duration `yaml:"upcoming_window" toml:"upcoming_window" json:"upcoming_window"`
}

type Notifications struct {
	Backend string `yaml:"backend" toml:"backend" json:"backend"`
}

type Alarm struct {
	Enabled      *bool    `yaml:"enabled" toml:"enabled" json:"enabled,omitempty"`
	BellInterval Duration `yaml:"bell_interval" toml:"bell_interval" json:"bell_interval"`
}

// Duration reads "30s" style strings from YAML and TOML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}

func (a Alarm) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

func (a *Alerts) ApplyDefaults() {
	if a.CheckInterval <= 0 {
		a.CheckInterval = Duration(DefaultCheckInterval)
	}
	if a.UpcomingWindow <= 0 {
		a.UpcomingWindow = Duration(DefaultUpcomingWindow)
	}
}

func (a *Alarm) ApplyDefaults() {
	if a.BellInterval <= 0 {
		a.BellInterval = Duration(DefaultBellInterval)
	}
}

func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir
	}
	if strings.TrimSpace(c.Storage) == "" {
		c.Storage = DefaultStorage
	}
	if strings.TrimSpace(c.Notifications.Backend) == "" {
		c.Notifications.Backend = DefaultNotifier
	}
	c.Alerts.ApplyDefaults()
	c.Alarm.ApplyDefaults()
}

func Default() *Config {
	var c Config
	c.ApplyDefaults()
	return &c
}

// Load reads a YAML or TOML file (by extension), fills defaults and then
// applies environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var c Config

	b, err := os.ReadFile(expandHome(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := decode(path, b, &c); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	c.ApplyDefaults()
	c.ApplyEnv()
	return &c, nil
}

func decode(path string, b []byte, c *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(string(b), c)
		return err
	default:
		return yaml.Unmarshal(b, c)
	}
}

// DataPath is DataDir with a leading "~" expanded.
func (c *Config) DataPath() string {
	return expandHome(c.DataDir)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
