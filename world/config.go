package world

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/timewinder-dev/dreamvm/interp"
)

const DefaultTickPeriod = 50 * time.Millisecond

type Config struct {
	World  WorldConfig  `toml:"world"`
	Faults FaultsConfig `toml:"faults"`
}

type WorldConfig struct {
	Name string `toml:"name,omitempty"`
	// Script and Image are alternatives; Image wins when both are set.
	Script string `toml:"script,omitempty"`
	Image  string `toml:"image,omitempty"`
	// Entry is a global proc spawned at boot.
	Entry        string  `toml:"entry,omitempty"`
	TickLag      float32 `toml:"tick_lag,omitempty"`
	TickPeriod   string  `toml:"tick_period,omitempty"`
	MaxTicks     int64   `toml:"max_ticks,omitempty"`
	MaxCallDepth int     `toml:"max_call_depth,omitempty"`
	// KeepAlive keeps ticking after every thread has finished, for worlds
	// driven from outside through the bridge.
	KeepAlive   bool  `toml:"keep_alive,omitempty"`
	ReportEvery int64 `toml:"report_every,omitempty"`
}

type FaultsConfig struct {
	// Journal is a SQLite path. Empty keeps faults in memory only.
	Journal string `toml:"journal,omitempty"`
	Recent  int    `toml:"recent,omitempty"`
}

func parseConfig(f io.Reader) (*Config, error) {
	var out Config
	if _, err := toml.NewDecoder(f).Decode(&out); err != nil {
		return nil, err
	}
	if out.World.Entry == "" {
		out.World.Entry = "main"
	}
	if out.World.TickLag <= 0 {
		out.World.TickLag = 1
	}
	if out.World.MaxCallDepth <= 0 {
		out.World.MaxCallDepth = interp.DefaultMaxCallDepth
	}
	if _, err := out.Period(); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadConfigFromFile reads a world config. Script, image and journal paths
// are relative to the config file; with neither script nor image set, the
// script is the config's name with a .star extension.
func LoadConfigFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	c, err := parseConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if c.World.Script == "" && c.World.Image == "" {
		c.World.Script = strings.TrimSuffix(fi.Name(), filepath.Ext(fi.Name())) + ".star"
	}
	if c.World.Name == "" {
		c.World.Name = strings.TrimSuffix(fi.Name(), filepath.Ext(fi.Name()))
	}
	dir := filepath.Dir(path)
	c.World.Script = resolve(dir, c.World.Script)
	c.World.Image = resolve(dir, c.World.Image)
	c.Faults.Journal = resolve(dir, c.Faults.Journal)
	return c, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(dir, p))
}

// Period is the wall-clock time between ticks.
func (c *Config) Period() (time.Duration, error) {
	if c.World.TickPeriod == "" {
		return DefaultTickPeriod, nil
	}
	d, err := time.ParseDuration(c.World.TickPeriod)
	if err != nil {
		return 0, fmt.Errorf("tick_period: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("tick_period must be positive, got %s", d)
	}
	return d, nil
}
