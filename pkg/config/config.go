// Package config loads the radar configuration from an optional YAML
// file. Flags and environment variables layered on top are handled by
// the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "3s"-style YAML scalars; yaml.v3 has no native
// time.Duration support.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// View configures one dashboard view and its engine instance. Zero
// values for the capacities fall back to engine defaults.
type View struct {
	Name          string   `yaml:"name"`
	PollInterval  Duration `yaml:"poll_interval"`
	EventTTL      Duration `yaml:"event_ttl"`
	FrameInterval Duration `yaml:"frame_interval"`

	BufferCapacity int `yaml:"buffer_capacity"`
	DedupCapacity  int `yaml:"dedup_capacity"`
	DedupRetain    int `yaml:"dedup_retain"`
	FetchLimit     int `yaml:"fetch_limit"`
	TopCategories  int `yaml:"top_categories"`
}

// Config is the full radar configuration.
type Config struct {
	Listen       string   `yaml:"listen"`
	FeedURL      string   `yaml:"feed_url"`
	FeedTimeout  Duration `yaml:"feed_timeout"`
	RedisURL     string   `yaml:"redis_url"`     // optional
	DatabaseURL  string   `yaml:"database_url"`  // optional
	GeoDataPath  string   `yaml:"geo_data"`      // optional CSV: country_code,lat,lon
	PushInterval Duration `yaml:"push_interval"` // websocket frame cadence

	Views []View `yaml:"views"`
}

// Default returns the configuration used when no file is given: the
// three stock dashboard views against a local backend.
func Default() *Config {
	return &Config{
		Listen:       ":8099",
		FeedTimeout:  Duration(10 * time.Second),
		PushInterval: Duration(100 * time.Millisecond),
		Views: []View{
			{
				Name:         "firewall",
				PollInterval: Duration(3 * time.Second),
				EventTTL:     Duration(10 * time.Second),
			},
			{
				Name:         "attacks",
				PollInterval: Duration(5 * time.Second),
				EventTTL:     Duration(15 * time.Second),
			},
			{
				Name:           "rate",
				PollInterval:   Duration(3 * time.Second),
				EventTTL:       Duration(10 * time.Second),
				BufferCapacity: 300,
			},
		},
	}
}

// Load reads path and unmarshals it over the defaults, so a partial
// file only overrides what it mentions.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the parts the engines themselves cannot: the feed
// URL and the view list. Per-view timing and capacity validation
// happens at engine construction.
func (c *Config) Validate() error {
	if c.FeedURL == "" {
		return errors.New("feed URL is required")
	}
	if len(c.Views) == 0 {
		return errors.New("at least one view is required")
	}
	seen := make(map[string]struct{}, len(c.Views))
	for _, v := range c.Views {
		if v.Name == "" {
			return errors.New("every view needs a name")
		}
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("duplicate view name %q", v.Name)
		}
		seen[v.Name] = struct{}{}
	}
	return nil
}
