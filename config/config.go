// Package config builds the typed Config used by the chatgrep command.
// Values are layered: defaults, then an optional TOML file, then environment
// variables, then command-line flags. Validate reports the first problem that
// would prevent a run.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults.
const (
	DefaultBatchSize      = 100
	DefaultQueueSize      = 1000
	DefaultMaxReconnects  = 10
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultColor          = "auto"
)

type Config struct {
	Twitch TwitchConfig `toml:"twitch"`

	// Target: exactly one of Category or Channels.
	Category string   `toml:"category"`
	Channels []string `toml:"channels"`
	Filter   string   `toml:"filter"`

	BatchSize      int           `toml:"batch_size"`
	QueueSize      int           `toml:"queue_size"`
	MaxReconnects  int           `toml:"max_reconnects"`
	InitialBackoff time.Duration `toml:"initial_backoff"`
	MaxBackoff     time.Duration `toml:"max_backoff"`

	Color       string `toml:"color"`
	MetricsAddr string `toml:"metrics_addr"`
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`
}

// TwitchConfig holds catalog credentials and endpoint overrides.
type TwitchConfig struct {
	ClientID     string `toml:"client_id"`
	AccessToken  string `toml:"access_token"`
	ClientSecret string `toml:"client_secret"`
	HelixURL     string `toml:"helix_url"`
	IRCAddress   string `toml:"irc_address"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		QueueSize:      DefaultQueueSize,
		MaxReconnects:  DefaultMaxReconnects,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		Color:          DefaultColor,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load returns defaults overlaid with the TOML file at path (skipped when
// path is empty) and then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString(&c.Twitch.ClientID, "TWITCH_CLIENT_ID")
	setString(&c.Twitch.AccessToken, "TWITCH_ACCESS_TOKEN")
	setString(&c.Twitch.ClientSecret, "TWITCH_CLIENT_SECRET")
	setString(&c.Twitch.HelixURL, "TWITCH_HELIX_URL")
	setString(&c.Twitch.IRCAddress, "TWITCH_IRC_ADDRESS")
	setString(&c.Category, "CHATGREP_CATEGORY")
	setString(&c.Filter, "CHATGREP_FILTER")
	setString(&c.Color, "CHATGREP_COLOR")
	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	if v := os.Getenv("CHATGREP_CHANNELS"); v != "" {
		c.Channels = SplitList(v)
	}

	ints := []struct {
		dst *int
		key string
	}{
		{&c.BatchSize, "CHATGREP_BATCH_SIZE"},
		{&c.QueueSize, "CHATGREP_QUEUE_SIZE"},
		{&c.MaxReconnects, "CHATGREP_MAX_RECONNECTS"},
	}
	for _, it := range ints {
		v := os.Getenv(it.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", it.key, err)
		}
		*it.dst = n
	}

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&c.InitialBackoff, "CHATGREP_INITIAL_BACKOFF"},
		{&c.MaxBackoff, "CHATGREP_MAX_BACKOFF"},
	}
	for _, it := range durations {
		v := os.Getenv(it.key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", it.key, err)
		}
		*it.dst = d
	}
	return nil
}

// SplitList splits a comma or whitespace separated list, dropping empties.
func SplitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

// Validate checks the fields required for a run.
func (c *Config) Validate() error {
	var errs []error
	switch {
	case c.Category == "" && len(c.Channels) == 0:
		errs = append(errs, errors.New("one of category or channels is required"))
	case c.Category != "" && len(c.Channels) > 0:
		errs = append(errs, errors.New("category and channels are mutually exclusive"))
	}
	if c.Filter == "" {
		errs = append(errs, errors.New("filter is required"))
	} else if _, err := regexp.Compile(c.Filter); err != nil {
		errs = append(errs, fmt.Errorf("invalid filter: %w", err))
	}
	if c.Twitch.ClientID == "" {
		errs = append(errs, errors.New("missing TWITCH_CLIENT_ID"))
	}
	if c.Twitch.AccessToken == "" && c.Twitch.ClientSecret == "" {
		errs = append(errs, errors.New("missing TWITCH_ACCESS_TOKEN (or TWITCH_CLIENT_SECRET)"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d", c.BatchSize))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue size must be positive, got %d", c.QueueSize))
	}
	if c.MaxReconnects <= 0 {
		errs = append(errs, fmt.Errorf("max reconnects must be positive, got %d", c.MaxReconnects))
	}
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		errs = append(errs, fmt.Errorf("invalid backoff window %s..%s", c.InitialBackoff, c.MaxBackoff))
	}
	switch strings.ToLower(c.Color) {
	case "auto", "always", "never":
	default:
		errs = append(errs, fmt.Errorf("invalid color %q", c.Color))
	}
	return errors.Join(errs...)
}
