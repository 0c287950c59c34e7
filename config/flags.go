package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flags are the command-line overrides. Only flags the user actually set
// override lower layers.
type Flags struct {
	fs  *pflag.FlagSet
	v   Config
	cfg string
}

// RegisterFlags defines every config flag on fs.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	d := Default()
	fs.StringVar(&f.cfg, "config", "", "path to a TOML config file")
	fs.StringVar(&f.v.Category, "category", "", "watch every live channel in this category")
	fs.StringSliceVar(&f.v.Channels, "channels", nil, "comma separated channels to watch")
	fs.StringVar(&f.v.Filter, "filter", "", "regular expression a message must match")
	fs.IntVar(&f.v.BatchSize, "batch-size", d.BatchSize, "channels per chat session")
	fs.IntVar(&f.v.QueueSize, "queue-size", d.QueueSize, "matched messages buffered before watchers block")
	fs.IntVar(&f.v.MaxReconnects, "max-reconnects", d.MaxReconnects, "reconnect attempts before a session gives up")
	fs.DurationVar(&f.v.InitialBackoff, "initial-backoff", d.InitialBackoff, "first reconnect delay")
	fs.DurationVar(&f.v.MaxBackoff, "max-backoff", d.MaxBackoff, "longest reconnect delay")
	fs.StringVar(&f.v.Twitch.ClientID, "client-id", "", "Twitch application client id")
	fs.StringVar(&f.v.Twitch.AccessToken, "access-token", "", "Twitch access token")
	fs.StringVar(&f.v.Twitch.ClientSecret, "client-secret", "", "Twitch client secret, used to mint an app token")
	fs.StringVar(&f.v.Color, "color", d.Color, "colourise output: auto, always or never")
	fs.StringVar(&f.v.MetricsAddr, "metrics-addr", "", "serve /healthz, /status and /metrics on this address")
	return f
}

// ConfigPath is the --config value.
func (f *Flags) ConfigPath() string { return f.cfg }

// Apply copies every flag that was set on the command line into c.
func (f *Flags) Apply(c *Config) {
	str := map[string]struct{ dst, src *string }{
		"category":      {&c.Category, &f.v.Category},
		"filter":        {&c.Filter, &f.v.Filter},
		"client-id":     {&c.Twitch.ClientID, &f.v.Twitch.ClientID},
		"access-token":  {&c.Twitch.AccessToken, &f.v.Twitch.AccessToken},
		"client-secret": {&c.Twitch.ClientSecret, &f.v.Twitch.ClientSecret},
		"color":         {&c.Color, &f.v.Color},
		"metrics-addr":  {&c.MetricsAddr, &f.v.MetricsAddr},
	}
	for name, p := range str {
		if f.fs.Changed(name) {
			*p.dst = *p.src
		}
	}
	ints := map[string]struct{ dst, src *int }{
		"batch-size":     {&c.BatchSize, &f.v.BatchSize},
		"queue-size":     {&c.QueueSize, &f.v.QueueSize},
		"max-reconnects": {&c.MaxReconnects, &f.v.MaxReconnects},
	}
	for name, p := range ints {
		if f.fs.Changed(name) {
			*p.dst = *p.src
		}
	}
	durs := map[string]struct{ dst, src *time.Duration }{
		"initial-backoff": {&c.InitialBackoff, &f.v.InitialBackoff},
		"max-backoff":     {&c.MaxBackoff, &f.v.MaxBackoff},
	}
	for name, p := range durs {
		if f.fs.Changed(name) {
			*p.dst = *p.src
		}
	}
	if f.fs.Changed("channels") {
		c.Channels = append([]string(nil), f.v.Channels...)
	}
}
