// Package config loads the engine's structured per-channel
// configuration from YAML, layered on top of the process-level flags
// parsed in cmd/playout-engine. Process flags own what to run and
// where to listen; this file owns the channel's fixed output geometry,
// its sink/transport knobs, and the optional asset and hook subsystems.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alxayo/playout-engine/internal/playout/asset"
	"github.com/alxayo/playout-engine/internal/playout/hooks"
	"github.com/alxayo/playout-engine/internal/playout/rationalfps"
)

// FPS mirrors rationalfps.FPS in a YAML-friendly shape (Num/Den don't
// round-trip through exported struct fields on rationalfps.FPS without
// this adapter, since that type is kept deliberately free of tag
// clutter on the engine's hot-path value).
type FPS struct {
	Num int64 `yaml:"num"`
	Den int64 `yaml:"den"`
}

// Resolve converts the YAML shape into a validated rationalfps.FPS.
func (f FPS) Resolve() (rationalfps.FPS, error) {
	return rationalfps.New(f.Num, f.Den)
}

// SinkConfig configures the external encoder/muxer sink endpoint.
type SinkConfig struct {
	// Transport is "tcp" or "uds".
	Transport string `yaml:"transport"`
	// Addr is a TCP address (host:port) or a unix socket path.
	Addr string `yaml:"addr"`
	// BitrateKbps is the target encoder bitrate.
	BitrateKbps int `yaml:"bitrate_kbps"`
	// GOPSize is the encoder's group-of-pictures size.
	GOPSize int `yaml:"gop_size"`
	// PrebufferSeconds absorbs encoder warmup bitrate spikes before the
	// first byte ships.
	PrebufferSeconds float64 `yaml:"prebuffer_seconds"`
}

// AssetConfig configures asset.Resolver.
type AssetConfig struct {
	CacheDir        string        `yaml:"cache_dir"`
	AzureAccountURL string        `yaml:"azure_account_url"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
}

// Resolve converts to asset.Config.
func (a AssetConfig) Resolve() asset.Config {
	return asset.Config{
		CacheDir:     a.CacheDir,
		AccountURL:   a.AzureAccountURL,
		FetchTimeout: a.FetchTimeout,
	}
}

// HookScriptBinding maps an event type to a shell script path.
type HookScriptBinding struct {
	Event  string `yaml:"event"`
	Script string `yaml:"script"`
}

// HookWebhookBinding maps an event type to a webhook URL.
type HookWebhookBinding struct {
	Event string `yaml:"event"`
	URL   string `yaml:"url"`
}

// HooksConfig configures the engine's lifecycle hook fan-out.
type HooksConfig struct {
	hooks.Config `yaml:",inline"`
	Scripts      []HookScriptBinding  `yaml:"scripts"`
	Webhooks     []HookWebhookBinding `yaml:"webhooks"`
}

// Channel is one channel's full structured configuration.
type Channel struct {
	ChannelID string `yaml:"channel_id"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	FPS       FPS    `yaml:"fps"`

	Sink  SinkConfig  `yaml:"sink"`
	Asset AssetConfig `yaml:"asset"`
	Hooks HooksConfig `yaml:"hooks"`

	// MetricsListenAddr serves the Prometheus text exposition endpoint;
	// empty disables it.
	MetricsListenAddr string `yaml:"metrics_listen_addr"`

	// SourceFPS is the decode-side cadence assumed for this channel's
	// segments (see producer.Config.SourceFPS / rationalfps.CadenceAdvances).
	SourceFPS FPS `yaml:"source_fps"`
}

// Load reads and validates a Channel config from a YAML file.
func Load(path string) (*Channel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Channel
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &c, nil
}

func (c *Channel) applyDefaults() {
	if c.FPS.Num == 0 && c.FPS.Den == 0 {
		c.FPS = FPS{Num: 30, Den: 1}
	}
	if c.SourceFPS.Num == 0 && c.SourceFPS.Den == 0 {
		c.SourceFPS = c.FPS
	}
	if c.Sink.Transport == "" {
		c.Sink.Transport = "tcp"
	}
	if c.Sink.GOPSize == 0 {
		c.Sink.GOPSize = 50
	}
	if c.Hooks.Timeout == "" {
		c.Hooks.Timeout = "30s"
	}
	if c.Hooks.Concurrency == 0 {
		c.Hooks.Concurrency = 10
	}
}

func (c *Channel) validate() error {
	if c.ChannelID == "" {
		return fmt.Errorf("channel_id is required")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("width and height must be positive, got %dx%d", c.Width, c.Height)
	}
	if _, err := c.FPS.Resolve(); err != nil {
		return fmt.Errorf("fps: %w", err)
	}
	if _, err := c.SourceFPS.Resolve(); err != nil {
		return fmt.Errorf("source_fps: %w", err)
	}
	switch c.Sink.Transport {
	case "tcp", "uds":
	default:
		return fmt.Errorf("sink.transport must be tcp or uds, got %q", c.Sink.Transport)
	}
	if c.Sink.Addr == "" {
		return fmt.Errorf("sink.addr is required")
	}
	return nil
}
