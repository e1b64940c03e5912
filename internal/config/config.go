// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"marketpulse/internal/market"
)

// Config is loaded from config.yaml. Secrets (API keys, redis address) come
// from the environment; see Env.
type Config struct {
	ServerPort int `yaml:"server_port"`

	Feed struct {
		URL     string   `yaml:"url"` // empty → mock random-walk feed
		Symbols []string `yaml:"symbols"`
	} `yaml:"feed"`

	Indicator struct {
		WindowSize int `yaml:"window_size"`
		SMAWindow  int `yaml:"sma_window"`
		MinSamples int `yaml:"min_samples"`
	} `yaml:"indicator"`

	Breakout struct {
		RSIHigh         float64 `yaml:"rsi_high"`
		RSILow          float64 `yaml:"rsi_low"`
		VolumeSpikeMult float64 `yaml:"volume_spike_mult"`
		LevelStep       float64 `yaml:"level_step"`
	} `yaml:"breakout"`

	Cooldown struct {
		RSISeconds    int `yaml:"rsi_seconds"`
		VolumeSeconds int `yaml:"volume_seconds"`
		LevelSeconds  int `yaml:"level_seconds"`
	} `yaml:"cooldown"`

	Alert struct {
		GeneratorTimeoutMs   int `yaml:"generator_timeout_ms"`
		SynthesizerTimeoutMs int `yaml:"synthesizer_timeout_ms"`
		MaxWords             int `yaml:"max_words"`
		MaxInFlight          int `yaml:"max_in_flight"`
	} `yaml:"alert"`

	Redis struct {
		DB         int `yaml:"db"`
		TTLSeconds int `yaml:"ttl_seconds"`
	} `yaml:"redis"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

// Env holds secrets read from the environment (.env is loaded by main).
type Env struct {
	GeminiAPIKey     string
	ElevenLabsAPIKey string
	RedisAddr        string
}

// Load reads the yaml file, fills defaults and validates. An invalid
// configuration is a startup error; the caller refuses to start.
func Load(path string) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnv collects secrets after godotenv has populated the environment.
func LoadEnv() Env {
	return Env{
		GeminiAPIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		ElevenLabsAPIKey: strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		RedisAddr:        strings.TrimSpace(os.Getenv("REDIS_ADDR")),
	}
}

func (c *Config) fillDefaults() {
	if c.ServerPort == 0 {
		c.ServerPort = 8089
	}
	if len(c.Feed.Symbols) == 0 {
		c.Feed.Symbols = []string{"BTCUSD", "ETHUSD", "SOLUSD"}
	}
	if c.Indicator.WindowSize == 0 {
		c.Indicator.WindowSize = 100
	}
	if c.Indicator.SMAWindow == 0 {
		c.Indicator.SMAWindow = 30
	}
	if c.Indicator.MinSamples == 0 {
		c.Indicator.MinSamples = 5
	}
	if c.Breakout.RSIHigh == 0 {
		c.Breakout.RSIHigh = 80
	}
	if c.Breakout.RSILow == 0 {
		c.Breakout.RSILow = 20
	}
	if c.Breakout.VolumeSpikeMult == 0 {
		c.Breakout.VolumeSpikeMult = 5
	}
	if c.Breakout.LevelStep == 0 {
		c.Breakout.LevelStep = 1000
	}
	if c.Cooldown.RSISeconds == 0 {
		c.Cooldown.RSISeconds = 300
	}
	if c.Cooldown.VolumeSeconds == 0 {
		c.Cooldown.VolumeSeconds = 120
	}
	if c.Cooldown.LevelSeconds == 0 {
		c.Cooldown.LevelSeconds = 180
	}
	if c.Alert.GeneratorTimeoutMs == 0 {
		c.Alert.GeneratorTimeoutMs = 5000
	}
	if c.Alert.SynthesizerTimeoutMs == 0 {
		c.Alert.SynthesizerTimeoutMs = 5000
	}
	if c.Alert.MaxWords == 0 {
		c.Alert.MaxWords = 30
	}
	if c.Alert.MaxInFlight == 0 {
		c.Alert.MaxInFlight = 8
	}
	if c.Redis.TTLSeconds == 0 {
		c.Redis.TTLSeconds = 60
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("config: server_port %d out of range", c.ServerPort)
	}
	if c.Indicator.WindowSize < 2 {
		return fmt.Errorf("config: indicator.window_size must be >= 2, got %d", c.Indicator.WindowSize)
	}
	if c.Indicator.MinSamples < 2 || c.Indicator.MinSamples > c.Indicator.WindowSize {
		return fmt.Errorf("config: indicator.min_samples %d must be in [2, window_size]", c.Indicator.MinSamples)
	}
	if c.Indicator.SMAWindow < 1 || c.Indicator.SMAWindow > c.Indicator.WindowSize {
		return fmt.Errorf("config: indicator.sma_window %d must be in [1, window_size]", c.Indicator.SMAWindow)
	}
	if c.Breakout.RSIHigh <= c.Breakout.RSILow {
		return fmt.Errorf("config: breakout.rsi_high %.1f must exceed rsi_low %.1f", c.Breakout.RSIHigh, c.Breakout.RSILow)
	}
	if c.Breakout.RSIHigh > 100 || c.Breakout.RSILow < 0 {
		return fmt.Errorf("config: breakout RSI thresholds must stay within [0,100]")
	}
	if c.Breakout.VolumeSpikeMult <= 1 {
		return fmt.Errorf("config: breakout.volume_spike_mult must exceed 1, got %.2f", c.Breakout.VolumeSpikeMult)
	}
	if c.Breakout.LevelStep <= 0 {
		return fmt.Errorf("config: breakout.level_step must be positive, got %.2f", c.Breakout.LevelStep)
	}
	for trig, d := range c.Cooldowns() {
		if d <= 0 {
			return fmt.Errorf("config: cooldown for %s must be positive", trig)
		}
	}
	if c.Alert.GeneratorTimeoutMs <= 0 || c.Alert.SynthesizerTimeoutMs <= 0 {
		return fmt.Errorf("config: alert timeouts must be positive")
	}
	if c.Alert.MaxWords < 1 {
		return fmt.Errorf("config: alert.max_words must be positive")
	}
	for _, s := range c.Feed.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("config: feed.symbols contains an empty symbol")
		}
	}
	return nil
}

// Cooldowns maps every trigger type to its suppression duration.
func (c *Config) Cooldowns() map[market.Trigger]time.Duration {
	return map[market.Trigger]time.Duration{
		market.TriggerRSIHigh:     time.Duration(c.Cooldown.RSISeconds) * time.Second,
		market.TriggerRSILow:      time.Duration(c.Cooldown.RSISeconds) * time.Second,
		market.TriggerVolumeSpike: time.Duration(c.Cooldown.VolumeSeconds) * time.Second,
		market.TriggerPriceLevel:  time.Duration(c.Cooldown.LevelSeconds) * time.Second,
	}
}

// Symbols returns the watch set upper-cased and de-duplicated.
func (c *Config) Symbols() []string {
	seen := make(map[string]struct{}, len(c.Feed.Symbols))
	out := make([]string, 0, len(c.Feed.Symbols))
	for _, s := range c.Feed.Symbols {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
