package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/audiolibrelab/voicechanger/internal/effects"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	CompletionEstimate = "estimate"
	CompletionDevice   = "device"
)

// RootConfig is the on-disk layout: a base configuration, optional named
// profiles overriding it, and the name of the profile to use.
type RootConfig struct {
	Config        `mapstructure:",squash" yaml:",inline"`
	ActiveProfile string             `mapstructure:"active_profile" yaml:"active_profile"`
	Profiles      map[string]*Config `mapstructure:"profiles" yaml:"profiles,omitempty"`
}

type Config struct {
	Audio   AudioConfig      `mapstructure:"audio" yaml:"audio"`
	Output  OutputConfig     `mapstructure:"output" yaml:"output"`
	Session SessionConfig    `mapstructure:"session" yaml:"session"`
	Server  ServerConfig     `mapstructure:"server" yaml:"server"`
	Effects []effects.Effect `mapstructure:"effects" yaml:"effects,omitempty" validate:"dive"`

	// Name of the profile this configuration was resolved from
	Profile string `mapstructure:"-" yaml:"-"`
}

type AudioConfig struct {
	Backend     string        `mapstructure:"backend" yaml:"backend" validate:"omitempty,oneof=pipewire auto"`
	Source      string        `mapstructure:"source" yaml:"source"` // PipeWire capture target, empty for the default source
	SampleRate  int           `mapstructure:"sample_rate" yaml:"sample_rate" validate:"gte=8000,lte=192000"`
	Player      string        `mapstructure:"player" yaml:"player" validate:"omitempty,oneof=ffplay beep auto"`
	StopTimeout time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout" validate:"gt=0"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory" validate:"required"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
}

type SessionConfig struct {
	ElapsedInterval    time.Duration `mapstructure:"elapsed_interval" yaml:"elapsed_interval" validate:"gt=0"`
	MeterInterval      time.Duration `mapstructure:"meter_interval" yaml:"meter_interval" validate:"gt=0"`
	PlaybackCompletion string        `mapstructure:"playback_completion" yaml:"playback_completion" validate:"oneof=estimate device"`
}

type ServerConfig struct {
	Address        string   `mapstructure:"address" yaml:"address"`
	Port           int      `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Default returns the built-in configuration used when no file is present
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			Backend:     "auto",
			SampleRate:  44100,
			Player:      "auto",
			StopTimeout: 5 * time.Second,
		},
		Output: OutputConfig{
			Directory: filepath.Join(os.Getenv("HOME"), "Audio", "VoiceChanger"),
			Prefix:    "voice",
		},
		Session: SessionConfig{
			ElapsedInterval:    time.Second,
			MeterInterval:      100 * time.Millisecond,
			PlaybackCompletion: CompletionEstimate,
		},
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
	}
}

// LoadWithProfile reads configFile (if any), applies VOICECHANGER_* environment
// overrides and resolves the requested profile on top of the base section.
// An empty configFile yields the defaults.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	v := newViper()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	var root RootConfig
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// viper lower-cases map keys
	name := strings.ToLower(profile)
	if name == "" {
		name = strings.ToLower(root.ActiveProfile)
	}

	resolved := &root.Config
	if name != "" && name != "default" {
		selected, exists := root.Profiles[name]
		if !exists {
			return nil, fmt.Errorf("configuration profile '%s' not found", name)
		}
		resolved = mergeConfigs(&root.Config, selected)
	} else if def, exists := root.Profiles["default"]; exists {
		resolved = mergeConfigs(&root.Config, def)
	}
	if name == "" {
		name = "default"
	}
	resolved.Profile = name

	resolved.Output.Directory = expandPath(resolved.Output.Directory)

	if err := Validate(resolved); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return resolved, nil
}

// newViper creates an isolated viper instance seeded with defaults so that
// environment variables can override every known key.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VOICECHANGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("audio.backend", def.Audio.Backend)
	v.SetDefault("audio.source", def.Audio.Source)
	v.SetDefault("audio.sample_rate", def.Audio.SampleRate)
	v.SetDefault("audio.player", def.Audio.Player)
	v.SetDefault("audio.stop_timeout", def.Audio.StopTimeout)
	v.SetDefault("output.directory", def.Output.Directory)
	v.SetDefault("output.prefix", def.Output.Prefix)
	v.SetDefault("session.elapsed_interval", def.Session.ElapsedInterval)
	v.SetDefault("session.meter_interval", def.Session.MeterInterval)
	v.SetDefault("session.playback_completion", def.Session.PlaybackCompletion)
	v.SetDefault("server.address", def.Server.Address)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.allowed_origins", def.Server.AllowedOrigins)
	v.SetDefault("active_profile", "")

	return v
}

// mergeConfigs overlays the non-zero fields of profile onto base.
// Effects: a profile listing effects replaces the whole catalog.
func mergeConfigs(base, profile *Config) *Config {
	result := *base
	result.Effects = append([]effects.Effect(nil), base.Effects...)
	result.Server.AllowedOrigins = append([]string(nil), base.Server.AllowedOrigins...)

	if profile == nil {
		return &result
	}

	if profile.Audio.Backend != "" {
		result.Audio.Backend = profile.Audio.Backend
	}
	if profile.Audio.Source != "" {
		result.Audio.Source = profile.Audio.Source
	}
	if profile.Audio.SampleRate != 0 {
		result.Audio.SampleRate = profile.Audio.SampleRate
	}
	if profile.Audio.Player != "" {
		result.Audio.Player = profile.Audio.Player
	}
	if profile.Audio.StopTimeout != 0 {
		result.Audio.StopTimeout = profile.Audio.StopTimeout
	}

	if profile.Output.Directory != "" {
		result.Output.Directory = profile.Output.Directory
	}
	if profile.Output.Prefix != "" {
		result.Output.Prefix = profile.Output.Prefix
	}

	if profile.Session.ElapsedInterval != 0 {
		result.Session.ElapsedInterval = profile.Session.ElapsedInterval
	}
	if profile.Session.MeterInterval != 0 {
		result.Session.MeterInterval = profile.Session.MeterInterval
	}
	if profile.Session.PlaybackCompletion != "" {
		result.Session.PlaybackCompletion = profile.Session.PlaybackCompletion
	}

	if profile.Server.Address != "" {
		result.Server.Address = profile.Server.Address
	}
	if profile.Server.Port != 0 {
		result.Server.Port = profile.Server.Port
	}
	if len(profile.Server.AllowedOrigins) > 0 {
		result.Server.AllowedOrigins = append([]string(nil), profile.Server.AllowedOrigins...)
	}

	if len(profile.Effects) > 0 {
		result.Effects = append([]effects.Effect(nil), profile.Effects...)
	}

	return &result
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the effect catalog
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if cfg.Session.MeterInterval > cfg.Session.ElapsedInterval {
		return fmt.Errorf("session.meter_interval (%s) must not exceed session.elapsed_interval (%s)",
			cfg.Session.MeterInterval, cfg.Session.ElapsedInterval)
	}

	if len(cfg.Effects) > 0 {
		if _, err := effects.NewCatalog(cfg.Effects); err != nil {
			return fmt.Errorf("invalid effects: %w", err)
		}
	}

	return nil
}

// Catalog returns the configured effect catalog, or the built-in one when
// the configuration does not define effects.
func (c *Config) Catalog() (*effects.Catalog, error) {
	if len(c.Effects) == 0 {
		return effects.BuiltinCatalog(), nil
	}
	return effects.NewCatalog(c.Effects)
}

// ListenAddr returns the host:port the control server binds to
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// UpdateActiveProfile rewrites the active_profile field in the config file
func UpdateActiveProfile(configFile, newActiveProfile string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Dedicated instance, the defaults of newViper must not end up in the file
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if newActiveProfile != "default" {
		profiles := v.GetStringMap("profiles")
		if _, ok := profiles[strings.ToLower(newActiveProfile)]; !ok {
			return fmt.Errorf("configuration profile '%s' not found", newActiveProfile)
		}
	}

	v.Set("active_profile", newActiveProfile)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// ProfileNames lists the profiles defined in configFile, "default" first
func ProfileNames(configFile string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var names []string
	for name := range v.GetStringMap("profiles") {
		if name != "default" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return append([]string{"default"}, names...), nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
