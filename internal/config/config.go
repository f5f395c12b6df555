// Package config loads citylink settings from a config file, CITYLINK_* environment
// variables and command flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/citylink/internal/profile"
	"github.com/aretw0/citylink/pkg/domain"
	"github.com/aretw0/citylink/pkg/ledger"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configDir  = ".citylink"
	envPrefix  = "CITYLINK"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the full application configuration.
type Config struct {
	Store      StoreConfig      `mapstructure:"store"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	Profile    ProfileConfig    `mapstructure:"profile"`
	Log        LogConfig        `mapstructure:"log"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Apply      ApplyConfig      `mapstructure:"apply"`
}

type StoreConfig struct {
	Backend    string `mapstructure:"backend"`
	Dir        string `mapstructure:"dir"`
	Prefix     string `mapstructure:"prefix"`
	Optimistic bool   `mapstructure:"optimistic"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
	Lock     bool   `mapstructure:"lock"`
}

type EncryptionConfig struct {
	Passphrase string `mapstructure:"passphrase"`
}

type ProfileConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type ApplyConfig struct {
	Policy string `mapstructure:"policy"`
}

// SetDefaults registers every key with its default, which also makes each key
// visible to environment lookups.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.dir", ".citylink/sessions")
	v.SetDefault("store.prefix", domain.DefaultKeyPrefix)
	v.SetDefault("store.optimistic", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "citylink:events")
	v.SetDefault("redis.lock", false)
	v.SetDefault("encryption.passphrase", "")
	v.SetDefault("profile.path", profile.DefaultPath)
	v.SetDefault("log.level", "warn")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("apply.policy", string(ledger.Atomic))
}

// Load reads configuration into v and decodes it. An explicit file must exist;
// otherwise ./.citylink/config.* is optional.
func Load(v *viper.Viper, file string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(configDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return Decode(v.AllSettings())
}

// Decode converts a settings map into a validated Config.
func Decode(settings map[string]any) (*Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(settings); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendRedis:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if _, err := ledger.ParsePolicy(c.Apply.Policy); err != nil {
		return err
	}
	if c.Store.Prefix == "" {
		return errors.New("store prefix cannot be empty")
	}
	return nil
}

// Policy returns the parsed apply policy.
func (c *Config) Policy() ledger.Policy {
	p, _ := ledger.ParsePolicy(c.Apply.Policy)
	return p
}
