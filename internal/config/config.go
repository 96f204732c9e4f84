package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the bootstrap configuration read from configs/config.yml.
// Runtime settings (ports, api key, mqtt) live in the settings store and are
// only seeded from here on first start.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Network   NetworkConfig   `mapstructure:"network"`
	Observer  ObserverConfig  `mapstructure:"observer"`
	Collector CollectorConfig `mapstructure:"collector"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type NetworkConfig struct {
	APIPort int `mapstructure:"apiPort"`
	WSPort  int `mapstructure:"wsPort"`
}

type ObserverConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type CollectorConfig struct {
	Workers int           `mapstructure:"workers"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type DiscoveryConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Window  time.Duration `mapstructure:"window"`
}

const envPrefix = "SYSTEM_BRIDGE"

var errInvalidPort = errors.New("port must be between 1 and 65535")

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("db.path", "system-bridge.db")
	v.SetDefault("network.apiPort", 9170)
	v.SetDefault("network.wsPort", 9172)
	v.SetDefault("observer.interval", 30*time.Second)
	v.SetDefault("collector.workers", 4)
	v.SetDefault("collector.timeout", 60*time.Second)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("discovery.enabled", true)
	v.SetDefault("discovery.window", 30*time.Second)
}

// Load reads config.yml from the given search paths. A missing file is not an
// error; defaults and SYSTEM_BRIDGE_* environment variables still apply.
func Load(paths ...string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	for name, port := range map[string]int{
		"network.apiPort": c.Network.APIPort,
		"network.wsPort":  c.Network.WSPort,
	} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%s=%d: %w", name, port, errInvalidPort)
		}
	}
	if c.Collector.Workers < 1 {
		return fmt.Errorf("collector.workers must be >= 1, got %d", c.Collector.Workers)
	}
	return nil
}
