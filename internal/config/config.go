package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Device    DeviceConfig    `mapstructure:"device"`
}

type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	AuthToken    string   `mapstructure:"auth_token"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RemoteConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout string `mapstructure:"timeout"`
	Offline bool   `mapstructure:"offline"`
}

func (r RemoteConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(r.Timeout)
	if d <= 0 {
		d = 15 * time.Second
	}
	return d
}

type SyncConfig struct {
	MaxRetries        int     `mapstructure:"max_retries"`
	InitialDelay      string  `mapstructure:"initial_delay"`
	MaxDelay          string  `mapstructure:"max_delay"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	ProfileCacheTTL   string  `mapstructure:"profile_cache_ttl"`
	ProgressCacheTTL  string  `mapstructure:"progress_cache_ttl"`
	DebounceQuiet     string  `mapstructure:"debounce_quiet"`
	SessionTimeout    string  `mapstructure:"session_timeout"`
	Strategy          string  `mapstructure:"strategy"`
}

func (s SyncConfig) GetInitialDelay() time.Duration {
	return durationOr(s.InitialDelay, time.Second)
}

func (s SyncConfig) GetMaxDelay() time.Duration {
	return durationOr(s.MaxDelay, 10*time.Second)
}

func (s SyncConfig) GetProfileCacheTTL() time.Duration {
	return durationOr(s.ProfileCacheTTL, 5*time.Minute)
}

func (s SyncConfig) GetProgressCacheTTL() time.Duration {
	return durationOr(s.ProgressCacheTTL, 30*time.Second)
}

func (s SyncConfig) GetDebounceQuiet() time.Duration {
	return durationOr(s.DebounceQuiet, 2*time.Second)
}

func (s SyncConfig) GetSessionTimeout() time.Duration {
	return durationOr(s.SessionTimeout, 5*time.Minute)
}

func durationOr(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

type StorageConfig struct {
	FilePath string `mapstructure:"file_path"`
}

type DeviceConfig struct {
	Name          string `mapstructure:"name"`
	Port          int    `mapstructure:"port"`
	DiscoveryPort int    `mapstructure:"discovery_port"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
