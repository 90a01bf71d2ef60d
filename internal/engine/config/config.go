package config

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/go-arcade/guild/internal/engine/graph"
	"github.com/go-arcade/guild/pkg/cache"
	"github.com/go-arcade/guild/pkg/database"
	"github.com/go-arcade/guild/pkg/log"
	"github.com/go-arcade/guild/pkg/metrics"
	"github.com/go-arcade/guild/pkg/trace"
)

/**
 * @file: config.go
 * @description: guild engine configuration
 */

type AppConfig struct {
	Log      log.Conf
	Database database.Database
	Redis    cache.Redis
	Engine   Engine
	Metrics  metrics.MetricsConfig
	Trace    trace.Conf
}

// Engine tunes the authorization and consistency engine.
type Engine struct {
	// MaxDepth caps part_of and tournament chains.
	MaxDepth int `mapstructure:"maxDepth"`
	// ListConcurrency bounds the records resolved in parallel by List.
	ListConcurrency int `mapstructure:"listConcurrency"`
	// Watch replaces the audited fields of the named kinds.
	Watch map[string][]string `mapstructure:"watch"`
}

func (e *Engine) SetDefaults() {
	if e.MaxDepth <= 0 {
		e.MaxDepth = graph.DefaultMaxDepth
	}
	if e.ListConcurrency <= 0 {
		e.ListConcurrency = 8
	}
}

func (c *AppConfig) SetDefaults() {
	defaults := log.SetDefaults()
	if c.Log.Output == "" {
		c.Log.Output = defaults.Output
	}
	if c.Log.Path == "" {
		c.Log.Path = defaults.Path
	}
	if c.Log.Filename == "" {
		c.Log.Filename = defaults.Filename
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Level
	}
	c.Redis.SetDefaults()
	c.Engine.SetDefaults()
	c.Metrics.SetDefaults()
	c.Trace.SetDefaults()
}

var (
	current atomic.Pointer[AppConfig]
	once    sync.Once
	loadErr error
)

// NewConf loads confFile once per process; later calls return the loaded
// configuration.
func NewConf(confFile string) (*AppConfig, error) {
	once.Do(func() {
		var cfg *AppConfig
		cfg, loadErr = LoadConfigFile(confFile)
		if loadErr == nil {
			current.Store(cfg)
		}
	})
	return current.Load(), loadErr
}

// Current returns the most recently loaded configuration, nil before NewConf.
func Current() *AppConfig {
	return current.Load()
}

// LoadConfigFile reads a TOML file and keeps watching it. A change that no
// longer parses leaves the previous configuration in place.
func LoadConfigFile(confFile string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(confFile)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		log.Infof("configuration changed, reloading %s", e.Name)
		next, err := decode(v)
		if err != nil {
			log.Warnw("failed to reload configuration", "file", e.Name, "error", err)
			return
		}
		current.Store(next)
	})
	v.WatchConfig()
	return cfg, nil
}

func decode(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration file: %w", err)
	}
	cfg.SetDefaults()
	return cfg, nil
}
