package config

import (
	"github.com/google/wire"

	"github.com/go-arcade/guild/pkg/cache"
	"github.com/go-arcade/guild/pkg/database"
	"github.com/go-arcade/guild/pkg/log"
	"github.com/go-arcade/guild/pkg/metrics"
	"github.com/go-arcade/guild/pkg/trace"
)

// ProviderSet 提供配置相关的依赖
var ProviderSet = wire.NewSet(
	ProvideConf,
	ProvideLogConf,
	ProvideDatabaseConf,
	ProvideRedisConf,
	ProvideMetricsConf,
	ProvideEngineConf,
	ProvideTraceConf,
)

// ProvideConf 提供完整配置实例
func ProvideConf(configFile string) (*AppConfig, error) {
	return NewConf(configFile)
}

func ProvideLogConf(c *AppConfig) *log.Conf {
	return &c.Log
}

func ProvideDatabaseConf(c *AppConfig) database.Database {
	return c.Database
}

func ProvideRedisConf(c *AppConfig) cache.Redis {
	return c.Redis
}

func ProvideMetricsConf(c *AppConfig) metrics.MetricsConfig {
	return c.Metrics
}

func ProvideEngineConf(c *AppConfig) Engine {
	return c.Engine
}

func ProvideTraceConf(c *AppConfig) trace.Conf {
	return c.Trace
}
