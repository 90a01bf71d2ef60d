//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/go-arcade/guild/internal/engine/config"
	"github.com/go-arcade/guild/internal/engine/notify"
	"github.com/go-arcade/guild/internal/engine/repo"
	"github.com/go-arcade/guild/internal/engine/service"
	"github.com/go-arcade/guild/pkg/database"
	"github.com/go-arcade/guild/pkg/log"
	"github.com/go-arcade/guild/pkg/metrics"
	"github.com/go-arcade/guild/pkg/trace"
)

func initApp(configFile string) (*app, func(), error) {
	panic(wire.Build(
		// 配置层
		config.ProviderSet,
		// 日志
		log.ProviderSet,
		// 存储层
		database.ProviderSet,
		repo.ProviderSet,
		// 指标
		metrics.ProviderSet,
		// 链路追踪
		trace.ProviderSet,
		// 通知
		notify.ProviderSet,
		// 引擎
		service.ProviderSet,
		newApp,
	))
}
