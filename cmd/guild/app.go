package main

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/go-arcade/guild/internal/engine/service"
)

type app struct {
	engine *service.Engine
	db     *gorm.DB
	logger *zap.Logger
	// nil when tracing is disabled
	tracer *sdktrace.TracerProvider
}

func newApp(engine *service.Engine, db *gorm.DB, logger *zap.Logger, tracer *sdktrace.TracerProvider) *app {
	logger.Debug("guild engine ready", zap.Bool("tracing", tracer != nil))
	return &app{engine: engine, db: db, logger: logger, tracer: tracer}
}
