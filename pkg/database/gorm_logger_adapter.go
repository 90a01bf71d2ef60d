package database

import (
	"context"
	"errors"
	"time"

	"github.com/go-arcade/guild/pkg/log"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// GormLoggerAdapter routes GORM statements to the zap logger.
type GormLoggerAdapter struct {
	Config logger.Config
	Level  logger.LogLevel
	sugar  *zap.SugaredLogger
}

func NewGormLoggerAdapter(config logger.Config, logLevel logger.LogLevel) *GormLoggerAdapter {
	return &GormLoggerAdapter{
		Config: config,
		Level:  logLevel,
		sugar:  log.GetLogger().Desugar().WithOptions(zap.AddCallerSkip(2)).Sugar().Named("gorm"),
	}
}

func (l *GormLoggerAdapter) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.Level = level
	return &clone
}

func (l *GormLoggerAdapter) Info(ctx context.Context, msg string, data ...any) {
	if l.Level >= logger.Info {
		l.sugar.Infow(msg, "data", data)
	}
}

func (l *GormLoggerAdapter) Warn(ctx context.Context, msg string, data ...any) {
	if l.Level >= logger.Warn {
		l.sugar.Warnw(msg, "data", data)
	}
}

func (l *GormLoggerAdapter) Error(ctx context.Context, msg string, data ...any) {
	if l.Level >= logger.Error {
		l.sugar.Errorw(msg, "data", data)
	}
}

func (l *GormLoggerAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.Level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && l.Level >= logger.Error &&
		!(errors.Is(err, logger.ErrRecordNotFound) && l.Config.IgnoreRecordNotFoundError):
		l.sugar.Errorw("sql failed", "sql", sql, "rows", rows, "elapsed", elapsed, "error", err)
	case l.Config.SlowThreshold != 0 && elapsed > l.Config.SlowThreshold && l.Level >= logger.Warn:
		l.sugar.Warnw("slow sql", "sql", sql, "rows", rows, "elapsed", elapsed)
	case l.Level >= logger.Info:
		l.sugar.Debugw("sql", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
