package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/rms-hub/residency-hub/pkg/logger"
)

// queryLogger routes gorm output into the service logger.
type queryLogger struct {
	log           *logger.Logger
	level         gormLogger.LogLevel
	slowThreshold time.Duration
}

func newQueryLogger(log *logger.Logger) *queryLogger {
	return &queryLogger{
		log:           log.With(logger.Component("gorm")),
		level:         gormLogger.Warn,
		slowThreshold: 500 * time.Millisecond,
	}
}

func (l *queryLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *queryLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormLogger.Info {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormLogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormLogger.Error {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormLogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormLogger.Error:
		sql, rows := fc()
		l.log.Error("query failed", logger.String("sql", sql), logger.Int64("rows", rows), logger.Latency(elapsed), logger.Err(err))
	case elapsed > l.slowThreshold && l.level >= gormLogger.Warn:
		sql, rows := fc()
		l.log.Warn("slow query", logger.String("sql", sql), logger.Int64("rows", rows), logger.Latency(elapsed))
	case l.level >= gormLogger.Info:
		sql, rows := fc()
		l.log.Debug("query", logger.String("sql", sql), logger.Int64("rows", rows), logger.Latency(elapsed))
	}
}
