package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/modelfoundry/modelamm/internal/storage"
	"github.com/modelfoundry/modelamm/internal/storage/models"
)

// gormLogger bridges GORM's logger.Interface onto zap.
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	if err != nil {
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
		return
	}

	if l.logLevel >= logger.Info {
		l.zapLogger.Info("trace", fields...)
	}
}

// postgresStorage implements the Storage interface on GORM.
type postgresStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStorage opens a postgres connection with exponential-backoff retry on
// the initial ping, so a service start can outlast a database restart.
func NewStorage(ctx context.Context, dsn string, zapLogger *zap.Logger) (storage.Storage, error) {
	gormLogger := newGormLogger(zapLogger.Named("gorm"))

	open := func() (*gorm.DB, error) {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormLogger,
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
			SkipDefaultTransaction: true,
		})
		if err != nil {
			return nil, err
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := backoff.Retry(
		ctx,
		open,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	zapLogger.Info("Connected to postgres storage")
	return &postgresStorage{db: db, logger: zapLogger.Named("storage")}, nil
}

func (s *postgresStorage) RunMigrations() error {
	if err := s.db.AutoMigrate(&models.PoolSnapshot{}, &models.TradeRecord{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *postgresStorage) SaveSnapshot(ctx context.Context, snapshot *models.PoolSnapshot) error {
	if err := s.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *postgresStorage) LatestSnapshot(ctx context.Context, modelID string) (*models.PoolSnapshot, error) {
	var snapshot models.PoolSnapshot
	err := s.db.WithContext(ctx).
		Where("model_id = ?", modelID).
		Order("created_at DESC").
		First(&snapshot).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot for %s: %w", modelID, err)
	}
	return &snapshot, nil
}

func (s *postgresStorage) SaveTrade(ctx context.Context, trade *models.TradeRecord) error {
	if err := s.db.WithContext(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

func (s *postgresStorage) ListTrades(ctx context.Context, modelID string, limit, offset int) ([]*models.TradeRecord, error) {
	var trades []*models.TradeRecord
	err := s.db.WithContext(ctx).
		Where("model_id = ?", modelID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trades for %s: %w", modelID, err)
	}
	return trades, nil
}

func (s *postgresStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql.DB: %w", err)
	}
	return sqlDB.Close()
}
