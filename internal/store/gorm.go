package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dailydrops/drops/internal/models"
	"github.com/dailydrops/drops/pkg/config"
	"github.com/dailydrops/drops/pkg/logging"
)

// zapWriter adapts zap.Logger to logger.Writer interface
type zapWriter struct {
	logger *zap.Logger
}

func (w *zapWriter) Printf(format string, args ...interface{}) {
	w.logger.Sugar().Infof(format, args...)
}

// GormBackend persists entries in PostgreSQL so pending work survives
// a process restart.
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend opens a database connection and migrates the entries
// table
func NewGormBackend(cfg *config.DatabaseConfig, logLevel string) (*GormBackend, error) {
	var gormLogLevel logger.LogLevel
	switch logLevel {
	case "DEBUG", "debug":
		gormLogLevel = logger.Info
	case "INFO", "info":
		gormLogLevel = logger.Warn
	case "WARN", "warn", "WARNING", "warning":
		gormLogLevel = logger.Error
	case "ERROR", "error":
		gormLogLevel = logger.Silent
	default:
		gormLogLevel = logger.Warn
	}

	writer := &zapWriter{logger: logging.GetLogger()}
	gormLogger := logger.New(
		writer,
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.AutoMigrate(&models.OptimisticEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate entries table: %w", err)
	}

	logging.GetLogger().Info("Database connection established")

	return &GormBackend{db: db}, nil
}

// Close closes the database connection
func (g *GormBackend) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks database health
func (g *GormBackend) Health(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (g *GormBackend) Get(ctx context.Context, localID string) (*models.OptimisticEntry, error) {
	var entry models.OptimisticEntry
	err := g.db.WithContext(ctx).Where("local_id = ?", localID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entry: %w", err)
	}
	return &entry, nil
}

func (g *GormBackend) Insert(ctx context.Context, entry *models.OptimisticEntry) error {
	err := g.db.WithContext(ctx).Create(entry).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateLocalID
	}
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

func (g *GormBackend) Put(ctx context.Context, entry *models.OptimisticEntry) error {
	result := g.db.WithContext(ctx).Model(&models.OptimisticEntry{}).
		Where("local_id = ?", entry.LocalID).
		Updates(map[string]interface{}{
			"status":        entry.Status,
			"snapshot":      entry.Snapshot,
			"discussion_id": entry.DiscussionID,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *GormBackend) Delete(ctx context.Context, localID string) error {
	result := g.db.WithContext(ctx).Where("local_id = ?", localID).Delete(&models.OptimisticEntry{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *GormBackend) List(ctx context.Context) ([]*models.OptimisticEntry, error) {
	var entries []*models.OptimisticEntry
	if err := g.db.WithContext(ctx).Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return entries, nil
}
