package journal

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// eventRow is the Postgres table layout; Event columns are embedded as-is.
type eventRow struct {
	ID    uint64 `gorm:"primaryKey"`
	Event `gorm:"embedded"`
}

func (eventRow) TableName() string { return "journal_events" }

// PostgresSink writes events through gorm so the schema is migrated on start.
type PostgresSink struct {
	db *gorm.DB
}

func NewPostgresSink(dsn string) (*PostgresSink, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres journal: %w", err)
	}
	if err := db.AutoMigrate(&eventRow{}); err != nil {
		return nil, fmt.Errorf("migrate journal_events: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

func (s *PostgresSink) Record(ctx context.Context, e Event) error {
	return s.db.WithContext(ctx).Create(&eventRow{Event: e}).Error
}

func (s *PostgresSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
