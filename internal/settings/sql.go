package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/haven-org/haven/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStore persists settings through GORM (SQLite or MySQL).
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps a migrated GORM connection.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(ctx context.Context, key string) (*models.Setting, error) {
	return getByKey(s.db.WithContext(ctx), key)
}

func (s *SQLStore) Upsert(ctx context.Context, key string, value []byte, meta Meta) (*models.Setting, error) {
	if err := checkValue(key, value); err != nil {
		return nil, err
	}

	var out *models.Setting
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.Setting{
			Key:         key,
			Value:       string(value),
			Description: meta.Description,
			Category:    meta.category(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "description", "category", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return err
		}
		// Re-read so CreatedAt and ID reflect the stored row, not the
		// attempted insert.
		got, err := getByKey(tx, key)
		if err != nil {
			return err
		}
		out = got
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("settings: upsert %s: %w", key, err)
	}
	return out, nil
}

func (s *SQLStore) List(ctx context.Context, category string) ([]models.Setting, error) {
	q := s.db.WithContext(ctx).Model(&models.Setting{})
	if category != "" {
		q = q.Where(&models.Setting{Category: category})
	}
	var rows []models.Setting
	if err := q.Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("settings: list: %w", err)
	}
	return rows, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("settings: ping: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("settings: ping: %w", err)
	}
	return nil
}

func getByKey(tx *gorm.DB, key string) (*models.Setting, error) {
	if key == "" {
		// A zero-value struct condition would match any row.
		return nil, ErrNotFound
	}
	var row models.Setting
	err := tx.Where(&models.Setting{Key: key}).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("settings: get %s: %w", key, err)
	}
	return &row, nil
}
