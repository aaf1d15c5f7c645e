package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pub-viewer/config"
	"pub-viewer/models"
)

// ErrNoSnapshot is returned when nothing has been persisted yet.
var ErrNoSnapshot = errors.New("no bibliography snapshot stored")

// OpenPostgres verbindet sich mit der Datenbank und migriert das Schema.
func OpenPostgres(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate legt die Snapshot-Tabelle an bzw. aktualisiert sie.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.BibliographySnapshot{}); err != nil {
		return fmt.Errorf("migrate snapshots: %w", err)
	}
	return nil
}

// SnapshotRepository persists accepted bibliographies.
type SnapshotRepository struct {
	DB *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{DB: db}
}

func (r *SnapshotRepository) Save(ctx context.Context, snap *models.BibliographySnapshot) error {
	return r.DB.WithContext(ctx).Create(snap).Error
}

// Latest returns the most recently stored snapshot or ErrNoSnapshot.
func (r *SnapshotRepository) Latest(ctx context.Context) (*models.BibliographySnapshot, error) {
	var snap models.BibliographySnapshot
	err := r.DB.WithContext(ctx).Order("created_at desc").Order("id desc").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// List returns snapshot metadata, newest first, without the raw content.
func (r *SnapshotRepository) List(ctx context.Context, limit int) ([]models.BibliographySnapshot, error) {
	var snaps []models.BibliographySnapshot
	query := r.DB.WithContext(ctx).
		Omit("content").
		Order("created_at desc").Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&snaps).Error; err != nil {
		return nil, err
	}
	return snaps, nil
}
