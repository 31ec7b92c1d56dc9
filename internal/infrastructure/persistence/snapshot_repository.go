package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/techpack/backend/internal/domain/shared"
	"github.com/techpack/backend/internal/domain/techpack"
	"github.com/techpack/backend/internal/infrastructure/persistence/models"
)

// GormSnapshotRepository implements SnapshotRepository and SnapshotWriter using GORM
type GormSnapshotRepository struct {
	db *gorm.DB
}

var (
	_ techpack.SnapshotRepository = (*GormSnapshotRepository)(nil)
	_ techpack.SnapshotWriter     = (*GormSnapshotRepository)(nil)
)

// NewGormSnapshotRepository creates a new GormSnapshotRepository
func NewGormSnapshotRepository(db *gorm.DB) *GormSnapshotRepository {
	return &GormSnapshotRepository{db: db}
}

// GetDocumentSnapshot loads the stored snapshot of a document
func (r *GormSnapshotRepository) GetDocumentSnapshot(ctx context.Context, documentID string) (*techpack.Snapshot, error) {
	var model models.TechPackSnapshotModel
	err := r.db.WithContext(ctx).Where("document_id = ?", documentID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot %s: %w", documentID, err)
	}
	return model.ToDomain()
}

// SaveSnapshot inserts or replaces the snapshot of a document
func (r *GormSnapshotRepository) SaveSnapshot(ctx context.Context, snapshot *techpack.Snapshot) error {
	if snapshot == nil || snapshot.DocumentID == "" {
		return shared.NewDomainError("INVALID_INPUT", "snapshot document id is required")
	}
	var model models.TechPackSnapshotModel
	if err := model.FromDomain(snapshot); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"content_version", "lifecycle_stage", "brand", "supplier", "payload", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", snapshot.DocumentID, err)
	}
	return nil
}
