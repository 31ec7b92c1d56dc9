package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/techpack/backend/internal/domain/techpack"
)

// TechPackSnapshotModel is the GORM model for the techpack_snapshots table
type TechPackSnapshotModel struct {
	DocumentID     string    `gorm:"column:document_id;type:varchar(128);primaryKey"`
	ContentVersion string    `gorm:"column:content_version;type:varchar(128);not null"`
	LifecycleStage string    `gorm:"column:lifecycle_stage;type:varchar(32);not null"`
	Brand          string    `gorm:"type:varchar(200);not null;default:''"`
	Supplier       string    `gorm:"type:varchar(200);not null;default:''"`
	Payload        string    `gorm:"type:jsonb;not null"`
	UpdatedAt      time.Time `gorm:"not null;autoUpdateTime:false"`
}

// TableName returns the table name for TechPackSnapshotModel
func (TechPackSnapshotModel) TableName() string {
	return "techpack_snapshots"
}

// snapshotPayload is the part of a snapshot stored in the payload column
type snapshotPayload struct {
	Article      techpack.Article             `json:"article"`
	BOM          []techpack.BOMItem           `json:"bom"`
	Measurements []techpack.MeasurementPoint  `json:"measurements"`
	Construction []techpack.ConstructionEntry `json:"construction"`
	Colorways    []techpack.Colorway          `json:"colorways"`
	Notes        []techpack.RichTextBlock     `json:"notes"`
}

// ToDomain converts the row to a domain snapshot
func (m *TechPackSnapshotModel) ToDomain() (*techpack.Snapshot, error) {
	var p snapshotPayload
	if err := json.Unmarshal([]byte(m.Payload), &p); err != nil {
		return nil, fmt.Errorf("failed to decode payload of %s: %w", m.DocumentID, err)
	}
	return &techpack.Snapshot{
		DocumentID:     m.DocumentID,
		ContentVersion: m.ContentVersion,
		Article:        p.Article,
		BOM:            p.BOM,
		Measurements:   p.Measurements,
		Construction:   p.Construction,
		Colorways:      p.Colorways,
		Notes:          p.Notes,
		LifecycleStage: techpack.LifecycleStage(m.LifecycleStage),
		Brand:          m.Brand,
		Supplier:       m.Supplier,
		UpdatedAt:      m.UpdatedAt,
	}, nil
}

// FromDomain populates the row from a domain snapshot
func (m *TechPackSnapshotModel) FromDomain(s *techpack.Snapshot) error {
	raw, err := json.Marshal(snapshotPayload{
		Article:      s.Article,
		BOM:          s.BOM,
		Measurements: s.Measurements,
		Construction: s.Construction,
		Colorways:    s.Colorways,
		Notes:        s.Notes,
	})
	if err != nil {
		return fmt.Errorf("failed to encode payload of %s: %w", s.DocumentID, err)
	}
	m.DocumentID = s.DocumentID
	m.ContentVersion = s.ContentVersion
	m.LifecycleStage = string(s.LifecycleStage)
	m.Brand = s.Brand
	m.Supplier = s.Supplier
	m.Payload = string(raw)
	m.UpdatedAt = s.UpdatedAt
	return nil
}
