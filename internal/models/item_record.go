package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ItemRecord is the persisted outcome of a processed queue item
type ItemRecord struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	BatchID     string    `gorm:"index;not null;column:batch_id" json:"batch_id"`
	ItemID      string    `gorm:"uniqueIndex;not null;column:item_id" json:"item_id"`
	Service     string    `gorm:"index;not null" json:"service"`
	SourceKind  string    `gorm:"not null;column:source_kind" json:"source_kind"`
	SourceLabel string    `gorm:"not null;column:source_label" json:"source_label"`
	Status      string    `gorm:"not null;default:pending" json:"status"` // completed, error
	Progress    int       `gorm:"not null;default:0" json:"progress"`     // 0-100
	JobID       string    `gorm:"column:job_id" json:"job_id,omitempty"`
	ErrorDetail string    `gorm:"type:text;column:error_detail" json:"error_detail,omitempty"`
	Summary     string    `gorm:"type:text" json:"summary,omitempty"`
	Results     string    `gorm:"type:text" json:"results,omitempty"` // JSON blob
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (r *ItemRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (ItemRecord) TableName() string {
	return "item_records"
}

// NewItemRecord snapshots a queue item for storage
func NewItemRecord(batchID string, item QueueItem) (*ItemRecord, error) {
	rec := &ItemRecord{
		BatchID:     batchID,
		ItemID:      item.ID,
		Service:     item.Service,
		SourceKind:  string(item.SourceKind),
		SourceLabel: item.Label,
		Status:      string(item.Status),
		Progress:    item.ProgressPercent,
		JobID:       item.JobID,
		ErrorDetail: item.ErrorDetail,
	}
	if item.Result != nil {
		data, err := json.Marshal(item.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode result for item %s: %w", item.ID, err)
		}
		rec.Results = string(data)
		rec.Summary = item.Result.Summary()
	}
	return rec, nil
}

// DecodeResult returns the stored result, if any
func (r *ItemRecord) DecodeResult() (*Result, error) {
	if r.Results == "" {
		return nil, nil
	}
	var res Result
	if err := json.Unmarshal([]byte(r.Results), &res); err != nil {
		return nil, fmt.Errorf("failed to decode result for item %s: %w", r.ItemID, err)
	}
	return &res, nil
}
