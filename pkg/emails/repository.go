package emails

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// EmailJob tracks one notification hand-off. Actual delivery is an external
// collaborator; the worker only records the outcome.
type EmailJob struct {
	ID             int64             `gorm:"primaryKey;column:id" json:"id"`
	RecipientEmail string            `gorm:"column:recipient_email;not null" json:"recipient_email"`
	EmailType      string            `gorm:"column:email_type" json:"email_type"`
	Status         Status            `gorm:"column:status;index;not null" json:"status"`
	Data           datatypes.JSONMap `gorm:"column:data" json:"data,omitempty"`
	SentAt         *time.Time        `gorm:"column:sent_at" json:"sent_at,omitempty"`
	ErrorMessage   string            `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	CreatedAt      time.Time         `gorm:"column:created_at" json:"created_at"`
}

func (EmailJob) TableName() string {
	return "email_jobs"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&EmailJob{})
}

func (r *Repository) ByID(ctx context.Context, id int64) (*EmailJob, error) {
	var job EmailJob
	if err := r.db.WithContext(ctx).First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *Repository) MarkSent(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&EmailJob{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]interface{}{
			"status":  StatusSent,
			"sent_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("email job %d is not PENDING", id)
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, id int64, message string) error {
	return r.db.WithContext(ctx).Model(&EmailJob{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]interface{}{
			"status":        StatusFailed,
			"error_message": message,
		}).Error
}
