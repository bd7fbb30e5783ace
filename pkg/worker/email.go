package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gimmescrapes/platform/pkg/common/kafka"
	"github.com/gimmescrapes/platform/pkg/common/logger"
	"github.com/gimmescrapes/platform/pkg/common/models"
	"github.com/gimmescrapes/platform/pkg/emails"
	"github.com/gimmescrapes/platform/pkg/observability/metrics"
)

type EmailJobStore interface {
	ByID(ctx context.Context, id int64) (*emails.EmailJob, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, message string) error
}

// EmailHandler consumes the email channel. Delivery itself is handled by an
// external collaborator; this records the hand-off on the job row.
type EmailHandler struct {
	store EmailJobStore
}

func NewEmailHandler(store EmailJobStore) *EmailHandler {
	return &EmailHandler{store: store}
}

func (h *EmailHandler) HandleEmailJob(ctx context.Context, body []byte) error {
	var message models.EmailJobMessage
	if err := json.Unmarshal(body, &message); err != nil {
		return &kafka.PermanentError{Err: fmt.Errorf("undecodable email job message: %w", err)}
	}

	log := logger.Log.WithFields(map[string]interface{}{
		"jobId":     message.JobID,
		"emailType": message.EmailType,
	})
	log.Info("Received email job")

	if _, err := h.store.ByID(ctx, message.JobID); err != nil {
		return fmt.Errorf("email job not found: %d: %w", message.JobID, err)
	}

	if err := h.store.MarkSent(ctx, message.JobID); err != nil {
		if failErr := h.store.MarkFailed(ctx, message.JobID, err.Error()); failErr != nil {
			log.WithError(failErr).Error("Failed to mark email job FAILED")
		}
		return fmt.Errorf("failed to process email job %d: %w", message.JobID, err)
	}

	metrics.ObserveEmailJob()
	log.Info("Email job completed")
	return nil
}
