package usecase

import (
	"context"
	"errors"
	"fmt"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/services/alerts"
	"EstateDesk/internal/services/notify"
	"EstateDesk/pkg/queue"
)

var _ queue.Job = (*NotificationJob)(nil)

// NotificationJob delivers queued price alert notifications. Any failed
// channel fails the job; with a delivery ledger the retry only reaches the
// channels that have not accepted it yet.
type NotificationJob struct {
	svc *notify.Service
}

func NewNotificationJob(svc *notify.Service) *NotificationJob {
	return &NotificationJob{svc: svc}
}

func (j *NotificationJob) Name() string { return "price alert notification" }

func (j *NotificationJob) Type() string { return alerts.NotificationType }

func (j *NotificationJob) Handle(ctx context.Context, payload interface{}) error {
	n, err := queue.ParsePayload[models.Notification](payload)
	if err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}
	if _, err := j.svc.Deliver(ctx, *n); err != nil {
		return errors.Join(fmt.Errorf("notification %s undelivered", n.ID), err)
	}
	return nil
}
