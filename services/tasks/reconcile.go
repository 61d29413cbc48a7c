package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"staybook/models"
	"staybook/services/booking"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypeReconcile     = "reservation:reconcile"
	TypeSweepClaims   = "reservation:sweep-claims"
	TypeCompleteStays = "reservation:complete-stays"

	// QueueCritical carries money-moving follow-ups ahead of housekeeping.
	QueueCritical = "critical"
	QueueDefault  = "default"

	reconcileMaxRetry = 25
)

func NewReconcileTask(p models.ReconcilePayload, delay time.Duration) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeReconcile, b)
	opts := []asynq.Option{
		asynq.Queue(QueueCritical),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(reconcileMaxRetry),
		asynq.TaskID(reconcileTaskID(p)),
	}
	return task, opts, nil
}

func NewSweepClaimsTask() *asynq.Task {
	return asynq.NewTask(TypeSweepClaims, nil, asynq.MaxRetry(0), asynq.Timeout(time.Minute))
}

func NewCompleteStaysTask() *asynq.Task {
	return asynq.NewTask(TypeCompleteStays, nil, asynq.MaxRetry(0), asynq.Timeout(5*time.Minute))
}

// reconcileTaskID dedupes repeated schedules of the same follow-up.
func reconcileTaskID(p models.ReconcilePayload) string {
	return fmt.Sprintf("reconcile:%s:%s:%s", p.ReservationID, p.Op, p.PaymentIntentRef)
}

// enqueuer is the part of *asynq.Client the scheduler uses.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler queues reconciliation tasks on asynq.
type Scheduler struct {
	Client enqueuer
	Delay  time.Duration
	Logger *zap.Logger
}

var _ booking.Reconciler = (*Scheduler)(nil)

func NewScheduler(client *asynq.Client, delay time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{Client: client, Delay: delay, Logger: logger}
}

func (s *Scheduler) ScheduleReconcile(ctx context.Context, p models.ReconcilePayload) error {
	task, opts, err := NewReconcileTask(p, s.Delay)
	if err != nil {
		return fmt.Errorf("failed to build reconcile task: %w", err)
	}
	info, err := s.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		s.Logger.Debug("reconcile task already queued", zap.String("reservationId", p.ReservationID), zap.String("op", p.Op))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue reconcile task: %w", err)
	}
	s.Logger.Info("reconcile task scheduled",
		zap.String("taskId", info.ID),
		zap.String("reservationId", p.ReservationID),
		zap.String("op", p.Op),
		zap.Time("processAt", info.NextProcessAt))
	return nil
}
