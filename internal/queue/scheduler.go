package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/gallerysync/api/internal/config"
	"github.com/gallerysync/api/internal/model"
)

// Enqueuer is the part of *asynq.Client used for scheduling
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskController is the part of *asynq.Inspector used to release or undo
// an enqueue
type TaskController interface {
	RunTask(queue, id string) error
	DeleteTask(queue, id string) error
}

// BulkStore persists a bulk and its operations
type BulkStore interface {
	CreateBulk(ctx context.Context, bulk model.Bulk, ops []*model.Operation) error
	DeleteBulk(ctx context.Context, batchID string) error
}

// activationHold delays held tasks that could not be released explicitly
const activationHold = 5 * time.Minute

// AsynqScheduler records bulks in the database and publishes one asynq task
// per operation. Rows are committed before any task is published, and tasks
// are held as scheduled until every one of them is enqueued. Either every
// operation is stored and enqueued or none is.
type AsynqScheduler struct {
	store     BulkStore
	client    Enqueuer
	inspector TaskController
	queue     string
	maxRetry  int
	retention time.Duration
	hold      time.Duration
	logger    zerolog.Logger
}

func NewAsynqScheduler(store BulkStore, client Enqueuer, inspector TaskController, cfg config.QueueConfig, logger zerolog.Logger) *AsynqScheduler {
	return &AsynqScheduler{
		store:     store,
		client:    client,
		inspector: inspector,
		queue:     cfg.Name,
		maxRetry:  cfg.MaxRetry,
		retention: time.Duration(cfg.RetentionHours) * time.Hour,
		hold:      activationHold,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
}

// TaskID is the broker task id of an operation. Enqueueing the same
// operation twice is rejected with asynq.ErrTaskIDConflict.
func TaskID(batchID, operationKey string) string {
	return batchID + ":" + operationKey
}

// NewGalleryTask wraps op into a task envelope
func NewGalleryTask(op *model.Operation) (*asynq.Task, error) {
	data, err := json.Marshal(model.TaskEnvelope{
		BatchID:        op.BatchID,
		OperationID:    op.ID,
		OperationKey:   op.OperationKey,
		SerializedData: op.SerializedData,
	})
	if err != nil {
		return nil, err
	}
	topic := op.TopicName
	if topic == "" {
		topic = model.TopicGalleryProcess
	}
	return asynq.NewTask(topic, data), nil
}

// ScheduleBulk commits bulk with ops, enqueues their tasks on hold and then
// releases them
func (s *AsynqScheduler) ScheduleBulk(ctx context.Context, bulk model.Bulk, ops []*model.Operation) error {
	if err := s.store.CreateBulk(ctx, bulk, ops); err != nil {
		return err
	}

	enqueued, err := s.enqueue(ctx, bulk.UUID, ops)
	if err != nil {
		s.rollback(ctx, bulk.UUID, enqueued)
		return err
	}
	s.release(bulk.UUID, enqueued)

	s.logger.Info().
		Str("batch_id", bulk.UUID).
		Int("operations", len(ops)).
		Msg("bulk scheduled")
	return nil
}

// enqueue publishes one held task per operation, returning the ids published
// so far
func (s *AsynqScheduler) enqueue(ctx context.Context, batchID string, ops []*model.Operation) ([]string, error) {
	enqueued := make([]string, 0, len(ops))
	for _, op := range ops {
		task, err := NewGalleryTask(op)
		if err != nil {
			return enqueued, fmt.Errorf("failed to create task: %w", err)
		}

		id := TaskID(batchID, op.OperationKey)
		if _, err := s.client.EnqueueContext(ctx, task,
			asynq.Queue(s.queue),
			asynq.MaxRetry(s.maxRetry),
			asynq.Retention(s.retention),
			asynq.ProcessIn(s.hold),
			asynq.TaskID(id),
		); err != nil {
			return enqueued, fmt.Errorf("failed to enqueue task %s: %w", id, err)
		}
		enqueued = append(enqueued, id)
	}
	return enqueued, nil
}

// release makes held tasks pending. A task that cannot be released still runs
// once its hold expires.
func (s *AsynqScheduler) release(batchID string, ids []string) {
	if s.inspector == nil {
		return
	}
	for _, id := range ids {
		if err := s.inspector.RunTask(s.queue, id); err != nil {
			s.logger.Warn().Err(err).
				Str("batch_id", batchID).
				Str("task_id", id).
				Dur("hold", s.hold).
				Msg("failed to release held task")
		}
	}
}

// rollback removes the held tasks and the rows of a bulk that could not be
// fully published
func (s *AsynqScheduler) rollback(ctx context.Context, batchID string, ids []string) {
	if s.inspector != nil {
		for _, id := range ids {
			err := s.inspector.DeleteTask(s.queue, id)
			if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
				s.logger.Error().Err(err).Str("batch_id", batchID).Str("task_id", id).Msg("failed to delete orphaned task")
			}
		}
	}
	if err := s.store.DeleteBulk(context.WithoutCancel(ctx), batchID); err != nil {
		s.logger.Error().Err(err).Str("batch_id", batchID).Msg("failed to delete unpublished bulk")
	}
	s.logger.Warn().Str("batch_id", batchID).Int("tasks", len(ids)).Msg("bulk scheduling rolled back")
}
