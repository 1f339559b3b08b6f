package worker

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/gallerysync/api/internal/model"
)

// UpdateResult is the outcome of recording an operation status
type UpdateResult string

const (
	ResultUpdated  UpdateResult = "updated"
	ResultNotFound UpdateResult = "not_found"
	ResultError    UpdateResult = "error"
)

// OperationStore is the operations table contract used by the updater.
// Update methods return the number of rows changed.
type OperationStore interface {
	UpdateStatusByKey(ctx context.Context, batchID, operationKey string, u model.StatusUpdate) (int64, error)
	ExistsByKey(ctx context.Context, batchID, operationKey string) (bool, error)
	UpdateStatusByID(ctx context.Context, batchID string, operationID int64, u model.StatusUpdate) (int64, error)
	ExistsByID(ctx context.Context, batchID string, operationID int64) (bool, error)
}

// OperationStatusUpdater records the terminal status of an operation. The
// operation key is preferred over the row id because it survives redelivery.
type OperationStatusUpdater struct {
	store  OperationStore
	logger zerolog.Logger
}

func NewOperationStatusUpdater(store OperationStore, logger zerolog.Logger) *OperationStatusUpdater {
	return &OperationStatusUpdater{
		store:  store,
		logger: logger.With().Str("component", "status_updater").Logger(),
	}
}

// Update never returns an error: storage failures are logged and reported
// as ResultError for the caller to act on.
func (u *OperationStatusUpdater) Update(ctx context.Context, batchID string, operationID int64, operationKey string, upd model.StatusUpdate) UpdateResult {
	var updated int64

	if operationKey != "" {
		n, err := u.store.UpdateStatusByKey(ctx, batchID, operationKey, upd)
		if err != nil {
			return u.fail(err, batchID, operationID, operationKey)
		}
		updated = n
		if updated == 0 {
			exists, err := u.store.ExistsByKey(ctx, batchID, operationKey)
			if err != nil {
				return u.fail(err, batchID, operationID, operationKey)
			}
			if exists {
				// row already holds these values
				return ResultUpdated
			}
		}
	}

	if updated == 0 {
		n, err := u.store.UpdateStatusByID(ctx, batchID, operationID, upd)
		if err != nil {
			return u.fail(err, batchID, operationID, operationKey)
		}
		updated = n
		if updated == 0 {
			exists, err := u.store.ExistsByID(ctx, batchID, operationID)
			if err != nil {
				return u.fail(err, batchID, operationID, operationKey)
			}
			if exists {
				return ResultUpdated
			}
		}
	}

	if updated == 0 {
		u.logger.Warn().
			Str("batch_id", batchID).
			Int64("operation_id", operationID).
			Str("operation_key", operationKey).
			Msg("no operation rows updated")
		return ResultNotFound
	}

	return ResultUpdated
}

func (u *OperationStatusUpdater) fail(err error, batchID string, operationID int64, operationKey string) UpdateResult {
	u.logger.Error().
		Err(err).
		Str("batch_id", batchID).
		Int64("operation_id", operationID).
		Str("operation_key", operationKey).
		Msg("failed to persist operation status")
	return ResultError
}
