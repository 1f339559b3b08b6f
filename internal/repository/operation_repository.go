package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gallerysync/api/internal/model"
)

// OperationRepository stores bulks and their queued operations
type OperationRepository struct {
	db *DB
}

func NewOperationRepository(db *DB) *OperationRepository {
	return &OperationRepository{db: db}
}

// CreateBulk inserts the bulk and its operations in one transaction, filling
// in each operation's ID. The rows are visible to workers once it returns.
func (r *OperationRepository) CreateBulk(ctx context.Context, bulk model.Bulk, ops []*model.Operation) error {
	return r.db.withinTx(ctx, func(run *SQLRunner) error {
		if _, err := run.Exec(ctx, "bulk_insert", `
			INSERT INTO bulks (uuid, description, request_id, operation_count) VALUES (?, ?, ?, ?)`,
			bulk.UUID, bulk.Description, nullString(bulk.RequestID), len(ops)); err != nil {
			return fmt.Errorf("insert bulk: %w", err)
		}

		for _, op := range ops {
			if err := run.QueryRow(ctx, "operation_insert", `
				INSERT INTO bulk_operations (bulk_uuid, topic_name, operation_key, sku, serialized_data, status)
				VALUES (?, ?, ?, ?, ?, ?)
				RETURNING id`,
				bulk.UUID, op.TopicName, op.OperationKey, op.SKU, op.SerializedData, int(op.Status)).Scan(&op.ID); err != nil {
				return fmt.Errorf("insert operation %s: %w", op.OperationKey, err)
			}
		}
		return nil
	})
}

// DeleteBulk removes a bulk and its operations
func (r *OperationRepository) DeleteBulk(ctx context.Context, batchID string) error {
	return r.db.withinTx(ctx, func(run *SQLRunner) error {
		if _, err := run.Exec(ctx, "operations_delete", `DELETE FROM bulk_operations WHERE bulk_uuid = ?`, batchID); err != nil {
			return fmt.Errorf("delete operations: %w", err)
		}
		if _, err := run.Exec(ctx, "bulk_delete", `DELETE FROM bulks WHERE uuid = ?`, batchID); err != nil {
			return fmt.Errorf("delete bulk: %w", err)
		}
		return nil
	})
}

// UpdateStatusByKey returns the number of rows changed
func (r *OperationRepository) UpdateStatusByKey(ctx context.Context, batchID, operationKey string, u model.StatusUpdate) (int64, error) {
	return r.updateStatus(ctx, "operation_status_by_key", `
		UPDATE bulk_operations SET status = ?, error_code = ?, result_message = ?
		WHERE bulk_uuid = ? AND operation_key = ?`,
		int(u.Status), nullInt(u.ErrorCode), nullString(u.ResultMessage), batchID, operationKey)
}

// UpdateStatusByID returns the number of rows changed
func (r *OperationRepository) UpdateStatusByID(ctx context.Context, batchID string, operationID int64, u model.StatusUpdate) (int64, error) {
	return r.updateStatus(ctx, "operation_status_by_id", `
		UPDATE bulk_operations SET status = ?, error_code = ?, result_message = ?
		WHERE bulk_uuid = ? AND id = ?`,
		int(u.Status), nullInt(u.ErrorCode), nullString(u.ResultMessage), batchID, operationID)
}

func (r *OperationRepository) updateStatus(ctx context.Context, name, query string, args ...any) (int64, error) {
	res, err := r.db.runner(r.db.DB).Exec(ctx, name, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update operation status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (r *OperationRepository) ExistsByKey(ctx context.Context, batchID, operationKey string) (bool, error) {
	return r.exists(ctx, "operation_exists_by_key",
		`SELECT id FROM bulk_operations WHERE bulk_uuid = ? AND operation_key = ? LIMIT 1`, batchID, operationKey)
}

func (r *OperationRepository) ExistsByID(ctx context.Context, batchID string, operationID int64) (bool, error) {
	return r.exists(ctx, "operation_exists_by_id",
		`SELECT id FROM bulk_operations WHERE bulk_uuid = ? AND id = ? LIMIT 1`, batchID, operationID)
}

func (r *OperationRepository) exists(ctx context.Context, name, query string, args ...any) (bool, error) {
	var id int64
	err := r.db.runner(r.db.DB).QueryRow(ctx, name, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// BulkStatus summarizes the operations of batchID
func (r *OperationRepository) BulkStatus(ctx context.Context, batchID string) (*model.BulkStatus, error) {
	run := r.db.runner(r.db.DB)

	status := &model.BulkStatus{BatchID: batchID, StatusCounts: map[string]int{}}
	var requestID sql.NullString
	err := run.QueryRow(ctx, "bulk_by_uuid", `
		SELECT description, request_id, operation_count FROM bulks WHERE uuid = ?`, batchID).
		Scan(&status.Description, &requestID, &status.OperationCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup bulk: %w", err)
	}
	if requestID.Valid {
		status.RequestID = &requestID.String
	}

	rows, err := run.Query(ctx, "bulk_operations", `
		SELECT operation_key, sku, status, error_code, result_message
		FROM bulk_operations WHERE bulk_uuid = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	status.Operations = []model.BulkOperationStatusView{}
	for rows.Next() {
		var (
			view    model.BulkOperationStatusView
			code    int
			errCode sql.NullInt64
			message sql.NullString
		)
		if err := rows.Scan(&view.OperationKey, &view.SKU, &code, &errCode, &message); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		view.Status = model.OperationStatus(code).String()
		if errCode.Valid {
			c := int(errCode.Int64)
			view.ErrorCode = &c
		}
		if message.Valid {
			view.ResultMessage = &message.String
		}
		status.StatusCounts[view.Status]++
		status.Operations = append(status.Operations, view)
	}
	return status, rows.Err()
}
