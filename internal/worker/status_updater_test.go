package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/gallerysync/api/internal/model"
)

type opRow struct {
	batchID string
	id      int64
	key     string
	status  model.StatusUpdate
}

// fakeOperationStore mimics MySQL-style affected rows: an update that
// changes nothing reports zero.
type fakeOperationStore struct {
	rows     []*opRow
	err      error
	keyCalls int
	idCalls  int
}

func (f *fakeOperationStore) update(match func(*opRow) bool, u model.StatusUpdate) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for _, r := range f.rows {
		if match(r) && !sameUpdate(r.status, u) {
			r.status = u
			n++
		}
	}
	return n, nil
}

func sameUpdate(a, b model.StatusUpdate) bool {
	eqInt := (a.ErrorCode == nil && b.ErrorCode == nil) || (a.ErrorCode != nil && b.ErrorCode != nil && *a.ErrorCode == *b.ErrorCode)
	eqStr := (a.ResultMessage == nil && b.ResultMessage == nil) || (a.ResultMessage != nil && b.ResultMessage != nil && *a.ResultMessage == *b.ResultMessage)
	return a.Status == b.Status && eqInt && eqStr
}

func (f *fakeOperationStore) UpdateStatusByKey(ctx context.Context, batchID, key string, u model.StatusUpdate) (int64, error) {
	f.keyCalls++
	return f.update(func(r *opRow) bool { return r.batchID == batchID && r.key == key }, u)
}

func (f *fakeOperationStore) ExistsByKey(ctx context.Context, batchID, key string) (bool, error) {
	for _, r := range f.rows {
		if r.batchID == batchID && r.key == key {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeOperationStore) UpdateStatusByID(ctx context.Context, batchID string, id int64, u model.StatusUpdate) (int64, error) {
	f.idCalls++
	return f.update(func(r *opRow) bool { return r.batchID == batchID && r.id == id }, u)
}

func (f *fakeOperationStore) ExistsByID(ctx context.Context, batchID string, id int64) (bool, error) {
	for _, r := range f.rows {
		if r.batchID == batchID && r.id == id {
			return true, nil
		}
	}
	return false, nil
}

func complete() model.StatusUpdate {
	return model.StatusUpdate{Status: model.OperationStatusComplete}
}

func TestStatusUpdater_UpdatesByKey(t *testing.T) {
	store := &fakeOperationStore{rows: []*opRow{{batchID: "b", id: 1, key: "k", status: model.StatusUpdate{Status: model.OperationStatusOpen}}}}
	u := NewOperationStatusUpdater(store, zerolog.Nop())

	res := u.Update(context.Background(), "b", 1, "k", complete())

	assert.Equal(t, ResultUpdated, res)
	assert.Equal(t, model.OperationStatusComplete, store.rows[0].status.Status)
	assert.Zero(t, store.idCalls)
}

func TestStatusUpdater_RepeatedUpdateIsStillUpdated(t *testing.T) {
	store := &fakeOperationStore{rows: []*opRow{{batchID: "b", id: 1, key: "k", status: model.StatusUpdate{Status: model.OperationStatusOpen}}}}
	u := NewOperationStatusUpdater(store, zerolog.Nop())

	first := u.Update(context.Background(), "b", 1, "k", complete())
	second := u.Update(context.Background(), "b", 1, "k", complete())

	assert.Equal(t, ResultUpdated, first)
	assert.Equal(t, ResultUpdated, second)
	assert.Zero(t, store.idCalls)
}

func TestStatusUpdater_FallsBackToID(t *testing.T) {
	store := &fakeOperationStore{rows: []*opRow{{batchID: "b", id: 7, key: "other", status: model.StatusUpdate{Status: model.OperationStatusOpen}}}}
	u := NewOperationStatusUpdater(store, zerolog.Nop())

	res := u.Update(context.Background(), "b", 7, "missing-key", complete())

	assert.Equal(t, ResultUpdated, res)
	assert.Equal(t, 1, store.idCalls)
	assert.Equal(t, model.OperationStatusComplete, store.rows[0].status.Status)
}

func TestStatusUpdater_EmptyKeyUsesID(t *testing.T) {
	store := &fakeOperationStore{rows: []*opRow{{batchID: "b", id: 7, status: model.StatusUpdate{Status: model.OperationStatusComplete}}}}
	u := NewOperationStatusUpdater(store, zerolog.Nop())

	res := u.Update(context.Background(), "b", 7, "", complete())

	assert.Equal(t, ResultUpdated, res)
	assert.Zero(t, store.keyCalls)
	assert.Equal(t, 1, store.idCalls)
}

func TestStatusUpdater_NotFound(t *testing.T) {
	store := &fakeOperationStore{rows: []*opRow{{batchID: "other", id: 1, key: "k"}}}
	u := NewOperationStatusUpdater(store, zerolog.Nop())

	res := u.Update(context.Background(), "b", 1, "k", complete())

	assert.Equal(t, ResultNotFound, res)
}

func TestStatusUpdater_StorageErrorIsReported(t *testing.T) {
	store := &fakeOperationStore{err: errors.New("connection refused")}
	u := NewOperationStatusUpdater(store, zerolog.Nop())

	res := u.Update(context.Background(), "b", 1, "k", complete())

	assert.Equal(t, ResultError, res)
}
