package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallerysync/api/internal/gallery"
	"github.com/gallerysync/api/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "gallery.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(ctx, db))
	return db
}

func strPtr(s string) *string { return &s }

// createProduct stands in for the catalog, which owns the products table
func createProduct(t *testing.T, db *DB, sku string) int64 {
	t.Helper()
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `INSERT INTO products (sku) VALUES (?) ON CONFLICT (sku) DO NOTHING`, sku)
	require.NoError(t, err)
	var id int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT entity_id FROM products WHERE sku = ?`, sku).Scan(&id))
	return id
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Migrate(context.Background(), db))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM eav_attributes WHERE attribute_code = 'media_gallery'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestStatements_Dialects(t *testing.T) {
	pg := Statements(DialectPostgres)
	lite := Statements(DialectSQLite)

	require.Equal(t, len(pg), len(lite))
	assert.Contains(t, pg[0], "BIGSERIAL PRIMARY KEY")
	assert.Contains(t, lite[0], "INTEGER PRIMARY KEY AUTOINCREMENT")
}

func TestSQLRunner_Rebind(t *testing.T) {
	pg := NewSQLRunner(nil, DialectPostgres, zerolog.Nop())
	lite := NewSQLRunner(nil, DialectSQLite, zerolog.Nop())
	q := "SELECT a FROM t WHERE b = ? AND c IN (" + placeholders(2) + ")"

	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c IN ($2, $3)", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
	assert.Equal(t, "", placeholders(0))
}

func TestGalleryRepository_StoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewGalleryRepository(db)
	entityID := createProduct(t, db, "SKU-1")

	err := repo.WithinTx(ctx, func(s gallery.Store) error {
		id, err := s.ProductIDBySKU(ctx, "SKU-1")
		require.NoError(t, err)
		assert.Equal(t, entityID, id)

		attr, err := s.AttributeID(ctx, model.AttributeMediaGallery)
		require.NoError(t, err)

		valueID, err := s.InsertOrGetValueID(ctx, attr, "/a.jpg")
		require.NoError(t, err)
		same, err := s.InsertOrGetValueID(ctx, attr, "/a.jpg")
		require.NoError(t, err)
		assert.Equal(t, valueID, same)

		require.NoError(t, s.CreateLink(ctx, valueID, entityID))
		require.NoError(t, s.CreateLink(ctx, valueID, entityID))
		require.NoError(t, s.InsertValueRecord(ctx, model.GalleryValue{ValueID: valueID, EntityID: entityID, Label: "A", Position: 2, Disabled: true}))

		recordID, err := s.ValueRecordID(ctx, valueID, entityID, 0)
		require.NoError(t, err)
		require.NotZero(t, recordID)
		require.NoError(t, s.SaveEtag(ctx, recordID, strPtr("etag-1")))
		require.NoError(t, s.SaveEtag(ctx, recordID, strPtr("etag-2")))

		ids, err := s.ValueIDsByPaths(ctx, attr, []string{"/a.jpg", "a.jpg", "/b.jpg"})
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"/a.jpg": valueID}, ids)

		existing, err := s.ExistingImages(ctx, entityID, attr, []string{"/a.jpg", "a.jpg"})
		require.NoError(t, err)
		require.Contains(t, existing, "/a.jpg")
		row := existing["/a.jpg"]
		assert.Equal(t, recordID, row.RecordID)
		assert.Equal(t, "A", row.Label)
		assert.Equal(t, 2, row.Position)
		assert.True(t, row.Disabled)
		require.NotNil(t, row.S3Etag)
		assert.Equal(t, "etag-2", *row.S3Etag)

		require.NoError(t, s.UpdateValueRecord(ctx, recordID, model.GalleryValue{Label: "B", Position: 5}))
		return s.SetRoles(ctx, entityID, 0, map[string]string{model.RoleImage: "/a.jpg", model.RoleThumbnail: model.RoleNoSelection})
	})
	require.NoError(t, err)

	rows, err := repo.ProductGallery(ctx, "SKU-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "B", rows[0].Label)
	assert.Equal(t, 5, rows[0].Position)
	assert.False(t, rows[0].Disabled)

	roles, err := repo.ProductRoles(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{model.RoleImage: "/a.jpg", model.RoleThumbnail: model.RoleNoSelection}, roles)
}

func TestGalleryRepository_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewGalleryRepository(db)
	entityID := createProduct(t, db, "SKU-1")

	boom := errors.New("boom")
	err := repo.WithinTx(ctx, func(s gallery.Store) error {
		attr, err := s.AttributeID(ctx, model.AttributeMediaGallery)
		require.NoError(t, err)
		valueID, err := s.InsertOrGetValueID(ctx, attr, "/a.jpg")
		require.NoError(t, err)
		require.NoError(t, s.InsertValueRecord(ctx, model.GalleryValue{ValueID: valueID, EntityID: entityID}))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	rows, err := repo.ProductGallery(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGalleryStore_UnknownLookups(t *testing.T) {
	ctx := context.Background()
	repo := NewGalleryRepository(openTestDB(t))

	err := repo.WithinTx(ctx, func(s gallery.Store) error {
		_, err := s.ProductIDBySKU(ctx, "missing")
		assert.ErrorIs(t, err, model.ErrProductNotFound)

		_, err = s.AttributeID(ctx, "nope")
		assert.ErrorIs(t, err, model.ErrAttributeNotFound)

		id, err := s.ValueRecordID(ctx, 1, 1, 0)
		assert.NoError(t, err)
		assert.Zero(t, id)

		existing, err := s.ExistingImages(ctx, 1, 1, nil)
		assert.NoError(t, err)
		assert.Empty(t, existing)
		return nil
	})
	require.NoError(t, err)
}

func newOps(batchID string, keys ...string) []*model.Operation {
	ops := make([]*model.Operation, 0, len(keys))
	for _, k := range keys {
		ops = append(ops, &model.Operation{
			BatchID:        batchID,
			OperationKey:   k,
			SKU:            "SKU-" + k,
			TopicName:      model.TopicGalleryProcess,
			SerializedData: `{"sku":"SKU-` + k + `","images":[]}`,
			Status:         model.OperationStatusOpen,
		})
	}
	return ops
}

func TestOperationRepository_CreateBulkAndStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewOperationRepository(openTestDB(t))
	ops := newOps("batch-1", "k1", "k2")

	err := repo.CreateBulk(ctx, model.Bulk{UUID: "batch-1", Description: "test", RequestID: strPtr("req-1")}, ops)
	require.NoError(t, err)
	assert.NotZero(t, ops[0].ID)
	assert.NotEqual(t, ops[0].ID, ops[1].ID)

	msg := "File does not exist"
	code := model.ErrorCodePermanentProcessing
	n, err := repo.UpdateStatusByKey(ctx, "batch-1", "k1", model.StatusUpdate{Status: model.OperationStatusNotRetriablyFailed, ErrorCode: &code, ResultMessage: &msg})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.UpdateStatusByID(ctx, "batch-1", ops[1].ID, model.StatusUpdate{Status: model.OperationStatusComplete})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.UpdateStatusByKey(ctx, "other-batch", "k1", model.StatusUpdate{Status: model.OperationStatusComplete})
	require.NoError(t, err)
	assert.Zero(t, n)

	exists, err := repo.ExistsByKey(ctx, "batch-1", "k2")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.ExistsByID(ctx, "batch-1", 9999)
	require.NoError(t, err)
	assert.False(t, exists)

	status, err := repo.BulkStatus(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 2, status.OperationCount)
	require.NotNil(t, status.RequestID)
	assert.Equal(t, "req-1", *status.RequestID)
	assert.Equal(t, map[string]int{"not_retriably_failed": 1, "complete": 1}, status.StatusCounts)
	require.Len(t, status.Operations, 2)
	assert.Equal(t, "k1", status.Operations[0].OperationKey)
	require.NotNil(t, status.Operations[0].ErrorCode)
	assert.Equal(t, code, *status.Operations[0].ErrorCode)
	assert.Equal(t, msg, *status.Operations[0].ResultMessage)
	assert.Nil(t, status.Operations[1].ErrorCode)
}

func TestOperationRepository_CommittedRowsVisibleToOtherConnections(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gallery.db")
	db, err := OpenSQLite(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(ctx, db))

	other, err := OpenSQLite(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { other.Close() })

	require.NoError(t, NewOperationRepository(db).CreateBulk(ctx, model.Bulk{UUID: "batch-1"}, newOps("batch-1", "k1")))

	exists, err := NewOperationRepository(other).ExistsByKey(ctx, "batch-1", "k1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestOperationRepository_DeleteBulk(t *testing.T) {
	ctx := context.Background()
	repo := NewOperationRepository(openTestDB(t))
	require.NoError(t, repo.CreateBulk(ctx, model.Bulk{UUID: "batch-1"}, newOps("batch-1", "k1", "k2")))
	require.NoError(t, repo.CreateBulk(ctx, model.Bulk{UUID: "batch-2"}, newOps("batch-2", "k1")))

	require.NoError(t, repo.DeleteBulk(ctx, "batch-1"))

	_, err := repo.BulkStatus(ctx, "batch-1")
	assert.ErrorIs(t, err, model.ErrNotFound)
	exists, err := repo.ExistsByKey(ctx, "batch-1", "k1")
	require.NoError(t, err)
	assert.False(t, exists)

	status, err := repo.BulkStatus(ctx, "batch-2")
	require.NoError(t, err)
	assert.Len(t, status.Operations, 1)
	require.NoError(t, repo.DeleteBulk(ctx, "unknown"))
}

func TestOperationRepository_DuplicateKeyRejected(t *testing.T) {
	ctx := context.Background()
	repo := NewOperationRepository(openTestDB(t))

	err := repo.CreateBulk(ctx, model.Bulk{UUID: "batch-1"}, newOps("batch-1", "k1", "k1"))

	assert.Error(t, err)
	_, err = repo.BulkStatus(ctx, "batch-1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
