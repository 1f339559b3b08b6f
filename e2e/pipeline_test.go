package e2e

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallerysync/api/internal/model"
)

const submitBody = `{
	"request_id": "req-42",
	"items": [
		{"sku": "SKU-1", "images": [{"file_path": "/a/b/old.jpg", "roles": ["base"]}]},
		{"sku": "SKU-1", "images": [
			{"file_path": "/a/b/front.jpg", "label": "Front", "position": 1, "roles": ["base", "small", "thumbnail"]},
			{"file_path": "a/b/back.jpg", "label": "Back", "position": "2", "disabled": "yes"},
			{"file_path": "/a/b/missing.jpg", "position": 3, "roles": ["swatch"]}
		]},
		{"sku": "   ", "images": [{"file_path": "/x.jpg"}]},
		{"sku": "UNKNOWN", "images": [{"file_path": "/a/b/front.jpg"}]}
	]
}`

func submit(t *testing.T, ta *testApp, body string) map[string]any {
	t.Helper()
	resp, err := doRequest(ta.app, http.MethodPost, "/api/bulk/gallery", body)
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusAccepted)
	return parseJSON(t, resp)
}

func TestGalleryPipeline(t *testing.T) {
	ta := setupApp(t)
	ta.addProduct(t, "SKU-1")
	ta.addMedia(t, "/a/b/front.jpg")
	ta.addMedia(t, "/a/b/back.jpg")

	body := submit(t, ta, submitBody)
	batchID := body["batch_id"].(string)
	assert.Equal(t, true, body["has_errors"])

	statuses := body["item_statuses"].([]any)
	require.Len(t, statuses, 4)
	wantStatus := []string{"accepted", "accepted", "rejected", "accepted"}
	for i, raw := range statuses {
		st := raw.(map[string]any)
		assert.Equal(t, float64(i+1), st["sequence_id"])
		assert.Equal(t, wantStatus[i], st["status"], "item %d", i+1)
	}
	assert.Equal(t, "Missing SKU", statuses[2].(map[string]any)["error_message"])

	// two unique SKUs were scheduled; both settle without asking for a retry
	for _, err := range ta.runWorker(t) {
		assert.NoError(t, err)
	}

	resp, err := doRequest(ta.app, http.MethodGet, "/api/bulk/"+batchID+"/status", "")
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusOK)
	status := parseJSON(t, resp)
	assert.Equal(t, float64(2), status["operation_count"])
	assert.Equal(t, map[string]any{"complete": float64(1), "not_retriably_failed": float64(1)}, status["status_counts"])

	for _, raw := range status["operations"].([]any) {
		op := raw.(map[string]any)
		if op["sku"] == "UNKNOWN" {
			assert.Equal(t, float64(model.ErrorCodePermanentProcessing), op["error_code"])
			assert.Contains(t, op["result_message"], "Failed to sync gallery for SKU UNKNOWN")
		}
	}

	resp, err = doRequest(ta.app, http.MethodGet, "/api/gallery/SKU-1", "")
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusOK)
	view := parseJSON(t, resp)

	images := view["images"].([]any)
	require.Len(t, images, 2)
	front := images[0].(map[string]any)
	back := images[1].(map[string]any)
	assert.Equal(t, "/a/b/front.jpg", front["file_path"])
	assert.Equal(t, "Front", front["label"])
	assert.Equal(t, "/a/b/back.jpg", back["file_path"])
	assert.Equal(t, true, back["disabled"])

	assert.Equal(t, map[string]any{
		"image":        "/a/b/front.jpg",
		"small_image":  "/a/b/front.jpg",
		"thumbnail":    "/a/b/front.jpg",
		"swatch_image": "no_selection",
	}, view["roles"])
}

func TestGalleryPipeline_ResubmitIsIdempotent(t *testing.T) {
	ta := setupApp(t)
	ta.addProduct(t, "SKU-1")
	ta.addMedia(t, "/a.jpg")

	body := `{"items": [{"sku": "SKU-1", "images": [{"file_path": "/a.jpg", "label": "A", "roles": ["image"]}]}]}`

	submit(t, ta, body)
	require.Len(t, ta.runWorker(t), 1)
	first, err := ta.galleries.ProductGallery(context.Background(), "SKU-1")
	require.NoError(t, err)

	submit(t, ta, body)
	for _, err := range ta.runWorker(t) {
		assert.NoError(t, err)
	}
	second, err := ta.galleries.ProductGallery(context.Background(), "SKU-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGalleryPipeline_RedeliveryKeepsSingleStatus(t *testing.T) {
	ta := setupApp(t)
	ta.addProduct(t, "SKU-1")
	ta.addMedia(t, "/a.jpg")

	body := submit(t, ta, `{"items": [{"sku": "SKU-1", "images": [{"file_path": "/a.jpg"}]}]}`)
	tasks := ta.queue.drain()
	require.Len(t, tasks, 1)

	for i := 0; i < 2; i++ {
		require.NoError(t, ta.worker.ProcessTask(context.Background(), tasks[0]))
	}

	resp, err := doRequest(ta.app, http.MethodGet, "/api/bulk/"+body["batch_id"].(string)+"/status", "")
	require.NoError(t, err)
	status := parseJSON(t, resp)
	assert.Equal(t, map[string]any{"complete": float64(1)}, status["status_counts"])
}

func TestGalleryPipeline_SchedulingFailure(t *testing.T) {
	ta := setupApp(t)
	ta.queue.fail = assert.AnError

	body := submit(t, ta, `{"items": [{"sku": "SKU-1", "images": [{"file_path": "/a.jpg"}]}]}`)

	assert.Equal(t, true, body["has_errors"])
	st := body["item_statuses"].([]any)[0].(map[string]any)
	assert.Equal(t, "rejected", st["status"])
	assert.Equal(t, "Failed to schedule bulk operations", st["error_message"])

	resp, err := doRequest(ta.app, http.MethodGet, "/api/bulk/"+body["batch_id"].(string)+"/status", "")
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusNotFound)
}

func TestHealth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/health", "")
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusOK)
	assert.Equal(t, "ok", parseJSON(t, resp)["status"])
}
