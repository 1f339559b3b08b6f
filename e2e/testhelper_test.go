package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gallerysync/api/internal/client"
	"github.com/gallerysync/api/internal/config"
	"github.com/gallerysync/api/internal/gallery"
	"github.com/gallerysync/api/internal/handler"
	"github.com/gallerysync/api/internal/metrics"
	"github.com/gallerysync/api/internal/queue"
	"github.com/gallerysync/api/internal/repository"
	"github.com/gallerysync/api/internal/service"
	"github.com/gallerysync/api/internal/worker"
)

// capturingQueue records enqueued tasks instead of sending them to redis
type capturingQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	fail  error
}

func (q *capturingQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail != nil {
		return nil, q.fail
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func (q *capturingQueue) RunTask(qname, id string) error {
	return nil
}

func (q *capturingQueue) DeleteTask(qname, id string) error {
	return nil
}

func (q *capturingQueue) drain() []*asynq.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	tasks := q.tasks
	q.tasks = nil
	return tasks
}

// testApp holds all components needed for testing
type testApp struct {
	app       *fiber.App
	queue     *capturingQueue
	worker    *worker.GalleryWorker
	db        *repository.DB
	galleries *repository.GalleryRepository
	mediaRoot string
}

// setupApp wires the API and the worker the way the server command does,
// with sqlite, local media and a capturing queue.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "gallery.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.Migrate(ctx, db))

	m := metrics.MustNew(prometheus.NewRegistry())
	q := &capturingQueue{}
	galleries := repository.NewGalleryRepository(db)
	operations := repository.NewOperationRepository(db)
	mediaRoot := t.TempDir()

	scheduler := queue.NewAsynqScheduler(operations, q, q, config.QueueConfig{Name: "gallery", MaxRetry: 5, RetentionHours: 1}, logger)
	bulkService := service.NewBulkService(scheduler, operations, service.NewImageNormalizer(logger), m, "Gallery bulk update", logger)

	processor := gallery.NewProcessor(
		galleries,
		client.NewLocalMediaStorage(mediaRoot, logger),
		gallery.DefaultRoleMapper(),
		gallery.DefaultManagedRoles(),
		logger,
	)
	galleryWorker := worker.NewGalleryWorker(
		processor,
		service.NewImageNormalizer(logger),
		worker.NewFailureClassifier(),
		worker.NewOperationStatusUpdater(operations, logger),
		m,
		logger,
	)

	app := handler.NewApp(1, false)
	handler.Routes{
		Bulk:    handler.NewBulkHandler(bulkService, validator.New(), 100),
		Gallery: handler.NewGalleryHandler(galleries),
		Health:  handler.NewHealthHandler(map[string]handler.HealthCheck{"database": db.PingContext}),
	}.Register(app)

	return &testApp{app: app, queue: q, worker: galleryWorker, db: db, galleries: galleries, mediaRoot: mediaRoot}
}

// addProduct registers sku the way the catalog would
func (ta *testApp) addProduct(t *testing.T, sku string) {
	t.Helper()
	_, err := ta.db.ExecContext(context.Background(), `INSERT INTO products (sku) VALUES (?)`, sku)
	require.NoError(t, err)
}

// addMedia creates an empty media file for a gallery path
func (ta *testApp) addMedia(t *testing.T, path string) {
	t.Helper()
	full := filepath.Join(ta.mediaRoot, "catalog", "product", filepath.FromSlash(strings.TrimPrefix(path, "/")))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("img"), 0o644))
}

// runWorker feeds every captured task to the worker and returns their errors
func (ta *testApp) runWorker(t *testing.T) []error {
	t.Helper()
	var errs []error
	for _, task := range ta.queue.drain() {
		errs = append(errs, ta.worker.ProcessTask(context.Background(), task))
	}
	return errs
}

func doRequest(app *fiber.App, method, path, body string) (*http.Response, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return app.Test(req, -1)
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", expected, resp.StatusCode, string(body))
	}
}

func parseJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
