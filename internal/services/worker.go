package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/labelpizza/backend/internal/config"
	"github.com/labelpizza/backend/pkg/logger"
)

// Worker processes import tasks from the Redis queue.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor TaskProcessor
	wg        sync.WaitGroup
	running   bool
	mu        sync.Mutex
}

// NewWorker returns nil when Redis is disabled.
func NewWorker(cfg *config.RedisConfig) *Worker {
	if !cfg.Enabled {
		return nil
	}

	server := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			// Imports write one large transaction; keep them serial.
			Concurrency: 1,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Errorf("[Worker] Error processing task %s: %v", task.Type(), err)
			}),
		},
	)

	return &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
	}
}

func (w *Worker) SetProcessor(processor TaskProcessor) {
	w.processor = processor
}

func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeImportAnnotations, w.handleImportTask)
	w.mux.HandleFunc(TaskTypeImportReviews, w.handleImportTask)

	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		logger.Infof("[Worker] Starting async worker...")
		if err := w.server.Run(w.mux); err != nil {
			logger.Errorf("[Worker] Server error: %v", err)
		}
	}()

	return nil
}

func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	logger.Infof("[Worker] Shutting down...")
	w.server.Shutdown()
	w.running = false
	w.wg.Wait()
	logger.Infof("[Worker] Shutdown complete")
}

func (w *Worker) handleImportTask(ctx context.Context, t *asynq.Task) error {
	var task ImportTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return errors.Join(err, asynq.SkipRetry)
	}

	logger.Infof("[Worker] Processing import task: id=%s, type=%s, requested_by=%d", task.ID, task.Type, task.RequestedBy)

	if w.processor == nil {
		logger.Warnf("[Worker] Warning: no processor set")
		return nil
	}

	publishImport(&task, ImportRunning, nil, nil)
	result, err := w.processor(ctx, &task)
	if err != nil {
		publishImport(&task, ImportFailed, nil, err)
		// Validation failures will not pass on retry.
		var importErr *ImportError
		if errors.As(err, &importErr) {
			LogWarning("import", task.Type, err.Error(), &task.RequestedBy, "", "", importErr.Rows)
			return errors.Join(err, asynq.SkipRetry)
		}
		return err
	}
	publishImport(&task, ImportCompleted, result, nil)
	LogInfo("import", task.Type, "import completed", &task.RequestedBy, "", "", result)
	return nil
}

var (
	globalWorker *Worker
	workerOnce   sync.Once
)

func InitWorker(cfg *config.RedisConfig) *Worker {
	workerOnce.Do(func() {
		globalWorker = NewWorker(cfg)
	})
	return globalWorker
}

func GetWorker() *Worker {
	return globalWorker
}
