package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/labelpizza/backend/internal/config"
	"github.com/labelpizza/backend/pkg/logger"
)

const (
	TaskTypeImportAnnotations = "import:annotations"
	TaskTypeImportReviews     = "import:reviews"
)

// ImportTask is a bulk import job. Exactly one of Annotations and Reviews is
// set, matching Type.
type ImportTask struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	RequestedBy uint            `json:"requested_by"`
	Annotations []AnnotationRow `json:"annotations,omitempty"`
	Reviews     []ReviewRow     `json:"reviews,omitempty"`
}

// NewImportTask builds a task with a fresh id.
func NewImportTask(taskType string, requestedBy uint) (*ImportTask, error) {
	if taskType != TaskTypeImportAnnotations && taskType != TaskTypeImportReviews {
		return nil, fmt.Errorf("unknown task type %q", taskType)
	}
	return &ImportTask{ID: uuid.NewString(), Type: taskType, RequestedBy: requestedBy}, nil
}

// TaskProcessor runs an import task.
type TaskProcessor func(context.Context, *ImportTask) (*ImportResult, error)

// NewImportProcessor dispatches tasks to the import service.
func NewImportProcessor(svc *ImportService) TaskProcessor {
	return func(ctx context.Context, task *ImportTask) (*ImportResult, error) {
		switch task.Type {
		case TaskTypeImportAnnotations:
			return svc.ImportAnnotations(ctx, task.Annotations)
		case TaskTypeImportReviews:
			return svc.ImportReviews(ctx, task.Reviews)
		default:
			return nil, fmt.Errorf("unknown task type %q", task.Type)
		}
	}
}

// TaskQueue accepts import tasks. A synchronous queue returns the import
// result; an asynchronous one returns nil and processes the task later.
type TaskQueue interface {
	Enqueue(ctx context.Context, task *ImportTask) (*ImportResult, error)
	IsAsync() bool
	Close() error
}

var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue picks the Redis backed queue when configured and reachable,
// and the inline queue otherwise.
func InitTaskQueue(cfg *config.Config, processor TaskProcessor) TaskQueue {
	taskQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncQueue(&cfg.Redis)
			if err != nil {
				logger.Warnf("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
				globalTaskQueue = NewSyncQueue(processor)
			} else {
				logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalTaskQueue = queue
			}
		} else {
			logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
			globalTaskQueue = NewSyncQueue(processor)
		}
	})
	return globalTaskQueue
}

func GetTaskQueue() TaskQueue {
	return globalTaskQueue
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	opt := redisOpt(cfg)
	client := asynq.NewClient(opt)

	inspector := asynq.NewInspector(opt)
	defer inspector.Close()
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func (q *AsyncQueue) Enqueue(ctx context.Context, task *ImportTask) (*ImportResult, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}

	// Imports are all-or-nothing, so a retry replays cleanly.
	t := asynq.NewTask(task.Type, payload)
	info, err := q.client.EnqueueContext(ctx, t,
		asynq.TaskID(task.ID),
		asynq.Queue("default"),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return nil, err
	}

	logger.Infof("[AsyncQueue] Task enqueued: id=%s, type=%s, queue=%s", info.ID, task.Type, info.Queue)
	publishImport(task, ImportQueued, nil, nil)
	return nil, nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue runs each task inline on the caller's goroutine.
type SyncQueue struct {
	processor TaskProcessor
}

func NewSyncQueue(processor TaskProcessor) *SyncQueue {
	return &SyncQueue{processor: processor}
}

func (q *SyncQueue) Enqueue(ctx context.Context, task *ImportTask) (*ImportResult, error) {
	if q.processor == nil {
		return nil, fmt.Errorf("no processor for task %s", task.Type)
	}
	publishImport(task, ImportRunning, nil, nil)
	result, err := q.processor(ctx, task)
	if err != nil {
		logger.Warnf("[SyncQueue] Task %s (%s) failed: %v", task.ID, task.Type, err)
		publishImport(task, ImportFailed, nil, err)
		return nil, err
	}
	publishImport(task, ImportCompleted, result, nil)
	return result, nil
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

func (q *SyncQueue) Close() error {
	return nil
}
