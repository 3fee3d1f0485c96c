package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/huangang/tasktimer/internal/config"
	"github.com/huangang/tasktimer/pkg/logger"
)

// Worker consumes audit tasks from Redis when the async queue is enabled.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor AuditProcessor
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
			Concurrency: 4,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error().Err(err).Str("type", task.Type()).Msg("worker: task failed")
			}),
		},
	)

	return &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
	}
}

func (w *Worker) SetProcessor(processor AuditProcessor) {
	w.processor = processor
}

func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeAudit, w.handleAuditTask)

	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		logger.Info().Msg("worker: starting")
		if err := w.server.Run(w.mux); err != nil {
			logger.Error().Err(err).Msg("worker: server error")
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

	logger.Info().Msg("worker: shutting down")
	w.server.Shutdown()
	w.running = false
	w.wg.Wait()
}

func (w *Worker) handleAuditTask(ctx context.Context, t *asynq.Task) error {
	task, err := decodeAuditTask(t.Payload())
	if err != nil {
		logger.Error().Err(err).Msg("worker: malformed audit payload")
		return err
	}

	if w.processor == nil {
		logger.Warn().Msg("worker: no processor set")
		return nil
	}
	return w.processor(ctx, task)
}

func decodeAuditTask(payload []byte) (*AuditTask, error) {
	var task AuditTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, err
	}
	return &task, nil
}
