package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// LedgerHandlers returns the task handlers for the ledger jobs.
func LedgerHandlers(integrity *LedgerIntegrityJob, reconcile *InventoryReconcileJob) []TaskHandler {
	var handlers []TaskHandler
	if integrity != nil {
		handlers = append(handlers, TaskHandler{Type: TaskLedgerIntegrity, Handler: integrity.Handle})
	}
	if reconcile != nil {
		handlers = append(handlers, TaskHandler{Type: TaskInventoryReconcile, Handler: reconcile.Handle})
	}
	return handlers
}

// LedgerCron schedules both ledger jobs for ledgerID. Empty specs are skipped.
func LedgerCron(ledgerID, integritySpec, reconcileSpec string) ([]CronRegistration, error) {
	var out []CronRegistration
	if integritySpec != "" {
		task, err := NewLedgerIntegrityTask(ledgerID)
		if err != nil {
			return nil, err
		}
		out = append(out, CronRegistration{Spec: integritySpec, Task: task})
	}
	if reconcileSpec != "" {
		task, err := NewInventoryReconcileTask(ledgerID)
		if err != nil {
			return nil, err
		}
		out = append(out, CronRegistration{Spec: reconcileSpec, Task: task})
	}
	return out, nil
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueLedgerIntegrity enqueues a ledger:integrity task.
func (c *Client) EnqueueLedgerIntegrity(ctx context.Context, ledgerID string) (*asynq.TaskInfo, error) {
	task, err := NewLedgerIntegrityTask(ledgerID)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// EnqueueInventoryReconcile enqueues an inventory:reconcile task.
func (c *Client) EnqueueInventoryReconcile(ctx context.Context, ledgerID string) (*asynq.TaskInfo, error) {
	task, err := NewInventoryReconcileTask(ledgerID)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Enqueuer submits the ledger jobs. *Client satisfies it.
type Enqueuer interface {
	EnqueueLedgerIntegrity(ctx context.Context, ledgerID string) (*asynq.TaskInfo, error)
	EnqueueInventoryReconcile(ctx context.Context, ledgerID string) (*asynq.TaskInfo, error)
}

// QueueInspector reports queue depth. *asynq.Inspector satisfies it.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes HTTP endpoints for job observability and manual triggers.
type Handler struct {
	inspector QueueInspector
	enqueuer  Enqueuer
	ledgerID  string
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints. A nil enqueuer
// disables the trigger routes.
func NewHandler(inspector QueueInspector, enqueuer Enqueuer, ledgerID string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, enqueuer: enqueuer, ledgerID: ledgerID, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	if h.enqueuer != nil {
		r.Post("/ledger-integrity", h.trigger(TaskLedgerIntegrity, h.enqueuer.EnqueueLedgerIntegrity))
		r.Post("/inventory-reconcile", h.trigger(TaskInventoryReconcile, h.enqueuer.EnqueueInventoryReconcile))
	}
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Active  int    `json:"active"`
	Failed  int    `json:"failed"`
}

type enqueued struct {
	TaskID string `json:"task_id"`
	Type   string `json:"type"`
	Queue  string `json:"queue"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	out := queueHealth{Queue: QueueDefault}
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, out)
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	if info != nil {
		out = queueHealth{Queue: info.Queue, Pending: info.Pending, Active: info.Active, Failed: info.Failed}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) trigger(typ string, enqueue func(context.Context, string) (*asynq.TaskInfo, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := enqueue(r.Context(), h.ledgerID)
		if err != nil {
			h.logger.Error("enqueue job", slog.String("task", typ), slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
			return
		}
		out := enqueued{Type: typ, Queue: QueueDefault}
		if info != nil {
			out.TaskID = info.ID
			out.Queue = info.Queue
		}
		httpx.JSON(w, http.StatusAccepted, out)
	}
}
