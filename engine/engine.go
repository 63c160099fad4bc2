package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/relicore/toil"
	"github.com/relicore/toil/backoff"
	"github.com/relicore/toil/cron"
	"github.com/relicore/toil/id"
	"github.com/relicore/toil/job"
	mw "github.com/relicore/toil/middleware"
	"github.com/relicore/toil/queue"
	"github.com/relicore/toil/worker"
)

// Engine owns the assembled subsystems. Use New to create one.
type Engine struct {
	queue     *queue.Queue
	registry  *job.Registry
	bo        backoff.Strategy
	pool      *worker.Pool
	scheduler *cron.Scheduler
	limits    []queue.Limit
	manager   *queue.Manager
	mws       []mw.Middleware
	cfg       toil.Config
	logger    *slog.Logger

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. slog.Default() is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = logger }
}

// WithConfig sets the worker configuration (concurrency, poll interval,
// type filter, shutdown timeout).
func WithConfig(cfg toil.Config) Option {
	return func(eng *Engine) { eng.cfg = cfg }
}

// WithBackoff sets the retry backoff strategy.
// If not set, backoff.DefaultStrategy() (uncapped exponential) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithMiddleware appends middleware after the default chain
// (recover → tracing → metrics → logging → timeout).
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithTypeLimit registers per-type rate limiting and concurrency caps.
// Types not listed have no limits.
func WithTypeLimit(limits ...queue.Limit) Option {
	return func(eng *Engine) { eng.limits = append(eng.limits, limits...) }
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, the
// metrics middleware uses this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New assembles an Engine on top of a job store.
func New(store job.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, toil.ErrNoStore
	}

	eng := &Engine{
		queue:    queue.New(store),
		registry: job.NewRegistry(),
		cfg:      toil.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/relicore/toil"))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/relicore/toil"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	allMws := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.Timeout(eng.logger),
	}
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(eng.registry, eng.queue, eng.bo, eng.logger, allMws...)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(eng.cfg.Concurrency),
		worker.WithPoolTypes(eng.cfg.Types),
		worker.WithPollInterval(eng.cfg.PollInterval),
	}
	if len(eng.limits) > 0 {
		eng.manager = queue.NewManager(eng.limits...)
		poolOpts = append(poolOpts, worker.WithTypeLimiter(eng.manager))
	}
	eng.pool = worker.NewPool(eng.queue, executor, eng.logger, poolOpts...)

	eng.scheduler = cron.NewScheduler(
		func(ctx context.Context, jobType string, payload []byte, opts ...job.Option) (id.JobID, error) {
			j, err := eng.EnqueueRaw(ctx, jobType, payload, opts...)
			if err != nil {
				return id.Nil, err
			}
			return j.ID, nil
		},
		eng.logger,
	)

	return eng, nil
}

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// Enqueue marshals a typed payload and enqueues a job.
func Enqueue[T any](ctx context.Context, eng *Engine, jobType string, payload T, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", jobType, err)
	}
	return eng.EnqueueRaw(ctx, jobType, data, opts...)
}

// Schedule registers a typed periodic entry with the engine's scheduler.
func Schedule[T any](eng *Engine, def *cron.Definition[T]) (*cron.Entry, error) {
	return cron.Add(eng.scheduler, def)
}

// EnqueueRaw enqueues a job with a pre-serialized payload.
func (eng *Engine) EnqueueRaw(ctx context.Context, jobType string, payload []byte, opts ...job.Option) (*job.Job, error) {
	return eng.queue.Enqueue(ctx, jobType, payload, opts...)
}

// Stats returns the per-state job counts.
func (eng *Engine) Stats(ctx context.Context) (job.Stats, error) {
	return eng.queue.Stats(ctx)
}

// Queue returns the queue façade.
func (eng *Engine) Queue() *queue.Queue { return eng.queue }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Scheduler returns the background scheduler.
func (eng *Engine) Scheduler() *cron.Scheduler { return eng.scheduler }

// Limiter returns the per-type limit manager, or nil if no limits
// were configured.
func (eng *Engine) Limiter() *queue.Manager { return eng.manager }

// WorkerID returns the pool's worker identifier.
func (eng *Engine) WorkerID() id.WorkerID { return eng.pool.WorkerID() }

// Start begins job processing: the worker pool first, then the scheduler,
// so scheduled jobs always find a consumer running.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.pool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	if err := eng.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	return nil
}

// Stop gracefully shuts the engine down: the scheduler stops enqueuing
// first, then the pool drains in-flight jobs. If ctx carries no deadline,
// the configured ShutdownTimeout applies. A stopped engine cannot be
// restarted; build a new one.
func (eng *Engine) Stop(ctx context.Context) error {
	if err := eng.scheduler.Stop(ctx); err != nil {
		eng.logger.Error("scheduler stop error", slog.String("error", err.Error()))
	}

	if _, ok := ctx.Deadline(); !ok && eng.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.cfg.ShutdownTimeout)
		defer cancel()
	}
	return eng.pool.Stop(ctx)
}
