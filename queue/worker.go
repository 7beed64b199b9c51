package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/logger"
	"github.com/luantaraschi/petichat-definitive/metrics"
	"github.com/luantaraschi/petichat-definitive/models"
)

// Handler processes jobs of one kind. Run returns the result payload stored
// on completion; an error triggers a retry until attempts run out, except
// validation and not-found errors which fail the job at once.
type Handler interface {
	Kind() Kind
	Run(jc *Context) (any, error)
}

// Registry maps kinds to handlers
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Kind]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	k := h.Kind()
	if !k.Valid() {
		return fmt.Errorf("handler kind %q is not a known job kind", k)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[k]; exists {
		return fmt.Errorf("handler already registered for kind=%s", k)
	}
	r.handlers[k] = h
	return nil
}

func (r *Registry) Get(kind Kind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds lists registered kinds in a stable order
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Context is what a handler sees while running one job
type Context struct {
	ctx      context.Context
	Job      *Job
	Log      *logger.Logger
	report   func(int)
	mu       sync.Mutex
	progress int
}

// NewContext builds a job context; report receives every accepted progress value
func NewContext(ctx context.Context, job *Job, log *logger.Logger, report func(int)) *Context {
	if log == nil {
		log = logger.Nop()
	}
	if report == nil {
		report = func(int) {}
	}
	return &Context{ctx: ctx, Job: job, Log: log, report: report, progress: job.Progress}
}

func (c *Context) Context() context.Context { return c.ctx }

// Decode unmarshals the job payload
func (c *Context) Decode(v any) error { return c.Job.Decode(v) }

// Progress records p (clamped to 0..100). Values lower than the last
// reported one are ignored so progress never moves backwards, retries included.
func (c *Context) Progress(p int) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	c.mu.Lock()
	if p <= c.progress {
		c.mu.Unlock()
		return
	}
	c.progress = p
	c.mu.Unlock()
	c.report(p)
}

// CurrentProgress returns the last accepted progress value
func (c *Context) CurrentProgress() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Hook observes jobs reaching a terminal state
type Hook func(ctx context.Context, job *Job)

// Worker pulls jobs from a RedisQueue with bounded concurrency per kind
type Worker struct {
	queue       *RedisQueue
	registry    *Registry
	log         *logger.Logger
	poll        time.Duration
	heartbeat   time.Duration
	concurrency map[Kind]int
	onCompleted []Hook
	onFailed    []Hook

	wg sync.WaitGroup
}

type WorkerOption func(*Worker)

// WorkerWithLogger sets the logger
func WorkerWithLogger(l *logger.Logger) WorkerOption {
	return func(w *Worker) { w.log = l }
}

// WorkerWithPollInterval sets how often idle slots look for work
func WorkerWithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.poll = d }
}

// WorkerWithHeartbeat sets how often a running job renews its lease
func WorkerWithHeartbeat(d time.Duration) WorkerOption {
	return func(w *Worker) { w.heartbeat = d }
}

// WorkerWithConcurrency overrides the number of parallel jobs for kind
func WorkerWithConcurrency(kind Kind, n int) WorkerOption {
	return func(w *Worker) { w.concurrency[kind] = n }
}

// WorkerOnCompleted registers a completion hook
func WorkerOnCompleted(h Hook) WorkerOption {
	return func(w *Worker) { w.onCompleted = append(w.onCompleted, h) }
}

// WorkerOnFailed registers a hook for jobs that exhausted their attempts
func WorkerOnFailed(h Hook) WorkerOption {
	return func(w *Worker) { w.onFailed = append(w.onFailed, h) }
}

func NewWorker(q *RedisQueue, registry *Registry, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:       q,
		registry:    registry,
		log:         logger.Nop(),
		poll:        time.Second,
		heartbeat:   30 * time.Second,
		concurrency: make(map[Kind]int),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With("component", "JobWorker")
	return w
}

func (w *Worker) slots(kind Kind) int {
	if n, ok := w.concurrency[kind]; ok && n > 0 {
		return n
	}
	if n := w.queue.Options(kind).Concurrency; n > 0 {
		return n
	}
	return 1
}

// Start launches the slots of every registered kind. Cancelling ctx stops
// claiming new jobs; jobs already running finish. Use Wait to drain.
func (w *Worker) Start(ctx context.Context) {
	for _, kind := range w.registry.Kinds() {
		n := w.slots(kind)
		w.log.Info("Starting job slots", "kind", kind, "concurrency", n)
		for i := 0; i < n; i++ {
			w.wg.Add(1)
			go w.loop(ctx, kind)
		}
	}
}

// Wait blocks until every slot has stopped or timeout elapses
func (w *Worker) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("job workers did not drain within %s", timeout)
	}
}

func (w *Worker) loop(ctx context.Context, kind Kind) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for ctx.Err() == nil {
				job, err := w.queue.claim(ctx, kind)
				if err != nil {
					if ctx.Err() == nil {
						w.log.Warn("Claim failed", "kind", kind, "error", err)
					}
					break
				}
				if job == nil {
					break
				}
				// running jobs outlive the shutdown signal
				w.process(context.WithoutCancel(ctx), job)
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "kind", job.Kind, "attempt", job.Attempts)
	done := metrics.JobStarted(string(job.Kind))

	jc := NewContext(ctx, job, log, func(p int) {
		job.Progress = p
		if err := w.queue.setProgress(ctx, job.ID, p); err != nil {
			log.Warn("Progress update failed", "progress", p, "error", err)
		}
	})

	stopBeat := w.keepAlive(ctx, job, log)
	result, err := w.run(jc)
	stopBeat()
	if err == nil {
		cerr := w.queue.complete(ctx, job, result)
		if cerr == nil {
			log.Info("Job completed")
			done("completed")
			for _, h := range w.onCompleted {
				h(ctx, job)
			}
			return
		}
		if !errors.Is(cerr, errEncodeResult) {
			log.Error("Failed to mark job completed", "error", cerr)
			done("error")
			return
		}
		err = cerr
	}

	jobErr := apperr.Job(string(job.Kind), err)
	record := w.queue.fail
	if permanent(err) {
		record = w.queue.park
	}
	if ferr := record(ctx, job, jobErr); ferr != nil {
		log.Error("Failed to record job failure", "error", ferr, "cause", err)
		done("error")
		return
	}
	if job.Status == models.JobStatusDelayed {
		log.Warn("Job failed, retry scheduled", "error", err, "backoff", w.queue.Options(job.Kind).BackoffFor(job.Attempts))
		done("retry")
		return
	}
	log.Error("Job failed permanently", "error", err, "attempts", job.Attempts)
	done("failed")
	for _, h := range w.onFailed {
		h(ctx, job)
	}
}

// permanent reports errors a retry cannot fix
func permanent(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNotFound:
		return true
	}
	return false
}

// keepAlive renews the job lease until the returned stop function is called
func (w *Worker) keepAlive(ctx context.Context, job *Job, log *logger.Logger) func() {
	if w.heartbeat <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(w.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := w.queue.heartbeat(ctx, job.ID); err != nil {
					log.Warn("Lease renewal failed", "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

func (w *Worker) run(jc *Context) (result any, err error) {
	h, ok := w.registry.Get(jc.Job.Kind)
	if !ok {
		return nil, fmt.Errorf("no handler registered for kind=%s", jc.Job.Kind)
	}
	defer func() {
		if r := recover(); r != nil {
			jc.Log.Error("Job handler panic", "panic", r)
			result, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Run(jc)
}

// RunOnce claims and processes at most one job of kind synchronously. It
// reports whether a job was processed.
func (w *Worker) RunOnce(ctx context.Context, kind Kind) (bool, error) {
	job, err := w.queue.claim(ctx, kind)
	if err != nil || job == nil {
		return false, err
	}
	w.process(ctx, job)
	return true, nil
}
