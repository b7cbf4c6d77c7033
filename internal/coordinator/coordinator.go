package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dirsync/internal/api"
	"dirsync/internal/reconcile"
	"dirsync/internal/settings"
	"dirsync/pkg/logging"

	"github.com/google/uuid"
)

// ErrTooManyOperations is returned when a submission conflicts with a
// job already running for the same tenant.
var ErrTooManyOperations = errors.New("another operation is already running for this tenant")

// Config configures a Coordinator.
type Config struct {
	Store   api.LocalStore
	Persist *settings.Store

	// Messages is the catalog handed to every job. Defaults to the
	// English catalog.
	Messages reconcile.Messages

	// Workers is the worker pool size. Defaults to 2.
	Workers int

	// Connect overrides the production LDAP connector, used by tests.
	Connect reconcile.ConnectFunc
}

// SubmitRequest describes one job submission.
type SubmitRequest struct {
	Tenant api.Tenant
	Kind   api.OperationKind

	// Settings carries fresh settings for save kinds. nil loads the
	// persisted settings of the tenant.
	Settings *settings.Settings

	// ActorID is the local user id of the submitting user.
	ActorID string

	// ConfirmedCert echoes a previously issued certificate token.
	ConfirmedCert string
}

type jobRecord struct {
	job     *reconcile.Job
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// Coordinator runs reconciliation jobs on a worker pool, one job per
// tenant at a time.
type Coordinator struct {
	cfg Config

	mu      sync.Mutex
	jobs    map[string]*jobRecord
	running bool

	queue  *workQueue
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stopped coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	if cfg.Messages.Errors == nil {
		cfg.Messages = reconcile.DefaultMessages()
	}
	return &Coordinator{
		cfg:   cfg,
		jobs:  make(map[string]*jobRecord),
		queue: newWorkQueue(),
	}
}

// Start launches the worker pool. Starting twice is a no-op.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true

	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	logging.Info("Coordinator", "Started with %d workers", c.cfg.Workers)
}

// Stop cancels running jobs, drains the workers and waits for them.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	c.cancel()
	c.queue.Shutdown()
	c.wg.Wait()

	// release waiters on jobs that never got a worker
	c.mu.Lock()
	for _, rec := range c.jobs {
		if !rec.started {
			rec.started = true
			close(rec.done)
		}
	}
	c.mu.Unlock()
	logging.Info("Coordinator", "Stopped")
}

// Submit schedules a job for the tenant and returns its initial status.
//
// Submitting the kind that is already running joins the existing job
// instead of starting a second one. Submitting a different kind while a
// job runs fails with ErrTooManyOperations. A finished job is evicted
// and replaced.
func (c *Coordinator) Submit(req SubmitRequest) (api.JobStatus, error) {
	if !req.Kind.Valid() {
		return api.JobStatus{}, fmt.Errorf("unknown operation kind %q", req.Kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return api.JobStatus{}, errors.New("coordinator is not running")
	}

	if rec, ok := c.jobs[req.Tenant.ID]; ok {
		snap := rec.job.Snapshot()
		if !snap.Finished {
			if rec.job.Kind() == req.Kind {
				logging.Debug("Coordinator", "Tenant %s joined running job %s", req.Tenant.ID, snap.ID)
				return snap, nil
			}
			return api.JobStatus{}, ErrTooManyOperations
		}
		delete(c.jobs, req.Tenant.ID)
	}

	cfg := req.Settings
	if cfg == nil {
		loaded, ok, err := c.cfg.Persist.LoadSettings(req.Tenant.ID)
		if err != nil {
			return api.JobStatus{}, fmt.Errorf("loading settings for tenant %s: %w", req.Tenant.ID, err)
		}
		if ok {
			cfg = &loaded
		}
	}

	job := reconcile.NewJob(reconcile.Params{
		ID:            uuid.NewString(),
		Tenant:        req.Tenant,
		Kind:          req.Kind,
		Settings:      cfg,
		ActorID:       req.ActorID,
		ConfirmedCert: req.ConfirmedCert,
		Messages:      c.cfg.Messages,
		Store:         c.cfg.Store,
		Persist:       c.cfg.Persist,
		Connect:       c.cfg.Connect,
	})
	c.jobs[req.Tenant.ID] = &jobRecord{job: job, done: make(chan struct{})}
	c.queue.Add(req.Tenant.ID)

	logging.Info("Coordinator", "Submitted job %s (%s) for tenant %s", job.ID(), req.Kind, req.Tenant.ID)
	return job.Snapshot(), nil
}

// Status returns the current status of the tenant's job, or nil when
// none was submitted. Warnings are delivered exactly once across calls.
// A job whose worker is gone (coordinator stopped before it ran) is
// reported finished.
func (c *Coordinator) Status(tenantID string) *api.JobStatus {
	c.mu.Lock()
	rec, ok := c.jobs[tenantID]
	running := c.running
	c.mu.Unlock()
	if !ok {
		return nil
	}

	snap := rec.job.Snapshot()
	snap.Warning = rec.job.ConsumeWarning()
	if !snap.Finished && !running {
		snap.Finished = true
		snap.Percentage = 100
	}
	return &snap
}

// Cancel requests cancellation of the tenant's running job. Cancelling
// a finished or unknown job is a no-op.
func (c *Coordinator) Cancel(tenantID string) {
	c.mu.Lock()
	rec, ok := c.jobs[tenantID]
	c.mu.Unlock()
	if ok && rec.cancel != nil {
		rec.cancel()
	}
}

// Wait blocks until the tenant's current job finishes. Returns
// immediately when none is known.
func (c *Coordinator) Wait(tenantID string) {
	c.mu.Lock()
	rec, ok := c.jobs[tenantID]
	c.mu.Unlock()
	if ok {
		<-rec.done
	}
}

func (c *Coordinator) worker(id int) {
	defer c.wg.Done()
	logging.Debug("Coordinator", "Worker %d started", id)

	for {
		tenantID, ok := c.queue.Get(c.ctx)
		if !ok {
			logging.Debug("Coordinator", "Worker %d shutting down", id)
			return
		}
		c.runJob(tenantID)
		c.queue.Done(tenantID)
	}
}

func (c *Coordinator) runJob(tenantID string) {
	c.mu.Lock()
	rec, ok := c.jobs[tenantID]
	if !ok || rec.started {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	rec.cancel = cancel
	rec.started = true
	c.mu.Unlock()

	defer cancel()
	rec.job.Run(ctx)
	close(rec.done)
}
