package task

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"kbengine.dev/catalog"
	"kbengine.dev/common"
	"kbengine.dev/pipeline"
)

// PoolConfig sizes the two named pools spec section 5 fixes: cpu_pool
// (render/OCR/chunk stages, sized to core count) and model_pool
// (embed/VLM stages, sized 2-4 to cap outbound concurrency to model
// endpoints).
type PoolConfig struct {
	CPUWorkers        int
	ModelWorkers      int
	Kinds             []catalog.TaskKind
	LeaseTTL          time.Duration
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	MaxAttempts       int
}

// DefaultPoolConfig mirrors worker/pool.go's DefaultConfig shape (named
// concurrency classes mapped to worker counts) with spec section 5's
// stated sizes substituted in.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		CPUWorkers:        runtime.NumCPU(),
		ModelWorkers:      3,
		Kinds:             []catalog.TaskKind{catalog.TaskKindIngest, catalog.TaskKindReembed, catalog.TaskKindCleanup},
		LeaseTTL:          2 * time.Minute,
		HeartbeatInterval: 10 * time.Second,
		PollInterval:      1 * time.Second,
		MaxAttempts:       5,
	}
}

// Pool drives catalog.Task rows through a pipeline.Pipeline with a fixed
// set of long-lived workers, grounded on worker/pool.go's Pool/Worker
// pair. That example dequeues from one named queue per worker; here
// every worker shares the same claim source (catalog.Store.
// ClaimNextTask already picks the oldest queued task across kinds) and
// instead gates concurrency per call via two semaphores sized by
// PoolConfig, since which "pool" a task belongs to is a property of its
// current stage, not a fixed property of the task itself (spec section
// 5: "Workers are long-lived; each pulls one task, runs it to the next
// checkpoint, persists cursor, releases").
type Pool struct {
	store    catalog.Store
	pipeline *pipeline.Pipeline
	cfg      PoolConfig
	log      *logrus.Entry

	cpuSem   chan struct{}
	modelSem chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewPool(store catalog.Store, p *pipeline.Pipeline, cfg PoolConfig, log *logrus.Entry) *Pool {
	return &Pool{
		store:    store,
		pipeline: p,
		cfg:      cfg,
		log:      log,
		cpuSem:   make(chan struct{}, cfg.CPUWorkers),
		modelSem: make(chan struct{}, cfg.ModelWorkers),
		stopChan: make(chan struct{}),
	}
}

// Start launches CPUWorkers+ModelWorkers long-lived worker goroutines.
func (pl *Pool) Start(ctx context.Context) {
	total := pl.cfg.CPUWorkers + pl.cfg.ModelWorkers
	pl.log.WithField("workers", total).Info("starting task pool")
	for i := 0; i < total; i++ {
		pl.wg.Add(1)
		go pl.loop(ctx, i)
	}
}

// Stop signals every worker to exit after its current task and waits
// for them to drain.
func (pl *Pool) Stop() {
	close(pl.stopChan)
	pl.wg.Wait()
}

func (pl *Pool) loop(ctx context.Context, id int) {
	defer pl.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pl.stopChan:
			return
		default:
		}

		t, err := pl.store.ClaimNextTask(ctx, pl.cfg.Kinds, pl.cfg.LeaseTTL)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				time.Sleep(pl.cfg.PollInterval)
				continue
			}
			pl.log.WithError(err).WithField("worker", id).Warn("claim failed")
			time.Sleep(pl.cfg.PollInterval)
			continue
		}

		pl.processOne(ctx, t)
	}
}

// processOne runs exactly one pipeline.Pipeline.Step for t, under the
// semaphore matching its current stage, then persists the outcome.
// Cancellation is checked both before the step (in case it was
// cancelled between claim and start) and after (the checkpoint spec
// section 4.8 promises cancel(id) is observed at).
func (pl *Pool) processOne(ctx context.Context, t *catalog.Task) {
	hbCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()
	go pl.heartbeat(hbCtx, t.ID)

	if pl.isCancelled(ctx, t.ID) {
		_ = pl.store.UpdateTaskState(ctx, t.ID, catalog.TaskCancelled, t.StageCursor)
		return
	}

	stage := pipeline.DecodeStage(t.StageCursor)
	sem := pl.semFor(stage)
	sem <- struct{}{}
	cursor, done, err := pl.pipeline.Step(ctx, t)
	<-sem

	if err != nil {
		pl.handleFailure(ctx, t, err)
		return
	}

	if done {
		_ = pl.store.UpdateTaskState(ctx, t.ID, catalog.TaskCompleted, cursor)
		return
	}

	if pl.isCancelled(ctx, t.ID) {
		_ = pl.store.UpdateTaskState(ctx, t.ID, catalog.TaskCancelled, cursor)
		return
	}
	if err := pl.store.UpdateTaskState(ctx, t.ID, catalog.TaskRunning, cursor); err != nil {
		pl.log.WithError(err).WithField("task_id", t.ID).Warn("failed to persist stage cursor")
	}
}

func (pl *Pool) handleFailure(ctx context.Context, t *catalog.Task, err error) {
	attempt := t.AttemptCount + 1
	terminal := !common.IsRetryable(err) || attempt >= pl.cfg.MaxAttempts
	if ferr := pl.store.FailTask(ctx, t.ID, attempt, err.Error(), terminal); ferr != nil {
		pl.log.WithError(ferr).WithField("task_id", t.ID).Error("failed to record task failure")
	}
	pl.log.WithError(err).WithFields(logrus.Fields{
		"task_id":  t.ID,
		"attempt":  attempt,
		"terminal": terminal,
	}).Warn("task step failed")
}

func (pl *Pool) isCancelled(ctx context.Context, taskID string) bool {
	latest, err := pl.store.GetTask(ctx, taskID)
	if err != nil {
		return false
	}
	return latest.State == catalog.TaskCancelled
}

// semFor routes a stage to its pool. StageOCR is classified as
// model_pool work despite running the OCR recognition call itself,
// since that stage also drives a VLM correction call per page (spec
// section 4.7 step 3) and pipeline.Pipeline.Step does not split that
// single checkpoint into a separate cpu-bound and model-bound call;
// this is a coarser granularity than the spec's per-call pool
// assignment and is recorded as a documented simplification.
func (pl *Pool) semFor(stage pipeline.Stage) chan struct{} {
	switch stage {
	case pipeline.StageEmbed, pipeline.StageOCR:
		return pl.modelSem
	default:
		return pl.cpuSem
	}
}

// heartbeat extends t's lease on HeartbeatInterval until ctx is
// cancelled (spec section 5: "Heartbeats extend the task lease").
func (pl *Pool) heartbeat(ctx context.Context, taskID string) {
	ticker := time.NewTicker(pl.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pl.store.ExtendLease(ctx, taskID, pl.cfg.LeaseTTL); err != nil {
				pl.log.WithError(err).WithField("task_id", taskID).Debug("lease extension failed")
			}
		}
	}
}
