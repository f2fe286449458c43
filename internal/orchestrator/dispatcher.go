package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// RunExecutor runs one pipeline to completion.
type RunExecutor interface {
	Execute(ctx context.Context, projectID, runID string) error
}

// AutofixTrigger starts one fix attempt for a finding.
type AutofixTrigger interface {
	Trigger(ctx context.Context, projectID, findingID string) error
}

type job struct {
	projectID string
	runID     string
	findingID string
}

type DispatcherConfig struct {
	Workers   int
	QueueSize int
}

// Dispatcher executes runs and autofix attempts in the background.
// Enqueue calls return immediately; callers observe progress only
// through the ledger.
type Dispatcher struct {
	executor RunExecutor
	autofix  AutofixTrigger
	jobs     chan job
	workers  int
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]int
	wg     sync.WaitGroup
	once   sync.Once
	done   chan struct{}
}

func NewDispatcher(executor RunExecutor, autofix AutofixTrigger, cfg DispatcherConfig, logger *slog.Logger) (*Dispatcher, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		executor: executor,
		autofix:  autofix,
		jobs:     make(chan job, queueSize),
		workers:  workers,
		logger:   logger,
		active:   make(map[string]int),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the worker pool. Workers drain the queue until ctx is
// cancelled or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case j, ok := <-d.jobs:
			if !ok {
				return
			}
			d.handle(ctx, j)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, j job) {
	if j.runID != "" {
		d.incActive(j.projectID)
		defer d.decActive(j.projectID)
		if err := d.executor.Execute(ctx, j.projectID, j.runID); err != nil {
			d.logger.Error("run execution failed",
				"project_id", j.projectID, "run_id", j.runID, "error", err)
		}
		return
	}
	if d.autofix == nil {
		d.logger.Error("autofix job with no trigger configured", "finding_id", j.findingID)
		return
	}
	if err := d.autofix.Trigger(ctx, j.projectID, j.findingID); err != nil {
		d.logger.Error("autofix trigger failed",
			"project_id", j.projectID, "finding_id", j.findingID, "error", err)
	}
}

// EnqueueRun submits a run for background execution. A full queue is an
// error for the caller to surface; nothing is silently dropped.
func (d *Dispatcher) EnqueueRun(projectID, runID string) error {
	projectID = strings.TrimSpace(projectID)
	runID = strings.TrimSpace(runID)
	if projectID == "" || runID == "" {
		return fmt.Errorf("project id and run id are required")
	}
	select {
	case d.jobs <- job{projectID: projectID, runID: runID}:
		return nil
	default:
		return fmt.Errorf("work queue is full")
	}
}

// EnqueueAutofix submits a fix attempt for background execution.
func (d *Dispatcher) EnqueueAutofix(projectID, findingID string) error {
	projectID = strings.TrimSpace(projectID)
	findingID = strings.TrimSpace(findingID)
	if projectID == "" || findingID == "" {
		return fmt.Errorf("project id and finding id are required")
	}
	select {
	case d.jobs <- job{projectID: projectID, findingID: findingID}:
		return nil
	default:
		return fmt.Errorf("work queue is full")
	}
}

// ActiveRuns reports how many runs are currently executing for a
// project. Advisory only: nothing blocks concurrent runs.
func (d *Dispatcher) ActiveRuns(projectID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active[strings.TrimSpace(projectID)]
}

func (d *Dispatcher) incActive(projectID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active[projectID]++
}

func (d *Dispatcher) decActive(projectID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active[projectID]--
	if d.active[projectID] <= 0 {
		delete(d.active, projectID)
	}
}

// Stop signals workers to exit and waits for in-flight jobs to finish.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}
