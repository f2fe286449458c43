package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingExecutor struct {
	mu   sync.Mutex
	runs []string
	done chan struct{}
}

func (e *recordingExecutor) Execute(ctx context.Context, projectID, runID string) error {
	e.mu.Lock()
	e.runs = append(e.runs, runID)
	e.mu.Unlock()
	if e.done != nil {
		e.done <- struct{}{}
	}
	return nil
}

type recordingTrigger struct {
	mu       sync.Mutex
	findings []string
	done     chan struct{}
}

func (t *recordingTrigger) Trigger(ctx context.Context, projectID, findingID string) error {
	t.mu.Lock()
	t.findings = append(t.findings, findingID)
	t.mu.Unlock()
	if t.done != nil {
		t.done <- struct{}{}
	}
	return nil
}

func TestDispatcherRunsEnqueuedJobs(t *testing.T) {
	executor := &recordingExecutor{done: make(chan struct{}, 1)}
	trigger := &recordingTrigger{done: make(chan struct{}, 1)}
	dispatcher, err := NewDispatcher(executor, trigger, DispatcherConfig{Workers: 2, QueueSize: 8}, testLogger())
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	if err := dispatcher.EnqueueRun("proj-1", "run-1"); err != nil {
		t.Fatalf("enqueue run: %v", err)
	}
	if err := dispatcher.EnqueueAutofix("proj-1", "f-1"); err != nil {
		t.Fatalf("enqueue autofix: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-executor.done:
		case <-trigger.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for background jobs")
		}
	}

	executor.mu.Lock()
	defer executor.mu.Unlock()
	if len(executor.runs) != 1 || executor.runs[0] != "run-1" {
		t.Fatalf("expected run-1 executed, got %v", executor.runs)
	}
	trigger.mu.Lock()
	defer trigger.mu.Unlock()
	if len(trigger.findings) != 1 || trigger.findings[0] != "f-1" {
		t.Fatalf("expected f-1 triggered, got %v", trigger.findings)
	}
}

func TestDispatcherRejectsWhenQueueFull(t *testing.T) {
	executor := &recordingExecutor{}
	dispatcher, err := NewDispatcher(executor, nil, DispatcherConfig{Workers: 1, QueueSize: 1}, testLogger())
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	// Not started: jobs stay queued.
	if err := dispatcher.EnqueueRun("proj-1", "run-1"); err != nil {
		t.Fatalf("first enqueue should fit: %v", err)
	}
	if err := dispatcher.EnqueueRun("proj-1", "run-2"); err == nil {
		t.Fatalf("expected full-queue error")
	}
}

func TestDispatcherValidatesInput(t *testing.T) {
	dispatcher, err := NewDispatcher(&recordingExecutor{}, nil, DispatcherConfig{}, testLogger())
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	if err := dispatcher.EnqueueRun("", "run-1"); err == nil {
		t.Fatalf("expected error for empty project id")
	}
	if err := dispatcher.EnqueueAutofix("proj-1", ""); err == nil {
		t.Fatalf("expected error for empty finding id")
	}
}
