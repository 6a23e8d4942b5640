package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/onefifth/internal/config"
	"github.com/cwbudde/onefifth/internal/driver"
	"github.com/cwbudde/onefifth/internal/store"
)

func testJobConfig(generations int) JobConfig {
	cfg := config.Default()
	cfg.Dim = 3
	cfg.Generations = generations
	return cfg
}

func TestRunJob_Success(t *testing.T) {
	jm := NewJobManager()
	rn := &runner{jm: jm}

	job := jm.CreateJob(testJobConfig(50))

	if err := rn.runJob(context.Background(), job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCompleted {
		t.Errorf("Job should be completed, got %s", updated.State)
	}
	if updated.Generation != 50 {
		t.Errorf("Expected generation 50, got %d", updated.Generation)
	}
	if updated.Evaluations != 51 {
		t.Errorf("Expected 51 evaluations, got %d", updated.Evaluations)
	}
	if updated.BestFitness > updated.InitialFitness {
		t.Errorf("Best fitness %g should not exceed initial fitness %g", updated.BestFitness, updated.InitialFitness)
	}
	if len(updated.Best) != 3 {
		t.Errorf("Expected 3 coordinates, got %d", len(updated.Best))
	}
	if len(updated.Logbook()) != 50 {
		t.Errorf("Expected 50 logbook records, got %d", len(updated.Logbook()))
	}
	if updated.StopReason != driver.StopGenerations {
		t.Errorf("Expected stop reason %q, got %q", driver.StopGenerations, updated.StopReason)
	}
	if updated.EndTime == nil {
		t.Error("EndTime should be set")
	}
}

func TestRunJob_TargetFitness(t *testing.T) {
	jm := NewJobManager()
	rn := &runner{jm: jm}

	cfg := testJobConfig(100000)
	target := 1e-3
	cfg.TargetFitness = &target
	job := jm.CreateJob(cfg)

	if err := rn.runJob(context.Background(), job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.StopReason != driver.StopTarget {
		t.Errorf("Expected stop reason %q, got %q", driver.StopTarget, updated.StopReason)
	}
	if updated.BestFitness > target {
		t.Errorf("Best fitness %g should reach target %g", updated.BestFitness, target)
	}
}

func TestRunJob_InvalidConfig(t *testing.T) {
	jm := NewJobManager()
	rn := &runner{jm: jm}

	cfg := testJobConfig(10)
	cfg.Objective = "nonexistent"
	job := jm.CreateJob(cfg)

	if err := rn.runJob(context.Background(), job.ID); err == nil {
		t.Error("runJob should fail with unknown objective")
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateFailed {
		t.Errorf("Job should be failed, got %s", updated.State)
	}
	if updated.Error == "" {
		t.Error("Error message should be set")
	}
}

func TestRunJob_NotFound(t *testing.T) {
	rn := &runner{jm: NewJobManager()}
	if err := rn.runJob(context.Background(), "nonexistent"); err == nil {
		t.Error("runJob should fail for unknown job")
	}
}

func TestRunJob_Cancellation(t *testing.T) {
	jm := NewJobManager()
	rn := &runner{jm: jm}

	job := jm.CreateJob(testJobConfig(1000))

	// Cancel immediately
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rn.runJob(ctx, job.ID)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
	if updated.StopReason != driver.StopCancelled {
		t.Errorf("Expected stop reason %q, got %q", driver.StopCancelled, updated.StopReason)
	}
}

// cancellingStore cancels the job once a checkpoint at or past a generation
// has been saved. Checkpoints are saved from the worker goroutine, so the
// cancellation lands at a known generation.
type cancellingStore struct {
	store.Store
	jm     *JobManager
	atGen  int
	called bool
}

func (c *cancellingStore) SaveCheckpoint(jobID string, cp *store.Checkpoint) error {
	if err := c.Store.SaveCheckpoint(jobID, cp); err != nil {
		return err
	}
	if !c.called && cp.State.Generation >= c.atGen {
		c.called = true
		return c.jm.CancelJob(jobID)
	}
	return nil
}

func TestRunJob_CancelDuringRun(t *testing.T) {
	jm := NewJobManager()
	fs, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	st := &cancellingStore{Store: fs, jm: jm, atGen: 25}
	rn := &runner{jm: jm, store: st}

	cfg := testJobConfig(1000)
	cfg.CheckpointEvery = 25
	job := jm.CreateJob(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := jm.setCancel(job.ID, cancel); err != nil {
		t.Fatalf("setCancel failed: %v", err)
	}

	if err := rn.runJob(ctx, job.ID); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
	if updated.Generation != 25 {
		t.Errorf("Expected to stop at generation 25, got %d", updated.Generation)
	}

	// Cancelled jobs leave a resumable checkpoint
	cp, err := fs.LoadCheckpoint(job.ID)
	if err != nil {
		t.Fatalf("Checkpoint should exist after cancel: %v", err)
	}
	if cp.State.Generation != 25 {
		t.Errorf("Expected checkpoint at generation 25, got %d", cp.State.Generation)
	}
}

func TestRunJob_WritesArtifacts(t *testing.T) {
	jm := NewJobManager()
	dir := t.TempDir()
	st, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	rn := &runner{jm: jm, store: st}

	job := jm.CreateJob(testJobConfig(30))
	if err := rn.runJob(context.Background(), job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	for _, name := range []string{"trace.jsonl", "checkpoint.json", "plot.png"} {
		if _, err := os.Stat(filepath.Join(st.JobDir(job.ID), name)); err != nil {
			t.Errorf("Expected %s to exist: %v", name, err)
		}
	}

	entries, err := store.ReadTrace(filepath.Join(st.JobDir(job.ID), store.TraceFileName))
	if err != nil {
		t.Fatalf("Failed to read trace: %v", err)
	}
	if len(entries) != 30 {
		t.Errorf("Expected 30 trace entries, got %d", len(entries))
	}

	cp, err := st.LoadCheckpoint(job.ID)
	if err != nil {
		t.Fatalf("Failed to load checkpoint: %v", err)
	}
	if cp.State.Generation != 30 {
		t.Errorf("Expected checkpoint at generation 30, got %d", cp.State.Generation)
	}
	if cp.Evaluations != 31 {
		t.Errorf("Expected 31 evaluations in checkpoint, got %d", cp.Evaluations)
	}
}

// countingStore records the generation of every saved checkpoint.
type countingStore struct {
	store.Store
	generations []int
}

func (c *countingStore) SaveCheckpoint(jobID string, cp *store.Checkpoint) error {
	c.generations = append(c.generations, cp.State.Generation)
	return c.Store.SaveCheckpoint(jobID, cp)
}

func TestRunJob_PeriodicCheckpoint(t *testing.T) {
	jm := NewJobManager()
	fs, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	st := &countingStore{Store: fs}
	rn := &runner{jm: jm, store: st}

	cfg := testJobConfig(25)
	cfg.CheckpointEvery = 10
	job := jm.CreateJob(cfg)

	if err := rn.runJob(context.Background(), job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	want := []int{10, 20, 25}
	if len(st.generations) != len(want) {
		t.Fatalf("Expected checkpoints at %v, got %v", want, st.generations)
	}
	for i := range want {
		if st.generations[i] != want[i] {
			t.Errorf("Checkpoint %d: expected generation %d, got %d", i, want[i], st.generations[i])
		}
	}
}

func TestRunJob_Resume(t *testing.T) {
	jm := NewJobManager()
	st, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	rn := &runner{jm: jm, store: st}

	first := jm.CreateJob(testJobConfig(40))
	if err := rn.runJob(context.Background(), first.ID); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	done, _ := jm.GetJob(first.ID)

	second := jm.CreateJob(testJobConfig(60))
	jm.UpdateJob(second.ID, func(j *Job) { j.ResumedFrom = first.ID })
	if err := rn.runJob(context.Background(), second.ID); err != nil {
		t.Fatalf("Resumed run failed: %v", err)
	}

	resumed, _ := jm.GetJob(second.ID)
	if resumed.State != StateCompleted {
		t.Fatalf("Resumed job should be completed, got %s (%s)", resumed.State, resumed.Error)
	}
	if resumed.Generation != 60 {
		t.Errorf("Expected generation 60, got %d", resumed.Generation)
	}
	if resumed.Evaluations != 61 {
		t.Errorf("Expected 61 evaluations, got %d", resumed.Evaluations)
	}
	if len(resumed.Logbook()) != 20 {
		t.Errorf("Expected 20 new records, got %d", len(resumed.Logbook()))
	}
	if resumed.InitialFitness != done.InitialFitness {
		t.Error("Resumed job should keep the original initial fitness")
	}
	if resumed.BestFitness > done.BestFitness {
		t.Errorf("Resumed best %g should not be worse than %g", resumed.BestFitness, done.BestFitness)
	}
}

func TestRunJob_ResumeWithoutStore(t *testing.T) {
	jm := NewJobManager()
	rn := &runner{jm: jm}

	job := jm.CreateJob(testJobConfig(10))
	jm.UpdateJob(job.ID, func(j *Job) { j.ResumedFrom = "missing" })

	if err := rn.runJob(context.Background(), job.ID); err == nil {
		t.Error("Resume without a store should fail")
	}
	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateFailed {
		t.Errorf("Job should be failed, got %s", updated.State)
	}
}

func TestRunJob_RecordsHistory(t *testing.T) {
	jm := NewJobManager()
	history := store.NewSQLiteHistory(filepath.Join(t.TempDir(), "history.db"))
	if err := history.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init history: %v", err)
	}
	defer history.Close()
	rn := &runner{jm: jm, history: history}

	job := jm.CreateJob(testJobConfig(20))
	if err := rn.runJob(context.Background(), job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	run, ok, err := history.GetRun(context.Background(), job.ID)
	if err != nil || !ok {
		t.Fatalf("Run should be recorded: ok=%v err=%v", ok, err)
	}
	if run.Generations != 20 || run.Evaluations != 21 {
		t.Errorf("Unexpected run summary: %+v", run)
	}
	if run.StopReason != driver.StopGenerations {
		t.Errorf("Expected stop reason %q, got %q", driver.StopGenerations, run.StopReason)
	}

	lb, err := history.GetGenerations(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetGenerations failed: %v", err)
	}
	if len(lb) != 20 {
		t.Errorf("Expected 20 generations, got %d", len(lb))
	}
}

func TestRunJob_ReleasesStreamResources(t *testing.T) {
	jm := NewJobManager()
	rn := &runner{jm: jm, retention: 10 * time.Millisecond}

	job := jm.CreateJob(testJobConfig(20))
	ch := jm.broadcaster.Subscribe(job.ID)

	if err := rn.runJob(context.Background(), job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	// The subscriber sees the final event, then its channel is closed
	var last ProgressEvent
	timeout := time.After(5 * time.Second)
	for open := true; open; {
		select {
		case event, ok := <-ch:
			if ok {
				last = event
			}
			open = ok
		case <-timeout:
			t.Fatal("Timeout waiting for the stream to be released")
		}
	}
	if last.State != StateCompleted {
		t.Errorf("Expected final event to be completed, got %s", last.State)
	}

	jm.broadcaster.mu.RLock()
	_, cached := jm.broadcaster.lastEvent[job.ID]
	_, subscribed := jm.broadcaster.clients[job.ID]
	jm.broadcaster.mu.RUnlock()
	if cached || subscribed {
		t.Errorf("Expected no stream state for finished job (cached=%v, subscribed=%v)", cached, subscribed)
	}
}
