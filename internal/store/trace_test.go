package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/onefifth/internal/driver"
)

func TestTraceWriter_WriteAndRead(t *testing.T) {
	// Create temp directory
	tmpDir := t.TempDir()

	jobID := "test-job-123"

	// Create trace writer
	writer, err := OpenTraceWriter(jobTracePath(tmpDir, jobID), false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	// Write some entries
	entries := []TraceEntry{
		traceEntry(0, 1.0),
		traceEntry(10, 0.8),
		{Record: driver.Record{Generation: 20, Best: 0.6, Sigma: 0.1}, Timestamp: time.Now(), Params: []float64{1, 2, 3}},
		traceEntry(30, 0.4),
	}

	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}

	// Close writer
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	// Verify file exists
	tracePath := jobTracePath(tmpDir, jobID)
	if _, err := os.Stat(tracePath); os.IsNotExist(err) {
		t.Fatalf("Trace file not created: %s", tracePath)
	}

	// Read entries back
	reader, err := OpenTraceReader(jobTracePath(tmpDir, jobID))
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	readEntries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}

	// Verify count
	if len(readEntries) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(readEntries))
	}

	// Verify data
	for i, entry := range readEntries {
		if entry.Generation != entries[i].Generation {
			t.Errorf("Entry %d: expected generation %d, got %d", i, entries[i].Generation, entry.Generation)
		}
		if entry.Best != entries[i].Best {
			t.Errorf("Entry %d: expected best %f, got %f", i, entries[i].Best, entry.Best)
		}
		if len(entry.Params) != len(entries[i].Params) {
			t.Errorf("Entry %d: expected %d params, got %d", i, len(entries[i].Params), len(entry.Params))
		}
	}
}

func TestTraceWriter_Append(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-append"

	// Write initial entries
	writer, err := OpenTraceWriter(jobTracePath(tmpDir, jobID), false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	if err := writer.Write(traceEntry(0, 1.0)); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	// Append more entries
	writer, err = OpenTraceWriter(jobTracePath(tmpDir, jobID), true)
	if err != nil {
		t.Fatalf("Failed to create trace writer in append mode: %v", err)
	}

	if err := writer.Write(traceEntry(10, 0.8)); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	// Read all entries
	reader, err := OpenTraceReader(jobTracePath(tmpDir, jobID))
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}

	// Should have both entries
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Generation != 0 {
		t.Errorf("First entry: expected generation 0, got %d", entries[0].Generation)
	}
	if entries[1].Generation != 10 {
		t.Errorf("Second entry: expected generation 10, got %d", entries[1].Generation)
	}
}

func TestTraceWriter_Flush(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-flush"

	writer, err := OpenTraceWriter(jobTracePath(tmpDir, jobID), false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer writer.Close()

	// Write entry
	if err := writer.Write(traceEntry(0, 1.0)); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}

	// Flush
	if err := writer.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	// Data should be on disk now (even without closing)
	tracePath := jobTracePath(tmpDir, jobID)
	data, err := os.ReadFile(tracePath)
	if err != nil {
		t.Fatalf("Failed to read trace file: %v", err)
	}
	if len(data) == 0 {
		t.Error("Trace file is empty after flush")
	}
}

func TestTraceReader_ReadIteratively(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-iter"

	// Write entries
	writer, err := OpenTraceWriter(jobTracePath(tmpDir, jobID), false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := writer.Write(traceEntry(i*10, 1.0-float64(i)*0.1)); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	writer.Close()

	// Read iteratively
	reader, err := OpenTraceReader(jobTracePath(tmpDir, jobID))
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		entry, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read entry: %v", err)
		}

		expectedIter := count * 10
		if entry.Generation != expectedIter {
			t.Errorf("Entry %d: expected generation %d, got %d", count, expectedIter, entry.Generation)
		}

		count++
	}

	if count != 5 {
		t.Errorf("Expected to read 5 entries, got %d", count)
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "nonexistent-job"

	_, err := OpenTraceReader(jobTracePath(tmpDir, jobID))
	if err == nil {
		t.Fatal("Expected error for nonexistent trace file")
	}

	// Should be NotFoundError naming the job directory
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Expected NotFoundError, got: %v", err)
	}
	if nf.JobID != jobID {
		t.Errorf("Expected job ID %s, got %s", jobID, nf.JobID)
	}
}

func TestTraceWriter_WithParams(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-params"

	writer, err := OpenTraceWriter(jobTracePath(tmpDir, jobID), false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	// Write entry with large params array
	params := make([]float64, 100)
	for i := range params {
		params[i] = float64(i)
	}

	entry := TraceEntry{
		Record:    driver.Record{Generation: 100, Best: 0.123},
		Timestamp: time.Now(),
		Params:    params,
	}

	if err := writer.Write(entry); err != nil {
		t.Fatalf("Failed to write entry with params: %v", err)
	}
	writer.Close()

	// Read back
	reader, err := OpenTraceReader(jobTracePath(tmpDir, jobID))
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	readEntry, err := reader.Read()
	if err != nil {
		t.Fatalf("Failed to read entry: %v", err)
	}

	if len(readEntry.Params) != len(params) {
		t.Fatalf("Expected %d params, got %d", len(params), len(readEntry.Params))
	}

	for i, p := range readEntry.Params {
		if p != params[i] {
			t.Errorf("Param %d: expected %f, got %f", i, params[i], p)
		}
	}
}

func TestTraceWriter_EmptyParams(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-no-params"

	writer, err := OpenTraceWriter(jobTracePath(tmpDir, jobID), false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	// Write entry without params (nil)
	entry := TraceEntry{
		Record:    driver.Record{Generation: 50, Best: 0.456},
		Timestamp: time.Now(),
		Params:    nil, // No params
	}

	if err := writer.Write(entry); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	writer.Close()

	// Read back
	reader, err := OpenTraceReader(jobTracePath(tmpDir, jobID))
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	readEntry, err := reader.Read()
	if err != nil {
		t.Fatalf("Failed to read entry: %v", err)
	}

	// Params should be nil or empty
	if readEntry.Params != nil && len(readEntry.Params) > 0 {
		t.Errorf("Expected no params, got %d params", len(readEntry.Params))
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-concurrent"

	writer, err := OpenTraceWriter(jobTracePath(tmpDir, jobID), false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer writer.Close()

	// Write from multiple goroutines
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(iter int) {
			entry := traceEntry(iter, float64(iter))
			if err := writer.Write(entry); err != nil {
				t.Errorf("Concurrent write failed: %v", err)
			}
			done <- true
		}(i)
	}

	// Wait for all writes
	for i := 0; i < 10; i++ {
		<-done
	}

	writer.Flush()

	// Read back and verify we got 10 entries
	reader, err := OpenTraceReader(jobTracePath(tmpDir, jobID))
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}

	if len(entries) != 10 {
		t.Errorf("Expected 10 entries, got %d", len(entries))
	}
}

// jobTracePath mirrors the FSStore layout <dir>/jobs/<id>/trace.jsonl.
func jobTracePath(dir, jobID string) string {
	return filepath.Join(dir, "jobs", jobID, TraceFileName)
}

// Helper function to check if error is NotFoundError
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*NotFoundError)
	return ok
}

func traceEntry(generation int, best float64) TraceEntry {
	return TraceEntry{
		Record:    driver.Record{Generation: generation, Best: best, Fitness: best},
		Timestamp: time.Now(),
	}
}

func TestTraceWriter_Observe(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "run.jsonl")

	writer, err := OpenTraceWriter(path, false)
	if err != nil {
		t.Fatalf("Failed to open trace writer: %v", err)
	}

	var obs driver.Observer = writer.Observe
	for g := 1; g <= 3; g++ {
		if err := obs(driver.Record{Generation: g, Sigma: 0.5 / float64(g), Accepted: g%2 == 1}); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read trace: %v", err)
	}
	var lines int
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 3 {
		t.Errorf("Expected 3 lines, got %d", lines)
	}
}

func TestReadTrace(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := OpenTraceWriter(jobTracePath(tmpDir, "job-read"), false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	writer.Write(traceEntry(1, 3))
	writer.Write(traceEntry(2, 2))
	writer.Close()

	entries, err := ReadTrace(jobTracePath(tmpDir, "job-read"))
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(entries) != 2 || entries[1].Best != 2 {
		t.Errorf("Unexpected entries: %+v", entries)
	}

	if _, err := ReadTrace(jobTracePath(tmpDir, "missing")); !isNotFoundError(err) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
}
