package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAcquireWritesHolder(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, FileName) {
		t.Errorf("Unexpected lock path %q", lock.Path())
	}
	h := ReadHolder(lock.Path())
	if h.PID != os.Getpid() {
		t.Errorf("Expected holder PID %d, got %d", os.Getpid(), h.PID)
	}
	if !h.Running {
		t.Errorf("Our own process should be reported as running")
	}
	if time.Since(h.Started) > time.Minute {
		t.Errorf("Unexpected start time %v", h.Started)
	}
}

func TestAcquireConflict(t *testing.T) {
	dir := t.TempDir()
	lock1, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := Acquire(dir)
	if err == nil {
		lock2.Release()
		t.Fatalf("Second lock acquisition should have failed")
	}
	if !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked, got: %v", err)
	}
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("Expected *HeldError, got: %T", err)
	}
	if held.Holder.PID != os.Getpid() {
		t.Errorf("Expected holder PID %d, got %d", os.Getpid(), held.Holder.PID)
	}
	msg := err.Error()
	if !strings.Contains(msg, "another SuriCare server") || !strings.Contains(msg, dir) {
		t.Errorf("Error message should name the conflict and the lock path: %s", msg)
	}

	// The failed attempt must not clobber the holder record.
	if h := ReadHolder(lock1.Path()); h.PID != os.Getpid() {
		t.Errorf("Holder record changed after failed acquisition: %+v", h)
	}
}

func TestReleaseAndReacquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Failed to release lock: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Errorf("Lock file should be removed after release: %s", lock.Path())
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Multiple releases should be safe: %v", err)
	}

	again, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Failed to reacquire lock after release: %v", err)
	}
	defer again.Release()
}

func TestAcquireCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Should be able to create directory and acquire lock: %v", err)
	}
	defer lock.Release()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Directory should have been created: %v", err)
	}
}

func TestParseHolder(t *testing.T) {
	started := "2025-03-10T09:30:00Z"
	tests := []struct {
		name    string
		content string
		pid     int
		started bool
	}{
		{"pid and start", fmt.Sprintf("pid=%d\nstarted=%s\n", os.Getpid(), started), os.Getpid(), true},
		{"pid only", "pid=12345\n", 12345, false},
		{"no pid", "other=info", 0, false},
		{"empty content", "", 0, false},
		{"invalid pid", "pid=abc", 0, false},
		{"negative pid", "pid=-4", 0, false},
		{"bad start", "pid=12345\nstarted=yesterday", 12345, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := parseHolder(tt.content)
			if h.PID != tt.pid {
				t.Errorf("parseHolder(%q).PID = %d, want %d", tt.content, h.PID, tt.pid)
			}
			if h.Started.IsZero() == tt.started {
				t.Errorf("parseHolder(%q).Started = %v, want set=%v", tt.content, h.Started, tt.started)
			}
		})
	}
}

func TestHolderString(t *testing.T) {
	if got := (Holder{}).String(); got != "unknown process" {
		t.Errorf("Unexpected zero holder string %q", got)
	}
	got := Holder{PID: 42, Running: false}.String()
	if !strings.Contains(got, "PID 42") || !strings.Contains(got, "stale") {
		t.Errorf("Unexpected stale holder string %q", got)
	}
}

func TestProcessRunning(t *testing.T) {
	if !processRunning(os.Getpid()) {
		t.Errorf("Our own process should be detected as running")
	}
}
