package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"otapatch/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	_ = w.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading captured stdout: %v", err)
	}
	_ = r.Close()
	return string(data)
}

func TestStatusRun_Empty(t *testing.T) {
	st := newTestStore(t)

	origStore := globalStore
	globalStore = st
	t.Cleanup(func() { globalStore = origStore })

	out := captureStdout(t, func() {
		if err := statusRun(nil, nil); err != nil {
			t.Fatalf("statusRun returned error: %v", err)
		}
	})

	if !strings.Contains(out, "No jobs recorded yet") {
		t.Fatalf("expected empty message, got: %s", out)
	}
}

func TestStatusRun_ShowsJobs(t *testing.T) {
	st := newTestStore(t)

	job := &store.Job{
		Kind: store.KindDump,
		URL:  "https://example.com/ota.zip",
	}
	if err := st.CreateJob(job); err != nil {
		t.Fatalf("creating job: %v", err)
	}
	job.Status = store.StatusFailed
	job.ErrorMessage = "archive unreadable"
	if err := st.FinishJob(job); err != nil {
		t.Fatalf("finishing job: %v", err)
	}

	origStore := globalStore
	globalStore = st
	t.Cleanup(func() { globalStore = origStore })

	out := captureStdout(t, func() {
		if err := statusRun(nil, nil); err != nil {
			t.Fatalf("statusRun returned error: %v", err)
		}
	})

	if !strings.Contains(out, "dump") || !strings.Contains(out, "failed") {
		t.Errorf("missing job row, got: %s", out)
	}
	if !strings.Contains(out, "archive unreadable") {
		t.Errorf("failed job should show its error, got: %s", out)
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "boot.img")
	dest := filepath.Join(dir, "out", "boot.img")
	if err := os.WriteFile(src, []byte("image bytes"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatalf("creating dest dir: %v", err)
	}

	if err := moveFile(src, dest); err != nil {
		t.Fatalf("moveFile failed: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading dest: %v", err)
	}
	if string(data) != "image bytes" {
		t.Errorf("content = %q", data)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("source should be gone, stat err = %v", err)
	}
}
