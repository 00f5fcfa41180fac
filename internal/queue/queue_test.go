package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryQueuePushPop(t *testing.T) {
	q := NewMemoryQueue(4)
	defer q.Close()
	ctx := context.Background()

	job := &Job{Kind: KindPackEncrypt, InputHandle: "abc"}
	if err := q.Push(ctx, job); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if job.ID == "" {
		t.Fatal("Push did not assign an ID")
	}
	if job.Status != StatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}

	got, err := q.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if got.ID != job.ID || got.Kind != KindPackEncrypt || got.InputHandle != "abc" {
		t.Fatalf("Pop returned %+v", got)
	}

	got.Status = StatusCompleted
	got.ResultHandle = "def"
	if err := q.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stored, err := q.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != StatusCompleted || stored.ResultHandle != "def" {
		t.Fatalf("Get returned %+v", stored)
	}
}

func TestMemoryQueueOrder(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		job := &Job{Kind: KindCompress}
		if err := q.Push(ctx, job); err != nil {
			t.Fatalf("Push: %v", err)
		}
		ids = append(ids, job.ID)
	}

	for i, want := range ids {
		got, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop %d: %v", i, err)
		}
		if got.ID != want {
			t.Errorf("Pop %d: got %s, want %s", i, got.ID, want)
		}
	}
}

func TestMemoryQueueErrors(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	if _, err := q.Get(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get missing: got %v, want ErrJobNotFound", err)
	}
	if err := q.Update(ctx, &Job{ID: "missing"}); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Update missing: got %v, want ErrJobNotFound", err)
	}

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := q.Pop(timeout); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Pop on empty queue: got %v, want DeadlineExceeded", err)
	}

	q.Close()
	if _, err := q.Pop(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Pop after Close: got %v, want ErrQueueClosed", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestJobStatusString(t *testing.T) {
	tests := map[JobStatus]string{
		StatusPending:    "pending",
		StatusProcessing: "processing",
		StatusCompleted:  "completed",
		StatusFailed:     "failed",
		JobStatus(9):     "status(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
