package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T, maxRetries int) *RedisJobQueue {
	t.Helper()
	return newTestQueueAt(t, miniredis.RunT(t).Addr(), "consumer", maxRetries)
}

func newTestQueueAt(t *testing.T, addr, consumer string, maxRetries int) *RedisJobQueue {
	t.Helper()
	q, err := NewRedisJobQueue(RedisQueueConfig{
		Addr:       addr,
		Stream:     "test:reports",
		Group:      "test-group",
		Consumer:   consumer,
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
		Block:      20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func waitForStatus(t *testing.T, q *RedisJobQueue, jobID, status string) Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, ok, err := q.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if ok && job.Status == status {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %q", jobID, status)
	return Job{}
}

func TestRedisJobQueueEnqueueValidates(t *testing.T) {
	q := newTestQueue(t, 1)
	if _, err := q.Enqueue(context.Background(), "", "appt-1"); err == nil {
		t.Fatalf("expected missing user to fail")
	}
}

func TestRedisJobQueueProcessesJob(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job, err := q.Enqueue(ctx, "user-1", "appt-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	done := q.Start(ctx, 1, func(_ context.Context, j Job) (string, error) {
		if j.UserID != "user-1" || j.AppointmentID != "appt-1" {
			return "", Permanent(errors.New("unexpected payload"))
		}
		return "report-9", nil
	})

	got := waitForStatus(t, q, job.ID, StatusDone)
	if got.ResultID != "report-9" || got.Attempts != 1 {
		t.Fatalf("unexpected job: %+v", got)
	}
	cancel()
	<-done
}

func TestRedisJobQueueDeliversJobsEnqueuedBeforeWorkerStarts(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	producer := newTestQueueAt(t, redisSrv.Addr(), "api", 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := producer.Enqueue(ctx, "user-1", "appt-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := producer.Enqueue(ctx, "user-2", "appt-2")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	worker := newTestQueueAt(t, redisSrv.Addr(), "worker", 3)
	done := worker.Start(ctx, 1, func(_ context.Context, j Job) (string, error) {
		return "report-" + j.AppointmentID, nil
	})

	if got := waitForStatus(t, worker, first.ID, StatusDone); got.ResultID != "report-appt-1" {
		t.Fatalf("first job result = %q", got.ResultID)
	}
	if got := waitForStatus(t, worker, second.ID, StatusDone); got.ResultID != "report-appt-2" {
		t.Fatalf("second job result = %q", got.ResultID)
	}
	cancel()
	<-done
}

func TestRedisJobQueuePermanentErrorFailsWithoutRetry(t *testing.T) {
	q := newTestQueue(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job, _ := q.Enqueue(ctx, "user-1", "appt-1")
	var calls atomic.Int32
	done := q.Start(ctx, 1, func(context.Context, Job) (string, error) {
		calls.Add(1)
		return "", Permanent(errors.New("appointment not found"))
	})

	got := waitForStatus(t, q, job.ID, StatusFailed)
	if got.ErrorMessage != "appointment not found" {
		t.Fatalf("error message = %q", got.ErrorMessage)
	}
	if calls.Load() != 1 {
		t.Fatalf("handler calls = %d, want 1", calls.Load())
	}
	cancel()
	<-done
}

func TestRedisJobQueueRetriesTransientErrors(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job, _ := q.Enqueue(ctx, "user-1", "appt-1")
	var calls atomic.Int32
	done := q.Start(ctx, 1, func(context.Context, Job) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("provider timeout")
		}
		return "report-1", nil
	})

	got := waitForStatus(t, q, job.ID, StatusDone)
	if got.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", got.Attempts)
	}
	cancel()
	<-done
}

func TestRedisJobQueueRequeueAndAckFailureKeepsPendingMessage(t *testing.T) {
	q := newTestQueue(t, 1)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "user-1", "appt-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-1",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil || len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("readgroup: %v %+v", err, streams)
	}

	canceledCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.requeueAndAck(canceledCtx, streams[0].Messages[0].ID, job); err == nil {
		t.Fatalf("expected requeueAndAck to fail on canceled context")
	}
	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("expected original message to remain pending, got %d", pending.Count)
	}
}
