// Package queue runs asynchronous report-generation jobs on Redis streams.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"servicebay/internal/util"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Job tracks one report-generation request. ResultID is the report ID once
// the job is done.
type Job struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	AppointmentID string    `json:"appointmentId"`
	Status        string    `json:"status"`
	ResultID      string    `json:"resultId,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	Attempts      int       `json:"attempts"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Handler processes a job and returns the ID of what it produced.
type Handler func(ctx context.Context, job Job) (string, error)

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the job fails immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type RedisJobQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	jobTTL       time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64

	groupMu    sync.Mutex
	groupReady bool
}

type RedisQueueConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	JobTTL     time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
}

func NewRedisJobQueue(cfg RedisQueueConfig) (*RedisJobQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "report-workers"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	return &RedisJobQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		jobTTL:       positiveDuration(cfg.JobTTL, 24*time.Hour),
		maxRetries:   positiveInt(cfg.MaxRetries, 3),
		block:        positiveDuration(cfg.Block, 5*time.Second),
		claimIdle:    positiveDuration(cfg.ClaimIdle, 2*time.Minute),
		retryDelay:   positiveDuration(cfg.RetryDelay, 2*time.Second),
		maxLen:       int64(positiveInt(int(cfg.MaxLen), 10000)),
		readCount:    int64(positiveInt(int(cfg.ReadCount), 10)),
		claimCount:   int64(positiveInt(int(cfg.ClaimCount), 10)),
	}, nil
}

func positiveDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func positiveInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Close releases the Redis connection pool.
func (q *RedisJobQueue) Close() error {
	return q.client.Close()
}

// Enqueue records a queued job and appends it to the stream.
func (q *RedisJobQueue) Enqueue(ctx context.Context, userID, appointmentID string) (Job, error) {
	userID = strings.TrimSpace(userID)
	appointmentID = strings.TrimSpace(appointmentID)
	if userID == "" || appointmentID == "" {
		return Job{}, errors.New("userId and appointmentId required")
	}
	now := time.Now().UTC()
	job := Job{
		ID:            util.NewID(),
		UserID:        userID,
		AppointmentID: appointmentID,
		Status:        StatusQueued,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := q.ensureGroup(ctx); err != nil {
		return Job{}, err
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return Job{}, err
	}
	if err := q.client.XAdd(ctx, q.addArgs(job)).Err(); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (q *RedisJobQueue) addArgs(job Job) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":         job.ID,
			"user_id":        job.UserID,
			"appointment_id": job.AppointmentID,
		},
	}
}

// GetJob returns the current status record of a job.
func (q *RedisJobQueue) GetJob(ctx context.Context, jobID string) (Job, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Job{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return Job{}, false, err
	}
	if len(data) == 0 {
		return Job{}, false, nil
	}
	return decodeJob(jobID, data), true, nil
}

// Start launches concurrency consumers that run until ctx is cancelled.
// The returned channel closes once every consumer has exited.
func (q *RedisJobQueue) Start(ctx context.Context, concurrency int, handler Handler) <-chan struct{} {
	if concurrency <= 0 {
		concurrency = 1
	}
	if err := q.ensureGroup(ctx); err != nil {
		slog.Warn("queue: consumer group unavailable", "stream", q.stream, "group", q.group, "err", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.consumeLoop(ctx, consumer, handler)
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// ensureGroup creates the consumer group from the start of the stream, so
// entries added before any consumer ran are still delivered. Producers and
// consumers both call it; whichever runs first wins.
func (q *RedisJobQueue) ensureGroup(ctx context.Context) error {
	q.groupMu.Lock()
	defer q.groupMu.Unlock()
	if q.groupReady {
		return nil
	}
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	q.groupReady = true
	return nil
}

func (q *RedisJobQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := q.ensureGroup(ctx); err != nil {
			time.Sleep(time.Second)
			continue
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				slog.Warn("queue: read group", "consumer", consumer, "err", err)
				time.Sleep(time.Second)
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RedisJobQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *RedisJobQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	jobID, _ := msg.Values["job_id"].(string)
	userID, _ := msg.Values["user_id"].(string)
	appointmentID, _ := msg.Values["appointment_id"].(string)
	if jobID == "" || userID == "" || appointmentID == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	job, err := q.markProcessing(ctx, jobID, userID, appointmentID)
	if err != nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	logger := slog.Default().With("job_id", jobID, "appointment_id", appointmentID, "attempt", job.Attempts)

	resultID, err := handler(ctx, job)
	if err == nil {
		_ = q.markDone(ctx, jobID, resultID)
		q.ackAndDel(ctx, msg.ID)
		logger.Info("queue: job done", "result_id", resultID)
		return
	}
	if IsPermanent(err) || job.Attempts >= q.maxRetries {
		_ = q.markFailed(ctx, jobID, err.Error())
		q.ackAndDel(ctx, msg.ID)
		logger.Warn("queue: job failed", "err", err)
		return
	}
	logger.Info("queue: job retry scheduled", "err", err)
	_ = q.markQueued(ctx, jobID, err.Error())
	select {
	case <-ctx.Done():
		return
	case <-time.After(q.retryDelay):
	}
	_ = q.requeueAndAck(ctx, msg.ID, job)
}

func (q *RedisJobQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *RedisJobQueue) requeueAndAck(ctx context.Context, msgID string, job Job) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, q.addArgs(job))
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisJobQueue) markProcessing(ctx context.Context, jobID, userID, appointmentID string) (Job, error) {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if job.ID == "" {
		job = Job{ID: jobID}
	}
	job.UserID = userID
	job.AppointmentID = appointmentID
	job.Attempts++
	job.Status = StatusProcessing
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (q *RedisJobQueue) markQueued(ctx context.Context, jobID, errMsg string) error {
	return q.update(ctx, jobID, func(job *Job) {
		job.Status = StatusQueued
		job.ErrorMessage = errMsg
	})
}

func (q *RedisJobQueue) markDone(ctx context.Context, jobID, resultID string) error {
	return q.update(ctx, jobID, func(job *Job) {
		job.Status = StatusDone
		job.ResultID = resultID
		job.ErrorMessage = ""
	})
}

func (q *RedisJobQueue) markFailed(ctx context.Context, jobID, errMsg string) error {
	return q.update(ctx, jobID, func(job *Job) {
		job.Status = StatusFailed
		job.ErrorMessage = errMsg
	})
}

func (q *RedisJobQueue) update(ctx context.Context, jobID string, mutate func(*Job)) error {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.ID = jobID
	mutate(&job)
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

func (q *RedisJobQueue) writeStatus(ctx context.Context, job Job) error {
	key := q.jobKey(job.ID)
	payload := map[string]any{
		"id":            job.ID,
		"userId":        job.UserID,
		"appointmentId": job.AppointmentID,
		"status":        job.Status,
		"resultId":      job.ResultID,
		"error":         job.ErrorMessage,
		"attempts":      strconv.Itoa(job.Attempts),
		"createdAt":     job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt":     job.UpdatedAt.Format(time.RFC3339Nano),
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, key, payload)
	pipe.Expire(ctx, key, q.jobTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisJobQueue) jobKey(jobID string) string {
	return fmt.Sprintf("job:%s:%s", q.stream, jobID)
}

func decodeJob(jobID string, data map[string]string) Job {
	job := Job{
		ID:            jobID,
		UserID:        data["userId"],
		AppointmentID: data["appointmentId"],
		Status:        data["status"],
		ResultID:      data["resultId"],
		ErrorMessage:  data["error"],
	}
	if n, err := strconv.Atoi(data["attempts"]); err == nil {
		job.Attempts = n
	}
	if t, err := time.Parse(time.RFC3339Nano, data["createdAt"]); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, data["updatedAt"]); err == nil {
		job.UpdatedAt = t
	}
	return job
}
