// Package taskstatus tracks background research tasks in Redis. Each
// task is one JSON blob under research:task:<id> with a TTL, written by
// the workflow as it moves through stages and read by the task API.
package taskstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/prime-labs/prime-orchestrator/internal/research"
)

// Task states. A task is terminal once COMPLETED, FAILED, or CANCELLED.
const (
	StatePending   = "PENDING"
	StateRunning   = "RUNNING"
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
	StateCancelled = "CANCELLED"
)

var ErrNotFound = errors.New("task not found")

// Status is the stored record for one background research task.
type Status struct {
	TaskID    string           `json:"task_id"`
	State     string           `json:"state"`
	Stage     string           `json:"stage,omitempty"`
	Progress  int              `json:"progress"`
	Query     string           `json:"query"`
	Depth     string           `json:"depth"`
	Error     string           `json:"error,omitempty"`
	Result    *research.Report `json:"result,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Terminal reports whether the task has finished, in any outcome.
func (s *Status) Terminal() bool {
	return s.State == StateCompleted || s.State == StateFailed || s.State == StateCancelled
}

// Store persists task status blobs in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewStore wraps an existing Redis client. A zero ttl defaults to 24h,
// long enough for a client to poll a finished task the next day.
func NewStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, ttl: ttl, logger: logger}
}

func taskKey(taskID string) string {
	return fmt.Sprintf("research:task:%s", taskID)
}

// Create writes the initial PENDING record for a task.
func (s *Store) Create(ctx context.Context, taskID, query, depth string) (*Status, error) {
	now := time.Now().UTC()
	st := &Status{
		TaskID:    taskID,
		State:     StatePending,
		Progress:  0,
		Query:     query,
		Depth:     depth,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.save(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Get loads a task record. Returns ErrNotFound for unknown or expired IDs.
func (s *Store) Get(ctx context.Context, taskID string) (*Status, error) {
	data, err := s.client.Get(ctx, taskKey(taskID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}

	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task status: %w", err)
	}
	return &st, nil
}

// SetProgress moves a task to RUNNING at the given stage checkpoint.
func (s *Store) SetProgress(ctx context.Context, taskID, stage string, progress int) error {
	return s.mutate(ctx, taskID, func(st *Status) {
		st.State = StateRunning
		st.Stage = stage
		st.Progress = progress
	})
}

// Complete stores the finished report and marks the task COMPLETED.
func (s *Store) Complete(ctx context.Context, taskID string, report *research.Report) error {
	return s.mutate(ctx, taskID, func(st *Status) {
		st.State = StateCompleted
		st.Stage = ""
		st.Progress = 100
		st.Result = report
	})
}

// Fail marks the task FAILED with the error message.
func (s *Store) Fail(ctx context.Context, taskID, errMsg string) error {
	return s.mutate(ctx, taskID, func(st *Status) {
		st.State = StateFailed
		st.Error = errMsg
	})
}

// Cancel marks the task CANCELLED. Terminal tasks are left untouched.
func (s *Store) Cancel(ctx context.Context, taskID string) error {
	return s.mutate(ctx, taskID, func(st *Status) {
		if st.Terminal() {
			return
		}
		st.State = StateCancelled
	})
}

// Delete removes the task record entirely.
func (s *Store) Delete(ctx context.Context, taskID string) error {
	if err := s.client.Del(ctx, taskKey(taskID)).Err(); err != nil {
		return fmt.Errorf("failed to delete task status: %w", err)
	}
	return nil
}

func (s *Store) mutate(ctx context.Context, taskID string, fn func(*Status)) error {
	st, err := s.Get(ctx, taskID)
	if err != nil {
		return err
	}
	fn(st)
	st.UpdatedAt = time.Now().UTC()
	return s.save(ctx, st)
}

func (s *Store) save(ctx context.Context, st *Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal task status: %w", err)
	}
	if err := s.client.Set(ctx, taskKey(st.TaskID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save task status: %w", err)
	}
	s.logger.Debug("task status saved",
		zap.String("task_id", st.TaskID),
		zap.String("state", st.State),
		zap.Int("progress", st.Progress),
	)
	return nil
}

// Ping verifies the Redis connection, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
