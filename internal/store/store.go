// Package store is the Redis-backed reference implementation of the
// Task/Schedule API used for development and tests.
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/muaviaUsmani/opsconsole/internal/api"
	"github.com/muaviaUsmani/opsconsole/internal/logger"
	"github.com/muaviaUsmani/opsconsole/internal/model"
	"github.com/muaviaUsmani/opsconsole/internal/serialization"
)

// ErrLockBusy is returned when a schedule stays locked past the wait period.
// It matches api.ErrConflict.
var ErrLockBusy = fmt.Errorf("%w: schedule is locked by another mutation", api.ErrConflict)

const (
	defaultPrefix = "opsconsole:"

	lockTTL   = 10 * time.Second
	lockWait  = 2 * time.Second
	lockRetry = 10 * time.Millisecond

	// upcoming fire times kept on each schedule snapshot
	nextFireCount = 5
)

// RedisStore keeps schedule snapshots, sub-tasks, change logs and approval flows in Redis
type RedisStore struct {
	client *redis.Client
	log    logger.Logger
	now    func() time.Time

	keyPrefix   string
	scheduleSeq string
	taskSeq     string
	flowSeq     string
}

// NewRedisStore connects to Redis and tests the connection
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := NewRedisStoreWithClient(client)
	s.log.Info("Connected to Redis", "url", opts.Addr)
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client without pinging it
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:      client,
		log:         logger.Default().WithComponent(logger.ComponentStore),
		now:         time.Now,
		keyPrefix:   defaultPrefix,
		scheduleSeq: defaultPrefix + "seq:schedule",
		taskSeq:     defaultPrefix + "seq:task",
		flowSeq:     defaultPrefix + "seq:flow",
	}
}

// SetLogger replaces the store logger
func (s *RedisStore) SetLogger(l logger.Logger) {
	s.log = l.WithComponent(logger.ComponentStore)
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Key generation helpers
func (s *RedisStore) scheduleKey(id int64) string {
	return s.keyPrefix + "schedule:" + strconv.FormatInt(id, 10)
}

func (s *RedisStore) tasksKey(scheduleID int64) string {
	return s.scheduleKey(scheduleID) + ":tasks"
}

func (s *RedisStore) taskKey(scheduleID, taskID int64) string {
	return s.keyPrefix + "task:" + strconv.FormatInt(scheduleID, 10) + ":" + strconv.FormatInt(taskID, 10)
}

func (s *RedisStore) operationsKey(scheduleID int64) string {
	return s.scheduleKey(scheduleID) + ":operations"
}

func (s *RedisStore) operationKey(id string) string {
	return s.keyPrefix + "operation:" + id
}

func (s *RedisStore) flowKey(id int64) string {
	return s.keyPrefix + "flow:" + strconv.FormatInt(id, 10)
}

func (s *RedisStore) flowOperationKey(id int64) string {
	return s.flowKey(id) + ":operation"
}

func (s *RedisStore) lockKey(scheduleID int64) string {
	return s.keyPrefix + "lock:schedule:" + strconv.FormatInt(scheduleID, 10)
}

// getRecord loads and decodes one record, mapping a missing key to api.ErrNotFound
func (s *RedisStore) getRecord(ctx context.Context, key string, v interface{}) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return fmt.Errorf("%w: %s", api.ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := serialization.DecodeRecord(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) loadSchedule(ctx context.Context, id int64) (*model.Schedule, error) {
	var sch model.Schedule
	if err := s.getRecord(ctx, s.scheduleKey(id), &sch); err != nil {
		return nil, err
	}
	return &sch, nil
}

// GetSchedule returns a schedule snapshot. Soft-deleted schedules are not found.
func (s *RedisStore) GetSchedule(ctx context.Context, id int64) (*model.Schedule, error) {
	sch, err := s.loadSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if sch.Deleted {
		return nil, fmt.Errorf("%w: schedule %d", api.ErrNotFound, id)
	}
	return sch, nil
}

// GetScheduleTask returns one sub-task of a schedule
func (s *RedisStore) GetScheduleTask(ctx context.Context, scheduleID, taskID int64) (*model.ScheduleTask, error) {
	var task model.ScheduleTask
	if err := s.getRecord(ctx, s.taskKey(scheduleID, taskID), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListScheduleTasks returns a page of sub-tasks, newest first. page is 1-based.
func (s *RedisStore) ListScheduleTasks(ctx context.Context, scheduleID int64, page, size int) (*model.Page[model.ScheduleTask], error) {
	if page < 1 || size < 1 {
		return nil, fmt.Errorf("%w: page and size must be positive", api.ErrInvalidArgument)
	}
	if _, err := s.GetSchedule(ctx, scheduleID); err != nil {
		return nil, err
	}

	total, err := s.client.ZCard(ctx, s.tasksKey(scheduleID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count sub-tasks: %w", err)
	}

	start := int64((page - 1) * size)
	ids, err := s.client.ZRevRange(ctx, s.tasksKey(scheduleID), start, start+int64(size)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sub-tasks: %w", err)
	}

	result := &model.Page[model.ScheduleTask]{
		Contents: make([]model.ScheduleTask, 0, len(ids)),
		Page:     page,
		Size:     size,
		Total:    int(total),
	}
	for _, raw := range ids {
		taskID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt sub-task index entry %q: %w", raw, err)
		}
		task, err := s.GetScheduleTask(ctx, scheduleID, taskID)
		if err != nil {
			return nil, err
		}
		result.Contents = append(result.Contents, *task)
	}
	return result, nil
}

// ListOperations returns the schedule's change log, newest first
func (s *RedisStore) ListOperations(ctx context.Context, scheduleID int64) ([]model.Operation, error) {
	if _, err := s.loadSchedule(ctx, scheduleID); err != nil {
		return nil, err
	}

	ids, err := s.client.LRange(ctx, s.operationsKey(scheduleID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}

	ops := make([]model.Operation, 0, len(ids))
	for _, id := range ids {
		op, err := s.getOperation(ctx, id)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, nil
}

// GetFlowDetail returns an approval flow instance
func (s *RedisStore) GetFlowDetail(ctx context.Context, instanceID int64) (*model.FlowDetail, error) {
	var flow model.FlowDetail
	if err := s.getRecord(ctx, s.flowKey(instanceID), &flow); err != nil {
		return nil, err
	}
	return &flow, nil
}

// Operation records are hashes: "meta" holds the JSON record without
// snapshots, "before"/"after" hold protobuf Struct snapshots.
func (s *RedisStore) getOperation(ctx context.Context, id string) (*model.Operation, error) {
	fields, err := s.client.HGetAll(ctx, s.operationKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get operation %s: %w", id, err)
	}
	meta, ok := fields["meta"]
	if !ok {
		return nil, fmt.Errorf("%w: operation %s", api.ErrNotFound, id)
	}

	var op model.Operation
	if err := serialization.DecodeRecord([]byte(meta), &op); err != nil {
		return nil, fmt.Errorf("failed to decode operation %s: %w", id, err)
	}
	if raw, ok := fields["before"]; ok {
		if op.Before, err = serialization.DecodeSnapshot([]byte(raw)); err != nil {
			return nil, fmt.Errorf("failed to decode operation %s snapshot: %w", id, err)
		}
	}
	if raw, ok := fields["after"]; ok {
		if op.After, err = serialization.DecodeSnapshot([]byte(raw)); err != nil {
			return nil, fmt.Errorf("failed to decode operation %s snapshot: %w", id, err)
		}
	}
	return &op, nil
}

// operationFields encodes op for HSET
func (s *RedisStore) operationFields(op *model.Operation) (map[string]interface{}, error) {
	meta := *op
	meta.Before, meta.After = nil, nil

	data, err := serialization.EncodeRecord(meta)
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{"meta": data}

	if op.Before != nil {
		if fields["before"], err = serialization.EncodeSnapshot(op.Before); err != nil {
			return nil, err
		}
	}
	if op.After != nil {
		if fields["after"], err = serialization.EncodeSnapshot(op.After); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

var _ api.ScheduleAPI = (*RedisStore)(nil)
