package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/muaviaUsmani/opsconsole/internal/api"
	"github.com/muaviaUsmani/opsconsole/internal/logger"
	"github.com/muaviaUsmani/opsconsole/internal/model"
	"github.com/muaviaUsmani/opsconsole/internal/serialization"
)

type scheduleTransition struct {
	from []model.ScheduleStatus
	// to is empty for delete, which only sets the soft-delete flag
	to model.ScheduleStatus
	op model.OperationType
}

var scheduleTransitions = map[api.ScheduleAction]scheduleTransition{
	api.ScheduleStop: {
		from: []model.ScheduleStatus{model.ScheduleStatusEnabled, model.ScheduleStatusPause, model.ScheduleStatusExecutionFailed},
		to:   model.ScheduleStatusTerminated,
		op:   model.OperationTerminate,
	},
	api.ScheduleDisable: {
		from: []model.ScheduleStatus{model.ScheduleStatusEnabled},
		to:   model.ScheduleStatusPause,
		op:   model.OperationPause,
	},
	api.ScheduleEnable: {
		from: []model.ScheduleStatus{model.ScheduleStatusPause},
		to:   model.ScheduleStatusEnabled,
		op:   model.OperationResume,
	},
	api.ScheduleDelete: {
		from: []model.ScheduleStatus{
			model.ScheduleStatusEnabled, model.ScheduleStatusPause, model.ScheduleStatusExecutionFailed,
			model.ScheduleStatusTerminated, model.ScheduleStatusCanceled, model.ScheduleStatusCompleted,
		},
		op: model.OperationDelete,
	},
}

type taskTransition struct {
	from []model.TaskStatus
	to   model.TaskStatus
}

var taskTransitions = map[api.TaskAction]taskTransition{
	api.TaskExecute: {from: []model.TaskStatus{model.TaskStatusPreparing}, to: model.TaskStatusRunning},
	api.TaskPause:   {from: []model.TaskStatus{model.TaskStatusRunning}, to: model.TaskStatusPaused},
	api.TaskResume:  {from: []model.TaskStatus{model.TaskStatusPaused}, to: model.TaskStatusRunning},
	api.TaskRetry: {
		from: []model.TaskStatus{model.TaskStatusAbnormal, model.TaskStatusFailed, model.TaskStatusExecTimeout, model.TaskStatusDoneWithFailed},
		to:   model.TaskStatusPreparing,
	},
	api.TaskStop: {
		from: []model.TaskStatus{model.TaskStatusPreparing, model.TaskStatusRunning, model.TaskStatusAbnormal, model.TaskStatusPaused},
		to:   model.TaskStatusCanceled,
	},
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// scheduleSnapshot is the part of a schedule recorded before and after a change
type scheduleSnapshot struct {
	Status     model.ScheduleStatus `json:"status"`
	Approvable bool                 `json:"approvable"`
	Deleted    bool                 `json:"deleted,omitempty"`
	Trigger    model.Trigger        `json:"trigger"`
	Parameters json.RawMessage      `json:"parameters,omitempty"`
}

func snapshotOf(sch *model.Schedule) (map[string]interface{}, error) {
	return serialization.ToSnapshot(scheduleSnapshot{
		Status:     sch.Status,
		Approvable: sch.Approvable,
		Deleted:    sch.Deleted,
		Trigger:    sch.Trigger,
		Parameters: sch.Parameters,
	})
}

func actorOf(ctx context.Context) model.User {
	if u, ok := api.ActorFrom(ctx); ok {
		return u
	}
	return model.User{Name: "system"}
}

// withScheduleLock runs fn while holding the schedule's mutation lock
func (s *RedisStore) withScheduleLock(ctx context.Context, scheduleID int64, fn func() error) error {
	lock, err := AcquireLock(ctx, s.client, s.lockKey(scheduleID), lockTTL, lockWait, lockRetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			s.log.Warn("Failed to release schedule lock", "schedule_id", scheduleID, "error", err)
		}
	}()
	return fn()
}

// refreshFireTimes recomputes upcoming fire times; only enabled schedules have any
func (s *RedisStore) refreshFireTimes(sch *model.Schedule) {
	sch.NextFireTimes = nil
	if sch.Status != model.ScheduleStatusEnabled {
		return
	}
	times, err := sch.Trigger.NextFireTimes(s.now(), nextFireCount)
	if err != nil {
		s.log.Warn("Failed to compute next fire times", "schedule_id", sch.ID, "error", err)
		return
	}
	sch.NextFireTimes = times
}

func (s *RedisStore) queueSchedule(ctx context.Context, pipe redis.Pipeliner, sch *model.Schedule) error {
	data, err := serialization.EncodeRecord(sch)
	if err != nil {
		return fmt.Errorf("failed to encode schedule %d: %w", sch.ID, err)
	}
	pipe.Set(ctx, s.scheduleKey(sch.ID), data, 0)
	return nil
}

func (s *RedisStore) queueOperation(ctx context.Context, pipe redis.Pipeliner, op *model.Operation) error {
	fields, err := s.operationFields(op)
	if err != nil {
		return fmt.Errorf("failed to encode operation: %w", err)
	}
	pipe.HSet(ctx, s.operationKey(op.ID), fields)
	pipe.LPush(ctx, s.operationsKey(op.ScheduleID), op.ID)
	return nil
}

// CreateSchedule stores a new schedule and its CREATE operation. With
// approvers, the schedule waits in CREATING behind a new approval flow;
// otherwise it is enabled immediately.
func (s *RedisStore) CreateSchedule(ctx context.Context, sch *model.Schedule, approvers []int64) (*model.Schedule, error) {
	if sch == nil {
		return nil, fmt.Errorf("%w: schedule is required", api.ErrInvalidArgument)
	}
	out := *sch

	id, err := s.client.Incr(ctx, s.scheduleSeq).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate schedule ID: %w", err)
	}
	now := s.now()
	out.ID = id
	out.CreatedAt = now
	out.UpdatedAt = now
	out.Deleted = false
	if out.Creator.ID == 0 && out.Creator.Name == "" {
		out.Creator = actorOf(ctx)
	}

	op := &model.Operation{
		ID:         uuid.New().String(),
		ScheduleID: id,
		Type:       model.OperationCreate,
		Status:     model.OperationStatusSuccess,
		Creator:    out.Creator,
		CreatedAt:  now,
	}

	var flow *model.FlowDetail
	if len(approvers) > 0 {
		flowID, err := s.client.Incr(ctx, s.flowSeq).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to allocate flow ID: %w", err)
		}
		flow = &model.FlowDetail{
			ID:         flowID,
			ScheduleID: id,
			Status:     model.FlowStatusApproving,
			Candidates: append([]int64(nil), approvers...),
			Nodes: []model.FlowNode{
				{Name: "Submit", Status: model.FlowStatusApproved, Operator: &out.Creator, CompletedAt: &now},
				{Name: "Approve", Status: model.FlowStatusApproving},
			},
			CreatedAt: now,
		}
		out.Status = model.ScheduleStatusCreating
		out.Approvable = true
		out.ApproveInstanceID = flowID
		op.Status = model.OperationStatusApproving
		op.FlowInstanceID = flowID
	} else {
		out.Status = model.ScheduleStatusEnabled
		out.Approvable = false
		out.ApproveInstanceID = 0
	}

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrInvalidArgument, err)
	}
	s.refreshFireTimes(&out)
	if op.After, err = snapshotOf(&out); err != nil {
		return nil, err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := s.queueSchedule(ctx, pipe, &out); err != nil {
			return err
		}
		if err := s.queueOperation(ctx, pipe, op); err != nil {
			return err
		}
		if flow != nil {
			data, err := serialization.EncodeRecord(flow)
			if err != nil {
				return fmt.Errorf("failed to encode flow %d: %w", flow.ID, err)
			}
			pipe.Set(ctx, s.flowKey(flow.ID), data, 0)
			pipe.Set(ctx, s.flowOperationKey(flow.ID), op.ID, 0)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	s.log.Info("Created schedule", "schedule_id", id, "type", out.Type, "status", out.Status)
	return &out, nil
}

// CreateTask stores a new sub-task under an existing schedule
func (s *RedisStore) CreateTask(ctx context.Context, task *model.ScheduleTask) (*model.ScheduleTask, error) {
	if task == nil {
		return nil, fmt.Errorf("%w: sub-task is required", api.ErrInvalidArgument)
	}
	sch, err := s.GetSchedule(ctx, task.ScheduleID)
	if err != nil {
		return nil, err
	}

	out := *task
	id, err := s.client.Incr(ctx, s.taskSeq).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sub-task ID: %w", err)
	}
	out.ID = id
	out.Type = sch.Type
	if out.Status == "" {
		out.Status = model.TaskStatusPreparing
	}
	if !out.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid sub-task status %q", api.ErrInvalidArgument, out.Status)
	}
	if out.FireTime.IsZero() {
		out.FireTime = s.now()
	}
	out.UpdatedAt = s.now()

	data, err := serialization.EncodeRecord(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sub-task: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.taskKey(out.ScheduleID, id), data, 0)
		pipe.ZAdd(ctx, s.tasksKey(out.ScheduleID), redis.Z{Score: float64(id), Member: id})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sub-task: %w", err)
	}
	return &out, nil
}

// MutateSchedule applies a schedule action and appends it to the change log.
// An action that is illegal for the current status returns api.ErrConflict.
func (s *RedisStore) MutateSchedule(ctx context.Context, id int64, action api.ScheduleAction) error {
	tr, ok := scheduleTransitions[action]
	if !ok {
		return fmt.Errorf("%w: unknown schedule action %q", api.ErrInvalidArgument, action)
	}

	return s.withScheduleLock(ctx, id, func() error {
		sch, err := s.GetSchedule(ctx, id)
		if err != nil {
			return err
		}
		if !contains(tr.from, sch.Status) {
			return fmt.Errorf("%w: cannot %s schedule %d in status %s", api.ErrConflict, action, id, sch.Status)
		}

		before, err := snapshotOf(sch)
		if err != nil {
			return err
		}

		if tr.to != "" {
			sch.UpdateStatus(tr.to)
		} else {
			sch.Deleted = true
			sch.UpdatedAt = s.now()
		}
		s.refreshFireTimes(sch)

		after, err := snapshotOf(sch)
		if err != nil {
			return err
		}
		op := &model.Operation{
			ID:         uuid.New().String(),
			ScheduleID: id,
			Type:       tr.op,
			Status:     model.OperationStatusSuccess,
			Creator:    actorOf(ctx),
			Before:     before,
			After:      after,
			CreatedAt:  s.now(),
		}

		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := s.queueSchedule(ctx, pipe, sch); err != nil {
				return err
			}
			return s.queueOperation(ctx, pipe, op)
		})
		if err != nil {
			return fmt.Errorf("failed to save schedule %d: %w", id, err)
		}

		s.log.WithSource(logger.LogSourceAudit).InfoContext(logger.ContextWithSchedule(ctx, id),
			"Schedule mutated", "action", action, "status", sch.Status, "deleted", sch.Deleted, "operator", op.Creator.ID)
		return nil
	})
}

// MutateTask applies a sub-task action. Illegal transitions return api.ErrConflict.
func (s *RedisStore) MutateTask(ctx context.Context, scheduleID, taskID int64, action api.TaskAction) error {
	tr, ok := taskTransitions[action]
	if !ok {
		return fmt.Errorf("%w: unknown sub-task action %q", api.ErrInvalidArgument, action)
	}

	return s.withScheduleLock(ctx, scheduleID, func() error {
		task, err := s.GetScheduleTask(ctx, scheduleID, taskID)
		if err != nil {
			return err
		}
		if !contains(tr.from, task.Status) {
			return fmt.Errorf("%w: cannot %s sub-task %d in status %s", api.ErrConflict, action, taskID, task.Status)
		}

		now := s.now()
		switch action {
		case api.TaskExecute, api.TaskResume:
			if task.StartedAt == nil {
				task.StartedAt = &now
			}
		case api.TaskRetry:
			task.StartedAt = nil
			task.EndedAt = nil
			task.Progress = 0
			task.ResultSummary = ""
		case api.TaskStop:
			task.EndedAt = &now
		}
		task.UpdateStatus(tr.to)

		data, err := serialization.EncodeRecord(task)
		if err != nil {
			return fmt.Errorf("failed to encode sub-task: %w", err)
		}
		if err := s.client.Set(ctx, s.taskKey(scheduleID, taskID), data, 0).Err(); err != nil {
			return fmt.Errorf("failed to save sub-task %d: %w", taskID, err)
		}

		ctx = logger.ContextWithTask(logger.ContextWithSchedule(ctx, scheduleID), taskID)
		s.log.WithSource(logger.LogSourceAudit).InfoContext(ctx, "Sub-task mutated", "action", action, "status", task.Status)
		return nil
	})
}

// Approve resolves a pending approval flow. pass enables a schedule waiting in
// CREATING; refuse and revoke cancel it. Either way the schedule stops being approvable.
func (s *RedisStore) Approve(ctx context.Context, instanceID int64, action api.ApprovalAction, comment string) error {
	if !action.Valid() {
		return fmt.Errorf("%w: unknown approval action %q", api.ErrInvalidArgument, action)
	}
	flow, err := s.GetFlowDetail(ctx, instanceID)
	if err != nil {
		return err
	}

	return s.withScheduleLock(ctx, flow.ScheduleID, func() error {
		// Re-read under the lock
		flow, err := s.GetFlowDetail(ctx, instanceID)
		if err != nil {
			return err
		}
		if flow.Status != model.FlowStatusApproving {
			return fmt.Errorf("%w: flow %d is %s", api.ErrConflict, instanceID, flow.Status)
		}
		sch, err := s.GetSchedule(ctx, flow.ScheduleID)
		if err != nil {
			return err
		}

		now := s.now()
		actor := actorOf(ctx)
		var opStatus model.OperationStatus
		switch action {
		case api.ApprovalPass:
			flow.Status = model.FlowStatusApproved
			opStatus = model.OperationStatusSuccess
			if sch.Status == model.ScheduleStatusCreating {
				sch.UpdateStatus(model.ScheduleStatusEnabled)
			}
		case api.ApprovalRefuse:
			flow.Status = model.FlowStatusRejected
			opStatus = model.OperationStatusFailed
			sch.UpdateStatus(model.ScheduleStatusCanceled)
		case api.ApprovalRevoke:
			flow.Status = model.FlowStatusCancelled
			opStatus = model.OperationStatusCanceled
			sch.UpdateStatus(model.ScheduleStatusCanceled)
		}
		sch.Approvable = false
		sch.ApproveInstanceID = 0
		s.refreshFireTimes(sch)

		for i := range flow.Nodes {
			if flow.Nodes[i].Status == model.FlowStatusApproving {
				flow.Nodes[i].Status = flow.Status
				flow.Nodes[i].Operator = &actor
				flow.Nodes[i].Comment = comment
				flow.Nodes[i].CompletedAt = &now
			}
		}

		var op *model.Operation
		if opID, err := s.client.Get(ctx, s.flowOperationKey(instanceID)).Result(); err == nil {
			if op, err = s.getOperation(ctx, opID); err != nil {
				return err
			}
			op.Status = opStatus
		} else if err != redis.Nil {
			return fmt.Errorf("failed to look up flow operation: %w", err)
		}

		flowData, err := serialization.EncodeRecord(flow)
		if err != nil {
			return fmt.Errorf("failed to encode flow %d: %w", instanceID, err)
		}

		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := s.queueSchedule(ctx, pipe, sch); err != nil {
				return err
			}
			pipe.Set(ctx, s.flowKey(instanceID), flowData, 0)
			if op != nil {
				fields, err := s.operationFields(op)
				if err != nil {
					return err
				}
				pipe.HSet(ctx, s.operationKey(op.ID), fields)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to resolve flow %d: %w", instanceID, err)
		}

		s.log.WithSource(logger.LogSourceAudit).InfoContext(logger.ContextWithSchedule(ctx, sch.ID),
			"Approval resolved", "flow_id", instanceID, "action", action, "status", sch.Status, "operator", actor.ID)
		return nil
	})
}
