package console

import (
	"context"
	"fmt"

	"github.com/muaviaUsmani/opsconsole/internal/actions"
	"github.com/muaviaUsmani/opsconsole/internal/api"
	"github.com/muaviaUsmani/opsconsole/internal/detail"
	"github.com/muaviaUsmani/opsconsole/internal/logger"
	"github.com/muaviaUsmani/opsconsole/internal/model"
)

// Schedule detail tabs
const (
	TabBasicInfo       detail.Tab = "BASIC_INFO"
	TabExecuteRecord   detail.Tab = "EXECUTE_RECORD"
	TabOperationRecord detail.Tab = "OPERATION_RECORD"
)

// ScheduleDetail is the schedule detail screen
type ScheduleDetail struct {
	*detail.Controller[*model.Schedule]
	deps Deps
}

// NewScheduleDetail creates a closed schedule detail bound to ctx
func NewScheduleDetail(ctx context.Context, deps Deps) *ScheduleDetail {
	deps = deps.withDefaults()
	s := &ScheduleDetail{deps: deps}

	s.Controller = detail.NewController(ctx, detail.Config[*model.Schedule]{
		Fetch: func(ctx context.Context, target detail.Target) (*model.Schedule, error) {
			return deps.API.GetSchedule(ctx, target.ID)
		},
		Active: func(sch *model.Schedule) bool {
			return sch != nil && sch.Status.IsActive()
		},
		DefaultTab: TabBasicInfo,
		Interval:   deps.DetailInterval,
		LinkTarget: func(link detail.DeepLink) (detail.Target, bool) {
			// Links to a sub-task belong to the task screen
			if link.TaskID != 0 {
				return detail.Target{}, false
			}
			return detail.Target{ID: link.ScheduleID}, true
		},
		CanAccess:     viewerCanAccess(deps.Viewer),
		Pending:       deps.Pending,
		PollerOptions: deps.PollerOptions,
		Logger:        deps.Logger,
	})
	return s
}

// viewerCanAccess rejects links into projects the viewer is not a member of
func viewerCanAccess(v model.Viewer) func(detail.DeepLink) bool {
	return func(link detail.DeepLink) bool {
		return link.ProjectID == 0 || v.IsMember(link.ProjectID)
	}
}

// OpenSchedule opens the schedule with the given id
func (s *ScheduleDetail) OpenSchedule(id int64, opts ...detail.OpenOption) {
	s.Open(detail.Target{ID: id}, opts...)
}

// Schedule returns the loaded schedule
func (s *ScheduleDetail) Schedule() (*model.Schedule, error) {
	view := s.View()
	if view.State != detail.StateLoaded || view.Payload == nil {
		return nil, ErrNotLoaded
	}
	return view.Payload, nil
}

// Actions returns the actions the viewer may take on the loaded schedule
func (s *ScheduleDetail) Actions(ctx context.Context) ([]actions.Descriptor, error) {
	sch, err := s.Schedule()
	if err != nil {
		return nil, err
	}
	return s.actionsFor(ctx, sch)
}

func (s *ScheduleDetail) actionsFor(ctx context.Context, sch *model.Schedule) ([]actions.Descriptor, error) {
	var flow *model.FlowDetail
	if sch.Approvable {
		f, err := s.deps.API.GetFlowDetail(ctx, sch.ApproveInstanceID)
		if err != nil {
			// Without the flow the approver role cannot be granted
			s.deps.Logger.WarnContext(logger.ContextWithSchedule(ctx, sch.ID),
				"Failed to load approval flow", "flow_id", sch.ApproveInstanceID, "error", err)
		} else {
			flow = f
		}
	}

	roles := actions.ResolveRoles(s.deps.Viewer, sch, flow)
	return actions.ForSchedule(sch.Status, sch.Approvable, roles, sch.Type)
}

// Perform invokes a mutating action on the loaded schedule. Actions the
// viewer cannot take return actions.ErrActionNotPermitted. On success the
// detail reloads, or closes after DELETE.
func (s *ScheduleDetail) Perform(ctx context.Context, key actions.Key, opts ...PerformOption) error {
	var o performOptions
	for _, opt := range opts {
		opt(&o)
	}

	sch, err := s.Schedule()
	if err != nil {
		return err
	}
	list, err := s.actionsFor(ctx, sch)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("schedule %d", sch.ID)
	if err := s.deps.perform(ctx, subject, list, key, s.call(sch, key, o.comment)); err != nil {
		return err
	}

	if key == actions.KeyDelete {
		s.Close()
	} else {
		s.Reload()
	}
	return nil
}

func (s *ScheduleDetail) call(sch *model.Schedule, key actions.Key, comment string) func(context.Context) error {
	mutate := func(action api.ScheduleAction) func(context.Context) error {
		return func(ctx context.Context) error {
			return s.deps.API.MutateSchedule(ctx, sch.ID, action)
		}
	}
	approve := func(action api.ApprovalAction) func(context.Context) error {
		return func(ctx context.Context) error {
			return s.deps.API.Approve(ctx, sch.ApproveInstanceID, action, comment)
		}
	}

	switch key {
	case actions.KeyStop:
		return mutate(api.ScheduleStop)
	case actions.KeyDisable:
		return mutate(api.ScheduleDisable)
	case actions.KeyEnable:
		return mutate(api.ScheduleEnable)
	case actions.KeyDelete:
		return mutate(api.ScheduleDelete)
	case actions.KeyPass:
		return approve(api.ApprovalPass)
	case actions.KeyRefuse:
		return approve(api.ApprovalRefuse)
	case actions.KeyRevoke:
		return approve(api.ApprovalRevoke)
	default:
		return nil
	}
}

// Operations returns the change log of the open schedule, newest first
func (s *ScheduleDetail) Operations(ctx context.Context) ([]model.Operation, error) {
	view := s.View()
	if view.State == detail.StateClosed {
		return nil, ErrNotLoaded
	}
	return s.deps.API.ListOperations(ctx, view.Target.ID)
}

// PendingOperation consumes the operation id handed over on open and returns
// its record. It returns nil when nothing is pending.
func (s *ScheduleDetail) PendingOperation(ctx context.Context) (*model.Operation, error) {
	id, ok := s.TakePendingOperation()
	if !ok {
		return nil, nil
	}

	ops, err := s.Operations(ctx)
	if err != nil {
		return nil, err
	}
	for i := range ops {
		if ops[i].ID == id {
			return &ops[i], nil
		}
	}
	return nil, fmt.Errorf("%w: operation %s", api.ErrNotFound, id)
}
