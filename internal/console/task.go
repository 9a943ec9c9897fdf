package console

import (
	"context"
	"fmt"
	"sync"

	"github.com/muaviaUsmani/opsconsole/internal/actions"
	"github.com/muaviaUsmani/opsconsole/internal/api"
	"github.com/muaviaUsmani/opsconsole/internal/detail"
	"github.com/muaviaUsmani/opsconsole/internal/logger"
	"github.com/muaviaUsmani/opsconsole/internal/model"
	"github.com/muaviaUsmani/opsconsole/internal/poller"
)

// Sub-task detail tabs
const (
	TabTaskBasicInfo detail.Tab = "BASIC_INFO"
	TabTaskLog       detail.Tab = "LOG"
	TabTaskResult    detail.Tab = "RESULT"
)

// TaskDetail is the sub-task detail screen
type TaskDetail struct {
	*detail.Controller[*model.ScheduleTask]
	deps Deps
}

// NewTaskDetail creates a closed sub-task detail bound to ctx
func NewTaskDetail(ctx context.Context, deps Deps) *TaskDetail {
	deps = deps.withDefaults()
	t := &TaskDetail{deps: deps}

	t.Controller = detail.NewController(ctx, detail.Config[*model.ScheduleTask]{
		Fetch: func(ctx context.Context, target detail.Target) (*model.ScheduleTask, error) {
			return deps.API.GetScheduleTask(ctx, target.ParentID, target.ID)
		},
		Active: func(task *model.ScheduleTask) bool {
			return task != nil && task.Status.IsActive()
		},
		DefaultTab: TabTaskBasicInfo,
		Interval:   deps.DetailInterval,
		LinkTarget: func(link detail.DeepLink) (detail.Target, bool) {
			if link.TaskID == 0 {
				return detail.Target{}, false
			}
			return detail.Target{ID: link.TaskID, ParentID: link.ScheduleID}, true
		},
		CanAccess:     viewerCanAccess(deps.Viewer),
		Pending:       deps.Pending,
		PollerOptions: deps.PollerOptions,
		Logger:        deps.Logger,
	})
	return t
}

// OpenTask opens one sub-task of a schedule
func (t *TaskDetail) OpenTask(scheduleID, taskID int64) {
	t.Open(detail.Target{ID: taskID, ParentID: scheduleID})
}

// Task returns the loaded sub-task
func (t *TaskDetail) Task() (*model.ScheduleTask, error) {
	view := t.View()
	if view.State != detail.StateLoaded || view.Payload == nil {
		return nil, ErrNotLoaded
	}
	return view.Payload, nil
}

// Actions returns the actions the viewer may take on the loaded sub-task.
// Roles come from the owning schedule.
func (t *TaskDetail) Actions(ctx context.Context) ([]actions.Descriptor, error) {
	task, err := t.Task()
	if err != nil {
		return nil, err
	}
	return t.actionsFor(ctx, task)
}

func (t *TaskDetail) actionsFor(ctx context.Context, task *model.ScheduleTask) ([]actions.Descriptor, error) {
	sch, err := t.deps.API.GetSchedule(ctx, task.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule %d: %w", task.ScheduleID, err)
	}
	roles := actions.ResolveRoles(t.deps.Viewer, sch, nil)
	return actions.ForTask(task.Status, roles, task.Type)
}

// Perform invokes a mutating action on the loaded sub-task and reloads on success
func (t *TaskDetail) Perform(ctx context.Context, key actions.Key) error {
	task, err := t.Task()
	if err != nil {
		return err
	}
	list, err := t.actionsFor(ctx, task)
	if err != nil {
		return err
	}

	var call func(context.Context) error
	if action, ok := taskAction(key); ok {
		call = func(ctx context.Context) error {
			return t.deps.API.MutateTask(ctx, task.ScheduleID, task.ID, action)
		}
	}

	subject := fmt.Sprintf("sub-task %d", task.ID)
	ctx = logger.ContextWithTask(logger.ContextWithSchedule(ctx, task.ScheduleID), task.ID)
	if err := t.deps.perform(ctx, subject, list, key, call); err != nil {
		return err
	}
	t.Reload()
	return nil
}

func taskAction(key actions.Key) (api.TaskAction, bool) {
	switch key {
	case actions.KeyExecute:
		return api.TaskExecute, true
	case actions.KeyPause:
		return api.TaskPause, true
	case actions.KeyResume:
		return api.TaskResume, true
	case actions.KeyRetry:
		return api.TaskRetry, true
	case actions.KeyStop:
		return api.TaskStop, true
	default:
		return "", false
	}
}

// ListQuery selects one page of a schedule's sub-tasks
type ListQuery struct {
	ScheduleID int64
	Page       int
	Size       int
}

// TaskList polls a page of sub-tasks while any listed sub-task is active
type TaskList struct {
	deps Deps
	poll *poller.Poller[ListQuery]

	mu     sync.Mutex
	query  ListQuery
	page   *model.Page[model.ScheduleTask]
	subs   map[int]func(*model.Page[model.ScheduleTask])
	nextID int
}

// NewTaskList creates an idle list bound to ctx
func NewTaskList(ctx context.Context, deps Deps) *TaskList {
	deps = deps.withDefaults()
	l := &TaskList{
		deps: deps,
		subs: make(map[int]func(*model.Page[model.ScheduleTask])),
	}

	opts := append([]poller.Option{
		poller.WithName("task-list"),
		poller.WithLogger(deps.Logger),
	}, deps.PollerOptions...)
	l.poll = poller.New[ListQuery](ctx, l.fetch, deps.ListInterval, opts...)
	return l
}

// Show lists q, replacing the previous query
func (l *TaskList) Show(q ListQuery) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Size < 1 {
		q.Size = 10
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.query = q
	l.page = nil

	wasRunning := l.poll.Running()
	l.poll.Loop(q)
	if wasRunning {
		l.poll.Reload()
	}
}

// Refresh fetches the current query now, restarting polling if it had stopped
func (l *TaskList) Refresh() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.poll.Reload() || l.query.ScheduleID == 0 {
		return
	}
	l.poll.Loop(l.query)
}

// Page returns the last fetched page, or nil before the first fetch
func (l *TaskList) Page() *model.Page[model.ScheduleTask] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.page
}

// Polling reports whether the list is still refreshing
func (l *TaskList) Polling() bool {
	return l.poll.Running()
}

// Subscribe registers fn to receive every fetched page
func (l *TaskList) Subscribe(fn func(*model.Page[model.ScheduleTask])) (unsubscribe func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

// Close stops polling
func (l *TaskList) Close() {
	l.poll.Destroy()
}

func (l *TaskList) fetch(ctx context.Context, q ListQuery, count int) error {
	page, err := l.deps.API.ListScheduleTasks(ctx, q.ScheduleID, q.Page, q.Size)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.query != q {
		// Superseded by Show while in flight
		l.mu.Unlock()
		return nil
	}
	l.page = page
	subs := make([]func(*model.Page[model.ScheduleTask]), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	if !anyActive(page.Contents) {
		l.deps.Logger.DebugContext(logger.ContextWithSchedule(ctx, q.ScheduleID),
			"No active sub-tasks, list polling stopped", "count", count)
		l.poll.Destroy()
	}
	l.mu.Unlock()

	for _, fn := range subs {
		fn(page)
	}
	return nil
}

func anyActive(tasks []model.ScheduleTask) bool {
	for _, t := range tasks {
		if t.Status.IsActive() {
			return true
		}
	}
	return false
}
