package console

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muaviaUsmani/opsconsole/internal/actions"
	"github.com/muaviaUsmani/opsconsole/internal/api"
	"github.com/muaviaUsmani/opsconsole/internal/detail"
	"github.com/muaviaUsmani/opsconsole/internal/logger"
	"github.com/muaviaUsmani/opsconsole/internal/metrics"
	"github.com/muaviaUsmani/opsconsole/internal/model"
	"github.com/muaviaUsmani/opsconsole/internal/store"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type note struct {
	level Level
	msg   string
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (r *recordingNotifier) Notify(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note{level, message})
}

func (r *recordingNotifier) all() []note {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]note(nil), r.notes...)
}

type env struct {
	store    *store.RedisStore
	notifier *recordingNotifier
	metrics  *metrics.Collector
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := store.NewRedisStoreWithClient(client)
	st.SetLogger(&logger.NoOpLogger{})
	return &env{store: st, notifier: &recordingNotifier{}, metrics: metrics.NewCollector()}
}

func (e *env) deps(viewer model.Viewer) Deps {
	return Deps{
		API:            e.store,
		Viewer:         viewer,
		Notifier:       e.notifier,
		Metrics:        e.metrics,
		Logger:         &logger.NoOpLogger{},
		DetailInterval: time.Hour,
		ListInterval:   time.Hour,
	}
}

func (e *env) schedule(t *testing.T, typ model.ScheduleType, params string, approvers ...int64) *model.Schedule {
	t.Helper()
	sch, err := e.store.CreateSchedule(context.Background(), &model.Schedule{
		Name:       "nightly",
		Type:       typ,
		ProjectID:  3,
		Creator:    model.User{ID: 7, Name: "alice"},
		Trigger:    model.Trigger{Cron: "0 2 * * *"},
		Parameters: []byte(params),
	}, approvers)
	require.NoError(t, err)
	return sch
}

const sqlParams = `{"databaseName":"orders","sqlContent":"delete from tmp"}`
const archiveParams = `{"sourceDatabase":"orders","targetDatabase":"archive","tables":["t1"]}`

var creator = model.Viewer{ID: 7, Name: "alice", Projects: map[int64][]model.ProjectRole{
	3: {model.ProjectRoleDeveloper},
}}

var (
	approver = model.Viewer{ID: 9, Name: "bob"}
	outsider = model.Viewer{ID: 50, Name: "eve"}
)

func waitLoaded[P any](t *testing.T, c *detail.Controller[P]) {
	t.Helper()
	require.Eventually(t, func() bool { return c.View().State == detail.StateLoaded }, waitFor, tick)
}

func TestScheduleDetail_CreatorActions(t *testing.T) {
	e := newEnv(t)
	sch := e.schedule(t, model.ScheduleTypeSQLPlan, sqlParams)

	d := NewScheduleDetail(context.Background(), e.deps(creator))
	defer d.Close()
	d.OpenSchedule(sch.ID)
	waitLoaded(t, d.Controller)

	list, err := d.Actions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []actions.Key{
		actions.KeyStop, actions.KeyDisable, actions.KeyEdit, actions.KeyDelete,
		actions.KeyView, actions.KeyClone, actions.KeyShare,
	}, actions.Keys(list))

	require.NoError(t, d.Perform(context.Background(), actions.KeyDisable))

	require.Eventually(t, func() bool {
		v := d.View()
		return v.Payload != nil && v.Payload.Status == model.ScheduleStatusPause
	}, waitFor, tick)
	assert.True(t, d.View().Polling)

	assert.Equal(t, int64(1), e.metrics.GetMetrics().MutationsSucceeded["DISABLE"])
	notes := e.notifier.all()
	require.Len(t, notes, 1)
	assert.Equal(t, LevelInfo, notes[0].level)

	ops, err := d.Operations(context.Background())
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, model.OperationPause, ops[0].Type)
	assert.Equal(t, int64(7), ops[0].Creator.ID)
}

func TestScheduleDetail_ApproverPasses(t *testing.T) {
	e := newEnv(t)
	sch := e.schedule(t, model.ScheduleTypeSQLPlan, sqlParams, approver.ID)

	d := NewScheduleDetail(context.Background(), e.deps(approver))
	defer d.Close()
	d.OpenSchedule(sch.ID)
	waitLoaded(t, d.Controller)

	list, err := d.Actions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []actions.Key{actions.KeyPass, actions.KeyRefuse, actions.KeyView, actions.KeyShare}, actions.Keys(list))

	require.NoError(t, d.Perform(context.Background(), actions.KeyPass, WithComment("approved")))

	require.Eventually(t, func() bool {
		v := d.View()
		return v.Payload != nil && v.Payload.Status == model.ScheduleStatusEnabled && !v.Payload.Approvable
	}, waitFor, tick)

	flow, err := e.store.GetFlowDetail(context.Background(), sch.ApproveInstanceID)
	require.NoError(t, err)
	assert.Equal(t, "approved", flow.Nodes[len(flow.Nodes)-1].Comment)

	// Once resolved, the approver has no role left on the schedule
	list, err = d.Actions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestScheduleDetail_CreatorMayRevoke(t *testing.T) {
	e := newEnv(t)
	sch := e.schedule(t, model.ScheduleTypeSQLPlan, sqlParams, approver.ID)

	d := NewScheduleDetail(context.Background(), e.deps(creator))
	defer d.Close()
	d.OpenSchedule(sch.ID)
	waitLoaded(t, d.Controller)

	list, err := d.Actions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []actions.Key{actions.KeyRevoke, actions.KeyView, actions.KeyShare}, actions.Keys(list))

	require.NoError(t, d.Perform(context.Background(), actions.KeyRevoke))

	// CANCELED is terminal, so the poller stops after the reload
	require.Eventually(t, func() bool {
		v := d.View()
		return v.Payload != nil && v.Payload.Status == model.ScheduleStatusCanceled && !v.Polling
	}, waitFor, tick)
}

func TestScheduleDetail_NotPermitted(t *testing.T) {
	e := newEnv(t)
	sch := e.schedule(t, model.ScheduleTypeSQLPlan, sqlParams)

	d := NewScheduleDetail(context.Background(), e.deps(outsider))
	defer d.Close()
	d.OpenSchedule(sch.ID)
	waitLoaded(t, d.Controller)

	list, err := d.Actions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	err = d.Perform(context.Background(), actions.KeyStop)
	assert.ErrorIs(t, err, actions.ErrActionNotPermitted)
	assert.Empty(t, e.notifier.all())
	assert.Equal(t, detail.StateLoaded, d.View().State)

	got, err := e.store.GetSchedule(context.Background(), sch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScheduleStatusEnabled, got.Status)
}

func TestScheduleDetail_NotLoaded(t *testing.T) {
	e := newEnv(t)
	d := NewScheduleDetail(context.Background(), e.deps(creator))

	_, err := d.Actions(context.Background())
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.ErrorIs(t, d.Perform(context.Background(), actions.KeyStop), ErrNotLoaded)
	_, err = d.Operations(context.Background())
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestScheduleDetail_NonMutatingAction(t *testing.T) {
	e := newEnv(t)
	sch := e.schedule(t, model.ScheduleTypeSQLPlan, sqlParams)

	d := NewScheduleDetail(context.Background(), e.deps(creator))
	defer d.Close()
	d.OpenSchedule(sch.ID)
	waitLoaded(t, d.Controller)

	assert.ErrorIs(t, d.Perform(context.Background(), actions.KeyClone), ErrNotMutating)
	assert.Empty(t, e.notifier.all())
}

type failingAPI struct {
	api.ScheduleAPI
}

func (failingAPI) MutateSchedule(context.Context, int64, api.ScheduleAction) error {
	return api.ErrConflict
}

func TestScheduleDetail_MutationFailureNotifiesOnce(t *testing.T) {
	e := newEnv(t)
	sch := e.schedule(t, model.ScheduleTypeSQLPlan, sqlParams)

	deps := e.deps(creator)
	deps.API = failingAPI{e.store}
	d := NewScheduleDetail(context.Background(), deps)
	defer d.Close()
	d.OpenSchedule(sch.ID)
	waitLoaded(t, d.Controller)

	err := d.Perform(context.Background(), actions.KeyStop)
	assert.ErrorIs(t, err, api.ErrConflict)

	notes := e.notifier.all()
	require.Len(t, notes, 1)
	assert.Equal(t, LevelError, notes[0].level)
	assert.Contains(t, notes[0].msg, "Terminate schedule")

	v := d.View()
	assert.Equal(t, detail.StateLoaded, v.State)
	assert.True(t, v.Polling)
	assert.Equal(t, int64(1), e.metrics.GetMetrics().MutationsFailed["STOP"])
}

func TestScheduleDetail_DeleteCloses(t *testing.T) {
	e := newEnv(t)
	sch := e.schedule(t, model.ScheduleTypeSQLPlan, sqlParams)

	d := NewScheduleDetail(context.Background(), e.deps(creator))
	d.OpenSchedule(sch.ID)
	waitLoaded(t, d.Controller)

	require.NoError(t, d.Perform(context.Background(), actions.KeyDelete))

	v := d.View()
	assert.Equal(t, detail.StateClosed, v.State)
	assert.Nil(t, v.Payload)
	assert.Equal(t, TabBasicInfo, v.Tab)

	_, err := e.store.GetSchedule(context.Background(), sch.ID)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestScheduleDetail_AutoOpenWithPendingOperation(t *testing.T) {
	e := newEnv(t)
	sch := e.schedule(t, model.ScheduleTypeSQLPlan, sqlParams)
	ops, err := e.store.ListOperations(context.Background(), sch.ID)
	require.NoError(t, err)
	opID := ops[0].ID

	d := NewScheduleDetail(context.Background(), e.deps(creator))
	defer d.Close()

	rest, err := d.AutoOpen("/console/schedules?tab=mine&scheduleId=1&projectId=3&operationId=" + opID)
	require.NoError(t, err)
	assert.Equal(t, "/console/schedules?tab=mine", rest)
	waitLoaded(t, d.Controller)

	op, err := d.PendingOperation(context.Background())
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, model.OperationCreate, op.Type)

	op, err = d.PendingOperation(context.Background())
	require.NoError(t, err)
	assert.Nil(t, op)
}

func TestScheduleDetail_StaleLink(t *testing.T) {
	e := newEnv(t)
	e.schedule(t, model.ScheduleTypeSQLPlan, sqlParams)

	d := NewScheduleDetail(context.Background(), e.deps(creator))

	_, err := d.AutoOpen("/console?scheduleId=1&projectId=99")
	assert.ErrorIs(t, err, detail.ErrStaleNavigation)
	assert.Equal(t, detail.StateClosed, d.View().State)
}

func TestTaskDetail_Actions(t *testing.T) {
	e := newEnv(t)
	sch := e.schedule(t, model.ScheduleTypeDataArchive, archiveParams)
	task, err := e.store.CreateTask(context.Background(), &model.ScheduleTask{
		ScheduleID: sch.ID,
		Status:     model.TaskStatusRunning,
		Log:        "copied 100 rows",
	})
	require.NoError(t, err)

	d := NewTaskDetail(context.Background(), e.deps(creator))
	defer d.Close()
	d.OpenTask(sch.ID, task.ID)
	waitLoaded(t, d.Controller)

	list, err := d.Actions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []actions.Key{actions.KeyPause, actions.KeyStop, actions.KeyView}, actions.Keys(list))

	require.NoError(t, d.Perform(context.Background(), actions.KeyPause))
	require.Eventually(t, func() bool {
		v := d.View()
		return v.Payload != nil && v.Payload.Status == model.TaskStatusPaused
	}, waitFor, tick)

	d.SetTab(TabTaskLog)
	assert.Equal(t, TabTaskLog, d.View().Tab)

	require.NoError(t, d.Perform(context.Background(), actions.KeyStop))
	require.Eventually(t, func() bool {
		v := d.View()
		return v.Payload != nil && v.Payload.Status == model.TaskStatusCanceled && !v.Polling
	}, waitFor, tick)
	assert.ErrorIs(t, d.Perform(context.Background(), actions.KeyStop), actions.ErrActionNotPermitted)
}

func TestTaskDetail_PauseNotOfferedForSQLPlan(t *testing.T) {
	e := newEnv(t)
	sch := e.schedule(t, model.ScheduleTypeSQLPlan, sqlParams)
	task, err := e.store.CreateTask(context.Background(), &model.ScheduleTask{ScheduleID: sch.ID, Status: model.TaskStatusRunning})
	require.NoError(t, err)

	d := NewTaskDetail(context.Background(), e.deps(creator))
	defer d.Close()
	d.OpenTask(sch.ID, task.ID)
	waitLoaded(t, d.Controller)

	list, err := d.Actions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []actions.Key{actions.KeyStop, actions.KeyView}, actions.Keys(list))
}

func TestDeepLinkRouting(t *testing.T) {
	e := newEnv(t)
	sch := e.schedule(t, model.ScheduleTypeDataArchive, archiveParams)
	task, err := e.store.CreateTask(context.Background(), &model.ScheduleTask{ScheduleID: sch.ID})
	require.NoError(t, err)

	deps := e.deps(creator)
	deps.Pending = detail.NewMailbox[string]()
	schedules := NewScheduleDetail(context.Background(), deps)
	tasks := NewTaskDetail(context.Background(), deps)
	defer tasks.Close()

	link := "/console?scheduleId=1&subTaskId=1"
	_, err = schedules.AutoOpen(link)
	require.NoError(t, err)
	_, err = tasks.AutoOpen(link)
	require.NoError(t, err)

	assert.Equal(t, detail.StateClosed, schedules.View().State)
	waitLoaded(t, tasks.Controller)
	assert.Equal(t, detail.Target{ID: task.ID, ParentID: sch.ID}, tasks.View().Target)
}

func TestPendingOperation_SurvivesOtherScreen(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sch := e.schedule(t, model.ScheduleTypeDataArchive, archiveParams)
	task, err := e.store.CreateTask(ctx, &model.ScheduleTask{ScheduleID: sch.ID})
	require.NoError(t, err)
	ops, err := e.store.ListOperations(ctx, sch.ID)
	require.NoError(t, err)

	deps := e.deps(creator)
	deps.Pending = detail.NewMailbox[string]()
	schedules := NewScheduleDetail(ctx, deps)
	defer schedules.Close()
	tasks := NewTaskDetail(ctx, deps)
	defer tasks.Close()

	schedules.OpenSchedule(sch.ID, detail.WithPendingOperation(ops[0].ID))
	waitLoaded(t, schedules.Controller)

	tasks.OpenTask(sch.ID, task.ID)
	waitLoaded(t, tasks.Controller)
	tasks.Close()

	op, err := schedules.PendingOperation(ctx)
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, ops[0].ID, op.ID)
}

func TestTaskList_StopsWhenNothingActive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sch := e.schedule(t, model.ScheduleTypeDataArchive, archiveParams)
	running, err := e.store.CreateTask(ctx, &model.ScheduleTask{ScheduleID: sch.ID, Status: model.TaskStatusRunning})
	require.NoError(t, err)
	_, err = e.store.CreateTask(ctx, &model.ScheduleTask{ScheduleID: sch.ID, Status: model.TaskStatusDone})
	require.NoError(t, err)

	l := NewTaskList(ctx, e.deps(creator))
	defer l.Close()

	pages := make(chan *model.Page[model.ScheduleTask], 10)
	unsubscribe := l.Subscribe(func(p *model.Page[model.ScheduleTask]) { pages <- p })
	defer unsubscribe()

	l.Show(ListQuery{ScheduleID: sch.ID})

	select {
	case p := <-pages:
		assert.Equal(t, 2, p.Total)
	case <-time.After(waitFor):
		t.Fatal("no page delivered")
	}
	assert.True(t, l.Polling())
	require.NotNil(t, l.Page())

	require.NoError(t, e.store.MutateTask(ctx, sch.ID, running.ID, api.TaskStop))
	l.Refresh()

	require.Eventually(t, func() bool { return !l.Polling() }, waitFor, tick)
	assert.Equal(t, model.TaskStatusCanceled, l.Page().Contents[1].Status)

	// Refresh restarts a stopped list for one more fetch
	l.Refresh()
	select {
	case <-pages:
	case <-time.After(waitFor):
	}
	select {
	case <-pages:
	case <-time.After(waitFor):
		t.Fatal("refresh did not fetch")
	}
}

func TestColorNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewColorNotifier(&buf)

	n.Notify(LevelInfo, "Disable schedule 1 succeeded")
	n.Notify(LevelError, "Terminate schedule 1 failed: conflict")

	assert.Equal(t, "✓ Disable schedule 1 succeeded\n✗ Terminate schedule 1 failed: conflict\n", buf.String())
}

func TestPerform_UnknownKeyIsNotPermitted(t *testing.T) {
	deps := Deps{Notifier: &recordingNotifier{}, Logger: &logger.NoOpLogger{}}.withDefaults()
	err := deps.perform(context.Background(), "schedule 1", nil, actions.Key("LAUNCH"), func(context.Context) error {
		return errors.New("must not be called")
	})
	assert.ErrorIs(t, err, actions.ErrActionNotPermitted)
}
