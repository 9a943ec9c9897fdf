package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muaviaUsmani/opsconsole/internal/api"
	"github.com/muaviaUsmani/opsconsole/internal/logger"
	"github.com/muaviaUsmani/opsconsole/internal/model"
	"github.com/muaviaUsmani/opsconsole/internal/server"
	"github.com/muaviaUsmani/opsconsole/internal/store"
)

func setup(t *testing.T, opts ...Option) (*Client, *store.RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	st := store.NewRedisStoreWithClient(rc)
	st.SetLogger(&logger.NoOpLogger{})

	ts := httptest.NewServer(server.New(st, &logger.NoOpLogger{}).Handler())
	t.Cleanup(ts.Close)

	opts = append([]Option{WithLogger(&logger.NoOpLogger{})}, opts...)
	return NewClient(ts.URL+"/", opts...), st
}

func createSchedule(t *testing.T, st *store.RedisStore, approvers ...int64) *model.Schedule {
	t.Helper()
	sch, err := st.CreateSchedule(context.Background(), &model.Schedule{
		Name:       "archive",
		Type:       model.ScheduleTypeDataArchive,
		ProjectID:  3,
		Creator:    model.User{ID: 7, Name: "alice"},
		Trigger:    model.Trigger{Cron: "0 2 * * *"},
		Parameters: []byte(`{"sourceDatabase":"orders","targetDatabase":"archive","tables":["t1"]}`),
	}, approvers)
	require.NoError(t, err)
	return sch
}

func TestClient_ReadsAndMutations(t *testing.T) {
	c, st := setup(t, WithActor(model.User{ID: 7, Name: "alice"}))
	ctx := context.Background()
	sch := createSchedule(t, st)

	got, err := c.GetSchedule(ctx, sch.ID)
	require.NoError(t, err)
	assert.Equal(t, "archive", got.Name)
	content, err := got.Content()
	require.NoError(t, err)
	assert.IsType(t, model.DataArchive{}, content)

	require.NoError(t, c.MutateSchedule(ctx, sch.ID, api.ScheduleDisable))
	got, err = c.GetSchedule(ctx, sch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScheduleStatusPause, got.Status)

	ops, err := c.ListOperations(ctx, sch.ID)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, model.OperationPause, ops[0].Type)
	assert.Equal(t, int64(7), ops[0].Creator.ID)
	assert.Equal(t, "ENABLED", ops[0].Before["status"])

	err = c.MutateSchedule(ctx, sch.ID, api.ScheduleDisable)
	assert.ErrorIs(t, err, api.ErrConflict)
}

func TestClient_ContextActorWins(t *testing.T) {
	c, st := setup(t, WithActor(model.User{ID: 7, Name: "alice"}))
	sch := createSchedule(t, st)

	ctx := api.WithActor(context.Background(), model.User{ID: 11, Name: "dave"})
	require.NoError(t, c.MutateSchedule(ctx, sch.ID, api.ScheduleStop))

	ops, err := c.ListOperations(ctx, sch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.User{ID: 11, Name: "dave"}, ops[0].Creator)
}

func TestClient_Tasks(t *testing.T) {
	c, st := setup(t)
	ctx := context.Background()
	sch := createSchedule(t, st)

	task, err := st.CreateTask(ctx, &model.ScheduleTask{ScheduleID: sch.ID, Status: model.TaskStatusRunning})
	require.NoError(t, err)

	page, err := c.ListScheduleTasks(ctx, sch.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Contents, 1)

	require.NoError(t, c.MutateTask(ctx, sch.ID, task.ID, api.TaskPause))
	got, err := c.GetScheduleTask(ctx, sch.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusPaused, got.Status)

	_, err = c.GetScheduleTask(ctx, sch.ID, 999)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestClient_Approval(t *testing.T) {
	c, st := setup(t, WithActor(model.User{ID: 9, Name: "bob"}))
	ctx := context.Background()
	sch := createSchedule(t, st, 9)

	flow, err := c.GetFlowDetail(ctx, sch.ApproveInstanceID)
	require.NoError(t, err)
	assert.True(t, flow.IsCandidate(9))

	require.NoError(t, c.Approve(ctx, flow.ID, api.ApprovalRefuse, "not this quarter"))

	flow, err = c.GetFlowDetail(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FlowStatusRejected, flow.Status)
	assert.Equal(t, "not this quarter", flow.Nodes[len(flow.Nodes)-1].Comment)

	got, err := c.GetSchedule(ctx, sch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScheduleStatusCanceled, got.Status)
}

func TestClient_NotFound(t *testing.T) {
	c, _ := setup(t)

	_, err := c.GetSchedule(context.Background(), 404)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestClient_CollapsesConcurrentReads(t *testing.T) {
	var hits int32
	entered := make(chan struct{}, 1)
	release := make(chan struct{})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":1,"name":"shared","type":"SQL_PLAN","status":"ENABLED"}}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, WithLogger(&logger.NoOpLogger{}))

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*model.Schedule, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sch, err := c.GetSchedule(context.Background(), 1)
			if err == nil {
				results[i] = sch
			}
		}(i)
	}

	<-entered
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	for _, sch := range results {
		require.NotNil(t, sch)
		assert.Equal(t, "shared", sch.Name)
	}
	// Each caller decodes its own copy
	assert.NotSame(t, results[0], results[1])
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	c := NewClient(ts.URL, WithTimeout(50*time.Millisecond), WithLogger(&logger.NoOpLogger{}))

	start := time.Now()
	_, err := c.GetSchedule(context.Background(), 1)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewClient_TimeoutOptionOrder(t *testing.T) {
	tests := []struct {
		name  string
		order func(hc *http.Client) []Option
	}{
		{"timeout first", func(hc *http.Client) []Option {
			return []Option{WithTimeout(3 * time.Second), WithHTTPClient(hc)}
		}},
		{"client first", func(hc *http.Client) []Option {
			return []Option{WithHTTPClient(hc), WithTimeout(3 * time.Second)}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shared := &http.Client{Timeout: time.Minute}
			c := NewClient("http://localhost", tt.order(shared)...)

			assert.Equal(t, 3*time.Second, c.http.Timeout)
			assert.NotSame(t, shared, c.http)
			assert.Equal(t, time.Minute, shared.Timeout, "caller's client is left alone")
		})
	}
}

func TestNewClient_KeepsCallerTimeout(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	c := NewClient("http://localhost", WithHTTPClient(shared))
	assert.Same(t, shared, c.http)
	assert.Equal(t, time.Minute, c.http.Timeout)

	c = NewClient("http://localhost")
	assert.Equal(t, defaultTimeout, c.http.Timeout)
}

func TestClient_UnreadableResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, WithLogger(&logger.NoOpLogger{}))
	err := c.MutateSchedule(context.Background(), 1, api.ScheduleStop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
