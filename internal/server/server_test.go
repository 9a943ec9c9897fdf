package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muaviaUsmani/opsconsole/internal/api"
	"github.com/muaviaUsmani/opsconsole/internal/logger"
	"github.com/muaviaUsmani/opsconsole/internal/model"
	"github.com/muaviaUsmani/opsconsole/internal/store"
)

func setupServer(t *testing.T) (*httptest.Server, *store.RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := store.NewRedisStoreWithClient(client)
	st.SetLogger(&logger.NoOpLogger{})

	ts := httptest.NewServer(New(st, &logger.NoOpLogger{}).Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func seedSchedule(t *testing.T, st *store.RedisStore, approvers ...int64) *model.Schedule {
	t.Helper()
	sch, err := st.CreateSchedule(context.Background(), &model.Schedule{
		Name:       "nightly",
		Type:       model.ScheduleTypeSQLPlan,
		ProjectID:  3,
		Creator:    model.User{ID: 7, Name: "alice"},
		Trigger:    model.Trigger{Cron: "0 2 * * *"},
		Parameters: []byte(`{"databaseName":"orders","sqlContent":"select 1"}`),
	}, approvers)
	require.NoError(t, err)
	return sch
}

func do(t *testing.T, method, url, body string, headers map[string]string) (int, Envelope) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestGetSchedule(t *testing.T) {
	ts, st := setupServer(t)
	sch := seedSchedule(t, st)

	status, env := do(t, http.MethodGet, ts.URL+"/api/v1/schedules/1", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, env.Error)

	var got model.Schedule
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, sch.ID, got.ID)
	assert.Equal(t, model.ScheduleStatusEnabled, got.Status)
}

func TestErrorMapping(t *testing.T) {
	ts, st := setupServer(t)
	seedSchedule(t, st)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"missing schedule", http.MethodGet, "/api/v1/schedules/99", http.StatusNotFound, api.CodeNotFound},
		{"bad id", http.MethodGet, "/api/v1/schedules/abc", http.StatusBadRequest, api.CodeInvalidArgument},
		{"negative id", http.MethodGet, "/api/v1/schedules/-1", http.StatusBadRequest, api.CodeInvalidArgument},
		{"unknown action", http.MethodPost, "/api/v1/schedules/1/explode", http.StatusBadRequest, api.CodeInvalidArgument},
		{"illegal transition", http.MethodPost, "/api/v1/schedules/1/enable", http.StatusConflict, api.CodeConflict},
		{"missing task", http.MethodGet, "/api/v1/schedules/1/tasks/5", http.StatusNotFound, api.CodeNotFound},
		{"bad page", http.MethodGet, "/api/v1/schedules/1/tasks?page=x", http.StatusBadRequest, api.CodeInvalidArgument},
		{"zero page", http.MethodGet, "/api/v1/schedules/1/tasks?page=0", http.StatusBadRequest, api.CodeInvalidArgument},
		{"missing flow", http.MethodGet, "/api/v1/flows/12", http.StatusNotFound, api.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, tt.method, ts.URL+tt.path, "", nil)
			assert.Equal(t, tt.wantStatus, status)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			assert.Empty(t, env.Data)
		})
	}
}

func TestMutateSchedule_RecordsActor(t *testing.T) {
	ts, st := setupServer(t)
	sch := seedSchedule(t, st)

	headers := map[string]string{HeaderUserID: "7", HeaderUserName: "alice"}
	status, env := do(t, http.MethodPost, ts.URL+"/api/v1/schedules/1/disable", "", headers)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true}`, string(env.Data))

	ops, err := st.ListOperations(context.Background(), sch.ID)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, model.OperationPause, ops[0].Type)
	assert.Equal(t, model.User{ID: 7, Name: "alice"}, ops[0].Creator)

	status, env = do(t, http.MethodGet, ts.URL+"/api/v1/schedules/1/operations", "", nil)
	require.Equal(t, http.StatusOK, status)
	var listed []model.Operation
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed, 2)
	assert.Equal(t, "PAUSE", listed[0].After["status"])
}

func TestDeleteThenNotFound(t *testing.T) {
	ts, st := setupServer(t)
	seedSchedule(t, st)

	status, _ := do(t, http.MethodPost, ts.URL+"/api/v1/schedules/1/delete", "", nil)
	require.Equal(t, http.StatusOK, status)

	status, env := do(t, http.MethodGet, ts.URL+"/api/v1/schedules/1", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, api.CodeNotFound, env.Error.Code)
}

func TestTasks(t *testing.T) {
	ts, st := setupServer(t)
	sch := seedSchedule(t, st)
	for i := 0; i < 3; i++ {
		_, err := st.CreateTask(context.Background(), &model.ScheduleTask{ScheduleID: sch.ID})
		require.NoError(t, err)
	}

	status, env := do(t, http.MethodGet, ts.URL+"/api/v1/schedules/1/tasks?page=1&size=2", "", nil)
	require.Equal(t, http.StatusOK, status)
	var page model.Page[model.ScheduleTask]
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Contents, 2)

	status, _ = do(t, http.MethodPost, ts.URL+"/api/v1/schedules/1/tasks/3/execute", "", nil)
	require.Equal(t, http.StatusOK, status)

	status, env = do(t, http.MethodGet, ts.URL+"/api/v1/schedules/1/tasks/3", "", nil)
	require.Equal(t, http.StatusOK, status)
	var task model.ScheduleTask
	require.NoError(t, json.Unmarshal(env.Data, &task))
	assert.Equal(t, model.TaskStatusRunning, task.Status)

	status, env = do(t, http.MethodPost, ts.URL+"/api/v1/schedules/1/tasks/3/resume", "", nil)
	assert.Equal(t, http.StatusConflict, status)
	require.NotNil(t, env.Error)
}

func TestApprove(t *testing.T) {
	ts, st := setupServer(t)
	sch := seedSchedule(t, st, 9)

	status, env := do(t, http.MethodGet, ts.URL+"/api/v1/flows/1", "", nil)
	require.Equal(t, http.StatusOK, status)
	var flow model.FlowDetail
	require.NoError(t, json.Unmarshal(env.Data, &flow))
	assert.Equal(t, model.FlowStatusApproving, flow.Status)

	status, env = do(t, http.MethodPost, ts.URL+"/api/v1/flows/1/pass", `{"comment":"ship it"}`,
		map[string]string{HeaderUserID: "9"})
	require.Equal(t, http.StatusOK, status, env.Error)

	got, err := st.GetSchedule(context.Background(), sch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScheduleStatusEnabled, got.Status)
	assert.False(t, got.Approvable)

	status, _ = do(t, http.MethodPost, ts.URL+"/api/v1/flows/1/pass", "", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = do(t, http.MethodPost, ts.URL+"/api/v1/flows/1/pass", `{"comment":`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

type panickingBackend struct {
	api.ScheduleAPI
}

func (panickingBackend) GetSchedule(context.Context, int64) (*model.Schedule, error) {
	panic("boom")
}

func TestPanicRecovered(t *testing.T) {
	ts := httptest.NewServer(New(panickingBackend{}, &logger.NoOpLogger{}).Handler())
	defer ts.Close()

	status, env := do(t, http.MethodGet, ts.URL+"/api/v1/schedules/1", "", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, api.CodeInternal, env.Error.Code)
	assert.Equal(t, "internal error", env.Error.Message)
}

func TestHealthz(t *testing.T) {
	ts, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
