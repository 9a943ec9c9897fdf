// Package client is an HTTP implementation of the Task/Schedule API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/muaviaUsmani/opsconsole/internal/api"
	"github.com/muaviaUsmani/opsconsole/internal/logger"
	"github.com/muaviaUsmani/opsconsole/internal/model"
)

// Headers identifying the acting user. They match the server's.
const (
	headerUserID   = "X-User-Id"
	headerUserName = "X-User-Name"
)

const defaultTimeout = 10 * time.Second

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *api.ErrorBody  `json:"error"`
}

// Client talks to the /api/v1 routes. Concurrent identical reads share one request.
type Client struct {
	baseURL string
	http    *http.Client
	actor   *model.User
	log     logger.Logger
	reads   singleflight.Group

	// timeout is applied to a copy of http once all options have run
	timeout time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The client is copied
// if WithTimeout is also given, so hc itself is never modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout, whatever the option order
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithActor sets the user sent with requests whose context carries none
func WithActor(u model.User) Option {
	return func(c *Client) { c.actor = &u }
}

// WithLogger sets the client logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a client for the API rooted at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		log:     logger.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	c.log = c.log.WithComponent(logger.ComponentClient)
	return c
}

// GetSchedule fetches a schedule snapshot
func (c *Client) GetSchedule(ctx context.Context, id int64) (*model.Schedule, error) {
	var sch model.Schedule
	if err := c.get(ctx, "/api/v1/schedules/"+itoa(id), &sch); err != nil {
		return nil, err
	}
	return &sch, nil
}

// GetScheduleTask fetches one sub-task
func (c *Client) GetScheduleTask(ctx context.Context, scheduleID, taskID int64) (*model.ScheduleTask, error) {
	var task model.ScheduleTask
	if err := c.get(ctx, "/api/v1/schedules/"+itoa(scheduleID)+"/tasks/"+itoa(taskID), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListScheduleTasks fetches a page of sub-tasks, newest first
func (c *Client) ListScheduleTasks(ctx context.Context, scheduleID int64, page, size int) (*model.Page[model.ScheduleTask], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	var out model.Page[model.ScheduleTask]
	if err := c.get(ctx, "/api/v1/schedules/"+itoa(scheduleID)+"/tasks?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListOperations fetches the change log, newest first
func (c *Client) ListOperations(ctx context.Context, scheduleID int64) ([]model.Operation, error) {
	var ops []model.Operation
	if err := c.get(ctx, "/api/v1/schedules/"+itoa(scheduleID)+"/operations", &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

// GetFlowDetail fetches an approval flow instance
func (c *Client) GetFlowDetail(ctx context.Context, instanceID int64) (*model.FlowDetail, error) {
	var flow model.FlowDetail
	if err := c.get(ctx, "/api/v1/flows/"+itoa(instanceID), &flow); err != nil {
		return nil, err
	}
	return &flow, nil
}

// MutateSchedule applies a schedule action
func (c *Client) MutateSchedule(ctx context.Context, id int64, action api.ScheduleAction) error {
	return c.post(ctx, "/api/v1/schedules/"+itoa(id)+"/"+string(action), nil)
}

// MutateTask applies a sub-task action
func (c *Client) MutateTask(ctx context.Context, scheduleID, taskID int64, action api.TaskAction) error {
	return c.post(ctx, "/api/v1/schedules/"+itoa(scheduleID)+"/tasks/"+itoa(taskID)+"/"+string(action), nil)
}

// Approve resolves an approval flow
func (c *Client) Approve(ctx context.Context, instanceID int64, action api.ApprovalAction, comment string) error {
	body := map[string]string{"comment": comment}
	return c.post(ctx, "/api/v1/flows/"+itoa(instanceID)+"/"+string(action), body)
}

// get decodes the data of a GET into out. Identical in-flight reads are
// collapsed into one request made with the first caller's context.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	v, err, shared := c.reads.Do(path, func() (interface{}, error) {
		return c.do(ctx, http.MethodGet, path, nil)
	})
	if err != nil {
		return err
	}
	if shared {
		c.log.Debug("Shared in-flight read", "path", path)
	}

	if err := json.Unmarshal(v.(json.RawMessage), out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	_, err := c.do(ctx, http.MethodPost, path, body)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setActor(ctx, req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%s %s: unreadable response (status %d): %w", method, path, resp.StatusCode, err)
	}

	c.log.Debug("API call", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if env.Error != nil {
		return nil, api.FromBody(*env.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return env.Data, nil
}

func (c *Client) setActor(ctx context.Context, req *http.Request) {
	u, ok := api.ActorFrom(ctx)
	if !ok {
		if c.actor == nil {
			return
		}
		u = *c.actor
	}
	req.Header.Set(headerUserID, itoa(u.ID))
	if u.Name != "" {
		req.Header.Set(headerUserName, u.Name)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

var _ api.ScheduleAPI = (*Client)(nil)
