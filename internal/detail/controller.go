// Package detail tracks which record's detail view is open, on which tab and
// with which payload, and keeps the payload fresh with a poller.
package detail

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/muaviaUsmani/opsconsole/internal/logger"
	"github.com/muaviaUsmani/opsconsole/internal/poller"
)

// State of a detail view
type State int

const (
	StateClosed State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateLoading:
		return "LOADING"
	case StateLoaded:
		return "LOADED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Tab names a detail view tab
type Tab string

// Target identifies the open record. ParentID is the owning schedule for sub-tasks.
type Target struct {
	ID       int64
	ParentID int64
}

// ScheduleID returns the schedule the target belongs to
func (t Target) ScheduleID() int64 {
	if t.ParentID != 0 {
		return t.ParentID
	}
	return t.ID
}

// View is a snapshot of the controller state
type View[P any] struct {
	State  State
	Target Target
	Tab    Tab
	// Payload is the zero value unless State is StateLoaded
	Payload P
	// Polling is true while the record is still active and being refreshed
	Polling bool
	// Version increases with every state change
	Version uint64
}

// Config wires a Controller to its record type
type Config[P any] struct {
	// Fetch loads the record
	Fetch func(ctx context.Context, target Target) (P, error)
	// Active reports whether polling should continue for the payload
	Active func(P) bool
	// DefaultTab is selected on open and restored on close
	DefaultTab Tab
	// Interval is the polling period
	Interval time.Duration
	// LinkTarget maps a deep link to a target; ok=false ignores the link
	LinkTarget func(DeepLink) (Target, bool)
	// CanAccess rejects stale deep links before any fetch. Nil allows all.
	CanAccess func(DeepLink) bool
	// Pending is the shared pending-operation mailbox; nil gives the controller its own
	Pending *Mailbox[string]
	// PollerOptions are passed to every poller the controller starts
	PollerOptions []poller.Option
	Logger        logger.Logger
}

// OpenOption customises Open
type OpenOption func(*openOptions)

type openOptions struct {
	pendingOperation string
}

// WithPendingOperation marks an operation record to be auto-opened once the detail loads
func WithPendingOperation(id string) OpenOption {
	return func(o *openOptions) { o.pendingOperation = id }
}

// Controller is the detail view state machine
type Controller[P any] struct {
	ctx context.Context
	cfg Config[P]
	log logger.Logger

	mu          sync.Mutex
	state       State
	target      Target
	payload     P
	tab         Tab
	version     uint64
	generation  uint64
	poll        *poller.Poller[Target]
	autoOpened  bool
	subscribers map[int]func(View[P])
	nextSubID   int
}

// NewController creates a closed controller. Pollers it starts are bound to ctx.
func NewController[P any](ctx context.Context, cfg Config[P]) *Controller[P] {
	if cfg.Pending == nil {
		cfg.Pending = NewMailbox[string]()
	}
	if cfg.Active == nil {
		cfg.Active = func(P) bool { return false }
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.LinkTarget == nil {
		cfg.LinkTarget = func(l DeepLink) (Target, bool) { return Target{ID: l.ScheduleID}, true }
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	return &Controller[P]{
		ctx:         ctx,
		cfg:         cfg,
		log:         log.WithComponent(logger.ComponentDetail),
		tab:         cfg.DefaultTab,
		subscribers: make(map[int]func(View[P])),
	}
}

// Open shows target, closing any record that is already open
func (c *Controller[P]) Open(target Target, opts ...OpenOption) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	c.closeLocked()

	if o.pendingOperation != "" {
		c.cfg.Pending.PostAs(c, o.pendingOperation)
	}

	c.state = StateLoading
	c.target = target
	c.generation++
	c.version++
	c.poll = c.newPoller(c.generation)
	c.poll.Loop(target)
	view := c.viewLocked()
	c.mu.Unlock()

	c.log.Debug("Detail opened", "id", target.ID, "parent_id", target.ParentID)
	c.publish(view)
}

// Close destroys the poller, drops the payload, restores the default tab and
// clears the pending operation this controller posted. Safe to call repeatedly.
func (c *Controller[P]) Close() {
	c.mu.Lock()
	changed := c.closeLocked()
	view := c.viewLocked()
	c.mu.Unlock()

	if changed {
		c.publish(view)
	}
}

func (c *Controller[P]) closeLocked() bool {
	if c.poll != nil {
		c.poll.Destroy()
		c.poll = nil
	}
	c.cfg.Pending.ClearFor(c)

	if c.state == StateClosed && c.tab == c.cfg.DefaultTab {
		return false
	}

	var zero P
	c.payload = zero
	c.state = StateClosed
	c.target = Target{}
	c.tab = c.cfg.DefaultTab
	c.generation++
	c.version++
	return true
}

// SetTab switches tabs without refetching. Ignored while closed.
func (c *Controller[P]) SetTab(tab Tab) {
	c.mu.Lock()
	if c.state == StateClosed || c.tab == tab {
		c.mu.Unlock()
		return
	}
	c.tab = tab
	c.version++
	view := c.viewLocked()
	c.mu.Unlock()

	c.publish(view)
}

// Reload requests an immediate fetch, restarting polling if it had stopped
// because the record became inactive. It reports false while closed.
func (c *Controller[P]) Reload() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed || c.poll == nil {
		return false
	}
	if c.poll.Reload() {
		return true
	}
	c.poll.Loop(c.target)
	return c.poll.Running()
}

// TakePendingOperation returns the operation marked for auto-open and clears it.
// Operations posted by another controller sharing the mailbox are left alone.
func (c *Controller[P]) TakePendingOperation() (string, bool) {
	return c.cfg.Pending.TakeFor(c)
}

// View returns the current snapshot
func (c *Controller[P]) View() View[P] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller[P]) viewLocked() View[P] {
	return View[P]{
		State:   c.state,
		Target:  c.target,
		Tab:     c.tab,
		Payload: c.payload,
		Polling: c.poll != nil && c.poll.Running(),
		Version: c.version,
	}
}

// Subscribe registers fn to receive a snapshot after every state change.
// Snapshots may arrive from the poller goroutine; compare Version to drop stale ones.
func (c *Controller[P]) Subscribe(fn func(View[P])) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *Controller[P]) publish(view View[P]) {
	c.mu.Lock()
	subs := make([]func(View[P]), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(view)
	}
}

// AutoOpen opens the record referenced by rawURL's deep-link parameters the
// first time it is called, and returns the URL with those parameters removed.
// A link the viewer cannot access yields ErrStaleNavigation and nothing is fetched.
func (c *Controller[P]) AutoOpen(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, fmt.Errorf("invalid navigation URL: %w", err)
	}
	stripped := StripDeepLink(u).String()

	c.mu.Lock()
	already := c.autoOpened
	c.autoOpened = true
	c.mu.Unlock()
	if already {
		return stripped, nil
	}

	link, ok, err := ParseDeepLink(u)
	if err != nil {
		return stripped, err
	}
	if !ok {
		return stripped, nil
	}
	if c.cfg.CanAccess != nil && !c.cfg.CanAccess(link) {
		c.log.Warn("Rejected stale navigation link", "schedule_id", link.ScheduleID, "project_id", link.ProjectID)
		return stripped, fmt.Errorf("%w: schedule %d", ErrStaleNavigation, link.ScheduleID)
	}

	target, ok := c.cfg.LinkTarget(link)
	if !ok {
		return stripped, nil
	}

	var opts []OpenOption
	if link.OperationID != "" {
		opts = append(opts, WithPendingOperation(link.OperationID))
	}
	c.Open(target, opts...)
	return stripped, nil
}

// newPoller builds the poller for one open generation. Results from an older
// generation are discarded and stop their poller.
func (c *Controller[P]) newPoller(gen uint64) *poller.Poller[Target] {
	var p *poller.Poller[Target]

	work := func(ctx context.Context, target Target, count int) error {
		ctx = logger.ContextWithSchedule(ctx, target.ScheduleID())
		if target.ParentID != 0 {
			ctx = logger.ContextWithTask(ctx, target.ID)
		}

		payload, err := c.cfg.Fetch(ctx, target)
		if err != nil {
			c.log.WarnContext(ctx, "Detail fetch failed", "count", count, "error", err)
			return err
		}

		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			p.Destroy()
			return nil
		}
		c.payload = payload
		c.state = StateLoaded
		c.version++
		if !c.cfg.Active(payload) {
			p.Destroy()
		}
		view := c.viewLocked()
		c.mu.Unlock()

		c.publish(view)
		return nil
	}

	opts := append([]poller.Option{
		poller.WithName(fmt.Sprintf("detail-%d", gen)),
		poller.WithLogger(c.log),
	}, c.cfg.PollerOptions...)
	p = poller.New[Target](c.ctx, work, c.cfg.Interval, opts...)
	return p
}
