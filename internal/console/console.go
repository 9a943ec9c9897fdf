// Package console implements the schedule and sub-task screens of the
// operations console: detail views with their action bars, and the
// sub-task list.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/muaviaUsmani/opsconsole/internal/actions"
	"github.com/muaviaUsmani/opsconsole/internal/api"
	"github.com/muaviaUsmani/opsconsole/internal/detail"
	"github.com/muaviaUsmani/opsconsole/internal/logger"
	"github.com/muaviaUsmani/opsconsole/internal/metrics"
	"github.com/muaviaUsmani/opsconsole/internal/model"
	"github.com/muaviaUsmani/opsconsole/internal/poller"
)

var (
	// ErrNotLoaded is returned when a screen needs a record that has not loaded yet
	ErrNotLoaded = errors.New("detail not loaded")

	// ErrNotMutating is returned by Perform for actions handled by the caller (view, edit, clone, share)
	ErrNotMutating = errors.New("action does not call the backend")
)

// Level of a notification
type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// Notifier shows one-shot messages to the operator
type Notifier interface {
	Notify(level Level, message string)
}

// ColorNotifier prints notifications as colored lines
type ColorNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

// NewColorNotifier creates a notifier writing to out
func NewColorNotifier(out io.Writer) *ColorNotifier {
	return &ColorNotifier{out: out}
}

var (
	infoColor  = color.New(color.FgGreen)
	errorColor = color.New(color.FgRed, color.Bold)
)

// Notify writes one line
func (n *ColorNotifier) Notify(level Level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch level {
	case LevelError:
		errorColor.Fprintf(n.out, "✗ %s\n", message)
	default:
		infoColor.Fprintf(n.out, "✓ %s\n", message)
	}
}

// Deps are the collaborators shared by every screen
type Deps struct {
	API      api.ScheduleAPI
	Viewer   model.Viewer
	Notifier Notifier
	Metrics  *metrics.Collector
	Logger   logger.Logger

	// DetailInterval and ListInterval are the polling periods
	DetailInterval time.Duration
	ListInterval   time.Duration

	// Pending is shared by the detail screens so a deep link can hand an
	// operation id to whichever screen opens. Each screen only clears the
	// ids it posted itself.
	Pending       *detail.Mailbox[string]
	PollerOptions []poller.Option
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = NewColorNotifier(io.Discard)
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Default()
	}
	if d.Logger == nil {
		d.Logger = logger.Default()
	}
	d.Logger = d.Logger.WithComponent(logger.ComponentConsole)
	if d.DetailInterval <= 0 {
		d.DetailInterval = 5 * time.Second
	}
	if d.ListInterval <= 0 {
		d.ListInterval = 10 * time.Second
	}
	if d.Pending == nil {
		d.Pending = detail.NewMailbox[string]()
	}
	d.PollerOptions = append([]poller.Option{poller.WithMetrics(d.Metrics)}, d.PollerOptions...)
	return d
}

func (d Deps) actor() model.User {
	return model.User{ID: d.Viewer.ID, Name: d.Viewer.Name}
}

// PerformOption customises Perform
type PerformOption func(*performOptions)

type performOptions struct {
	comment string
}

// WithComment attaches a comment to approval actions
func WithComment(comment string) PerformOption {
	return func(o *performOptions) { o.comment = comment }
}

// perform runs call if key is among the permitted actions. A failure is
// reported once through the notifier and returned; polling is left alone.
func (d Deps) perform(ctx context.Context, subject string, permitted []actions.Descriptor, key actions.Key, call func(context.Context) error) error {
	if err := actions.Permitted(permitted, key); err != nil {
		return err
	}
	desc, _ := actions.Lookup(key)
	if !desc.Mutating || call == nil {
		return fmt.Errorf("%w: %s", ErrNotMutating, key)
	}

	ctx = api.WithActor(ctx, d.actor())
	err := call(ctx)
	d.Metrics.RecordMutation(string(key), err)

	audit := d.Logger.WithSource(logger.LogSourceAudit)
	if err != nil {
		audit.WarnContext(ctx, "Action failed", "action", key, "subject", subject, "error", err)
		d.Notifier.Notify(LevelError, fmt.Sprintf("%s %s failed: %v", desc.Label, subject, err))
		return err
	}

	audit.InfoContext(ctx, "Action performed", "action", key, "subject", subject, "operator", d.Viewer.ID)
	d.Notifier.Notify(LevelInfo, fmt.Sprintf("%s %s succeeded", desc.Label, subject))
	return nil
}
