// Package poller runs a worker function periodically until it is destroyed,
// its context is cancelled, or the worker itself decides to stop.
//
// A Poller owns at most one goroutine at a time. Invocations never overlap: a
// tick that comes due while a call is in flight is delivered once, right after
// that call returns. Calling Loop on a running poller only replaces the
// arguments used by the next tick.
package poller

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/muaviaUsmani/opsconsole/internal/errors"
	"github.com/muaviaUsmani/opsconsole/internal/logger"
	"github.com/muaviaUsmani/opsconsole/internal/metrics"
)

// Func is the unit of periodic work. count numbers the calls of the current
// run, starting at 1 each time the poller is (re)started.
type Func[A any] func(ctx context.Context, args A, count int) error

// Ticker is the clock driving a run. *time.Ticker satisfies it through StdTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates the Ticker for one run
type TickerFactory func(interval time.Duration) Ticker

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// StdTicker is the default TickerFactory backed by time.NewTicker
func StdTicker(interval time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(interval)}
}

type options struct {
	name      string
	newTicker TickerFactory
	log       logger.Logger
	metrics   *metrics.Collector
}

// Option configures a Poller
type Option func(*options)

// WithTicker replaces the clock, mainly for tests
func WithTicker(f TickerFactory) Option {
	return func(o *options) { o.newTicker = f }
}

// WithName labels the poller in log lines
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger used for worker failures
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics sets the collector that receives tick and failure counts
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// Poller periodically invokes a Func with the latest arguments passed to Loop
type Poller[A any] struct {
	ctx      context.Context
	fn       Func[A]
	factory  func() Func[A]
	interval time.Duration
	opts     options

	mu      sync.Mutex
	args    A
	running bool
	stop    chan struct{}
	done    chan struct{}
	reload  chan struct{}
}

// New creates an idle poller bound to ctx. Cancelling ctx stops it for good.
// It panics if interval is not positive, like time.NewTicker.
func New[A any](ctx context.Context, fn Func[A], interval time.Duration, opts ...Option) *Poller[A] {
	if interval <= 0 {
		panic("poller: non-positive interval")
	}

	o := options{
		newTicker: StdTicker,
		log:       logger.Default().WithComponent(logger.ComponentPoller),
		metrics:   metrics.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Poller[A]{
		ctx:      ctx,
		fn:       fn,
		interval: interval,
		opts:     o,
	}
}

// NewFromFactory creates a poller whose worker is produced by factory on every call
func NewFromFactory[A any](ctx context.Context, factory func() Func[A], interval time.Duration, opts ...Option) *Poller[A] {
	p := New[A](ctx, nil, interval, opts...)
	p.factory = factory
	return p
}

// Loop starts polling with args, or, if already running, makes args the
// arguments of the next tick without touching the schedule.
func (p *Poller[A]) Loop(args A) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.args = args
	if p.running || p.ctx.Err() != nil {
		return
	}

	prev := p.done
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.reload = make(chan struct{}, 1)

	go p.run(prev, p.stop, p.done, p.reload)
}

// Destroy stops scheduling further calls. A call already in flight runs to
// completion. Safe to call repeatedly, before Loop, and from inside the worker.
func (p *Poller[A]) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false
	close(p.stop)
}

// Reload requests one extra call as soon as possible with the latest args.
// Requests made while one is already pending are merged. It reports false if
// the poller is not running.
func (p *Poller[A]) Reload() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return false
	}
	select {
	case p.reload <- struct{}{}:
	default:
	}
	return true
}

// Running reports whether the poller is scheduled to make further calls
func (p *Poller[A]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Done returns a channel closed when the latest run's goroutine has exited
func (p *Poller[A]) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.done
}

func (p *Poller[A]) run(prev <-chan struct{}, stop <-chan struct{}, done chan struct{}, reload <-chan struct{}) {
	defer close(done)
	defer p.finish(stop)

	// The previous run's in-flight call must settle first
	if prev != nil {
		select {
		case <-prev:
		case <-stop:
			return
		case <-p.ctx.Done():
			return
		}
	}

	p.opts.metrics.RecordPollerStarted()
	defer p.opts.metrics.RecordPollerStopped()

	ticker := p.opts.newTicker(p.interval)
	defer ticker.Stop()

	count := 1
	p.invoke(count)

	for {
		select {
		case <-stop:
			return
		case <-p.ctx.Done():
			return
		default:
		}

		select {
		case <-stop:
			return
		case <-p.ctx.Done():
			return
		case <-ticker.C():
		case <-reload:
		}

		// A destroy racing with the tick wins
		select {
		case <-stop:
			return
		default:
		}

		count++
		p.invoke(count)
	}
}

// finish marks the poller idle when a run ends on its own (context cancelled)
func (p *Poller[A]) finish(stop <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-stop:
		// Destroyed; a newer run may already own the poller state
	default:
		p.running = false
		close(p.stop)
	}
}

func (p *Poller[A]) invoke(count int) {
	p.mu.Lock()
	args := p.args
	p.mu.Unlock()

	fn := p.fn
	if p.factory != nil {
		fn = p.factory()
	}

	start := time.Now()
	err := errors.Call(func() error {
		return fn(p.ctx, args, count)
	})

	var panicErr *errors.PanicError
	if stderrors.As(err, &panicErr) {
		p.opts.metrics.RecordPollPanic()
		p.opts.log.Error("Poll worker panicked",
			"poller", p.opts.name,
			"count", count,
			"panic", fmt.Sprintf("%v", panicErr.Value),
			"stack", errors.FormatPanicForLog(panicErr))
		return
	}

	p.opts.metrics.RecordPoll(time.Since(start), err)
	if err != nil {
		p.opts.log.Warn("Poll worker failed",
			"poller", p.opts.name,
			"count", count,
			"error", err)
	}
}
