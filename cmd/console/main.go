// Package main provides the operations console CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muaviaUsmani/opsconsole/internal/config"
	"github.com/muaviaUsmani/opsconsole/internal/console"
	"github.com/muaviaUsmani/opsconsole/internal/detail"
	"github.com/muaviaUsmani/opsconsole/internal/logger"
	"github.com/muaviaUsmani/opsconsole/internal/metrics"
	"github.com/muaviaUsmani/opsconsole/internal/model"
	"github.com/muaviaUsmani/opsconsole/pkg/client"
)

// app holds what every command needs once configuration is loaded
type app struct {
	cfg  *config.Config
	log  logger.Logger
	out  io.Writer
	deps console.Deps
}

var (
	current *app

	apiURL      string
	viewerID    int64
	waitTimeout time.Duration
	showMetrics bool
)

var rootCmd = &cobra.Command{
	Use:   "console",
	Short: "Operations console for schedules and sub-tasks",
	Long: `Operations console for schedules and sub-tasks.

Detail views refresh while the record is active and stop once it settles.

Examples:
  console schedule watch 101
  console schedule act 101 disable
  console schedule operations 101
  console task list 101 --page 2
  console task act 101 7 retry
  console open "https://console.local/schedules?scheduleId=101&operationId=..."`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		current = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if current == nil {
			return
		}
		if showMetrics {
			data, _ := json.MarshalIndent(metrics.GetMetrics(), "", "  ")
			fmt.Fprintln(current.out, string(data))
		}
		if err := current.log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "API base URL (overrides API_BASE_URL)")
	rootCmd.PersistentFlags().Int64Var(&viewerID, "viewer", 0, "Act as this user ID (overrides VIEWER_ID)")
	rootCmd.PersistentFlags().DurationVar(&waitTimeout, "wait", 30*time.Second, "How long to wait for a record to load")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "Print polling and action metrics on exit")

	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(openCmd())
}

func newApp(out io.Writer) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if apiURL != "" {
		cfg.APIBaseURL = apiURL
	}
	if viewerID != 0 {
		cfg.Viewer.ID = viewerID
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetDefault(log)
	cliLog := log.WithComponent(logger.ComponentCLI)

	c := client.NewClient(cfg.APIBaseURL,
		client.WithTimeout(cfg.RequestTimeout),
		client.WithActor(model.User{ID: cfg.Viewer.ID, Name: cfg.Viewer.Name}),
		client.WithLogger(log))

	cliLog.Debug("Console starting", "api", cfg.APIBaseURL, "viewer_id", cfg.Viewer.ID)

	return &app{
		cfg: cfg,
		log: cliLog,
		out: out,
		deps: console.Deps{
			API:            c,
			Viewer:         cfg.Viewer,
			Notifier:       console.NewColorNotifier(out),
			Metrics:        metrics.Default(),
			Logger:         log,
			DetailInterval: cfg.DetailPollInterval,
			ListInterval:   cfg.ListPollInterval,
			Pending:        detail.NewMailbox[string](),
		},
	}, nil
}

// signalContext is cancelled on interrupt
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// waitLoaded blocks until c has loaded its record or wait elapses
func waitLoaded[P any](ctx context.Context, c *detail.Controller[P], wait time.Duration) (detail.View[P], error) {
	loaded := make(chan detail.View[P], 1)
	unsubscribe := c.Subscribe(func(v detail.View[P]) {
		if v.State != detail.StateLoaded {
			return
		}
		select {
		case loaded <- v:
		default:
		}
	})
	defer unsubscribe()

	if v := c.View(); v.State == detail.StateLoaded {
		return v, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case v := <-loaded:
		return v, nil
	case <-timer.C:
		var zero detail.View[P]
		return zero, fmt.Errorf("record did not load within %s", wait)
	case <-ctx.Done():
		var zero detail.View[P]
		return zero, ctx.Err()
	}
}

// watchViews renders every loaded view until the record settles or ctx ends.
// Bursts of changes collapse into one render of the latest view.
func watchViews[P any](ctx context.Context, c *detail.Controller[P], render func(detail.View[P]) error) error {
	changed := make(chan struct{}, 1)
	unsubscribe := c.Subscribe(func(detail.View[P]) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	var last uint64
	handle := func(v detail.View[P]) (bool, error) {
		if v.State != detail.StateLoaded || v.Version <= last {
			return false, nil
		}
		last = v.Version
		if err := render(v); err != nil {
			return true, err
		}
		return !v.Polling, nil
	}

	for {
		if done, err := handle(c.View()); done || err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
