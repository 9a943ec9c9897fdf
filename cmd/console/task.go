package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muaviaUsmani/opsconsole/internal/actions"
	"github.com/muaviaUsmani/opsconsole/internal/console"
	"github.com/muaviaUsmani/opsconsole/internal/detail"
	"github.com/muaviaUsmani/opsconsole/internal/model"
)

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect and operate on a schedule's sub-tasks",
	}
	cmd.AddCommand(taskWatchCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskActCmd())
	return cmd
}

func parseTaskArgs(args []string) (scheduleID, taskID int64, err error) {
	if scheduleID, err = parseID("schedule id", args[0]); err != nil {
		return 0, 0, err
	}
	if taskID, err = parseID("sub-task id", args[1]); err != nil {
		return 0, 0, err
	}
	return scheduleID, taskID, nil
}

func openTask(ctx context.Context, scheduleID, taskID int64) (*console.TaskDetail, *model.ScheduleTask, error) {
	screen := console.NewTaskDetail(ctx, current.deps)
	screen.OpenTask(scheduleID, taskID)

	view, err := waitLoaded(ctx, screen.Controller, waitTimeout)
	if err != nil {
		screen.Close()
		return nil, nil, fmt.Errorf("sub-task %d/%d: %w", scheduleID, taskID, err)
	}
	return screen, view.Payload, nil
}

func printTaskPage(ctx context.Context, scheduleID int64, page, size int) error {
	p, err := current.deps.API.ListScheduleTasks(ctx, scheduleID, page, size)
	if err != nil {
		return err
	}
	console.RenderTaskPage(current.out, p)
	return nil
}

func taskWatchCmd() *cobra.Command {
	var tab string

	cmd := &cobra.Command{
		Use:   "watch <schedule-id> <sub-task-id>",
		Short: "Show a sub-task and follow it while it runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduleID, taskID, err := parseTaskArgs(args)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			screen, _, err := openTask(ctx, scheduleID, taskID)
			if err != nil {
				return err
			}
			defer screen.Close()
			if tab != "" {
				screen.SetTab(detail.Tab(strings.ToUpper(tab)))
			}

			return watchViews(ctx, screen.Controller, func(v detail.View[*model.ScheduleTask]) error {
				console.RenderTask(current.out, v.Payload, v.Tab)
				if v.Tab == console.TabTaskBasicInfo {
					if list, err := screen.Actions(ctx); err == nil {
						console.RenderActions(current.out, list)
					}
				}
				if !v.Polling {
					fmt.Fprintln(current.out, "(settled, no longer refreshing)")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tab, "tab", "", "Tab to show: basic_info, log or result")
	return cmd
}

func taskListCmd() *cobra.Command {
	var (
		page  int
		size  int
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "list <schedule-id>",
		Short: "List a schedule's sub-tasks, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduleID, err := parseID("schedule id", args[0])
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if !watch {
				return printTaskPage(ctx, scheduleID, page, size)
			}

			list := console.NewTaskList(ctx, current.deps)
			defer list.Close()

			pages := make(chan *model.Page[model.ScheduleTask], 4)
			unsubscribe := list.Subscribe(func(p *model.Page[model.ScheduleTask]) {
				select {
				case pages <- p:
				default:
				}
			})
			defer unsubscribe()

			list.Show(console.ListQuery{ScheduleID: scheduleID, Page: page, Size: size})
			for {
				select {
				case <-ctx.Done():
					return nil
				case p := <-pages:
					console.RenderTaskPage(current.out, p)
					if !list.Polling() {
						fmt.Fprintln(current.out, "(no active sub-tasks, no longer refreshing)")
						return nil
					}
				}
			}
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&size, "size", 10, "Sub-tasks per page")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep refreshing while any listed sub-task is active")
	return cmd
}

func taskActCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "act <schedule-id> <sub-task-id> <action>",
		Short: "Perform an action (execute, pause, resume, retry, stop)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduleID, taskID, err := parseTaskArgs(args[:2])
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			screen, _, err := openTask(ctx, scheduleID, taskID)
			if err != nil {
				return err
			}
			defer screen.Close()

			if err := screen.Perform(ctx, actions.Key(strings.ToUpper(args[2]))); err != nil {
				return err
			}
			task, err := current.deps.API.GetScheduleTask(ctx, scheduleID, taskID)
			if err != nil {
				return err
			}
			console.RenderTask(current.out, task, console.TabTaskBasicInfo)
			return nil
		},
	}
}
