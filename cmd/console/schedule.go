package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muaviaUsmani/opsconsole/internal/actions"
	"github.com/muaviaUsmani/opsconsole/internal/console"
	"github.com/muaviaUsmani/opsconsole/internal/detail"
	"github.com/muaviaUsmani/opsconsole/internal/model"
)

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule",
		Aliases: []string{"sch"},
		Short:   "Inspect and operate on schedules",
	}
	cmd.AddCommand(scheduleWatchCmd())
	cmd.AddCommand(scheduleActCmd())
	cmd.AddCommand(scheduleOperationsCmd())
	return cmd
}

func parseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// openSchedule opens id and waits for the first load
func openSchedule(ctx context.Context, id int64, opts ...detail.OpenOption) (*console.ScheduleDetail, *model.Schedule, error) {
	screen := console.NewScheduleDetail(ctx, current.deps)
	screen.OpenSchedule(id, opts...)

	view, err := waitLoaded(ctx, screen.Controller, waitTimeout)
	if err != nil {
		screen.Close()
		return nil, nil, fmt.Errorf("schedule %d: %w", id, err)
	}
	return screen, view.Payload, nil
}

func printSchedule(ctx context.Context, screen *console.ScheduleDetail, sch *model.Schedule) {
	console.RenderSchedule(current.out, sch)
	list, err := screen.Actions(ctx)
	if err != nil {
		current.log.Warn("Failed to resolve actions", "schedule_id", sch.ID, "error", err)
		return
	}
	console.RenderActions(current.out, list)
}

func scheduleWatchCmd() *cobra.Command {
	var tab string

	cmd := &cobra.Command{
		Use:   "watch <schedule-id>",
		Short: "Show a schedule and follow it while it is active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("schedule id", args[0])
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			screen, _, err := openSchedule(ctx, id)
			if err != nil {
				return err
			}
			defer screen.Close()
			if tab != "" {
				screen.SetTab(detail.Tab(strings.ToUpper(tab)))
			}

			return watchViews(ctx, screen.Controller, func(v detail.View[*model.Schedule]) error {
				switch v.Tab {
				case console.TabOperationRecord:
					ops, err := screen.Operations(ctx)
					if err != nil {
						return err
					}
					console.RenderOperations(current.out, ops)
				case console.TabExecuteRecord:
					return printTaskPage(ctx, id, 1, 10)
				default:
					printSchedule(ctx, screen, v.Payload)
				}
				if !v.Polling {
					fmt.Fprintln(current.out, "(settled, no longer refreshing)")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tab, "tab", "", "Tab to show: basic_info, execute_record or operation_record")
	return cmd
}

func scheduleActCmd() *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "act <schedule-id> <action>",
		Short: "Perform an action (stop, disable, enable, delete, pass, refuse, revoke)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("schedule id", args[0])
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			screen, _, err := openSchedule(ctx, id)
			if err != nil {
				return err
			}
			defer screen.Close()

			key := actions.Key(strings.ToUpper(args[1]))
			if err := screen.Perform(ctx, key, console.WithComment(comment)); err != nil {
				return err
			}

			if key == actions.KeyDelete {
				return nil
			}
			sch, err := current.deps.API.GetSchedule(ctx, id)
			if err != nil {
				return err
			}
			console.RenderSchedule(current.out, sch)
			return nil
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "Comment recorded with an approval decision")
	return cmd
}

func scheduleOperationsCmd() *cobra.Command {
	var open string

	cmd := &cobra.Command{
		Use:   "operations <schedule-id>",
		Short: "List a schedule's change records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("schedule id", args[0])
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			var opts []detail.OpenOption
			if open != "" {
				opts = append(opts, detail.WithPendingOperation(open))
			}
			screen, _, err := openSchedule(ctx, id, opts...)
			if err != nil {
				return err
			}
			defer screen.Close()

			if open != "" {
				return printPendingOperation(ctx, screen)
			}
			ops, err := screen.Operations(ctx)
			if err != nil {
				return err
			}
			console.RenderOperations(current.out, ops)
			return nil
		},
	}
	cmd.Flags().StringVar(&open, "open", "", "Show only the operation with this id")
	return cmd
}

func printPendingOperation(ctx context.Context, screen *console.ScheduleDetail) error {
	op, err := screen.PendingOperation(ctx)
	if err != nil {
		return err
	}
	if op == nil {
		fmt.Fprintln(current.out, "No pending operation")
		return nil
	}
	console.RenderOperations(current.out, []model.Operation{*op})
	return nil
}
