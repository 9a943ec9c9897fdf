package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muaviaUsmani/opsconsole/internal/console"
	"github.com/muaviaUsmani/opsconsole/internal/detail"
)

func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <url>",
		Short: "Open the schedule or sub-task referenced by a console link",
		Long: `Open the schedule or sub-task referenced by a console link.

The link's scheduleId, subTaskId, scheduleType, projectId and operationId
query parameters select the record. Links into projects the viewer is not a
member of are rejected without fetching anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			schedules := console.NewScheduleDetail(ctx, current.deps)
			defer schedules.Close()
			tasks := console.NewTaskDetail(ctx, current.deps)
			defer tasks.Close()

			stripped, err := schedules.AutoOpen(args[0])
			if err != nil {
				return err
			}
			if _, err := tasks.AutoOpen(args[0]); err != nil {
				return err
			}
			current.log.Debug("Navigated", "url", stripped)

			switch {
			case tasks.View().State != detail.StateClosed:
				view, err := waitLoaded(ctx, tasks.Controller, waitTimeout)
				if err != nil {
					return err
				}
				console.RenderTask(current.out, view.Payload, view.Tab)
				return nil
			case schedules.View().State != detail.StateClosed:
				view, err := waitLoaded(ctx, schedules.Controller, waitTimeout)
				if err != nil {
					return err
				}
				printSchedule(ctx, schedules, view.Payload)
				return printPendingOperation(ctx, schedules)
			default:
				return fmt.Errorf("link does not reference a schedule or sub-task")
			}
		},
	}
}
