package console

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/muaviaUsmani/opsconsole/internal/actions"
	"github.com/muaviaUsmani/opsconsole/internal/detail"
	"github.com/muaviaUsmani/opsconsole/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	labelColor = color.New(color.FgCyan)
	titleColor = color.New(color.Bold)
	dimColor   = color.New(color.Faint)
)

func statusColor(status string) *color.Color {
	switch status {
	case string(model.ScheduleStatusEnabled), string(model.TaskStatusRunning), string(model.TaskStatusDone),
		string(model.OperationStatusSuccess), string(model.FlowStatusApproved):
		return color.New(color.FgGreen)
	case string(model.ScheduleStatusExecutionFailed), string(model.TaskStatusFailed), string(model.TaskStatusAbnormal),
		string(model.TaskStatusExecTimeout), string(model.TaskStatusDoneWithFailed), string(model.FlowStatusRejected):
		return color.New(color.FgRed)
	case string(model.ScheduleStatusCreating), string(model.ScheduleStatusPause), string(model.TaskStatusPaused),
		string(model.TaskStatusPreparing), string(model.OperationStatusApproving):
		return color.New(color.FgYellow)
	default:
		return color.New(color.Reset)
	}
}

func field(w io.Writer, label string, value interface{}) {
	labelColor.Fprintf(w, "  %-16s", label+":")
	fmt.Fprintf(w, " %v\n", value)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

// RenderSchedule writes the basic-info tab of a schedule
func RenderSchedule(w io.Writer, s *model.Schedule) {
	titleColor.Fprintf(w, "Schedule #%d  %s\n", s.ID, s.Name)
	field(w, "Status", statusColor(string(s.Status)).Sprint(s.Status))
	field(w, "Type", s.Type)
	field(w, "Project", s.ProjectID)
	field(w, "Creator", s.Creator.Name)
	if s.Description != "" {
		field(w, "Description", s.Description)
	}
	if s.Approvable {
		field(w, "Approval", fmt.Sprintf("pending (flow %d)", s.ApproveInstanceID))
	}

	if s.Trigger.IsPeriodic() {
		tz := s.Trigger.Timezone
		if tz == "" {
			tz = "UTC"
		}
		field(w, "Trigger", fmt.Sprintf("cron %q (%s)", s.Trigger.Cron, tz))
	} else {
		field(w, "Trigger", "once at "+formatTime(s.Trigger.FireAt))
	}
	if len(s.NextFireTimes) > 0 {
		next := make([]string, len(s.NextFireTimes))
		for i := range s.NextFireTimes {
			next[i] = formatTime(&s.NextFireTimes[i])
		}
		field(w, "Next fires", strings.Join(next, ", "))
	}
	field(w, "Updated", formatTime(&s.UpdatedAt))

	content, err := s.Content()
	if err != nil {
		field(w, "Parameters", dimColor.Sprint("unavailable: "+err.Error()))
		return
	}
	renderContent(w, content)
}

// renderContent dispatches on the parameter variant
func renderContent(w io.Writer, c model.Content) {
	switch c := c.(type) {
	case model.SQLPlan:
		renderSQLPlan(w, c)
	case model.PartitionPlan:
		renderPartitionPlan(w, c)
	case model.DataArchive:
		renderDataArchive(w, c)
	case model.DataClear:
		renderDataClear(w, c)
	default:
		field(w, "Parameters", fmt.Sprintf("%+v", c))
	}
}

func renderSQLPlan(w io.Writer, c model.SQLPlan) {
	field(w, "Database", c.DatabaseName)
	if c.TimeoutMillis > 0 {
		field(w, "Timeout", time.Duration(c.TimeoutMillis)*time.Millisecond)
	}
	if c.ErrorStrategy != "" {
		field(w, "On error", c.ErrorStrategy)
	}
	labelColor.Fprintln(w, "  SQL:")
	for _, line := range strings.Split(strings.TrimSpace(c.SQLContent), "\n") {
		fmt.Fprintf(w, "    %s\n", line)
	}
}

func renderPartitionPlan(w io.Writer, c model.PartitionPlan) {
	field(w, "Database", c.DatabaseName)
	for _, t := range c.Tables {
		detailText := t.Strategy
		if t.Interval != "" {
			detailText += " every " + t.Interval
		}
		if t.KeepLatestN > 0 {
			detailText += fmt.Sprintf(", keep latest %d", t.KeepLatestN)
		}
		field(w, "Table "+t.Name, detailText)
	}
}

func renderDataArchive(w io.Writer, c model.DataArchive) {
	field(w, "Source", c.SourceDatabase)
	field(w, "Target", c.TargetDatabase)
	field(w, "Tables", strings.Join(c.Tables, ", "))
	if c.Condition != "" {
		field(w, "Condition", c.Condition)
	}
	field(w, "Delete source", c.DeleteAfterMigration)
}

func renderDataClear(w io.Writer, c model.DataClear) {
	field(w, "Database", c.DatabaseName)
	field(w, "Tables", strings.Join(c.Tables, ", "))
	if c.Condition != "" {
		field(w, "Condition", c.Condition)
	}
	field(w, "Check first", c.NeedCheckBeforeDelete)
}

// RenderTask writes one tab of a sub-task detail
func RenderTask(w io.Writer, t *model.ScheduleTask, tab detail.Tab) {
	titleColor.Fprintf(w, "Sub-task #%d  (schedule #%d)\n", t.ID, t.ScheduleID)

	switch tab {
	case TabTaskLog:
		if t.Log == "" {
			dimColor.Fprintln(w, "  (no log output)")
			return
		}
		fmt.Fprintln(w, t.Log)
	case TabTaskResult:
		field(w, "Status", statusColor(string(t.Status)).Sprint(t.Status))
		field(w, "Progress", fmt.Sprintf("%.0f%%", t.Progress))
		summary := t.ResultSummary
		if summary == "" {
			summary = "-"
		}
		field(w, "Result", summary)
	default:
		field(w, "Status", statusColor(string(t.Status)).Sprint(t.Status))
		field(w, "Type", t.Type)
		field(w, "Fired", formatTime(&t.FireTime))
		field(w, "Started", formatTime(t.StartedAt))
		field(w, "Ended", formatTime(t.EndedAt))
		field(w, "Progress", fmt.Sprintf("%.0f%%", t.Progress))
	}
}

// RenderTaskPage writes a page of sub-tasks as a table
func RenderTaskPage(w io.Writer, p *model.Page[model.ScheduleTask]) {
	titleColor.Fprintf(w, "%-8s %-18s %-20s %s\n", "ID", "STATUS", "FIRED", "PROGRESS")
	for i := range p.Contents {
		t := &p.Contents[i]
		status := fmt.Sprintf("%-18s", t.Status)
		fmt.Fprintf(w, "%-8d %s %-20s %.0f%%\n", t.ID, statusColor(string(t.Status)).Sprint(status), formatTime(&t.FireTime), t.Progress)
	}
	pages := 1
	if p.Size > 0 && p.Total > 0 {
		pages = (p.Total + p.Size - 1) / p.Size
	}
	dimColor.Fprintf(w, "page %d/%d, %d sub-tasks\n", p.Page, pages, p.Total)
}

// RenderOperations writes a change log with the fields that changed in each entry
func RenderOperations(w io.Writer, ops []model.Operation) {
	if len(ops) == 0 {
		dimColor.Fprintln(w, "  (no operations)")
		return
	}
	for _, op := range ops {
		fmt.Fprintf(w, "%s  %-10s %s  by %s\n",
			formatTime(&op.CreatedAt), op.Type, statusColor(string(op.Status)).Sprint(op.Status), op.Creator.Name)
		for _, change := range diffSnapshots(op.Before, op.After) {
			dimColor.Fprintf(w, "    %s\n", change)
		}
	}
}

// diffSnapshots lists top-level keys whose values differ, sorted by key
func diffSnapshots(before, after map[string]interface{}) []string {
	keys := make(map[string]struct{})
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var out []string
	for _, k := range sorted {
		b, a := fmt.Sprint(before[k]), fmt.Sprint(after[k])
		if _, ok := before[k]; !ok {
			b = "-"
		}
		if _, ok := after[k]; !ok {
			a = "-"
		}
		if b != a {
			out = append(out, fmt.Sprintf("%s: %s → %s", k, b, a))
		}
	}
	return out
}

// RenderActions writes the inline actions followed by the overflow menu
func RenderActions(w io.Writer, list []actions.Descriptor) {
	inline, overflow := actions.Split(list)

	labels := make([]string, len(inline))
	for i, d := range inline {
		labels[i] = fmt.Sprintf("[%s]", d.Label)
	}
	fmt.Fprintf(w, "Actions: %s\n", strings.Join(labels, " "))

	if len(overflow) > 0 {
		more := make([]string, len(overflow))
		for i, d := range overflow {
			more[i] = fmt.Sprintf("%s (%s)", d.Label, d.Icon)
		}
		dimColor.Fprintf(w, "More: %s\n", strings.Join(more, ", "))
	}
}
