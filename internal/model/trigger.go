package model

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Trigger describes when a schedule fires: either a cron expression or a single instant
type Trigger struct {
	// Cron expression (standard 5-field: minute hour day month weekday)
	Cron string `json:"cron,omitempty"`
	// Timezone for cron evaluation (default: UTC)
	Timezone string `json:"timezone,omitempty"`
	// FireAt is set for one-time schedules
	FireAt *time.Time `json:"fireAt,omitempty"`
}

// Validate checks that exactly one trigger form is configured and that it parses
func (t Trigger) Validate() error {
	if t.Cron == "" && t.FireAt == nil {
		return fmt.Errorf("trigger needs a cron expression or a fire time")
	}
	if t.Cron != "" && t.FireAt != nil {
		return fmt.Errorf("trigger cannot have both a cron expression and a fire time")
	}
	if t.Cron != "" {
		if _, err := cronParser.Parse(t.Cron); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", t.Cron, err)
		}
	}
	if _, err := t.location(); err != nil {
		return err
	}
	return nil
}

// IsPeriodic reports whether the trigger fires repeatedly
func (t Trigger) IsPeriodic() bool {
	return t.Cron != ""
}

// NextFireTimes returns up to n fire instants strictly after the given time
func (t Trigger) NextFireTimes(after time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, nil
	}

	if t.FireAt != nil {
		if t.FireAt.After(after) {
			return []time.Time{*t.FireAt}, nil
		}
		return nil, nil
	}

	schedule, err := cronParser.Parse(t.Cron)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cron expression: %w", err)
	}

	loc, err := t.location()
	if err != nil {
		return nil, err
	}

	times := make([]time.Time, 0, n)
	next := after.In(loc)
	for i := 0; i < n; i++ {
		next = schedule.Next(next)
		if next.IsZero() {
			break
		}
		times = append(times, next)
	}
	return times, nil
}

func (t Trigger) location() (*time.Location, error) {
	if t.Timezone == "" || t.Timezone == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", t.Timezone, err)
	}
	return loc, nil
}
