package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/muaviaUsmani/opsconsole/internal/api"
	"github.com/muaviaUsmani/opsconsole/internal/model"
)

// SeedFile is the YAML layout accepted by LoadSeed:
//
//	schedules:
//	  - name: nightly-archive
//	    type: DATA_ARCHIVE
//	    projectId: 3
//	    creator: {id: 7, name: alice}
//	    cron: "0 2 * * *"
//	    approvers: [9]
//	    parameters: {sourceDatabase: orders, targetDatabase: orders_archive}
//	    tasks:
//	      - status: RUNNING
//	        progress: 40
type SeedFile struct {
	Schedules []SeedSchedule `yaml:"schedules"`
}

// SeedSchedule describes one schedule to create
type SeedSchedule struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Type        model.ScheduleType     `yaml:"type"`
	ProjectID   int64                  `yaml:"projectId"`
	Creator     SeedUser               `yaml:"creator"`
	Cron        string                 `yaml:"cron"`
	Timezone    string                 `yaml:"timezone"`
	FireAt      *time.Time             `yaml:"fireAt"`
	Parameters  map[string]interface{} `yaml:"parameters"`
	// Approvers, when set, leave the schedule in CREATING behind an approval flow
	Approvers []int64    `yaml:"approvers"`
	Tasks     []SeedTask `yaml:"tasks"`
}

// SeedUser is the creator of a seeded schedule
type SeedUser struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// SeedTask describes one sub-task to create under its schedule
type SeedTask struct {
	Status        model.TaskStatus `yaml:"status"`
	Progress      float64          `yaml:"progress"`
	ResultSummary string           `yaml:"resultSummary"`
	Log           string           `yaml:"log"`
}

// LoadSeed reads a seed file from disk
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

// Seed creates every schedule and sub-task in the seed file, in order
func (s *RedisStore) Seed(ctx context.Context, seed *SeedFile) ([]*model.Schedule, error) {
	created := make([]*model.Schedule, 0, len(seed.Schedules))

	for i, entry := range seed.Schedules {
		sch := &model.Schedule{
			Name:        entry.Name,
			Description: entry.Description,
			Type:        entry.Type,
			ProjectID:   entry.ProjectID,
			Creator:     model.User{ID: entry.Creator.ID, Name: entry.Creator.Name},
			Trigger: model.Trigger{
				Cron:     entry.Cron,
				Timezone: entry.Timezone,
				FireAt:   entry.FireAt,
			},
		}
		if entry.Parameters != nil {
			raw, err := json.Marshal(entry.Parameters)
			if err != nil {
				return nil, fmt.Errorf("%w: schedule %d parameters: %v", api.ErrInvalidArgument, i, err)
			}
			sch.Parameters = raw
		}

		out, err := s.CreateSchedule(ctx, sch, entry.Approvers)
		if err != nil {
			return nil, fmt.Errorf("failed to seed schedule %q: %w", entry.Name, err)
		}

		for _, t := range entry.Tasks {
			task := &model.ScheduleTask{
				ScheduleID:    out.ID,
				Status:        t.Status,
				Progress:      t.Progress,
				ResultSummary: t.ResultSummary,
				Log:           t.Log,
			}
			if _, err := s.CreateTask(ctx, task); err != nil {
				return nil, fmt.Errorf("failed to seed sub-task of %q: %w", entry.Name, err)
			}
		}
		created = append(created, out)
	}

	s.log.Info("Seeded store", "schedules", len(created))
	return created, nil
}
