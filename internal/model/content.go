package model

import (
	"encoding/json"
	"fmt"
)

// Content is the job-kind specific part of a schedule.
// The concrete type is one of SQLPlan, PartitionPlan, DataArchive or DataClear.
type Content interface {
	contentKind() ScheduleType
}

// SQLPlan runs a fixed SQL script against one database
type SQLPlan struct {
	DatabaseName  string `json:"databaseName"`
	SQLContent    string `json:"sqlContent"`
	TimeoutMillis int64  `json:"timeoutMillis,omitempty"`
	// ErrorStrategy is "ABORT" or "CONTINUE"
	ErrorStrategy string `json:"errorStrategy,omitempty"`
}

// PartitionTable configures partition maintenance for one table
type PartitionTable struct {
	Name string `json:"name"`
	// Strategy is "CREATE" or "DROP"
	Strategy    string `json:"strategy"`
	Interval    string `json:"interval,omitempty"`
	KeepLatestN int    `json:"keepLatestN,omitempty"`
}

// PartitionPlan creates and drops range partitions on a set of tables
type PartitionPlan struct {
	DatabaseName string           `json:"databaseName"`
	Tables       []PartitionTable `json:"tables"`
}

// DataArchive copies rows from a source to a target database
type DataArchive struct {
	SourceDatabase       string   `json:"sourceDatabase"`
	TargetDatabase       string   `json:"targetDatabase"`
	Tables               []string `json:"tables"`
	Condition            string   `json:"condition,omitempty"`
	DeleteAfterMigration bool     `json:"deleteAfterMigration"`
}

// DataClear deletes rows matching a condition
type DataClear struct {
	DatabaseName          string   `json:"databaseName"`
	Tables                []string `json:"tables"`
	Condition             string   `json:"condition,omitempty"`
	NeedCheckBeforeDelete bool     `json:"needCheckBeforeDelete"`
}

func (SQLPlan) contentKind() ScheduleType       { return ScheduleTypeSQLPlan }
func (PartitionPlan) contentKind() ScheduleType { return ScheduleTypePartitionPlan }
func (DataArchive) contentKind() ScheduleType   { return ScheduleTypeDataArchive }
func (DataClear) contentKind() ScheduleType     { return ScheduleTypeDataDelete }

// DecodeContent decodes raw parameters into the variant for the given schedule type.
// Logical database changes carry an SQL script and decode as SQLPlan.
func DecodeContent(t ScheduleType, raw json.RawMessage) (Content, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("schedule parameters are empty")
	}

	switch t {
	case ScheduleTypeSQLPlan, ScheduleTypeLogicalDatabaseChange:
		var c SQLPlan
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("failed to decode %s parameters: %w", t, err)
		}
		return c, nil
	case ScheduleTypePartitionPlan:
		var c PartitionPlan
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("failed to decode %s parameters: %w", t, err)
		}
		return c, nil
	case ScheduleTypeDataArchive:
		var c DataArchive
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("failed to decode %s parameters: %w", t, err)
		}
		return c, nil
	case ScheduleTypeDataDelete:
		var c DataClear
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("failed to decode %s parameters: %w", t, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown schedule type %q", t)
	}
}
