package logger

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger implements Tier 2: rotating JSON-lines file logging.
// Entries are queued and written in batches by a background goroutine.
type FileLogger struct {
	config    *Config
	out       *lumberjack.Logger
	queue     chan *LogEntry
	batch     []*LogEntry
	closeChan chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewFileLogger creates a new file logger
func NewFileLogger(config *Config) (*FileLogger, error) {
	if !config.File.Enabled {
		return nil, fmt.Errorf("file logging is not enabled")
	}

	fl := &FileLogger{
		config: config,
		out: &lumberjack.Logger{
			Filename:   config.File.Path,
			MaxSize:    config.File.MaxSizeMB,
			MaxBackups: config.File.MaxBackups,
			MaxAge:     config.File.MaxAgeDays,
			Compress:   config.File.Compress,
		},
		queue:     make(chan *LogEntry, config.File.BufferSize),
		batch:     make([]*LogEntry, 0, config.File.BatchSize),
		closeChan: make(chan struct{}),
	}

	fl.wg.Add(1)
	go fl.batchWriter()

	return fl, nil
}

func (fl *FileLogger) log(level LogLevel, msg string, component Component, source LogSource, fields map[string]interface{}) {
	entry := &LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Component: component,
		Source:    source,
		Fields:    fields,
	}

	if id, ok := fields["schedule_id"].(string); ok {
		entry.ScheduleID = id
	}
	if id, ok := fields["task_id"].(string); ok {
		entry.TaskID = id
	}
	if err, ok := fields["error"]; ok {
		entry.Error = fmt.Sprintf("%v", err)
	}

	// Drop on overflow; logging must never block a poll tick
	select {
	case fl.queue <- entry:
	default:
	}
}

func (fl *FileLogger) batchWriter() {
	defer fl.wg.Done()

	ticker := time.NewTicker(fl.config.File.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-fl.queue:
			fl.batch = append(fl.batch, entry)
			if len(fl.batch) >= fl.config.File.BatchSize {
				fl.flush()
			}
		case <-ticker.C:
			fl.flush()
		case <-fl.closeChan:
			for {
				select {
				case entry := <-fl.queue:
					fl.batch = append(fl.batch, entry)
					continue
				default:
				}
				break
			}
			fl.flush()
			return
		}
	}
}

func (fl *FileLogger) flush() {
	for _, entry := range fl.batch {
		data, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		_, _ = fl.out.Write(append(data, '\n'))
	}
	fl.batch = fl.batch[:0]
}

// Close flushes and closes the file logger
func (fl *FileLogger) Close() error {
	fl.closeOnce.Do(func() { close(fl.closeChan) })
	fl.wg.Wait()

	if err := fl.out.Close(); err != nil {
		return fmt.Errorf("failed to close file logger: %w", err)
	}
	return nil
}

// Rotate triggers manual log rotation
func (fl *FileLogger) Rotate() error {
	return fl.out.Rotate()
}
