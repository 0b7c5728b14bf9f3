// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured logging scoped to one collector component.
type Logger struct {
	Component  string
	InstanceID string
	Container  string
}

// LogEntry is the wire shape of one structured log line. Pipeline and RunID
// tie an entry to the pipeline run that produced it; both may be empty for
// component-lifecycle events.
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	Container  string                 `json:"container"`
	Pipeline   string                 `json:"pipeline,omitempty"`
	RunID      string                 `json:"run_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component
func New(component string) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
	}
}

// Log creates a structured log entry and writes it to stdout
func (l *Logger) Log(level LogLevel, pipeline, runID, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		Pipeline:   pipeline,
		RunID:      runID,
		Message:    message,
		Fields:     fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	log.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(pipeline, runID, message string, fields map[string]interface{}) {
	l.Log(INFO, pipeline, runID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(pipeline, runID, message string, fields map[string]interface{}) {
	l.Log(ERROR, pipeline, runID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(pipeline, runID, message string, fields map[string]interface{}) {
	l.Log(WARN, pipeline, runID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(pipeline, runID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, pipeline, runID, message, fields)
}

// InfoWithDuration logs an info message with a duration field attached.
func (l *Logger) InfoWithDuration(pipeline, runID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(pipeline, runID, message, fields)
}

// ErrorWithCode logs an error with an HTTP-style status code attached.
func (l *Logger) ErrorWithCode(pipeline, runID, message string, statusCode int, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["status_code"] = statusCode
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(pipeline, runID, message, fields)
}
