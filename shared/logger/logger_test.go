// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"
)

// TestNew tests logger initialization
func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		component      string
		instanceID     string
		expectedComp   string
		expectedInstID string
	}{
		{
			name:           "with instance ID set",
			component:      "connection",
			instanceID:     "instance-123",
			expectedComp:   "connection",
			expectedInstID: "instance-123",
		},
		{
			name:           "without instance ID",
			component:      "odm",
			instanceID:     "",
			expectedComp:   "odm",
			expectedInstID: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("INSTANCE_ID", tt.instanceID)

			logger := New(tt.component)

			if logger.Component != tt.expectedComp {
				t.Errorf("Expected component %s, got %s", tt.expectedComp, logger.Component)
			}

			if logger.InstanceID != tt.expectedInstID {
				t.Errorf("Expected instance ID %s, got %s", tt.expectedInstID, logger.InstanceID)
			}

			if logger.Container == "" {
				t.Error("Expected container to be set from hostname")
			}
		})
	}
}

func captureOutput(fn func()) string {
	var buf bytes.Buffer
	old := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(old)
	fn()
	return buf.String()
}

// TestLogLevels tests all log level methods
func TestLogLevels(t *testing.T) {
	tests := []struct {
		name       string
		logFunc    func(*Logger, string, string, map[string]interface{})
		level      LogLevel
		message    string
		connection string
		fields     map[string]interface{}
	}{
		{
			name:       "Info log",
			logFunc:    (*Logger).Info,
			level:      INFO,
			message:    "connection established",
			connection: "conn0",
			fields:     map[string]interface{}{"host": "localhost"},
		},
		{
			name:       "Error log",
			logFunc:    (*Logger).Error,
			level:      ERROR,
			message:    "connection attempt failed",
			connection: "conn1",
			fields:     map[string]interface{}{"attempt": 2},
		},
		{
			name:       "Warn log",
			logFunc:    (*Logger).Warn,
			level:      WARN,
			message:    "buffer nearing timeout",
			connection: "conn2",
			fields:     nil,
		},
		{
			name:       "Debug log",
			logFunc:    (*Logger).Debug,
			level:      DEBUG,
			message:    "replaying buffered operations",
			connection: "conn3",
			fields:     map[string]interface{}{"count": 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New("test")
			output := captureOutput(func() {
				tt.logFunc(logger, tt.connection, tt.message, tt.fields)
			})

			jsonStart := strings.Index(output, "{")
			if jsonStart < 0 {
				t.Fatalf("Expected JSON output, got: %s", output)
			}

			var entry LogEntry
			if err := json.Unmarshal([]byte(strings.TrimSpace(output[jsonStart:])), &entry); err != nil {
				t.Fatalf("Failed to parse log entry: %v", err)
			}

			if entry.Level != tt.level {
				t.Errorf("Expected level %s, got %s", tt.level, entry.Level)
			}
			if entry.Connection != tt.connection {
				t.Errorf("Expected connection %s, got %s", tt.connection, entry.Connection)
			}
			if entry.Message != tt.message {
				t.Errorf("Expected message %q, got %q", tt.message, entry.Message)
			}
			if entry.Component != "test" {
				t.Errorf("Expected component test, got %s", entry.Component)
			}
		})
	}
}

// TestErrorWithCause tests that the cause lands in the fields
func TestErrorWithCause(t *testing.T) {
	logger := New("test")
	output := captureOutput(func() {
		logger.ErrorWithCause("conn0", "handshake failed", errors.New("connection refused"), nil)
	})

	jsonStart := strings.Index(output, "{")
	if jsonStart < 0 {
		t.Fatalf("Expected JSON output, got: %s", output)
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(output[jsonStart:])), &entry); err != nil {
		t.Fatalf("Failed to parse log entry: %v", err)
	}

	if entry.Level != ERROR {
		t.Errorf("Expected level ERROR, got %s", entry.Level)
	}
	if entry.Fields["error"] != "connection refused" {
		t.Errorf("Expected cause in fields, got %v", entry.Fields)
	}
}
