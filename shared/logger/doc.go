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

/*
Package logger provides structured JSON logging for the ODM's connection
lifecycle components.

# Overview

Log entries are written to stdout as single-line JSON, making them easily
consumable by CloudWatch, ELK stack, or other log aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (connection, odm, ...)
  - Instance ID and container name (for distributed tracing)
  - Connection tag (to tell multiplexed connections apart)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("connection")

Log messages tagged with the connection they concern:

	log.Info("conn0", "connection established", map[string]interface{}{
	    "host": "localhost",
	    "port": 27017,
	})

Log errors with the underlying cause attached:

	log.ErrorWithCause("conn0", "connection attempt failed", err, nil)

# Output Format

Log entries are output as single-line JSON:

	{"timestamp":"2025-01-15T10:30:00.123456789Z","level":"INFO",
	 "component":"connection","instance_id":"i-abc123","container":"odm-xyz",
	 "connection":"conn0","message":"connection established",
	 "fields":{"host":"localhost","port":27017}}

# Environment Variables

The logger reads these environment variables:

  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
