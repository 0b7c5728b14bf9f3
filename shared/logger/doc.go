// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

/*
Package logger provides structured JSON logging for collector components.

# Overview

The logger package outputs single-line JSON to stdout, making logs easily
consumable by CloudWatch, ELK stack, or other log aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (api, scheduler, backfill, etc.)
  - Instance ID and container name (for distributed tracing)
  - Pipeline name (for pipeline run correlation)
  - Run ID (for correlating entries from one run)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("scheduler")

Log messages with pipeline and run context:

	log.Info("news", "run-456", "pass completed", map[string]interface{}{
	    "items_processed": 12,
	    "duplicates":      3,
	})

Component-lifecycle events carry no run context:

	log.Info("", "", "schedule updated", map[string]interface{}{
	    "interval": "6h",
	})

Log errors with status codes:

	log.ErrorWithCode("academic_arxiv", "run-456", "fetch failed", 502, err, map[string]interface{}{
	    "endpoint": "/api/query",
	})

Log with duration tracking:

	start := time.Now()
	// ... do work ...
	log.InfoWithDuration("news", "run-456", "pass completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Output Format

Log entries are output as single-line JSON:

	{"timestamp":"2025-07-01T10:30:00.123456789Z","level":"INFO",
	 "component":"scheduler","instance_id":"i-abc123","container":"collector-xyz",
	 "pipeline":"news","run_id":"run-456",
	 "message":"pass completed","fields":{"items_processed":12}}

# Environment Variables

The logger reads these environment variables:

  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
