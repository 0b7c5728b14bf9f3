// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the Baobab collector service.
//
// The collector gathers African AI innovation signals end to end:
// - Synthesizes intelligence reports through LLM providers
// - Monitors academic indexes, RSS feeds, and paid search
// - Deduplicates and merges records across sources
// - Enriches incomplete records and chases citations
//
// Usage:
//
//	./collector
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8090)
//	DATABASE_URL - PostgreSQL connection string (required)
//	REDIS_URL - durable cache tier (optional)
//	COLLECTOR_API_SECRET - bearer auth for mutating routes (optional)
//	PERPLEXITY_API_KEY - intelligence provider (optional)
//	OPENAI_API_KEY - intelligence provider and embeddings (optional)
//	BEDROCK_REGION - AWS Bedrock intelligence provider (optional)
//	SEARCH_API_KEY - web search and scholar adapters (optional)
//	NEWS_FEEDS - comma-separated RSS/Atom feed URLs (optional)
package main

import (
	"baobab/platform/collector"
)

func main() {
	collector.Run()
}
