// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

/*
Package types holds the shared data model of the collection platform.

# Overview

This package contains the entity shapes that cross component boundaries:
the collector pipelines produce them, the persistence gateway stores them,
and the control surface serves them. It is the single source of truth for
these structures; components exchange value copies and never share mutable
state through them.

# Entities

Innovation is the canonical record of an African AI effort, deduplicated by
fingerprint. Publication is an academic artifact admitted on relevance
thresholds. IntelligenceReport is the structured product of one LLM
synthesis call, carrying the findings and citations mined from its prose.
PipelineRun, BackfillJob, CommunitySubmission and CommunityVote track the
operational side: run bookkeeping, enrichment work, and community review.

# Invariants

Verification status moves one way only (pending, community, verified, with
rejected as a terminal branch). Use CanTransitionVerification before any
status write, including merges.

# Thread Safety

All types in this package are value types and are safe for concurrent use.
*/
package types
