// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time for components whose behavior depends on it (cache
// TTLs, the daily cost ledger, run bookkeeping). Production code uses
// RealClock; tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// NewID returns a fresh opaque identifier for runs, reports, and jobs.
func NewID() string {
	return uuid.New().String()
}

// DaysBack returns the UTC instant n days before now, truncated to the day.
func DaysBack(now time.Time, n int) time.Time {
	t := now.UTC().AddDate(0, 0, -n)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// LocalMidnightAfter returns the next local midnight strictly after t. The
// daily cost ledger resets at this boundary.
func LocalMidnightAfter(t time.Time) time.Time {
	local := t.Local()
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location()).AddDate(0, 0, 1)
}

// SameLocalDay reports whether a and b fall on the same local calendar day.
func SameLocalDay(a, b time.Time) bool {
	al, bl := a.Local(), b.Local()
	return al.Year() == bl.Year() && al.YearDay() == bl.YearDay()
}
