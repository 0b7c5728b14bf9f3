// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package mediator

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Clock abstracts time for deterministic ledger tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const microPerUSD = 1_000_000

// CostLedger tracks daily provider spend in integer micro-dollars so
// concurrent charges never lose fractions to float races. The counter rolls
// over at local midnight.
//
// Reserve admits a call whenever spend is still under the limit, so the
// daily total can overshoot by at most one in-flight call.
type CostLedger struct {
	limitMicro int64
	spentMicro atomic.Int64

	mu    sync.Mutex
	day   string // local calendar day the counter belongs to
	clock Clock
}

// NewCostLedger creates a ledger with a daily budget in USD. A limit of zero
// or less means no paid calls are admitted.
func NewCostLedger(limitUSD float64, clock Clock) *CostLedger {
	if clock == nil {
		clock = realClock{}
	}
	l := &CostLedger{
		limitMicro: toMicro(limitUSD),
		clock:      clock,
	}
	l.day = clock.Now().Format("2006-01-02")
	return l
}

func toMicro(usd float64) int64 {
	return int64(math.Round(usd * microPerUSD))
}

// roll resets the counter when the local calendar day has changed.
func (l *CostLedger) roll() {
	day := l.clock.Now().Format("2006-01-02")
	l.mu.Lock()
	if l.day != day {
		l.day = day
		l.spentMicro.Store(0)
	}
	l.mu.Unlock()
}

// Reserve admits a call costing estimateUSD and charges it. It returns false
// without charging when the day's budget is already spent. A call admitted
// just under the limit may push the total past it; every later call then
// sees the exhausted budget.
func (l *CostLedger) Reserve(estimateUSD float64) bool {
	l.roll()
	micro := toMicro(estimateUSD)
	for {
		cur := l.spentMicro.Load()
		if cur >= l.limitMicro {
			return false
		}
		if l.spentMicro.CompareAndSwap(cur, cur+micro) {
			return true
		}
	}
}

// Refund returns a reservation after a failed call. Failed calls do not
// count against the budget.
func (l *CostLedger) Refund(estimateUSD float64) {
	micro := toMicro(estimateUSD)
	for {
		cur := l.spentMicro.Load()
		next := cur - micro
		if next < 0 {
			next = 0
		}
		if l.spentMicro.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Charge adds an unconditional spend delta, for actual costs reported after
// the fact.
func (l *CostLedger) Charge(deltaUSD float64) {
	l.roll()
	l.spentMicro.Add(toMicro(deltaUSD))
}

// WouldExceed reports whether spending estimateUSD more would cross the
// daily limit. Callers with a known job cost use this to skip work before
// issuing any call.
func (l *CostLedger) WouldExceed(estimateUSD float64) bool {
	l.roll()
	return l.spentMicro.Load()+toMicro(estimateUSD) > l.limitMicro
}

// Spent returns today's spend in USD.
func (l *CostLedger) Spent() float64 {
	l.roll()
	return float64(l.spentMicro.Load()) / microPerUSD
}

// Remaining returns the unspent budget in USD, floored at zero.
func (l *CostLedger) Remaining() float64 {
	l.roll()
	rem := l.limitMicro - l.spentMicro.Load()
	if rem < 0 {
		rem = 0
	}
	return float64(rem) / microPerUSD
}

// Limit returns the configured daily budget in USD.
func (l *CostLedger) Limit() float64 {
	return float64(l.limitMicro) / microPerUSD
}

// Day returns the local calendar day the counter currently tracks.
func (l *CostLedger) Day() string {
	l.roll()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.day
}
