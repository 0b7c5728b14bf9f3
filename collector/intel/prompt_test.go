// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package intel

import (
	"strings"
	"testing"
)

func TestBuildPrompt(t *testing.T) {
	t.Run("known report types mention focus and period", func(t *testing.T) {
		types := []string{
			"innovation_discovery",
			"funding_landscape",
			"research_breakthrough",
			"policy_development",
			"talent_ecosystem",
			"market_analysis",
		}
		for _, rt := range types {
			prompt := BuildPrompt(ReportSpec{
				ReportType:      rt,
				TimePeriod:      "the past quarter",
				GeographicFocus: []string{"Kenya", "Nigeria"},
			})
			if !strings.Contains(prompt, "Kenya, Nigeria") {
				t.Errorf("%s: prompt should contain focus, got %q", rt, prompt)
			}
			if !strings.Contains(prompt, "the past quarter") {
				t.Errorf("%s: prompt should contain period, got %q", rt, prompt)
			}
			if strings.Contains(prompt, "{focus}") || strings.Contains(prompt, "{period}") {
				t.Errorf("%s: unexpanded placeholder in %q", rt, prompt)
			}
		}
	})

	t.Run("defaults", func(t *testing.T) {
		prompt := BuildPrompt(ReportSpec{ReportType: "funding_landscape"})
		if !strings.Contains(prompt, "Africa") {
			t.Errorf("empty focus should default to Africa, got %q", prompt)
		}
		if !strings.Contains(prompt, "the last 30 days") {
			t.Errorf("empty period should default to last 30 days, got %q", prompt)
		}
	})

	t.Run("unknown type falls back to generic", func(t *testing.T) {
		prompt := BuildPrompt(ReportSpec{ReportType: "made_up_type"})
		if !strings.Contains(prompt, "artificial intelligence developments") {
			t.Errorf("unknown type should use generic template, got %q", prompt)
		}
	})

	t.Run("machine periods humanize", func(t *testing.T) {
		tests := []struct {
			in   string
			want string
		}{
			{"last_7_days", "the last 7 days"},
			{"last_30_days", "the last 30 days"},
			{"q1_2025", "q1 2025"},
			{"the past month", "the past month"},
		}
		for _, tt := range tests {
			if got := humanizePeriod(tt.in); got != tt.want {
				t.Errorf("humanizePeriod(%q) = %q, want %q", tt.in, got, tt.want)
			}
		}
	})
}

func TestPromptTokens(t *testing.T) {
	spec := ReportSpec{ReportType: "funding_landscape", MaxTokens: 1000}
	got := promptTokens(spec)
	if got <= 1000 {
		t.Errorf("estimate should include prompt tokens on top of the completion budget, got %d", got)
	}

	// Zero max tokens uses the default completion budget.
	if got := promptTokens(ReportSpec{ReportType: "funding_landscape"}); got <= DefaultMaxTokens {
		t.Errorf("estimate with default budget should exceed %d, got %d", DefaultMaxTokens, got)
	}
}
