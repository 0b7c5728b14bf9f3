// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package intel

import (
	"strings"
)

// Synthesis defaults applied by the registry adapters when a ReportSpec
// leaves the field zero. Reports favor factual recall over creativity, so
// the default temperature is well below typical chat settings.
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.2
)

// SystemPrompt frames every synthesis call. It pins the analyst role and the
// citation discipline the citation extractor depends on downstream.
const SystemPrompt = `You are a research analyst who tracks artificial intelligence activity across Africa: startups, research groups, funding rounds, government policy, and talent movement. Report only developments you can attribute to a source. Cite every claim with a full URL on the same line or in a closing source list. Write in plain prose paragraphs; use numbered findings for discrete items. Never invent companies, people, or amounts.`

// reportPrompts holds one user-prompt template per report type. Templates
// use {focus} and {period} placeholders so wording can put them anywhere.
var reportPrompts = map[string]string{
	"innovation_discovery": `Identify new AI products, startups, and deployed systems that emerged across {focus} during {period}. For each one, name the company or team behind it, the country it operates from, the problem it solves, and any traction or customers mentioned publicly. Number each finding.`,

	"funding_landscape": `Summarize AI-related funding activity across {focus} during {period}: venture rounds, grants, accelerator cohorts, and acquisitions. For each event give the company, the amount and round type, the lead investors, and the country. Number each finding and note totals where a source aggregates them.`,

	"research_breakthrough": `Describe notable AI research results from institutions and labs across {focus} during {period}. Cover published papers, released models or datasets, and benchmark results. Name the institution, its country, the lead researchers where known, and what the result enables.`,

	"policy_development": `Report AI policy and regulatory developments across {focus} during {period}: national strategies, draft legislation, data-protection rulings, and public-sector AI programs. Name the government body, the instrument, its current status, and who it affects.`,

	"talent_ecosystem": `Analyze the AI talent landscape across {focus} during {period}: notable hires and departures, new training programs and fellowships, university curriculum launches, and community initiatives. Name the organizations and people involved where sources do.`,

	"market_analysis": `Assess the commercial AI market across {focus} during {period}: sector adoption, revenue signals, competitive moves by local and foreign firms, and infrastructure investments such as data centers or GPU capacity. Ground every figure in a cited source.`,
}

// genericPrompt covers unknown report types so a misconfigured cycle still
// yields usable prose instead of an error.
const genericPrompt = `Summarize significant artificial intelligence developments across {focus} during {period}. Cover startups, research, funding, and policy. Attribute every development to a source.`

// fieldPrompt asks for exactly one attribute of one entity. The backfill
// engine parses the JSON object out of the reply, so the format instruction
// is part of the contract.
const fieldPrompt = `Find the {field} of {subject}, an African AI initiative. Reply with a single JSON object of the form {"value": "...", "confidence": 0.0, "evidence": "..."} where value holds only the requested attribute, confidence is your certainty between 0 and 1, and evidence cites the source with a URL. Use an empty value and confidence 0 when no reliable source answers the question.`

// BuildPrompt renders the user prompt for a report spec. Empty focus falls
// back to the whole continent and an empty period to the last 30 days.
// Report types prefixed field_ render the single-field template against
// spec.Subject instead.
func BuildPrompt(spec ReportSpec) string {
	if field, ok := strings.CutPrefix(spec.ReportType, "field_"); ok {
		return strings.NewReplacer(
			"{field}", strings.ReplaceAll(field, "_", " "),
			"{subject}", spec.Subject,
		).Replace(fieldPrompt)
	}
	focus := strings.Join(spec.GeographicFocus, ", ")
	if focus == "" || strings.EqualFold(focus, "africa") {
		focus = "Africa"
	}

	period := humanizePeriod(spec.TimePeriod)
	if period == "" {
		period = "the last 30 days"
	}

	tmpl, ok := reportPrompts[spec.ReportType]
	if !ok {
		tmpl = genericPrompt
	}

	return strings.NewReplacer("{focus}", focus, "{period}", period).Replace(tmpl)
}

// humanizePeriod turns machine tokens like "last_7_days" into prose. Free
// text passes through untouched.
func humanizePeriod(period string) string {
	if period == "" {
		return ""
	}
	if !strings.Contains(period, "_") {
		return period
	}
	words := strings.ReplaceAll(period, "_", " ")
	if strings.HasPrefix(words, "last ") {
		return "the " + words
	}
	return words
}

// promptTokens is the rough token estimate used for cost projection before
// a call is made: prompt length at four characters per token plus the full
// completion budget.
func promptTokens(spec ReportSpec) int {
	maxTokens := spec.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return (len(SystemPrompt)+len(BuildPrompt(spec)))/4 + maxTokens
}
