// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"baobab/platform/collector/intel"
	"baobab/platform/collector/mediator"
)

// intelMinReportChars is the shortest report worth keeping. Anything under
// it is a refusal or a stub, and caching it would poison a day of cycles.
const intelMinReportChars = 50

// IntelligenceOptions configures the LLM synthesis adapter.
type IntelligenceOptions struct {
	// Registry resolves provider names to backends. Required unless
	// MockMode.
	Registry *intel.Registry

	// Mediator dispatches the synthesis calls. Required unless MockMode.
	Mediator Caller

	// Provider names the preferred backend. Empty uses the registry
	// primary; an unavailable name falls back to the primary.
	Provider string

	// MockMode serves canned records instead of synthesizing.
	MockMode bool
}

// IntelligenceSource turns LLM synthesis into a source like any other: one
// Fetch per report type, one record per report. The envelope it caches is
// self-describing, so a cache hit replays the whole report without touching
// the provider.
type IntelligenceSource struct {
	registry *intel.Registry
	mediator Caller
	provider string
	mock     bool
}

// NewIntelligenceSource creates the LLM synthesis adapter.
func NewIntelligenceSource(opts IntelligenceOptions) *IntelligenceSource {
	return &IntelligenceSource{
		registry: opts.Registry,
		mediator: opts.Mediator,
		provider: opts.Provider,
		mock:     opts.MockMode,
	}
}

// Name returns the mediator source name.
func (s *IntelligenceSource) Name() string { return "llm_intelligence" }

// Fetch synthesizes one intelligence report. The provider name joins the
// cache key so switching backends never replays another backend's prose.
func (s *IntelligenceSource) Fetch(ctx context.Context, spec QuerySpec) (*RecordIterator, error) {
	if s.mock {
		return NewRecordIterator(mockIntelRecords()), nil
	}
	if spec.ReportType == "" {
		return nil, NewSourceError(s.Name(), "fetch", "report type required", nil)
	}

	provider, err := s.resolve(spec.Provider)
	if err != nil {
		return nil, NewSourceError(s.Name(), "fetch", "resolve provider", err)
	}

	params := map[string]any{
		"report_type": spec.ReportType,
		"time_period": spec.TimePeriod,
		"focus":       strings.Join(spec.GeographicFocus, ","),
		"subject":     spec.Subject,
		"provider":    provider.Name(),
	}
	payload, err := s.mediator.Call(ctx, s.Name(), params, func(ctx context.Context) ([]byte, error) {
		return s.synthesize(ctx, provider, spec)
	})
	if err != nil {
		return nil, err
	}

	return NewRecordIterator([]RawRecord{{
		Source:  s.Name(),
		ID:      spec.ReportType,
		Payload: payload,
		Meta: map[string]string{
			"report_type": spec.ReportType,
			"time_period": spec.TimePeriod,
		},
	}}), nil
}

func (s *IntelligenceSource) resolve(override string) (intel.Provider, error) {
	if s.registry == nil {
		return nil, errors.New("no provider registry configured")
	}
	name := s.provider
	if override != "" {
		name = override
	}
	if name != "" {
		p, err := s.registry.Get(name)
		if err == nil {
			return p, nil
		}
		log.Printf("[Sources] ⚠️  intel provider %q unavailable, using primary: %v", name, err)
	}
	return s.registry.Primary()
}

func (s *IntelligenceSource) synthesize(ctx context.Context, provider intel.Provider, spec QuerySpec) ([]byte, error) {
	rep, err := provider.Synthesize(ctx, intel.ReportSpec{
		ReportType:      spec.ReportType,
		TimePeriod:      spec.TimePeriod,
		GeographicFocus: spec.GeographicFocus,
		Subject:         spec.Subject,
	})
	if err != nil {
		var apiErr *intel.APIError
		if errors.As(err, &apiErr) {
			return nil, &mediator.APIError{
				StatusCode: apiErr.StatusCode,
				Type:       apiErr.Type,
				Message:    apiErr.Message,
			}
		}
		return nil, err
	}
	// Field queries answer with one small JSON object, so only full
	// reports carry the length floor.
	minChars := intelMinReportChars
	if strings.HasPrefix(spec.ReportType, "field_") {
		minChars = 2
	}
	if len(strings.TrimSpace(rep.Text)) < minChars {
		return nil, mediator.ErrInsufficientContent
	}

	return json.Marshal(intelEnvelope{
		ReportType:      spec.ReportType,
		TimePeriod:      spec.TimePeriod,
		GeographicFocus: spec.GeographicFocus,
		Provider:        provider.Name(),
		Model:           rep.Model,
		ResponseID:      rep.ResponseID,
		TokensUsed:      rep.TokensUsed,
		Citations:       rep.Citations,
		Text:            rep.Text,
	})
}

// intelEnvelope is the cached report payload. It carries the full report
// identity so a replayed payload parses without any call-time state.
type intelEnvelope struct {
	ReportType      string   `json:"report_type"`
	TimePeriod      string   `json:"time_period"`
	GeographicFocus []string `json:"geographic_focus,omitempty"`
	Provider        string   `json:"provider"`
	Model           string   `json:"model"`
	ResponseID      string   `json:"response_id,omitempty"`
	TokensUsed      int      `json:"tokens_used"`
	Citations       []string `json:"citations,omitempty"`
	Text            string   `json:"text"`
}

// Parse converts one report envelope into an IntelReport.
func (s *IntelligenceSource) Parse(raw RawRecord) (TypedRecord, *Discard) {
	var env intelEnvelope
	if err := json.Unmarshal(raw.Payload, &env); err != nil {
		return nil, &Discard{Reason: DiscardValidationFailed, Detail: fmt.Sprintf("malformed report envelope: %v", err)}
	}
	if strings.TrimSpace(env.Text) == "" {
		return nil, &Discard{Reason: DiscardValidationFailed, Detail: "report has no text"}
	}
	return &IntelReport{
		ReportType:      env.ReportType,
		TimePeriod:      env.TimePeriod,
		GeographicFocus: env.GeographicFocus,
		Text:            env.Text,
		ResponseID:      env.ResponseID,
		Provider:        env.Provider,
		Model:           env.Model,
		TokensUsed:      env.TokensUsed,
		Citations:       env.Citations,
	}, nil
}
