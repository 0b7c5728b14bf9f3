// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package intel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MockProvider returns canned synthesis for development and tests. The
// prose carries realistic entities - companies, countries, amounts, URLs -
// so the extraction pipeline has real work to do in mock cycles.
type MockProvider struct {
	name    string
	healthy bool
	delay   time.Duration
}

// NewMockProvider creates a mock provider with a small simulated latency.
func NewMockProvider() *MockProvider {
	return &MockProvider{name: "mock", healthy: true, delay: 50 * time.Millisecond}
}

// Name returns the provider name.
func (m *MockProvider) Name() string {
	return m.name
}

// Synthesize returns a canned report for the spec's report type.
func (m *MockProvider) Synthesize(ctx context.Context, spec ReportSpec) (*ReportPayload, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(m.delay):
	}

	text := mockReportText(spec)
	return &ReportPayload{
		Text:       text,
		ResponseID: "mock-" + uuid.NewString(),
		Model:      "mock-analyst-v1",
		TokensUsed: len(text) / 4,
		Citations:  []string{"https://example.com/african-ai-briefing"},
	}, nil
}

// HealthCheck reports the mock's simulated health.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	if !m.healthy {
		return fmt.Errorf("mock provider is unhealthy")
	}
	return nil
}

// EstimateCost is always zero for the mock.
func (m *MockProvider) EstimateCost(spec ReportSpec) float64 {
	return 0
}

// SetHealthy toggles the simulated health state for tests.
func (m *MockProvider) SetHealthy(healthy bool) {
	m.healthy = healthy
}

func mockReportText(spec ReportSpec) string {
	focus := strings.Join(spec.GeographicFocus, ", ")
	if focus == "" {
		focus = "Africa"
	}

	switch spec.ReportType {
	case "funding_landscape":
		return fmt.Sprintf(`AI funding across %s remained active this period, with capital concentrating in language technology and climate data.

1. InstaDeep expanded its Series B by $50 million led by Alpha Intelligence Capital to grow its Tunis and Lagos research teams (https://example.com/instadeep-series-b).
2. Kenyan startup Amini raised a $4 million seed round backed by Salesforce Ventures to build climate data infrastructure for the continent (https://example.com/amini-seed).
3. South Africa's Lelapa AI closed a $2.5 million pre-seed round to commercialize Vulavula, its multilingual speech recognition product (https://example.com/lelapa-preseed).

Grant funding also moved: the Gates Foundation committed $1.2 million to Ghanaian health-AI pilots run with mPharma (https://example.com/mpharma-grant).`, focus)

	case "research_breakthrough":
		return fmt.Sprintf(`Research groups across %s published several notable results this period.

1. The Masakhane collective released MasakhaNER 3.0, extending named-entity coverage to 30 African languages, with contributors from Makerere University and the University of Pretoria (https://example.com/masakhaner-3).
2. Researchers at Mohammed VI Polytechnic University in Morocco reported a new benchmark for Arabic-dialect speech recognition that beats commercial systems on Darija (https://example.com/um6p-darija).
3. A Makerere University team launched an open radiology dataset of 40,000 annotated chest X-rays collected across Uganda and Kenya (https://example.com/makerere-xray).`, focus)

	case "policy_development":
		return fmt.Sprintf(`Policy activity across %s accelerated this period.

1. Nigeria's Federal Ministry of Communications published the final draft of its National AI Strategy, opening a 60-day comment window (https://example.com/nigeria-ai-strategy).
2. The African Union's Continental AI Strategy moved to member-state ratification after adoption by the executive council (https://example.com/au-ai-strategy).
3. Kenya's Office of the Data Protection Commissioner issued guidance restricting biometric model training on citizen data without explicit consent (https://example.com/kenya-odpc-guidance).`, focus)

	case "talent_ecosystem":
		return fmt.Sprintf(`Talent movement across %s showed steady growth this period.

1. Deep Learning Indaba announced its 2025 program in Kigali with 800 accepted participants and new fellowship tracks funded by DeepMind (https://example.com/indaba-2025).
2. Data Science Nigeria launched a free applied machine learning bootcamp targeting 10,000 learners across six states (https://example.com/dsn-bootcamp).
3. Carnegie Mellon University Africa in Rwanda added an MSc concentration in machine learning for infrastructure, its largest cohort to date (https://example.com/cmu-africa-msc).`, focus)

	case "market_analysis":
		return fmt.Sprintf(`Commercial AI adoption across %s expanded in financial services and agritech this period.

1. Flutterwave deployed transformer-based fraud scoring across its payment rails, citing a 30 percent reduction in chargebacks (https://example.com/flutterwave-fraud).
2. Twiga Foods piloted demand forecasting with Google Cloud across Kenyan produce markets (https://example.com/twiga-forecasting).
3. Cassava Technologies announced a GPU cluster build-out in Johannesburg and Lagos targeting regional inference workloads (https://example.com/cassava-gpu).`, focus)

	default:
		return fmt.Sprintf(`AI activity across %s this period spanned new products, research, and funding.

1. Lelapa AI launched Vulavula, a speech-to-text product covering isiZulu and Sesotho, from its Johannesburg lab (https://example.com/vulavula-launch).
2. InstaDeep and the Institut Pasteur de Dakar announced a genomic surveillance partnership for pathogen early warning (https://example.com/instadeep-pasteur).
3. Ethiopian startup Kunuz raised a $1.5 million seed round for Amharic document intelligence led by Launch Africa (https://example.com/kunuz-seed).`, focus)
	}
}
