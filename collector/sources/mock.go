// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package sources

import "encoding/json"

// Canned records for mock mode. The fixtures carry realistic entities and
// realistically dirty edges - two of the arxiv entries score below the
// default thresholds, so a mock cycle exercises the discard path, not just
// the happy one.

func mockArxivRecords() []RawRecord {
	entries := []struct {
		id  string
		xml string
	}{
		{
			id: "http://arxiv.org/abs/2506.04412v1",
			xml: `<entry>
  <id>http://arxiv.org/abs/2506.04412v1</id>
  <title>Low-Resource Neural Machine Translation for Yoruba and Hausa</title>
  <summary>We present a natural language processing pipeline for translating
  between English and two of the most widely spoken West African languages.
  Building on corpora released by the Masakhane collective, we show that
  targeted back-translation closes most of the quality gap to high-resource
  pairs.</summary>
  <published>2025-06-03T09:30:00Z</published>
  <updated>2025-06-03T09:30:00Z</updated>
  <author><name>Adaeze Okonkwo</name><arxiv:affiliation>University of Lagos, Nigeria</arxiv:affiliation></author>
  <author><name>Kwame Mensah</name><arxiv:affiliation>Ashesi University, Ghana</arxiv:affiliation></author>
  <category term="cs.CL"/>
  <category term="cs.LG"/>
</entry>`,
		},
		{
			id: "http://arxiv.org/abs/2506.09871v2",
			xml: `<entry>
  <id>http://arxiv.org/abs/2506.09871v2</id>
  <title>Maize Disease Detection with Vision Transformers on Smallholder Farms in Kenya</title>
  <summary>Crop disease is the dominant yield risk for smallholder farmers.
  We train a computer vision model on 18,000 field photographs collected in
  Kenya and Tanzania and deploy it as an offline-first mobile app. Deep
  learning inference runs on-device in under 90ms.</summary>
  <published>2025-06-11T14:05:00Z</published>
  <updated>2025-06-12T08:41:00Z</updated>
  <author><name>Wanjiru Kamau</name><arxiv:affiliation>University of Nairobi</arxiv:affiliation></author>
  <author><name>Thomas Eriksen</name></author>
  <arxiv:doi>10.1000/demo.2506.09871</arxiv:doi>
  <category term="cs.CV"/>
</entry>`,
		},
		{
			id: "http://arxiv.org/abs/2506.11209v1",
			xml: `<entry>
  <id>http://arxiv.org/abs/2506.11209v1</id>
  <title>Spectral Properties of Random Band Matrices at Criticality</title>
  <summary>We study the delocalization transition for random band matrices
  with bandwidth growing polynomially in the dimension and establish new
  bounds on eigenvector localization length.</summary>
  <published>2025-06-14T11:12:00Z</published>
  <updated>2025-06-14T11:12:00Z</updated>
  <author><name>Ilya Morozov</name></author>
  <category term="math.PR"/>
</entry>`,
		},
		{
			id: "http://arxiv.org/abs/2506.12998v1",
			xml: `<entry>
  <id>http://arxiv.org/abs/2506.12998v1</id>
  <title>Community Health Worker Deployment Patterns in Rural Uganda</title>
  <summary>A longitudinal observational study of staffing allocation across
  214 rural clinics in Uganda, with a survey instrument covering travel time,
  caseload, and referral outcomes.</summary>
  <published>2025-06-16T07:55:00Z</published>
  <updated>2025-06-16T07:55:00Z</updated>
  <author><name>Grace Nakimuli</name><arxiv:affiliation>Makerere University</arxiv:affiliation></author>
  <category term="q-bio.PE"/>
</entry>`,
		},
	}

	records := make([]RawRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, RawRecord{Source: "arxiv", ID: e.id, Payload: []byte(e.xml)})
	}
	return records
}

func mockPubmedRecords() []RawRecord {
	articles := []struct {
		pmid string
		xml  string
	}{
		{
			pmid: "38914402",
			xml: `<PubmedArticle>
  <MedlineCitation>
    <PMID>38914402</PMID>
    <Article>
      <ArticleTitle>Deep learning for tuberculosis screening from chest radiographs in Nigeria: a multicentre validation study.</ArticleTitle>
      <Abstract>
        <AbstractText Label="BACKGROUND">Radiologist scarcity limits tuberculosis screening programmes across West Africa.</AbstractText>
        <AbstractText Label="METHODS">We validated a deep learning triage model against 12,400 radiographs from six Nigerian centres.</AbstractText>
        <AbstractText Label="FINDINGS">The model reached 0.94 AUC, matching consultant readers while reading 40 times faster.</AbstractText>
      </Abstract>
      <AuthorList>
        <Author>
          <LastName>Adeyemi</LastName>
          <ForeName>Folake</ForeName>
          <AffiliationInfo><Affiliation>College of Medicine, University of Ibadan, Ibadan, Nigeria.</Affiliation></AffiliationInfo>
        </Author>
        <Author>
          <LastName>Okafor</LastName>
          <ForeName>Chidi</ForeName>
          <AffiliationInfo><Affiliation>Department of Radiology, Lagos University Teaching Hospital.</Affiliation></AffiliationInfo>
        </Author>
      </AuthorList>
      <Journal>
        <Title>The Lancet Digital Health</Title>
        <JournalIssue><PubDate><Year>2025</Year><Month>Apr</Month><Day>15</Day></PubDate></JournalIssue>
      </Journal>
    </Article>
    <MeshHeadingList>
      <MeshHeading><DescriptorName UI="D000077321">Deep Learning</DescriptorName></MeshHeading>
      <MeshHeading><DescriptorName UI="D014376">Tuberculosis</DescriptorName></MeshHeading>
    </MeshHeadingList>
  </MedlineCitation>
  <PubmedData>
    <ArticleIdList>
      <ArticleId IdType="pubmed">38914402</ArticleId>
      <ArticleId IdType="doi">10.1000/demo.2825.0412</ArticleId>
    </ArticleIdList>
  </PubmedData>
</PubmedArticle>`,
		},
		{
			pmid: "38901177",
			xml: `<PubmedArticle>
  <MedlineCitation>
    <PMID>38901177</PMID>
    <Article>
      <ArticleTitle>Machine learning prediction of malaria outbreaks from climate data in Kenya and Tanzania.</ArticleTitle>
      <Abstract>
        <AbstractText>We combine rainfall, temperature, and case surveillance data to forecast district-level malaria incidence eight weeks ahead, outperforming the seasonal baseline in 71 of 89 districts.</AbstractText>
      </Abstract>
      <AuthorList>
        <Author><CollectiveName>KEMRI-Wellcome Trust Research Programme</CollectiveName></Author>
        <Author>
          <LastName>Mwangi</LastName>
          <ForeName>Peter</ForeName>
          <AffiliationInfo><Affiliation>University of Nairobi, Nairobi, Kenya.</Affiliation></AffiliationInfo>
        </Author>
      </AuthorList>
      <Journal>
        <Title>PLOS Global Public Health</Title>
        <JournalIssue><PubDate><MedlineDate>2025 May-Jun</MedlineDate></PubDate></JournalIssue>
      </Journal>
    </Article>
    <MeshHeadingList>
      <MeshHeading><DescriptorName UI="D000069550">Machine Learning</DescriptorName></MeshHeading>
      <MeshHeading><DescriptorName UI="D008288">Malaria</DescriptorName></MeshHeading>
    </MeshHeadingList>
  </MedlineCitation>
  <PubmedData>
    <ArticleIdList>
      <ArticleId IdType="pubmed">38901177</ArticleId>
    </ArticleIdList>
  </PubmedData>
</PubmedArticle>`,
		},
	}

	records := make([]RawRecord, 0, len(articles))
	for _, a := range articles {
		records = append(records, RawRecord{Source: "pubmed", ID: a.pmid, Payload: []byte(a.xml)})
	}
	return records
}

func mockNewsRecords() []RawRecord {
	// Cutoff in the distant past: fixtures never go stale.
	meta := func(feed, title string) map[string]string {
		return map[string]string{
			"feed":       feed,
			"feed_title": title,
			"cutoff":     "2000-01-01T00:00:00Z",
		}
	}

	return []RawRecord{
		{
			Source: "news_rss",
			ID:     "https://techcabal.com/2025/06/10/lelapa-vulavula-round/",
			Payload: []byte(`<item>
  <title>Lelapa AI raises $2.5m to expand Vulavula speech recognition</title>
  <link>https://techcabal.com/2025/06/10/lelapa-vulavula-round/</link>
  <description><![CDATA[The Johannesburg lab will use the pre-seed round to add isiZulu and Sesotho support to its <b>speech recognition</b> product and double its research team.]]></description>
  <pubDate>Tue, 10 Jun 2025 08:30:00 +0000</pubDate>
  <guid>https://techcabal.com/2025/06/10/lelapa-vulavula-round/</guid>
</item>`),
			Meta: meta("https://techcabal.com/feed/", "TechCabal"),
		},
		{
			Source: "news_rss",
			ID:     "https://disrupt-africa.com/2025/06/12/nigeria-ai-strategy/",
			Payload: []byte(`<item>
  <title>Nigeria publishes national artificial intelligence strategy</title>
  <link>https://disrupt-africa.com/2025/06/12/nigeria-ai-strategy/</link>
  <description>The federal ministry opened a 60-day comment window on the final draft, which proposes a sovereign compute fund and an AI talent visa.</description>
  <pubDate>Thu, 12 Jun 2025 06:02:11 +0000</pubDate>
  <guid>https://disrupt-africa.com/2025/06/12/nigeria-ai-strategy/</guid>
</item>`),
			Meta: meta("https://disrupt-africa.com/feed/", "Disrupt Africa"),
		},
		{
			Source: "news_rss",
			ID:     "tag:ventureburn.com,2025:masakhane-benchmark",
			Payload: []byte(`<entry>
  <title>Masakhane releases evaluation benchmark for African NLP</title>
  <link rel="alternate" href="https://ventureburn.com/2025/06/masakhane-benchmark/"/>
  <summary>The open research collective published a natural language processing benchmark spanning 31 languages, with baselines contributed by Zindi competitors.</summary>
  <published>2025-06-13T10:15:00Z</published>
  <id>tag:ventureburn.com,2025:masakhane-benchmark</id>
</entry>`),
			Meta: meta("https://ventureburn.com/feed/atom/", "Ventureburn"),
		},
	}
}

func mockSearchRecords(source string) []RawRecord {
	hits := []searchHit{
		{
			Title:       "InstaDeep and Institut Pasteur de Dakar launch genomic surveillance partnership",
			Link:        "https://www.instadeep.com/2025/05/pasteur-dakar-partnership/",
			Snippet:     "The Tunis-founded AI company will deploy pathogen early-warning models built with the Dakar institute across four West African labs.",
			Position:    1,
			Authors:     []string{"InstaDeep"},
			Year:        2025,
			Publication: "InstaDeep Newsroom",
		},
		{
			Title:       "AfriBERTa: Exploring the Viability of Pretrained Multilingual Language Models for Low-resourced Languages",
			Link:        "https://aclanthology.org/2021.mrl-1.11/",
			Snippet:     "We introduce AfriBERTa, a multilingual language model pretrained from scratch on less than 1 GB of text from 11 African languages.",
			Position:    2,
			Authors:     []string{"Kelechi Ogueji", "Yuxin Zhu", "Jimmy Lin"},
			Year:        2021,
			CitedBy:     412,
			Publication: "Proceedings of the 1st Workshop on Multilingual Representation Learning",
		},
		{
			Title:       "Amini raises $4m seed to build environmental data infrastructure for Africa",
			Link:        "https://amini.ai/press/seed-round",
			Snippet:     "The Nairobi startup combines satellite imagery and machine learning to close the continent's climate data gap.",
			Position:    3,
			Authors:     []string{"Amini"},
			Year:        2025,
			Publication: "Amini Press",
		},
	}

	records := make([]RawRecord, 0, len(hits))
	for _, h := range hits {
		payload, _ := json.Marshal(h)
		records = append(records, RawRecord{
			Source:  source,
			ID:      h.Link,
			Payload: payload,
			Meta:    map[string]string{"query": "African artificial intelligence innovation"},
		})
	}
	return records
}

func mockIntelRecords() []RawRecord {
	env := intelEnvelope{
		ReportType:      "innovation_discovery",
		TimePeriod:      "last_30_days",
		GeographicFocus: []string{"africa"},
		Provider:        "mock",
		Model:           "mock-analyst-v1",
		ResponseID:      "mock-intel-0001",
		TokensUsed:      512,
		Citations: []string{
			"https://example.com/lelapa-vulavula",
			"https://example.com/instadeep-pasteur",
		},
		Text: `AI activity across Africa this period spanned new products, research, and funding.

1. Lelapa AI launched Vulavula, a speech-to-text product covering isiZulu and Sesotho, from its Johannesburg lab (https://example.com/lelapa-vulavula).
2. InstaDeep and the Institut Pasteur de Dakar announced a genomic surveillance partnership for pathogen early warning (https://example.com/instadeep-pasteur).
3. Ethiopian startup Kunuz raised a $1.5 million seed round for Amharic document intelligence led by Launch Africa (https://example.com/kunuz-seed).`,
	}

	payload, _ := json.Marshal(env)
	return []RawRecord{{
		Source:  "llm_intelligence",
		ID:      env.ReportType,
		Payload: payload,
		Meta: map[string]string{
			"report_type": env.ReportType,
			"time_period": env.TimePeriod,
		},
	}}
}
