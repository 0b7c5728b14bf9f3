// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"baobab/platform/collector/store"
	"baobab/platform/shared/logger"
	"baobab/platform/shared/types"
)

// Community accepts reader submissions and votes. A record that collects
// enough distinct upvotes moves pending to community and becomes publicly
// visible; the verification ladder never moves backward, so verified and
// rejected records ignore the tally.
type Community struct {
	st    store.Gateway
	cfg   *Config
	clock Clock
	log   *logger.Logger
}

// VoteOutcome reports what one vote did to the record.
type VoteOutcome struct {
	VoteID   string                   `json:"vote_id"`
	Upvotes  int                      `json:"upvotes"`
	Promoted bool                     `json:"promoted"`
	Status   types.VerificationStatus `json:"verification_status"`
}

func NewCommunity(st store.Gateway, cfg *Config, clock Clock) *Community {
	if clock == nil {
		clock = RealClock{}
	}
	return &Community{st: st, cfg: cfg, clock: clock, log: logger.New("community")}
}

// Submit validates and stores one proposal. A correction must reference a
// record that exists.
func (c *Community) Submit(ctx context.Context, sub types.CommunitySubmission) (*types.CommunitySubmission, error) {
	sub.Title = strings.TrimSpace(sub.Title)
	if sub.Title == "" {
		return nil, fmt.Errorf("%s: submission title is required", types.ErrKindValidation)
	}
	if strings.TrimSpace(sub.SubmitterID) == "" {
		return nil, fmt.Errorf("%s: submitter id is required", types.ErrKindValidation)
	}
	if sub.InnovationID != "" {
		if _, err := c.st.GetInnovation(ctx, sub.InnovationID); err != nil {
			return nil, fmt.Errorf("submission target %s: %w", sub.InnovationID, err)
		}
	}

	sub.SubmissionID = uuid.New().String()
	sub.CreatedAt = c.clock.Now()
	if err := c.st.SaveSubmission(ctx, &sub); err != nil {
		return nil, err
	}
	c.log.Info("community", "", "submission stored", map[string]interface{}{
		"submission_id": sub.SubmissionID,
		"title":         sub.Title,
		"correction":    sub.InnovationID != "",
	})
	return &sub, nil
}

// Vote records one vote. A repeat vote by the same voter replaces the
// earlier one, so the tally counts distinct upvoters. Promotion happens at
// the configured threshold and only ever upward.
func (c *Community) Vote(ctx context.Context, vote types.CommunityVote) (*VoteOutcome, error) {
	if strings.TrimSpace(vote.VoterID) == "" {
		return nil, fmt.Errorf("%s: voter id is required", types.ErrKindValidation)
	}
	inn, err := c.st.GetInnovation(ctx, vote.InnovationID)
	if err != nil {
		return nil, fmt.Errorf("vote target %s: %w", vote.InnovationID, err)
	}

	vote.VoteID = uuid.New().String()
	vote.CreatedAt = c.clock.Now()
	if err := c.st.SaveVote(ctx, &vote); err != nil {
		return nil, err
	}

	upvotes, err := c.st.UpvoteCount(ctx, vote.InnovationID)
	if err != nil {
		return nil, err
	}

	out := &VoteOutcome{VoteID: vote.VoteID, Upvotes: upvotes, Status: inn.VerificationStatus}
	if vote.Upvote && upvotes >= c.cfg.CommunityPromoteVotes &&
		inn.VerificationStatus != types.VerificationCommunity &&
		types.CanTransitionVerification(inn.VerificationStatus, types.VerificationCommunity) {
		inn.VerificationStatus = types.VerificationCommunity
		inn.Visibility = types.VisibilityPublic
		inn.UpdatedAt = c.clock.Now()
		if err := c.st.UpdateInnovation(ctx, inn); err != nil {
			return nil, err
		}
		out.Promoted = true
		out.Status = types.VerificationCommunity
		c.log.Info("community", "", "record promoted by community votes", map[string]interface{}{
			"innovation_id": vote.InnovationID,
			"upvotes":       upvotes,
		})
	}
	return out, nil
}

// Pending lists the newest submissions awaiting review.
func (c *Community) Pending(ctx context.Context, limit int) ([]types.CommunitySubmission, error) {
	if limit <= 0 {
		limit = 20
	}
	return c.st.PendingSubmissions(ctx, limit)
}
