// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baobab/platform/collector/store"
	"baobab/platform/shared/types"
)

func newCommunity(st *fakeStore) *Community {
	return NewCommunity(st, DefaultConfig(), fixedClock{now: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)})
}

func TestCommunitySubmissionValidation(t *testing.T) {
	st := newFakeStore()
	c := newCommunity(st)
	ctx := context.Background()

	_, err := c.Submit(ctx, types.CommunitySubmission{SubmitterID: "reader-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(types.ErrKindValidation))

	_, err = c.Submit(ctx, types.CommunitySubmission{Title: "Kiri Health"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(types.ErrKindValidation))

	_, err = c.Submit(ctx, types.CommunitySubmission{
		Title:        "Correction for missing record",
		SubmitterID:  "reader-1",
		InnovationID: "inn-does-not-exist",
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	sub, err := c.Submit(ctx, types.CommunitySubmission{
		Title:       "  Kiri Health  ",
		Description: "Telemedicine triage for rural clinics in Ghana.",
		SubmitterID: "reader-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.SubmissionID)
	assert.Equal(t, "Kiri Health", sub.Title)
	assert.False(t, sub.CreatedAt.IsZero())

	pending, err := c.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, sub.SubmissionID, pending[0].SubmissionID)
}

func TestCommunityVotePromotesAtThreshold(t *testing.T) {
	st := newFakeStore()
	c := newCommunity(st)
	ctx := context.Background()

	id := seedInnovation(t, st, &types.Innovation{
		Title:              "Kiri Health",
		VerificationStatus: types.VerificationPending,
		Visibility:         types.VisibilityHidden,
	})

	for i := 1; i <= 2; i++ {
		out, err := c.Vote(ctx, types.CommunityVote{
			InnovationID: id,
			VoterID:      fmt.Sprintf("voter-%d", i),
			Upvote:       true,
		})
		require.NoError(t, err)
		assert.Equal(t, i, out.Upvotes)
		assert.False(t, out.Promoted)
		assert.Equal(t, types.VerificationPending, out.Status)
	}

	out, err := c.Vote(ctx, types.CommunityVote{InnovationID: id, VoterID: "voter-3", Upvote: true})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Upvotes)
	assert.True(t, out.Promoted)
	assert.Equal(t, types.VerificationCommunity, out.Status)

	inn, err := st.GetInnovation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.VerificationCommunity, inn.VerificationStatus)
	assert.Equal(t, types.VisibilityPublic, inn.Visibility)

	// Further upvotes keep the record where it is.
	out, err = c.Vote(ctx, types.CommunityVote{InnovationID: id, VoterID: "voter-4", Upvote: true})
	require.NoError(t, err)
	assert.False(t, out.Promoted)
	assert.Equal(t, types.VerificationCommunity, out.Status)
}

func TestCommunityRepeatVoterDoesNotDoubleCount(t *testing.T) {
	st := newFakeStore()
	c := newCommunity(st)
	ctx := context.Background()

	id := seedInnovation(t, st, &types.Innovation{
		Title:              "Savanna Credit",
		VerificationStatus: types.VerificationPending,
	})

	out, err := c.Vote(ctx, types.CommunityVote{InnovationID: id, VoterID: "voter-1", Upvote: true})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Upvotes)

	out, err = c.Vote(ctx, types.CommunityVote{InnovationID: id, VoterID: "voter-1", Upvote: true})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Upvotes, "same voter must not count twice")

	out, err = c.Vote(ctx, types.CommunityVote{InnovationID: id, VoterID: "voter-1", Upvote: false})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Upvotes, "a flipped vote replaces the earlier one")
}

func TestCommunityVotesNeverDowngradeVerification(t *testing.T) {
	st := newFakeStore()
	c := newCommunity(st)
	ctx := context.Background()

	verified := seedInnovation(t, st, &types.Innovation{
		Title:              "Masakhane NER",
		VerificationStatus: types.VerificationVerified,
		Visibility:         types.VisibilityPublic,
	})
	rejected := seedInnovation(t, st, &types.Innovation{
		Title:              "Vapor Startup",
		VerificationStatus: types.VerificationRejected,
		Visibility:         types.VisibilityHidden,
	})

	for _, id := range []string{verified, rejected} {
		for i := 1; i <= 3; i++ {
			_, err := c.Vote(ctx, types.CommunityVote{
				InnovationID: id,
				VoterID:      fmt.Sprintf("voter-%d", i),
				Upvote:       true,
			})
			require.NoError(t, err)
		}
	}

	inn, err := st.GetInnovation(ctx, verified)
	require.NoError(t, err)
	assert.Equal(t, types.VerificationVerified, inn.VerificationStatus)

	inn, err = st.GetInnovation(ctx, rejected)
	require.NoError(t, err)
	assert.Equal(t, types.VerificationRejected, inn.VerificationStatus)
	assert.Equal(t, types.VisibilityHidden, inn.Visibility)
}

func TestCommunityVoteRequiresExistingRecord(t *testing.T) {
	st := newFakeStore()
	c := newCommunity(st)

	_, err := c.Vote(context.Background(), types.CommunityVote{
		InnovationID: "inn-missing",
		VoterID:      "voter-1",
		Upvote:       true,
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = c.Vote(context.Background(), types.CommunityVote{InnovationID: "inn-missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(types.ErrKindValidation))
}