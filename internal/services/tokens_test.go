package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenTracker_ClaimedOnlyWhenAllSpent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	h.withMint(t, h.a, 64)

	pt, err := h.w.Send(ctx, mintA, 21, "")
	require.NoError(t, err)
	sent := pt.Proofs

	// within the grace window nothing is checked
	h.a.markSpent(sent)
	require.NoError(t, h.w.CheckPendingTokens(ctx))
	assert.Zero(t, h.a.statesCalls)

	h.clock.Advance(GraceWindow)
	require.NoError(t, h.w.CheckPendingTokens(ctx))

	pending, err := h.w.PendingTokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	tx, err := h.w.ledger.Get(ctx, pt.TxID)
	require.NoError(t, err)
	assert.Equal(t, models.TxPaid, tx.Status)

	events := h.events.list()
	require.Len(t, events, 1)
	assert.Equal(t, EventTokenClaimed, events[0].Kind)
	assert.Equal(t, int64(21), events[0].Amount)
}

func TestTokenTracker_PartialSpendStaysPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	tr := h.w.tokens

	ps := h.a.fund(1, 2)
	require.NoError(t, tr.Track(ctx, models.PendingToken{ID: "tok", Amount: 3, MintURL: mintA, Proofs: ps}))
	h.a.markSpent(ps[:1])
	h.clock.Advance(time.Minute)

	require.NoError(t, tr.Check(ctx))
	list, err := tr.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tok", list[0].ID)
	assert.Empty(t, h.events.list())

	h.a.markSpent(ps[1:])
	require.NoError(t, tr.Check(ctx))
	list, err = tr.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTokenTracker_SkipsEmptyAndRetriesOnError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	tr := h.w.tokens

	require.NoError(t, tr.Track(ctx, models.PendingToken{ID: "empty", MintURL: mintA}))
	ps := h.a.fund(4)
	require.NoError(t, tr.Track(ctx, models.PendingToken{ID: "tok", Amount: 4, MintURL: mintA, Proofs: ps}))
	h.a.markSpent(ps)
	h.clock.Advance(time.Minute)

	h.a.statesErr = errOffline
	require.NoError(t, tr.Check(ctx))
	list, err := tr.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	h.a.statesErr = nil
	require.NoError(t, tr.Check(ctx))
	list, err = tr.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "empty", list[0].ID)
}
