package escrow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coduet-labs/escrow-layer/internal/chain"
	"github.com/coduet-labs/escrow-layer/internal/market"
)

func TestSweepRepairsDriftedStatus(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t)

	// Simulate drift: chain completed the post but the index never heard.
	post.Status = market.PostOpen
	post.NeedsSync = true
	_, err := f.index.UpdatePost(f.ctx, post)
	require.NoError(t, err)
	f.ledger.post = &chain.PostAccount{
		ID: post.PostID, Value: 1_500_000_000, IsCompleted: true,
	}

	r := NewReconciler(f.ledger, f.index, 0, nil)
	require.NoError(t, r.Sweep(f.ctx))

	repaired, err := f.index.GetPost(f.ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, market.PostCompleted, repaired.Status)
	assert.False(t, repaired.NeedsSync)
	assert.True(t, repaired.TotalDeposit.Equal(dec("1.585")))
}

func TestSweepKeepsReopenedPostOpen(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t)
	app := f.apply(t, "helper", post)
	_, err := f.svc.Accept(f.ctx, "pub", app.ID)
	require.NoError(t, err)

	reopened, err := f.svc.CancelAcceptedBid(f.ctx, "pub", post.ID)
	require.NoError(t, err)
	require.True(t, reopened.NeedsSync)

	// Chain still carries the stale accepted helper; the local reopen wins.
	staleHelper := walletAddr(2)
	f.ledger.post = &chain.PostAccount{
		ID: post.PostID, Value: 1_500_000_000, IsOpen: false, AcceptedHelper: &staleHelper,
	}

	r := NewReconciler(f.ledger, f.index, 0, nil)
	require.NoError(t, r.Sweep(f.ctx))

	repaired, err := f.index.GetPost(f.ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, market.PostOpen, repaired.Status)
	assert.False(t, repaired.NeedsSync)
}

func TestSweepLeavesFlagOnChainReadFailure(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t)

	post.NeedsSync = true
	_, err := f.index.UpdatePost(f.ctx, post)
	require.NoError(t, err)
	f.ledger.postErr = chain.ErrAmbiguousOutcome

	r := NewReconciler(f.ledger, f.index, 0, nil)
	require.NoError(t, r.Sweep(f.ctx))

	// Row keeps its flag and is retried next sweep.
	pending, err := f.index.ListPostsNeedingSync(f.ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSweepNoopWhenClean(t *testing.T) {
	f := newFixture(t)
	f.createPost(t)

	r := NewReconciler(f.ledger, f.index, 0, nil)
	require.NoError(t, r.Sweep(f.ctx))
}
