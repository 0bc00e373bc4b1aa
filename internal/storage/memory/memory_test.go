package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coduet-labs/escrow-layer/internal/market"
	"github.com/coduet-labs/escrow-layer/internal/notify"
	"github.com/coduet-labs/escrow-layer/internal/storage"
)

func TestPostCRUD(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.CreatePost(ctx, market.Post{PostID: 1, Title: "a", Status: market.PostOpen, PublisherID: "pub"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	got, err := s.GetPost(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	byChain, err := s.GetPostByChainID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byChain.ID)

	got.Status = market.PostCancelled
	updated, err := s.UpdatePost(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, market.PostCancelled, updated.Status)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt, "creation time is immutable")

	_, err = s.GetPost(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.UpdatePost(ctx, market.Post{ID: "missing"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPostChainIDUnique(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.CreatePost(ctx, market.Post{PostID: 7, Status: market.PostOpen})
	require.NoError(t, err)
	_, err = s.CreatePost(ctx, market.Post{PostID: 7, Status: market.PostOpen})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestListOpenPostsFiltersAndSorts(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i, status := range []market.PostStatus{market.PostOpen, market.PostCompleted, market.PostOpen} {
		_, err := s.CreatePost(ctx, market.Post{PostID: uint64(i + 1), Status: status, PublisherID: "pub"})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	open, err := s.ListOpenPosts(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.True(t, !open[0].CreatedAt.Before(open[1].CreatedAt), "newest first")
}

func TestOneApplicationPerHelperPerPost(t *testing.T) {
	s := New()
	ctx := context.Background()

	post, err := s.CreatePost(ctx, market.Post{PostID: 1, Status: market.PostOpen})
	require.NoError(t, err)

	_, err = s.CreateApplication(ctx, market.Application{PostRowID: post.ID, HelperID: "h1", Status: market.ApplicationPending})
	require.NoError(t, err)
	_, err = s.CreateApplication(ctx, market.Application{PostRowID: post.ID, HelperID: "h1", Status: market.ApplicationPending})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	// Same helper may bid on another post.
	other, err := s.CreatePost(ctx, market.Post{PostID: 2, Status: market.PostOpen})
	require.NoError(t, err)
	_, err = s.CreateApplication(ctx, market.Application{PostRowID: other.ID, HelperID: "h1", Status: market.ApplicationPending})
	assert.NoError(t, err)
}

func TestPostWithApplications(t *testing.T) {
	s := New()
	ctx := context.Background()

	post, err := s.CreatePost(ctx, market.Post{PostID: 1, Status: market.PostOpen})
	require.NoError(t, err)
	for _, helper := range []string{"h1", "h2"} {
		_, err := s.CreateApplication(ctx, market.Application{PostRowID: post.ID, HelperID: helper, Status: market.ApplicationPending})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	detail, err := s.PostWithApplications(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, detail.Applications, 2)
	assert.Equal(t, "h1", detail.Applications[0].HelperID, "oldest application first")
}

func TestProfileUniquePerUser(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.CreateProfile(ctx, market.Profile{UserID: "u1", Name: "one"})
	require.NoError(t, err)
	_, err = s.CreateProfile(ctx, market.Profile{UserID: "u1", Name: "two"})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	updated, err := s.UpdateProfile(ctx, market.Profile{UserID: "u1", Name: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "renamed", updated.Name)
}

func TestOutbox(t *testing.T) {
	s := New()
	ctx := context.Background()

	ev, err := s.AppendEvent(ctx, notify.Event{Kind: notify.EventApplicationAccepted, ApplicationID: "app-1"})
	require.NoError(t, err)
	require.NotEmpty(t, ev.ID)

	pending, err := s.ListUndelivered(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.MarkFailed(ctx, ev.ID, 1, "sink unavailable"))
	pending, err = s.ListUndelivered(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	require.NoError(t, s.MarkDelivered(ctx, ev.ID, time.Now()))
	pending, err = s.ListUndelivered(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// An abandoned event leaves the queue for good.
	dead, err := s.AppendEvent(ctx, notify.Event{Kind: notify.EventApplicationAccepted, ApplicationID: "app-2"})
	require.NoError(t, err)
	require.NoError(t, s.MarkAbandoned(ctx, dead.ID, time.Now()))
	pending, err = s.ListUndelivered(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.ErrorIs(t, s.MarkAbandoned(ctx, "missing", time.Now()), storage.ErrNotFound)
}
