// Package storage defines the index store interfaces: the off-chain
// relational projection of marketplace state. The projection is derived and
// rebuildable; it is never authoritative for fund movement.
package storage

import (
	"context"
	"errors"

	"github.com/coduet-labs/escrow-layer/internal/market"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint,
// such as a second application by the same helper on one post.
var ErrDuplicate = errors.New("duplicate row")

// PostStore persists post projections.
type PostStore interface {
	CreatePost(ctx context.Context, p market.Post) (market.Post, error)
	UpdatePost(ctx context.Context, p market.Post) (market.Post, error)
	GetPost(ctx context.Context, id string) (market.Post, error)
	GetPostByChainID(ctx context.Context, postID uint64) (market.Post, error)
	ListOpenPosts(ctx context.Context) ([]market.Post, error)
	ListPostsByPublisher(ctx context.Context, publisherID string) ([]market.Post, error)
	// ListPostsNeedingSync returns rows flagged for reconciliation.
	ListPostsNeedingSync(ctx context.Context) ([]market.Post, error)
	// PostWithApplications is the compound read used by the orchestrator.
	PostWithApplications(ctx context.Context, id string) (market.PostWithApplications, error)
}

// ApplicationStore persists application (bid) projections.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, a market.Application) (market.Application, error)
	UpdateApplication(ctx context.Context, a market.Application) (market.Application, error)
	GetApplication(ctx context.Context, id string) (market.Application, error)
	ListApplicationsByPost(ctx context.Context, postRowID string) ([]market.Application, error)
	ListApplicationsByHelper(ctx context.Context, helperID string) ([]market.Application, error)
}

// ProfileStore persists user identity and contact projections.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p market.Profile) (market.Profile, error)
	UpdateProfile(ctx context.Context, p market.Profile) (market.Profile, error)
	GetProfileByUser(ctx context.Context, userID string) (market.Profile, error)
}

// Index bundles the three stores the orchestrator needs.
type Index interface {
	PostStore
	ApplicationStore
	ProfileStore
}
