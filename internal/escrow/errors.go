package escrow

import (
	"errors"
	"fmt"

	"github.com/coduet-labs/escrow-layer/internal/market"
)

// ErrValidation marks input rejected before any network call.
var ErrValidation = errors.New("validation failed")

// ErrUnauthorized marks a caller acting on a post they do not own.
var ErrUnauthorized = errors.New("caller does not own this post")

// ErrStateConflict marks a transition the state machine forbids. It covers
// both local guard rejections and ledger conflicts surfaced after a re-sync.
var ErrStateConflict = errors.New("state conflict")

// FundedNotIndexedError reports the narrow partial-success window of
// CreatePost: the escrow is funded on chain but the index row is missing.
// The caller retries only the index write via ReindexPost; the ledger call
// must never be repeated since postId and addresses are already fixed.
type FundedNotIndexedError struct {
	Post market.Post
	Err  error
}

func (e *FundedNotIndexedError) Error() string {
	return fmt.Sprintf("post %d funded on chain (tx %s) but not indexed: %v", e.Post.PostID, e.Post.TxSignature, e.Err)
}

func (e *FundedNotIndexedError) Unwrap() error { return e.Err }

// IndexLagError reports a partial success on an existing post: the program
// call was confirmed but the index write failed. The row is flagged
// needs_sync so the reconciler repairs it from chain; the caller must not
// repeat the program call, only re-read the post once the index catches up.
type IndexLagError struct {
	Op          string
	PostID      uint64
	TxSignature string
	Err         error
}

func (e *IndexLagError) Error() string {
	return fmt.Sprintf("%s of post %d confirmed on ledger (tx %s) but not indexed: %v", e.Op, e.PostID, e.TxSignature, e.Err)
}

func (e *IndexLagError) Unwrap() error { return e.Err }
