// Package escrow implements the transaction orchestrator: it sequences
// escrow program calls against the index projection, enforces the post and
// application state machines, and defines the failure policy when the two
// ledgers disagree. The program is always called before the index is
// written; the index is a recoverable cache, never a funds dependency.
package escrow

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coduet-labs/escrow-layer/internal/chain"
	"github.com/coduet-labs/escrow-layer/internal/market"
	"github.com/coduet-labs/escrow-layer/internal/metrics"
	"github.com/coduet-labs/escrow-layer/internal/notify"
	"github.com/coduet-labs/escrow-layer/internal/storage"
	"github.com/coduet-labs/escrow-layer/pkg/logger"
)

// Limits the program enforces on post text; checked locally so bad input
// never costs a network round trip.
const (
	maxTitleLen       = 100
	maxDescriptionLen = 2000
)

// Ledger is the slice of the chain client the orchestrator depends on.
type Ledger interface {
	CreatePost(ctx context.Context, vault chain.VaultHandle, args chain.CreatePostArgs) (string, error)
	ApplyHelp(ctx context.Context, vault chain.VaultHandle, postID uint64, applicant chain.Address) (string, error)
	AcceptHelper(ctx context.Context, vault chain.VaultHandle, postID uint64, applicant, publisher chain.Address) (string, error)
	CompleteContract(ctx context.Context, vault chain.VaultHandle, postID uint64, publisher, helper chain.Address) (string, error)
	CancelPost(ctx context.Context, vault chain.VaultHandle, postID uint64, publisher chain.Address) (string, error)
	GetPost(ctx context.Context, postID uint64) (*chain.PostAccount, error)
	GetHelpRequest(ctx context.Context, postID uint64, applicant chain.Address) (*chain.HelpRequestAccount, error)
	GetBalance(ctx context.Context, addr chain.Address) (uint64, error)
}

// Service coordinates the escrow program and the index store per use-case.
type Service struct {
	ledger Ledger
	index  storage.Index
	outbox notify.OutboxStore
	vault  chain.VaultHandle
	log    *logger.Logger

	// newPostID generates collision-resistant on-chain post identifiers;
	// replaced in tests.
	newPostID func() (uint64, error)
}

// New constructs the orchestrator. The vault handle is threaded explicitly
// through every ledger call; there is no module-level vault.
func New(ledger Ledger, index storage.Index, outbox notify.OutboxStore, vault chain.VaultHandle, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("escrow")
	}
	return &Service{
		ledger:    ledger,
		index:     index,
		outbox:    outbox,
		vault:     vault,
		log:       log,
		newPostID: randomPostID,
	}
}

// randomPostID draws a random 63-bit identifier. Identifiers are random
// rather than timestamp-derived so concurrent publishers cannot collide;
// the program's DuplicatePostId remains the final arbiter.
func randomPostID() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("generate post id: %w", err)
	}
	id := binary.LittleEndian.Uint64(buf[:]) >> 1
	if id == 0 {
		id = 1
	}
	return id, nil
}

// PostDraft is the publisher-supplied content of a new post.
type PostDraft struct {
	Title       string
	Description string
	Category    string
	Tags        []string
	Value       decimal.Decimal
	Deadline    time.Time
}

// CreatePost escrows the deposit on chain and projects the new post into
// the index. If the ledger call fails nothing is written; if the ledger
// call succeeds and the index write fails, the error is a
// *FundedNotIndexedError so the caller can retry the index write alone.
func (s *Service) CreatePost(ctx context.Context, publisherID string, draft PostDraft) (market.Post, error) {
	if err := validateDraft(draft); err != nil {
		return market.Post{}, err
	}
	quote, err := chain.QuoteDeposit(draft.Value)
	if err != nil {
		return market.Post{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	profile, err := s.index.GetProfileByUser(ctx, publisherID)
	if err != nil {
		return market.Post{}, fmt.Errorf("publisher profile: %w", err)
	}
	publisherAddr, err := chain.ParseAddress(profile.WalletAddress)
	if err != nil {
		return market.Post{}, fmt.Errorf("%w: publisher wallet: %v", ErrValidation, err)
	}

	valueUnits, err := chain.ToBaseUnits(draft.Value)
	if err != nil {
		return market.Post{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Advisory balance pre-flight; the program's InsufficientFunds stays
	// authoritative and a failed lookup does not block the attempt.
	if depositUnits, unitErr := chain.ToBaseUnits(quote.TotalDeposit); unitErr == nil {
		if balance, balErr := s.ledger.GetBalance(ctx, publisherAddr); balErr == nil && balance < depositUnits {
			return market.Post{}, fmt.Errorf("%w: balance %d below required deposit %d", ErrValidation, balance, depositUnits)
		}
	}

	postID, err := s.newPostID()
	if err != nil {
		return market.Post{}, err
	}

	started := time.Now()
	sig, err := s.ledger.CreatePost(ctx, s.vault, chain.CreatePostArgs{
		PostID:      postID,
		Title:       draft.Title,
		Description: draft.Description,
		Value:       valueUnits,
		Publisher:   publisherAddr,
	})
	metrics.ObserveLedgerCall("createPost", outcomeLabel(err), time.Since(started))
	if err != nil {
		// DuplicatePostId is fatal for this id; a retry must draw a new one.
		return market.Post{}, fmt.Errorf("create post %d on ledger: %w", postID, err)
	}

	post := market.Post{
		PostID:           postID,
		Title:            draft.Title,
		Description:      draft.Description,
		Category:         draft.Category,
		Tags:             draft.Tags,
		Value:            quote.Value,
		PlatformFee:      quote.PlatformFee,
		TotalDeposit:     quote.TotalDeposit,
		Status:           market.PostOpen,
		PublisherID:      publisherID,
		PublisherAddress: profile.WalletAddress,
		TxSignature:      sig,
		Deadline:         draft.Deadline,
	}

	created, err := s.index.CreatePost(ctx, post)
	if err != nil {
		s.log.Errorf("post %d funded (tx %s) but index write failed: %v", postID, sig, err)
		return market.Post{}, &FundedNotIndexedError{Post: post, Err: err}
	}

	metrics.ObserveTransition(string(market.PostOpen))
	s.log.Infof("post %d created, escrow funded (tx %s)", postID, sig)
	return created, nil
}

// ReindexPost retries the index write of a funded post. It is idempotent:
// if the row already landed, the existing row is returned and no second row
// is created. The ledger is never called again.
func (s *Service) ReindexPost(ctx context.Context, post market.Post) (market.Post, error) {
	if post.TxSignature == "" {
		return market.Post{}, fmt.Errorf("%w: reindex requires a confirmed transaction signature", ErrValidation)
	}
	existing, err := s.index.GetPostByChainID(ctx, post.PostID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return market.Post{}, err
	}
	// The replayed payload is client-supplied, so the money columns are not
	// trusted: the row lands flagged for resync and the reconciler re-derives
	// the fee split from the authoritative escrowed value.
	post.NeedsSync = true
	created, err := s.index.CreatePost(ctx, post)
	if err != nil {
		return market.Post{}, &FundedNotIndexedError{Post: post, Err: err}
	}
	s.log.Infof("post %d reindexed (tx %s)", post.PostID, post.TxSignature)
	return created, nil
}

// Apply files a helper's bid against an open post. The index is a cheap
// guard; the program's AlreadyApplied and PostNotOpen are authoritative.
func (s *Service) Apply(ctx context.Context, helperID, postRowID, message string, bidAmount decimal.Decimal) (market.Application, error) {
	if message == "" {
		return market.Application{}, fmt.Errorf("%w: message is required", ErrValidation)
	}

	detail, err := s.index.PostWithApplications(ctx, postRowID)
	if err != nil {
		return market.Application{}, err
	}
	if detail.Post.Status != market.PostOpen {
		return market.Application{}, fmt.Errorf("%w: post is %s, not open", ErrStateConflict, detail.Post.Status)
	}
	if _, ok := detail.ApplicationBy(helperID); ok {
		return market.Application{}, fmt.Errorf("%w: helper already applied", ErrStateConflict)
	}

	profile, err := s.index.GetProfileByUser(ctx, helperID)
	if err != nil {
		return market.Application{}, fmt.Errorf("helper profile: %w", err)
	}
	helperAddr, err := chain.ParseAddress(profile.WalletAddress)
	if err != nil {
		return market.Application{}, fmt.Errorf("%w: helper wallet: %v", ErrValidation, err)
	}

	started := time.Now()
	sig, err := s.ledger.ApplyHelp(ctx, s.vault, detail.Post.PostID, helperAddr)
	metrics.ObserveLedgerCall("applyHelp", outcomeLabel(err), time.Since(started))
	if err != nil {
		return market.Application{}, fmt.Errorf("apply to post %d on ledger: %w", detail.Post.PostID, err)
	}

	app := market.Application{
		PostRowID:     postRowID,
		HelperID:      helperID,
		HelperAddress: profile.WalletAddress,
		Message:       message,
		BidAmount:     bidAmount,
		Status:        market.ApplicationPending,
		TxSignature:   sig,
	}
	created, err := s.index.CreateApplication(ctx, app)
	if err != nil {
		return market.Application{}, s.indexLag(ctx, "application", detail.Post, sig, err)
	}

	s.log.Infof("helper %s applied to post %d (tx %s)", helperID, detail.Post.PostID, sig)
	return created, nil
}

// Accept marks one pending bid accepted and moves the post to in_progress.
// The program serializes racing accepts: the loser gets a state conflict
// here after its stale view is re-synced from chain. Notification delivery
// is queued after the transition commits and never rolls it back.
func (s *Service) Accept(ctx context.Context, publisherID, applicationID string) (market.Application, error) {
	app, detail, err := s.loadApplication(ctx, publisherID, applicationID)
	if err != nil {
		return market.Application{}, err
	}
	if detail.Post.Status != market.PostOpen {
		return market.Application{}, fmt.Errorf("%w: post is %s, not open", ErrStateConflict, detail.Post.Status)
	}
	if app.Status != market.ApplicationPending {
		return market.Application{}, fmt.Errorf("%w: application is %s, not pending", ErrStateConflict, app.Status)
	}

	helperAddr, err := chain.ParseAddress(app.HelperAddress)
	if err != nil {
		return market.Application{}, fmt.Errorf("%w: helper wallet: %v", ErrValidation, err)
	}
	publisherAddr, err := chain.ParseAddress(detail.Post.PublisherAddress)
	if err != nil {
		return market.Application{}, fmt.Errorf("%w: publisher wallet: %v", ErrValidation, err)
	}

	started := time.Now()
	sig, err := s.ledger.AcceptHelper(ctx, s.vault, detail.Post.PostID, helperAddr, publisherAddr)
	metrics.ObserveLedgerCall("acceptHelper", outcomeLabel(err), time.Since(started))
	if err != nil {
		if errors.Is(err, chain.ErrAmbiguousOutcome) {
			return market.Application{}, fmt.Errorf("accept on post %d: %w", detail.Post.PostID, err)
		}
		var pe *chain.ProgramError
		if errors.As(err, &pe) && pe.Category == chain.CategoryStateConflict {
			// Our view was stale; another accept won. Re-sync before
			// surfacing so the caller sees the real post state.
			s.resyncPost(ctx, detail.Post)
			return market.Application{}, fmt.Errorf("%w: %w", ErrStateConflict, pe)
		}
		return market.Application{}, fmt.Errorf("accept on post %d: %w", detail.Post.PostID, err)
	}

	post := detail.Post
	post.Status = market.PostInProgress

	app.Status = market.ApplicationAccepted
	app.TxSignature = sig
	updated, err := s.index.UpdateApplication(ctx, app)
	if err != nil {
		return market.Application{}, s.indexLag(ctx, "accept", post, sig, err)
	}

	if _, err := s.index.UpdatePost(ctx, post); err != nil {
		return market.Application{}, s.indexLag(ctx, "accept", post, sig, err)
	}
	metrics.ObserveTransition(string(market.PostInProgress))

	if s.outbox != nil {
		if _, err := s.outbox.AppendEvent(ctx, notify.Event{
			Kind:          notify.EventApplicationAccepted,
			ApplicationID: updated.ID,
		}); err != nil {
			s.log.Warnf("queue acceptance notification for %s: %v", updated.ID, err)
		}
	}

	s.log.Infof("application %s accepted on post %d (tx %s)", applicationID, detail.Post.PostID, sig)
	return updated, nil
}

// Reject marks a pending bid rejected. Rejection moves no funds, so this is
// an index-only transition. Rejecting an already-rejected application is a
// no-op returning the same state.
func (s *Service) Reject(ctx context.Context, publisherID, applicationID string) (market.Application, error) {
	app, _, err := s.loadApplication(ctx, publisherID, applicationID)
	if err != nil {
		return market.Application{}, err
	}
	if app.Status == market.ApplicationRejected {
		return app, nil
	}
	if app.Status != market.ApplicationPending {
		return market.Application{}, fmt.Errorf("%w: application is %s, not pending", ErrStateConflict, app.Status)
	}

	app.Status = market.ApplicationRejected
	return s.index.UpdateApplication(ctx, app)
}

// Complete releases the escrowed value to the accepted helper. This is the
// terminal funds-releasing transition: an ambiguous outcome must never be
// retried blindly, so on timeout the caller is told to re-query chain state
// and nothing is written to the index.
func (s *Service) Complete(ctx context.Context, publisherID, postRowID string) (market.Post, error) {
	detail, err := s.index.PostWithApplications(ctx, postRowID)
	if err != nil {
		return market.Post{}, err
	}
	if detail.Post.PublisherID != publisherID {
		return market.Post{}, ErrUnauthorized
	}
	if detail.Post.Status != market.PostInProgress {
		return market.Post{}, fmt.Errorf("%w: post is %s, not in progress", ErrStateConflict, detail.Post.Status)
	}
	accepted, ok := detail.AcceptedApplication()
	if !ok {
		return market.Post{}, fmt.Errorf("%w: no accepted application on post %d", ErrStateConflict, detail.Post.PostID)
	}

	helperAddr, err := chain.ParseAddress(accepted.HelperAddress)
	if err != nil {
		return market.Post{}, fmt.Errorf("%w: helper wallet: %v", ErrValidation, err)
	}
	publisherAddr, err := chain.ParseAddress(detail.Post.PublisherAddress)
	if err != nil {
		return market.Post{}, fmt.Errorf("%w: publisher wallet: %v", ErrValidation, err)
	}

	// Verify the two ledgers agree on the deposit arithmetic before
	// releasing funds. A drifted projection must not pay out quietly.
	if acct, acctErr := s.ledger.GetPost(ctx, detail.Post.PostID); acctErr == nil {
		quote, quoteErr := chain.QuoteDeposit(chain.FromBaseUnits(acct.Value))
		if quoteErr == nil {
			if err := quote.VerifyDebit(detail.Post.TotalDeposit); err != nil {
				return market.Post{}, err
			}
		}
	}

	started := time.Now()
	sig, err := s.ledger.CompleteContract(ctx, s.vault, detail.Post.PostID, publisherAddr, helperAddr)
	metrics.ObserveLedgerCall("completeContract", outcomeLabel(err), time.Since(started))
	if err != nil {
		if errors.Is(err, chain.ErrAmbiguousOutcome) {
			return market.Post{}, fmt.Errorf("complete on post %d outcome unknown, re-query chain state before retrying: %w", detail.Post.PostID, err)
		}
		return market.Post{}, fmt.Errorf("complete post %d on ledger: %w", detail.Post.PostID, err)
	}

	post := detail.Post
	post.Status = market.PostCompleted
	updated, err := s.index.UpdatePost(ctx, post)
	if err != nil {
		return market.Post{}, s.indexLag(ctx, "completion", post, sig, err)
	}
	metrics.ObserveTransition(string(market.PostCompleted))

	s.log.Infof("post %d completed, funds released to %s (tx %s)", detail.Post.PostID, accepted.HelperAddress, sig)
	return updated, nil
}

// CancelPost refunds an open post's deposit to the publisher.
func (s *Service) CancelPost(ctx context.Context, publisherID, postRowID string) (market.Post, error) {
	post, err := s.index.GetPost(ctx, postRowID)
	if err != nil {
		return market.Post{}, err
	}
	if post.PublisherID != publisherID {
		return market.Post{}, ErrUnauthorized
	}
	if post.Status != market.PostOpen {
		return market.Post{}, fmt.Errorf("%w: post is %s, not open", ErrStateConflict, post.Status)
	}

	publisherAddr, err := chain.ParseAddress(post.PublisherAddress)
	if err != nil {
		return market.Post{}, fmt.Errorf("%w: publisher wallet: %v", ErrValidation, err)
	}

	started := time.Now()
	sig, err := s.ledger.CancelPost(ctx, s.vault, post.PostID, publisherAddr)
	metrics.ObserveLedgerCall("cancelPost", outcomeLabel(err), time.Since(started))
	if err != nil {
		if errors.Is(err, chain.ErrAmbiguousOutcome) {
			return market.Post{}, fmt.Errorf("cancel on post %d outcome unknown, re-query chain state before retrying: %w", post.PostID, err)
		}
		return market.Post{}, fmt.Errorf("cancel post %d on ledger: %w", post.PostID, err)
	}

	post.Status = market.PostCancelled
	updated, err := s.index.UpdatePost(ctx, post)
	if err != nil {
		return market.Post{}, s.indexLag(ctx, "cancellation", post, sig, err)
	}
	metrics.ObserveTransition(string(market.PostCancelled))

	s.log.Infof("post %d cancelled, deposit refunded (tx %s)", post.PostID, sig)
	return updated, nil
}

// CancelAcceptedBid demotes the accepted bid to rejected and reopens the
// post. This transition is index-only: the program's interface has no
// un-accept instruction, so the chain keeps the old accepted helper until
// the next accept or complete overwrites it. The row is flagged needs_sync
// so the reconciler surfaces the drift.
func (s *Service) CancelAcceptedBid(ctx context.Context, publisherID, postRowID string) (market.Post, error) {
	detail, err := s.index.PostWithApplications(ctx, postRowID)
	if err != nil {
		return market.Post{}, err
	}
	if detail.Post.PublisherID != publisherID {
		return market.Post{}, ErrUnauthorized
	}
	if detail.Post.Status != market.PostInProgress {
		return market.Post{}, fmt.Errorf("%w: post is %s, not in progress", ErrStateConflict, detail.Post.Status)
	}

	if accepted, ok := detail.AcceptedApplication(); ok {
		accepted.Status = market.ApplicationRejected
		if _, err := s.index.UpdateApplication(ctx, accepted); err != nil {
			return market.Post{}, fmt.Errorf("demote accepted application: %w", err)
		}
	}

	post := detail.Post
	post.Status = market.PostOpen
	post.NeedsSync = true
	updated, err := s.index.UpdatePost(ctx, post)
	if err != nil {
		return market.Post{}, fmt.Errorf("reopen post: %w", err)
	}
	metrics.ObserveTransition(string(market.PostOpen))

	s.log.Infof("accepted bid cancelled on post %d, post reopened (chain helper record left stale)", post.PostID)
	return updated, nil
}

// Reads -----------------------------------------------------------------------

// OpenPosts returns the open-post feed, newest first.
func (s *Service) OpenPosts(ctx context.Context) ([]market.Post, error) {
	return s.index.ListOpenPosts(ctx)
}

// PostsByPublisher returns a publisher's posts, newest first.
func (s *Service) PostsByPublisher(ctx context.Context, publisherID string) ([]market.Post, error) {
	return s.index.ListPostsByPublisher(ctx, publisherID)
}

// PostDetail returns a post and its applications.
func (s *Service) PostDetail(ctx context.Context, postRowID string) (market.PostWithApplications, error) {
	return s.index.PostWithApplications(ctx, postRowID)
}

// ApplicationContact reveals the counterparty's contact card for an
// accepted application. Contact details stay hidden until acceptance, and
// only the two parties involved may read them.
func (s *Service) ApplicationContact(ctx context.Context, viewerID, applicationID string) (market.ContactCard, error) {
	app, err := s.index.GetApplication(ctx, applicationID)
	if err != nil {
		return market.ContactCard{}, err
	}
	if app.Status != market.ApplicationAccepted {
		return market.ContactCard{}, fmt.Errorf("%w: contact details are revealed only after acceptance", ErrStateConflict)
	}
	post, err := s.index.GetPost(ctx, app.PostRowID)
	if err != nil {
		return market.ContactCard{}, err
	}

	var counterpartyID string
	switch viewerID {
	case post.PublisherID:
		counterpartyID = app.HelperID
	case app.HelperID:
		counterpartyID = post.PublisherID
	default:
		return market.ContactCard{}, ErrUnauthorized
	}

	profile, err := s.index.GetProfileByUser(ctx, counterpartyID)
	if err != nil {
		return market.ContactCard{}, err
	}
	return profile.Contact(), nil
}

// SaveProfile creates or updates a user's profile projection.
func (s *Service) SaveProfile(ctx context.Context, p market.Profile) (market.Profile, error) {
	if p.UserID == "" {
		return market.Profile{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if p.WalletAddress != "" {
		if _, err := chain.ParseAddress(p.WalletAddress); err != nil {
			return market.Profile{}, fmt.Errorf("%w: wallet address: %v", ErrValidation, err)
		}
	}
	if _, err := s.index.GetProfileByUser(ctx, p.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.index.CreateProfile(ctx, p)
		}
		return market.Profile{}, err
	}
	return s.index.UpdateProfile(ctx, p)
}

// Profile returns a user's profile projection.
func (s *Service) Profile(ctx context.Context, userID string) (market.Profile, error) {
	return s.index.GetProfileByUser(ctx, userID)
}

// Helpers ---------------------------------------------------------------------

func (s *Service) loadApplication(ctx context.Context, publisherID, applicationID string) (market.Application, market.PostWithApplications, error) {
	app, err := s.index.GetApplication(ctx, applicationID)
	if err != nil {
		return market.Application{}, market.PostWithApplications{}, err
	}
	detail, err := s.index.PostWithApplications(ctx, app.PostRowID)
	if err != nil {
		return market.Application{}, market.PostWithApplications{}, err
	}
	if detail.Post.PublisherID != publisherID {
		return market.Application{}, market.PostWithApplications{}, ErrUnauthorized
	}
	return app, detail, nil
}

// indexLag records a confirmed ledger transition whose index write failed.
// The row is re-written with needs_sync set so the reconciler repairs it
// from chain; if that write fails too, the typed error alone carries the
// confirmed-on-ledger signal to the caller.
func (s *Service) indexLag(ctx context.Context, op string, post market.Post, sig string, cause error) error {
	s.log.Errorf("%s of post %d confirmed (tx %s) but index write failed: %v", op, post.PostID, sig, cause)
	post.NeedsSync = true
	if _, err := s.index.UpdatePost(ctx, post); err != nil {
		s.log.Warnf("flag post %d for resync: %v", post.PostID, err)
	}
	return &IndexLagError{Op: op, PostID: post.PostID, TxSignature: sig, Err: cause}
}

// resyncPost refreshes a stale index row from chain state after a lost
// race. Best effort: a failed refresh still surfaces the original conflict.
func (s *Service) resyncPost(ctx context.Context, post market.Post) {
	acct, err := s.ledger.GetPost(ctx, post.PostID)
	if err != nil {
		s.log.Warnf("re-sync post %d from chain: %v", post.PostID, err)
		return
	}

	status := statusFromAccount(acct)
	if status == post.Status {
		return
	}

	post.Status = status
	if _, err := s.index.UpdatePost(ctx, post); err != nil {
		s.log.Warnf("re-sync post %d index write: %v", post.PostID, err)
		return
	}
	s.log.Infof("post %d re-synced from chain to %s", post.PostID, status)
}

func validateDraft(draft PostDraft) error {
	if draft.Title == "" || len(draft.Title) > maxTitleLen {
		return fmt.Errorf("%w: title must be 1-%d characters", ErrValidation, maxTitleLen)
	}
	if draft.Description == "" || len(draft.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description must be 1-%d characters", ErrValidation, maxDescriptionLen)
	}
	if !draft.Deadline.IsZero() && draft.Deadline.Before(time.Now()) {
		return fmt.Errorf("%w: deadline is in the past", ErrValidation)
	}
	return nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, chain.ErrAmbiguousOutcome):
		return "ambiguous"
	default:
		return "rejected"
	}
}
