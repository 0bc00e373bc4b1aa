// Package market defines the marketplace domain model: posts, applications
// and profiles, together with the status machines the orchestrator enforces.
package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// PostStatus is the closed set of lifecycle states of a post.
type PostStatus string

const (
	PostOpen       PostStatus = "open"
	PostInProgress PostStatus = "in_progress"
	PostCompleted  PostStatus = "completed"
	PostCancelled  PostStatus = "cancelled"
)

// Valid reports whether s is a known post status.
func (s PostStatus) Valid() bool {
	switch s {
	case PostOpen, PostInProgress, PostCompleted, PostCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s PostStatus) Terminal() bool {
	return s == PostCompleted || s == PostCancelled
}

// CanTransition reports whether the status machine permits moving from s to
// next. Transitions are monotonic except the single backward edge
// in_progress -> open used when an accepted bid is cancelled.
func (s PostStatus) CanTransition(next PostStatus) bool {
	switch s {
	case PostOpen:
		return next == PostInProgress || next == PostCancelled
	case PostInProgress:
		return next == PostCompleted || next == PostOpen
	default:
		return false
	}
}

// ApplicationStatus is the closed set of states of a helper's bid.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationAccepted ApplicationStatus = "accepted"
	ApplicationRejected ApplicationStatus = "rejected"
)

// Valid reports whether s is a known application status.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationPending, ApplicationAccepted, ApplicationRejected:
		return true
	}
	return false
}

// Post is the off-chain projection of a help request and its escrow. The
// on-chain program remains authoritative for fund movement; this row exists
// for search, display and contact gating.
type Post struct {
	ID          string // index row id, independent of the on-chain PostID
	PostID      uint64 // on-chain identifier, unique per publisher
	Title       string
	Description string
	Category    string
	Tags        []string
	// Value is the helper payout; PlatformFee and TotalDeposit are derived
	// by the fee calculator and must match what the program debits.
	Value        decimal.Decimal
	PlatformFee  decimal.Decimal
	TotalDeposit decimal.Decimal
	Status       PostStatus
	PublisherID  string
	// PublisherAddress is the publisher's chain identity (base58).
	PublisherAddress string
	// TxSignature is set iff the on-chain create landed. A row without it is
	// in the funded-not-indexed repair window and carries NeedsSync.
	TxSignature string
	// NeedsSync flags the row for the reconciliation poller.
	NeedsSync bool
	Deadline  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Application is one helper's bid on one post. The chain calls the same
// entity a help request.
type Application struct {
	ID            string
	PostRowID     string // owning Post.ID
	HelperID      string
	HelperAddress string
	Message       string
	BidAmount     decimal.Decimal
	Status        ApplicationStatus
	TxSignature   string
	AppliedAt     time.Time
	UpdatedAt     time.Time
}

// Profile is the identity and contact projection for a user. Contact fields
// are revealed to counterparties only after acceptance.
type Profile struct {
	ID            string
	UserID        string
	Name          string
	Email         string
	Phone         string
	Skype         string
	Country       string
	Specialties   []string
	WalletAddress string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ContactCard is the gated contact slice of a profile.
type ContactCard struct {
	Name  string
	Email string
	Phone string
	Skype string
}

// Contact returns the gated contact fields of a profile.
func (p Profile) Contact() ContactCard {
	return ContactCard{Name: p.Name, Email: p.Email, Phone: p.Phone, Skype: p.Skype}
}

// PostWithApplications is the compound read used by the orchestrator and the
// dashboard: a post plus all bids against it.
type PostWithApplications struct {
	Post         Post
	Applications []Application
}

// AcceptedApplication returns the single accepted application, if any.
func (p PostWithApplications) AcceptedApplication() (Application, bool) {
	for _, app := range p.Applications {
		if app.Status == ApplicationAccepted {
			return app, true
		}
	}
	return Application{}, false
}

// ApplicationBy returns the application filed by the given helper, if any.
func (p PostWithApplications) ApplicationBy(helperID string) (Application, bool) {
	for _, app := range p.Applications {
		if app.HelperID == helperID {
			return app, true
		}
	}
	return Application{}, false
}
