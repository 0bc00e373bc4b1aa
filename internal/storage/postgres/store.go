// Package postgres implements the index store over PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/coduet-labs/escrow-layer/internal/market"
	"github.com/coduet-labs/escrow-layer/internal/notify"
	"github.com/coduet-labs/escrow-layer/internal/storage"
)

// Store implements the index store interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.Index = (*Store)(nil)
var _ notify.OutboxStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// uniqueViolation is the PostgreSQL error code for constraint 23505.
func wrapWriteErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%s: %w", op, storage.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func wrapReadErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// --- rows --------------------------------------------------------------------

type postRow struct {
	ID               string          `db:"id"`
	PostID           int64           `db:"post_id"`
	Title            string          `db:"title"`
	Description      string          `db:"description"`
	Category         string          `db:"category"`
	Tags             pq.StringArray  `db:"tags"`
	Value            decimal.Decimal `db:"value"`
	PlatformFee      decimal.Decimal `db:"platform_fee"`
	TotalDeposit     decimal.Decimal `db:"total_deposit"`
	Status           string          `db:"status"`
	PublisherID      string          `db:"publisher_id"`
	PublisherAddress string          `db:"publisher_address"`
	TxSignature      sql.NullString  `db:"tx_signature"`
	NeedsSync        bool            `db:"needs_sync"`
	Deadline         sql.NullTime    `db:"deadline"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

func (r postRow) toDomain() market.Post {
	p := market.Post{
		ID:               r.ID,
		PostID:           uint64(r.PostID),
		Title:            r.Title,
		Description:      r.Description,
		Category:         r.Category,
		Tags:             append([]string(nil), r.Tags...),
		Value:            r.Value,
		PlatformFee:      r.PlatformFee,
		TotalDeposit:     r.TotalDeposit,
		Status:           market.PostStatus(r.Status),
		PublisherID:      r.PublisherID,
		PublisherAddress: r.PublisherAddress,
		NeedsSync:        r.NeedsSync,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.TxSignature.Valid {
		p.TxSignature = r.TxSignature.String
	}
	if r.Deadline.Valid {
		p.Deadline = r.Deadline.Time
	}
	return p
}

func postToRow(p market.Post) postRow {
	r := postRow{
		ID:               p.ID,
		PostID:           int64(p.PostID),
		Title:            p.Title,
		Description:      p.Description,
		Category:         p.Category,
		Tags:             pq.StringArray(p.Tags),
		Value:            p.Value,
		PlatformFee:      p.PlatformFee,
		TotalDeposit:     p.TotalDeposit,
		Status:           string(p.Status),
		PublisherID:      p.PublisherID,
		PublisherAddress: p.PublisherAddress,
		NeedsSync:        p.NeedsSync,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if p.TxSignature != "" {
		r.TxSignature = sql.NullString{String: p.TxSignature, Valid: true}
	}
	if !p.Deadline.IsZero() {
		r.Deadline = sql.NullTime{Time: p.Deadline, Valid: true}
	}
	return r
}

type applicationRow struct {
	ID            string          `db:"id"`
	PostRowID     string          `db:"post_row_id"`
	HelperID      string          `db:"helper_id"`
	HelperAddress string          `db:"helper_address"`
	Message       string          `db:"message"`
	BidAmount     decimal.Decimal `db:"bid_amount"`
	Status        string          `db:"status"`
	TxSignature   sql.NullString  `db:"tx_signature"`
	AppliedAt     time.Time       `db:"applied_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (r applicationRow) toDomain() market.Application {
	a := market.Application{
		ID:            r.ID,
		PostRowID:     r.PostRowID,
		HelperID:      r.HelperID,
		HelperAddress: r.HelperAddress,
		Message:       r.Message,
		BidAmount:     r.BidAmount,
		Status:        market.ApplicationStatus(r.Status),
		AppliedAt:     r.AppliedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.TxSignature.Valid {
		a.TxSignature = r.TxSignature.String
	}
	return a
}

func applicationToRow(a market.Application) applicationRow {
	r := applicationRow{
		ID:            a.ID,
		PostRowID:     a.PostRowID,
		HelperID:      a.HelperID,
		HelperAddress: a.HelperAddress,
		Message:       a.Message,
		BidAmount:     a.BidAmount,
		Status:        string(a.Status),
		AppliedAt:     a.AppliedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if a.TxSignature != "" {
		r.TxSignature = sql.NullString{String: a.TxSignature, Valid: true}
	}
	return r
}

type profileRow struct {
	ID            string         `db:"id"`
	UserID        string         `db:"user_id"`
	Name          string         `db:"name"`
	Email         string         `db:"email"`
	Phone         string         `db:"phone"`
	Skype         string         `db:"skype"`
	Country       string         `db:"country"`
	Specialties   pq.StringArray `db:"specialties"`
	WalletAddress string         `db:"wallet_address"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r profileRow) toDomain() market.Profile {
	return market.Profile{
		ID:            r.ID,
		UserID:        r.UserID,
		Name:          r.Name,
		Email:         r.Email,
		Phone:         r.Phone,
		Skype:         r.Skype,
		Country:       r.Country,
		Specialties:   append([]string(nil), r.Specialties...),
		WalletAddress: r.WalletAddress,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

const postColumns = `id, post_id, title, description, category, tags, value, platform_fee,
	total_deposit, status, publisher_id, publisher_address, tx_signature, needs_sync,
	deadline, created_at, updated_at`

const applicationColumns = `id, post_row_id, helper_id, helper_address, message, bid_amount,
	status, tx_signature, applied_at, updated_at`

// --- PostStore ---------------------------------------------------------------

func (s *Store) CreatePost(ctx context.Context, p market.Post) (market.Post, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES (:id, :post_id, :title, :description, :category, :tags, :value, :platform_fee,
			:total_deposit, :status, :publisher_id, :publisher_address, :tx_signature,
			:needs_sync, :deadline, :created_at, :updated_at)
	`, postToRow(p))
	if err != nil {
		return market.Post{}, wrapWriteErr("insert post", err)
	}
	return p, nil
}

func (s *Store) UpdatePost(ctx context.Context, p market.Post) (market.Post, error) {
	p.UpdatedAt = time.Now().UTC()

	result, err := s.db.NamedExecContext(ctx, `
		UPDATE posts
		SET title = :title, description = :description, category = :category, tags = :tags,
			value = :value, platform_fee = :platform_fee, total_deposit = :total_deposit,
			status = :status, tx_signature = :tx_signature, needs_sync = :needs_sync,
			deadline = :deadline, updated_at = :updated_at
		WHERE id = :id
	`, postToRow(p))
	if err != nil {
		return market.Post{}, wrapWriteErr("update post", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return market.Post{}, fmt.Errorf("update post %s: %w", p.ID, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) GetPost(ctx context.Context, id string) (market.Post, error) {
	var row postRow
	err := s.db.GetContext(ctx, &row, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	if err != nil {
		return market.Post{}, wrapReadErr("get post", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetPostByChainID(ctx context.Context, postID uint64) (market.Post, error) {
	var row postRow
	err := s.db.GetContext(ctx, &row, `SELECT `+postColumns+` FROM posts WHERE post_id = $1`, int64(postID))
	if err != nil {
		return market.Post{}, wrapReadErr("get post by chain id", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListOpenPosts(ctx context.Context) ([]market.Post, error) {
	var rows []postRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+postColumns+` FROM posts WHERE status = $1 ORDER BY created_at DESC
	`, string(market.PostOpen))
	if err != nil {
		return nil, wrapReadErr("list open posts", err)
	}
	return postsToDomain(rows), nil
}

func (s *Store) ListPostsByPublisher(ctx context.Context, publisherID string) ([]market.Post, error) {
	var rows []postRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+postColumns+` FROM posts WHERE publisher_id = $1 ORDER BY created_at DESC
	`, publisherID)
	if err != nil {
		return nil, wrapReadErr("list posts by publisher", err)
	}
	return postsToDomain(rows), nil
}

func (s *Store) ListPostsNeedingSync(ctx context.Context) ([]market.Post, error) {
	var rows []postRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+postColumns+` FROM posts WHERE needs_sync ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, wrapReadErr("list posts needing sync", err)
	}
	return postsToDomain(rows), nil
}

func (s *Store) PostWithApplications(ctx context.Context, id string) (market.PostWithApplications, error) {
	post, err := s.GetPost(ctx, id)
	if err != nil {
		return market.PostWithApplications{}, err
	}
	apps, err := s.ListApplicationsByPost(ctx, id)
	if err != nil {
		return market.PostWithApplications{}, err
	}
	return market.PostWithApplications{Post: post, Applications: apps}, nil
}

func postsToDomain(rows []postRow) []market.Post {
	result := make([]market.Post, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result
}

// --- ApplicationStore --------------------------------------------------------

func (s *Store) CreateApplication(ctx context.Context, a market.Application) (market.Application, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.AppliedAt.IsZero() {
		a.AppliedAt = now
	}
	a.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES (:id, :post_row_id, :helper_id, :helper_address, :message, :bid_amount,
			:status, :tx_signature, :applied_at, :updated_at)
	`, applicationToRow(a))
	if err != nil {
		return market.Application{}, wrapWriteErr("insert application", err)
	}
	return a, nil
}

func (s *Store) UpdateApplication(ctx context.Context, a market.Application) (market.Application, error) {
	a.UpdatedAt = time.Now().UTC()

	result, err := s.db.NamedExecContext(ctx, `
		UPDATE applications
		SET message = :message, bid_amount = :bid_amount, status = :status,
			tx_signature = :tx_signature, updated_at = :updated_at
		WHERE id = :id
	`, applicationToRow(a))
	if err != nil {
		return market.Application{}, wrapWriteErr("update application", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return market.Application{}, fmt.Errorf("update application %s: %w", a.ID, storage.ErrNotFound)
	}
	return a, nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (market.Application, error) {
	var row applicationRow
	err := s.db.GetContext(ctx, &row, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	if err != nil {
		return market.Application{}, wrapReadErr("get application", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListApplicationsByPost(ctx context.Context, postRowID string) ([]market.Application, error) {
	var rows []applicationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+applicationColumns+` FROM applications WHERE post_row_id = $1 ORDER BY applied_at
	`, postRowID)
	if err != nil {
		return nil, wrapReadErr("list applications by post", err)
	}
	result := make([]market.Application, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) ListApplicationsByHelper(ctx context.Context, helperID string) ([]market.Application, error) {
	var rows []applicationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+applicationColumns+` FROM applications WHERE helper_id = $1 ORDER BY applied_at
	`, helperID)
	if err != nil {
		return nil, wrapReadErr("list applications by helper", err)
	}
	result := make([]market.Application, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

// --- ProfileStore ------------------------------------------------------------

func (s *Store) CreateProfile(ctx context.Context, p market.Profile) (market.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, user_id, name, email, phone, skype, country, specialties,
			wallet_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.UserID, p.Name, p.Email, p.Phone, p.Skype, p.Country,
		pq.StringArray(p.Specialties), p.WalletAddress, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return market.Profile{}, wrapWriteErr("insert profile", err)
	}
	return p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, p market.Profile) (market.Profile, error) {
	p.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET name = $2, email = $3, phone = $4, skype = $5, country = $6, specialties = $7,
			wallet_address = $8, updated_at = $9
		WHERE user_id = $1
	`, p.UserID, p.Name, p.Email, p.Phone, p.Skype, p.Country,
		pq.StringArray(p.Specialties), p.WalletAddress, p.UpdatedAt)
	if err != nil {
		return market.Profile{}, wrapWriteErr("update profile", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return market.Profile{}, fmt.Errorf("update profile %s: %w", p.UserID, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) GetProfileByUser(ctx context.Context, userID string) (market.Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, name, email, phone, skype, country, specialties, wallet_address,
			created_at, updated_at
		FROM profiles WHERE user_id = $1
	`, userID)
	if err != nil {
		return market.Profile{}, wrapReadErr("get profile", err)
	}
	return row.toDomain(), nil
}

// --- OutboxStore -------------------------------------------------------------

func (s *Store) AppendEvent(ctx context.Context, ev notify.Event) (notify.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outbox_events (id, kind, application_id, attempts, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.ID, string(ev.Kind), ev.ApplicationID, ev.Attempts, ev.LastError, ev.CreatedAt)
	if err != nil {
		return notify.Event{}, wrapWriteErr("insert outbox event", err)
	}
	return ev, nil
}

func (s *Store) ListUndelivered(ctx context.Context, limit int) ([]notify.Event, error) {
	if limit <= 0 {
		limit = 32
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, application_id, attempts, last_error, created_at
		FROM outbox_events
		WHERE delivered_at IS NULL AND abandoned_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, wrapReadErr("list undelivered events", err)
	}
	defer rows.Close()

	var result []notify.Event
	for rows.Next() {
		var (
			ev   notify.Event
			kind string
		)
		if err := rows.Scan(&ev.ID, &kind, &ev.ApplicationID, &ev.Attempts, &ev.LastError, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		ev.Kind = notify.EventKind(kind)
		result = append(result, ev)
	}
	return result, rows.Err()
}

func (s *Store) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events SET delivered_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return wrapWriteErr("mark event delivered", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("mark event %s delivered: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id string, attempts int, lastError string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events SET attempts = $2, last_error = $3 WHERE id = $1
	`, id, attempts, lastError)
	if err != nil {
		return wrapWriteErr("mark event failed", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("mark event %s failed: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) MarkAbandoned(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events SET abandoned_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return wrapWriteErr("mark event abandoned", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("mark event %s abandoned: %w", id, storage.ErrNotFound)
	}
	return nil
}
