package postgres

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coduet-labs/escrow-layer/internal/market"
	"github.com/coduet-labs/escrow-layer/internal/notify"
	"github.com/coduet-labs/escrow-layer/internal/storage"
)

func notifyEvent(applicationID string) notify.Event {
	return notify.Event{Kind: notify.EventApplicationAccepted, ApplicationID: applicationID}
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func postRowColumns() []string {
	return []string{
		"id", "post_id", "title", "description", "category", "tags", "value", "platform_fee",
		"total_deposit", "status", "publisher_id", "publisher_address", "tx_signature",
		"needs_sync", "deadline", "created_at", "updated_at",
	}
}

func samplePostValues(id string, now time.Time) []driver.Value {
	return []driver.Value{
		id, int64(42), "fix my roof", "two loose tiles", "repairs", "{}",
		"1.5", "0.075", "1.585", "open", "pub", "wallet-pub", "sig-1", false, nil, now, now,
	}
}

func TestCreatePost(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO posts`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	post, err := store.CreatePost(context.Background(), market.Post{
		PostID:       42,
		Title:        "fix my roof",
		Description:  "two loose tiles",
		Value:        dec("1.5"),
		PlatformFee:  dec("0.075"),
		TotalDeposit: dec("1.585"),
		Status:       market.PostOpen,
		PublisherID:  "pub",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, post.ID, "row id is assigned on insert")
	assert.False(t, post.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePostDuplicateChainID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO posts`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "posts_post_id_key"})

	_, err := store.CreatePost(context.Background(), market.Post{PostID: 42, Status: market.PostOpen})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPost(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM posts WHERE id = \$1`).
		WithArgs("row-1").
		WillReturnRows(sqlmock.NewRows(postRowColumns()).AddRow(samplePostValues("row-1", now)...))

	post, err := store.GetPost(context.Background(), "row-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), post.PostID)
	assert.Equal(t, market.PostOpen, post.Status)
	assert.True(t, post.TotalDeposit.Equal(dec("1.585")))
	assert.Equal(t, "sig-1", post.TxSignature)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPostNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM posts WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(postRowColumns()))

	_, err := store.GetPost(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePostNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE posts`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdatePost(context.Background(), market.Post{ID: "missing", Status: market.PostOpen})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPostsNeedingSync(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	values := samplePostValues("row-1", now)
	values[13] = true // needs_sync
	mock.ExpectQuery(`FROM posts WHERE needs_sync`).
		WillReturnRows(sqlmock.NewRows(postRowColumns()).AddRow(values...))

	posts, err := store.ListPostsNeedingSync(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.True(t, posts[0].NeedsSync)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateApplicationDuplicateHelper(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO applications`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "applications_post_row_id_helper_id_key"})

	_, err := store.CreateApplication(context.Background(), market.Application{
		PostRowID: "row-1",
		HelperID:  "helper",
		Status:    market.ApplicationPending,
	})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetApplication(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	cols := []string{
		"id", "post_row_id", "helper_id", "helper_address", "message", "bid_amount",
		"status", "tx_signature", "applied_at", "updated_at",
	}
	mock.ExpectQuery(`FROM applications WHERE id = \$1`).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("app-1", "row-1", "helper", "wallet-helper", "i can fix it", "1.4",
				"pending", nil, now, now))

	app, err := store.GetApplication(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, market.ApplicationPending, app.Status)
	assert.True(t, app.BidAmount.Equal(dec("1.4")))
	assert.Empty(t, app.TxSignature)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfileByUser(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	cols := []string{
		"id", "user_id", "name", "email", "phone", "skype", "country", "specialties",
		"wallet_address", "created_at", "updated_at",
	}
	mock.ExpectQuery(`FROM profiles WHERE user_id = \$1`).
		WithArgs("pub").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("prof-1", "pub", "Pub User", "pub@example.com", "+100", "pub.skype",
				"NL", `{roofing,tiling}`, "wallet-pub", now, now))

	profile, err := store.GetProfileByUser(context.Background(), "pub")
	require.NoError(t, err)
	assert.Equal(t, "pub@example.com", profile.Email)
	assert.Equal(t, []string{"roofing", "tiling"}, profile.Specialties)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxLifecycle(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO outbox_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM outbox_events`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "application_id", "attempts", "last_error", "created_at"}).
			AddRow("ev-1", "application_accepted", "app-1", 0, "", now))
	mock.ExpectExec(`UPDATE outbox_events SET delivered_at`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE outbox_events SET abandoned_at`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	ev, err := store.AppendEvent(ctx, notifyEvent("app-1"))
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)

	events, err := store.ListUndelivered(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "app-1", events[0].ApplicationID)

	require.NoError(t, store.MarkDelivered(ctx, "ev-1", now))
	require.NoError(t, store.MarkAbandoned(ctx, "ev-1", now))
	assert.NoError(t, mock.ExpectationsWereMet())
}
