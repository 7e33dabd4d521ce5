package store_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"fest-ticketing/internal/models"
	"fest-ticketing/internal/store"
)

func setupTestDB(t *testing.T) (*store.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	models := []interface{}{
		(*models.User)(nil),
		(*models.Ticket)(nil),
		(*models.SeasonCounter)(nil),
		(*models.ScanLog)(nil),
		(*models.AuditLog)(nil),
	}
	for _, m := range models {
		if _, err := bunDB.NewCreateTable().Model(m).Exec(context.Background()); err != nil {
			t.Fatalf("Failed to create table for %T: %v", m, err)
		}
	}

	return store.New(bunDB), bunDB
}

func TestEnsureAndFindUser(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	err := db.EnsureUser(ctx, 42, "en")
	require.NoError(t, err)

	user, err := db.FindUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), user.ID)
	assert.Equal(t, "en", user.Language)
	assert.False(t, user.FirstSeen.IsZero())

	// A second EnsureUser must not touch the existing record.
	firstSeen := user.FirstSeen
	err = db.EnsureUser(ctx, 42, "ru")
	require.NoError(t, err)

	user, err = db.FindUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "en", user.Language)
	assert.Equal(t, firstSeen.UTC(), user.FirstSeen.UTC())

	// Unknown user maps to ErrNotFound.
	_, err = db.FindUser(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindUserByTicketIDIsSeasonScoped(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	require.NoError(t, db.EnsureUser(ctx, 7, "en"))
	ticket := &models.Ticket{
		TicketID:  "aabbccddeeff00112233445566778899",
		UserID:    7,
		Season:    "2024",
		Key:       "011",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.CreateTicket(ctx, ticket))

	user, err := db.FindUserByTicketID(ctx, ticket.TicketID, "2024")
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)

	// The same token does not resolve for another season.
	_, err = db.FindUserByTicketID(ctx, ticket.TicketID, "2025")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = db.FindUserByTicketID(ctx, "no-such-token", "2024")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTicketKeyExists(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	require.NoError(t, db.EnsureUser(ctx, 1, ""))
	ticket := &models.Ticket{
		TicketID:  "00112233445566778899aabbccddeeff",
		UserID:    1,
		Season:    "2025",
		Key:       "011",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.CreateTicket(ctx, ticket))

	exists, err := db.TicketKeyExists(ctx, "2025", "011")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = db.TicketKeyExists(ctx, "2025", "012")
	require.NoError(t, err)
	assert.False(t, exists)

	// Keys are season-scoped.
	exists, err = db.TicketKeyExists(ctx, "2024", "011")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCounterReadAndAdvance(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	// Empty store: no counter yet.
	value, ok, err := db.ReadCounter(ctx, "2025")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), value)

	// First advance inserts the row.
	require.NoError(t, db.AdvanceCounter(ctx, "2025", 0, 11))

	value, ok, err = db.ReadCounter(ctx, "2025")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(11), value)

	// Compare-and-swap succeeds from the observed value.
	require.NoError(t, db.AdvanceCounter(ctx, "2025", 11, 12))

	// A stale writer loses.
	err = db.AdvanceCounter(ctx, "2025", 11, 13)
	assert.ErrorIs(t, err, store.ErrCounterConflict)

	// A duplicate insert loses too.
	err = db.AdvanceCounter(ctx, "2025", 0, 14)
	assert.ErrorIs(t, err, store.ErrCounterConflict)

	value, _, err = db.ReadCounter(ctx, "2025")
	require.NoError(t, err)
	assert.Equal(t, int64(12), value)
}

func TestSetLastScanned(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	require.NoError(t, db.EnsureUser(ctx, 5, ""))
	ticket := &models.Ticket{
		TicketID:  "ffeeddccbbaa00998877665544332211",
		UserID:    5,
		Season:    "2025",
		Key:       "011",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.CreateTicket(ctx, ticket))

	scannedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.SetLastScanned(ctx, 5, "2025", scannedAt))

	stored, err := db.FindTicket(ctx, 5, "2025")
	require.NoError(t, err)
	require.NotNil(t, stored.LastScannedAt)
	assert.Equal(t, scannedAt, stored.LastScannedAt.UTC())

	// No ticket in that season: nothing to stamp.
	err = db.SetLastScanned(ctx, 5, "2024", scannedAt)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetDaysAndQuestionnaire(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	require.NoError(t, db.EnsureUser(ctx, 9, ""))
	ticket := &models.Ticket{
		TicketID:  "0123456789abcdef0123456789abcdef",
		UserID:    9,
		Season:    "2025",
		Key:       "011",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.CreateTicket(ctx, ticket))

	days := map[string]bool{"date_4_10": true, "date_5_10": false, "date_6_10": true}
	require.NoError(t, db.SetDays(ctx, 9, "2025", days))
	require.NoError(t, db.SetQuestionnaire(ctx, 9, "2025", "Montenegro", "friends"))

	stored, err := db.FindTicket(ctx, 9, "2025")
	require.NoError(t, err)
	assert.Equal(t, days, stored.Days)
	assert.Equal(t, "Montenegro", stored.Country)
	assert.Equal(t, "friends", stored.Source)

	// Updating days for a missing ticket reports the miss.
	err = db.SetDays(ctx, 9, "2024", days)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteUserKeepsCounterAndLogs(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	require.NoError(t, db.EnsureUser(ctx, 3, ""))
	ticket := &models.Ticket{
		TicketID:  "abcdefabcdefabcdefabcdefabcdefab",
		UserID:    3,
		Season:    "2025",
		Key:       "011",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.CreateTicket(ctx, ticket))
	require.NoError(t, db.AdvanceCounter(ctx, "2025", 0, 11))
	require.NoError(t, db.AppendScanLog(ctx, &models.ScanLog{
		OperatorID: 100, UserID: 3, Season: "2025", ScannedAt: time.Now().UTC(),
	}))

	require.NoError(t, db.DeleteUser(ctx, 3))

	_, err := db.FindUser(ctx, 3)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = db.FindTicket(ctx, 3, "2025")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The counter survives, so the deleted key stays consumed.
	value, ok, err := db.ReadCounter(ctx, "2025")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(11), value)

	// The audit trail survives too.
	count, err := bunDB.NewSelect().Model((*models.ScanLog)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAuditLogAndExportReads(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	require.NoError(t, db.AppendAuditLog(ctx, "utm", map[string]string{"user_id": "1", "utm_data": "utm_source=web"}))
	require.NoError(t, db.AppendAuditLog(ctx, "other", map[string]string{"k": "v"}))

	entries, err := db.AuditByAction(ctx, "utm")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "utm_source=web", entries[0].Details["utm_data"])

	require.NoError(t, db.EnsureUser(ctx, 1, "en"))
	require.NoError(t, db.EnsureUser(ctx, 2, "ru"))
	require.NoError(t, db.CreateTicket(ctx, &models.Ticket{
		TicketID: "11111111111111111111111111111111", UserID: 1, Season: "2025", Key: "011",
		CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, db.CreateTicket(ctx, &models.Ticket{
		TicketID: "22222222222222222222222222222222", UserID: 2, Season: "2025", Key: "012",
		CreatedAt: time.Now().UTC().Add(time.Second),
	}))

	exported, err := db.TicketsForExport(ctx, "2025")
	require.NoError(t, err)
	require.Len(t, exported, 2)
	assert.Equal(t, "011", exported[0].Key)
	assert.Equal(t, "012", exported[1].Key)

	ids, err := db.UserIDs(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	ids, err = db.UserIDs(ctx, "ru")
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)
}
