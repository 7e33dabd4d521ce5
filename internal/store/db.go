package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"fest-ticketing/internal/models"
)

// DB is the bun-backed persistent store shared by the allocator and the
// check-in validator.
type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

func (d *DB) FindUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrap("find user", err)
	}
	return &user, nil
}

// FindUserByTicketID reverse-maps a scanned QR payload to its owner.
// The lookup is scoped to one season: a past season's ticket does not
// resolve for the current season's check-in.
func (d *DB) FindUserByTicketID(ctx context.Context, ticketID, season string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Join("JOIN tickets AS t ON t.user_id = \"user\".id").
		Where("t.ticket_id = ?", ticketID).
		Where("t.season = ?", season).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrap("find user by ticket", err)
	}
	return &user, nil
}

// EnsureUser creates the user record lazily on first contact. An
// existing record is left untouched, so FirstSeen is stamped once.
func (d *DB) EnsureUser(ctx context.Context, id int64, language string) error {
	user := models.User{
		ID:        id,
		Language:  language,
		FirstSeen: time.Now().UTC(),
	}
	_, err := d.Bun.NewInsert().
		Model(&user).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	return wrap("ensure user", err)
}

func (d *DB) SetLanguage(ctx context.Context, id int64, language string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.User)(nil)).
		Set("language = ?", language).
		Where("id = ?", id).
		Exec(ctx)
	return wrap("set language", err)
}

func (d *DB) SetMarketingTag(ctx context.Context, id int64, utm string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.User)(nil)).
		Set("utm = ?", utm).
		Where("id = ?", id).
		Exec(ctx)
	return wrap("set marketing tag", err)
}

// DeleteUser removes the user record and its tickets. Scan logs and
// season counters survive: the audit trail is append-only and issued
// keys stay consumed.
func (d *DB) DeleteUser(ctx context.Context, id int64) error {
	if _, err := d.Bun.NewDelete().
		Model((*models.Ticket)(nil)).
		Where("user_id = ?", id).
		Exec(ctx); err != nil {
		return wrap("delete user tickets", err)
	}
	_, err := d.Bun.NewDelete().
		Model((*models.User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return wrap("delete user", err)
}

func (d *DB) FindTicket(ctx context.Context, userID int64, season string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("user_id = ?", userID).
		Where("season = ?", season).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrap("find ticket", err)
	}
	return &ticket, nil
}

func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(ticket).Exec(ctx)
	return wrap("create ticket", err)
}

// TicketKeyExists probes whether a formatted sequential key is already
// taken in the season. The allocator uses it to defend against counter
// and store drifting apart.
func (d *DB) TicketKeyExists(ctx context.Context, season, key string) (bool, error) {
	exists, err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("season = ?", season).
		Where("ticket_key = ?", key).
		Exists(ctx)
	if err != nil {
		return false, wrap("probe ticket key", err)
	}
	return exists, nil
}

func (d *DB) SetQuestionnaire(ctx context.Context, userID int64, season, country, source string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("country = ?", country).
		Set("source = ?", source).
		Where("user_id = ?", userID).
		Where("season = ?", season).
		Exec(ctx)
	return wrap("set questionnaire", err)
}

func (d *DB) SetDays(ctx context.Context, userID int64, season string, days map[string]bool) error {
	ticket, err := d.FindTicket(ctx, userID, season)
	if err != nil {
		return err
	}
	ticket.Days = days
	_, err = d.Bun.NewUpdate().
		Model(ticket).
		Column("days").
		WherePK().
		Exec(ctx)
	return wrap("set days", err)
}

func (d *DB) SetLastScanned(ctx context.Context, userID int64, season string, at time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("last_scanned_at = ?", at).
		Where("user_id = ?", userID).
		Where("season = ?", season).
		Exec(ctx)
	if err != nil {
		return wrap("set last scanned", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReadCounter returns the last issued sequential value for the season.
// ok is false when no value has been issued yet.
func (d *DB) ReadCounter(ctx context.Context, season string) (value int64, ok bool, err error) {
	var counter models.SeasonCounter
	err = d.Bun.NewSelect().
		Model(&counter).
		Where("season = ?", season).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrap("read counter", err)
	}
	return counter.LastValue, true, nil
}

// AdvanceCounter durably moves the season counter from the previously
// observed value to the value just consumed. from == 0 means no counter
// row was observed. The write is a compare-and-swap: a concurrent
// advance surfaces as ErrCounterConflict instead of a silent overwrite.
func (d *DB) AdvanceCounter(ctx context.Context, season string, from, to int64) error {
	if from == 0 {
		counter := models.SeasonCounter{
			Season:    season,
			LastValue: to,
			UpdatedAt: time.Now().UTC(),
		}
		res, err := d.Bun.NewInsert().
			Model(&counter).
			On("CONFLICT (season) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return wrap("advance counter", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrCounterConflict
		}
		return nil
	}

	res, err := d.Bun.NewUpdate().
		Model((*models.SeasonCounter)(nil)).
		Set("last_value = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("season = ?", season).
		Where("last_value = ?", from).
		Exec(ctx)
	if err != nil {
		return wrap("advance counter", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrCounterConflict
	}
	return nil
}

func (d *DB) AppendScanLog(ctx context.Context, entry *models.ScanLog) error {
	_, err := d.Bun.NewInsert().Model(entry).Exec(ctx)
	return wrap("append scan log", err)
}

func (d *DB) AppendAuditLog(ctx context.Context, action string, details map[string]string) error {
	entry := models.AuditLog{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Details:   details,
	}
	_, err := d.Bun.NewInsert().Model(&entry).Exec(ctx)
	return wrap("append audit log", err)
}

// TicketsForExport lists tickets in issuance order. An empty season
// means all seasons.
func (d *DB) TicketsForExport(ctx context.Context, season string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	q := d.Bun.NewSelect().
		Model(&tickets).
		Order("created_at ASC")
	if season != "" {
		q = q.Where("season = ?", season)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, wrap("list tickets", err)
	}
	return tickets, nil
}

func (d *DB) AuditByAction(ctx context.Context, action string) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	err := d.Bun.NewSelect().
		Model(&entries).
		Where("action = ?", action).
		Order("timestamp ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrap("list audit entries", err)
	}
	return entries, nil
}

// UserIDs lists known user identifiers, optionally filtered by
// preferred language. The chat layer uses it for broadcasts.
func (d *DB) UserIDs(ctx context.Context, language string) ([]int64, error) {
	var ids []int64
	q := d.Bun.NewSelect().
		Model((*models.User)(nil)).
		Column("id").
		Order("id ASC")
	if language != "" {
		q = q.Where("language = ?", language)
	}
	if err := q.Scan(ctx, &ids); err != nil {
		return nil, wrap("list user ids", err)
	}
	return ids, nil
}
