package tickets

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"fest-ticketing/internal/logger"
	"fest-ticketing/internal/models"
	"fest-ticketing/internal/store"
)

// ErrAllocationExhausted is returned when no unused sequential key is
// found within the probe budget. The budget is a defensive bound; in
// practice the first or second candidate is free.
var ErrAllocationExhausted = errors.New("no unused ticket key within probe budget")

// counterRetries bounds how often a lost counter compare-and-swap is
// retried. Conflicts only happen with multiple allocator instances.
const counterRetries = 5

type DBLayer interface {
	EnsureUser(ctx context.Context, id int64, language string) error
	FindUser(ctx context.Context, id int64) (*models.User, error)
	SetLanguage(ctx context.Context, id int64, language string) error
	SetMarketingTag(ctx context.Context, id int64, utm string) error
	DeleteUser(ctx context.Context, id int64) error
	FindTicket(ctx context.Context, userID int64, season string) (*models.Ticket, error)
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	TicketKeyExists(ctx context.Context, season, key string) (bool, error)
	SetQuestionnaire(ctx context.Context, userID int64, season, country, source string) error
	SetDays(ctx context.Context, userID int64, season string, days map[string]bool) error
	ReadCounter(ctx context.Context, season string) (int64, bool, error)
	AdvanceCounter(ctx context.Context, season string, from, to int64) error
	AppendAuditLog(ctx context.Context, action string, details map[string]string) error
	UserIDs(ctx context.Context, language string) ([]int64, error)
}

// ImageRenderer produces and caches ticket QR images.
type ImageRenderer interface {
	Render(payload, label string) (string, error)
	Image(payload, label string) ([]byte, error)
}

// Locker is an optional cross-instance guard around key allocation,
// for deployments running more than one allocator process.
type Locker interface {
	Acquire(ctx context.Context, season string) (release func(), err error)
}

// EventPublisher streams issuance events. Publishing is best effort and
// never fails the issuance.
type EventPublisher interface {
	PublishTicketIssued(ticket models.Ticket) error
}

type Options struct {
	CounterStart int64
	KeyWidth     int
	LabelPrefix  string
	MaxKeyProbes int
}

// TicketService allocates tickets: one per user per season, each with a
// random identifier token and a sequential human-readable key.
type TicketService struct {
	DB     DBLayer
	QR     ImageRenderer
	Lock   Locker
	Events EventPublisher
	Logger *logger.Logger

	opts Options

	// mu serializes the read counter / probe / advance / insert
	// sequence. Two concurrent calls must never see the same candidate
	// key.
	mu sync.Mutex
}

func NewTicketService(db DBLayer, qrGen ImageRenderer, opts Options) *TicketService {
	if opts.CounterStart == 0 {
		opts.CounterStart = 11
	}
	if opts.KeyWidth == 0 {
		opts.KeyWidth = 3
	}
	if opts.MaxKeyProbes == 0 {
		opts.MaxKeyProbes = 1000
	}
	return &TicketService{DB: db, QR: qrGen, opts: opts}
}

// IssueTicket returns the user's ticket for the season, allocating one
// first if needed. Calling it again with the same inputs returns the
// same ticket; a second ticket is never issued.
func (s *TicketService) IssueTicket(ctx context.Context, userID int64, season string) (*models.Ticket, error) {
	if season == "" {
		return nil, errors.New("season must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Lock != nil {
		release, err := s.Lock.Acquire(ctx, season)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire season lock: %w", err)
		}
		defer release()
	}

	existing, err := s.DB.FindTicket(ctx, userID, season)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if err := s.DB.EnsureUser(ctx, userID, ""); err != nil {
		return nil, err
	}

	var ticket *models.Ticket
	for attempt := 0; attempt < counterRetries; attempt++ {
		ticket, err = s.allocate(ctx, userID, season)
		if !errors.Is(err, store.ErrCounterConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	if s.QR != nil {
		// Image generation is not atomic with the ticket write: a
		// failed render is regenerated on the next display request.
		if _, err := s.QR.Render(ticket.TicketID, s.label(ticket.Key)); err != nil && s.Logger != nil {
			s.Logger.Warn("TICKET", fmt.Sprintf("QR render for %s failed: %v", ticket.TicketID, err))
		}
	}
	if s.Events != nil {
		if err := s.Events.PublishTicketIssued(*ticket); err != nil && s.Logger != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("ticket-issued publish failed: %v", err))
		}
	}
	if s.Logger != nil {
		s.Logger.LogTicket("ISSUE", season, userID, fmt.Sprintf("issued key %s", ticket.Key))
	}
	return ticket, nil
}

// allocate runs one allocation round: read the counter, probe forward
// for a free key, advance the counter to the consumed value, then write
// the ticket. The caller holds the allocation guard.
func (s *TicketService) allocate(ctx context.Context, userID int64, season string) (*models.Ticket, error) {
	last, found, err := s.DB.ReadCounter(ctx, season)
	if err != nil {
		return nil, err
	}
	candidate := s.opts.CounterStart
	if found {
		candidate = last + 1
	}

	var key string
	allocated := false
	for probe := 0; probe < s.opts.MaxKeyProbes; probe++ {
		key = fmt.Sprintf("%0*d", s.opts.KeyWidth, candidate)
		exists, err := s.DB.TicketKeyExists(ctx, season, key)
		if err != nil {
			return nil, err
		}
		if !exists {
			allocated = true
			break
		}
		// Counter and store drifted apart; skip the taken key.
		candidate++
	}
	if !allocated {
		return nil, ErrAllocationExhausted
	}

	var from int64
	if found {
		from = last
	}
	if err := s.DB.AdvanceCounter(ctx, season, from, candidate); err != nil {
		return nil, err
	}

	ticket := &models.Ticket{
		TicketID:  newTicketID(),
		UserID:    userID,
		Season:    season,
		Key:       key,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.DB.CreateTicket(ctx, ticket); err != nil {
		// The counter already advanced, so the key stays consumed and
		// the next issuance probes past it.
		return nil, err
	}
	return ticket, nil
}

// Ticket returns the user's ticket for display.
func (s *TicketService) Ticket(ctx context.Context, userID int64, season string) (*models.Ticket, error) {
	return s.DB.FindTicket(ctx, userID, season)
}

// TicketImage returns the ticket's QR image, re-rendering it from the
// stored identifier and key when the cached file is gone.
func (s *TicketService) TicketImage(ctx context.Context, userID int64, season string) ([]byte, error) {
	ticket, err := s.DB.FindTicket(ctx, userID, season)
	if err != nil {
		return nil, err
	}
	if s.QR == nil {
		return nil, errors.New("no image renderer configured")
	}
	return s.QR.Image(ticket.TicketID, s.label(ticket.Key))
}

// SelectDays stores the day-attendance flags. It runs under the same
// guard as issuance because both mutate the shared per-user document.
func (s *TicketService) SelectDays(ctx context.Context, userID int64, season string, days map[string]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DB.SetDays(ctx, userID, season, days)
}

// SetQuestionnaire stores the free-text questionnaire answers.
func (s *TicketService) SetQuestionnaire(ctx context.Context, userID int64, season, country, source string) error {
	return s.DB.SetQuestionnaire(ctx, userID, season, country, source)
}

// RecordStart registers first contact: the user record is created
// lazily, the language preference refreshed and any marketing tag
// recorded with an audit entry.
func (s *TicketService) RecordStart(ctx context.Context, userID int64, language, utm string) error {
	if err := s.DB.EnsureUser(ctx, userID, language); err != nil {
		return err
	}
	if language != "" {
		if err := s.DB.SetLanguage(ctx, userID, language); err != nil {
			return err
		}
	}
	if utm != "" {
		if err := s.DB.SetMarketingTag(ctx, userID, utm); err != nil {
			return err
		}
		details := map[string]string{
			"user_id":  strconv.FormatInt(userID, 10),
			"utm_data": utm,
		}
		if err := s.DB.AppendAuditLog(ctx, "utm", details); err != nil {
			return err
		}
	}
	return nil
}

// ChangeLanguage updates the stored language preference.
func (s *TicketService) ChangeLanguage(ctx context.Context, userID int64, language string) error {
	return s.DB.SetLanguage(ctx, userID, language)
}

// RemoveUser deletes the full user record on request. The season
// counter is untouched, so a re-registration gets a fresh identifier
// and the next key, never the deleted one.
func (s *TicketService) RemoveUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DB.DeleteUser(ctx, userID)
}

// UserIDs lists user identifiers for the chat layer, optionally
// filtered by language.
func (s *TicketService) UserIDs(ctx context.Context, language string) ([]int64, error) {
	return s.DB.UserIDs(ctx, language)
}

func (s *TicketService) label(key string) string {
	return s.opts.LabelPrefix + key
}

// newTicketID returns a 32-character random hex token, the QR payload.
func newTicketID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
