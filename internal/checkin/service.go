package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fest-ticketing/internal/logger"
	"fest-ticketing/internal/models"
	"fest-ticketing/internal/qr"
	"fest-ticketing/internal/store"
)

// ScanStatus is the operator-facing outcome of a scan.
type ScanStatus string

const (
	// StatusOK: the code resolved to a current-season ticket and the
	// check-in was recorded.
	StatusOK ScanStatus = "ok"
	// StatusNotFound: bad code or user not found. Also used for
	// undecodable photos and empty codes.
	StatusNotFound ScanStatus = "not_found"
)

// ScanResult is returned to the scanning operator.
type ScanResult struct {
	Status    ScanStatus `json:"status"`
	UserID    int64      `json:"user_id,omitempty"`
	ScannedAt time.Time  `json:"scanned_at,omitempty"`
}

type DBLayer interface {
	FindUserByTicketID(ctx context.Context, ticketID, season string) (*models.User, error)
	SetLastScanned(ctx context.Context, userID int64, season string, at time.Time) error
	AppendScanLog(ctx context.Context, entry *models.ScanLog) error
}

// ImageDecoder extracts a QR payload from a photo.
type ImageDecoder interface {
	Decode(imageBytes []byte) (string, error)
}

// EventPublisher streams scan events. Publishing is best effort.
type EventPublisher interface {
	PublishTicketScanned(entry models.ScanLog) error
}

// Service validates scanned ticket codes at the door. Lookups are
// scoped to the configured season: last year's ticket does not open
// this year's gate.
type Service struct {
	DB      DBLayer
	Decoder ImageDecoder
	Events  EventPublisher
	Logger  *logger.Logger
	Season  string
}

func NewService(db DBLayer, decoder ImageDecoder, season string) *Service {
	return &Service{DB: db, Decoder: decoder, Season: season}
}

// ValidateScan resolves a decoded QR payload, marks the ticket scanned
// and appends one audit entry. Re-scans are permitted: they overwrite
// the timestamp and are logged again, with no "already used" rejection.
// A nil error with StatusNotFound means the operator should see "bad
// code or user not found"; a non-nil error means storage failed and the
// scan may be retried.
func (s *Service) ValidateScan(ctx context.Context, operatorID int64, scannedCode string) (ScanResult, error) {
	code := strings.TrimSpace(scannedCode)
	if code == "" {
		return ScanResult{Status: StatusNotFound}, nil
	}

	user, err := s.DB.FindUserByTicketID(ctx, code, s.Season)
	if errors.Is(err, store.ErrNotFound) {
		if s.Logger != nil {
			s.Logger.Warn("SCAN", fmt.Sprintf("operator=%d unknown code %q", operatorID, code))
		}
		return ScanResult{Status: StatusNotFound}, nil
	}
	if err != nil {
		return ScanResult{}, err
	}

	now := time.Now().UTC()
	if err := s.DB.SetLastScanned(ctx, user.ID, s.Season, now); err != nil {
		return ScanResult{}, err
	}

	entry := models.ScanLog{
		OperatorID: operatorID,
		UserID:     user.ID,
		Season:     s.Season,
		ScannedAt:  now,
	}
	// The timestamp update succeeded, so the audit append must not be
	// swallowed: its failure surfaces even though the ticket is already
	// marked scanned.
	if err := s.DB.AppendScanLog(ctx, &entry); err != nil {
		return ScanResult{}, err
	}

	if s.Events != nil {
		if err := s.Events.PublishTicketScanned(entry); err != nil && s.Logger != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("ticket-scanned publish failed: %v", err))
		}
	}
	if s.Logger != nil {
		s.Logger.LogScan(operatorID, user.ID, "check-in recorded")
	}
	return ScanResult{Status: StatusOK, UserID: user.ID, ScannedAt: now}, nil
}

// ValidateImage decodes an operator's photo and validates the result.
// A photo with no recognizable code behaves like an empty scanned code.
func (s *Service) ValidateImage(ctx context.Context, operatorID int64, imageBytes []byte) (ScanResult, error) {
	if s.Decoder == nil {
		return ScanResult{}, errors.New("no image decoder configured")
	}
	code, err := s.Decoder.Decode(imageBytes)
	if err != nil {
		if errors.Is(err, qr.ErrNoCode) {
			return ScanResult{Status: StatusNotFound}, nil
		}
		// Unreadable image data gets the same operator answer.
		if s.Logger != nil {
			s.Logger.Warn("SCAN", fmt.Sprintf("operator=%d undecodable photo: %v", operatorID, err))
		}
		return ScanResult{Status: StatusNotFound}, nil
	}
	return s.ValidateScan(ctx, operatorID, code)
}
