package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"fest-ticketing/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

type DBLayer interface {
	TicketsForExport(ctx context.Context, season string) ([]models.Ticket, error)
	AuditByAction(ctx context.Context, action string) ([]models.AuditLog, error)
}

// Exporter writes the operational CSV reports the festival staff pull
// out of the bot: issued tickets and marketing-tag sign-ups.
type Exporter struct {
	DB DBLayer
}

func NewExporter(db DBLayer) *Exporter {
	return &Exporter{DB: db}
}

// WriteTickets writes one row per issued ticket, in issuance order.
func (e *Exporter) WriteTickets(ctx context.Context, w io.Writer, season string) error {
	tickets, err := e.DB.TicketsForExport(ctx, season)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "user_id", "ticket_key"}); err != nil {
		return err
	}
	for _, t := range tickets {
		row := []string{
			t.CreatedAt.Format(timeLayout),
			strconv.FormatInt(t.UserID, 10),
			t.Key,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteUTM writes one row per recorded marketing tag.
func (e *Exporter) WriteUTM(ctx context.Context, w io.Writer) error {
	entries, err := e.DB.AuditByAction(ctx, "utm")
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "user_id", "utm_data"}); err != nil {
		return err
	}
	for _, entry := range entries {
		row := []string{
			entry.Timestamp.Format(timeLayout),
			entry.Details["user_id"],
			entry.Details["utm_data"],
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
