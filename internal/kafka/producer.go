package kafka

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"

	"fest-ticketing/internal/logger"
	"fest-ticketing/internal/models"
)

// Producer streams ticket lifecycle events for downstream consumers
// (capacity dashboards, entry statistics). MockMode logs instead of
// writing, for local runs without a broker.
type Producer struct {
	issuedWriter  *kafka.Writer
	scannedWriter *kafka.Writer
	Logger        *logger.Logger
	MockMode      bool
}

func NewProducer(brokers []string, issuedTopic, scannedTopic string, log *logger.Logger, mockMode bool) *Producer {
	p := &Producer{Logger: log, MockMode: mockMode}
	if !mockMode {
		p.issuedWriter = kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   issuedTopic,
		})
		p.scannedWriter = kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   scannedTopic,
		})
	}
	return p
}

// PublishTicketIssued streams a ticket issuance event, keyed by season
// so per-season consumers keep ordering.
func (p *Producer) PublishTicketIssued(ticket models.Ticket) error {
	msgBytes, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	if p.MockMode {
		p.Logger.LogKafka("MOCK", "ticket-issued", string(msgBytes))
		return nil
	}
	p.Logger.LogKafka("PUBLISH", "ticket-issued", "key "+ticket.Key)
	return p.issuedWriter.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(ticket.Season),
			Value: msgBytes,
		},
	)
}

// PublishTicketScanned streams a check-in event.
func (p *Producer) PublishTicketScanned(entry models.ScanLog) error {
	msgBytes, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if p.MockMode {
		p.Logger.LogKafka("MOCK", "ticket-scanned", string(msgBytes))
		return nil
	}
	p.Logger.LogKafka("PUBLISH", "ticket-scanned", "user "+strconv.FormatInt(entry.UserID, 10))
	return p.scannedWriter.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(entry.Season),
			Value: msgBytes,
		},
	)
}

// Close shuts down the underlying writers.
func (p *Producer) Close() error {
	if p.MockMode {
		return nil
	}
	if err := p.issuedWriter.Close(); err != nil {
		return err
	}
	return p.scannedWriter.Close()
}
