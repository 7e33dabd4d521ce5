package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fest-ticketing/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "2025", cfg.Festival.Season)
	assert.Equal(t, int64(11), cfg.Festival.CounterStart)
	assert.Equal(t, 3, cfg.Festival.KeyWidth)
	assert.Equal(t, "FEST", cfg.Festival.LabelPrefix)
	assert.Equal(t, 1000, cfg.Festival.MaxKeyProbes)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "ticket-issued", cfg.Kafka.Topics.TicketIssued)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FEST_SEASON", "2026")
	t.Setenv("TICKET_COUNTER_START", "101")
	t.Setenv("TICKET_KEY_WIDTH", "4")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker:9092")

	cfg := config.Load()

	assert.Equal(t, "2026", cfg.Festival.Season)
	assert.Equal(t, int64(101), cfg.Festival.CounterStart)
	assert.Equal(t, 4, cfg.Festival.KeyWidth)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"broker:9092"}, cfg.Kafka.Brokers)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("TICKET_COUNTER_START", "not-a-number")
	t.Setenv("REDIS_ENABLED", "maybe")

	cfg := config.Load()

	assert.Equal(t, int64(11), cfg.Festival.CounterStart)
	assert.False(t, cfg.Redis.Enabled)
}
