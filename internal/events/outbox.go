package events

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aquabill/internal/clock"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Event describes a domain event to store in the outbox.
type Event struct {
	Type      string
	Payload   map[string]any
	DedupeKey string
}

var (
	ErrMissingTransaction = errors.New("missing_transaction")
	ErrOutboxUnavailable  = errors.New("outbox_unavailable")
	ErrMissingEventType   = errors.New("missing_event_type")
	ErrMissingDedupeKey   = errors.New("missing_dedupe_key")
)

// Outbox inserts domain events into the billing_events table.
type Outbox struct {
	genID *snowflake.Node
	clock clock.Clock
}

func NewOutbox(genID *snowflake.Node, clk clock.Clock) *Outbox {
	return &Outbox{genID: genID, clock: clk}
}

// PublishTx stores an event using an existing transaction. It returns the id
// of the stored row, or zero when an event with the same dedupe key exists.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, event Event) (snowflake.ID, error) {
	if tx == nil {
		return 0, ErrMissingTransaction
	}
	if o == nil || o.genID == nil || o.clock == nil {
		return 0, ErrOutboxUnavailable
	}
	name := strings.TrimSpace(event.Type)
	if name == "" {
		return 0, ErrMissingEventType
	}
	dedupe := strings.TrimSpace(event.DedupeKey)
	if dedupe == "" {
		return 0, ErrMissingDedupeKey
	}

	payload := datatypes.JSONMap{}
	for key, value := range event.Payload {
		if strings.TrimSpace(key) == "" {
			continue
		}
		payload[key] = value
	}

	row := BillingEvent{
		ID:        o.genID.Generate(),
		EventType: name,
		Payload:   payload,
		DedupeKey: dedupe,
		CreatedAt: o.clock.Now(),
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedupe_key"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, nil
	}
	return row.ID, nil
}

// DedupeKey joins an event type and the id of the entity it is about.
func DedupeKey(eventType string, id snowflake.ID) string {
	return eventType + ":" + id.String()
}
