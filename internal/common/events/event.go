package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event represents a domain event envelope
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CausationID   string          `json:"causation_id,omitempty"`
	AffiliateID   string          `json:"affiliate_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType, affiliateID, aggregateType, aggregateID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		AffiliateID:   affiliateID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Data:          dataBytes,
	}, nil
}

// DecodeData decodes the event data into a struct
func (e *Event) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Publisher publishes events to a message broker
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// LogPublisher writes events to the log instead of a broker. Used when no
// broker is configured.
type LogPublisher struct {
	Logger *slog.Logger
}

// Publish implements Publisher
func (p LogPublisher) Publish(_ context.Context, event *Event) error {
	p.Logger.Debug("event",
		"event_id", event.ID,
		"type", event.Type,
		"affiliate_id", event.AffiliateID,
		"aggregate_id", event.AggregateID,
	)
	return nil
}

type traceKey struct{}

type trace struct {
	correlationID string
	causationID   string
}

// WithTrace attaches the IDs Emit stamps on every event published under ctx.
// causationID is the event that triggered the work, empty for API calls.
func WithTrace(ctx context.Context, correlationID, causationID string) context.Context {
	return context.WithValue(ctx, traceKey{}, trace{correlationID: correlationID, causationID: causationID})
}

// Emit builds and publishes an event. Publication failures are logged and
// swallowed: the state change has already been committed.
func Emit(ctx context.Context, p Publisher, logger *slog.Logger, eventType, affiliateID, aggregateType, aggregateID string, data interface{}) {
	if p == nil {
		return
	}
	evt, err := NewEvent(eventType, affiliateID, aggregateType, aggregateID, data)
	if err != nil {
		logger.Error("building event", "type", eventType, "error", err)
		return
	}
	if t, ok := ctx.Value(traceKey{}).(trace); ok {
		evt.CorrelationID = t.correlationID
		evt.CausationID = t.causationID
	}
	if err := p.Publish(ctx, evt); err != nil {
		logger.Warn("publishing event", "type", eventType, "aggregate_id", aggregateID, "error", err)
	}
}

// Event types
const (
	// Inbound
	EventContractClosed       = "contract.closed"
	EventContactStatusChanged = "contact.status_changed"

	// Outbound
	EventCommissionCredited  = "commission.credited"
	EventTransactionApplied  = "ledger.transaction.applied"
	EventWithdrawalRequested = "withdrawal.requested"
	EventWithdrawalCompleted = "withdrawal.completed"
	EventWithdrawalRejected  = "withdrawal.rejected"
	EventWithdrawalExpired   = "withdrawal.expired"
	EventKpiEvaluated        = "kpi.evaluated"
)

// Event data structures

// ContractClosedData is the data for contract.closed events
type ContractClosedData struct {
	ContractID    string    `json:"contract_id"`
	AffiliateID   string    `json:"affiliate_id"`
	ContractValue int64     `json:"contract_value"`
	ClosedAt      time.Time `json:"closed_at"`
}

// ContactStatusChangedData is the data for contact.status_changed events
type ContactStatusChangedData struct {
	ContactID   string    `json:"contact_id"`
	AffiliateID string    `json:"affiliate_id"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to"`
	ChangedAt   time.Time `json:"changed_at"`
}

// CommissionCreditedData is the data for commission.credited events
type CommissionCreditedData struct {
	ContractID    string `json:"contract_id"`
	Class         string `json:"class"`
	ContractValue int64  `json:"contract_value"`
	Commission    int64  `json:"commission"`
	TransactionID string `json:"transaction_id"`
}

// TransactionAppliedData is the data for ledger.transaction.applied events
type TransactionAppliedData struct {
	TransactionID string `json:"transaction_id"`
	Type          string `json:"type"`
	Amount        int64  `json:"amount"`
	ReferenceID   string `json:"reference_id,omitempty"`
	BalanceAfter  int64  `json:"balance_after"`
}

// WithdrawalRequestedData is the data for withdrawal.requested events
type WithdrawalRequestedData struct {
	RequestID string    `json:"request_id"`
	Amount    int64     `json:"amount"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WithdrawalCompletedData is the data for withdrawal.completed events
type WithdrawalCompletedData struct {
	RequestID      string `json:"request_id"`
	Amount         int64  `json:"amount"`
	Tax            int64  `json:"tax"`
	AmountAfterTax int64  `json:"amount_after_tax"`
}

// WithdrawalClosedData is the data for withdrawal.rejected and withdrawal.expired events
type WithdrawalClosedData struct {
	RequestID string `json:"request_id"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason,omitempty"`
}

// KpiEvaluatedData is the data for kpi.evaluated events
type KpiEvaluatedData struct {
	Year          int    `json:"year"`
	Month         int    `json:"month"`
	Performance   string `json:"performance"`
	PreviousLevel string `json:"previous_level"`
	NewLevel      string `json:"new_level"`
	BaseSalary    int64  `json:"base_salary"`
}
