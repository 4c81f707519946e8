package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopcraft/selection/internal/domain"
	pkgkafka "github.com/shopcraft/selection/pkg/kafka"
)

// Kafka topic constants for selection domain events.
const (
	TopicSelectionUpdated = "shopcraft.selection.updated"
	TopicQuoteUpdated     = "shopcraft.selection.quote_updated"
)

// Aggregate type constant.
const AggregateTypeSelection = "selection"

// Source identifier for events originating from the selection service.
const SourceSelectionService = "selection-service"

// SelectionUpdatedData is the payload for a selection.updated event.
type SelectionUpdatedData struct {
	SessionID     string `json:"session_id"`
	ProductID     string `json:"product_id"`
	SelectedColor string `json:"selected_color,omitempty"`
	SelectedSize  string `json:"selected_size,omitempty"`
	Quantity      int    `json:"quantity"`
	VariantID     string `json:"variant_id,omitempty"`
	VariantStale  bool   `json:"variant_stale,omitempty"`
	Revision      int64  `json:"revision"`
}

// QuoteUpdatedData is the payload for a selection.quote_updated event.
type QuoteUpdatedData struct {
	SessionID  string `json:"session_id"`
	ProductID  string `json:"product_id"`
	VariantID  string `json:"variant_id,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unit_price"`
	TotalPrice string `json:"total_price"`
	Source     string `json:"source"`
	Revision   int64  `json:"revision"`
}

// Producer publishes selection domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the selection service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishSelectionUpdated publishes a selection.updated event for an applied
// mutation.
func (p *Producer) PublishSelectionUpdated(ctx context.Context, state *domain.SelectionState) error {
	data := SelectionUpdatedData{
		SessionID:     state.SessionID,
		ProductID:     state.ProductID,
		SelectedColor: state.SelectedColor,
		SelectedSize:  state.SelectedSize,
		Quantity:      state.Quantity,
		VariantStale:  state.VariantStale,
		Revision:      state.Revision,
	}
	if state.SelectedVariant != nil {
		data.VariantID = state.SelectedVariant.ID
	}

	event, err := pkgkafka.NewEvent(TopicSelectionUpdated, state.SessionID, AggregateTypeSelection, SourceSelectionService, data)
	if err != nil {
		return fmt.Errorf("create selection.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicSelectionUpdated, event); err != nil {
		return fmt.Errorf("publish selection.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published selection.updated event",
		slog.String("session_id", state.SessionID),
		slog.Int64("revision", state.Revision),
	)

	return nil
}

// PublishQuoteUpdated publishes a selection.quote_updated event when a fresh
// price quote is attached to the state.
func (p *Producer) PublishQuoteUpdated(ctx context.Context, state *domain.SelectionState) error {
	if state.Quote == nil {
		return nil
	}

	data := QuoteUpdatedData{
		SessionID:  state.SessionID,
		ProductID:  state.ProductID,
		Quantity:   state.Quote.Quantity,
		UnitPrice:  state.Quote.UnitPrice.String(),
		TotalPrice: state.Quote.TotalPrice.String(),
		Source:     state.Quote.Source,
		Revision:   state.Revision,
	}
	if state.SelectedVariant != nil {
		data.VariantID = state.SelectedVariant.ID
	}

	event, err := pkgkafka.NewEvent(TopicQuoteUpdated, state.SessionID, AggregateTypeSelection, SourceSelectionService, data)
	if err != nil {
		return fmt.Errorf("create selection.quote_updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicQuoteUpdated, event); err != nil {
		return fmt.Errorf("publish selection.quote_updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published selection.quote_updated event",
		slog.String("session_id", state.SessionID),
		slog.String("total_price", data.TotalPrice),
	)

	return nil
}
