package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ecobazaar/storefront/internal/domain"
	pkgkafka "github.com/ecobazaar/storefront/pkg/kafka"
	"github.com/ecobazaar/storefront/pkg/logger"
)

// TopicOrderPlaced receives one event per committed order.
var TopicOrderPlaced = pkgkafka.Topic("order", "placed")

// Source identifier for events originating from the storefront.
const SourceStorefront = "storefront"

// publishTimeout bounds an OrderPlaced notification, which runs detached from
// the request that placed the order.
const publishTimeout = 10 * time.Second

// OrderPlacedData is the payload for an order.placed event.
type OrderPlacedData struct {
	SessionID string            `json:"session_id"`
	OrderID   int64             `json:"order_id"`
	Date      string            `json:"date"`
	ItemCount int               `json:"item_count"`
	Total     domain.Amount     `json:"total"`
	CarbonKg  domain.Amount     `json:"carbon_kg"`
	Items     []domain.LineItem `json:"items"`
}

// Publisher is satisfied by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes storefront domain events.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishOrderPlaced publishes an order.placed event keyed by order id.
func (p *Producer) PublishOrderPlaced(ctx context.Context, session string, order domain.Order) error {
	data := OrderPlacedData{
		SessionID: session,
		OrderID:   order.ID,
		Date:      order.Date,
		ItemCount: domain.ItemCount(order.Items),
		Total:     order.Total,
		CarbonKg:  order.CarbonKg,
		Items:     order.Items,
	}

	orderID := strconv.FormatInt(order.ID, 10)
	event, err := pkgkafka.NewEvent(TopicOrderPlaced, orderID, SourceStorefront, data,
		pkgkafka.WithCorrelationID(logger.CorrelationIDFromContext(ctx)),
		pkgkafka.WithMetadata("session_id", session),
	)
	if err != nil {
		return fmt.Errorf("create order.placed event: %w", err)
	}

	if err := p.publisher.Publish(ctx, TopicOrderPlaced, event); err != nil {
		return fmt.Errorf("publish order.placed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published order.placed event",
		slog.String("order_id", orderID),
		slog.String("session_id", session),
	)
	return nil
}

// OrderPlaced implements store.OrderListener. Failures are logged only.
func (p *Producer) OrderPlaced(ctx context.Context, session string, order domain.Order) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.PublishOrderPlaced(ctx, session, order); err != nil {
		p.logger.WarnContext(ctx, "failed to publish order event",
			slog.Int64("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
}
