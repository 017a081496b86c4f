// Package tasks defines background jobs processed by the worker through asynq.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/resto-billing/internal/obs"
)

// TypeOrderPlaced is emitted once an order has been committed.
const TypeOrderPlaced = "order:placed"

// QueueDefault is the queue order tasks are published to.
const QueueDefault = "default"

// OrderPlaced is the payload of TypeOrderPlaced.
type OrderPlaced struct {
	OrderNumber  string          `json:"orderNumber"`
	RestaurantID string          `json:"restaurantId"`
	GrandTotal   decimal.Decimal `json:"grandTotal"`
	CouponCode   string          `json:"couponCode,omitempty"`
	PlacedAt     time.Time       `json:"placedAt"`
}

// NewOrderPlacedTask encodes p into an asynq task. The order number doubles as
// the task id so a retried publish never enqueues twice.
func NewOrderPlacedTask(p OrderPlaced) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", TypeOrderPlaced, err)
	}
	return asynq.NewTask(TypeOrderPlaced, payload,
		asynq.TaskID(p.OrderNumber),
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
	), nil
}

// Publisher enqueues tasks on Redis.
type Publisher struct {
	Client *asynq.Client
}

// PublishOrderPlaced enqueues an order:placed task.
func (p Publisher) PublishOrderPlaced(ctx context.Context, evt OrderPlaced) error {
	if p.Client == nil {
		return nil
	}
	task, err := NewOrderPlacedTask(evt)
	if err != nil {
		return err
	}
	if _, err := p.Client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeOrderPlaced, err)
	}
	return nil
}

// Handler processes order tasks.
type Handler struct {
	Logger zerolog.Logger
}

// HandleOrderPlaced records receipt of a placed order. Undecodable payloads are
// not retried.
func (h Handler) HandleOrderPlaced(_ context.Context, t *asynq.Task) error {
	var evt OrderPlaced
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return fmt.Errorf("decode %s: %v: %w", TypeOrderPlaced, err, asynq.SkipRetry)
	}
	obs.ObserveOrderPlaced()
	h.Logger.Info().
		Str("order_number", evt.OrderNumber).
		Str("restaurant_id", evt.RestaurantID).
		Str("grand_total", evt.GrandTotal.String()).
		Str("coupon_code", evt.CouponCode).
		Msg("order placed")
	return nil
}

// NewServeMux routes every task type to h.
func NewServeMux(h Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeOrderPlaced, h.HandleOrderPlaced)
	return mux
}
