package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

const (
	DefaultExchange   = "bank.ledger"
	DefaultRoutingKey = "ledger.transaction.posted"
)

// Config RabbitMQ 發布設定
type Config struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// TransactionPostedEvent 一筆 Operation 提交後送出的事件
type TransactionPostedEvent struct {
	EventID       uuid.UUID  `json:"event_id"`
	OperationID   uuid.UUID  `json:"operation_id"`
	Type          string     `json:"type"`
	Amount        string     `json:"amount"`
	FromAccountID *uuid.UUID `json:"from_account_id,omitempty"`
	ToAccountID   *uuid.UUID `json:"to_account_id,omitempty"`
	Description   string     `json:"description,omitempty"`
	Legs          []EventLeg `json:"legs"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

type EventLeg struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	AccountID     uuid.UUID `json:"account_id"`
	Direction     string    `json:"direction"`
	Amount        string    `json:"amount"`
	BalanceAfter  string    `json:"balance_after"`
}

// Publisher 發布交易事件到 topic exchange
// amqp.Channel 不可並發使用，Publish 以 mutex 保護
type Publisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	mu         sync.Mutex
}

// NewPublisher 連線並宣告 exchange
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = DefaultRoutingKey
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:       conn,
		channel:    channel,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
	}, nil
}

// PublishTransactionPosted 發布一筆 Operation 的所有分錄
func (p *Publisher) PublishTransactionPosted(ctx context.Context, receipt *domain.Receipt) error {
	body, err := json.Marshal(NewTransactionPostedEvent(receipt))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    receipt.Operation.ID.String(),
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close 關閉 channel 與連線
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return fmt.Errorf("failed to close channel: %w", err)
	}
	return p.conn.Close()
}

// NewTransactionPostedEvent 由 Receipt 組出事件內容
func NewTransactionPostedEvent(receipt *domain.Receipt) TransactionPostedEvent {
	op := receipt.Operation
	event := TransactionPostedEvent{
		EventID:     uuid.New(),
		OperationID: op.ID,
		Type:        string(op.Type),
		Amount:      op.Amount.StringFixed(domain.AmountScale),
		Description: op.Description,
		Legs:        make([]EventLeg, 0, len(receipt.Legs)),
		OccurredAt:  op.CreatedAt,
	}
	if op.From != uuid.Nil {
		from := op.From
		event.FromAccountID = &from
	}
	if op.To != uuid.Nil {
		to := op.To
		event.ToAccountID = &to
	}
	for _, leg := range receipt.Legs {
		event.Legs = append(event.Legs, EventLeg{
			TransactionID: leg.ID,
			AccountID:     leg.AccountID,
			Direction:     string(leg.Direction),
			Amount:        leg.Amount.StringFixed(domain.AmountScale),
			BalanceAfter:  leg.BalanceAfter.StringFixed(domain.AmountScale),
		})
	}
	return event
}

var _ usecase.EventPublisher = (*Publisher)(nil)
