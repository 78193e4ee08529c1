// Package journal persists the ledger's append-only event stream.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindOrder    Kind = "ORDER"
	KindPosition Kind = "POSITION"
	KindHalt     Kind = "HALT"
)

// Event is one immutable journal record. Money fields are decimals so that
// replaying the journal reproduces the ledger exactly.
type Event struct {
	Time        time.Time       `json:"time" gorm:"index"`
	Kind        Kind            `json:"kind" gorm:"index"`
	Symbol      string          `json:"symbol" gorm:"index"`
	OrderID     string          `json:"order_id,omitempty"`
	State       string          `json:"state,omitempty"`
	Side        string          `json:"side,omitempty"`
	Qty         decimal.Decimal `json:"qty" gorm:"type:numeric"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric"`
	Fee         decimal.Decimal `json:"fee" gorm:"type:numeric"`
	RealizedPnL decimal.Decimal `json:"realized_pnl" gorm:"type:numeric"`
	Available   decimal.Decimal `json:"available" gorm:"type:numeric"`
	Reserved    decimal.Decimal `json:"reserved" gorm:"type:numeric"`
	Total       decimal.Decimal `json:"total" gorm:"type:numeric"`
	Reason      string          `json:"reason,omitempty"`
}

// Sink is write-only from the trading core.
type Sink interface {
	Record(ctx context.Context, e Event) error
	Close() error
}

type NopSink struct{}

func (NopSink) Record(context.Context, Event) error { return nil }
func (NopSink) Close() error                        { return nil }

// MultiSink fans every event out to all sinks and joins their errors.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps events in memory; used by tests and dry runs.
type MemorySink struct {
	events chan Event
}

func NewMemorySink(capacity int) *MemorySink {
	return &MemorySink{events: make(chan Event, capacity)}
}

// Record drops the event when the buffer is full rather than blocking the ledger.
func (m *MemorySink) Record(_ context.Context, e Event) error {
	select {
	case m.events <- e:
		return nil
	default:
		return errors.New("memory sink full")
	}
}

func (m *MemorySink) Close() error { return nil }

// Drain returns everything recorded so far.
func (m *MemorySink) Drain() []Event {
	var out []Event
	for {
		select {
		case e := <-m.events:
			out = append(out, e)
		default:
			return out
		}
	}
}
