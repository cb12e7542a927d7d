package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/xtrntr/tradeproof/internal/metrics"
	"go.uber.org/zap"
)

// Event types
const (
	ProofGenerated = "proof.generated"
	ProofSubmitted = "proof.submitted"
	ProofFailed    = "proof.failed"
)

// Event is a proof lifecycle notification
type Event struct {
	Type            string    `json:"type"`
	TraderID        string    `json:"trader_id"`
	Commitment      string    `json:"commitment,omitempty"`
	ReportHash      string    `json:"report_hash,omitempty"`
	ReportID        string    `json:"report_id,omitempty"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	BlockNumber     uint64    `json:"block_number,omitempty"`
	Error           string    `json:"error,omitempty"`
	At              time.Time `json:"at"`
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

// Sink delivers events to one destination
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Publisher accepts events without blocking the caller on delivery
type Publisher interface {
	Publish(ev Event)
}

// Fanout hands each event to every sink on a bounded goroutine pool
type Fanout struct {
	pool    *ants.Pool
	sinks   []Sink
	timeout time.Duration
	log     *zap.Logger
}

// NewFanout creates a new fan-out with a pool of size workers
func NewFanout(size int, log *zap.Logger, sinks ...Sink) (*Fanout, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create event pool: %w", err)
	}
	return &Fanout{
		pool:    pool,
		sinks:   sinks,
		timeout: 5 * time.Second,
		log:     log.Named("events"),
	}, nil
}

func (f *Fanout) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	for _, s := range f.sinks {
		sink := s
		err := f.pool.Submit(func() {
			ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
			defer cancel()
			if err := sink.Send(ctx, ev); err != nil {
				metrics.EventsDropped.WithLabelValues(sink.Name()).Inc()
				f.log.Warn("event delivery failed",
					zap.String("sink", sink.Name()),
					zap.String("type", ev.Type),
					zap.Error(err),
				)
			}
		})
		if err != nil {
			metrics.EventsDropped.WithLabelValues(sink.Name()).Inc()
			f.log.Warn("event pool rejected task", zap.String("sink", sink.Name()), zap.Error(err))
		}
	}
}

// Close waits up to timeout for queued deliveries, then stops the pool
func (f *Fanout) Close(timeout time.Duration) error {
	return f.pool.ReleaseTimeout(timeout)
}
