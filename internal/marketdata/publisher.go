// Package marketdata consumes the committed observation stream and
// maintains the query-side views: the observation log, the trade tape,
// and 1-minute OHLCV candles over a ring buffer. An optional NATS
// relay republishes records for external consumers.
package marketdata

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/irnb/SegmentXOrderbook/internal/domain"
)

const (
	ringBufferCapacity = 100
	candleInterval     = time.Minute
	intervalLabel      = "1m"
)

// Trade is one consumed price level of a matched order.
type Trade struct {
	ID         string       `json:"id"`
	OrderID    uint64       `json:"order_id"`
	TakerSide  domain.Side  `json:"taker_side"`
	Price      *uint256.Int `json:"price"`
	Amount     *uint256.Int `json:"amount"`
	Timestamp  time.Time    `json:"timestamp"`
	SequenceID uint64       `json:"sequence_id"`
}

// Candle is OHLCV data for one interval.
type Candle struct {
	Open      *uint256.Int `json:"open"`
	High      *uint256.Int `json:"high"`
	Low       *uint256.Int `json:"low"`
	Close     *uint256.Int `json:"close"`
	Volume    *uint256.Int `json:"volume"`
	Timestamp time.Time    `json:"timestamp"`
	Interval  string       `json:"interval"`
}

// ringBuffer is a fixed-size circular buffer of completed candles.
type ringBuffer struct {
	data  [ringBufferCapacity]*Candle
	head  int
	count int
}

func (rb *ringBuffer) push(c *Candle) {
	rb.data[rb.head] = c
	rb.head = (rb.head + 1) % ringBufferCapacity
	if rb.count < ringBufferCapacity {
		rb.count++
	}
}

func (rb *ringBuffer) recent(n int) []*Candle {
	if n <= 0 || rb.count == 0 {
		return nil
	}
	if n > rb.count {
		n = rb.count
	}
	out := make([]*Candle, n)
	start := (rb.head - n + ringBufferCapacity) % ringBufferCapacity
	for i := 0; i < n; i++ {
		out[i] = rb.data[(start+i)%ringBufferCapacity]
	}
	return out
}

// Relay forwards observations and trades to an external transport.
type Relay interface {
	PublishObservation(obs *domain.Observation) error
	PublishTrade(trade *Trade) error
}

// Publisher is the observation consumer. Wire ObservationIn to the
// sequencer's output.
type Publisher struct {
	mu sync.RWMutex

	observations []*domain.Observation
	trades       []*Trade

	candles *ringBuffer
	current *Candle

	// ObservationIn receives sequence-stamped observations.
	ObservationIn chan *domain.Observation

	relay  Relay
	logger *zap.Logger
	done   chan struct{}
	ticker *time.Ticker
}

// NewPublisher creates a publisher. relay may be nil.
func NewPublisher(bufferSize int, relay Relay, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		candles:       &ringBuffer{},
		ObservationIn: make(chan *domain.Observation, bufferSize),
		relay:         relay,
		logger:        logger.Named("marketdata"),
		done:          make(chan struct{}),
	}
}

// Start begins the consumer loop.
func (p *Publisher) Start() {
	p.ticker = time.NewTicker(candleInterval)
	go p.run()
}

// Stop shuts the publisher down.
func (p *Publisher) Stop() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
	close(p.done)
}

func (p *Publisher) run() {
	p.logger.Info("publisher started")
	for {
		select {
		case obs := <-p.ObservationIn:
			p.Process(obs)
		case <-p.ticker.C:
			p.rotateCandle()
		case <-p.done:
			p.logger.Info("publisher stopped")
			return
		}
	}
}

// Process records one observation. Exported so tests can drive the
// publisher without the goroutine.
func (p *Publisher) Process(obs *domain.Observation) {
	if obs.ID == "" {
		obs.ID = uuid.New().String()
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now()
	}

	p.mu.Lock()
	p.observations = append(p.observations, obs)
	var newTrades []*Trade
	for _, m := range obs.Matched {
		trade := &Trade{
			ID:         uuid.New().String(),
			OrderID:    obs.OrderID,
			TakerSide:  obs.Side,
			Price:      m.Price,
			Amount:     m.Amount,
			Timestamp:  obs.Timestamp,
			SequenceID: obs.SequenceID,
		}
		p.trades = append(p.trades, trade)
		p.updateCandle(trade)
		newTrades = append(newTrades, trade)
	}
	p.mu.Unlock()

	if p.relay != nil {
		if err := p.relay.PublishObservation(obs); err != nil {
			p.logger.Warn("relay observation failed", zap.Error(err))
		}
		for _, trade := range newTrades {
			if err := p.relay.PublishTrade(trade); err != nil {
				p.logger.Warn("relay trade failed", zap.Error(err))
			}
		}
	}
}

// updateCandle folds a trade into the building candle. Caller holds
// the lock.
func (p *Publisher) updateCandle(trade *Trade) {
	if p.current == nil {
		p.current = &Candle{
			Open:      new(uint256.Int).Set(trade.Price),
			High:      new(uint256.Int).Set(trade.Price),
			Low:       new(uint256.Int).Set(trade.Price),
			Close:     new(uint256.Int).Set(trade.Price),
			Volume:    new(uint256.Int).Set(trade.Amount),
			Timestamp: trade.Timestamp.Truncate(candleInterval),
			Interval:  intervalLabel,
		}
		return
	}
	c := p.current
	if trade.Price.Cmp(c.High) > 0 {
		c.High.Set(trade.Price)
	}
	if trade.Price.Cmp(c.Low) < 0 {
		c.Low.Set(trade.Price)
	}
	c.Close.Set(trade.Price)
	c.Volume.Add(c.Volume, trade.Amount)
}

// rotateCandle closes the building candle into the ring buffer.
func (p *Publisher) rotateCandle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return
	}
	p.candles.push(p.current)
	p.current = nil
}

// Observations returns records with sequence ID greater than since, up
// to limit (0 means all).
func (p *Publisher) Observations(since uint64, limit int) []*domain.Observation {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*domain.Observation
	for _, obs := range p.observations {
		if obs.SequenceID <= since {
			continue
		}
		out = append(out, obs)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Trades returns the most recent trades, oldest first, up to limit
// (0 means all).
func (p *Publisher) Trades(limit int) []*Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if limit <= 0 || limit >= len(p.trades) {
		return append([]*Trade(nil), p.trades...)
	}
	return append([]*Trade(nil), p.trades[len(p.trades)-limit:]...)
}

// Candles returns up to count recent candles, including the building
// one.
func (p *Publisher) Candles(count int) []*Candle {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := count
	if p.current != nil {
		n-- // leave room for the building candle
	}
	out := p.candles.recent(n)
	if p.current != nil && count > 0 {
		out = append(out, p.current)
	}
	return out
}
