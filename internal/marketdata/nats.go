package marketdata

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/irnb/SegmentXOrderbook/internal/domain"
)

const (
	subjectObservations = "book.observations"
	subjectTrades       = "book.trades"
)

// NATSRelay republishes observation records over NATS.
type NATSRelay struct {
	conn *nats.Conn
}

// NewNATSRelay connects to the given NATS URL.
func NewNATSRelay(url string, logger *zap.Logger) (*NATSRelay, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("nats")
	opts := []nats.Option{
		nats.Name("segmentx-orderbook"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NATSRelay{conn: conn}, nil
}

// PublishObservation implements Relay.
func (r *NATSRelay) PublishObservation(obs *domain.Observation) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return err
	}
	return r.conn.Publish(subjectObservations, payload)
}

// PublishTrade implements Relay.
func (r *NATSRelay) PublishTrade(trade *Trade) error {
	payload, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	return r.conn.Publish(subjectTrades, payload)
}

// Close closes the connection without draining pending messages.
func (r *NATSRelay) Close() {
	if r.conn != nil {
		r.conn.Close()
	}
}
