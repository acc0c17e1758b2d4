package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/itripleg/motherhaven-sub003/internal/observability"
)

// WSConfig configures WebSocket subscriber behavior.
type WSConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is the maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// LogSubscriber maintains an eth_subscribe("logs") stream for a single
// contract address, reconnecting and resubscribing on connection loss.
type LogSubscriber struct {
	endpoint string
	address  string
	config   WSConfig
	logger   zerolog.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	out  chan Log
	done chan struct{}
	wg   sync.WaitGroup
}

// wsRequest is a JSON-RPC 2.0 request over the socket.
type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// wsMessage is any inbound frame: subscription confirmations carry
// Result, notifications carry Method + Params.
type wsMessage struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Method string          `json:"method"`
	Params *struct {
		Subscription string `json:"subscription"`
		Result       Log    `json:"result"`
	} `json:"params"`
	Error *rpcError `json:"error"`
}

// NewLogSubscriber connects and subscribes to logs for the address.
// Received logs are delivered on Logs() until Close.
func NewLogSubscriber(ctx context.Context, endpoint, address string, config *WSConfig, logger zerolog.Logger) (*LogSubscriber, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	s := &LogSubscriber{
		endpoint: endpoint,
		address:  address,
		config:   cfg,
		logger:   logger.With().Str("component", "ws").Logger(),
		out:      make(chan Log, 256),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	if err := s.subscribe(); err != nil {
		s.conn.Close()
		return nil, err
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()

	return s, nil
}

// Logs returns the channel of received logs.
func (s *LogSubscriber) Logs() <-chan Log {
	return s.out
}

// Close terminates the subscription and closes the log channel.
func (s *LogSubscriber) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.out)
}

// connect establishes the WebSocket connection.
func (s *LogSubscriber) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

// subscribe issues eth_subscribe for the contract's logs.
func (s *LogSubscriber) subscribe() error {
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      s.requestID.Add(1),
		Method:  "eth_subscribe",
		Params: []interface{}{
			"logs",
			map[string]interface{}{"address": s.address},
		},
	}
	return s.writeJSON(req)
}

// writeJSON writes a frame under the write deadline.
func (s *LogSubscriber) writeJSON(v interface{}) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteJSON(v)
}

// readLoop reads frames, delivers log notifications, and reconnects
// with resubscription on read errors.
func (s *LogSubscriber) readLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			if !s.reconnect() {
				return
			}
			continue
		}

		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Warn().Err(err).Msg("websocket read failed, reconnecting")
			if !s.reconnect() {
				return
			}
			continue
		}

		switch {
		case msg.Error != nil:
			s.logger.Error().Str("error", msg.Error.Message).Msg("subscription error frame")
		case msg.Method == "eth_subscription" && msg.Params != nil:
			select {
			case s.out <- msg.Params.Result:
			case <-s.done:
				return
			}
		}
	}
}

// reconnect re-dials with exponential backoff and resubscribes.
// Returns false when the subscriber was closed while waiting.
func (s *LogSubscriber) reconnect() bool {
	delay := s.config.ReconnectDelay

	for {
		select {
		case <-s.done:
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := s.connect(ctx)
		cancel()
		if err == nil {
			if err := s.subscribe(); err == nil {
				observability.DefaultMetrics.WSReconnects.Inc()
				s.logger.Info().Msg("websocket reconnected")
				return true
			}
		}
		s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("reconnect failed")

		delay *= 2
		if delay > s.config.MaxReconnectDelay {
			delay = s.config.MaxReconnectDelay
		}
	}
}

// pingLoop keeps the connection alive.
func (s *LogSubscriber) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			s.connMu.Unlock()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil && !s.closed.Load() {
				s.logger.Debug().Err(err).Msg("ping failed")
			}
		}
	}
}
