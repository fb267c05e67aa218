package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"FinBars/internal/domain/models"
	drepo "FinBars/internal/domain/repository"
	xlogger "FinBars/pkg/logger"

	"github.com/gorilla/websocket"
)

// Stream implements a TradeStream backed by the Finnhub WebSocket.
type Stream struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *xlogger.Logger

	mu        sync.Mutex // guards conn and writes to it
	conn      *websocket.Conn
	connected atomic.Bool
	dropped   atomic.Int64
}

// NewStream creates a Finnhub trade stream for the given symbols.
func NewStream(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, log *xlogger.Logger) *Stream {
	return &Stream{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

var _ drepo.TradeStream = (*Stream)(nil)

// Connect establishes the WebSocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	u, err := url.Parse(s.websocketURL)
	if err != nil {
		return fmt.Errorf("finnhub websocket url: %w", err)
	}
	q := u.Query()
	q.Set("token", s.apiKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)
	s.log.Info("finnhub stream connected", xlogger.Int("symbols", len(s.symbols)))
	return nil
}

// Subscribe subscribes to the configured symbols.
func (s *Stream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.connected.Load() {
		return errors.New("finnhub not connected")
	}
	for _, sym := range s.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": sym}
		if err := s.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
		s.log.Debug("finnhub subscribed", xlogger.String("symbol", sym))
	}
	return nil
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
	Msg  string    `json:"msg"`
}

// decodeFrame turns a trade frame into ticks. Non-trade frames return nil.
func decodeFrame(b []byte) ([]models.SymbolTick, error) {
	var m fhMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	switch m.Type {
	case "trade":
	case "error":
		return nil, fmt.Errorf("finnhub: %s", m.Msg)
	default:
		return nil, nil
	}
	out := make([]models.SymbolTick, 0, len(m.Data))
	for _, d := range m.Data {
		if d.S == "" || d.T <= 0 {
			continue
		}
		out = append(out, models.SymbolTick{Symbol: d.S, Tick: models.TradeTick(d.T, d.P, d.V)})
	}
	return out, nil
}

// Read streams ticks and errors until ctx ends or the connection fails.
// Ticks are dropped when the consumer falls behind.
func (s *Stream) Read(ctx context.Context) (<-chan models.SymbolTick, <-chan error) {
	ticks := make(chan models.SymbolTick, 1024)
	errs := make(chan error, 1)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		errs <- errors.New("finnhub conn nil")
		close(ticks)
		close(errs)
		return ticks, errs
	}

	done := make(chan struct{})

	// ping loop; also unblocks ReadMessage on cancellation
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-ticker.C:
				s.mu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				s.mu.Unlock()
			}
		}
	}()

	go func() {
		defer close(done)
		defer close(ticks)
		defer close(errs)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				s.connected.Store(false)
				if ctx.Err() == nil {
					errs <- fmt.Errorf("finnhub read: %w", err)
				}
				return
			}
			batch, err := decodeFrame(b)
			if err != nil {
				s.log.Warn("finnhub frame skipped", xlogger.Error(err))
				continue
			}
			for _, t := range batch {
				select {
				case ticks <- t:
				case <-ctx.Done():
					return
				default:
					if n := s.dropped.Add(1); n%1000 == 1 {
						s.log.Warn("finnhub ticks dropped on backpressure", xlogger.Int64("total", n))
					}
				}
			}
		}
	}()

	return ticks, errs
}

// Reconnect closes, waits the reconnect delay and subscribes again.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.reconnectDelay):
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close closes the WS connection.
func (s *Stream) Close() error {
	s.connected.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// IsConnected indicates status.
func (s *Stream) IsConnected() bool { return s.connected.Load() }
