// Package stream consumes executed fills pushed by the trading agent over a
// websocket and feeds them into the risk engine.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/GoPolymarket/riskgate/internal/pkg/logger"
	"github.com/GoPolymarket/riskgate/internal/pkg/metrics"
	"github.com/GoPolymarket/riskgate/internal/service"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	ReconnBaseDelay = 1 * time.Second
	ReconnMaxDelay  = 30 * time.Second
	PingPeriod      = 15 * time.Second // Keep-alive interval
)

// FillRecorder is satisfied by *service.RiskEngine.
type FillRecorder interface {
	RecordFill(ctx context.Context, fill model.Fill) (model.DayState, error)
}

// FillEvent is one message of the stream. Only Type "fill" is applied.
type FillEvent struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Qty       decimal.Decimal `json:"qty"`
	Price     decimal.Decimal `json:"price"`
	PnL       decimal.Decimal `json:"pnl"`
}

func (e FillEvent) toFill() model.Fill {
	f := model.Fill{
		ID:     e.ID,
		Symbol: e.Symbol,
		Side:   e.Side,
		Qty:    e.Qty,
		Price:  e.Price,
		PnL:    e.PnL,
	}
	if e.Timestamp != nil {
		f.Timestamp = *e.Timestamp
	}
	return f
}

type Option func(*FillStream)

func WithLogger(l *slog.Logger) Option {
	return func(s *FillStream) { s.log = logger.OrDefault(l) }
}

// WithBackoff overrides the reconnect delays.
func WithBackoff(base, max time.Duration) Option {
	return func(s *FillStream) {
		s.baseDelay = base
		s.maxDelay = max
	}
}

func WithPingPeriod(d time.Duration) Option {
	return func(s *FillStream) { s.pingPeriod = d }
}

type FillStream struct {
	url      string
	recorder FillRecorder
	log      *slog.Logger
	dialer   *websocket.Dialer

	baseDelay  time.Duration
	maxDelay   time.Duration
	pingPeriod time.Duration

	mu          sync.Mutex // guards conn and writes to it
	conn        *websocket.Conn
	isConnected bool

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
}

func NewFillStream(url string, recorder FillRecorder, opts ...Option) *FillStream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &FillStream{
		url:        url,
		recorder:   recorder,
		log:        logger.Get(),
		dialer:     websocket.DefaultDialer,
		baseDelay:  ReconnBaseDelay,
		maxDelay:   ReconnMaxDelay,
		pingPeriod: PingPeriod,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the connection loop in a background goroutine
func (s *FillStream) Start() {
	if s.started.CompareAndSwap(false, true) {
		go s.runLoop()
	}
}

// Stop closes the connection and waits for the loop to exit.
func (s *FillStream) Stop() {
	s.cancel()
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.mu.Unlock()
	if s.started.Load() {
		<-s.done
	}
}

func (s *FillStream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isConnected
}

func (s *FillStream) runLoop() {
	defer close(s.done)
	delay := s.baseDelay

	for {
		if s.ctx.Err() != nil {
			return
		}

		conn, err := s.connect()
		if err != nil {
			s.log.Error("Fill stream connection failed", "url", s.url, "error", err, "retry_in", delay)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
			continue
		}

		delay = s.baseDelay
		s.log.Info("Fill stream connected", "url", s.url)
		s.readLoop(conn)

		s.mu.Lock()
		s.isConnected = false
		s.conn = nil
		s.mu.Unlock()
	}
}

func (s *FillStream) connect() (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(s.ctx, s.url, nil)
	if err != nil {
		return nil, err
	}

	// No frame (data or pong) within one ping period plus slack means the peer is gone.
	readTimeout := s.pingPeriod + 10*time.Second
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return nil, s.ctx.Err()
	}
	s.conn = conn
	s.isConnected = true
	s.mu.Unlock()

	go s.pingLoop(conn)
	return conn, nil
}

func (s *FillStream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.conn != conn {
				s.mu.Unlock()
				return
			}
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *FillStream) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	readTimeout := s.pingPeriod + 10*time.Second
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.log.Warn("Fill stream read failed", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		s.handleMessage(message)
	}
}

// handleMessage accepts a single event or a JSON array of events.
func (s *FillStream) handleMessage(raw []byte) {
	events, err := decodeEvents(raw)
	if err != nil {
		metrics.StreamEvents.WithLabelValues("malformed").Inc()
		s.log.Warn("Fill stream message dropped", "error", err)
		return
	}

	for _, ev := range events {
		if !strings.EqualFold(ev.Type, "fill") {
			metrics.StreamEvents.WithLabelValues("ignored").Inc()
			continue
		}
		st, err := s.recorder.RecordFill(s.ctx, ev.toFill())
		if errors.Is(err, service.ErrDuplicateFill) {
			metrics.StreamEvents.WithLabelValues("duplicate").Inc()
			s.log.Debug("Fill stream event already recorded", "id", ev.ID)
			continue
		}
		if err != nil {
			metrics.StreamEvents.WithLabelValues("rejected").Inc()
			s.log.Error("Fill stream event rejected", "id", ev.ID, "symbol", ev.Symbol, "error", err)
			continue
		}
		metrics.StreamEvents.WithLabelValues("recorded").Inc()
		s.log.Debug("Fill stream event recorded", "id", ev.ID, "date", st.DateUTC, "trades_today", st.TradesToday)
	}
}

func decodeEvents(raw []byte) ([]FillEvent, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, errors.New("empty message")
	}
	if strings.HasPrefix(trimmed, "[") {
		var events []FillEvent
		if err := json.Unmarshal([]byte(trimmed), &events); err != nil {
			return nil, err
		}
		return events, nil
	}
	var single FillEvent
	if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
		return nil, err
	}
	return []FillEvent{single}, nil
}
