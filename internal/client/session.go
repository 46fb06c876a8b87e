package client

import (
	"context"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"syncboard/internal/presence"
	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

// Session timing defaults
// FUNCTIONAL DISCOVERY: Degraded at 10s warns the UI while the link may
// still recover; closed at 30s matches the server's read deadline so both
// sides give up together
const (
	defaultJoinTimeout   = 5 * time.Second
	defaultDegradedAfter = 10 * time.Second
	defaultClosedAfter   = 30 * time.Second
	monitorInterval      = time.Second
)

// Config holds client session parameters
type Config struct {
	ServerURL string // ws:// or wss:// endpoint
	Token     string
	DiagramID string
	UserID    string

	JoinTimeout    time.Duration
	DegradedAfter  time.Duration
	ClosedAfter    time.Duration
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	CursorInterval time.Duration

	// Baseline supplies the resync point for reconnect joins; nil means
	// always rejoin from zero
	Baseline func() uint64
}

func (cfg *Config) applyDefaults() {
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = defaultJoinTimeout
	}
	if cfg.DegradedAfter <= 0 {
		cfg.DegradedAfter = defaultDegradedAfter
	}
	if cfg.ClosedAfter <= 0 {
		cfg.ClosedAfter = defaultClosedAfter
	}
}

// Session is one client's connection to a diagram room with automatic
// reconnection and connection health reporting
// ARCHITECTURAL DISCOVERY: The session owns transport concerns only;
// change ordering belongs to the Synchronizer layered on top
type Session struct {
	cfg     Config
	retries *backoff
	cursor  *presence.Throttler

	mu           sync.Mutex
	conn         *websocket.Conn
	state        string
	sessionID    string
	role         string
	lastActivity time.Time
	reconnecting bool
	closed       bool

	writeMu sync.Mutex

	onState    func(state string)
	onEnvelope func(env *types.Envelope)

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects, joins the diagram room and starts health monitoring
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	cfg.applyDefaults()

	s := &Session{
		cfg:     cfg,
		retries: newBackoff(cfg.BackoffBase, cfg.BackoffCap),
		state:   types.ConnStateClosed,
		done:    make(chan struct{}),
	}
	s.cursor = presence.NewThrottler(cfg.CursorInterval, func(_ string, position types.Position) {
		_ = s.Send(types.MsgCursorUpdate, types.CursorUpdatePayload{Position: position})
	})

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	go s.monitor()
	return s, nil
}

// OnConnectionChanged registers the connection state callback
func (s *Session) OnConnectionChanged(fn func(state string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = fn
}

// OnEnvelope registers the handler for every server frame
func (s *Session) OnEnvelope(fn func(env *types.Envelope)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnvelope = fn
}

// SessionID returns the server-assigned session identifier
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Role returns the role granted by the room at admission
func (s *Session) Role() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// State returns the current connection state
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// connect dials the server and completes the join handshake
func (s *Session) connect(ctx context.Context) error {
	endpoint, err := url.Parse(s.cfg.ServerURL)
	if err != nil {
		return err
	}
	query := endpoint.Query()
	query.Set("token", s.cfg.Token)
	query.Set("diagram_id", s.cfg.DiagramID)
	endpoint.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return err
	}

	baseline := uint64(0)
	if s.cfg.Baseline != nil {
		baseline = s.cfg.Baseline()
	}

	joinEnv, err := types.NewEnvelope(types.MsgJoin, types.JoinPayload{
		DiagramID:   s.cfg.DiagramID,
		UserID:      s.cfg.UserID,
		BaselineSeq: baseline,
	})
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := conn.WriteJSON(joinEnv); err != nil {
		_ = conn.Close()
		return err
	}

	// Wait for the joined reply; anything else within the window is
	// buffered and replayed to the envelope handler afterwards
	joined, buffered, err := s.awaitJoined(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.sessionID = joined.SessionID
	s.role = joined.Role
	s.lastActivity = time.Now()
	s.mu.Unlock()

	s.retries.reset()
	s.setState(types.ConnStateConnected)

	for _, env := range buffered {
		s.deliver(env)
	}

	go s.readLoop(conn)
	return nil
}

// awaitJoined reads frames until the join handshake completes
func (s *Session) awaitJoined(conn *websocket.Conn) (*types.JoinedPayload, []*types.Envelope, error) {
	deadline := time.Now().Add(s.cfg.JoinTimeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, err
	}

	var buffered []*types.Envelope
	for {
		var env types.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
				return nil, nil, interfaces.ErrConnectTimeout
			}
			return nil, nil, err
		}

		switch env.Type {
		case types.MsgJoined:
			var joined types.JoinedPayload
			if err := env.Decode(&joined); err != nil {
				return nil, nil, err
			}
			if err := conn.SetReadDeadline(time.Time{}); err != nil {
				return nil, nil, err
			}
			return &joined, buffered, nil
		case types.MsgError:
			return nil, nil, ErrJoinRejected
		default:
			buffered = append(buffered, &env)
		}
	}
}

// Send ships one envelope to the server
func (s *Session) Send(msgType string, payload interface{}) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	env, err := types.NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}

	// TECHNICAL DISCOVERY: gorilla allows one concurrent writer; the mutex
	// serializes sends from the synchronizer and direct callers
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(env)
}

// readLoop pumps server frames for one transport connection
func (s *Session) readLoop(conn *websocket.Conn) {
	conn.SetPingHandler(func(data string) error {
		s.touch()
		deadline := time.Now().Add(5 * time.Second)
		return conn.WriteControl(websocket.PongMessage, []byte(data), deadline)
	})

	for {
		var env types.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			break
		}
		s.touch()
		s.deliver(&env)
	}

	s.handleTransportLoss(conn)
}

// deliver hands one envelope to the registered handler
func (s *Session) deliver(env *types.Envelope) {
	s.mu.Lock()
	handler := s.onEnvelope
	s.mu.Unlock()
	if handler != nil {
		handler(env)
	}
}

// touch records transport activity for the health monitor
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// monitor tracks connection health and degrades state on silence
func (s *Session) monitor() {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			if s.closed || s.conn == nil || s.reconnecting {
				s.mu.Unlock()
				continue
			}
			silence := time.Since(s.lastActivity)
			conn := s.conn
			s.mu.Unlock()

			if silence >= s.cfg.ClosedAfter {
				// The link is dead; force the read loop to fail and reconnect
				_ = conn.Close()
			} else if silence >= s.cfg.DegradedAfter {
				s.setState(types.ConnStateDegraded)
			}

		case <-s.done:
			return
		}
	}
}

// handleTransportLoss starts reconnection after a read loop exit
func (s *Session) handleTransportLoss(conn *websocket.Conn) {
	_ = conn.Close()

	s.mu.Lock()
	if s.closed || s.conn != conn || s.reconnecting {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.reconnecting = true
	s.mu.Unlock()

	s.setState(types.ConnStateDegraded)
	go s.reconnectLoop()
}

// reconnectLoop retries the connection with capped jittered backoff
func (s *Session) reconnectLoop() {
	defer func() {
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
	}()

	for {
		delay := s.retries.next()
		select {
		case <-time.After(delay):
		case <-s.done:
			return
		}

		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JoinTimeout)
		err := s.connect(ctx)
		cancel()
		if err == nil {
			return
		}
		log.Printf("Reconnect attempt failed for diagram %s: %v", s.cfg.DiagramID, err)
	}
}

// setState transitions the connection state and notifies the callback
func (s *Session) setState(state string) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	callback := s.onState
	s.mu.Unlock()

	if callback != nil {
		callback(state)
	}
}

// Close ends the session permanently; no reconnection follows
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()

		close(s.done)
		s.cursor.Stop()
		if conn != nil {
			err = conn.Close()
		}
		s.setState(types.ConnStateClosed)
	})
	return err
}
