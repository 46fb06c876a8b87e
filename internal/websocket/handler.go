package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"syncboard/internal/room"
	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

// WebSocket upgrader with production-ready settings
// ARCHITECTURAL DISCOVERY: Separate upgrader configuration enables reuse
// and consistent WebSocket settings across different handler instances
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// FUNCTIONAL DISCOVERY: Allow all origins for development
		// Production deployments should implement stricter origin checking
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler manages WebSocket connections and authentication
// ARCHITECTURAL DISCOVERY: Clean separation of transport handling from room
// semantics; the handler authenticates and pumps envelopes, rooms decide
type Handler struct {
	registry *Registry                  // Connection tracking and lookup
	identity interfaces.IdentityProvider // Credential verification
	rooms    *room.Registry             // Room admission and message handling
	limits   *rateLimiter               // Per-session inbound flood control
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, identity interfaces.IdentityProvider, rooms *room.Registry) *Handler {
	return &Handler{
		registry: registry,
		identity: identity,
		rooms:    rooms,
		limits:   newRateLimiter(defaultRateLimit, defaultRateWindow),
	}
}

// HandleWebSocket handles WebSocket connection requests with comprehensive validation
// ARCHITECTURAL DISCOVERY: Multi-stage validation (parameters -> identity -> WebSocket -> admission)
// ensures proper error handling and prevents invalid connections from consuming resources
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Extract and validate query parameters
	token := r.URL.Query().Get("token")
	diagramID := r.URL.Query().Get("diagram_id")

	if token == "" || diagramID == "" {
		http.Error(w, "Missing required query parameters: token, diagram_id", http.StatusBadRequest)
		return
	}

	if !types.IsValidID(diagramID) {
		http.Error(w, "Invalid diagram_id format", http.StatusBadRequest)
		return
	}

	// Authenticate before upgrading
	// FUNCTIONAL DISCOVERY: Identity verification before the upgrade gives
	// callers a proper HTTP status instead of an opaque close frame
	identity, err := h.identity.Authenticate(r.Context(), token)
	if err != nil {
		http.Error(w, "Authentication failed", http.StatusUnauthorized)
		return
	}

	// Upgrade to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// Create connection wrapper with single-writer pattern
	wsConn := NewConnection(conn)

	// Room admission resolves the per-diagram role from the roster and
	// sets credentials on the connection
	admitted, err := h.rooms.Admit(r.Context(), wsConn, identity, diagramID)
	if err != nil {
		log.Printf("Room admission failed for user %s: %v", identity.UserID, err)
		h.writeErrorAndClose(wsConn, "join_rejected", "Not authorized to join this diagram")
		return
	}

	// Register connection with registry for global lookup
	// FUNCTIONAL DISCOVERY: Registration after admission ensures only valid
	// connections are tracked and available for broadcast
	if err := h.registry.RegisterConnection(wsConn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		admitted.Disconnect(wsConn)
		_ = wsConn.Close()
		return
	}

	// Start connection monitoring and message handling
	// TECHNICAL DISCOVERY: Separate goroutine for connection lifecycle management
	// enables clean resource cleanup and heartbeat monitoring
	go h.handleConnection(wsConn, admitted)
}

// writeErrorAndClose sends a final error envelope before dropping a connection
func (h *Handler) writeErrorAndClose(conn *Connection, code, message string) {
	env, err := types.NewEnvelope(types.MsgError, types.ErrorPayload{Code: code, Message: message})
	if err == nil {
		if err := conn.WriteJSON(env); err != nil {
			log.Printf("Failed to send error message: %v", err)
		}
	}
	_ = conn.Close()
}

// handleConnection manages the connection lifecycle with heartbeat monitoring
// ARCHITECTURAL DISCOVERY: Single goroutine per connection handles both heartbeat
// and message reading to prevent goroutine proliferation and resource leaks
func (h *Handler) handleConnection(conn *Connection, admitted *room.Room) {
	defer func() {
		// Clean up connection from room and registry and close resources
		// FUNCTIONAL DISCOVERY: Deferred cleanup ensures resources are released
		// even if connection handling panics or exits unexpectedly
		admitted.Disconnect(conn)
		h.registry.UnregisterConnection(conn)
		h.limits.forget(conn.GetSessionID())
		_ = conn.Close()
	}()

	// Set up ping/pong heartbeat monitoring
	// TECHNICAL DISCOVERY: 60-second read deadline with 30-second ping interval
	// provides reliable connection health monitoring over flaky links
	if err := conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		if err := conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			log.Printf("Failed to set read deadline in pong handler: %v", err)
			return err
		}
		return nil
	})

	// Start ping ticker for heartbeat monitoring
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	// Read pump - decode envelopes and forward to the room
	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for user %s: %v", conn.GetUserID(), err)
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var envelope types.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			// FUNCTIONAL DISCOVERY: One garbled frame does not make the peer
			// broken; drop the message and keep the connection alive
			log.Printf("Dropping malformed message from user %s: %v", conn.GetUserID(), err)
			continue
		}
		if envelope.Type == "" {
			log.Printf("Dropping message without type from user %s", conn.GetUserID())
			continue
		}

		// Shed traffic above the per-session budget before it reaches the room
		if !h.limits.allow(conn.GetSessionID()) {
			if env, err := types.NewEnvelope(types.MsgError, types.ErrorPayload{
				Code:    "rate_limited",
				Message: "Message rate limit exceeded",
			}); err == nil {
				_ = conn.WriteJSON(env)
			}
			continue
		}

		if err := admitted.Submit(conn.GetUserID(), &envelope); err != nil {
			log.Printf("Room rejected message from user %s: %v", conn.GetUserID(), err)
			break
		}
	}
}
