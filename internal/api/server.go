package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"syncboard/internal/room"
	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

// ConnectionStats exposes transport-level counters for monitoring
type ConnectionStats interface {
	GetStats() map[string]int
}

// Server is the HTTP monitoring surface next to the websocket endpoint
// ARCHITECTURAL DISCOVERY: Pure read-only interface over room and
// connection state; all collaboration happens on the websocket side
type Server struct {
	rooms       *room.Registry
	backend     interfaces.PersistenceBackend // nil disables persistence checks
	connections ConnectionStats
	router      *http.ServeMux
}

// NewServer creates the API server with its routes installed
func NewServer(rooms *room.Registry, backend interfaces.PersistenceBackend, connections ConnectionStats) *Server {
	s := &Server{
		rooms:       rooms,
		backend:     backend,
		connections: connections,
		router:      http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/rooms", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleRooms))))
	s.router.Handle("/api/rooms/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleRoomByID))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response types for JSON serialization
type ListRoomsResponse struct {
	Rooms []room.Stats `json:"rooms"`
}

type RoomResponse struct {
	Room   room.Stats            `json:"room"`
	Roster []*types.Collaborator `json:"roster,omitempty"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Rooms       int            `json:"rooms"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleRooms serves GET /api/rooms with stats for every active room
func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		stats := s.rooms.ListStats()
		if stats == nil {
			stats = []room.Stats{}
		}
		_ = json.NewEncoder(w).Encode(ListRoomsResponse{Rooms: stats})
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRoomByID serves GET /api/rooms/{diagramID}
func (s *Server) handleRoomByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	diagramID := strings.Split(path, "/")[0]
	if diagramID == "" {
		s.sendError(w, "Diagram ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getRoom(w, r, diagramID)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request, diagramID string) {
	activeRoom, exists := s.rooms.Get(diagramID)
	if !exists {
		s.sendError(w, "Room not found", http.StatusNotFound)
		return
	}

	response := RoomResponse{Room: activeRoom.Stats()}

	// The roster rides along when persistence is configured
	if s.backend != nil {
		roster, err := s.backend.ListCollaborators(r.Context(), diagramID)
		if err == nil {
			response.Roster = roster
		}
	}

	_ = json.NewEncoder(w).Encode(response)
}

// healthCheck serves GET /health with component status
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if s.backend != nil {
		if err := s.backend.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			dbStatus = fmt.Sprintf("error: %v", err)
		}
	} else {
		dbStatus = "disabled"
	}

	connectionStats := map[string]int{}
	if s.connections != nil {
		connectionStats = s.connections.GetStats()
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Rooms:       len(s.rooms.ListStats()),
		Connections: connectionStats,
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware enables web client access
// FUNCTIONAL DISCOVERY: Allow all origins for development; production
// deployments should restrict this
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
