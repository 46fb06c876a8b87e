package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"syncboard/internal/api"
	"syncboard/internal/auth"
	"syncboard/internal/config"
	"syncboard/internal/database"
	"syncboard/internal/model"
	"syncboard/internal/room"
	"syncboard/internal/websocket"
	pkgdatabase "syncboard/pkg/database"
	"syncboard/pkg/interfaces"
)

// Application coordinates all system components
// ARCHITECTURAL DISCOVERY: Clean dependency injection with strict
// initialization order: Database -> Cache -> Model -> Rooms -> Auth ->
// WebSocket -> API -> HTTP
type Application struct {
	config     *config.Config
	dbManager  *database.Manager
	cache      *model.SnapshotCache
	modelStore *model.Store
	rooms      *room.Registry
	registry   *websocket.Registry
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication creates an application instance with all components wired
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Initialize the persistence backend (foundation layer)
	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
		MigrationsPath:  "./migrations",
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	migrationManager := pkgdatabase.NewMigrationManager(dbManager.GetDB(), dbConfig.MigrationsPath)
	if err := migrationManager.ApplyMigrations(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Println("Database migrations applied successfully")

	// STEP 2: Initialize the optional snapshot cache
	// FUNCTIONAL DISCOVERY: The cache is a pure optimization; an empty URL
	// runs the model store without it
	var cache *model.SnapshotCache
	if cfg.Redis.URL != "" {
		cache, err = model.NewSnapshotCache(cfg.Redis.URL, cfg.Redis.CacheTTL)
		if err != nil {
			_ = dbManager.Close()
			return nil, fmt.Errorf("failed to initialize snapshot cache: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := cache.Ping(ctx); err != nil {
			log.Printf("Snapshot cache unreachable, continuing without it: %v", err)
			_ = cache.Close()
			cache = nil
		}
		cancel()
	}

	// STEP 3: Initialize the in-memory diagram model
	modelStore := model.NewStore(cache)

	// STEP 4: Initialize the room registry (collaboration authority)
	roomConfig := room.Config{
		InboundBuffer:  cfg.Collab.InboundBuffer,
		LogMaxEntries:  cfg.Collab.LogMaxEntries,
		LogTTL:         cfg.Collab.LogTTL,
		CursorInterval: cfg.Collab.CursorInterval,
		EvictInterval:  cfg.Collab.EvictInterval,
	}
	rooms := room.NewRegistry(modelStore, dbManager, roomConfig)

	// STEP 5: Initialize the identity provider
	var identity interfaces.IdentityProvider
	if cfg.Auth.JWTSecret != "" {
		identity = auth.NewJWTProvider(cfg.Auth.JWTSecret)
	} else {
		// FUNCTIONAL DISCOVERY: Without a secret every connection is
		// rejected; deployments must configure SYNCBOARD_JWT_SECRET
		log.Println("WARNING: No JWT secret configured, all connections will be rejected")
		identity = auth.NewStaticProvider(nil)
	}

	// STEP 6: Initialize WebSocket connection tracking and handling
	registry := websocket.NewRegistry()
	wsHandler := websocket.NewHandler(registry, identity, rooms)

	// STEP 7: Initialize the monitoring API
	apiServer := api.NewServer(rooms, dbManager, registry)

	// STEP 8: Set up the HTTP server with both endpoints
	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		dbManager:  dbManager,
		cache:      cache,
		modelStore: modelStore,
		rooms:      rooms,
		registry:   registry,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start begins serving; it returns once the HTTP listener is up
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting Syncboard application on %s", app.httpServer.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Syncboard application started successfully")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop gracefully shuts down in reverse dependency order:
// HTTP -> Rooms -> Cache -> Database
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down Syncboard application")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Room shutdown archives every remaining change log entry
	app.rooms.Shutdown()

	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			log.Printf("Snapshot cache shutdown error: %v", err)
		}
	}

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("Syncboard application shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
