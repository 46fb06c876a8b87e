package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	dbconfig "syncboard/pkg/database"
	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

// Manager implements the PersistenceBackend interface
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager creates a new persistence manager
func NewManager(config *dbconfig.Config) (*Manager, error) {
	// ARCHITECTURAL DISCOVERY: SQLite connection string carries the same
	// optimizations as the per-connection pragmas for pooled connections
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100), // TECHNICAL: Buffer for write operations prevents blocking
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: Retry logic exactly once after 5 seconds
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db) // Retry once
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	// TECHNICAL DISCOVERY: Check if manager is closed before attempting write
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("persistence manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("persistence manager is shutting down")
	}
}

// SaveSnapshot durably stores a diagram snapshot at a sequence point
func (m *Manager) SaveSnapshot(ctx context.Context, diagramID string, seq uint64, data json.RawMessage) error {
	return m.executeWrite(func(db *sql.DB) error {
		// FUNCTIONAL DISCOVERY: Upsert keeps re-saving the same sequence
		// point idempotent for replayed snapshot requests
		query := `
			INSERT INTO snapshots (diagram_id, seq, data)
			VALUES (?, ?, ?)
			ON CONFLICT (diagram_id, seq) DO UPDATE SET data = excluded.data
		`
		_, err := db.ExecContext(ctx, query, diagramID, seq, string(data))
		if err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
		return nil
	})
}

// LatestSnapshot returns the most recent stored snapshot for a diagram
func (m *Manager) LatestSnapshot(ctx context.Context, diagramID string) (json.RawMessage, uint64, error) {
	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	query := `
		SELECT data, seq
		FROM snapshots
		WHERE diagram_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`

	var data string
	var seq uint64
	err := m.db.QueryRowContext(ctx, query, diagramID).Scan(&data, &seq)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, interfaces.ErrSnapshotNotFound
		}
		return nil, 0, fmt.Errorf("failed to query snapshot: %w", err)
	}

	return json.RawMessage(data), seq, nil
}

// SaveComment persists a comment record
func (m *Manager) SaveComment(ctx context.Context, comment *types.Comment) error {
	return m.executeWrite(func(db *sql.DB) error {
		// FUNCTIONAL DISCOVERY: Nullable position and thread columns cover
		// both anchored and free-floating comments in one table
		var posX, posY sql.NullFloat64
		if comment.Position != nil {
			posX = sql.NullFloat64{Float64: comment.Position.X, Valid: true}
			posY = sql.NullFloat64{Float64: comment.Position.Y, Valid: true}
		}

		var elementID, parentID sql.NullString
		if comment.ElementID != "" {
			elementID = sql.NullString{String: comment.ElementID, Valid: true}
		}
		if comment.ParentCommentID != "" {
			parentID = sql.NullString{String: comment.ParentCommentID, Valid: true}
		}

		query := `
			INSERT INTO comments (id, diagram_id, content, author_id, position_x, position_y, element_id, parent_comment_id, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			comment.ID,
			comment.DiagramID,
			comment.Content,
			comment.AuthorID,
			posX,
			posY,
			elementID,
			parentID,
			comment.Status,
			comment.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert comment: %w", err)
		}
		return nil
	})
}

// UpdateCommentStatus records a one-way pending to resolved transition
func (m *Manager) UpdateCommentStatus(ctx context.Context, commentID, status, resolvedBy string) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			UPDATE comments
			SET status = ?, resolved_by = ?, resolved_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`
		result, err := db.ExecContext(ctx, query, status, resolvedBy, commentID)
		if err != nil {
			return fmt.Errorf("failed to update comment status: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check comment update: %w", err)
		}
		if rows == 0 {
			return interfaces.ErrCommentNotFound
		}
		return nil
	})
}

// LoadComments returns all comments for a diagram ordered by creation time
func (m *Manager) LoadComments(ctx context.Context, diagramID string) ([]*types.Comment, error) {
	// FUNCTIONAL DISCOVERY: Order by created_at ASC keeps thread replies
	// after their parents without a recursive query
	query := `
		SELECT id, diagram_id, content, author_id, position_x, position_y, element_id, parent_comment_id, status, created_at, resolved_by, resolved_at
		FROM comments
		WHERE diagram_id = ?
		ORDER BY created_at ASC
	`

	rows, err := m.db.QueryContext(ctx, query, diagramID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var comments []*types.Comment

	for rows.Next() {
		var comment types.Comment
		var posX, posY sql.NullFloat64
		var elementID, parentID, resolvedBy sql.NullString
		var resolvedAt sql.NullTime

		err := rows.Scan(
			&comment.ID,
			&comment.DiagramID,
			&comment.Content,
			&comment.AuthorID,
			&posX,
			&posY,
			&elementID,
			&parentID,
			&comment.Status,
			&comment.CreatedAt,
			&resolvedBy,
			&resolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment row: %w", err)
		}

		// Handle nullable anchor and thread columns
		if posX.Valid && posY.Valid {
			comment.Position = &types.Position{X: posX.Float64, Y: posY.Float64}
		}
		if elementID.Valid {
			comment.ElementID = elementID.String
		}
		if parentID.Valid {
			comment.ParentCommentID = parentID.String
		}
		if resolvedBy.Valid {
			comment.ResolvedBy = resolvedBy.String
		}
		if resolvedAt.Valid {
			comment.ResolvedAt = &resolvedAt.Time
		}

		comments = append(comments, &comment)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comment rows: %w", err)
	}

	return comments, nil
}

// UpsertCollaborator adds or updates a roster entry
func (m *Manager) UpsertCollaborator(ctx context.Context, collab *types.Collaborator) error {
	return m.executeWrite(func(db *sql.DB) error {
		// FUNCTIONAL DISCOVERY: Upsert covers both invite and role change
		// with a single statement
		query := `
			INSERT INTO collaborators (diagram_id, user_id, role, invited_by, invited_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (diagram_id, user_id) DO UPDATE SET role = excluded.role
		`
		_, err := db.ExecContext(ctx, query,
			collab.DiagramID,
			collab.UserID,
			collab.Role,
			collab.InvitedBy,
			collab.InvitedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert collaborator: %w", err)
		}
		return nil
	})
}

// RemoveCollaborator deletes a roster entry
func (m *Manager) RemoveCollaborator(ctx context.Context, diagramID, userID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `DELETE FROM collaborators WHERE diagram_id = ? AND user_id = ?`
		_, err := db.ExecContext(ctx, query, diagramID, userID)
		if err != nil {
			return fmt.Errorf("failed to remove collaborator: %w", err)
		}
		return nil
	})
}

// ListCollaborators returns the roster for a diagram
func (m *Manager) ListCollaborators(ctx context.Context, diagramID string) ([]*types.Collaborator, error) {
	query := `
		SELECT diagram_id, user_id, role, invited_by, invited_at
		FROM collaborators
		WHERE diagram_id = ?
		ORDER BY invited_at ASC
	`

	rows, err := m.db.QueryContext(ctx, query, diagramID)
	if err != nil {
		return nil, fmt.Errorf("failed to query collaborators: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var collaborators []*types.Collaborator

	for rows.Next() {
		var collab types.Collaborator
		err := rows.Scan(
			&collab.DiagramID,
			&collab.UserID,
			&collab.Role,
			&collab.InvitedBy,
			&collab.InvitedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collaborator row: %w", err)
		}
		collaborators = append(collaborators, &collab)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collaborator rows: %w", err)
	}

	return collaborators, nil
}

// ArchiveChanges stores change log entries evicted from the in-memory log
func (m *Manager) ArchiveChanges(ctx context.Context, diagramID string, changes []types.Change) error {
	if len(changes) == 0 {
		return nil
	}

	return m.executeWrite(func(db *sql.DB) error {
		// FUNCTIONAL DISCOVERY: Transaction support essential so an archive
		// batch lands atomically or not at all
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }() // TECHNICAL: Always rollback unless commit succeeds

		// TECHNICAL DISCOVERY: JSON serialization for payloads maintains schema flexibility
		query := `
			INSERT OR IGNORE INTO changes (id, diagram_id, type, target_id, payload, origin_user_id, seq, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		for _, change := range changes {
			var payloadJSON sql.NullString
			if change.Payload != nil {
				data, err := json.Marshal(change.Payload)
				if err != nil {
					return fmt.Errorf("failed to marshal change payload: %w", err)
				}
				payloadJSON = sql.NullString{String: string(data), Valid: true}
			}

			_, err = tx.ExecContext(ctx, query,
				change.ID,
				diagramID,
				change.Type,
				change.TargetID,
				payloadJSON,
				change.OriginUserID,
				change.SequenceNumber,
				change.Timestamp,
			)
			if err != nil {
				return fmt.Errorf("failed to insert change %s: %w", change.ID, err)
			}
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit change archive: %w", err)
		}
		return nil
	})
}

// GetArchivedChanges retrieves archived changes for a diagram from a sequence number
// FUNCTIONAL DISCOVERY: Ordered by seq ASC so resync replays preserve total order
func (m *Manager) GetArchivedChanges(ctx context.Context, diagramID string, fromSeq uint64) ([]types.Change, error) {
	query := `
		SELECT id, type, target_id, payload, origin_user_id, seq, timestamp
		FROM changes
		WHERE diagram_id = ? AND seq >= ?
		ORDER BY seq ASC
	`

	rows, err := m.db.QueryContext(ctx, query, diagramID, fromSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived changes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var changes []types.Change

	for rows.Next() {
		var change types.Change
		var payloadJSON sql.NullString

		err := rows.Scan(
			&change.ID,
			&change.Type,
			&change.TargetID,
			&payloadJSON,
			&change.OriginUserID,
			&change.SequenceNumber,
			&change.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change row: %w", err)
		}

		if payloadJSON.Valid {
			if err := json.Unmarshal([]byte(payloadJSON.String), &change.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal change payload: %w", err)
			}
		}

		changes = append(changes, change)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change rows: %w", err)
	}

	return changes, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	// FUNCTIONAL DISCOVERY: Health check validates both connectivity and basic operations
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, "SELECT COUNT(*) FROM snapshots LIMIT 1")
	if err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	_ = rows.Close()

	return nil
}

// GetDB returns the underlying database connection for migrations
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the persistence manager
func (m *Manager) Close() error {
	// TECHNICAL DISCOVERY: Prevent multiple close operations
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil // Already closed
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait() // Wait for write loop to finish processing

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// applySQLiteOptimizations applies performance pragmas to the connection pool
func applySQLiteOptimizations(db *sql.DB) error {
	// TECHNICAL DISCOVERY: Pragmas must run on the pool directly; the DSN
	// covers per-connection settings, these cover the shared page cache
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for concurrent reads
		"PRAGMA synchronous = NORMAL", // Balance safety and performance
		"PRAGMA cache_size = -64000",  // 64MB cache for room-scale workloads
		"PRAGMA temp_store = MEMORY",  // Use memory for temporary tables
		"PRAGMA foreign_keys = ON",    // Ensure referential integrity
		"PRAGMA busy_timeout = 5000",  // 5 second timeout for write coordination
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	return nil
}
