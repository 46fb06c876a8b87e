package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables testing
// and deployment verification without coupling to migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
// FUNCTIONAL DISCOVERY: Explicit table validation prevents runtime errors
// from missing tables during database operations
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"snapshots":         "Diagram snapshot storage",
		"comments":          "Comment thread storage",
		"collaborators":     "Roster membership storage",
		"changes":           "Archived change log storage",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table column structure matches expectations
// TECHNICAL DISCOVERY: Column validation ensures type compatibility between
// Go structs and database schema
func (v *SchemaValidator) ValidateTableStructure() error {
	snapshotColumns := map[string]string{
		"diagram_id": "TEXT",
		"seq":        "INTEGER",
		"data":       "TEXT",
		"created_at": "DATETIME",
	}
	if err := v.validateColumns("snapshots", snapshotColumns); err != nil {
		return fmt.Errorf("snapshots table structure invalid: %w", err)
	}

	commentColumns := map[string]string{
		"id":                "TEXT",
		"diagram_id":        "TEXT",
		"content":           "TEXT",
		"author_id":         "TEXT",
		"position_x":        "REAL",
		"position_y":        "REAL",
		"element_id":        "TEXT",
		"parent_comment_id": "TEXT",
		"status":            "TEXT",
		"created_at":        "DATETIME",
		"resolved_by":       "TEXT",
		"resolved_at":       "DATETIME",
	}
	if err := v.validateColumns("comments", commentColumns); err != nil {
		return fmt.Errorf("comments table structure invalid: %w", err)
	}

	collaboratorColumns := map[string]string{
		"diagram_id": "TEXT",
		"user_id":    "TEXT",
		"role":       "TEXT",
		"invited_by": "TEXT",
		"invited_at": "DATETIME",
	}
	if err := v.validateColumns("collaborators", collaboratorColumns); err != nil {
		return fmt.Errorf("collaborators table structure invalid: %w", err)
	}

	changeColumns := map[string]string{
		"id":             "TEXT",
		"diagram_id":     "TEXT",
		"type":           "TEXT",
		"target_id":      "TEXT",
		"payload":        "TEXT",
		"origin_user_id": "TEXT",
		"seq":            "INTEGER",
		"timestamp":      "DATETIME",
	}
	if err := v.validateColumns("changes", changeColumns); err != nil {
		return fmt.Errorf("changes table structure invalid: %w", err)
	}

	return nil
}

// ValidateIndexes verifies that all performance indexes exist
// FUNCTIONAL DISCOVERY: Index validation ensures query performance expectations
// are met in production deployments
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_comments_diagram_time": "Comment thread retrieval",
		"idx_comments_status":       "Pending comment filtering",
		"idx_collaborators_user":    "Membership lookups by user",
		"idx_changes_diagram_seq":   "Change archive resync queries",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints verifies that database constraints are properly enforced
// ARCHITECTURAL DISCOVERY: Constraint validation ensures data integrity rules
// are enforced at the database level
func (v *SchemaValidator) ValidateConstraints() error {
	// Test check constraint for comment status
	_, err := v.db.Exec(`
		INSERT INTO comments (id, diagram_id, content, author_id, status)
		VALUES ('constraint-probe', 'd1', 'test', 'user1', 'archived')
	`)
	if err == nil {
		// Clean up the test record if it somehow got inserted
		if _, err := v.db.Exec("DELETE FROM comments WHERE id = 'constraint-probe'"); err != nil {
			// Ignore cleanup errors - constraint validation is primary concern
			_ = err
		}
		return fmt.Errorf("check constraint not enforced: comment status validation")
	}

	// Test check constraint for collaborator roles
	_, err = v.db.Exec(`
		INSERT INTO collaborators (diagram_id, user_id, role, invited_by)
		VALUES ('d1', 'constraint-probe', 'superuser', 'user1')
	`)
	if err == nil {
		if _, err := v.db.Exec("DELETE FROM collaborators WHERE user_id = 'constraint-probe'"); err != nil {
			// Ignore cleanup errors - constraint validation is primary concern
			_ = err
		}
		return fmt.Errorf("check constraint not enforced: collaborator role validation")
	}

	return nil
}

// tableExists checks if a table exists in the database
func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// indexExists checks if an index exists in the database
func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			// Ignore cleanup errors to avoid masking the primary error
			_ = err
		}
	}()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		err = rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk)
		if err != nil {
			return err
		}

		foundColumns[name] = dataType
	}

	// Check that all expected columns exist with correct types
	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return rows.Err()
}
