package comments

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

var (
	// ErrUnknownParent indicates a reply to a comment that does not exist
	ErrUnknownParent = errors.New("unknown parent comment")
)

// Store manages the comment threads for one diagram
// ARCHITECTURAL DISCOVERY: Comments are durable annotations, not soft
// state; every mutation persists before any member observes it
type Store struct {
	diagramID string
	backend   interfaces.PersistenceBackend // nil disables persistence

	mu       sync.RWMutex
	comments map[string]*types.Comment
}

// NewStore creates a comment store for a diagram
func NewStore(diagramID string, backend interfaces.PersistenceBackend) *Store {
	return &Store{
		diagramID: diagramID,
		backend:   backend,
		comments:  make(map[string]*types.Comment),
	}
}

// Load restores persisted comments, called once when a room starts
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	persisted, err := s.backend.LoadComments(ctx, s.diagramID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, comment := range persisted {
		copy := *comment
		s.comments[comment.ID] = &copy
	}
	return nil
}

// Add validates and stores a new comment or thread reply
// FUNCTIONAL DISCOVERY: Persist-then-cache ordering means a comment that
// fails durable storage is never visible to the room
func (s *Store) Add(ctx context.Context, authorID, content string, position *types.Position, elementID, parentID string) (*types.Comment, error) {
	comment := &types.Comment{
		ID:              uuid.New().String(),
		DiagramID:       s.diagramID,
		Content:         content,
		AuthorID:        authorID,
		ElementID:       elementID,
		ParentCommentID: parentID,
		Status:          types.CommentPending,
		CreatedAt:       time.Now().UTC(),
	}
	if position != nil {
		pos := *position
		comment.Position = &pos
	}

	if err := comment.Validate(); err != nil {
		return nil, err
	}

	if parentID != "" {
		s.mu.RLock()
		_, exists := s.comments[parentID]
		s.mu.RUnlock()
		if !exists {
			return nil, ErrUnknownParent
		}
	}

	if s.backend != nil {
		if err := s.backend.SaveComment(ctx, comment); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	stored := *comment
	s.comments[comment.ID] = &stored
	s.mu.Unlock()

	copy := *comment
	return &copy, nil
}

// Resolve marks a comment resolved. Resolution is one-way and idempotent:
// resolving an already resolved comment changes nothing.
func (s *Store) Resolve(ctx context.Context, commentID, resolvedBy string) (*types.Comment, bool, error) {
	s.mu.RLock()
	comment, exists := s.comments[commentID]
	if !exists {
		s.mu.RUnlock()
		return nil, false, interfaces.ErrCommentNotFound
	}
	if comment.Status == types.CommentResolved {
		copy := *comment
		s.mu.RUnlock()
		return &copy, false, nil
	}
	s.mu.RUnlock()

	if s.backend != nil {
		if err := s.backend.UpdateCommentStatus(ctx, commentID, types.CommentResolved, resolvedBy); err != nil {
			return nil, false, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	comment, exists = s.comments[commentID]
	if !exists {
		return nil, false, interfaces.ErrCommentNotFound
	}
	if comment.Status == types.CommentResolved {
		copy := *comment
		return &copy, false, nil
	}

	now := time.Now().UTC()
	comment.Status = types.CommentResolved
	comment.ResolvedBy = resolvedBy
	comment.ResolvedAt = &now

	copy := *comment
	return &copy, true, nil
}

// Get returns a copy of one comment
func (s *Store) Get(commentID string) (*types.Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comment, exists := s.comments[commentID]
	if !exists {
		return nil, false
	}
	copy := *comment
	return &copy, true
}

// List returns all comments ordered by creation time
// TECHNICAL DISCOVERY: Flat creation-ordered listing is enough for thread
// rendering because replies always postdate their parents
func (s *Store) List() []*types.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comments := make([]*types.Comment, 0, len(s.comments))
	for _, comment := range s.comments {
		copy := *comment
		comments = append(comments, &copy)
	}

	sort.Slice(comments, func(i, j int) bool {
		if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].ID < comments[j].ID
		}
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return comments
}

// Thread returns a root comment followed by its replies in creation order
func (s *Store) Thread(rootID string) []*types.Comment {
	all := s.List()

	var thread []*types.Comment
	for _, comment := range all {
		if comment.ID == rootID || comment.ParentCommentID == rootID {
			thread = append(thread, comment)
		}
	}
	return thread
}

// Count returns the number of stored comments
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.comments)
}
