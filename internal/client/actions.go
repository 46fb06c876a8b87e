package client

import (
	"strings"

	"syncboard/pkg/types"
)

// MoveCursor offers a cursor position for broadcast. Positions are throttled
// to one frame per window; intermediate moves are coalesced to the latest.
func (s *Session) MoveCursor(position types.Position) {
	s.cursor.Submit(s.cfg.UserID, position)
}

// SetStatus announces a presence status transition to the room.
// Status changes bypass the cursor throttle; they are rare and every one
// matters to the roster view.
func (s *Session) SetStatus(status string) error {
	return s.Send(types.MsgPresenceUpdate, types.PresenceUpdatePayload{Status: status})
}

// AddComment creates a top-level comment anchored to a position or element
func (s *Session) AddComment(content string, position *types.Position, elementID string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyComment
	}
	return s.Send(types.MsgAddComment, types.AddCommentPayload{
		Content:   content,
		Position:  position,
		ElementID: elementID,
	})
}

// ReplyTo creates a threaded reply under an existing comment
func (s *Session) ReplyTo(parentCommentID, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyComment
	}
	return s.Send(types.MsgAddComment, types.AddCommentPayload{
		Content:         content,
		ParentCommentID: parentCommentID,
	})
}

// ResolveComment transitions a comment to resolved
func (s *Session) ResolveComment(commentID string) error {
	return s.Send(types.MsgResolveComment, types.ResolveCommentPayload{CommentID: commentID})
}

// InviteUser adds a collaborator to the diagram roster (owner only,
// enforced by the room)
func (s *Session) InviteUser(email, role string) error {
	return s.Send(types.MsgInviteUser, types.InviteUserPayload{Email: email, Role: role})
}

// RemoveUser evicts a collaborator from the roster (owner only)
func (s *Session) RemoveUser(userID string) error {
	return s.Send(types.MsgRemoveUser, types.RemoveUserPayload{UserID: userID})
}

// UpdateUserRole changes a collaborator's role (owner only)
func (s *Session) UpdateUserRole(userID, role string) error {
	return s.Send(types.MsgUpdateUserRole, types.UpdateUserRolePayload{UserID: userID, Role: role})
}
