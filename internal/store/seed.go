package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/optisync/internal/model"
)

// InsertMessage stores a record and returns its id. An empty ID is
// allocated from the message sequence; an empty CreatedAt uses the store
// clock. Inserting an existing id is an error.
func (s *Store) InsertMessage(ctx context.Context, r model.Record) (string, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	err := s.inTx(ctx, "insert message", false, func(tx *sql.Tx) error {
		if r.ID == "" {
			var err error
			if r.ID, err = nextMessageID(ctx, tx); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, correlation_id, author_id, body, created_at, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.ID, r.ConversationID, r.CorrelationID, r.AuthorID, r.Body, millis(r.CreatedAt), r.Deleted)
		if err != nil {
			return fmt.Errorf("insert message %s: %w", r.ID, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// CreatePoll creates a poll in a conversation with options in display order.
func (s *Store) CreatePoll(ctx context.Context, conversationID, pollID string, optionIDs ...string) error {
	return s.inTx(ctx, "create poll", false, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO polls (poll_id, conversation_id) VALUES (?, ?)`, pollID, conversationID); err != nil {
			return fmt.Errorf("create poll %s: %w", pollID, err)
		}
		for pos, opt := range optionIDs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO poll_options (poll_id, option_id, position) VALUES (?, ?, ?)`, pollID, opt, pos); err != nil {
				return fmt.Errorf("create poll %s option %s: %w", pollID, opt, err)
			}
		}
		return nil
	})
}

// PutMember inserts or replaces a directory entry.
func (s *Store) PutMember(ctx context.Context, m model.Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (profile_id, username, display_name, avatar_url)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(profile_id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url
	`, m.ProfileID, m.Username, m.DisplayName, m.AvatarURL)
	if err != nil {
		return fmt.Errorf("put member %s: %w", m.ProfileID, err)
	}
	return nil
}

// StartSession records a live session. A zero StartedAt uses the store
// clock.
func (s *Store) StartSession(ctx context.Context, sess model.Session) error {
	if sess.StartedAt.IsZero() {
		sess.StartedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, profile_id, mode, started_at)
		VALUES (?, ?, ?, ?)
	`, sess.SessionID, sess.ProfileID, string(sess.Mode), millis(sess.StartedAt))
	if err != nil {
		return fmt.Errorf("start session %s: %w", sess.SessionID, err)
	}
	return nil
}

// EndSession marks a session as no longer live.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE session_id = ? AND ended_at IS NULL`, millis(s.now()), sessionID)
	if err != nil {
		return fmt.Errorf("end session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %s: not live", sessionID)
	}
	return nil
}

// AssignRoom places a group session in a team room.
func (s *Store) AssignRoom(ctx context.Context, a model.RoomAssignment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_assignments (session_id, team_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, a.SessionID, a.TeamID)
	if err != nil {
		return fmt.Errorf("assign room %s: %w", a.SessionID, err)
	}
	return nil
}

// PutTeam inserts or renames a team slug.
func (s *Store) PutTeam(ctx context.Context, t model.TeamSlug) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teams (team_id, slug) VALUES (?, ?)
		ON CONFLICT(team_id) DO UPDATE SET slug = excluded.slug
	`, t.TeamID, t.Slug)
	if err != nil {
		return fmt.Errorf("put team %s: %w", t.TeamID, err)
	}
	return nil
}
