package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/optisync/internal/engine"
	"github.com/roach88/optisync/internal/model"
)

// Rejection codes returned by a Viewer. They surface as engine.RejectionError
// and are never retried.
const (
	RejectEmptyMessage  = "EMPTY_MESSAGE"
	RejectNotFound      = "NOT_FOUND"
	RejectForbidden     = "FORBIDDEN"
	RejectUnknownOption = "UNKNOWN_OPTION"
	RejectDuplicateVote = "DUPLICATE_VOTE"
)

// Viewer is the store bound to one profile's session. It implements
// engine.Backend.
type Viewer struct {
	s         *Store
	profileID string
}

var _ engine.Backend = (*Viewer)(nil)

// ForViewer binds the store to profileID.
func (s *Store) ForViewer(profileID string) *Viewer {
	return &Viewer{s: s, profileID: profileID}
}

// ProfileID returns the bound profile.
func (v *Viewer) ProfileID() string { return v.profileID }

// SendMessage appends a message authored by the viewer. The correlation id
// is stored and echoed on the record. A retried send with a correlation id
// the viewer already used returns the existing message.
func (v *Viewer) SendMessage(ctx context.Context, conversationID, text, correlationID string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", engine.Reject(RejectEmptyMessage, "message body is empty")
	}
	if correlationID != "" {
		var id string
		err := v.s.db.QueryRowContext(ctx, `
			SELECT id FROM messages
			WHERE conversation_id = ? AND author_id = ? AND correlation_id = ?
		`, conversationID, v.profileID, correlationID).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("send message: %w", err)
		}
	}
	id, err := v.s.InsertMessage(ctx, model.Record{
		ConversationID: conversationID,
		CorrelationID:  correlationID,
		AuthorID:       v.profileID,
		Body:           text,
		CreatedAt:      v.s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return id, nil
}

// ToggleReaction flips the viewer's reaction on a live message.
func (v *Viewer) ToggleReaction(ctx context.Context, postID string) (model.ReactionState, error) {
	var st model.ReactionState
	err := v.s.inTx(ctx, "toggle reaction", false, func(tx *sql.Tx) error {
		if err := requireLiveMessage(ctx, tx, postID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM reactions WHERE post_id = ? AND profile_id = ?`, postID, v.profileID)
		if err != nil {
			return fmt.Errorf("toggle reaction: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := tx.ExecContext(ctx, `INSERT INTO reactions (post_id, profile_id) VALUES (?, ?)`, postID, v.profileID); err != nil {
				return fmt.Errorf("toggle reaction: %w", err)
			}
		}
		st, err = reactionState(ctx, tx, postID, v.profileID)
		return err
	})
	return st, err
}

// CastVote records the viewer's only vote on a poll. A second vote is
// rejected, even for the same option.
func (v *Viewer) CastVote(ctx context.Context, pollID, optionID string) ([]model.PollOption, error) {
	var opts []model.PollOption
	err := v.s.inTx(ctx, "cast vote", false, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM poll_options WHERE poll_id = ? AND option_id = ?`, pollID, optionID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return engine.Reject(RejectUnknownOption, fmt.Sprintf("poll %s has no option %s", pollID, optionID))
		}
		if err != nil {
			return fmt.Errorf("cast vote: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO votes (poll_id, profile_id, option_id)
			VALUES (?, ?, ?)
			ON CONFLICT(poll_id, profile_id) DO NOTHING
		`, pollID, v.profileID, optionID)
		if err != nil {
			return fmt.Errorf("cast vote: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return engine.Reject(RejectDuplicateVote, fmt.Sprintf("already voted on poll %s", pollID))
		}

		opts, err = pollOptions(ctx, tx, pollID, v.profileID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return opts, nil
}

// SetPinned pins or unpins a live message. Setting the current state again
// is a no-op.
func (v *Viewer) SetPinned(ctx context.Context, postID string, pinned bool) (model.PinState, error) {
	err := v.s.inTx(ctx, "set pinned", false, func(tx *sql.Tx) error {
		if err := requireLiveMessage(ctx, tx, postID); err != nil {
			return err
		}
		var err error
		if pinned {
			_, err = tx.ExecContext(ctx, `INSERT INTO pins (post_id, pinned_at) VALUES (?, ?) ON CONFLICT(post_id) DO NOTHING`, postID, millis(v.s.now()))
		} else {
			_, err = tx.ExecContext(ctx, `DELETE FROM pins WHERE post_id = ?`, postID)
		}
		if err != nil {
			return fmt.Errorf("set pinned: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.PinState{}, err
	}
	return model.PinState{TargetID: postID, Pinned: pinned}, nil
}

// DeleteMessage soft-deletes one of the viewer's messages and drops its pin.
// Deleting an already deleted message succeeds.
func (v *Viewer) DeleteMessage(ctx context.Context, messageID string) error {
	return v.s.inTx(ctx, "delete message", false, func(tx *sql.Tx) error {
		var author string
		err := tx.QueryRowContext(ctx, `SELECT author_id FROM messages WHERE id = ?`, messageID).Scan(&author)
		if errors.Is(err, sql.ErrNoRows) {
			return engine.Reject(RejectNotFound, fmt.Sprintf("message %s does not exist", messageID))
		}
		if err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		if author != v.profileID {
			return engine.Reject(RejectForbidden, fmt.Sprintf("message %s belongs to %s", messageID, author))
		}

		if _, err := tx.ExecContext(ctx, `UPDATE messages SET deleted = 1 WHERE id = ?`, messageID); err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pins WHERE post_id = ?`, messageID); err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		return nil
	})
}

// Snapshot reads the conversation as the viewer sees it. Deleted messages
// are included, flagged, so a pending delete can be matched against them.
func (v *Viewer) Snapshot(ctx context.Context, conversationID string) (model.Snapshot, error) {
	var snap model.Snapshot
	err := v.s.inTx(ctx, "snapshot", true, func(tx *sql.Tx) error {
		var err error
		if snap.Messages, err = conversationMessages(ctx, tx, conversationID); err != nil {
			return err
		}
		if snap.Reactions, err = conversationReactions(ctx, tx, conversationID, v.profileID); err != nil {
			return err
		}
		if snap.Polls, err = conversationPolls(ctx, tx, conversationID, v.profileID); err != nil {
			return err
		}
		snap.Pins, err = conversationPins(ctx, tx, conversationID)
		return err
	})
	if err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func requireLiveMessage(ctx context.Context, q querier, id string) error {
	var deleted bool
	err := q.QueryRowContext(ctx, `SELECT deleted FROM messages WHERE id = ?`, id).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted) {
		return engine.Reject(RejectNotFound, fmt.Sprintf("message %s does not exist", id))
	}
	if err != nil {
		return fmt.Errorf("look up message %s: %w", id, err)
	}
	return nil
}

func reactionState(ctx context.Context, q querier, postID, viewerID string) (model.ReactionState, error) {
	st := model.ReactionState{TargetID: postID}
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(profile_id = ?), 0)
		FROM reactions
		WHERE post_id = ?
	`, viewerID, postID).Scan(&st.AggregateCount, &st.IsSelectedByViewer)
	if err != nil {
		return model.ReactionState{}, fmt.Errorf("read reaction %s: %w", postID, err)
	}
	return st, nil
}

func pollOptions(ctx context.Context, q querier, pollID, viewerID string) ([]model.PollOption, error) {
	return queryPollOptions(ctx, q, `WHERE o.poll_id = ?`, viewerID, pollID)
}

func conversationPolls(ctx context.Context, q querier, conversationID, viewerID string) ([]model.PollOption, error) {
	return queryPollOptions(ctx, q, `JOIN polls p ON p.poll_id = o.poll_id WHERE p.conversation_id = ?`, viewerID, conversationID)
}

func queryPollOptions(ctx context.Context, q querier, where, viewerID, arg string) ([]model.PollOption, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT o.poll_id, o.option_id,
			(SELECT COUNT(*) FROM votes v WHERE v.poll_id = o.poll_id AND v.option_id = o.option_id),
			EXISTS (SELECT 1 FROM votes v WHERE v.poll_id = o.poll_id AND v.option_id = o.option_id AND v.profile_id = ?)
		FROM poll_options o
		`+where+`
		ORDER BY o.poll_id COLLATE BINARY ASC, o.position ASC
	`, viewerID, arg)
	if err != nil {
		return nil, fmt.Errorf("query poll options: %w", err)
	}
	defer rows.Close()

	opts := []model.PollOption{}
	for rows.Next() {
		var o model.PollOption
		if err := rows.Scan(&o.PollID, &o.OptionID, &o.VoteCount, &o.IsSelectedByViewer); err != nil {
			return nil, fmt.Errorf("scan poll option: %w", err)
		}
		opts = append(opts, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate poll options: %w", err)
	}
	return opts, nil
}

func conversationMessages(ctx context.Context, q querier, conversationID string) ([]model.Record, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, conversation_id, correlation_id, author_id, body, created_at, deleted
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, seq ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		var (
			r  model.Record
			at int64
		)
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.CorrelationID, &r.AuthorID, &r.Body, &at, &r.Deleted); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		r.CreatedAt = fromMillis(at)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return records, nil
}

func conversationReactions(ctx context.Context, q querier, conversationID, viewerID string) ([]model.ReactionState, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT r.post_id, COUNT(*), SUM(r.profile_id = ?)
		FROM reactions r
		JOIN messages m ON m.id = r.post_id
		WHERE m.conversation_id = ? AND m.deleted = 0
		GROUP BY r.post_id
		ORDER BY MIN(m.seq) ASC
	`, viewerID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query reactions: %w", err)
	}
	defer rows.Close()

	var out []model.ReactionState
	for rows.Next() {
		var st model.ReactionState
		if err := rows.Scan(&st.TargetID, &st.AggregateCount, &st.IsSelectedByViewer); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reactions: %w", err)
	}
	return out, nil
}

func conversationPins(ctx context.Context, q querier, conversationID string) ([]model.PinState, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT p.post_id
		FROM pins p
		JOIN messages m ON m.id = p.post_id
		WHERE m.conversation_id = ?
		ORDER BY p.pinned_at ASC, m.seq ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query pins: %w", err)
	}
	defer rows.Close()

	var out []model.PinState
	for rows.Next() {
		p := model.PinState{Pinned: true}
		if err := rows.Scan(&p.TargetID); err != nil {
			return nil, fmt.Errorf("scan pin: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pins: %w", err)
	}
	return out, nil
}

// nextMessageID allocates the id for the next inserted message: the decimal
// seq it will receive.
func nextMessageID(ctx context.Context, q querier) (string, error) {
	var seq int64
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM messages`).Scan(&seq); err != nil {
		return "", fmt.Errorf("allocate message id: %w", err)
	}
	return strconv.FormatInt(seq, 10), nil
}
