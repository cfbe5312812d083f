package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/optisync/internal/model"
	"github.com/roach88/optisync/internal/presence"
)

var _ presence.Sources = (*Store)(nil)

// Directory returns every member, ordered by profile id.
func (s *Store) Directory(ctx context.Context) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT profile_id, username, display_name, avatar_url
		FROM members
		ORDER BY profile_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query directory: %w", err)
	}
	defer rows.Close()

	members := []model.Member{}
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(&m.ProfileID, &m.Username, &m.DisplayName, &m.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate directory: %w", err)
	}
	return members, nil
}

// ListActiveSessions returns the live sessions of the given profiles.
func (s *Store) ListActiveSessions(ctx context.Context, profileIDs []string) ([]model.Session, error) {
	if len(profileIDs) == 0 {
		return []model.Session{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, profile_id, mode, started_at
		FROM sessions
		WHERE ended_at IS NULL AND profile_id IN (`+placeholders(len(profileIDs))+`)
		ORDER BY started_at ASC, session_id COLLATE BINARY ASC
	`, args(profileIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []model.Session{}
	for rows.Next() {
		var (
			sess model.Session
			mode string
			at   int64
		)
		if err := rows.Scan(&sess.SessionID, &sess.ProfileID, &mode, &at); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Mode = model.Mode(mode)
		sess.StartedAt = fromMillis(at)
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ListRoomAssignments returns the room rows of the given sessions. A session
// may appear in more than one room.
func (s *Store) ListRoomAssignments(ctx context.Context, sessionIDs []string) ([]model.RoomAssignment, error) {
	if len(sessionIDs) == 0 {
		return []model.RoomAssignment{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, team_id
		FROM room_assignments
		WHERE session_id IN (`+placeholders(len(sessionIDs))+`)
		ORDER BY session_id COLLATE BINARY ASC, team_id COLLATE BINARY ASC
	`, args(sessionIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query room assignments: %w", err)
	}
	defer rows.Close()

	rooms := []model.RoomAssignment{}
	for rows.Next() {
		var r model.RoomAssignment
		if err := rows.Scan(&r.SessionID, &r.TeamID); err != nil {
			return nil, fmt.Errorf("scan room assignment: %w", err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room assignments: %w", err)
	}
	return rooms, nil
}

// ResolveTeamSlugs returns the slugs of the given teams. Unknown teams are
// omitted.
func (s *Store) ResolveTeamSlugs(ctx context.Context, teamIDs []string) ([]model.TeamSlug, error) {
	if len(teamIDs) == 0 {
		return []model.TeamSlug{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT team_id, slug
		FROM teams
		WHERE team_id IN (`+placeholders(len(teamIDs))+`)
		ORDER BY team_id COLLATE BINARY ASC
	`, args(teamIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query team slugs: %w", err)
	}
	defer rows.Close()

	teams := []model.TeamSlug{}
	for rows.Next() {
		var t model.TeamSlug
		if err := rows.Scan(&t.TeamID, &t.Slug); err != nil {
			return nil, fmt.Errorf("scan team slug: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team slugs: %w", err)
	}
	return teams, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func args(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
