package model

import "time"

// Mode is the broadcast mode of a live session.
type Mode string

const (
	ModeSolo  Mode = "solo"
	ModeGroup Mode = "group"
)

// Session is an active broadcast session.
type Session struct {
	SessionID string    `json:"session_id"`
	ProfileID string    `json:"profile_id"`
	Mode      Mode      `json:"mode"`
	StartedAt time.Time `json:"started_at"`
}

// RoomAssignment maps a group session to the team room it broadcasts in.
type RoomAssignment struct {
	SessionID string `json:"session_id"`
	TeamID    string `json:"team_id"`
}

// TeamSlug is the route slug of a team.
type TeamSlug struct {
	TeamID string `json:"team_id"`
	Slug   string `json:"slug"`
}

// Member is a directory entry: a profile the viewer can see.
type Member struct {
	ProfileID   string `json:"profile_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// PresenceEntry is one row of the "who is live" rail. Derived, never stored.
type PresenceEntry struct {
	ProfileID   string    `json:"profile_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	SessionID   string    `json:"session_id"`
	Mode        Mode      `json:"mode"`
	Destination string    `json:"destination"`
	StartedAt   time.Time `json:"started_at"`
}
