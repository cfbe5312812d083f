// Package presence builds the "who is live" list from active sessions, room
// assignments, team slugs and the viewer's directory.
package presence

import (
	"hash/fnv"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/optisync/internal/model"
)

const (
	// DefaultLimit caps the presence list.
	DefaultLimit = 12

	// DefaultGroupRoute is where group sessions without a resolvable team
	// room are sent.
	DefaultGroupRoute = "/live/room"

	teamRoomPrefix = "/teams/room/"
	soloPrefix     = "/live/"
	soloByIDPrefix = "/live/u/"
)

// DefaultAvatarPlaceholders are used for members without an avatar.
var DefaultAvatarPlaceholders = []string{
	"/avatars/placeholder-1.png",
	"/avatars/placeholder-2.png",
	"/avatars/placeholder-3.png",
	"/avatars/placeholder-4.png",
}

// Inputs are the joined sources. They may be mutually inconsistent; a
// session whose room row or team slug is missing still gets an entry.
type Inputs struct {
	Sessions  []model.Session
	Rooms     []model.RoomAssignment
	Teams     []model.TeamSlug
	Directory []model.Member
}

// Options shape the output.
type Options struct {
	// Limit caps the list. <= 0 means DefaultLimit.
	Limit int

	// GroupRoute is the fallback destination for group sessions. Empty
	// means DefaultGroupRoute.
	GroupRoute string

	// AvatarPlaceholders are picked deterministically per profile. Empty
	// means DefaultAvatarPlaceholders.
	AvatarPlaceholders []string
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.GroupRoute == "" {
		o.GroupRoute = DefaultGroupRoute
	}
	if len(o.AvatarPlaceholders) == 0 {
		o.AvatarPlaceholders = DefaultAvatarPlaceholders
	}
	return o
}

// Aggregate joins the inputs into at most Limit entries, one per profile,
// most recently started first.
//
// Sessions of profiles outside the directory are dropped. When a profile has
// several sessions the latest start wins, then the highest session id. The
// output is a pure function of the inputs: shuffling any input slice does
// not change it.
func Aggregate(in Inputs, opts Options) []model.PresenceEntry {
	opts = opts.withDefaults()

	members := make(map[string]model.Member, len(in.Directory))
	for _, m := range in.Directory {
		if m.ProfileID != "" {
			members[m.ProfileID] = m
		}
	}

	latest := make(map[string]model.Session)
	for _, s := range in.Sessions {
		if s.SessionID == "" {
			continue
		}
		if _, ok := members[s.ProfileID]; !ok {
			continue
		}
		cur, seen := latest[s.ProfileID]
		if !seen || newerSession(s, cur) {
			latest[s.ProfileID] = s
		}
	}

	rooms := roomIndex(in.Rooms)
	slugs := make(map[string]string, len(in.Teams))
	for _, t := range in.Teams {
		if t.TeamID != "" && t.Slug != "" {
			slugs[t.TeamID] = t.Slug
		}
	}

	entries := make([]model.PresenceEntry, 0, len(latest))
	for profileID, s := range latest {
		m := members[profileID]
		e := model.PresenceEntry{
			ProfileID:   profileID,
			Username:    m.Username,
			DisplayName: m.DisplayName,
			AvatarURL:   m.AvatarURL,
			SessionID:   s.SessionID,
			Mode:        s.Mode,
			StartedAt:   s.StartedAt,
		}
		if e.DisplayName == "" {
			e.DisplayName = m.Username
		}
		if e.AvatarURL == "" {
			e.AvatarURL = placeholder(profileID, opts.AvatarPlaceholders)
		}
		e.Destination = destination(s, m, rooms, slugs, opts.GroupRoute)
		entries = append(entries, e)
	}

	slices.SortFunc(entries, func(a, b model.PresenceEntry) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		if c := compareSessionID(b.SessionID, a.SessionID); c != 0 {
			return c
		}
		return strings.Compare(a.ProfileID, b.ProfileID)
	})

	if len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries
}

// newerSession reports whether a should replace b for the same profile.
func newerSession(a, b model.Session) bool {
	if !a.StartedAt.Equal(b.StartedAt) {
		return a.StartedAt.After(b.StartedAt)
	}
	return compareSessionID(a.SessionID, b.SessionID) > 0
}

// compareSessionID orders numeric ids numerically and anything else
// lexically; numeric ids sort before non-numeric ones.
func compareSessionID(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// roomIndex maps session id to team id. Conflicting rows resolve to the
// smallest team id.
func roomIndex(rows []model.RoomAssignment) map[string]string {
	idx := make(map[string]string, len(rows))
	for _, r := range rows {
		if r.SessionID == "" || r.TeamID == "" {
			continue
		}
		if cur, ok := idx[r.SessionID]; !ok || r.TeamID < cur {
			idx[r.SessionID] = r.TeamID
		}
	}
	return idx
}

func destination(s model.Session, m model.Member, rooms, slugs map[string]string, groupRoute string) string {
	if s.Mode == model.ModeGroup {
		if slug, ok := slugs[rooms[s.SessionID]]; ok {
			return teamRoomPrefix + url.PathEscape(slug)
		}
		return groupRoute
	}
	if m.Username == "" {
		return soloByIDPrefix + url.PathEscape(m.ProfileID)
	}
	return soloPrefix + url.PathEscape(m.Username)
}

func placeholder(profileID string, choices []string) string {
	h := fnv.New32a()
	h.Write([]byte(profileID))
	return choices[h.Sum32()%uint32(len(choices))]
}
