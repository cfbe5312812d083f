package presence

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/optisync/internal/model"
)

var T = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

func TestAggregate_LatestSessionAndTeamRoom(t *testing.T) {
	in := Inputs{
		Sessions: []model.Session{
			{SessionID: "101", ProfileID: "u1", Mode: model.ModeGroup, StartedAt: T},
			{SessionID: "102", ProfileID: "u1", Mode: model.ModeGroup, StartedAt: T.Add(5 * time.Second)},
		},
		Rooms:     []model.RoomAssignment{{SessionID: "102", TeamID: "teamA"}},
		Teams:     []model.TeamSlug{{TeamID: "teamA", Slug: "night-owls"}},
		Directory: []model.Member{{ProfileID: "u1", Username: "owl"}},
	}

	got := Aggregate(in, Options{})
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].ProfileID)
	assert.Equal(t, "102", got[0].SessionID)
	assert.Equal(t, "/teams/room/night-owls", got[0].Destination)
}

func TestAggregate_Destinations(t *testing.T) {
	dir := []model.Member{
		{ProfileID: "u1", Username: "ana"},
		{ProfileID: "u2", Username: "bo"},
		{ProfileID: "u3", Username: "cy"},
		{ProfileID: "u4"},
	}
	in := Inputs{
		Sessions: []model.Session{
			{SessionID: "1", ProfileID: "u1", Mode: model.ModeSolo, StartedAt: T},
			{SessionID: "2", ProfileID: "u2", Mode: model.ModeGroup, StartedAt: T}, // no room row
			{SessionID: "3", ProfileID: "u3", Mode: model.ModeGroup, StartedAt: T}, // room, no slug
			{SessionID: "4", ProfileID: "u4", Mode: model.ModeSolo, StartedAt: T},  // no username
		},
		Rooms:     []model.RoomAssignment{{SessionID: "3", TeamID: "teamZ"}},
		Directory: dir,
	}

	byProfile := map[string]string{}
	for _, e := range Aggregate(in, Options{GroupRoute: "/rooms/shared"}) {
		byProfile[e.ProfileID] = e.Destination
	}
	assert.Equal(t, map[string]string{
		"u1": "/live/ana",
		"u2": "/rooms/shared",
		"u3": "/rooms/shared",
		"u4": "/live/u/u4",
	}, byProfile)
}

func TestAggregate_FiltersToDirectory(t *testing.T) {
	in := Inputs{
		Sessions: []model.Session{
			{SessionID: "1", ProfileID: "u1", Mode: model.ModeSolo, StartedAt: T},
			{SessionID: "2", ProfileID: "stranger", Mode: model.ModeSolo, StartedAt: T},
		},
		Directory: []model.Member{{ProfileID: "u1", Username: "ana"}},
	}
	got := Aggregate(in, Options{})
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].ProfileID)
}

func TestAggregate_TieBreakHighestSessionID(t *testing.T) {
	in := Inputs{
		Sessions: []model.Session{
			{SessionID: "9", ProfileID: "u1", Mode: model.ModeSolo, StartedAt: T},
			{SessionID: "10", ProfileID: "u1", Mode: model.ModeSolo, StartedAt: T},
		},
		Directory: []model.Member{{ProfileID: "u1", Username: "ana"}},
	}
	got := Aggregate(in, Options{})
	require.Len(t, got, 1)
	assert.Equal(t, "10", got[0].SessionID, "numeric ids compare numerically")
}

func TestAggregate_DisplayNameAndAvatarFallbacks(t *testing.T) {
	in := Inputs{
		Sessions:  []model.Session{{SessionID: "1", ProfileID: "u1", Mode: model.ModeSolo, StartedAt: T}},
		Directory: []model.Member{{ProfileID: "u1", Username: "ana"}},
	}
	placeholders := []string{"/p/a.png", "/p/b.png", "/p/c.png"}

	first := Aggregate(in, Options{AvatarPlaceholders: placeholders})
	require.Len(t, first, 1)
	assert.Equal(t, "ana", first[0].DisplayName)
	assert.Contains(t, placeholders, first[0].AvatarURL)

	again := Aggregate(in, Options{AvatarPlaceholders: placeholders})
	assert.Equal(t, first[0].AvatarURL, again[0].AvatarURL, "placeholder is deterministic")

	in.Directory[0].AvatarURL = "/real.png"
	in.Directory[0].DisplayName = "Ana"
	got := Aggregate(in, Options{})
	assert.Equal(t, "/real.png", got[0].AvatarURL)
	assert.Equal(t, "Ana", got[0].DisplayName)
}

func TestAggregate_OrderAndCapDeterministic(t *testing.T) {
	var in Inputs
	for i := 0; i < 20; i++ {
		pid := fmt.Sprintf("u%02d", i)
		in.Directory = append(in.Directory, model.Member{ProfileID: pid, Username: pid})
		in.Sessions = append(in.Sessions, model.Session{
			SessionID: fmt.Sprint(100 + i),
			ProfileID: pid,
			Mode:      model.ModeSolo,
			StartedAt: T.Add(time.Duration(i%5) * time.Minute),
		})
	}

	want := Aggregate(in, Options{Limit: 7})
	require.Len(t, want, 7)
	for i := 1; i < len(want); i++ {
		assert.False(t, want[i].StartedAt.After(want[i-1].StartedAt), "latest first")
	}

	rng := rand.New(rand.NewSource(1))
	for n := 0; n < 10; n++ {
		rng.Shuffle(len(in.Sessions), func(i, j int) { in.Sessions[i], in.Sessions[j] = in.Sessions[j], in.Sessions[i] })
		rng.Shuffle(len(in.Directory), func(i, j int) { in.Directory[i], in.Directory[j] = in.Directory[j], in.Directory[i] })
		assert.Equal(t, want, Aggregate(in, Options{Limit: 7}))
	}
}

func TestAggregate_Empty(t *testing.T) {
	assert.Empty(t, Aggregate(Inputs{}, Options{}))
}

func TestCompareSessionID(t *testing.T) {
	assert.Equal(t, 1, compareSessionID("102", "101"))
	assert.Equal(t, 1, compareSessionID("10", "9"))
	assert.Equal(t, 0, compareSessionID("7", "7"))
	assert.Equal(t, -1, compareSessionID("7", "abc"), "numeric before non-numeric")
	assert.Equal(t, 1, compareSessionID("b", "a"))
}
