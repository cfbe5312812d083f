package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/optisync/internal/model"
	"github.com/roach88/optisync/internal/store"
	"github.com/roach88/optisync/internal/testutil"
)

// createPresenceDB writes a store with two live members: u1 in a team room,
// u2 solo.
func createPresenceDB(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "optisync.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.PutMember(ctx, model.Member{ProfileID: "u1", Username: "owl", DisplayName: "Night Owl"}))
	require.NoError(t, st.PutMember(ctx, model.Member{ProfileID: "u2", Username: "lark"}))
	require.NoError(t, st.StartSession(ctx, model.Session{
		SessionID: "101", ProfileID: "u1", Mode: model.ModeGroup, StartedAt: testutil.Epoch,
	}))
	require.NoError(t, st.StartSession(ctx, model.Session{
		SessionID: "102", ProfileID: "u1", Mode: model.ModeGroup, StartedAt: testutil.Epoch.Add(5 * time.Second),
	}))
	require.NoError(t, st.StartSession(ctx, model.Session{
		SessionID: "200", ProfileID: "u2", Mode: model.ModeSolo, StartedAt: testutil.Epoch,
	}))
	require.NoError(t, st.AssignRoom(ctx, model.RoomAssignment{SessionID: "102", TeamID: "teamA"}))
	require.NoError(t, st.PutTeam(ctx, model.TeamSlug{TeamID: "teamA", Slug: "night-owls"}))
	return path
}

func executePresence(t *testing.T, format string, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewPresenceCommand(&RootOptions{Format: format})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestPresenceCommandRequiresDB(t *testing.T) {
	_, _, err := executePresence(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}

func TestPresenceCommandMissingDatabase(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.db")
	out, _, err := executePresence(t, "text", "--db", missing)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "database not found")

	_, statErr := os.Stat(missing)
	assert.True(t, os.IsNotExist(statErr), "inspection must not create the database")
}

func TestPresenceCommandText(t *testing.T) {
	db := createPresenceDB(t)

	out, _, err := executePresence(t, "text", "--db", db)
	require.NoError(t, err)

	assert.Contains(t, out, "USER")
	assert.Contains(t, out, "/teams/room/night-owls")
	assert.Contains(t, out, "/live/lark")
	assert.NotContains(t, out, "101", "only the newest session per member is shown")
}

func TestPresenceCommandJSON(t *testing.T) {
	db := createPresenceDB(t)

	out, _, err := executePresence(t, "json", "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   PresenceReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Entries, 2)
	assert.Equal(t, "102", resp.Data.Entries[0].SessionID)
	assert.Equal(t, "Night Owl", resp.Data.Entries[0].DisplayName)
	assert.Equal(t, "200", resp.Data.Entries[1].SessionID)
	assert.Empty(t, resp.Data.Warnings)
}

func TestPresenceCommandLimit(t *testing.T) {
	db := createPresenceDB(t)

	out, _, err := executePresence(t, "json", "--db", db, "--limit", "1")
	require.NoError(t, err)

	var resp struct {
		Data PresenceReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Entries, 1)
	assert.Equal(t, "102", resp.Data.Entries[0].SessionID)
}

func TestPresenceCommandConfig(t *testing.T) {
	db := createPresenceDB(t)
	cfg := filepath.Join(t.TempDir(), "optisync.cue")
	require.NoError(t, os.WriteFile(cfg, []byte(`presence: limit: 1`+"\n"), 0o644))

	out, _, err := executePresence(t, "text", "--db", db, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "night-owls")
	assert.NotContains(t, out, "lark")
}

func TestPresenceCommandInvalidConfig(t *testing.T) {
	db := createPresenceDB(t)
	cfg := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(cfg, []byte(`presence: limit: 0`+"\n"), 0o644))

	_, _, err := executePresence(t, "text", "--db", db, "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPresenceCommandNobodyLive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, _, err := executePresence(t, "text", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Nobody is live.")
}
