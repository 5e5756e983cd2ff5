package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/rollcall/go/internal/roster"
	"github.com/mcdev12/rollcall/go/internal/wheel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fixedSource always draws the same value, wrapped into range
type fixedSource int

func (f fixedSource) IntN(n int) int { return int(f) % n }

type persisterFunc func(ctx context.Context) error

func (f persisterFunc) PushNow(ctx context.Context) error { return f(ctx) }

type testGateway struct {
	store  *roster.Store
	clock  *clockwork.FakeClock
	server *httptest.Server
}

func newTestGateway(t *testing.T, persister roster.Persister) *testGateway {
	t.Helper()

	store := roster.NewStore()
	app := roster.NewApp(store, persister)
	clock := clockwork.NewFakeClock()

	cfg := DefaultConfig()
	cfg.WheelOptions = []wheel.Option{
		wheel.WithClock(clock),
		wheel.WithSource(fixedSource(1)),
	}
	svc := NewService(cfg, app)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	server := httptest.NewServer(mux)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Start(ctx)
	}()

	t.Cleanup(func() {
		server.Close()
		cancel()
		<-done
	})

	return &testGateway{store: store, clock: clock, server: server}
}

func (g *testGateway) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, g.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestGateway_Teams(t *testing.T) {
	g := newTestGateway(t, nil)

	t.Run("create team", func(t *testing.T) {
		resp, body := g.do(t, http.MethodPost, "/api/teams", map[string]string{"name": "  core "})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "core", body["team_name"])
		assert.Equal(t, true, body["success"])
	})

	t.Run("create existing team", func(t *testing.T) {
		resp, body := g.do(t, http.MethodPost, "/api/teams", map[string]string{"name": "core"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["created"])
	})

	t.Run("blank name", func(t *testing.T) {
		resp, _ := g.do(t, http.MethodPost, "/api/teams", map[string]string{"name": " "})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("list", func(t *testing.T) {
		resp, body := g.do(t, http.MethodGet, "/api/teams", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []any{"core"}, body["teams"])
		assert.Equal(t, "core", body["current"])
	})

	t.Run("enter missing team", func(t *testing.T) {
		resp, _ := g.do(t, http.MethodPut, "/api/session/team", map[string]any{"name": "infra"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.False(t, g.store.HasTeam("infra"))
	})

	t.Run("enter missing team with create", func(t *testing.T) {
		resp, _ := g.do(t, http.MethodPut, "/api/session/team", map[string]any{"name": "infra", "create": true})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		current, _ := g.store.CurrentTeam()
		assert.Equal(t, "infra", current)
	})

	t.Run("enter existing team", func(t *testing.T) {
		resp, body := g.do(t, http.MethodPut, "/api/session/team", map[string]any{"name": "core"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["is_current_team"])
	})

	t.Run("malformed body", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, g.server.URL+"/api/teams", strings.NewReader("{"))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGateway_CreateTeamPersistFailure(t *testing.T) {
	g := newTestGateway(t, persisterFunc(func(context.Context) error {
		return errors.New("permission denied")
	}))

	resp, body := g.do(t, http.MethodPost, "/api/teams", map[string]string{"name": "core"})

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Failed to create team. Please try again.", body["error"])
	_, hasCurrent := g.store.CurrentTeam()
	assert.False(t, hasCurrent)
}

func TestGateway_Members(t *testing.T) {
	g := newTestGateway(t, nil)
	g.store.CreateTeam("core")

	resp, body := g.do(t, http.MethodPost, "/api/teams/core/members", map[string]string{"name": " alice "})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["changed"])

	resp, body = g.do(t, http.MethodPost, "/api/teams/core/members", map[string]string{"name": "alice"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["changed"], "duplicate add is ignored")

	resp, _ = g.do(t, http.MethodPost, "/api/teams/core/members", map[string]string{"name": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = g.do(t, http.MethodPost, "/api/teams/ghost/members", map[string]string{"name": "bob"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = g.do(t, http.MethodPut, "/api/teams/core/members/alice/presence", map[string]any{"isPresent": false})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	member, _ := g.store.Team("core")
	assert.False(t, member.Members["alice"].IsPresent)

	resp, _ = g.do(t, http.MethodPut, "/api/teams/core/members/alice/presence", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = g.do(t, http.MethodPost, "/api/teams/core/members/alice/presence/toggle", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = g.do(t, http.MethodPut, "/api/teams/core/members/alice/count", map[string]any{"count": 4})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = g.do(t, http.MethodPut, "/api/teams/core/members/alice/count", map[string]any{"count": -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = g.do(t, http.MethodPost, "/api/teams/core/members/alice/moderations", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	team := body["team"].(map[string]any)
	assert.Equal(t, "alice", team["highest_count"])

	resp, _ = g.do(t, http.MethodPost, "/api/teams/core/members/bob/moderations", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = g.do(t, http.MethodDelete, "/api/teams/core/members/alice", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = g.do(t, http.MethodDelete, "/api/teams/core/members/alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	final, _ := g.store.Team("core")
	assert.Empty(t, final.Members)
}

func TestGateway_Spin(t *testing.T) {
	g := newTestGateway(t, nil)
	g.store.CreateTeam("core")
	g.store.AddTeamMember("core", "alice")
	g.store.AddTeamMember("core", "bob")
	g.store.AddTeamMember("core", "carol")
	g.store.SetPresence("core", "carol", false)

	resp, body := g.do(t, http.MethodPost, "/api/teams/core/wheel/spin", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	plan := body["plan"].(map[string]any)
	assert.Equal(t, "bob", plan["winner"])
	assert.Equal(t, []any{"alice", "bob"}, plan["candidates"], "absent members are not on the wheel")
	assert.Len(t, body["segments"], 2)

	resp, _ = g.do(t, http.MethodPost, "/api/teams/core/wheel/spin", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = g.do(t, http.MethodGet, "/api/teams/core/wheel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "spinning", body["state"])
	assert.NotNil(t, body["pending"])

	g.clock.Advance(wheel.DefaultDuration)

	require.Eventually(t, func() bool {
		team, _ := g.store.Team("core")
		return team.Members["bob"].ModerationCount == 1
	}, waitFor, tick)

	resp, body = g.do(t, http.MethodGet, "/api/teams/core/wheel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", body["state"])
	assert.Equal(t, "bob", body["result"])
}

func TestGateway_SpinRejected(t *testing.T) {
	g := newTestGateway(t, nil)
	g.store.CreateTeam("core")
	g.store.AddTeamMember("core", "alice")

	resp, _ := g.do(t, http.MethodPost, "/api/teams/core/wheel/spin", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = g.do(t, http.MethodPost, "/api/teams/ghost/wheel/spin", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGateway_ConfirmSoleWinner(t *testing.T) {
	g := newTestGateway(t, nil)
	g.store.CreateTeam("core")
	g.store.AddTeamMember("core", "alice")

	resp, body := g.do(t, http.MethodGet, "/api/teams/core/wheel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", body["sole"])

	resp, body = g.do(t, http.MethodPost, "/api/teams/core/wheel/confirm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", body["winner"])

	team, _ := g.store.Team("core")
	assert.Equal(t, 1, team.Members["alice"].ModerationCount)

	g.store.AddTeamMember("core", "bob")
	resp, _ = g.do(t, http.MethodPost, "/api/teams/core/wheel/confirm", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestGateway_WebSocket(t *testing.T) {
	g := newTestGateway(t, nil)
	g.store.CreateTeam("core")

	wsURL := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ws/roster?team=core"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() RosterEvent {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
		var event RosterEvent
		require.NoError(t, conn.ReadJSON(&event))
		return event
	}

	snapshot := read()
	assert.Equal(t, EventTypeTeamsUpdated, snapshot.Type)
	var payload TeamsUpdatedPayload
	require.NoError(t, json.Unmarshal(snapshot.Data, &payload))
	assert.Equal(t, "snapshot", payload.Source)
	assert.Contains(t, payload.Teams, "core")

	resp, _ := g.do(t, http.MethodPost, "/api/teams/core/members", map[string]string{"name": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// earlier updates may still be queued; wait for the one carrying alice
	for i := 0; i < 5; i++ {
		update := read()
		require.Equal(t, EventTypeTeamsUpdated, update.Type)
		require.NoError(t, json.Unmarshal(update.Data, &payload))
		if _, ok := payload.Teams["core"].Members["alice"]; ok {
			break
		}
	}
	assert.Equal(t, "local", payload.Source)
	assert.Contains(t, payload.Teams["core"].Members, "alice")

	resp, _ = g.do(t, http.MethodGet, "/ws/stats", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGateway_WebSocketUnknownTeam(t *testing.T) {
	g := newTestGateway(t, nil)

	resp, err := http.Get(g.server.URL + "/ws/roster?team=ghost")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
