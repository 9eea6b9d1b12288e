package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

type testServer struct {
	srv *httptest.Server
	dir *Directory
	reg *Registry
}

func newTestServer(t *testing.T, maxConnsPerIP int) *testServer {
	t.Helper()

	cfg := &Config{
		spawnInterval: 50 * time.Millisecond,
		writeTimeout:  time.Second,
		maxConnsPerIP: maxConnsPerIP,
		logger:        zap.NewNop(),
	}

	dir := newTestDirectory(t, cfg.spawnInterval)
	reg := NewRegistry(0, maxConnsPerIP, cfg.writeTimeout, cfg.logger)

	errs := make(chan error, 16)
	srv := httptest.NewServer(newRouter(cfg, dir, reg, errs))
	t.Cleanup(srv.Close)
	t.Cleanup(reg.CloseAll)

	return &testServer{srv: srv, dir: dir, reg: reg}
}

func (ts *testServer) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http") + path
}

func (ts *testServer) dial(t *testing.T, path string, subprotocols ...string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{
		HandshakeTimeout: 2 * time.Second,
		Subprotocols:     subprotocols,
	}

	ws, resp, err := dialer.Dial(ts.wsURL(path), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })

	return ws
}

func sendJSON(t *testing.T, ws *websocket.Conn, msg map[string]any) {
	t.Helper()

	require.NoError(t, ws.WriteJSON(msg))
}

// readUntil reads frames until one of the wanted type arrives, skipping the rest.
func readUntil(t *testing.T, ws *websocket.Conn, msgType string) map[string]any {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))

		var msg map[string]any
		require.NoError(t, ws.ReadJSON(&msg), "waiting for %s", msgType)

		if msg["type"] == msgType {
			return msg
		}
	}
}

func rosterScores(t *testing.T, msg map[string]any) map[string]float64 {
	t.Helper()

	players, ok := msg["players"].([]any)
	require.True(t, ok, "players missing from %v", msg)

	scores := make(map[string]float64, len(players))
	for _, p := range players {
		entry := p.(map[string]any)
		scores[entry["id"].(string)] = entry["score"].(float64)
	}
	return scores
}

func TestServer_FullRound(t *testing.T) {
	ts := newTestServer(t, 0)

	alice := ts.dial(t, "/")
	bob := ts.dial(t, "/ws")

	sendJSON(t, alice, map[string]any{"type": MsgCreateRoom, "playerId": "a1", "playerName": "Alice"})
	created := readUntil(t, alice, MsgRoomCreated)
	code, _ := created["roomCode"].(string)
	require.Len(t, code, roomCodeLen)

	sendJSON(t, bob, map[string]any{"type": MsgJoinRoom, "roomCode": strings.ToLower(code), "playerId": "b1", "playerName": "Bob"})
	for _, ws := range []*websocket.Conn{alice, bob} {
		update := readUntil(t, ws, MsgPlayersUpdate)
		assert.Equal(t, map[string]float64{"a1": 0, "b1": 0}, rosterScores(t, update))
	}

	sendJSON(t, alice, map[string]any{"type": MsgStartGame, "roomCode": code})
	for _, ws := range []*websocket.Conn{alice, bob} {
		readUntil(t, ws, MsgGameStarted)

		spawn := readUntil(t, ws, MsgMushroomSpawn)
		mushroom, ok := spawn["mushroom"].(map[string]any)
		require.True(t, ok)
		assert.GreaterOrEqual(t, mushroom["x"].(float64), float64(spawnMinX))
		assert.Less(t, mushroom["x"].(float64), float64(spawnMinX+spawnSpanX))
		assert.Contains(t, []float64{1, 2, 3}, mushroom["points"].(float64))
	}

	sendJSON(t, bob, map[string]any{"type": MsgHitMushroom, "roomCode": code, "playerId": "b1", "points": 2})
	for _, ws := range []*websocket.Conn{alice, bob} {
		score := readUntil(t, ws, MsgScoreUpdate)
		assert.Equal(t, map[string]float64{"a1": 0, "b1": 2}, rosterScores(t, score))
	}
}

func TestServer_JoinMissingRoom(t *testing.T) {
	ts := newTestServer(t, 0)
	ws := ts.dial(t, "/ws")

	sendJSON(t, ws, map[string]any{"type": MsgJoinRoom, "roomCode": "NOPE00", "playerId": "x", "playerName": "X"})

	reply := readUntil(t, ws, MsgError)
	assert.Equal(t, "room not found", reply["message"])
}

func TestServer_MalformedFrameKeepsConnection(t *testing.T) {
	ts := newTestServer(t, 0)
	ws := ts.dial(t, "/ws")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	reply := readUntil(t, ws, MsgError)
	assert.Contains(t, reply["message"], "malformed")

	sendJSON(t, ws, map[string]any{"type": MsgCreateRoom, "playerId": "a1", "playerName": "Alice"})
	readUntil(t, ws, MsgRoomCreated)
}

func TestServer_MsgpackSubprotocol(t *testing.T) {
	ts := newTestServer(t, 0)
	ws := ts.dial(t, "/ws", "msgpack")
	require.Equal(t, "msgpack", ws.Subprotocol())

	raw, err := msgpack.Marshal(map[string]any{"type": MsgCreateRoom, "playerId": "a1", "playerName": "Alice"})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, raw))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	frameType, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, frameType)

	var created RoomCreatedMessage
	require.NoError(t, msgpack.Unmarshal(data, &created))
	assert.Equal(t, MsgRoomCreated, created.Type)
	assert.NotNil(t, ts.dir.Lookup(created.RoomCode))
}

func TestServer_DisconnectRemovesRoom(t *testing.T) {
	ts := newTestServer(t, 0)
	ws := ts.dial(t, "/ws")

	sendJSON(t, ws, map[string]any{"type": MsgCreateRoom, "playerId": "a1", "playerName": "Alice"})
	code := readUntil(t, ws, MsgRoomCreated)["roomCode"].(string)
	require.NotNil(t, ts.dir.Lookup(code))

	require.NoError(t, ws.Close())

	assert.Eventually(t, func() bool {
		return ts.dir.Lookup(code) == nil && ts.reg.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_CloseSendsNormalClosure(t *testing.T) {
	ts := newTestServer(t, 0)
	ws := ts.dial(t, "/ws")

	require.Eventually(t, func() bool { return ts.reg.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	ts.reg.CloseAll()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestServer_PerIPLimit(t *testing.T) {
	ts := newTestServer(t, 1)
	ts.dial(t, "/ws")

	require.Eventually(t, func() bool { return ts.reg.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL("/ws"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_HTTPEndpoints(t *testing.T) {
	ts := newTestServer(t, 0)
	ws := ts.dial(t, "/ws")

	sendJSON(t, ws, map[string]any{"type": MsgCreateRoom, "playerId": "a1", "playerName": "Alice"})
	code := readUntil(t, ws, MsgRoomCreated)["roomCode"].(string)

	get := func(path string) (*http.Response, []byte) {
		resp, err := http.Get(ts.srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, body
	}

	resp, body := get("/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "rooms: 1")
	assert.Contains(t, string(body), "connections: 1")

	resp, body = get("/rooms/" + strings.ToLower(code))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info RoomInfo
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, code, info.RoomCode)
	assert.Equal(t, StateLobby, info.State)
	assert.Equal(t, []PlayerState{{ID: "a1", Name: "Alice"}}, info.Players)

	resp, _ = get("/rooms/ZZZZZZ")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = get("/rooms/" + code + "/qr")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, qrSize, img.Bounds().Dx())

	resp, body = get("/version")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "shroom v"+releaseVersion+"\n", string(body))

	resp, body = get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "shroom")
}

func TestRoomInviteURL(t *testing.T) {
	cfg := &Config{prefix: "/game"}

	r := httptest.NewRequest(http.MethodGet, "http://party.example:3001/rooms/AB12XY/qr", nil)
	assert.Equal(t, "http://party.example:3001/game/?room=AB12XY", roomInviteURL(cfg, r, "AB12XY"))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://party.example:3001/game/?room=AB12XY", roomInviteURL(cfg, r, "AB12XY"))

	r.Header.Set("X-Forwarded-Proto", "javascript")
	assert.Equal(t, "http://party.example:3001/game/?room=AB12XY", roomInviteURL(cfg, r, "AB12XY"))
}

func TestRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "10.0.0.7", realIP(r))

	r.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", realIP(r))

	r.Header.Set("X-Real-IP", "not-an-ip")
	assert.Equal(t, "10.0.0.7", realIP(r))
}
