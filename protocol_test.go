package main

import (
	"encoding/json"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestCodec_DecodeJSON(t *testing.T) {
	msg, err := jsonCodec.decode([]byte(`{"type":"hit_mushroom","roomCode":"AB12XY","playerId":"b1","points":2}`))
	require.NoError(t, err)

	assert.Equal(t, MsgHitMushroom, msg.Type)
	assert.Equal(t, "AB12XY", msg.RoomCode)
	assert.Equal(t, "b1", msg.PlayerID)
	require.NotNil(t, msg.Points)
	assert.Equal(t, 2, *msg.Points)
	assert.Nil(t, msg.MushroomID)
}

func TestCodec_DecodeMissingFields(t *testing.T) {
	tests := map[string]string{
		"not json":              `{`,
		"no type":               `{"playerId":"a"}`,
		"create without name":   `{"type":"create_room","playerId":"a"}`,
		"create blank name":     `{"type":"create_room","playerId":"a","playerName":"   "}`,
		"join without code":     `{"type":"join_room","playerId":"a","playerName":"A"}`,
		"start without code":    `{"type":"start_game"}`,
		"hit without points":    `{"type":"hit_mushroom","roomCode":"X","playerId":"a"}`,
		"hit negative points":   `{"type":"hit_mushroom","roomCode":"X","playerId":"a","points":-1}`,
		"hit fractional points": `{"type":"hit_mushroom","roomCode":"X","playerId":"a","points":1.5}`,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := jsonCodec.decode([]byte(raw))
			assert.ErrorIs(t, err, errMalformed)
		})
	}
}

func TestCodec_DecodeUnknownTypeIsNotAnError(t *testing.T) {
	msg, err := jsonCodec.decode([]byte(`{"type":"dance","anything":true}`))
	require.NoError(t, err)
	assert.Equal(t, "dance", msg.Type)
}

func TestCodec_ZeroPointsAccepted(t *testing.T) {
	msg, err := jsonCodec.decode([]byte(`{"type":"hit_mushroom","roomCode":"X","playerId":"a","points":0}`))
	require.NoError(t, err)
	assert.Equal(t, 0, *msg.Points)
}

func TestCodec_Msgpack(t *testing.T) {
	raw, err := msgpack.Marshal(map[string]any{
		"type":       MsgJoinRoom,
		"roomCode":   "AB12XY",
		"playerId":   "b1",
		"playerName": "Bob",
	})
	require.NoError(t, err)

	msg, err := msgpackCodec.decode(raw)
	require.NoError(t, err)
	assert.Equal(t, &Inbound{Type: MsgJoinRoom, RoomCode: "AB12XY", PlayerID: "b1", PlayerName: "Bob"}, msg)
}

func TestCodecFor(t *testing.T) {
	assert.Equal(t, "msgpack", codecFor("msgpack").name)
	assert.Equal(t, websocket.BinaryMessage, codecFor("msgpack").frameType)
	assert.Equal(t, "json", codecFor("").name)
	assert.Equal(t, websocket.TextMessage, codecFor("json").frameType)
}

func TestOutboundWireFormat(t *testing.T) {
	tests := []struct {
		msg  any
		want string
	}{
		{RoomCreatedMessage{Type: MsgRoomCreated, RoomCode: "AB12XY"}, `{"type":"room_created","roomCode":"AB12XY"}`},
		{GameStartedMessage{Type: MsgGameStarted}, `{"type":"game_started"}`},
		{ErrorMessage{Type: MsgError, Message: "room is full"}, `{"type":"error","message":"room is full"}`},
		{
			RosterMessage{Type: MsgScoreUpdate, Players: []PlayerState{{ID: "a1", Name: "Alice", Score: 2}}},
			`{"type":"score_update","players":[{"id":"a1","name":"Alice","score":2}]}`,
		},
		{
			MushroomSpawnMessage{Type: MsgMushroomSpawn, Mushroom: Mushroom{ID: 1, X: 12.5, Y: 40, Points: 3}},
			`{"type":"mushroom_spawn","mushroom":{"id":1,"x":12.5,"y":40,"points":3}}`,
		},
	}

	for _, tt := range tests {
		got, err := json.Marshal(tt.msg)
		require.NoError(t, err)
		assert.JSONEq(t, tt.want, string(got))
	}
}
