/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Client -> server message types
const (
	MsgCreateRoom  = "create_room"
	MsgJoinRoom    = "join_room"
	MsgStartGame   = "start_game"
	MsgHitMushroom = "hit_mushroom"
)

// Server -> client message types
const (
	MsgRoomCreated   = "room_created"
	MsgPlayersUpdate = "players_update"
	MsgGameStarted   = "game_started"
	MsgMushroomSpawn = "mushroom_spawn"
	MsgScoreUpdate   = "score_update"
	MsgError         = "error"
)

var errMalformed = errors.New("malformed message")

// Inbound is the union of every client message. Which fields are required
// depends on Type; see validate.
type Inbound struct {
	Type       string `json:"type" msgpack:"type"`
	RoomCode   string `json:"roomCode,omitempty" msgpack:"roomCode,omitempty"`
	PlayerID   string `json:"playerId,omitempty" msgpack:"playerId,omitempty"`
	PlayerName string `json:"playerName,omitempty" msgpack:"playerName,omitempty"`
	Points     *int   `json:"points,omitempty" msgpack:"points,omitempty"`
	MushroomID *int64 `json:"mushroomId,omitempty" msgpack:"mushroomId,omitempty"`
}

func (m *Inbound) validate() error {
	var required []string

	switch m.Type {
	case MsgCreateRoom:
		required = []string{"playerId", "playerName"}
	case MsgJoinRoom:
		required = []string{"roomCode", "playerId", "playerName"}
	case MsgStartGame:
		required = []string{"roomCode"}
	case MsgHitMushroom:
		required = []string{"roomCode", "playerId", "points"}
	default:
		return nil
	}

	for _, field := range required {
		if m.missing(field) {
			return fmt.Errorf("%w: missing %s", errMalformed, field)
		}
	}

	if m.Points != nil && *m.Points < 0 {
		return fmt.Errorf("%w: points must not be negative", errMalformed)
	}

	return nil
}

func (m *Inbound) missing(field string) bool {
	switch field {
	case "roomCode":
		return m.RoomCode == ""
	case "playerId":
		return m.PlayerID == ""
	case "playerName":
		return sanitizeName(m.PlayerName) == ""
	case "points":
		return m.Points == nil
	}
	return false
}

// PlayerState is a roster entry. The connection handle never leaves the server.
type PlayerState struct {
	ID    string `json:"id" msgpack:"id"`
	Name  string `json:"name" msgpack:"name"`
	Score int    `json:"score" msgpack:"score"`
}

// Mushroom is a spawned target. X and Y are percentages of the play field.
type Mushroom struct {
	ID     int64   `json:"id" msgpack:"id"`
	X      float64 `json:"x" msgpack:"x"`
	Y      float64 `json:"y" msgpack:"y"`
	Points int     `json:"points" msgpack:"points"`
}

type RoomCreatedMessage struct {
	Type     string `json:"type" msgpack:"type"`
	RoomCode string `json:"roomCode" msgpack:"roomCode"`
}

// RosterMessage carries players_update and score_update.
type RosterMessage struct {
	Type    string        `json:"type" msgpack:"type"`
	Players []PlayerState `json:"players" msgpack:"players"`
}

type GameStartedMessage struct {
	Type string `json:"type" msgpack:"type"`
}

type MushroomSpawnMessage struct {
	Type     string   `json:"type" msgpack:"type"`
	Mushroom Mushroom `json:"mushroom" msgpack:"mushroom"`
}

type ErrorMessage struct {
	Type    string `json:"type" msgpack:"type"`
	Message string `json:"message" msgpack:"message"`
}

// codec pairs a serialization with the websocket frame type it travels in.
// It is chosen once per connection from the negotiated subprotocol.
type codec struct {
	name      string
	frameType int
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

var (
	jsonCodec = codec{
		name:      "json",
		frameType: websocket.TextMessage,
		marshal:   json.Marshal,
		unmarshal: json.Unmarshal,
	}

	msgpackCodec = codec{
		name:      "msgpack",
		frameType: websocket.BinaryMessage,
		marshal:   msgpack.Marshal,
		unmarshal: msgpack.Unmarshal,
	}
)

var subprotocols = []string{jsonCodec.name, msgpackCodec.name}

func codecFor(subprotocol string) codec {
	if subprotocol == msgpackCodec.name {
		return msgpackCodec
	}
	return jsonCodec
}

func (c codec) decode(raw []byte) (*Inbound, error) {
	var msg Inbound
	if err := c.unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", errMalformed)
	}
	if err := msg.validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
