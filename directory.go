/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Shroom room directory
//
// Players create a room and share its six-character code; up to five players
// join it, anyone in it starts the round, and the server then drops a mushroom
// into the room every spawn interval. Clients report hits and the server keeps
// the score.
//
// Features:
// - Room codes are 6 uppercase alphanumerics from crypto/rand, checked for collisions
// - Codes compare case-insensitively
// - Rooms hold at most 5 players; joins beyond that are rejected, not queued
// - A room disappears as soon as its last connection closes
// - One spawner per room, cancelled with the room
// - Scores are credited as reported; rounds are timed by the clients

package main

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	roomCodeLen      = 6
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts  = 64
)

// Directory maps room codes to rooms and connections to the rooms they hold
// players in. Lock order is Directory.mu before Room.mu.
type Directory struct {
	ctx           context.Context
	spawnInterval time.Duration
	logger        *zap.Logger

	mu    sync.RWMutex
	rooms map[string]*Room

	// byPeer is the reverse index, peer ID -> set of room codes.
	byPeer map[string]map[string]struct{}

	// newCode is swapped out in tests to force collisions.
	newCode func() (string, error)
}

// NewDirectory returns an empty directory. Spawners started through it are
// cancelled when ctx is.
func NewDirectory(ctx context.Context, spawnInterval time.Duration, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Directory{
		ctx:           ctx,
		spawnInterval: spawnInterval,
		logger:        logger,
		rooms:         make(map[string]*Room),
		byPeer:        make(map[string]map[string]struct{}),
		newCode:       randomRoomCode,
	}
}

func randomRoomCode() (string, error) {
	return roomCodeFrom(rand.Reader)
}

// roomCodeFrom draws a code from src, discarding bytes at or above the largest
// multiple of the alphabet size so every character is equally likely.
func roomCodeFrom(src io.Reader) (string, error) {
	limit := 256 - 256%len(roomCodeAlphabet)

	out := make([]byte, 0, roomCodeLen)
	buf := make([]byte, roomCodeLen)
	for len(out) < roomCodeLen {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", err
		}

		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, roomCodeAlphabet[int(b)%len(roomCodeAlphabet)])
			if len(out) == roomCodeLen {
				break
			}
		}
	}

	return string(out), nil
}

// CreateRoom registers a new room whose only member is the creator, and
// returns its code.
func (d *Directory) CreateRoom(peer Broadcaster, playerID, playerName string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	code := ""
	for range maxCodeAttempts {
		candidate, err := d.newCode()
		if err != nil {
			return "", err
		}
		if _, exists := d.rooms[candidate]; !exists {
			code = candidate
			break
		}
	}
	if code == "" {
		return "", ErrCodeSpaceExhausted
	}

	room := newRoom(code)
	room.players = []*Player{{ID: playerID, Name: sanitizeName(playerName), peer: peer}}

	d.rooms[code] = room
	d.indexLocked(peer, code)

	d.logger.Info("room created",
		zap.String("room", code),
		zap.String("player", playerID),
		zap.String("conn", peer.ID()),
	)

	return code, nil
}

// JoinRoom adds a player to an existing room and sends the new roster to
// every member, the joiner included. On error nothing is broadcast.
func (d *Directory) JoinRoom(code string, peer Broadcaster, playerID, playerName string) error {
	code = normalizeCode(code)

	d.mu.Lock()
	room, ok := d.rooms[code]
	if !ok {
		d.mu.Unlock()
		return ErrRoomNotFound
	}

	room.mu.Lock()
	err := room.addLocked(&Player{ID: playerID, Name: sanitizeName(playerName), peer: peer})
	if err != nil {
		room.mu.Unlock()
		d.mu.Unlock()
		return err
	}
	d.indexLocked(peer, code)

	roster := room.rosterLocked()
	peers := room.peersLocked()
	room.mu.Unlock()
	d.mu.Unlock()

	d.logger.Info("player joined",
		zap.String("room", code),
		zap.String("player", playerID),
		zap.Int("players", len(roster)),
	)

	d.deliver(code, peers, RosterMessage{Type: MsgPlayersUpdate, Players: roster})

	return nil
}

// StartGame moves a room to playing and tells its members. A room that is
// already playing keeps its spawner; the announcement is repeated.
func (d *Directory) StartGame(code string) error {
	room := d.Lookup(code)
	if room == nil {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	if room.closed {
		room.mu.Unlock()
		return ErrRoomNotFound
	}
	room.state = StatePlaying
	started := room.startSpawnerLocked(d.ctx, d.spawnInterval, d.logger)
	peers := room.peersLocked()
	room.mu.Unlock()

	d.logger.Info("game started",
		zap.String("room", room.code),
		zap.Bool("new_round", started),
		zap.Int("players", len(peers)),
	)

	d.deliver(room.code, peers, GameStartedMessage{Type: MsgGameStarted})

	return nil
}

// HitMushroom credits points to a player and sends the updated scores to
// the room. Nothing checks that the mushroom existed or was worth that much.
func (d *Directory) HitMushroom(code, playerID string, points int, mushroomID *int64) error {
	room := d.Lookup(code)
	if room == nil {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	if err := room.hitLocked(playerID, points, mushroomID); err != nil {
		room.mu.Unlock()
		return err
	}
	roster := room.rosterLocked()
	peers := room.peersLocked()
	room.mu.Unlock()

	d.logger.Debug("mushroom hit",
		zap.String("room", room.code),
		zap.String("player", playerID),
		zap.Int("points", points),
	)

	d.deliver(room.code, peers, RosterMessage{Type: MsgScoreUpdate, Players: roster})

	return nil
}

// RemoveConnection drops every player held by peer and deletes rooms left
// empty. Remaining members are not notified.
func (d *Directory) RemoveConnection(peer Broadcaster) {
	d.mu.Lock()
	defer d.mu.Unlock()

	codes := d.byPeer[peer.ID()]
	delete(d.byPeer, peer.ID())

	for code := range codes {
		room, ok := d.rooms[code]
		if !ok {
			continue
		}

		room.mu.Lock()
		removed := room.removePeerLocked(peer)
		empty := len(room.players) == 0
		if empty {
			room.closeLocked()
			delete(d.rooms, code)
		}
		room.mu.Unlock()

		d.logger.Info("connection left room",
			zap.String("room", code),
			zap.String("conn", peer.ID()),
			zap.Int("players_removed", removed),
			zap.Bool("room_deleted", empty),
		)
	}
}

// Lookup returns the room registered under code, or nil.
func (d *Directory) Lookup(code string) *Room {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.rooms[normalizeCode(code)]
}

// Len returns the number of registered rooms.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.rooms)
}

// Close stops every spawner and forgets all rooms.
func (d *Directory) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for code, room := range d.rooms {
		room.mu.Lock()
		room.closeLocked()
		room.mu.Unlock()
		delete(d.rooms, code)
	}
	clear(d.byPeer)
}

func (d *Directory) indexLocked(peer Broadcaster, code string) {
	codes, ok := d.byPeer[peer.ID()]
	if !ok {
		codes = make(map[string]struct{})
		d.byPeer[peer.ID()] = codes
	}
	codes[code] = struct{}{}
}

func (d *Directory) deliver(code string, peers []Broadcaster, msg any) {
	for _, err := range broadcast(peers, msg) {
		d.logger.Debug("broadcast delivery failed", zap.String("room", code), zap.Error(err))
	}
}
