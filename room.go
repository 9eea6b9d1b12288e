/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"math"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	roomCapacity = 5
	maxNameLen   = 16
	maxLive      = 64
)

// Broadcaster is the outbound half of a client connection, as seen by a room.
type Broadcaster interface {
	ID() string
	Send(msg any) error
}

type GameState string

const (
	StateLobby   GameState = "lobby"
	StatePlaying GameState = "playing"
)

// Player is a room member. The peer is owned by the connection-accept path;
// the room only borrows it to broadcast.
type Player struct {
	ID    string
	Name  string
	Score int
	peer  Broadcaster
}

// Room holds one game session. All fields are guarded by mu.
type Room struct {
	code string

	mu      sync.Mutex
	players []*Player
	state   GameState
	live    []Mushroom
	lastID  int64
	closed  bool

	// cancelSpawn stops the spawner of the current round, if one is running.
	cancelSpawn context.CancelFunc
	spawnGen    uint64
}

func newRoom(code string) *Room {
	return &Room{
		code:  code,
		state: StateLobby,
	}
}

// normalizeCode makes room codes compare case-insensitively.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// sanitizeName trims and truncates a display name to maxNameLen runes.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= maxNameLen {
		return name
	}
	return string([]rune(name)[:maxNameLen])
}

func (r *Room) Code() string {
	return r.code
}

// addLocked appends a player, enforcing capacity and identity uniqueness.
func (r *Room) addLocked(p *Player) error {
	if r.closed {
		return ErrRoomNotFound
	}
	if len(r.players) >= roomCapacity {
		return ErrRoomFull
	}
	for _, existing := range r.players {
		if existing.ID == p.ID {
			return ErrPlayerExists
		}
	}
	r.players = append(r.players, p)
	return nil
}

// removePeerLocked drops every player held by peer and reports how many went.
func (r *Room) removePeerLocked(peer Broadcaster) int {
	dst := r.players[:0]
	removed := 0
	for _, p := range r.players {
		if p.peer.ID() == peer.ID() {
			removed++
			continue
		}
		dst = append(dst, p)
	}
	for i := len(dst); i < len(r.players); i++ {
		r.players[i] = nil
	}
	r.players = dst
	return removed
}

// closeLocked marks the room dead and stops its spawner.
func (r *Room) closeLocked() {
	r.closed = true
	r.stopSpawnerLocked()
}

func (r *Room) stopSpawnerLocked() {
	if r.cancelSpawn != nil {
		r.cancelSpawn()
		r.cancelSpawn = nil
	}
}

func (r *Room) rosterLocked() []PlayerState {
	roster := make([]PlayerState, 0, len(r.players))
	for _, p := range r.players {
		roster = append(roster, PlayerState{ID: p.ID, Name: p.Name, Score: p.Score})
	}
	return roster
}

func (r *Room) peersLocked() []Broadcaster {
	peers := make([]Broadcaster, 0, len(r.players))
	for _, p := range r.players {
		peers = append(peers, p.peer)
	}
	return peers
}

// hitLocked credits points to playerID. The points value is trusted as sent;
// the total saturates at math.MaxInt instead of wrapping.
func (r *Room) hitLocked(playerID string, points int, mushroomID *int64) error {
	if r.closed {
		return ErrRoomNotFound
	}

	var player *Player
	for _, p := range r.players {
		if p.ID == playerID {
			player = p
			break
		}
	}
	if player == nil {
		return ErrPlayerNotFound
	}

	if points > math.MaxInt-player.Score {
		player.Score = math.MaxInt
	} else {
		player.Score += points
	}

	if mushroomID != nil {
		r.forgetLocked(*mushroomID)
	}

	return nil
}

// recordLocked remembers a spawned mushroom, keeping at most maxLive of them.
func (r *Room) recordLocked(m Mushroom) {
	if len(r.live) >= maxLive {
		copy(r.live, r.live[1:])
		r.live = r.live[:len(r.live)-1]
	}
	r.live = append(r.live, m)
}

func (r *Room) forgetLocked(id int64) {
	for i, m := range r.live {
		if m.ID == id {
			r.live = append(r.live[:i], r.live[i+1:]...)
			return
		}
	}
}

// Snapshot returns the room state and roster for read-only inspection.
func (r *Room) Snapshot() (GameState, []PlayerState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state, r.rosterLocked()
}

// LiveMushrooms returns a copy of the mushrooms spawned this round that have
// not been reported as hit.
func (r *Room) LiveMushrooms() []Mushroom {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Mushroom(nil), r.live...)
}

// broadcast delivers msg to every peer. A failure on one peer never stops
// delivery to the rest.
func broadcast(peers []Broadcaster, msg any) []error {
	var errs []error
	for _, peer := range peers {
		if err := peer.Send(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
