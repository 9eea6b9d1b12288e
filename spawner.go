/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Spawn area, in percent of the play field. Edges are kept clear so targets
// never render under the client's HUD.
const (
	spawnMinX  = 10.0
	spawnSpanX = 80.0
	spawnMinY  = 20.0
	spawnSpanY = 60.0
	maxPoints  = 3
)

// spawner drives one round of one room. It lives until its context is
// cancelled or it observes that the room is no longer running its round.
type spawner struct {
	room     *Room
	gen      uint64
	interval time.Duration
	rnd      *rand.Rand
	logger   *zap.Logger
}

// startSpawnerLocked begins a round's spawner unless one is already running.
// The caller holds r.mu.
func (r *Room) startSpawnerLocked(parent context.Context, interval time.Duration, logger *zap.Logger) bool {
	if r.cancelSpawn != nil {
		return false
	}

	ctx, cancel := context.WithCancel(parent)
	r.cancelSpawn = cancel
	r.spawnGen++
	r.live = nil

	s := &spawner{
		room:     r,
		gen:      r.spawnGen,
		interval: interval,
		rnd:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger:   logger.With(zap.String("room", r.code)),
	}

	go s.run(ctx)

	return true
}

func (s *spawner) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug("spawner started", zap.Duration("interval", s.interval))
	defer s.logger.Debug("spawner stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.tick(ctx, now) {
				return
			}
		}
	}
}

// tick spawns one mushroom and broadcasts it. It returns false once the
// spawner should stop for good.
func (s *spawner) tick(ctx context.Context, now time.Time) bool {
	r := s.room

	r.mu.Lock()
	if ctx.Err() != nil || r.closed || r.spawnGen != s.gen || r.state != StatePlaying {
		if r.spawnGen == s.gen {
			r.stopSpawnerLocked()
		}
		r.mu.Unlock()
		return false
	}

	m := newMushroom(s.rnd, r.nextMushroomIDLocked(now))
	r.recordLocked(m)
	peers := r.peersLocked()
	r.mu.Unlock()

	for _, err := range broadcast(peers, MushroomSpawnMessage{Type: MsgMushroomSpawn, Mushroom: m}) {
		s.logger.Debug("spawn delivery failed", zap.Error(err))
	}

	return true
}

// nextMushroomIDLocked derives a millisecond timestamp id, bumped when needed
// so ids within a room strictly increase.
func (r *Room) nextMushroomIDLocked(now time.Time) int64 {
	id := now.UnixMilli()
	if id <= r.lastID {
		id = r.lastID + 1
	}
	r.lastID = id
	return id
}

func newMushroom(rnd *rand.Rand, id int64) Mushroom {
	return Mushroom{
		ID:     id,
		X:      spawnMinX + rnd.Float64()*spawnSpanX,
		Y:      spawnMinY + rnd.Float64()*spawnSpanY,
		Points: 1 + rnd.IntN(maxPoints),
	}
}
