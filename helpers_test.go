package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakePeer records everything a room sends it.
type fakePeer struct {
	id string

	mu   sync.Mutex
	msgs []any
	fail error
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string {
	return p.id
}

func (p *fakePeer) Send(msg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fail != nil {
		return p.fail
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePeer) failWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fail = err
}

func (p *fakePeer) messages() []any {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]any(nil), p.msgs...)
}

func (p *fakePeer) count(msgType string) int {
	n := 0
	for _, m := range p.messages() {
		if typeOf(m) == msgType {
			n++
		}
	}
	return n
}

func (p *fakePeer) last(msgType string) any {
	msgs := p.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if typeOf(msgs[i]) == msgType {
			return msgs[i]
		}
	}
	return nil
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.msgs = nil
}

func typeOf(msg any) string {
	switch m := msg.(type) {
	case RoomCreatedMessage:
		return m.Type
	case RosterMessage:
		return m.Type
	case GameStartedMessage:
		return m.Type
	case MushroomSpawnMessage:
		return m.Type
	case ErrorMessage:
		return m.Type
	}
	return ""
}

var errPeerGone = errors.New("peer gone")

func newTestDirectory(t *testing.T, interval time.Duration) *Directory {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	dir := NewDirectory(ctx, interval, zap.NewNop())
	t.Cleanup(func() {
		dir.Close()
		cancel()
	})

	return dir
}

func intPtr(v int) *int {
	return &v
}

func int64Ptr(v int64) *int64 {
	return &v
}
