/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 64
	maxMessagesPerSec = 50
)

// Conn is an accepted websocket connection with a server-generated identity.
type Conn struct {
	id           string
	ws           *websocket.Conn
	codec        codec
	remoteAddr   string
	writeTimeout time.Duration
	logger       *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	msgCount   int
	msgResetAt time.Time
}

func (c *Conn) ID() string {
	return c.id
}

// Send encodes msg with the connection's codec and queues it. It never blocks:
// a connection whose queue is full is considered stalled and is closed.
func (c *Conn) Send(msg any) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	data, err := c.codec.marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		c.logger.Warn("outbound queue full, closing connection")
		c.Close()
		return ErrSlowConsumer
	}
}

// Close signals the write pump to send a close frame and release the socket.
// Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump decodes inbound frames and hands each to handle until the peer
// goes away, misbehaves, or the connection is closed.
func (c *Conn) readPump(handle func(*Conn, *Inbound, error)) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("read error", zap.Error(err))
			}
			return
		}

		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			c.logger.Warn("rate limit exceeded, disconnecting")
			return
		}

		msg, err := c.codec.decode(raw)
		handle(c, msg, err)
	}
}

// writePump drains the outbound queue onto the socket and keeps the
// connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(c.codec.frameType, data); err != nil {
				c.logger.Debug("write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeTimeout))
			return
		}
	}
}

var errTooManyConns = errors.New("too many connections")

// Registry tracks live connections and enforces connection limits.
type Registry struct {
	maxConns      int
	maxConnsPerIP int
	writeTimeout  time.Duration
	logger        *zap.Logger

	mu      sync.Mutex
	conns   map[string]*Conn
	ipConns map[string]int
}

func NewRegistry(maxConns, maxConnsPerIP int, writeTimeout time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		maxConns:      maxConns,
		maxConnsPerIP: maxConnsPerIP,
		writeTimeout:  writeTimeout,
		logger:        logger,
		conns:         make(map[string]*Conn),
		ipConns:       make(map[string]int),
	}
}

// CanAccept reports whether a new connection from ip fits within the limits.
// A zero limit means unlimited.
func (r *Registry) CanAccept(ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxConns > 0 && len(r.conns) >= r.maxConns {
		return errTooManyConns
	}
	if r.maxConnsPerIP > 0 && r.ipConns[ip] >= r.maxConnsPerIP {
		return errTooManyConns
	}
	return nil
}

// Add wraps an upgraded websocket and assigns it a fresh identity.
func (r *Registry) Add(ws *websocket.Conn, ip string) *Conn {
	id := uuid.NewString()

	c := &Conn{
		id:           id,
		ws:           ws,
		codec:        codecFor(ws.Subprotocol()),
		remoteAddr:   ip,
		writeTimeout: r.writeTimeout,
		logger:       r.logger.With(zap.String("conn", id), zap.String("remote", ip)),
		send:         make(chan []byte, sendBufSize),
		done:         make(chan struct{}),
	}

	r.mu.Lock()
	r.conns[id] = c
	r.ipConns[ip]++
	r.mu.Unlock()

	c.logger.Debug("connection accepted", zap.String("codec", c.codec.name))

	return c
}

// Remove forgets a connection. Removing an unknown connection is a no-op.
func (r *Registry) Remove(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.id]; !ok {
		return
	}
	delete(r.conns, c.id)

	r.ipConns[c.remoteAddr]--
	if r.ipConns[c.remoteAddr] <= 0 {
		delete(r.ipConns, c.remoteAddr)
	}
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.conns)
}

// CloseAll disconnects every live connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
