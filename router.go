/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"go.uber.org/zap"
)

// Router turns decoded client messages into Directory operations and sends
// the direct replies. Room-wide broadcasts are done by the Directory.
type Router struct {
	dir    *Directory
	logger *zap.Logger
}

func NewRouter(dir *Directory, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Router{
		dir:    dir,
		logger: logger,
	}
}

// Handle is the per-frame callback of a connection's read loop.
func (rt *Router) Handle(c *Conn, msg *Inbound, err error) {
	if err != nil {
		rt.Reject(c, err)
		return
	}
	rt.Dispatch(c, msg)
}

// Dispatch runs one client message on behalf of peer.
func (rt *Router) Dispatch(peer Broadcaster, msg *Inbound) {
	var err error

	switch msg.Type {
	case MsgCreateRoom:
		var code string
		code, err = rt.dir.CreateRoom(peer, msg.PlayerID, msg.PlayerName)
		if err == nil {
			err = peer.Send(RoomCreatedMessage{Type: MsgRoomCreated, RoomCode: code})
		}

	case MsgJoinRoom:
		err = rt.dir.JoinRoom(msg.RoomCode, peer, msg.PlayerID, msg.PlayerName)

	case MsgStartGame:
		err = rt.dir.StartGame(msg.RoomCode)

	case MsgHitMushroom:
		err = rt.dir.HitMushroom(msg.RoomCode, msg.PlayerID, *msg.Points, msg.MushroomID)

	default:
		rt.logger.Debug("ignoring unknown message type",
			zap.String("conn", peer.ID()),
			zap.String("type", msg.Type),
		)
		return
	}

	if err != nil {
		rt.Reject(peer, err)
	}
}

// Reject reports err to peer alone, when it is an error clients are told about.
// Everything else is dropped silently.
func (rt *Router) Reject(peer Broadcaster, err error) {
	text, ok := replyText(err)
	if !ok {
		rt.logger.Debug("dropping message",
			zap.String("conn", peer.ID()),
			zap.Error(err),
		)
		return
	}

	if sendErr := peer.Send(ErrorMessage{Type: MsgError, Message: text}); sendErr != nil {
		rt.logger.Debug("error reply not delivered",
			zap.String("conn", peer.ID()),
			zap.Error(sendErr),
		)
	}
}

// Disconnect removes everything a closed connection held.
func (rt *Router) Disconnect(peer Broadcaster) {
	rt.dir.RemoveConnection(peer)
}
