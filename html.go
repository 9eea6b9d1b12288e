/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
)

func serveHomePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(newPage("shroom", "shroom v"+releaseVersion+": connect a game client to this address over websockets.")))
	}
}

func serveHealthCheck(cfg *Config, dir *Directory, reg *Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := fmt.Fprintf(w, "Ok\nrooms: %d\nconnections: %d\n", dir.Len(), reg.Len())
		if err != nil {
			errs <- err

			return
		}
	}
}

// RoomInfo is the read-only view of a room served over HTTP.
type RoomInfo struct {
	RoomCode string        `json:"roomCode"`
	State    GameState     `json:"state"`
	Players  []PlayerState `json:"players"`
}

func serveRoomInfo(cfg *Config, dir *Directory, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		securityHeaders(cfg, w)

		room := dir.Lookup(p.ByName("code"))
		if room == nil {
			http.Error(w, ErrRoomNotFound.Error(), http.StatusNotFound)
			return
		}

		state, players := room.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")

		err := json.NewEncoder(w).Encode(RoomInfo{
			RoomCode: room.Code(),
			State:    state,
			Players:  players,
		})
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
