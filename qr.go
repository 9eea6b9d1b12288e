/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// roomInviteURL builds the address a client needs to join code, respecting
// TLS and X-Forwarded-Proto when present.
func roomInviteURL(cfg *Config, r *http.Request, code string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	switch proto := strings.ToLower(r.Header.Get("X-Forwarded-Proto")); proto {
	case "http", "https":
		scheme = proto
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     cfg.prefix + "/",
		RawQuery: url.Values{"room": []string{code}}.Encode(),
	}

	return u.String()
}

// serveRoomQR renders a PNG QR code inviting players into an existing room.
func serveRoomQR(cfg *Config, dir *Directory) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		room := dir.Lookup(p.ByName("code"))
		if room == nil {
			http.Error(w, ErrRoomNotFound.Error(), http.StatusNotFound)
			return
		}

		invite := roomInviteURL(cfg, r, room.Code())

		png, err := qrcode.Encode(invite, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		_, _ = w.Write(png)

		logf(cfg, "SERVE: QR for room %s (%s) to %s", room.Code(), invite, realIP(r))
	}
}
