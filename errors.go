/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrPlayerExists       = errors.New("player already in room")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrCodeSpaceExhausted = errors.New("unable to allocate a room code")
	ErrConnClosed         = errors.New("connection closed")
	ErrSlowConsumer       = errors.New("outbound queue full")
)

// replyText returns the user-facing text for an error, and false when the
// error should be swallowed instead of reported to the client.
func replyText(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrRoomFull),
		errors.Is(err, ErrPlayerExists),
		errors.Is(err, ErrCodeSpaceExhausted):
		return err.Error(), true
	case errors.Is(err, errMalformed):
		return err.Error(), true
	}
	return "", false
}

func logf(cfg *Config, format string, args ...any) {
	if cfg.logger == nil {
		return
	}

	cfg.logger.Sugar().Debugf(format, args...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
