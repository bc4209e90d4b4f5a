package main

import (
	"log/slog"

	"github.com/1broseidon/inkmux/internal/protocol"
)

// pending holds touch input until the client polls for it.
var pending = make(chan protocol.InputEvent, 256)

type inputSource interface {
	Events() <-chan protocol.InputEvent
}

func drainInput(src inputSource, logger *slog.Logger) {
	events := src.Events()
	if events == nil {
		return
	}
	for ev := range events {
		select {
		case pending <- ev:
		default:
			logger.Debug("dropping touch input", "x", ev.X, "y", ev.Y)
		}
	}
}

func nextInput() (protocol.InputEvent, bool) {
	select {
	case ev := <-pending:
		return ev, true
	default:
		return protocol.InputEvent{}, false
	}
}
