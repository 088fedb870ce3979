package config

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
)

// DebugMask is the WAVETUNER_DEBUG bitmask selecting which log channels
// run at slog.LevelDebug.
type DebugMask uint

const (
	DebugNet DebugMask = 1 << iota
	DebugPlayer
	DebugRPC
)

// ParseDebugMask reads WAVETUNER_DEBUG's value. An empty value disables
// debug logging entirely. A decimal or "0x"-prefixed hex value is taken
// as a literal bitmask (so "1" enables only the net channel and "7" all
// three). Otherwise the value is a comma-separated channel list
// (net,player,rpc); a non-numeric value naming none of those channels
// enables every channel.
func ParseDebugMask(raw string) DebugMask {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if n, err := strconv.ParseUint(raw, 0, 64); err == nil {
		return DebugMask(n)
	}

	var mask DebugMask
	matched := false
	for _, name := range strings.Split(raw, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "net":
			mask |= DebugNet
			matched = true
		case "player":
			mask |= DebugPlayer
			matched = true
		case "rpc":
			mask |= DebugRPC
			matched = true
		}
	}
	if !matched {
		return DebugNet | DebugPlayer | DebugRPC
	}
	return mask
}

// Enabled reports whether channel is turned on in the mask.
func (m DebugMask) Enabled(channel DebugMask) bool {
	return m&channel == channel
}

// Any reports whether at least one channel is enabled, used to pick the
// handler's base slog.Level.
func (m DebugMask) Any() bool {
	return m != 0
}

func channelFromName(name string) DebugMask {
	switch name {
	case "net":
		return DebugNet
	case "player":
		return DebugPlayer
	case "rpc":
		return DebugRPC
	default:
		return 0
	}
}

// ChannelHandler wraps an inner slog.Handler and additionally filters
// Debug-level records by a "channel" attribute against a DebugMask:
// Info-and-above records always pass through; a Debug record naming a
// channel is dropped unless that channel's bit is set; a Debug record
// naming no channel passes only when every channel is enabled.
type ChannelHandler struct {
	inner slog.Handler
	mask  DebugMask
}

// NewChannelHandler wraps inner with channel filtering driven by mask.
func NewChannelHandler(inner slog.Handler, mask DebugMask) *ChannelHandler {
	return &ChannelHandler{inner: inner, mask: mask}
}

// Enabled implements slog.Handler.
func (h *ChannelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level > slog.LevelDebug {
		return h.inner.Enabled(ctx, level)
	}
	return h.mask.Any() && h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *ChannelHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level <= slog.LevelDebug {
		var channel DebugMask
		hasChannel := false
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "channel" {
				hasChannel = true
				channel = channelFromName(a.Value.String())
				return false
			}
			return true
		})
		if hasChannel && !h.mask.Enabled(channel) {
			return nil
		}
		if !hasChannel && h.mask != (DebugNet|DebugPlayer|DebugRPC) {
			return nil
		}
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *ChannelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ChannelHandler{inner: h.inner.WithAttrs(attrs), mask: h.mask}
}

// WithGroup implements slog.Handler.
func (h *ChannelHandler) WithGroup(name string) slog.Handler {
	return &ChannelHandler{inner: h.inner.WithGroup(name), mask: h.mask}
}
