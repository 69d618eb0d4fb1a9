// Package correlation tags log records with the id of the pipeline run or
// HTTP request that produced them, plus the broadcast they belong to.
package correlation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rs/xid"
)

type (
	idKey        struct{}
	broadcastKey struct{}
)

// NewID returns a globally unique, sortable 20-character id.
func NewID() string {
	return xid.New().String()
}

// WithID returns a new context carrying the given correlation ID.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey{}, id)
}

// ID extracts the correlation ID from ctx, returning ("", false) if not present.
func ID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(idKey{}).(string)
	return id, ok && id != ""
}

// WithBroadcast returns a new context carrying the broadcast id.
func WithBroadcast(ctx context.Context, broadcastID string) context.Context {
	return context.WithValue(ctx, broadcastKey{}, broadcastID)
}

func Broadcast(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(broadcastKey{}).(string)
	return id, ok && id != ""
}

// Handler wraps an slog.Handler and adds "correlation_id" and "broadcast_id"
// attributes when the context carries them.
type Handler struct {
	inner slog.Handler
}

func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ID(ctx); ok {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if id, ok := Broadcast(ctx); ok {
		r.AddAttrs(slog.String("broadcast_id", id))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
