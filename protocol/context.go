package protocol

import (
	"context"
	"net/http"
	"net/textproto"
	"strings"
)

type metaKey struct{}

// Meta holds request metadata such as HTTP headers. Keys are stored in
// canonical header form so lookups are case-insensitive.
type Meta map[string]string

// MetaFromHeader copies the first value of every header into a Meta.
func MetaFromHeader(h http.Header) Meta {
	meta := make(Meta, len(h))
	for k, v := range h {
		if len(v) > 0 {
			meta[textproto.CanonicalMIMEHeaderKey(k)] = v[0]
		}
	}
	return meta
}

// Get returns the value for key, or "" if absent.
func (m Meta) Get(key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[textproto.CanonicalMIMEHeaderKey(key)]; ok {
		return v
	}
	// Decoded envelopes keep the sender's spelling.
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// ContextWithMeta returns a new context carrying meta.
func ContextWithMeta(ctx context.Context, meta Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFromContext returns the metadata attached to ctx, or nil.
func MetaFromContext(ctx context.Context) Meta {
	meta, _ := ctx.Value(metaKey{}).(Meta)
	return meta
}

// GetMeta returns a single metadata value from ctx.
func GetMeta(ctx context.Context, key string) string {
	return MetaFromContext(ctx).Get(key)
}

// SetMeta returns a context whose metadata has key set to value. The
// metadata already in ctx is copied, never mutated.
func SetMeta(ctx context.Context, key, value string) context.Context {
	old := MetaFromContext(ctx)
	meta := make(Meta, len(old)+1)
	for k, v := range old {
		meta[k] = v
	}
	meta[textproto.CanonicalMIMEHeaderKey(key)] = value
	return ContextWithMeta(ctx, meta)
}
