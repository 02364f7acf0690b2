package logging

import (
	"context"

	"github.com/google/uuid"
)

type traceKey struct{}

// EnableDebugMode marks ctx so that the C-prefixed debug methods log regardless of level. Every
// callback run under the returned context shares the tag; an empty tag gets a random one.
func EnableDebugMode(ctx context.Context, tag string) context.Context {
	if tag == "" {
		tag = uuid.NewString()[:8]
	}
	return context.WithValue(ctx, traceKey{}, tag)
}

// IsDebugMode reports whether ctx was marked by EnableDebugMode.
func IsDebugMode(ctx context.Context) bool {
	return GetName(ctx) != ""
}

// GetName is the tag ctx was marked with, or "".
func GetName(ctx context.Context) string {
	tag, _ := ctx.Value(traceKey{}).(string)
	return tag
}
