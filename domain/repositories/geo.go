package repositories

import "context"

// LocationResolver resolves the caller's coarse location for prompt
// context. Best effort: failures yield an empty string, never an error.
type LocationResolver interface {
	Resolve(ctx context.Context) string
}
