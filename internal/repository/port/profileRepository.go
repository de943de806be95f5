package repository

import (
	"context"
	"strings"
	"time"

	profile "go-mensajeria/internal/pkg/profile/application/domain"
)

// ProfileRepository is the contract for user profiles and their push tokens.
// Missing profiles are reported as profile.ErrNotFound.
type ProfileRepository interface {
	// Ensure creates the profile or fills its blank fields from in (merge-if-absent).
	Ensure(ctx context.Context, in profile.Identity) (profile.Profile, error)
	// Get returns the profile with its push tokens.
	Get(ctx context.Context, id string) (profile.Profile, error)
	List(ctx context.Context, limit int) ([]profile.Profile, error)
	Update(ctx context.Context, id string, patch profile.Patch) (profile.Profile, error)
	// TouchLastSeen only ever moves last_seen forward.
	TouchLastSeen(ctx context.Context, id string, at time.Time) error

	// AddTokens is an idempotent set-union. A token owned by another profile moves here.
	AddTokens(ctx context.Context, id string, tokens ...string) error
	// RemoveTokens is a set-difference and returns how many tokens were removed.
	RemoveTokens(ctx context.Context, id string, tokens ...string) (int64, error)
	// Tokens lists the profile's tokens oldest first.
	Tokens(ctx context.Context, id string) ([]string, error)
}

// UniqueTokens trims, drops blanks and dedupes, keeping first-seen order.
func UniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
