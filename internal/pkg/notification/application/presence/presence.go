package presence

import (
	"context"
	"errors"
	"strings"
	"time"

	"go-mensajeria/internal/apperr"
	cacheport "go-mensajeria/internal/infrastructure/cache/port"
)

const DefaultTTL = 2 * time.Minute

// Tracker records which conversation each user currently has open. Entries expire so a
// client that vanished without clearing its state stops suppressing alerts.
type Tracker struct {
	cache cacheport.Cache
	ttl   time.Duration
}

func NewTracker(cache cacheport.Cache, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{cache: cache, ttl: ttl}
}

func key(userID string) string { return "presence:" + userID }

// SetActive marks conversationID as open for userID; an empty id clears it.
func (t *Tracker) SetActive(ctx context.Context, userID, conversationID string) error {
	const op = "presence.SetActive"
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apperr.Validation(op, "user id is required")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		if _, err := t.cache.Del(ctx, key(userID)); err != nil {
			return apperr.Transient(op, err)
		}
		return nil
	}
	if err := t.cache.Set(ctx, key(userID), conversationID, t.ttl); err != nil {
		return apperr.Transient(op, err)
	}
	return nil
}

// GetActive returns the conversation userID has open, if any.
func (t *Tracker) GetActive(ctx context.Context, userID string) (string, bool, error) {
	v, err := t.cache.Get(ctx, key(userID))
	if errors.Is(err, cacheport.ErrMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Transient("presence.GetActive", err)
	}
	return v, v != "", nil
}
