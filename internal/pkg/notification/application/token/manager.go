package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"go-mensajeria/internal/apperr"
	cacheport "go-mensajeria/internal/infrastructure/cache/port"
	profile "go-mensajeria/internal/pkg/profile/application/domain"
	repository "go-mensajeria/internal/repository/port"
)

// Manager keeps each installation's latest push token and the profile it belongs to.
// A token can be issued before anyone signs in; it is cached per installation and
// attached to the profile once the installation is bound.
type Manager struct {
	Cache    cacheport.Cache
	Profiles repository.ProfileRepository
	Log      zerolog.Logger
}

func NewManager(cache cacheport.Cache, profiles repository.ProfileRepository, log zerolog.Logger) *Manager {
	return &Manager{Cache: cache, Profiles: profiles, Log: log}
}

func issuedKey(installationID string) string  { return "push-token:" + installationID }
func bindingKey(installationID string) string { return "push-binding:" + installationID }

// RegisterToken adds token to the profile's set. Registering it again is a no-op.
func (m *Manager) RegisterToken(ctx context.Context, profileID, token string) error {
	const op = "token.Register"
	profileID, token = strings.TrimSpace(profileID), strings.TrimSpace(token)
	if profileID == "" || token == "" {
		return apperr.Validation(op, "profile id and token are required")
	}
	if err := m.Profiles.AddTokens(ctx, profileID, token); err != nil {
		return classify(op, err)
	}
	return nil
}

// ErrNotOwner is returned when an installation bound to one profile is modified by another.
var ErrNotOwner = errors.New("installation is bound to another user")

// issued is the cached token of an installation and the user that reported it
// (empty when reported before sign-in).
type issued struct {
	Token  string `json:"token"`
	Issuer string `json:"issuer,omitempty"`
}

// StoreIssued remembers the most recent token issued to installationID. callerID is the
// signed-in user reporting it, or empty before sign-in. Once the installation is bound
// only its owner may replace the token.
func (m *Manager) StoreIssued(ctx context.Context, installationID, callerID, token string) error {
	const op = "token.StoreIssued"
	installationID, callerID, token = strings.TrimSpace(installationID), strings.TrimSpace(callerID), strings.TrimSpace(token)
	if installationID == "" || token == "" {
		return apperr.Validation(op, "installation id and token are required")
	}
	if err := m.checkOwner(ctx, op, installationID, callerID); err != nil {
		return err
	}
	return m.putIssued(ctx, op, installationID, issued{Token: token, Issuer: callerID})
}

// CurrentIssued returns the cached token of installationID, if any.
func (m *Manager) CurrentIssued(ctx context.Context, installationID string) (string, bool, error) {
	cur, ok, err := m.getIssued(ctx, "token.CurrentIssued", strings.TrimSpace(installationID))
	return cur.Token, ok, err
}

// SyncWithProfile binds installationID to profileID and registers the cached token when
// it was reported anonymously or by profileID itself. Reports whether a token was registered.
func (m *Manager) SyncWithProfile(ctx context.Context, installationID, profileID string) (bool, error) {
	const op = "token.SyncWithProfile"
	installationID, profileID = strings.TrimSpace(installationID), strings.TrimSpace(profileID)
	if installationID == "" || profileID == "" {
		return false, apperr.Validation(op, "installation id and profile id are required")
	}
	if err := m.Cache.Set(ctx, bindingKey(installationID), profileID, 0); err != nil {
		return false, apperr.Transient(op, err)
	}
	cur, ok, err := m.getIssued(ctx, op, installationID)
	if err != nil || !ok {
		return false, err
	}
	if cur.Issuer != "" && cur.Issuer != profileID {
		m.Log.Warn().Str("user_id", profileID).Str("installation_id", installationID).Msg("cached token reported by another user, not synced")
		return false, nil
	}
	if err := m.RegisterToken(ctx, profileID, cur.Token); err != nil {
		return false, err
	}
	if cur.Issuer == "" {
		// claimed: later syncs by other users must not pick it up
		if err := m.putIssued(ctx, op, installationID, issued{Token: cur.Token, Issuer: profileID}); err != nil {
			return true, err
		}
	}
	m.Log.Debug().Str("user_id", profileID).Str("installation_id", installationID).Msg("token synced")
	return true, nil
}

// RotateToken records newToken for installationID and adds it to the bound profile.
// Only the bound user may rotate; an unbound installation just caches the token.
// oldToken stays registered; the dispatcher prunes it once the transport rejects it.
func (m *Manager) RotateToken(ctx context.Context, installationID, callerID, oldToken, newToken string) error {
	const op = "token.Rotate"
	installationID, callerID = strings.TrimSpace(installationID), strings.TrimSpace(callerID)
	if callerID == "" {
		return apperr.Validation(op, "caller id is required")
	}
	if err := m.StoreIssued(ctx, installationID, callerID, newToken); err != nil {
		return err
	}
	profileID, bound, err := m.lookup(ctx, op, bindingKey(installationID))
	if err != nil || !bound {
		return err
	}
	if err := m.RegisterToken(ctx, profileID, newToken); err != nil {
		return err
	}
	m.Log.Info().
		Str("user_id", profileID).
		Str("installation_id", installationID).
		Bool("replaced", strings.TrimSpace(oldToken) != "" && strings.TrimSpace(oldToken) != strings.TrimSpace(newToken)).
		Msg("token rotated")
	return nil
}

func (m *Manager) checkOwner(ctx context.Context, op, installationID, callerID string) error {
	owner, bound, err := m.lookup(ctx, op, bindingKey(installationID))
	if err != nil {
		return err
	}
	if bound && owner != callerID {
		return apperr.Permission(op, ErrNotOwner)
	}
	return nil
}

func (m *Manager) putIssued(ctx context.Context, op, installationID string, v issued) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return apperr.New(apperr.KindInternal, op, err)
	}
	if err := m.Cache.Set(ctx, issuedKey(installationID), string(raw), 0); err != nil {
		return apperr.Transient(op, err)
	}
	return nil
}

func (m *Manager) getIssued(ctx context.Context, op, installationID string) (issued, bool, error) {
	raw, ok, err := m.lookup(ctx, op, issuedKey(installationID))
	if err != nil || !ok {
		return issued{}, false, err
	}
	var v issued
	if err := json.Unmarshal([]byte(raw), &v); err != nil || v.Token == "" {
		// bare token written before issuers were tracked
		return issued{Token: raw}, true, nil
	}
	return v, true, nil
}

func (m *Manager) lookup(ctx context.Context, op, key string) (string, bool, error) {
	v, err := m.Cache.Get(ctx, key)
	if errors.Is(err, cacheport.ErrMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Transient(op, err)
	}
	return v, v != "", nil
}

func classify(op string, err error) error {
	if errors.Is(err, profile.ErrNotFound) {
		return apperr.NotFound(op, err)
	}
	return apperr.Transient(op, fmt.Errorf("token store: %w", err))
}
