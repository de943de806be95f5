package profile

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultAbout is the status line a new profile starts with.
	DefaultAbout = "Disponible"
	// FallbackName labels a sender that never set a name.
	FallbackName = "Usuario"

	MaxNameLength  = 80
	MaxAboutLength = 140
)

var (
	ErrMissingID = errors.New("profile: id is required")
	ErrNotFound  = errors.New("profile: not found")
	ErrEmptyName = errors.New("profile: display name is empty")
	ErrTooLong   = errors.New("profile: value too long")
)

// Profile is the user document. LegacyName is the deprecated alias of DisplayName and is
// kept in sync on every write; reads prefer DisplayName.
type Profile struct {
	ID          string     `db:"id" json:"id"`
	DisplayName string     `db:"display_name" json:"display_name"`
	LegacyName  string     `db:"legacy_name" json:"-"`
	Email       string     `db:"email" json:"email,omitempty"`
	Phone       string     `db:"phone" json:"phone,omitempty"`
	PhotoRef    *string    `db:"photo_ref" json:"photo_ref,omitempty"`
	About       string     `db:"about" json:"about"`
	LastSeen    *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	PushTokens  []string   `db:"-" json:"push_tokens,omitempty"`
}

// Name resolves the label shown to other users: display name, then the legacy alias,
// then FallbackName. Blank values are skipped.
func (p Profile) Name() string {
	if n := strings.TrimSpace(p.DisplayName); n != "" {
		return n
	}
	if n := strings.TrimSpace(p.LegacyName); n != "" {
		return n
	}
	return FallbackName
}

// Identity is what the identity provider knows about a signed-in user.
type Identity struct {
	ID          string
	Email       string
	Phone       string
	DisplayName string
	PhotoRef    *string
}

// Normalize trims every field and drops a blank photo.
func (in Identity) Normalize() (Identity, error) {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return Identity{}, ErrMissingID
	}
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.PhotoRef != nil {
		ref := strings.TrimSpace(*in.PhotoRef)
		if ref == "" {
			in.PhotoRef = nil
		} else {
			in.PhotoRef = &ref
		}
	}
	return in, nil
}

// New builds the profile created on first sign-in.
func New(in Identity, now time.Time) Profile {
	return Profile{
		ID:          in.ID,
		DisplayName: in.DisplayName,
		LegacyName:  in.DisplayName,
		Email:       in.Email,
		Phone:       in.Phone,
		PhotoRef:    in.PhotoRef,
		About:       DefaultAbout,
		CreatedAt:   now.UTC(),
	}
}

// MergeIfAbsent fills fields that are still blank from in. A field already set is
// never replaced. Reports whether anything changed.
func (p *Profile) MergeIfAbsent(in Identity) bool {
	changed := false
	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" && v != "" {
			*dst = v
			changed = true
		}
	}
	fill(&p.DisplayName, in.DisplayName)
	fill(&p.LegacyName, in.DisplayName)
	fill(&p.Email, in.Email)
	fill(&p.Phone, in.Phone)
	if p.PhotoRef == nil && in.PhotoRef != nil {
		ref := *in.PhotoRef
		p.PhotoRef = &ref
		changed = true
	}
	return changed
}

// Patch is a partial update of the editable fields. Nil means unchanged.
type Patch struct {
	DisplayName *string
	About       *string
}

func (pt Patch) Normalize() (Patch, error) {
	if pt.DisplayName != nil {
		n := strings.TrimSpace(*pt.DisplayName)
		if n == "" {
			return Patch{}, ErrEmptyName
		}
		if utf8.RuneCountInString(n) > MaxNameLength {
			return Patch{}, ErrTooLong
		}
		pt.DisplayName = &n
	}
	if pt.About != nil {
		a := strings.TrimSpace(*pt.About)
		if a == "" {
			a = DefaultAbout
		}
		if utf8.RuneCountInString(a) > MaxAboutLength {
			return Patch{}, ErrTooLong
		}
		pt.About = &a
	}
	return pt, nil
}

// Apply writes the patch; a new display name updates the legacy alias too.
func (p *Profile) Apply(pt Patch) {
	if pt.DisplayName != nil {
		p.DisplayName = *pt.DisplayName
		p.LegacyName = *pt.DisplayName
	}
	if pt.About != nil {
		p.About = *pt.About
	}
}

// Touch advances LastSeen; it never moves backwards.
func (p *Profile) Touch(at time.Time) {
	at = at.UTC()
	if p.LastSeen == nil || at.After(*p.LastSeen) {
		p.LastSeen = &at
	}
}
