package adapter

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	profile "go-mensajeria/internal/pkg/profile/application/domain"
	repository "go-mensajeria/internal/repository/port"
)

type memToken struct {
	profileID string
	order     int64
}

// MemoryProfileRepository is the in-process ProfileRepository.
type MemoryProfileRepository struct {
	mu       sync.Mutex
	profiles map[string]*profile.Profile
	tokens   map[string]memToken
	counter  int64
	clock    func() time.Time
}

func NewMemoryProfileRepository() *MemoryProfileRepository {
	return &MemoryProfileRepository{
		profiles: make(map[string]*profile.Profile),
		tokens:   make(map[string]memToken),
		clock:    time.Now,
	}
}

var _ repository.ProfileRepository = (*MemoryProfileRepository)(nil)

func (r *MemoryProfileRepository) Ensure(ctx context.Context, in profile.Identity) (profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return profile.Profile{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[in.ID]
	if !ok {
		created := profile.New(in, r.clock())
		r.profiles[in.ID] = &created
		return r.copyLocked(&created, false), nil
	}
	p.MergeIfAbsent(in)
	return r.copyLocked(p, false), nil
}

func (r *MemoryProfileRepository) Get(ctx context.Context, id string) (profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return profile.Profile{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	return r.copyLocked(p, true), nil
}

func (r *MemoryProfileRepository) List(ctx context.Context, limit int) ([]profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	out := make([]profile.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, r.copyLocked(p, false))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(sortName(out[i])), strings.ToLower(sortName(out[j]))
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortName(p profile.Profile) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.LegacyName
}

func (r *MemoryProfileRepository) Update(ctx context.Context, id string, patch profile.Patch) (profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return profile.Profile{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	p.Apply(patch)
	return r.copyLocked(p, false), nil
}

func (r *MemoryProfileRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return profile.ErrNotFound
	}
	p.Touch(at)
	return nil
}

func (r *MemoryProfileRepository) AddTokens(ctx context.Context, id string, tokens ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[id]; !ok {
		return profile.ErrNotFound
	}
	for _, t := range repository.UniqueTokens(tokens) {
		if cur, ok := r.tokens[t]; ok && cur.profileID == id {
			continue
		}
		r.counter++
		r.tokens[t] = memToken{profileID: id, order: r.counter}
	}
	return nil
}

func (r *MemoryProfileRepository) RemoveTokens(ctx context.Context, id string, tokens ...string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range repository.UniqueTokens(tokens) {
		if cur, ok := r.tokens[t]; ok && cur.profileID == id {
			delete(r.tokens, t)
			n++
		}
	}
	return n, nil
}

func (r *MemoryProfileRepository) Tokens(ctx context.Context, id string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokensLocked(id), nil
}

func (r *MemoryProfileRepository) tokensLocked(id string) []string {
	type entry struct {
		token string
		order int64
	}
	var es []entry
	for t, v := range r.tokens {
		if v.profileID == id {
			es = append(es, entry{t, v.order})
		}
	}
	sort.Slice(es, func(i, j int) bool { return es[i].order < es[j].order })
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.token
	}
	return out
}

func (r *MemoryProfileRepository) copyLocked(p *profile.Profile, withTokens bool) profile.Profile {
	c := *p
	if p.PhotoRef != nil {
		ref := *p.PhotoRef
		c.PhotoRef = &ref
	}
	if p.LastSeen != nil {
		ls := *p.LastSeen
		c.LastSeen = &ls
	}
	c.PushTokens = nil
	if withTokens {
		c.PushTokens = r.tokensLocked(p.ID)
	}
	return c
}
