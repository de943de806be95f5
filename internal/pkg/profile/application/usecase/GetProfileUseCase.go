package usecase

import (
	"context"
	"strings"

	profile "go-mensajeria/internal/pkg/profile/application/domain"
	repository "go-mensajeria/internal/repository/port"
)

const MaxListPage = 200

type GetProfileUseCase struct {
	Repo repository.ProfileRepository
}

func NewGetProfileUseCase(repo repository.ProfileRepository) *GetProfileUseCase {
	return &GetProfileUseCase{Repo: repo}
}

func (uc *GetProfileUseCase) Execute(ctx context.Context, id string) (profile.Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return profile.Profile{}, classify("profile.Get", profile.ErrMissingID)
	}
	p, err := uc.Repo.Get(ctx, id)
	return p, classify("profile.Get", err)
}

type ListProfilesUseCase struct {
	Repo repository.ProfileRepository
}

func NewListProfilesUseCase(repo repository.ProfileRepository) *ListProfilesUseCase {
	return &ListProfilesUseCase{Repo: repo}
}

// Execute lists profiles ordered by name, excluding the caller.
func (uc *ListProfilesUseCase) Execute(ctx context.Context, callerID string, limit int) ([]profile.Profile, error) {
	if limit <= 0 || limit > MaxListPage {
		limit = MaxListPage
	}
	// one extra row so excluding the caller still fills the page
	all, err := uc.Repo.List(ctx, limit+1)
	if err != nil {
		return nil, classify("profile.List", err)
	}
	out := make([]profile.Profile, 0, len(all))
	for _, p := range all {
		if p.ID == callerID {
			continue
		}
		out = append(out, p)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
