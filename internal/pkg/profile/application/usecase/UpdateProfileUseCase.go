package usecase

import (
	"context"
	"strings"

	"go-mensajeria/internal/apperr"
	profile "go-mensajeria/internal/pkg/profile/application/domain"
	repository "go-mensajeria/internal/repository/port"
)

type UpdateProfileUseCase struct {
	Repo repository.ProfileRepository
}

func NewUpdateProfileUseCase(repo repository.ProfileRepository) *UpdateProfileUseCase {
	return &UpdateProfileUseCase{Repo: repo}
}

func (uc *UpdateProfileUseCase) Execute(ctx context.Context, id string, patch profile.Patch) (profile.Profile, error) {
	const op = "profile.Update"

	id = strings.TrimSpace(id)
	if id == "" {
		return profile.Profile{}, classify(op, profile.ErrMissingID)
	}
	if patch.DisplayName == nil && patch.About == nil {
		return profile.Profile{}, apperr.Validation(op, "nothing to update")
	}
	patch, err := patch.Normalize()
	if err != nil {
		return profile.Profile{}, classify(op, err)
	}
	p, err := uc.Repo.Update(ctx, id, patch)
	return p, classify(op, err)
}
