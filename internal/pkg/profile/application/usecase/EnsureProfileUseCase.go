package usecase

import (
	"context"
	"time"

	profile "go-mensajeria/internal/pkg/profile/application/domain"
	repository "go-mensajeria/internal/repository/port"
	"go-mensajeria/internal/retry"
)

// EnsureProfileUseCase runs on every session start: it creates or merges the profile
// from the identity claims and refreshes last_seen.
type EnsureProfileUseCase struct {
	Repo  repository.ProfileRepository
	Retry retry.Policy
	Now   func() time.Time
}

func NewEnsureProfileUseCase(repo repository.ProfileRepository, policy retry.Policy) *EnsureProfileUseCase {
	return &EnsureProfileUseCase{Repo: repo, Retry: policy, Now: time.Now}
}

func (uc *EnsureProfileUseCase) Execute(ctx context.Context, in profile.Identity) (profile.Profile, error) {
	const op = "profile.Ensure"

	in, err := in.Normalize()
	if err != nil {
		return profile.Profile{}, classify(op, err)
	}
	return retry.Do(ctx, uc.Retry, func(ctx context.Context) (profile.Profile, error) {
		if _, err := uc.Repo.Ensure(ctx, in); err != nil {
			return profile.Profile{}, classify(op, err)
		}
		if err := uc.Repo.TouchLastSeen(ctx, in.ID, uc.Now()); err != nil {
			return profile.Profile{}, classify(op, err)
		}
		p, err := uc.Repo.Get(ctx, in.ID)
		return p, classify(op, err)
	})
}
