package usecase

import (
	"errors"
	"fmt"

	"go-mensajeria/internal/apperr"
	profile "go-mensajeria/internal/pkg/profile/application/domain"
)

// ErrPersistence indicates an infrastructure/repository failure inside a use case
var ErrPersistence = fmt.Errorf("profile use case persistence error")

func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, profile.ErrNotFound):
		return apperr.NotFound(op, err)
	case errors.Is(err, profile.ErrMissingID), errors.Is(err, profile.ErrEmptyName), errors.Is(err, profile.ErrTooLong):
		return apperr.New(apperr.KindValidation, op, err)
	default:
		return apperr.Transient(op, fmt.Errorf("%w: %v", ErrPersistence, err))
	}
}
