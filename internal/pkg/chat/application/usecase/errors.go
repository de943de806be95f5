package usecase

import (
	"fmt"

	"go-mensajeria/internal/apperr"
)

// ErrPersistence indicates an infrastructure/repository failure inside a use case
var ErrPersistence = fmt.Errorf("chat use case persistence error")

// persistenceErr classifies a store failure as retryable.
func persistenceErr(op string, err error) error {
	return apperr.Transient(op, fmt.Errorf("%w: %v", ErrPersistence, err))
}
