package mocks

import (
	"context"

	"github.com/aimd54/lifescope-insights/internal/apperr"
	"github.com/aimd54/lifescope-insights/internal/models"
)

// UserRepository is a function-backed user lookup. Without GetByIDFunc every
// user is unknown.
type UserRepository struct {
	GetByIDFunc func(ctx context.Context, id uint) (*models.User, error)
}

// GetByID implements the user lookup used by the report service.
func (m *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, apperr.ErrNotFound
}
