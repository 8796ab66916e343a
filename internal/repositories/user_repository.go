package repositories

import (
	"context"

	"github.com/SAP-F-2025/grading-service/internal/models"
)

// UserRepository resolves users from the identity provider.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}
