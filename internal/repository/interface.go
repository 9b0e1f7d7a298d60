package repository

import (
	"context"

	"github.com/solarhub/backend/internal/model"
)

// DB checks that the store is reachable.
type DB interface {
	Ping(ctx context.Context) error
}

// SubmissionRepository is the durable store for contact submissions.
// Create populates ID and CreatedAt. Implementations classify their failures
// into ErrDuplicate, ErrTimeout or an unclassified error.
type SubmissionRepository interface {
	DB
	Create(ctx context.Context, s *model.ContactSubmission) error
	FindByID(ctx context.Context, id string) (*model.ContactSubmission, error)
}
