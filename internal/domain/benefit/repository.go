package benefit

import (
	"context"
)

// Repository defines the read side the engine needs plus the bulk insert used
// by benefit migrations.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Template, error)
	// ListEnrollments returns active templates reachable by userID through
	// active cards.
	ListEnrollments(ctx context.Context, userID int64) ([]*Enrollment, error)
	GetEnrollment(ctx context.Context, userCardID, benefitID int64) (*Enrollment, error)
	// ListUsersWithActiveCards returns the ids of users that own at least one active card.
	ListUsersWithActiveCards(ctx context.Context) ([]int64, error)
	// CreateTemplates inserts all templates in one transaction, or none.
	CreateTemplates(ctx context.Context, templates []*Template) error
}
