package port

import (
	"context"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
)

type IdentityProvider interface {
	// CurrentPrincipal returns domain.ErrUnauthenticated when no user is signed in.
	CurrentPrincipal(ctx context.Context) (domain.Identity, error)

	UserProfile(ctx context.Context, userID string) (domain.Profile, error)
}
