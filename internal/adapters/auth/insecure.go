package auth

import (
	"context"
	"fmt"

	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
)

// Insecure accepts the raw credential as the user id, no signature, no
// expiry. It exists for the dev loop and must never face the internet.
type Insecure struct{}

var _ core.IdentityVerifier = Insecure{}

func (Insecure) Verify(ctx context.Context, credential string) (*domain.User, error) {
	user, err := domain.NewUser(domain.UserID(credential), "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	return user, nil
}
