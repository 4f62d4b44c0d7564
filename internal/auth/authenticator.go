// Package auth provides password authentication and JWT session tokens.
package auth

import (
	"context"

	"github.com/mmynk/groupledger/internal/models"
)

// Authenticator defines the interface for authentication implementations.
// Services depend on this rather than on a concrete credential scheme.
type Authenticator interface {
	// Register creates a new user account. The display name is what other
	// members use to address the user when settling debts.
	Register(ctx context.Context, email, displayName, credential string) (*models.User, error)

	// Authenticate verifies the user's credentials and returns the user.
	Authenticate(ctx context.Context, email, credential string) (*models.User, error)

	// ValidateCredential checks if the credential meets the implementation's requirements.
	ValidateCredential(credential string) error
}
