// Package presence contains domain entities and business logic for the
// real-time online presence of SkillSwap users: who is connected right now,
// and how successive views of that set are reconciled on the client side.
// This is a pure domain layer with zero external dependencies.
package presence

import (
	"errors"
	"strings"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
)

// Domain errors for presence package. The identity sentinel is the shared
// one, so callers match it with errors.Is across layer boundaries.
var (
	ErrEmptyIdentityID = shared.ErrIdentityEmpty
	ErrEmptyConnID     = errors.New("presence: connection id cannot be empty")
)

// Identity is the minimal payload a user announces on connect.
// Uniqueness key is ID; Name and Avatar are display data carried verbatim.
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Validate checks the identity invariants. Only ID is required: a user may
// have no avatar and an empty display name while onboarding.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return ErrEmptyIdentityID
	}
	return nil
}

// Equal reports whether two identities refer to the same user.
func (i Identity) Equal(other Identity) bool {
	return i.ID == other.ID
}

// IDsOf returns the set of ids contained in a snapshot.
func IDsOf(identities []Identity) map[string]struct{} {
	ids := make(map[string]struct{}, len(identities))
	for _, id := range identities {
		ids[id.ID] = struct{}{}
	}
	return ids
}
