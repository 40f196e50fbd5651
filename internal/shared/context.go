package shared

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Header names carrying the caller identity. The CRM gateway authenticates
// upstream and forwards tenant and actor explicitly; nothing in this service
// reads ambient session state.
const (
	HeaderCompanyID = "X-Company-ID"
	HeaderUserID    = "X-User-ID"
)

// Identity describes the tenant and actor performing a request.
type Identity struct {
	CompanyID uuid.UUID
	UserID    uuid.UUID
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// IdentityFromRequest parses the identity headers.
func IdentityFromRequest(r *http.Request) (Identity, error) {
	companyID, err := uuid.Parse(r.Header.Get(HeaderCompanyID))
	if err != nil {
		return Identity{}, ErrTenantRequired
	}
	userID, err := uuid.Parse(r.Header.Get(HeaderUserID))
	if err != nil {
		return Identity{}, ErrActorRequired
	}
	return Identity{CompanyID: companyID, UserID: userID}, nil
}
