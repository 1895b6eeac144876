package shared

import (
	"context"
	"errors"
	"slices"
)

// AuthorizationContext scopes every core call to a tenant and branch.
// It is constructed once per request by the outer API layer and threaded
// explicitly; the core never reads ambient branch state.
type AuthorizationContext struct {
	BusinessID          int64
	ActorID             int64
	SelectedBranchID    int64
	AccessibleBranchIDs []int64
}

// Validate ensures the context is usable for a core call.
func (a AuthorizationContext) Validate() error {
	if a.BusinessID == 0 {
		return errors.New("shared: business id required")
	}
	if a.SelectedBranchID != 0 && !a.AllowsBranch(a.SelectedBranchID) {
		return errors.New("shared: selected branch not accessible")
	}
	return nil
}

// AllowsBranch reports whether the actor may act on the given branch.
// An empty accessible list means all branches of the business.
func (a AuthorizationContext) AllowsBranch(branchID int64) bool {
	if len(a.AccessibleBranchIDs) == 0 {
		return true
	}
	return slices.Contains(a.AccessibleBranchIDs, branchID)
}

type authzContextKey struct{}

// ContextWithAuthorization stores the authorization context.
func ContextWithAuthorization(ctx context.Context, authz AuthorizationContext) context.Context {
	return context.WithValue(ctx, authzContextKey{}, authz)
}

// AuthorizationFromContext extracts the authorization context, if present.
func AuthorizationFromContext(ctx context.Context) (AuthorizationContext, bool) {
	authz, ok := ctx.Value(authzContextKey{}).(AuthorizationContext)
	return authz, ok
}
