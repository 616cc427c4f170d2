package api

import (
	"net/http"

	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/bookgate/bookgate/pkg/bookgate"
)

// NewTokenAuth builds the JWT verifier used by the API routers.
func NewTokenAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// identity is the caller identity asserted by the upstream token:
// a user id plus the role claimed for redemption role gating.
type identity struct {
	UserID uuid.UUID
	Role   bookgate.Role
	Admin  bool
}

// callerIdentity extracts the identity claims from the verified token.
func callerIdentity(r *http.Request) (*identity, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, err
	}

	id := &identity{UserID: userID}
	if role, ok := claims["role"].(string); ok {
		id.Role = bookgate.Role(role)
	}
	if admin, ok := claims["admin"].(bool); ok {
		id.Admin = admin
	}
	return id, nil
}

// RequireAdmin rejects callers whose token does not carry the admin
// claim.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := callerIdentity(r)
		if err != nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, ErrorResponse{Code: "unauthorized", Message: "a valid identity token is required"})
			return
		}
		if !id.Admin {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, ErrorResponse{Code: "admin_required", Message: "admin privileges are required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
