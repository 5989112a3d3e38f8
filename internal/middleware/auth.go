package middleware

import (
	"context"
	"net/http"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"

	"CapIot.ixonsync/internal/models"
	"CapIot.ixonsync/internal/utils"
)

// TriggerAuth validates HS256 bearer tokens on trigger endpoints.
type TriggerAuth struct {
	middleware *jwtmiddleware.JWTMiddleware
}

// NewTriggerAuth returns nil when secret is empty, which disables auth.
func NewTriggerAuth(secret, issuer, audience string) (*TriggerAuth, error) {
	if secret == "" {
		return nil, nil
	}
	keyFunc := func(ctx context.Context) (interface{}, error) {
		return []byte(secret), nil
	}
	jwtValidator, err := validator.New(
		keyFunc,
		validator.HS256,
		issuer,
		[]string{audience},
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}
	return &TriggerAuth{
		middleware: jwtmiddleware.New(jwtValidator.ValidateToken, jwtmiddleware.WithErrorHandler(onAuthError)),
	}, nil
}

func onAuthError(w http.ResponseWriter, r *http.Request, err error) {
	utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeInvalidToken,
		"missing or invalid bearer token", nil, http.StatusUnauthorized))
}

// Wrap protects next. A nil TriggerAuth lets every request through.
func (a *TriggerAuth) Wrap(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return a.middleware.CheckJWT(next)
}

// Subject returns the validated token's subject, if any.
func Subject(r *http.Request) string {
	claims, ok := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	if !ok {
		return ""
	}
	return claims.RegisteredClaims.Subject
}
