package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/novelshelf-backend/internal/reqctx"
)

// TokenVerifier is the part of the Firebase auth client the middleware uses.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

var ErrMissingProjectID = errors.New("FIREBASE_PROJECT_ID is not set")

func NewAuthMiddleware(ctx context.Context, projectID string) (*AuthMiddleware, error) {
	if projectID == "" {
		return nil, ErrMissingProjectID
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return &AuthMiddleware{verifier: client}, nil
}

func NewAuthMiddlewareWithVerifier(v TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: v}
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authz := c.Request().Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, errorBody("unauthorized", "missing bearer token"))
		}
		tokenStr := strings.TrimPrefix(authz, "Bearer ")
		token, err := m.verifier.VerifyIDToken(c.Request().Context(), tokenStr)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorBody("invalid_token", "invalid bearer token"))
		}
		c.Set("uid", token.UID)
		c.SetRequest(c.Request().WithContext(reqctx.WithUID(c.Request().Context(), token.UID)))
		return next(c)
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(adminUIDs []string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(adminUIDs))
	for _, uid := range adminUIDs {
		if uid = strings.TrimSpace(uid); uid != "" {
			allowed[uid] = struct{}{}
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, _ := c.Get("uid").(string)
			if _, ok := allowed[uid]; !ok {
				return c.JSON(http.StatusForbidden, errorBody("forbidden", "admin only"))
			}
			return next(c)
		}
	}
}

func errorBody(code, message string) map[string]map[string]string {
	return map[string]map[string]string{"error": {"code": code, "message": message}}
}
