package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/ms-go-paylinks/app/entity"
	"github.com/clinicore/ms-go-paylinks/app/service"
	"github.com/clinicore/ms-go-paylinks/app/types"
)

const actorContextKey = "paylinks.actor"

// Claims is the token shape issued by the CRM's auth service. This
// service only consumes it.
type Claims struct {
	TherapistID uint64 `json:"tid"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// RequireActor gates a route group behind a bearer JWT and stores the
// resulting Actor in the echo context.
func RequireActor(jwtSecret string) echo.MiddlewareFunc {
	secret := []byte(jwtSecret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			header := ctx.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, "Bearer ") {
				return unauthorized(ctx)
			}
			rawToken := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if rawToken == "" {
				return unauthorized(ctx)
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(rawToken, claims, func(*jwt.Token) (interface{}, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				return unauthorized(ctx)
			}
			if claims.TherapistID == 0 && claims.Role != entity.RoleAdmin {
				return unauthorized(ctx)
			}
			role := claims.Role
			if role == "" {
				role = entity.RoleTherapist
			}

			ctx.Set(actorContextKey, service.Actor{
				TherapistID: claims.TherapistID,
				Role:        role,
			})
			return next(ctx)
		}
	}
}

func ActorFromContext(ctx echo.Context) (service.Actor, error) {
	actor, ok := ctx.Get(actorContextKey).(service.Actor)
	if !ok {
		return service.Actor{}, errors.New("no actor in request context")
	}
	return actor, nil
}

func unauthorized(ctx echo.Context) error {
	return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{
		Code:  "unauthorized",
		Error: "a valid bearer token is required",
	})
}
