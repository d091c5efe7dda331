package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/pavulla/kiosk/core/user"
)

const (
	contextTokenKey = "guestToken"
	contextGuestKey = "guest"
)

// Claims are what the portal puts in a guest's JWT. The kiosk shares the portal's signing key.
type Claims struct {
	jwt.StandardClaims
	FullName  string `json:"full_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	GroupName string `json:"group_name,omitempty"`
	IsAdmin   bool   `json:"is_admin,omitempty"`
	Role      string `json:"role,omitempty"`
}

func newJWTConfig(secretKey string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// GuestClaims builds the claims of a token valid for `ttl`.
func GuestClaims(g user.Guest, issuer string, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    issuer,
			Subject:   g.ID,
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		FullName:  g.FullName,
		Phone:     g.Phone,
		GroupName: g.GroupName,
		IsAdmin:   g.IsAdmin,
		Role:      g.Role,
	}
}

// GenerateToken signs claims the way the portal does.
func GenerateToken(claims *Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (c Claims) guest() user.Guest {
	return user.Guest{
		ID:        c.Subject,
		FullName:  c.FullName,
		Phone:     c.Phone,
		GroupName: c.GroupName,
		IsAdmin:   c.IsAdmin,
		Role:      c.Role,
	}
}

func getContextToken(ctx echo.Context) (*jwt.Token, *Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return token, claims, nil
		}
	}
	return nil, nil, errUnauthorized
}

// guestMiddleware turns the validated JWT into a user.Guest stored in the context.
func guestMiddleware(validate *validator.Validate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			_, claims, err := getContextToken(ctx)
			if err != nil {
				return err
			}
			g := claims.guest()
			if err := g.Validate(validate); err != nil {
				return errUnauthorized
			}
			ctx.Set(contextGuestKey, g)
			return next(ctx)
		}
	}
}

func getContextGuest(ctx echo.Context) (user.Guest, error) {
	if g, ok := ctx.Get(contextGuestKey).(user.Guest); ok {
		return g, nil
	}
	return user.Guest{}, errUnauthorized
}

// rolesMiddleware lets through guests holding any of `roles`.
func rolesMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			g, err := getContextGuest(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context guest")
			}
			if g.HasAnyRole(roles...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
