package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/lms-portal/core"
	"github.com/trezcool/lms-portal/core/user"
)

const (
	audience       = "lms-portal"
	contextUserKey = "user"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Name  string    `json:"name,omitempty"`
	Email string    `json:"email,omitempty"`
	Role  user.Role `json:"role"`
}

// AccountID returns the id of the account the token was issued to.
func (c Claims) AccountID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Tokens issues and checks the API's bearer tokens.
type Tokens struct {
	conf middleware.JWTConfig
	iss  string
	ttl  time.Duration
}

func NewTokens(conf *core.Config) *Tokens {
	return &Tokens{
		conf: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    "userToken",
			Claims:        new(Claims),
		},
		iss: conf.AppName,
		ttl: conf.DevAPI.JWTExpirationDelta,
	}
}

// GetAccountClaims returns the claims of a token issued to acc now.
func (t *Tokens) GetAccountClaims(acc user.Account) *Claims {
	now := user.NowFunc()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    t.iss,
			Subject:   strconv.FormatInt(acc.ID, 10),
			Audience:  audience,
			ExpiresAt: now.Add(t.ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:  acc.Name,
		Email: acc.Email,
		Role:  acc.Role,
	}
}

// GenerateToken generates a signed JWT token string representing the account Claims.
func (t *Tokens) GenerateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(t.conf.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(t.conf.SigningKey)
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

// Middleware rejects requests without a valid bearer token.
func (t *Tokens) Middleware() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(t.conf)
}

func (t *Tokens) getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(t.conf.ContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextAccount loads the account behind the request's token. Tokens of deleted accounts are unauthorized.
func (t *Tokens) getContextAccount(ctx echo.Context, svc user.Service) (user.Account, error) {
	if acc, ok := ctx.Get(contextUserKey).(user.Account); ok {
		return acc, nil
	}

	claims, err := t.getContextClaims(ctx)
	if err != nil {
		return user.Account{}, err
	}
	id, err := claims.AccountID()
	if err != nil {
		return user.Account{}, errUnauthorized
	}

	acc, err := svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.Account{}, errUnauthorized
		}
		return user.Account{}, errors.Wrap(err, "finding account by ID")
	}
	ctx.Set(contextUserKey, acc)
	return acc, nil
}

// adminMiddleware only lets admins through.
func (t *Tokens) adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := t.getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.Role == user.RoleAdmin {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
